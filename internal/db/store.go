package db

import (
	"loot-stix/internal/models"
)

// LootStore maps each relay operation kind onto exactly one
// persistence call. It is the only writer the relay ever talks to.
type LootStore struct {
	tokens TokenDB
	actors ActorDB
}

func NewLootStore(tokens TokenDB, actors ActorDB) *LootStore {
	return &LootStore{tokens: tokens, actors: actors}
}

func (s *LootStore) DeleteToken(sceneID, tokenID string) error {
	return s.tokens.DeleteToken(sceneID, tokenID)
}

func (s *LootStore) UpdateToken(tokenID string, updates models.TokenUpdate) error {
	return s.tokens.UpdateToken(tokenID, updates)
}

func (s *LootStore) UpdateActorCurrency(actorID string, currency models.Currency) error {
	tx, err := s.actors.BeginTx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.actors.SetCurrency(tx, actorID, currency); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateOwnedItems grants every item or none: a failed insert rolls
// the whole batch back.
func (s *LootStore) CreateOwnedItems(actorID string, items []models.OwnedItem) error {
	tx, err := s.actors.BeginTx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.actors.InsertOwnedItems(tx, actorID, items); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LootStore) CreateToken(token models.Token, flags models.LootFlags) error {
	return s.tokens.CreateToken(token, flags)
}
