package service

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"loot-stix/internal/container"
	"loot-stix/internal/models"
	"loot-stix/internal/relay"
	"loot-stix/internal/session"
	"loot-stix/pkg"
)

type TokenDBMock struct {
	GetTokenFunc         func(tokenID string) (models.Token, error)
	GetSceneTokensFunc   func(sceneID string) ([]models.Token, error)
	CreateTokenFunc      func(token models.Token, flags models.LootFlags) error
	UpdateTokenFunc      func(tokenID string, updates models.TokenUpdate) error
	DeleteTokenFunc      func(sceneID, tokenID string) error
	GetFlagsFunc         func(tokenID string) (models.LootFlags, bool, error)
	SetFlagsFunc         func(tokenID string, flags models.LootFlags) error
	GetFlaggedTokensFunc func() ([]models.Token, error)
}

func (m *TokenDBMock) GetToken(tokenID string) (models.Token, error) {
	return m.GetTokenFunc(tokenID)
}

func (m *TokenDBMock) GetSceneTokens(sceneID string) ([]models.Token, error) {
	return m.GetSceneTokensFunc(sceneID)
}

func (m *TokenDBMock) CreateToken(token models.Token, flags models.LootFlags) error {
	return m.CreateTokenFunc(token, flags)
}

func (m *TokenDBMock) UpdateToken(tokenID string, updates models.TokenUpdate) error {
	return m.UpdateTokenFunc(tokenID, updates)
}

func (m *TokenDBMock) DeleteToken(sceneID, tokenID string) error {
	return m.DeleteTokenFunc(sceneID, tokenID)
}

func (m *TokenDBMock) GetFlags(tokenID string) (models.LootFlags, bool, error) {
	return m.GetFlagsFunc(tokenID)
}

func (m *TokenDBMock) SetFlags(tokenID string, flags models.LootFlags) error {
	return m.SetFlagsFunc(tokenID, flags)
}

func (m *TokenDBMock) GetFlaggedTokens() ([]models.Token, error) {
	return m.GetFlaggedTokensFunc()
}

type ActorDBMock struct {
	BeginTxFunc               func() (*sql.Tx, error)
	GetActorFunc              func(actorID string) (models.Actor, error)
	SetCurrencyFunc           func(tx *sql.Tx, actorID string, currency models.Currency) error
	InsertOwnedItemsFunc      func(tx *sql.Tx, actorID string, items []models.OwnedItem) error
	GetOwnedItemForUpdateFunc func(tx *sql.Tx, actorID, itemID string) (models.OwnedItem, error)
	DeleteOwnedItemFunc       func(tx *sql.Tx, actorID, itemID string) error
	GetInventoryFunc          func(actorID string) ([]models.OwnedItem, error)
}

func (m *ActorDBMock) BeginTx() (*sql.Tx, error) {
	return m.BeginTxFunc()
}

func (m *ActorDBMock) GetActor(actorID string) (models.Actor, error) {
	return m.GetActorFunc(actorID)
}

func (m *ActorDBMock) SetCurrency(tx *sql.Tx, actorID string, currency models.Currency) error {
	return m.SetCurrencyFunc(tx, actorID, currency)
}

func (m *ActorDBMock) InsertOwnedItems(tx *sql.Tx, actorID string, items []models.OwnedItem) error {
	return m.InsertOwnedItemsFunc(tx, actorID, items)
}

func (m *ActorDBMock) GetOwnedItemForUpdate(tx *sql.Tx, actorID, itemID string) (models.OwnedItem, error) {
	return m.GetOwnedItemForUpdateFunc(tx, actorID, itemID)
}

func (m *ActorDBMock) DeleteOwnedItem(tx *sql.Tx, actorID, itemID string) error {
	return m.DeleteOwnedItemFunc(tx, actorID, itemID)
}

func (m *ActorDBMock) GetInventory(actorID string) ([]models.OwnedItem, error) {
	return m.GetInventoryFunc(actorID)
}

// PersistenceMock stands in for the relay's store so mutations applied
// by the authority can be observed without a database.
type PersistenceMock struct {
	DeleteTokenFunc         func(sceneID, tokenID string) error
	UpdateTokenFunc         func(tokenID string, updates models.TokenUpdate) error
	UpdateActorCurrencyFunc func(actorID string, currency models.Currency) error
	CreateOwnedItemsFunc    func(actorID string, items []models.OwnedItem) error
	CreateTokenFunc         func(token models.Token, flags models.LootFlags) error
}

func (m *PersistenceMock) DeleteToken(sceneID, tokenID string) error {
	return m.DeleteTokenFunc(sceneID, tokenID)
}

func (m *PersistenceMock) UpdateToken(tokenID string, updates models.TokenUpdate) error {
	return m.UpdateTokenFunc(tokenID, updates)
}

func (m *PersistenceMock) UpdateActorCurrency(actorID string, currency models.Currency) error {
	return m.UpdateActorCurrencyFunc(actorID, currency)
}

func (m *PersistenceMock) CreateOwnedItems(actorID string, items []models.OwnedItem) error {
	return m.CreateOwnedItemsFunc(actorID, items)
}

func (m *PersistenceMock) CreateToken(token models.Token, flags models.LootFlags) error {
	return m.CreateTokenFunc(token, flags)
}

func testLogger() pkg.Logger {
	return pkg.NewZapLogger(zap.NewNop())
}

type lootFixture struct {
	svc  LootService
	sess *session.Session
}

func newLootFixture(tokens *TokenDBMock, actors *ActorDBMock, store *PersistenceMock) lootFixture {
	log := testLogger()
	sess := session.New()
	sess.Join(session.Participant{ID: "gm", Name: "Greg", IsGM: true})
	sess.Join(session.Participant{ID: "player1", Name: "Ann"})

	hub := session.NewHub(sess, log)
	relays := relay.NewManager(sess.RosterFor, store, hub, log, time.Second)
	images := container.Images{Open: "default-open.png", Closed: "default-closed.png"}
	svc := NewLootService(tokens, actors, sess, relays, hub, log, 100, images, true)
	return lootFixture{svc: svc, sess: sess}
}

func TestInteractNonLootIsNormalClick(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			return models.LootFlags{}, false, nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, &PersistenceMock{})

	outcome, err := f.svc.Interact(InteractRequest{UserID: "player1", TokenID: "tok1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeNormalClick {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeNormalClick)
	}
}

func TestInteractHiddenIsNormalClick(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			return models.LootFlags{ItemType: models.ItemTypeItem}, true, nil
		},
		GetTokenFunc: func(tokenID string) (models.Token, error) {
			return models.Token{ID: tokenID, Hidden: true}, nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, &PersistenceMock{})

	outcome, err := f.svc.Interact(InteractRequest{UserID: "player1", TokenID: "tok1", ControlledTokenIDs: []string{"hero"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeNormalClick {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeNormalClick)
	}
}

func TestInteractGMWithoutSelectionIsNormalClick(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			return models.LootFlags{ItemType: models.ItemTypeItem}, true, nil
		},
		GetTokenFunc: func(tokenID string) (models.Token, error) {
			return models.Token{ID: tokenID}, nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, &PersistenceMock{})

	outcome, err := f.svc.Interact(InteractRequest{UserID: "gm", TokenID: "tok1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeNormalClick {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeNormalClick)
	}

	// Same when the GM only controls the loot token itself.
	outcome, err = f.svc.Interact(InteractRequest{UserID: "gm", TokenID: "tok1", ControlledTokenIDs: []string{"tok1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeNormalClick {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeNormalClick)
	}
}

func TestInteractRequiresSingleControlledToken(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			return models.LootFlags{ItemType: models.ItemTypeItem}, true, nil
		},
		GetTokenFunc: func(tokenID string) (models.Token, error) {
			return models.Token{ID: tokenID}, nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, &PersistenceMock{})

	_, err := f.svc.Interact(InteractRequest{UserID: "player1", TokenID: "tok1", ControlledTokenIDs: []string{"a", "b"}})
	if !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission, got %v", err)
	}

	_, err = f.svc.Interact(InteractRequest{UserID: "player1", TokenID: "tok1"})
	if !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission, got %v", err)
	}
}

func TestInteractOutOfRange(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			if tokenID == "loot" {
				return models.LootFlags{ItemType: models.ItemTypeItem}, true, nil
			}
			return models.LootFlags{}, false, nil
		},
		GetTokenFunc: func(tokenID string) (models.Token, error) {
			if tokenID == "loot" {
				return models.Token{ID: "loot", X: 0, Y: 0}, nil
			}
			return models.Token{ID: "hero", ActorID: "actor1", X: 300, Y: 300}, nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, &PersistenceMock{})

	_, err := f.svc.Interact(InteractRequest{UserID: "player1", TokenID: "loot", ControlledTokenIDs: []string{"hero"}})
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestInteractLockedContainerDenied(t *testing.T) {
	updated := false
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			if tokenID == "loot" {
				return models.LootFlags{ItemType: models.ItemTypeContainer, IsLocked: true}, true, nil
			}
			return models.LootFlags{}, false, nil
		},
		GetTokenFunc: func(tokenID string) (models.Token, error) {
			if tokenID == "loot" {
				return models.Token{ID: "loot", X: 0, Y: 0}, nil
			}
			return models.Token{ID: "hero", ActorID: "actor1", X: 50, Y: 50}, nil
		},
	}
	store := &PersistenceMock{
		UpdateTokenFunc: func(tokenID string, updates models.TokenUpdate) error {
			updated = true
			return nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, store)

	outcome, err := f.svc.Interact(InteractRequest{UserID: "player1", TokenID: "loot", ControlledTokenIDs: []string{"hero"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeLockDenied {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeLockDenied)
	}
	if updated {
		t.Error("locked interaction must not persist anything")
	}
}

func TestInteractOpenContainerTransfers(t *testing.T) {
	containerFlags := models.LootFlags{
		ItemType: models.ItemTypeContainer,
		Items:    []models.LootItem{{SourceID: "sword", Count: 2, Name: "Shortsword"}},
		Currency: models.Currency{"gp": 10},
		CanClose: true,
	}
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			if tokenID == "loot" {
				return containerFlags, true, nil
			}
			return models.LootFlags{}, false, nil
		},
		GetTokenFunc: func(tokenID string) (models.Token, error) {
			if tokenID == "loot" {
				return models.Token{ID: "loot", SceneID: "scene1", X: 0, Y: 0}, nil
			}
			return models.Token{ID: "hero", ActorID: "actor1", X: 50, Y: 50}, nil
		},
	}
	actors := &ActorDBMock{
		GetActorFunc: func(actorID string) (models.Actor, error) {
			return models.Actor{ID: actorID, Name: "Ann", Currency: models.Currency{"gp": 5}}, nil
		},
	}

	var grantedItems []models.OwnedItem
	var grantedCurrency models.Currency
	var persistedFlags *models.LootFlags
	store := &PersistenceMock{
		UpdateActorCurrencyFunc: func(actorID string, currency models.Currency) error {
			grantedCurrency = currency
			return nil
		},
		CreateOwnedItemsFunc: func(actorID string, items []models.OwnedItem) error {
			grantedItems = items
			return nil
		},
		UpdateTokenFunc: func(tokenID string, updates models.TokenUpdate) error {
			persistedFlags = updates.Flags
			return nil
		},
	}
	f := newLootFixture(tokens, actors, store)

	// The GM interacts so mutations are applied directly and observable.
	outcome, err := f.svc.Interact(InteractRequest{
		UserID:             "gm",
		SceneID:            "scene1",
		TokenID:            "loot",
		ControlledTokenIDs: []string{"hero"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeOpened {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeOpened)
	}
	if len(grantedItems) != 2 {
		t.Errorf("granted %d items, want 2", len(grantedItems))
	}
	if grantedCurrency["gp"] != 15 {
		t.Errorf("actor gp = %d, want 15", grantedCurrency["gp"])
	}
	if persistedFlags == nil {
		t.Fatal("container flags were not persisted")
	}
	if !persistedFlags.IsOpen {
		t.Error("container should be open")
	}
	if len(persistedFlags.Items) != 0 {
		t.Errorf("container still holds %d items", len(persistedFlags.Items))
	}
	if !persistedFlags.Currency.IsEmpty() {
		t.Error("container currency should be zeroed")
	}
}

func TestInteractSingleItemPickupDeletesToken(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			if tokenID == "loot" {
				return models.LootFlags{
					ItemType: models.ItemTypeItem,
					Items:    []models.LootItem{{SourceID: "gem", Count: 1, Name: "Gem"}},
				}, true, nil
			}
			return models.LootFlags{}, false, nil
		},
		GetTokenFunc: func(tokenID string) (models.Token, error) {
			if tokenID == "loot" {
				return models.Token{ID: "loot", SceneID: "scene1", X: 0, Y: 0}, nil
			}
			return models.Token{ID: "hero", ActorID: "actor1", X: 50, Y: 50}, nil
		},
	}
	actors := &ActorDBMock{
		GetActorFunc: func(actorID string) (models.Actor, error) {
			return models.Actor{ID: actorID, Name: "Ann", Currency: models.Currency{}}, nil
		},
	}

	deleted := false
	store := &PersistenceMock{
		CreateOwnedItemsFunc: func(actorID string, items []models.OwnedItem) error {
			return nil
		},
		DeleteTokenFunc: func(sceneID, tokenID string) error {
			if sceneID != "scene1" || tokenID != "loot" {
				t.Errorf("unexpected delete: %s %s", sceneID, tokenID)
			}
			deleted = true
			return nil
		},
	}
	f := newLootFixture(tokens, actors, store)
	f.sess.RegisterLootToken("scene1", "loot")

	outcome, err := f.svc.Interact(InteractRequest{
		UserID:             "gm",
		SceneID:            "scene1",
		TokenID:            "loot",
		ControlledTokenIDs: []string{"hero"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomePickedUp {
		t.Errorf("outcome = %q, want %q", outcome, OutcomePickedUp)
	}
	if !deleted {
		t.Error("loot token was not deleted")
	}
	if f.sess.IsLootToken("scene1", "loot") {
		t.Error("picked-up token should be forgotten")
	}
}

func TestSetLockedGMOnly(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			return models.LootFlags{ItemType: models.ItemTypeContainer}, true, nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, &PersistenceMock{})

	err := f.svc.SetLocked("player1", "loot", true)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestSetLockedRejectsOpenContainer(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			return models.LootFlags{ItemType: models.ItemTypeContainer, IsOpen: true}, true, nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, &PersistenceMock{})

	err := f.svc.SetLocked("gm", "loot", true)
	if !errors.Is(err, container.ErrLockedOpen) {
		t.Errorf("expected ErrLockedOpen, got %v", err)
	}
}

func TestSetLockedPersists(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlagsFunc: func(tokenID string) (models.LootFlags, bool, error) {
			return models.LootFlags{ItemType: models.ItemTypeContainer}, true, nil
		},
	}
	var persisted *models.LootFlags
	store := &PersistenceMock{
		UpdateTokenFunc: func(tokenID string, updates models.TokenUpdate) error {
			persisted = updates.Flags
			return nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, store)

	if err := f.svc.SetLocked("gm", "loot", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if persisted == nil || !persisted.IsLocked {
		t.Errorf("lock flag was not persisted: %+v", persisted)
	}
}

func TestRestoreLootTokens(t *testing.T) {
	tokens := &TokenDBMock{
		GetFlaggedTokensFunc: func() ([]models.Token, error) {
			return []models.Token{
				{ID: "tok1", SceneID: "scene1"},
				{ID: "tok2", SceneID: "scene2"},
			}, nil
		},
	}
	f := newLootFixture(tokens, &ActorDBMock{}, &PersistenceMock{})

	n, err := f.svc.RestoreLootTokens()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("restored %d tokens, want 2", n)
	}
	if !f.sess.IsLootToken("scene1", "tok1") || !f.sess.IsLootToken("scene2", "tok2") {
		t.Error("registry was not rebuilt")
	}
}
