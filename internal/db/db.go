package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"loot-stix/internal/config"
	"loot-stix/internal/models"
)

type TokenDB interface {
	GetToken(tokenID string) (models.Token, error)
	GetSceneTokens(sceneID string) ([]models.Token, error)
	CreateToken(token models.Token, flags models.LootFlags) error
	UpdateToken(tokenID string, updates models.TokenUpdate) error
	DeleteToken(sceneID, tokenID string) error
	GetFlags(tokenID string) (models.LootFlags, bool, error)
	SetFlags(tokenID string, flags models.LootFlags) error
	// GetFlaggedTokens returns every token carrying loot flags, used to
	// rebuild the session's loot registry at startup.
	GetFlaggedTokens() ([]models.Token, error)
}

type ActorDB interface {
	BeginTx() (*sql.Tx, error)
	GetActor(actorID string) (models.Actor, error)
	SetCurrency(tx *sql.Tx, actorID string, currency models.Currency) error
	InsertOwnedItems(tx *sql.Tx, actorID string, items []models.OwnedItem) error
	GetOwnedItemForUpdate(tx *sql.Tx, actorID, itemID string) (models.OwnedItem, error)
	DeleteOwnedItem(tx *sql.Tx, actorID, itemID string) error
	GetInventory(actorID string) ([]models.OwnedItem, error)
}

type CatalogDB interface {
	GetSourceItem(collection, id string) (models.SourceItem, error)
}

type AuthDB interface {
	GetUserAuthData(username string) (models.User, error)
}

func Connect(cfg *config.Config) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUser,
		cfg.DatabasePassword,
		cfg.DatabaseName,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}
