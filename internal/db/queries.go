package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"loot-stix/internal/models"
)

// flagPath is the two-level namespace the loot flag bag lives under,
// mirroring the persisted-state layout of the original module.
const flagPath = "{loot-stix,loot-stix}"

type tokenDBImplementation struct {
	db *sql.DB
}

func NewTokenDB(dbConn *sql.DB) TokenDB {
	return &tokenDBImplementation{db: dbConn}
}

func (t *tokenDBImplementation) GetToken(tokenID string) (models.Token, error) {
	var tok models.Token
	var actorID sql.NullString
	err := t.db.QueryRow(
		"SELECT id, scene_id, name, img, x, y, hidden, actor_id FROM tokens WHERE id=$1", tokenID).
		Scan(&tok.ID, &tok.SceneID, &tok.Name, &tok.Img, &tok.X, &tok.Y, &tok.Hidden, &actorID)
	if err != nil {
		return models.Token{}, fmt.Errorf("failed to get token %q: %w", tokenID, err)
	}
	tok.ActorID = actorID.String
	return tok, nil
}

func (t *tokenDBImplementation) GetSceneTokens(sceneID string) ([]models.Token, error) {
	rows, err := t.db.Query(
		"SELECT id, scene_id, name, img, x, y, hidden, actor_id FROM tokens WHERE scene_id=$1", sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scene tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var tok models.Token
		var actorID sql.NullString
		if e2 := rows.Scan(&tok.ID, &tok.SceneID, &tok.Name, &tok.Img, &tok.X, &tok.Y, &tok.Hidden, &actorID); e2 != nil {
			continue
		}
		tok.ActorID = actorID.String
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func (t *tokenDBImplementation) CreateToken(token models.Token, flags models.LootFlags) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	var actorID any
	if token.ActorID != "" {
		actorID = token.ActorID
	}
	_, err = t.db.Exec(`
INSERT INTO tokens (id, scene_id, name, img, x, y, hidden, actor_id, flags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, jsonb_build_object('loot-stix', jsonb_build_object('loot-stix', $9::jsonb)))
`, token.ID, token.SceneID, token.Name, token.Img, token.X, token.Y, token.Hidden, actorID, string(raw))
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (t *tokenDBImplementation) UpdateToken(tokenID string, updates models.TokenUpdate) error {
	if updates.Img != nil {
		if _, err := t.db.Exec("UPDATE tokens SET img=$1 WHERE id=$2", *updates.Img, tokenID); err != nil {
			return fmt.Errorf("failed to update token image: %w", err)
		}
	}
	if updates.Flags != nil {
		if err := t.SetFlags(tokenID, *updates.Flags); err != nil {
			return err
		}
	}
	return nil
}

func (t *tokenDBImplementation) DeleteToken(sceneID, tokenID string) error {
	_, err := t.db.Exec("DELETE FROM tokens WHERE id=$1 AND scene_id=$2", tokenID, sceneID)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (t *tokenDBImplementation) GetFlags(tokenID string) (models.LootFlags, bool, error) {
	var raw []byte
	err := t.db.QueryRow("SELECT flags #> '"+flagPath+"' FROM tokens WHERE id=$1", tokenID).Scan(&raw)
	if err != nil {
		return models.LootFlags{}, false, fmt.Errorf("failed to get flags for token %q: %w", tokenID, err)
	}
	if raw == nil {
		return models.LootFlags{}, false, nil
	}
	var flags models.LootFlags
	if err := json.Unmarshal(raw, &flags); err != nil {
		return models.LootFlags{}, false, fmt.Errorf("failed to unmarshal flags: %w", err)
	}
	return flags, true, nil
}

func (t *tokenDBImplementation) SetFlags(tokenID string, flags models.LootFlags) error {
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	_, err = t.db.Exec(`
UPDATE tokens
SET flags = jsonb_set(COALESCE(flags, '{}'::jsonb), '`+flagPath+`', $1::jsonb, true)
WHERE id=$2
`, string(raw), tokenID)
	if err != nil {
		return fmt.Errorf("failed to set flags: %w", err)
	}
	return nil
}

func (t *tokenDBImplementation) GetFlaggedTokens() ([]models.Token, error) {
	rows, err := t.db.Query(
		"SELECT id, scene_id, name, img, x, y, hidden, actor_id FROM tokens WHERE flags #> '" + flagPath + "' IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to query flagged tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var tok models.Token
		var actorID sql.NullString
		if e2 := rows.Scan(&tok.ID, &tok.SceneID, &tok.Name, &tok.Img, &tok.X, &tok.Y, &tok.Hidden, &actorID); e2 != nil {
			continue
		}
		tok.ActorID = actorID.String
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

type actorDBImplementation struct {
	db *sql.DB
}

func NewActorDB(dbConn *sql.DB) ActorDB {
	return &actorDBImplementation{db: dbConn}
}

func (a *actorDBImplementation) BeginTx() (*sql.Tx, error) {
	tx, err := a.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

func (a *actorDBImplementation) GetActor(actorID string) (models.Actor, error) {
	var actor models.Actor
	var raw []byte
	err := a.db.QueryRow("SELECT id, name, currency FROM actors WHERE id=$1", actorID).
		Scan(&actor.ID, &actor.Name, &raw)
	if err != nil {
		return models.Actor{}, fmt.Errorf("failed to get actor %q: %w", actorID, err)
	}
	actor.Currency = models.Currency{}
	if raw != nil {
		if e2 := json.Unmarshal(raw, &actor.Currency); e2 != nil {
			return models.Actor{}, fmt.Errorf("failed to unmarshal actor currency: %w", e2)
		}
	}
	return actor, nil
}

func (a *actorDBImplementation) SetCurrency(tx *sql.Tx, actorID string, currency models.Currency) error {
	raw, err := json.Marshal(currency)
	if err != nil {
		return fmt.Errorf("failed to marshal currency: %w", err)
	}
	_, err = tx.Exec("UPDATE actors SET currency=$1 WHERE id=$2", string(raw), actorID)
	if err != nil {
		return fmt.Errorf("failed to set actor currency: %w", err)
	}
	return nil
}

func (a *actorDBImplementation) InsertOwnedItems(tx *sql.Tx, actorID string, items []models.OwnedItem) error {
	for _, it := range items {
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(
			"INSERT INTO actor_items (id, actor_id, name, img, data) VALUES ($1, $2, $3, $4, $5)",
			id, actorID, it.Name, it.Img, string(it.Data))
		if err != nil {
			return fmt.Errorf("failed to insert owned item: %w", err)
		}
	}
	return nil
}

func (a *actorDBImplementation) GetOwnedItemForUpdate(tx *sql.Tx, actorID, itemID string) (models.OwnedItem, error) {
	var it models.OwnedItem
	var raw []byte
	err := tx.QueryRow(
		"SELECT id, actor_id, name, img, data FROM actor_items WHERE actor_id=$1 AND id=$2 FOR UPDATE",
		actorID, itemID).
		Scan(&it.ID, &it.ActorID, &it.Name, &it.Img, &raw)
	if err != nil {
		return models.OwnedItem{}, fmt.Errorf("failed to get owned item %q: %w", itemID, err)
	}
	it.Data = raw
	return it, nil
}

func (a *actorDBImplementation) DeleteOwnedItem(tx *sql.Tx, actorID, itemID string) error {
	_, err := tx.Exec("DELETE FROM actor_items WHERE actor_id=$1 AND id=$2", actorID, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete owned item: %w", err)
	}
	return nil
}

func (a *actorDBImplementation) GetInventory(actorID string) ([]models.OwnedItem, error) {
	rows, err := a.db.Query("SELECT id, actor_id, name, img, data FROM actor_items WHERE actor_id=$1", actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	var items []models.OwnedItem
	for rows.Next() {
		var it models.OwnedItem
		var raw []byte
		if e2 := rows.Scan(&it.ID, &it.ActorID, &it.Name, &it.Img, &raw); e2 != nil {
			continue
		}
		it.Data = raw
		items = append(items, it)
	}
	return items, nil
}

type catalogDBImplementation struct {
	db *sql.DB
}

func NewCatalogDB(dbConn *sql.DB) CatalogDB {
	return &catalogDBImplementation{db: dbConn}
}

func (c *catalogDBImplementation) GetSourceItem(collection, id string) (models.SourceItem, error) {
	var item models.SourceItem
	var raw []byte
	err := c.db.QueryRow(
		"SELECT id, collection, name, img, data FROM source_items WHERE collection=$1 AND id=$2",
		collection, id).
		Scan(&item.ID, &item.Collection, &item.Name, &item.Img, &raw)
	if err != nil {
		return models.SourceItem{}, fmt.Errorf("failed to get source item %q: %w", id, err)
	}
	item.Data = raw
	return item, nil
}

type authDBImplementation struct {
	db *sql.DB
}

func NewAuthDB(dbConn *sql.DB) AuthDB {
	return &authDBImplementation{db: dbConn}
}

func (a *authDBImplementation) GetUserAuthData(username string) (models.User, error) {
	var u models.User
	err := a.db.QueryRow("SELECT id, username, password_hash, is_gm FROM users WHERE username=$1", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsGM)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user auth data for '%s': %w", username, err)
	}
	return u, nil
}
