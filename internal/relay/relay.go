package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loot-stix/internal/models"
	"loot-stix/pkg"
)

var (
	// ErrCreationTimeout is returned when a relayed token creation is
	// never confirmed by the authority within the timeout window.
	ErrCreationTimeout = errors.New("token creation was not confirmed in time")
)

// OpKind tags a relayed mutation. Each kind maps to exactly one
// persistence call on the authority's side.
type OpKind string

const (
	OpDeleteToken      OpKind = "deleteToken"
	OpUpdateToken      OpKind = "updateToken"
	OpUpdateActor      OpKind = "updateActor"
	OpCreateOwnedItems OpKind = "createOwnedEntity"
	OpCreateToken      OpKind = "createItemToken"
	// OpTokenCreated confirms an OpCreateToken back to its requester.
	OpTokenCreated OpKind = "tokenCreated"
)

// Envelope is the wire form of a relayed operation.
type Envelope struct {
	Sender string          `json:"sender"`
	Type   OpKind          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

// Channel delivers envelopes to every session participant,
// at-most-once and best-effort.
type Channel interface {
	Emit(env Envelope) error
}

// Persistence is the external store mutations are applied against.
type Persistence interface {
	DeleteToken(sceneID, tokenID string) error
	UpdateToken(tokenID string, updates models.TokenUpdate) error
	UpdateActorCurrency(actorID string, currency models.Currency) error
	CreateOwnedItems(actorID string, items []models.OwnedItem) error
	CreateToken(token models.Token, flags models.LootFlags) error
}

// Roster answers who the local participant is and who currently holds
// authority (the first active GM; empty when none is present).
type Roster interface {
	LocalID() string
	AuthorityID() string
}

type DeleteTokenData struct {
	SceneID string `json:"sceneId"`
	TokenID string `json:"tokenId"`
}

type UpdateTokenData struct {
	TokenID string             `json:"tokenId"`
	Updates models.TokenUpdate `json:"updates"`
}

type UpdateActorData struct {
	ActorID  string          `json:"actorId"`
	Currency models.Currency `json:"currency"`
}

type CreateOwnedData struct {
	ActorID string             `json:"actorId"`
	Items   []models.OwnedItem `json:"items"`
}

type CreateTokenData struct {
	Correlation string           `json:"correlation"`
	Token       models.Token     `json:"token"`
	Flags       models.LootFlags `json:"flags"`
}

type TokenCreatedData struct {
	Correlation string `json:"correlation"`
	TokenID     string `json:"tokenId"`
}

// Executor is the single entry point for mutating operations on behalf
// of one participant. The authority applies directly against the
// store; everyone else emits an envelope on the channel. Delete and
// update operations are fire-and-forget once accepted for delivery;
// token creation additionally waits for its confirmation.
type Executor struct {
	roster  Roster
	store   Persistence
	ch      Channel
	log     pkg.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan string
}

func NewExecutor(roster Roster, store Persistence, ch Channel, log pkg.Logger, timeout time.Duration) *Executor {
	return &Executor{
		roster:  roster,
		store:   store,
		ch:      ch,
		log:     log,
		timeout: timeout,
		pending: make(map[string]chan string),
	}
}

func (e *Executor) isAuthority() bool {
	id := e.roster.LocalID()
	return id != "" && id == e.roster.AuthorityID()
}

func (e *Executor) emit(kind OpKind, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	if e.roster.AuthorityID() == "" {
		// Known limitation: without an active authority the envelope
		// goes nowhere. No retry, no queueing.
		e.log.Debug("no active authority, envelope will be dropped", zap.String("type", string(kind)))
	}
	return e.ch.Emit(Envelope{Sender: e.roster.LocalID(), Type: kind, Data: raw})
}

func (e *Executor) DeleteToken(sceneID, tokenID string) error {
	if e.isAuthority() {
		return e.store.DeleteToken(sceneID, tokenID)
	}
	return e.emit(OpDeleteToken, DeleteTokenData{SceneID: sceneID, TokenID: tokenID})
}

func (e *Executor) UpdateToken(tokenID string, updates models.TokenUpdate) error {
	if e.isAuthority() {
		return e.store.UpdateToken(tokenID, updates)
	}
	return e.emit(OpUpdateToken, UpdateTokenData{TokenID: tokenID, Updates: updates})
}

func (e *Executor) UpdateActorCurrency(actorID string, currency models.Currency) error {
	if e.isAuthority() {
		return e.store.UpdateActorCurrency(actorID, currency)
	}
	return e.emit(OpUpdateActor, UpdateActorData{ActorID: actorID, Currency: currency})
}

func (e *Executor) CreateOwnedItems(actorID string, items []models.OwnedItem) error {
	if e.isAuthority() {
		return e.store.CreateOwnedItems(actorID, items)
	}
	return e.emit(OpCreateOwnedItems, CreateOwnedData{ActorID: actorID, Items: items})
}

// CreateToken creates a loot token and returns its id. A
// non-authoritative participant emits the request and waits for the
// authority's confirmation, keyed by a per-request correlation id.
func (e *Executor) CreateToken(token models.Token, flags models.LootFlags) (string, error) {
	if e.isAuthority() {
		if token.ID == "" {
			token.ID = uuid.NewString()
		}
		if err := e.store.CreateToken(token, flags); err != nil {
			return "", err
		}
		return token.ID, nil
	}

	correlation := uuid.NewString()
	confirmed := make(chan string, 1)

	e.mu.Lock()
	e.pending[correlation] = confirmed
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, correlation)
		e.mu.Unlock()
	}()

	if err := e.emit(OpCreateToken, CreateTokenData{Correlation: correlation, Token: token, Flags: flags}); err != nil {
		return "", err
	}

	select {
	case tokenID := <-confirmed:
		return tokenID, nil
	case <-time.After(e.timeout):
		return "", ErrCreationTimeout
	}
}

// HandleEnvelope processes an inbound relay message from this
// participant's perspective. Own echoes are ignored; confirmations are
// matched against pending creations; everything else is applied only
// when the local participant is the authority.
func (e *Executor) HandleEnvelope(env Envelope) error {
	if env.Sender == e.roster.LocalID() {
		return nil
	}

	if env.Type == OpTokenCreated {
		var data TokenCreatedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal confirmation: %w", err)
		}
		e.mu.Lock()
		confirmed, ok := e.pending[data.Correlation]
		e.mu.Unlock()
		if ok {
			confirmed <- data.TokenID
		}
		return nil
	}

	if !e.isAuthority() {
		return nil
	}

	switch env.Type {
	case OpDeleteToken:
		var data DeleteTokenData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", env.Type, err)
		}
		return e.store.DeleteToken(data.SceneID, data.TokenID)
	case OpUpdateToken:
		var data UpdateTokenData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", env.Type, err)
		}
		return e.store.UpdateToken(data.TokenID, data.Updates)
	case OpUpdateActor:
		var data UpdateActorData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", env.Type, err)
		}
		return e.store.UpdateActorCurrency(data.ActorID, data.Currency)
	case OpCreateOwnedItems:
		var data CreateOwnedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", env.Type, err)
		}
		return e.store.CreateOwnedItems(data.ActorID, data.Items)
	case OpCreateToken:
		var data CreateTokenData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", env.Type, err)
		}
		if data.Token.ID == "" {
			data.Token.ID = uuid.NewString()
		}
		if err := e.store.CreateToken(data.Token, data.Flags); err != nil {
			return err
		}
		return e.emit(OpTokenCreated, TokenCreatedData{Correlation: data.Correlation, TokenID: data.Token.ID})
	default:
		e.log.Warn("unknown relay operation", zap.String("type", string(env.Type)))
		return nil
	}
}
