package service

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"loot-stix/internal/container"
	"loot-stix/internal/db"
	"loot-stix/internal/models"
	"loot-stix/internal/relay"
	"loot-stix/internal/session"
	"loot-stix/internal/transfer"
	"loot-stix/pkg"
)

var (
	ErrPermission    = errors.New("you must be controlling only one token to pick up an item")
	ErrOutOfRange    = errors.New("you are too far away to interact with that")
	ErrNotAuthorized = errors.New("only the GM can do that")
	ErrItemNotFound  = errors.New("item not found")
	ErrTokenNotFound = errors.New("token not found")
)

// InteractOutcome tells the caller what an interaction resolved to, so
// the transport layer can pick the right feedback.
type InteractOutcome string

const (
	// OutcomeNormalClick means the token is not interactable loot from
	// this participant's point of view; the client should fall back to
	// its default click behaviour.
	OutcomeNormalClick InteractOutcome = "normal-click"
	OutcomeNone        InteractOutcome = "none"
	OutcomeLockDenied  InteractOutcome = "lock-denied"
	OutcomeOpened      InteractOutcome = "opened"
	OutcomeClosed      InteractOutcome = "closed"
	OutcomePickedUp    InteractOutcome = "picked-up"
)

type InteractRequest struct {
	UserID             string
	SceneID            string
	TokenID            string
	ControlledTokenIDs []string
}

type LootService interface {
	// Interact processes one click on a loot token.
	Interact(req InteractRequest) (InteractOutcome, error)

	// SetLocked flips the lock flag on a container token. GM only.
	SetLocked(userID, tokenID string, locked bool) error

	// ActorInfo returns an actor's currency and inventory.
	ActorInfo(actorID string) (models.Actor, []models.OwnedItem, error)

	// RestoreLootTokens rebuilds the session's loot-token registry from
	// persisted flags; called once at startup.
	RestoreLootTokens() (int, error)
}

type lootService struct {
	tokens          db.TokenDB
	actors          db.ActorDB
	sess            *session.Session
	relays          *relay.Manager
	hub             *session.Hub
	log             pkg.Logger
	gridSize        float64
	images          container.Images
	currencyEnabled bool
}

func NewLootService(
	tokens db.TokenDB,
	actors db.ActorDB,
	sess *session.Session,
	relays *relay.Manager,
	hub *session.Hub,
	log pkg.Logger,
	gridSize float64,
	images container.Images,
	currencyEnabled bool,
) LootService {
	return &lootService{
		tokens:          tokens,
		actors:          actors,
		sess:            sess,
		relays:          relays,
		hub:             hub,
		log:             log,
		gridSize:        gridSize,
		images:          images,
		currencyEnabled: currencyEnabled,
	}
}

func (s *lootService) Interact(req InteractRequest) (InteractOutcome, error) {
	flags, isLoot, err := s.tokens.GetFlags(req.TokenID)
	if err != nil {
		s.log.Error("failed to load token flags", zap.String("tokenID", req.TokenID), zap.Error(err))
		return "", fmt.Errorf("failed to load token flags: %w", err)
	}
	if !isLoot {
		return OutcomeNormalClick, nil
	}

	tok, err := s.tokens.GetToken(req.TokenID)
	if err != nil {
		s.log.Error("failed to load token", zap.String("tokenID", req.TokenID), zap.Error(err))
		return "", ErrTokenNotFound
	}
	if tok.Hidden {
		return OutcomeNormalClick, nil
	}

	participant, _ := s.sess.Participant(req.UserID)
	if participant.IsGM {
		if len(req.ControlledTokenIDs) == 0 {
			return OutcomeNormalClick, nil
		}
		if len(req.ControlledTokenIDs) == 1 && req.ControlledTokenIDs[0] == req.TokenID {
			// The GM is only controlling the loot token itself.
			return OutcomeNormalClick, nil
		}
	}

	if len(req.ControlledTokenIDs) != 1 {
		return "", ErrPermission
	}
	controlled, err := s.tokens.GetToken(req.ControlledTokenIDs[0])
	if err != nil {
		return "", ErrPermission
	}
	if controlled.ActorID == "" {
		return "", ErrPermission
	}
	if _, controlledIsLoot, _ := s.tokens.GetFlags(controlled.ID); controlledIsLoot {
		// Loot can't pick up loot.
		return "", ErrPermission
	}

	dist := math.Hypot(controlled.X-tok.X, controlled.Y-tok.Y)
	if dist > math.Hypot(s.gridSize, s.gridSize) {
		return "", ErrOutOfRange
	}

	res := container.Interact(flags)
	exec := s.relays.For(req.UserID)

	switch res.Action {
	case container.ActionDenied:
		return OutcomeLockDenied, nil
	case container.ActionNone:
		return OutcomeNone, nil
	case container.ActionClose:
		if err := s.updateLootToken(exec, tok, res.Flags); err != nil {
			return "", err
		}
		return OutcomeClosed, nil
	}

	// ActionOpen or ActionPickup: the loot moves to the controlling
	// actor before the container itself is updated or removed.
	actor, err := s.actors.GetActor(controlled.ActorID)
	if err != nil {
		s.log.Error("failed to load actor", zap.String("actorID", controlled.ActorID), zap.Error(err))
		return "", fmt.Errorf("failed to load actor: %w", err)
	}

	plan := transfer.BuildPlan(res.Flags.Items, res.Flags.Currency, actor.Currency, s.currencyEnabled)
	if err := s.applyPlan(exec, req.UserID, plan, actor, controlled, req.SceneID); err != nil {
		return "", err
	}
	res.Flags.Items = plan.ContainerItems
	res.Flags.Currency = plan.ContainerCurrency

	if res.DeleteToken {
		if err := exec.DeleteToken(tok.SceneID, tok.ID); err != nil {
			s.log.Error("failed to delete loot token", zap.String("tokenID", tok.ID), zap.Error(err))
			return "", err
		}
		s.sess.ForgetLootToken(tok.SceneID, tok.ID)
		s.log.Info("Loot token picked up",
			zap.String("tokenID", tok.ID),
			zap.String("actorID", actor.ID))
		return OutcomePickedUp, nil
	}

	if err := s.updateLootToken(exec, tok, res.Flags); err != nil {
		return "", err
	}
	s.log.Info("Container opened",
		zap.String("tokenID", tok.ID),
		zap.String("actorID", actor.ID),
		zap.Int("items", len(plan.Creations)))
	return OutcomeOpened, nil
}

func (s *lootService) applyPlan(exec *relay.Executor, userID string, plan transfer.Plan, actor models.Actor, controlled models.Token, sceneID string) error {
	if plan.Empty() {
		return nil
	}
	if plan.CurrencyMoved {
		if err := exec.UpdateActorCurrency(actor.ID, plan.ActorCurrency); err != nil {
			s.log.Error("failed to update actor currency", zap.String("actorID", actor.ID), zap.Error(err))
			return err
		}
	}
	if len(plan.Creations) > 0 {
		if err := exec.CreateOwnedItems(actor.ID, plan.Creations); err != nil {
			s.log.Error("failed to grant items", zap.String("actorID", actor.ID), zap.Error(err))
			return err
		}
	}
	speaker := session.ChatSpeaker{
		Alias:   actor.Name,
		SceneID: sceneID,
		ActorID: actor.ID,
		TokenID: controlled.ID,
	}
	for _, n := range plan.Notices {
		s.hub.BroadcastChat(userID, session.ChatMessage{
			Content: n.Text,
			Img:     n.Img,
			Speaker: speaker,
		})
	}
	return nil
}

func (s *lootService) updateLootToken(exec *relay.Executor, tok models.Token, flags models.LootFlags) error {
	img := container.ImageFor(flags, s.images)
	update := models.TokenUpdate{Flags: &flags}
	if img != "" {
		update.Img = &img
	}
	if err := exec.UpdateToken(tok.ID, update); err != nil {
		s.log.Error("failed to update loot token", zap.String("tokenID", tok.ID), zap.Error(err))
		return err
	}
	return nil
}

func (s *lootService) SetLocked(userID, tokenID string, locked bool) error {
	participant, ok := s.sess.Participant(userID)
	if !ok || !participant.IsGM {
		return ErrNotAuthorized
	}
	flags, isLoot, err := s.tokens.GetFlags(tokenID)
	if err != nil {
		return fmt.Errorf("failed to load token flags: %w", err)
	}
	if !isLoot {
		return ErrTokenNotFound
	}
	updated, err := container.SetLocked(flags, locked)
	if err != nil {
		return err
	}
	if err := s.relays.For(userID).UpdateToken(tokenID, models.TokenUpdate{Flags: &updated}); err != nil {
		s.log.Error("failed to toggle lock", zap.String("tokenID", tokenID), zap.Error(err))
		return err
	}
	s.log.Info("Lock toggled", zap.String("tokenID", tokenID), zap.Bool("locked", locked))
	return nil
}

func (s *lootService) ActorInfo(actorID string) (models.Actor, []models.OwnedItem, error) {
	actor, err := s.actors.GetActor(actorID)
	if err != nil {
		s.log.Error("failed to get actor", zap.String("actorID", actorID), zap.Error(err))
		return models.Actor{}, nil, err
	}
	items, err := s.actors.GetInventory(actorID)
	if err != nil {
		s.log.Error("failed to get inventory", zap.String("actorID", actorID), zap.Error(err))
		return models.Actor{}, nil, err
	}
	return actor, items, nil
}

func (s *lootService) RestoreLootTokens() (int, error) {
	tokens, err := s.tokens.GetFlaggedTokens()
	if err != nil {
		return 0, fmt.Errorf("failed to scan loot tokens: %w", err)
	}
	for _, tok := range tokens {
		s.sess.RegisterLootToken(tok.SceneID, tok.ID)
	}
	return len(tokens), nil
}
