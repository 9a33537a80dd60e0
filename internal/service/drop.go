package service

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"loot-stix/internal/container"
	"loot-stix/internal/db"
	"loot-stix/internal/models"
	"loot-stix/internal/relay"
	"loot-stix/internal/session"
	"loot-stix/pkg"
)

// ContainerConfig is the drop-time configuration deciding whether the
// new token is a plain pickup or a container.
type ContainerConfig struct {
	IsContainer bool   `json:"isContainer"`
	IsLocked    bool   `json:"isLocked"`
	CanClose    bool   `json:"canClose"`
	OpenImage   string `json:"imageContainerOpenPath,omitempty"`
	ClosedImage string `json:"imageContainerClosedPath,omitempty"`
}

type DropRequest struct {
	UserID        string
	SceneID       string
	SourceID      string
	Collection    string
	ActorOriginID string
	X             float64
	Y             float64
	Config        *ContainerConfig
}

type DropService interface {
	// HandleDrop resolves a drop descriptor into a loot token, a
	// container merge, or a direct grant, and returns the id of the
	// token that received the item.
	HandleDrop(req DropRequest) (string, error)
}

type dropService struct {
	tokens   db.TokenDB
	actors   db.ActorDB
	catalog  db.CatalogDB
	sess     *session.Session
	relays   *relay.Manager
	log      pkg.Logger
	gridSize float64
	images   container.Images
}

func NewDropService(
	tokens db.TokenDB,
	actors db.ActorDB,
	catalog db.CatalogDB,
	sess *session.Session,
	relays *relay.Manager,
	log pkg.Logger,
	gridSize float64,
	images container.Images,
) DropService {
	return &dropService{
		tokens:   tokens,
		actors:   actors,
		catalog:  catalog,
		sess:     sess,
		relays:   relays,
		log:      log,
		gridSize: gridSize,
		images:   images,
	}
}

func (s *dropService) HandleDrop(req DropRequest) (string, error) {
	item, err := s.resolveSource(req)
	if err != nil {
		return "", err
	}

	exec := s.relays.For(req.UserID)

	// A drop landing on an existing token merges into a container or
	// grants straight to an actor instead of creating a new token.
	if target, ok := s.tokenAt(req.SceneID, req.X, req.Y); ok {
		flags, isLoot, ferr := s.tokens.GetFlags(target.ID)
		if ferr == nil && isLoot && flags.ItemType == models.ItemTypeContainer {
			return target.ID, s.mergeIntoContainer(exec, target, flags, item)
		}
		if target.ActorID != "" {
			owned := []models.OwnedItem{{Name: item.Name, Img: item.Img, Data: item.Data}}
			if gerr := exec.CreateOwnedItems(target.ActorID, owned); gerr != nil {
				s.log.Error("failed to grant dropped item", zap.String("actorID", target.ActorID), zap.Error(gerr))
				return "", gerr
			}
			s.log.Info("Dropped item granted to actor",
				zap.String("actorID", target.ActorID), zap.String("item", item.Name))
			return target.ID, nil
		}
	}

	x, y := s.snapToGrid(req.X, req.Y)
	flags := s.initialFlags(item, req.Config)
	img := item.Img
	if flags.ItemType == models.ItemTypeContainer {
		img = container.ImageFor(flags, s.images)
	}

	tokenID, err := exec.CreateToken(models.Token{
		SceneID: req.SceneID,
		Name:    item.Name,
		Img:     img,
		X:       x,
		Y:       y,
	}, flags)
	if err != nil {
		s.log.Error("failed to create loot token",
			zap.String("sceneID", req.SceneID), zap.String("item", item.Name), zap.Error(err))
		return "", err
	}

	s.sess.RegisterLootToken(req.SceneID, tokenID)
	s.log.Info("Loot token created",
		zap.String("tokenID", tokenID),
		zap.String("sceneID", req.SceneID),
		zap.String("item", item.Name))
	return tokenID, nil
}

// resolveSource captures the item snapshot. A drop out of an actor's
// inventory removes the item from that actor; otherwise the catalog is
// consulted.
func (s *dropService) resolveSource(req DropRequest) (models.SourceItem, error) {
	if req.ActorOriginID != "" {
		tx, err := s.actors.BeginTx()
		if err != nil {
			return models.SourceItem{}, err
		}
		defer func() { _ = tx.Rollback() }()

		owned, err := s.actors.GetOwnedItemForUpdate(tx, req.ActorOriginID, req.SourceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.SourceItem{}, ErrItemNotFound
			}
			return models.SourceItem{}, err
		}
		if err := s.actors.DeleteOwnedItem(tx, req.ActorOriginID, req.SourceID); err != nil {
			return models.SourceItem{}, err
		}
		if err := tx.Commit(); err != nil {
			return models.SourceItem{}, fmt.Errorf("failed to commit inventory removal: %w", err)
		}
		return models.SourceItem{
			ID:   owned.ID,
			Name: owned.Name,
			Img:  owned.Img,
			Data: owned.Data,
		}, nil
	}

	item, err := s.catalog.GetSourceItem(req.Collection, req.SourceID)
	if err != nil {
		s.log.Warn("dropped item not found in catalog",
			zap.String("sourceID", req.SourceID), zap.String("collection", req.Collection), zap.Error(err))
		return models.SourceItem{}, ErrItemNotFound
	}
	return item, nil
}

func (s *dropService) mergeIntoContainer(exec *relay.Executor, target models.Token, flags models.LootFlags, item models.SourceItem) error {
	merged := false
	for i := range flags.Items {
		if flags.Items[i].SourceID == item.ID && flags.Items[i].Collection == item.Collection {
			flags.Items[i].Count++
			merged = true
			break
		}
	}
	if !merged {
		flags.Items = append(flags.Items, models.LootItem{
			SourceID:   item.ID,
			Collection: item.Collection,
			Count:      1,
			Name:       item.Name,
			Img:        item.Img,
			Data:       item.Data,
		})
	}
	if err := exec.UpdateToken(target.ID, models.TokenUpdate{Flags: &flags}); err != nil {
		s.log.Error("failed to merge item into container",
			zap.String("tokenID", target.ID), zap.String("item", item.Name), zap.Error(err))
		return err
	}
	s.log.Info("Dropped item merged into container",
		zap.String("tokenID", target.ID), zap.String("item", item.Name))
	return nil
}

// tokenAt finds the topmost token whose grid cell contains the point.
func (s *dropService) tokenAt(sceneID string, x, y float64) (models.Token, bool) {
	tokens, err := s.tokens.GetSceneTokens(sceneID)
	if err != nil {
		s.log.Error("failed to query scene tokens", zap.String("sceneID", sceneID), zap.Error(err))
		return models.Token{}, false
	}
	for _, t := range tokens {
		if x > t.X && x < t.X+s.gridSize && y > t.Y && y < t.Y+s.gridSize {
			return t, true
		}
	}
	return models.Token{}, false
}

// snapToGrid centers the drop point on its cell and snaps to the grid.
func (s *dropService) snapToGrid(x, y float64) (float64, float64) {
	x -= s.gridSize / 2
	y -= s.gridSize / 2
	return math.Round(x/s.gridSize) * s.gridSize, math.Round(y/s.gridSize) * s.gridSize
}

func (s *dropService) initialFlags(item models.SourceItem, cfg *ContainerConfig) models.LootFlags {
	flags := models.LootFlags{
		ItemType: models.ItemTypeItem,
		Items: []models.LootItem{{
			SourceID:   item.ID,
			Collection: item.Collection,
			Count:      1,
			Name:       item.Name,
			Img:        item.Img,
			Data:       item.Data,
		}},
		ImageOriginal: item.Img,
	}
	if cfg != nil && cfg.IsContainer {
		flags.ItemType = models.ItemTypeContainer
		flags.IsLocked = cfg.IsLocked
		flags.CanClose = cfg.CanClose
		flags.ImageOpenPath = cfg.OpenImage
		flags.ImageClosedPath = cfg.ClosedImage
	}
	return flags
}
