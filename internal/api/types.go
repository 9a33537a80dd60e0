package api

import (
	"loot-stix/internal/models"
	"loot-stix/internal/service"
)

type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token *string `json:"token,omitempty"`
}

type ErrorResponse struct {
	Errors *string `json:"errors,omitempty"`
}

type DropRequestBody struct {
	SceneID string                   `json:"sceneId"`
	ID      string                   `json:"id"`
	Pack    string                   `json:"pack,omitempty"`
	ActorID string                   `json:"actorId,omitempty"`
	X       float64                  `json:"x"`
	Y       float64                  `json:"y"`
	Config  *service.ContainerConfig `json:"config,omitempty"`
}

type DropResponse struct {
	TokenID string `json:"tokenId"`
}

type InteractRequestBody struct {
	SceneID    string   `json:"sceneId"`
	TokenID    string   `json:"tokenId"`
	Controlled []string `json:"controlled"`
}

type InteractResponse struct {
	Outcome string `json:"outcome"`
}

type LockRequestBody struct {
	Locked bool `json:"locked"`
}

type InventoryItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Img  string `json:"img,omitempty"`
}

type ActorInfoResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Currency  models.Currency `json:"currency"`
	Inventory []InventoryItem `json:"inventory"`
}

type ParticipantInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsGM   bool   `json:"isGm"`
	Active bool   `json:"active"`
}

type SessionResponse struct {
	AuthorityID  string            `json:"authorityId,omitempty"`
	Participants []ParticipantInfo `json:"participants"`
	LootTokens   []string          `json:"lootTokens,omitempty"`
}
