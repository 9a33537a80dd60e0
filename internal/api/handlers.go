package api

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"loot-stix/internal/container"
	"loot-stix/internal/relay"
	"loot-stix/internal/service"
	"loot-stix/internal/session"
	"loot-stix/pkg"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handlers struct {
	AuthService service.AuthService
	LootService service.LootService
	DropService service.DropService
	Session     *session.Session
	Hub         *session.Hub
	Logger      pkg.Logger
}

// RegisterHandlers mounts the public auth endpoint and the JWT-guarded
// session API.
func RegisterHandlers(e *echo.Echo, h *Handlers, authMiddleware echo.MiddlewareFunc) {
	e.POST("/api/auth", h.PostApiAuth)

	g := e.Group("/api", authMiddleware)
	g.GET("/session", h.GetApiSession)
	g.GET("/ws", h.GetApiWebsocket)
	g.POST("/drop", h.PostApiDrop)
	g.POST("/interact", h.PostApiInteract)
	g.POST("/tokens/:id/lock", h.PostApiTokenLock)
	g.GET("/actors/:id", h.GetApiActorInfo)
}

func (h *Handlers) PostApiAuth(ctx echo.Context) error {
	var req AuthRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Invalid request body")})
	}

	token, err := h.AuthService.Authenticate(req.Username, req.Password)
	if err != nil {
		h.Logger.Warn("invalid credentials", zap.String("username", req.Username), zap.Error(err))
		return ctx.JSON(http.StatusUnauthorized, ErrorResponse{Errors: ptr("Invalid credentials")})
	}
	return ctx.JSON(http.StatusOK, AuthResponse{Token: &token})
}

// GetApiWebsocket upgrades the connection and joins the participant to
// the session; the socket then carries relay envelopes and chat.
func (h *Handlers) GetApiWebsocket(ctx echo.Context) error {
	user, err := getUserFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, ErrorResponse{Errors: ptr(err.Error())})
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		h.Logger.Error("websocket upgrade failed", zap.String("userID", user.ID), zap.Error(err))
		return err
	}

	h.Session.Join(session.Participant{ID: user.ID, Name: user.Username, IsGM: user.IsGM})
	h.Logger.Info("Participant joined session",
		zap.String("userID", user.ID), zap.Bool("isGM", user.IsGM))
	h.Hub.ServeClient(conn, user.ID)
	return nil
}

func (h *Handlers) GetApiSession(ctx echo.Context) error {
	if _, err := getUserFromContext(ctx); err != nil {
		return ctx.JSON(http.StatusUnauthorized, ErrorResponse{Errors: ptr(err.Error())})
	}
	resp := SessionResponse{AuthorityID: h.Session.AuthorityID()}
	for _, p := range h.Session.Participants() {
		resp.Participants = append(resp.Participants, ParticipantInfo{
			ID: p.ID, Name: p.Name, IsGM: p.IsGM, Active: p.Active,
		})
	}
	if sceneID := ctx.QueryParam("scene"); sceneID != "" {
		resp.LootTokens = h.Session.LootTokens(sceneID)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (h *Handlers) PostApiDrop(ctx echo.Context) error {
	user, err := getUserFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, ErrorResponse{Errors: ptr(err.Error())})
	}
	var req DropRequestBody
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Invalid request body")})
	}
	if req.SceneID == "" || req.ID == "" {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("sceneId and id are required")})
	}

	tokenID, err := h.DropService.HandleDrop(service.DropRequest{
		UserID:        user.ID,
		SceneID:       req.SceneID,
		SourceID:      req.ID,
		Collection:    req.Pack,
		ActorOriginID: req.ActorID,
		X:             req.X,
		Y:             req.Y,
		Config:        req.Config,
	})
	if err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Item not found")})
		}
		if errors.Is(err, relay.ErrCreationTimeout) {
			return ctx.JSON(http.StatusGatewayTimeout, ErrorResponse{Errors: ptr("Could not create token")})
		}
		h.Logger.Error("failed to handle drop", zap.String("userID", user.ID), zap.Error(err))
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Errors: ptr("Internal server error")})
	}
	return ctx.JSON(http.StatusOK, DropResponse{TokenID: tokenID})
}

func (h *Handlers) PostApiInteract(ctx echo.Context) error {
	user, err := getUserFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, ErrorResponse{Errors: ptr(err.Error())})
	}
	var req InteractRequestBody
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Invalid request body")})
	}

	outcome, err := h.LootService.Interact(service.InteractRequest{
		UserID:             user.ID,
		SceneID:            req.SceneID,
		TokenID:            req.TokenID,
		ControlledTokenIDs: req.Controlled,
	})
	if err != nil {
		if errors.Is(err, service.ErrPermission) || errors.Is(err, service.ErrOutOfRange) {
			return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr(err.Error())})
		}
		if errors.Is(err, service.ErrTokenNotFound) {
			return ctx.JSON(http.StatusNotFound, ErrorResponse{Errors: ptr("Token not found")})
		}
		h.Logger.Error("failed to interact",
			zap.String("userID", user.ID), zap.String("tokenID", req.TokenID), zap.Error(err))
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Errors: ptr("Internal server error")})
	}
	return ctx.JSON(http.StatusOK, InteractResponse{Outcome: string(outcome)})
}

func (h *Handlers) PostApiTokenLock(ctx echo.Context) error {
	user, err := getUserFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, ErrorResponse{Errors: ptr(err.Error())})
	}
	var req LockRequestBody
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Invalid request body")})
	}

	err = h.LootService.SetLocked(user.ID, ctx.Param("id"), req.Locked)
	if err != nil {
		if errors.Is(err, service.ErrNotAuthorized) {
			return ctx.JSON(http.StatusForbidden, ErrorResponse{Errors: ptr("Only the GM can do that")})
		}
		if errors.Is(err, service.ErrTokenNotFound) {
			return ctx.JSON(http.StatusNotFound, ErrorResponse{Errors: ptr("Token not found")})
		}
		if errors.Is(err, container.ErrLockedOpen) {
			return ctx.JSON(http.StatusConflict, ErrorResponse{Errors: ptr("Container cannot be locked while open")})
		}
		h.Logger.Error("failed to toggle lock",
			zap.String("userID", user.ID), zap.String("tokenID", ctx.Param("id")), zap.Error(err))
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Errors: ptr("Internal server error")})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Lock updated"})
}

func (h *Handlers) GetApiActorInfo(ctx echo.Context) error {
	if _, err := getUserFromContext(ctx); err != nil {
		return ctx.JSON(http.StatusUnauthorized, ErrorResponse{Errors: ptr(err.Error())})
	}

	actor, items, err := h.LootService.ActorInfo(ctx.Param("id"))
	if err != nil {
		h.Logger.Error("failed to get actor info", zap.String("actorID", ctx.Param("id")), zap.Error(err))
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Errors: ptr("Internal server error")})
	}

	resp := ActorInfoResponse{
		ID:       actor.ID,
		Name:     actor.Name,
		Currency: actor.Currency,
	}
	for _, it := range items {
		resp.Inventory = append(resp.Inventory, InventoryItem{ID: it.ID, Name: it.Name, Img: it.Img})
	}
	return ctx.JSON(http.StatusOK, resp)
}

type contextUser struct {
	ID       string
	Username string
	IsGM     bool
}

func getUserFromContext(ctx echo.Context) (contextUser, error) {
	claims := ctx.Get("user")
	if claims == nil {
		return contextUser{}, errUnauthorized("Unauthorized")
	}
	jwtClaims, ok := claims.(jwt.MapClaims)
	if !ok {
		return contextUser{}, errUnauthorized("Invalid token claims")
	}
	id, ok := jwtClaims["user_id"].(string)
	if !ok || id == "" {
		return contextUser{}, errUnauthorized("Invalid token claims")
	}
	username, _ := jwtClaims["username"].(string)
	isGM, _ := jwtClaims["is_gm"].(bool)
	return contextUser{ID: id, Username: username, IsGM: isGM}, nil
}

func ptr(s string) *string {
	return &s
}

func errUnauthorized(msg string) error {
	return errors.New(msg)
}
