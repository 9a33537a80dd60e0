package main

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"loot-stix/internal/api"
	"loot-stix/internal/config"
	"loot-stix/internal/container"
	"loot-stix/internal/db"
	applogger "loot-stix/internal/logger"
	"loot-stix/internal/middleware"
	"loot-stix/internal/relay"
	"loot-stix/internal/service"
	"loot-stix/internal/session"
	"loot-stix/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbConn, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	db.Migrate(dbConn, "migrations")

	zapLogger := applogger.NewLogger()
	defer func() { _ = zapLogger.Sync() }()
	logger := pkg.NewZapLogger(zapLogger)

	tokenDB := db.NewTokenDB(dbConn)
	actorDB := db.NewActorDB(dbConn)
	catalogDB := db.NewCatalogDB(dbConn)
	authDB := db.NewAuthDB(dbConn)

	sess := session.New()
	hub := session.NewHub(sess, logger)
	go hub.Run()

	store := db.NewLootStore(tokenDB, actorDB)
	relays := relay.NewManager(
		sess.RosterFor,
		store,
		hub,
		logger,
		time.Duration(cfg.CreateTimeoutMS)*time.Millisecond,
	)
	hub.SetHandler(relays.HandleEnvelope)

	images := container.Images{
		Open:   cfg.DefaultOpenImage,
		Closed: cfg.DefaultClosedImage,
	}

	authService := service.NewAuthService(authDB, logger, cfg.JWTSecret)
	lootService := service.NewLootService(
		tokenDB, actorDB, sess, relays, hub, logger,
		cfg.GridSize, images, cfg.CurrencyEnabled,
	)
	dropService := service.NewDropService(
		tokenDB, actorDB, catalogDB, sess, relays, logger,
		cfg.GridSize, images,
	)

	restored, err := lootService.RestoreLootTokens()
	if err != nil {
		log.Fatalf("Failed to restore loot tokens: %v", err)
	}
	logger.Info("Loot token registry restored", zap.Int("tokens", restored))

	e := echo.New()
	e.HideBanner = true
	e.Use(applogger.RequestLogger(zapLogger))

	handlers := &api.Handlers{
		AuthService: authService,
		LootService: lootService,
		DropService: dropService,
		Session:     sess,
		Hub:         hub,
		Logger:      logger,
	}
	api.RegisterHandlers(e, handlers, middleware.JWTAuthMiddleware(cfg.JWTSecret, logger))

	logger.Info("Starting server", zap.String("port", cfg.ServerPort))
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}
}
