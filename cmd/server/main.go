package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/admin"
	"github.com/thoughtswap/thoughtswap/internal/config"
	"github.com/thoughtswap/thoughtswap/internal/controllers"
	"github.com/thoughtswap/thoughtswap/internal/database"
	"github.com/thoughtswap/thoughtswap/internal/eventlog"
	"github.com/thoughtswap/thoughtswap/internal/identity"
	"github.com/thoughtswap/thoughtswap/internal/room"
	"github.com/thoughtswap/thoughtswap/internal/routes"
	"github.com/thoughtswap/thoughtswap/internal/store"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	st, err := newStore(cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.SeedAdmin(seedCtx, st, cfg, logger); err != nil {
		cancelSeed()
		logger.Fatal("admin seed failed", zap.Error(err))
	}
	cancelSeed()

	hub := ws.NewHub(logger)
	registry := room.NewRegistry()
	events := eventlog.New(st, logger)

	rooms := room.NewService(st, hub, registry, events, logger, room.Config{
		SurveyLink:             cfg.SurveyLink,
		DefaultMaxSwapRequests: cfg.DefaultMaxSwapRequests,
	})

	adminCtrl := &controllers.AdminController{
		Projection: admin.NewProjection(st),
		Hub:        hub,
		Events:     events,
		Log:        logger,
	}
	eventCtrl := &controllers.EventController{
		Store:  st,
		Rooms:  rooms,
		Hub:    hub,
		Events: events,
		Admin:  adminCtrl,
		Log:    logger,
	}

	var auth identity.Authenticator
	if cfg.LMSTokenURL != "" {
		auth = identity.NewLMSAuthenticator(cfg.LMSTokenURL)
	}
	oauthCtrl := &controllers.OAuthController{
		Auth:          auth,
		Store:         st,
		JWTSecret:     cfg.JWTSecret,
		UIRedirectURL: cfg.UIRedirectURL,
		Log:           logger,
	}

	resolver := identity.NewResolver(st, logger)
	wsHandler := ws.NewHandler(hub, resolver, eventCtrl, cfg.JWTSecret, logger)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	routes.Register(r, wsHandler, oauthCtrl)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		return store.NewMemory(), nil
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return store.NewGorm(db), nil
}
