package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusconnect/backend/internal/api/handler"
	"campusconnect/backend/internal/auth"
	"campusconnect/backend/internal/chathub"
	"campusconnect/backend/internal/config"
	"campusconnect/backend/internal/logger"
	"campusconnect/backend/internal/presence"
	"campusconnect/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logr.Sync()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Dependencies
	db, err := storage.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		logr.Fatal("Failed to connect PostgreSQL", zap.Error(err))
	}
	rdb, err := storage.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logr.Fatal("Failed to connect Redis", zap.Error(err))
	}
	defer rdb.Close()
	store := storage.NewStorageService(db, rdb, logr.Named("storage"))
	logr.Info("Database and Redis connections established, migrations complete")

	// 2. Hub, presence sweeper
	registry := presence.NewRegistry()
	hub := chathub.NewManagerService(store, registry, chathub.Config{
		MatchResponseTimeout: cfg.MatchResponseTimeout,
		Logger:               logr.Named("hub"),
	})

	sweeper := presence.NewSweeper(registry, store, cfg.PresenceTTL, cfg.SweepInterval, logr.Named("sweeper"))
	sweeper.OnStale = hub.NotifyStale

	go hub.Run(ctx)
	go sweeper.Run(ctx)

	// 3. HTTP
	authenticator := auth.NewJWTAuthenticator(cfg.JWTSecret, store)
	h := handler.NewHandler(hub, authenticator, store, logr.Named("http"))
	h.SendBuffer = cfg.SendBuffer

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        handler.NewRouter(h),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logr.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("HTTP server shutdown failed", zap.Error(err))
	}
	<-hub.Done()
	if err := hub.WaitPersisted(shutdownCtx); err != nil {
		logr.Warn("Pending storage writes abandoned", zap.Error(err))
	}
	logr.Info("Server stopped")
}
