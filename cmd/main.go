/*
Package main is the entry point for the HiChat server.

It loads configuration, initializes the global logger, opens the configured store,
starts the chat hub and HTTP server, and shuts everything down gracefully on
SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hichat/internal/app/chat"
	"hichat/internal/app/identity"
	"hichat/internal/app/order"
	"hichat/internal/app/storage"
	"hichat/internal/app/store"
	"hichat/internal/configs"
	"hichat/internal/handler"
	"hichat/internal/pkg/logx"
	"hichat/internal/pkg/pow"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Str("store_backend", cfg.StoreBackend).
		Str("identity_policy", cfg.IdentityPolicy).
		Bool("export_enabled", cfg.ExportEnabled()).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := store.Open(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store", "backend", cfg.StoreBackend)
	}

	ids := identity.NewService(gw, cfg.JWTSecret)

	var policy chat.IdentityPolicy = chat.NewVerifiedAccountIdentity(ids)
	if cfg.IdentityPolicy == configs.PolicyAnonymous {
		policy = chat.AnonymousNameClaim{}
	}

	manager := chat.NewManager(ctx, gw, policy, chat.Options{
		HistoryLimit:           cfg.HistoryLimit,
		PersistTimeout:         cfg.PersistTimeout,
		EnforceDeleteOwnership: cfg.EnforceDeleteOwnership,
	})

	deps := &handler.AppDeps{
		Chat:     manager,
		Config:   cfg,
		Store:    gw,
		Identity: ids,
		Orders:   order.NewService(gw),
		Pow:      pow.NewManager(ctx, cfg.PowDifficulty),
	}

	if cfg.ExportEnabled() {
		objects, err := storage.NewObjectStore(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize object storage")
		}
		deps.Exporter = storage.NewExporter(objects, gw, cfg.HistoryLimit)
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("HiChat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Hijacked WebSocket connections are not tracked by Shutdown; the manager closes them.
	manager.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	if err := gw.Close(); err != nil {
		logx.Error(err, "Failed to close store")
	}

	logx.Info("Server gracefully stopped.")
}
