package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/Mournian-ai/Mournian-Overlay/internal/app"
	"github.com/Mournian-ai/Mournian-Overlay/internal/broadcast"
	"github.com/Mournian-ai/Mournian-Overlay/internal/config"
	"github.com/Mournian-ai/Mournian-Overlay/internal/crypto"
	"github.com/Mournian-ai/Mournian-Overlay/internal/domain"
	"github.com/Mournian-ai/Mournian-Overlay/internal/eventsub"
	"github.com/Mournian-ai/Mournian-Overlay/internal/logging"
	"github.com/Mournian-ai/Mournian-Overlay/internal/server"
	"github.com/Mournian-ai/Mournian-Overlay/internal/store"
	"github.com/Mournian-ai/Mournian-Overlay/internal/twitch"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(cfg *config.Config) *store.Store {
	var cryptoSvc crypto.Service = crypto.NoopService{}
	if cfg.TokenEncryptionKey != "" {
		var err error
		cryptoSvc, err = crypto.NewAesGcmService(cfg.TokenEncryptionKey)
		if err != nil {
			slog.Error("Failed to create crypto service", "error", err)
			os.Exit(1)
		}
	}

	st, err := store.Open(cfg.StorePath, cryptoSvc)
	if err != nil {
		slog.Error("Failed to open store", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	return st
}

func runGracefulShutdown(srv *server.Server, workers *app.Service, hub *broadcast.Hub, cfg *config.Config) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		workers.Stop()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	st := setupStore(cfg)

	tokens := twitch.NewTokenSource(st, cfg.OAuthURL)
	ids := twitch.NewIdentityResolver(st, cfg.HelixURL)
	subs := twitch.NewSubscriptionManager(st, tokens, cfg.HelixURL)
	oauth := twitch.NewOAuthClient(st, cfg.OAuthURL)

	hub := broadcast.NewHub(func() domain.Message {
		return domain.BootstrapMessage(st.Latest())
	}, cfg.MaxObservers, clock)

	workers := app.NewService(func() *eventsub.Worker {
		return eventsub.New(eventsub.Config{URL: cfg.EventSubURL}, st, tokens, ids, subs, hub, clock)
	})
	workers.Start()

	srv := server.NewServer(cfg, st, hub, workers, tokens, oauth)

	done := runGracefulShutdown(srv, workers, hub, cfg)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
