// Package main provides the game server binary: the HTTP listener serving
// the WebSocket game protocol and the account endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/imposter/internal/auth"
	"github.com/cory-johannsen/imposter/internal/config"
	"github.com/cory-johannsen/imposter/internal/game/rng"
	"github.com/cory-johannsen/imposter/internal/game/room"
	"github.com/cory-johannsen/imposter/internal/game/words"
	"github.com/cory-johannsen/imposter/internal/gameserver"
	"github.com/cory-johannsen/imposter/internal/gameserver/ws"
	"github.com/cory-johannsen/imposter/internal/observability"
	"github.com/cory-johannsen/imposter/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	wordsPath := flag.String("words", "", "path to word-pair catalog file; overrides the configured path")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	catalogPath := cfg.Words.CatalogPath
	if *wordsPath != "" {
		catalogPath = *wordsPath
	}
	catalogStart := time.Now()
	catalog, err := words.LoadFromFile(catalogPath)
	if err != nil {
		logger.Fatal("loading word catalog", zap.Error(err))
	}
	logger.Info("word catalog loaded",
		zap.String("path", catalogPath),
		zap.Int("pairs", catalog.Len()),
		zap.Duration("elapsed", time.Since(catalogStart)),
	)

	registry := room.NewRegistry(
		cfg.Game.RoomCodeLength,
		catalog,
		rng.NewCryptoSource(),
		room.Options{
			MinPlayers:      cfg.Game.MinPlayers,
			DistinctStarter: cfg.Game.DistinctStarter,
		},
	)
	gateway := gameserver.NewGateway(registry, cfg.Game.GracePeriod, cfg.Server.SendBuffer, logger)

	mux := http.NewServeMux()

	var verifier ws.TokenVerifier
	if cfg.Auth.Enabled {
		tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		store := auth.NewStore(cfg.Auth.BcryptCost)
		auth.NewHandler(store, tokens, logger).Register(mux)
		verifier = tokens
		logger.Info("auth enabled", zap.Duration("token_ttl", cfg.Auth.TokenTTL))
	}

	mux.Handle("/ws", ws.NewHandler(cfg.Server, gateway, verifier, logger))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: mux,
	}

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			logger.Info("http server listening", zap.String("addr", cfg.Server.Addr()))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving on %s: %w", cfg.Server.Addr(), err)
			}
			return nil
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		},
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("rooms", registry.Count()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
