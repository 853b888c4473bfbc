package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ludoduel/internal/config"
	httpServer "ludoduel/internal/http"
	"ludoduel/internal/identity"
	"ludoduel/internal/lobby"
	"ludoduel/internal/logger"
	"ludoduel/internal/match"
	"ludoduel/internal/repository"
	"ludoduel/internal/service"
	"ludoduel/internal/store"
	"ludoduel/internal/ws"
)

// Version устанавливается при сборке
var Version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat == "json")
	log := logger.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connect failed", "error", err)
	}
	defer st.Close()

	// история матчей опциональна: без DATABASE_URL играем без неё
	var history *repository.HistoryRepository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn("postgres connect failed, history disabled", "error", err)
		} else {
			defer pool.Close()
			history = repository.NewHistoryRepository(pool)
			if err := history.EnsureSchema(ctx); err != nil {
				log.Warn("history schema init failed, history disabled", "error", err)
				history = nil
			}
		}
	}

	clientID := identity.NewClientID()
	lb := lobby.New(st, cfg.RoomID)
	engine := match.NewEngine(st, cfg.RoomID, cfg.MatchDuration)
	hub := ws.NewHub()
	session := service.NewSession(clientID, cfg.RoomID, lb, engine, hub, history)

	r := httpServer.NewRouter(session, hub, history, Version)
	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		log.Info("server started", "port", cfg.AppPort, "version", Version,
			"room", cfg.RoomID, "client", clientID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- session.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down...")
		// отмена ctx гасит подписки; ждём сессию, чтобы она успела
		// освободить своё место в лобби
		cancel()
		select {
		case <-sessionDone:
		case <-time.After(3 * time.Second):
			log.Warn("session did not stop in time")
		}
	case err := <-sessionDone:
		if err != nil {
			if errors.Is(err, lobby.ErrLobbyFull) {
				log.Error("lobby full, try again later")
			} else {
				log.Error("session stopped", "error", err)
			}
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
