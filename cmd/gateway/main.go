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

	"go.uber.org/zap"

	"github.com/ericksa/clauseguard/internal/api"
	"github.com/ericksa/clauseguard/internal/app"
	"github.com/ericksa/clauseguard/internal/config"
	"github.com/ericksa/clauseguard/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	l, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to build gateway", zap.Error(err))
	}
	defer a.Close()

	srv := newServer(a)

	go func() {
		l.Info("starting clauseguard gateway",
			zap.String("addr", cfg.Server.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model),
			zap.Bool("retrieval", a.Retriever != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server error", zap.Error(err))
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	l.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server shutdown error", zap.Error(err))
		os.Exit(1)
	}
	l.Info("server stopped")
}

func newServer(a *app.App) *http.Server {
	cfg := a.Config
	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.New(a.Tools, a.Auditor, cfg, a.Logger).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
