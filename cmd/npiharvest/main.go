// Command npiharvest runs the home health agency extraction API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/use-agent/npiharvest/api"
	"github.com/use-agent/npiharvest/cache"
	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/scraper"
	"github.com/use-agent/npiharvest/webhook"
)

func main() {
	cfg := config.Load()
	initLogger(cfg.Log)

	s, err := scraper.New(cfg)
	if err != nil {
		slog.Error("failed to start scraper", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	rc := cache.New(cfg.Cache.MaxEntries)
	notifier := webhook.New(cfg.Webhook.Secret, cfg.Webhook.Timeout)
	router := api.NewRouter(cfg, s, rc, notifier)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// initLogger installs the process-wide slog handler.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
