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
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chaos-io/sam2cut/config"
	"github.com/chaos-io/sam2cut/segment/sam2"
	"github.com/chaos-io/sam2cut/server"
	"github.com/chaos-io/sam2cut/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	store := session.NewStore()
	segmenter := sam2.New(sam2.Config{
		BaseURL:      cfg.ComfyURL,
		Model:        cfg.SamModel,
		PollInterval: cfg.PollInterval,
		MaxSide:      cfg.MaxImageSide,
	})

	// 闲置会话定期回收
	c := cron.New()
	if _, err = c.AddFunc(cfg.SweepSpec, func() {
		if n := store.Sweep(cfg.SessionTTL); n > 0 {
			slog.Info("swept idle sessions", "count", n, "ttl", cfg.SessionTTL)
		}
	}); err != nil {
		log.Fatal("Failed to schedule session sweep:", err)
	}
	c.Start()
	defer c.Stop()

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.New(cfg, store, segmenter).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("listening", "addr", cfg.Addr, "comfy", cfg.ComfyURL, "model", cfg.SamModel)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed:", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}
