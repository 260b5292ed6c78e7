package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"adstudio/internal/app"
	"adstudio/internal/config"
	"adstudio/internal/httpclient"
	"adstudio/internal/session"
	"adstudio/internal/view"
	"adstudio/internal/webapi"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		UserAgent:  "adstudio-web",
	})

	capability, err := app.NewCapability(ctx, cfg, httpClient, logger)
	if err != nil {
		logger.Error("genai init failed", "err", err)
		os.Exit(1)
	}

	persister, redisClient, err := app.NewPersister(ctx, cfg, "adstudio:web:")
	if err != nil {
		logger.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	hub := webapi.NewHub(logger)

	sessions := session.NewStore(session.Options{
		Machine: view.Options{
			Generator: app.NewStudio(capability, cfg, logger),
			Timeout:   cfg.RequestTimeout,
			Logger:    logger,
		},
		IdleTTL:   cfg.SessionIdleTTL,
		Persister: persister,
		OnChange:  hub.Publish,
		Logger:    logger,
	})
	go sessions.Run(ctx, time.Minute)

	api := webapi.New(webapi.Options{
		Sessions:           sessions,
		Hub:                hub,
		Limits:             app.Limits(cfg),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SecureCookie:       cfg.SecureCookie,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web started", "addr", cfg.WebAddr, "backend", cfg.GenAIBackend, "persistent", persister != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}
