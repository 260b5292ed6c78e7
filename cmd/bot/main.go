package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"adstudio/internal/app"
	"adstudio/internal/config"
	"adstudio/internal/handlers"
	"adstudio/internal/httpclient"
	"adstudio/internal/mediagroup"
	"adstudio/internal/session"
	"adstudio/internal/telegram"
	"adstudio/internal/view"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		UserAgent:  "adstudio-bot",
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	capability, err := app.NewCapability(ctx, cfg, httpClient, logger)
	if err != nil {
		logger.Error("genai init failed", "err", err)
		os.Exit(1)
	}

	persister, redisClient, err := app.NewPersister(ctx, cfg, "adstudio:bot:")
	if err != nil {
		logger.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	handler := handlers.New(handlers.Options{
		Telegram: tg,
		Limits:   app.Limits(cfg),
		Logger:   logger,
	})

	sessions := session.NewStore(session.Options{
		Machine: view.Options{
			Generator: app.NewStudio(capability, cfg, logger),
			Timeout:   cfg.RequestTimeout,
			Logger:    logger,
		},
		IdleTTL:   cfg.SessionIdleTTL,
		Persister: persister,
		OnChange:  handler.OnViewChange,
		Logger:    logger,
	})
	handler.SetSessions(sessions)

	go sessions.Run(ctx, time.Minute)
	go sweepDrafts(ctx, handler, cfg.SessionIdleTTL)

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onGroupFlush,
	})
	defer func() {
		if n := aggregator.Pending(); n > 0 {
			logger.Warn("dropping unfinished albums", "count", n)
		}
		aggregator.Stop()
	}()
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "backend", cfg.GenAIBackend, "persistent", persister != nil)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

// sweepDrafts forgets chat drafts on the same idle schedule as the views.
func sweepDrafts(ctx context.Context, handler *handlers.Handler, ttl time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			handler.SweepDrafts(now.Add(-ttl))
		}
	}
}
