// Package app assembles the pieces shared by the web server and the bot:
// logging, the generative backend, the studio and view persistence.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"adstudio/internal/ad"
	"adstudio/internal/config"
	"adstudio/internal/creative"
	"adstudio/internal/gemini"
	"adstudio/internal/genaisdk"
	"adstudio/internal/session"
	"adstudio/internal/studio"
)

func NewLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func Limits(cfg config.Config) ad.Limits {
	return ad.Limits{
		ProductImageBytes: cfg.MaxProductImageBytes,
		LogoBytes:         cfg.MaxLogoBytes,
	}
}

// NewCapability returns the backend selected by GENAI_BACKEND.
func NewCapability(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (creative.Capability, error) {
	switch cfg.GenAIBackend {
	case config.BackendREST:
		return gemini.New(gemini.Options{
			APIKey:       cfg.GeminiAPIKey,
			BaseURL:      cfg.GeminiBaseURL,
			APIVersion:   cfg.GeminiAPIVersion,
			ConceptModel: cfg.ConceptModel,
			ImageModel:   cfg.ImageModel,
			HTTPClient:   httpClient,
			Logger:       logger,
		}), nil
	case config.BackendSDK, config.BackendVertex:
		return genaisdk.New(ctx, genaisdk.Options{
			Vertex:       cfg.GenAIBackend == config.BackendVertex,
			APIKey:       cfg.GeminiAPIKey,
			Project:      cfg.GoogleCloudProject,
			Location:     cfg.GoogleCloudLocation,
			ConceptModel: cfg.ConceptModel,
			ImageModel:   cfg.ImageModel,
			HTTPClient:   httpClient,
			Logger:       logger,
		})
	default:
		return nil, fmt.Errorf("unknown genai backend %q", cfg.GenAIBackend)
	}
}

func NewStudio(capability creative.Capability, cfg config.Config, logger *slog.Logger) *studio.Studio {
	return studio.New(studio.Options{
		Concepts: creative.NewGenerator(capability, creative.GeneratorOptions{
			ConceptTemperature:    cfg.ConceptTemperature,
			RegenerateTemperature: cfg.RegenerateTemperature,
			Logger:                logger,
		}),
		Renderer: creative.NewRenderer(capability),
		Logger:   logger,
	})
}

// NewPersister connects to REDIS_URL when it is set. Without it views live
// in memory only and both return values are nil.
func NewPersister(ctx context.Context, cfg config.Config, prefix string) (session.Persister, *redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil, nil
	}

	client, err := session.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	return session.NewRedisPersister(client, session.RedisOptions{
		Prefix: prefix,
		TTL:    cfg.SessionIdleTTL,
	}), client, nil
}
