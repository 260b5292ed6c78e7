package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const maxConceptTemperature = 1.9

const (
	BackendREST   = "rest"
	BackendSDK    = "sdk"
	BackendVertex = "vertex"
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	GenAIBackend        string
	GoogleCloudProject  string
	GoogleCloudLocation string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	ConceptModel          string
	ImageModel            string
	ConceptTemperature    float64
	RegenerateTemperature float64

	MaxProductImageBytes int64
	MaxLogoBytes         int64

	RequestTimeout   time.Duration
	HTTPTimeout      time.Duration
	GeminiBaseURL    string
	GeminiAPIVersion string

	WebAddr            string
	SecureCookie       bool
	SessionIdleTTL     time.Duration
	RedisURL           string
	RateLimitPerMinute int

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
}

// Load reads the shared settings. Front end specific keys are checked by
// RequireTelegram.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Debug:                 getEnvBool("TELEGRAM_DEBUG", false),
		GenAIBackend:          strings.ToLower(getEnv("GENAI_BACKEND", BackendREST)),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		PreferIPv4:            getEnvBool("PREFER_IPV4", true),
		ConceptModel:          getEnv("CONCEPT_MODEL", "gemini-2.5-pro"),
		ImageModel:            getEnv("IMAGE_MODEL", "gemini-2.5-flash-image"),
		ConceptTemperature:    getEnvFloat("CONCEPT_TEMPERATURE", 0.8),
		RegenerateTemperature: getEnvFloat("REGENERATE_TEMPERATURE", 0.95),
		MaxProductImageBytes:  int64(getEnvInt("MAX_PRODUCT_IMAGE_BYTES", 4<<20)),
		MaxLogoBytes:          int64(getEnvInt("MAX_LOGO_BYTES", 2<<20)),
		RequestTimeout:        time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		HTTPTimeout:           time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		GeminiBaseURL:         getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiAPIVersion:      getEnv("GEMINI_API_VERSION", "v1beta"),
		WebAddr:               getEnv("WEB_ADDR", ":8080"),
		SecureCookie:          getEnvBool("COOKIE_SECURE", false),
		SessionIdleTTL:        time.Duration(getEnvInt("SESSION_IDLE_TTL_MINUTES", 60)) * time.Minute,
		RedisURL:              getEnv("REDIS_URL", ""),
		RateLimitPerMinute:    getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
		MediaGroupDebounce:    time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:         getEnvInt("MAX_CONCURRENT", 4),
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	switch cfg.GenAIBackend {
	case BackendREST, BackendSDK:
		if cfg.GeminiAPIKey == "" {
			return Config{}, errors.New("GEMINI_API_KEY is required")
		}
	case BackendVertex:
		if cfg.GoogleCloudProject == "" {
			return Config{}, errors.New("GOOGLE_CLOUD_PROJECT is required for the vertex backend")
		}
	default:
		return Config{}, fmt.Errorf("GENAI_BACKEND %q is not one of rest, sdk, vertex", cfg.GenAIBackend)
	}

	if cfg.ConceptTemperature <= 0 || cfg.ConceptTemperature > 2 {
		cfg.ConceptTemperature = 0.8
	}
	// Regeneration must sample strictly hotter, so the first-time
	// temperature stops short of the model maximum.
	cfg.ConceptTemperature = min(cfg.ConceptTemperature, maxConceptTemperature)
	if cfg.RegenerateTemperature <= cfg.ConceptTemperature {
		cfg.RegenerateTemperature = cfg.ConceptTemperature + 0.1
	}
	cfg.RegenerateTemperature = min(cfg.RegenerateTemperature, 2.0)
	if cfg.MaxProductImageBytes <= 0 {
		cfg.MaxProductImageBytes = 4 << 20
	}
	if cfg.MaxLogoBytes <= 0 {
		cfg.MaxLogoBytes = 2 << 20
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = time.Hour
	}
	if cfg.RateLimitPerMinute < 0 {
		cfg.RateLimitPerMinute = 0
	}
	if cfg.MediaGroupDebounce <= 0 {
		cfg.MediaGroupDebounce = 1200 * time.Millisecond
	}

	return cfg, nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
