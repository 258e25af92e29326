// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the GoChat service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/bot"
	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultPort           = ":8080"
	defaultOrigin         = "http://localhost:8080"
	defaultMaxMessageSize = 4096
	defaultBurst          = 5
	defaultRefill         = time.Second
	defaultLogLevel       = "info"
	defaultShutdown       = 10 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=5" validate:"gt=0"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`
}

// GeminiSettings holds the upstream text-generation settings.
type GeminiSettings struct {
	APIKey  string `env:"GEMINI_API_KEY"`
	Model   string `env:"GEMINI_MODEL,default=gemini-2.5-flash" validate:"required"`
	BaseURL string `env:"GEMINI_BASE_URL" validate:"omitempty,url"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port string `env:"SERVER_PORT,default=:8080" validate:"required"`
	// OriginList is the raw comma separated ALLOWED_ORIGINS value; it is
	// split into AllowedOrigins when loading.
	OriginList      string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	AllowedOrigins  []string      `validate:"dive,required"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=4096" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	RateLimit       RateLimitConfig
	Gemini          GeminiSettings
}

func defaultConfig() Config {
	return Config{
		Port:            defaultPort,
		OriginList:      defaultOrigin,
		AllowedOrigins:  []string{defaultOrigin},
		MaxMessageSize:  defaultMaxMessageSize,
		LogLevel:        defaultLogLevel,
		ShutdownTimeout: defaultShutdown,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefill,
		},
		Gemini: GeminiSettings{
			Model: bot.DefaultModel,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv loads an optional .env file, then reads the environment
// over the defaults and validates the result.
func NewConfigFromEnv() (*Config, error) {
	// A missing .env file is the normal case outside development.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	cfg.AllowedOrigins = parseOrigins(cfg.OriginList)

	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ApplyDefaults replaces zero values with defaults and normalizes the listen
// address in place.
func (c *Config) ApplyDefaults() {
	*c = sanitizeConfig(*c)
}

// sanitizeConfig fills zero values with defaults and normalizes the listen
// address, so that partially built configs (tests, flags) stay usable.
func sanitizeConfig(cfg Config) Config {
	cfg.Port = normalizeAddr(cfg.Port)

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefill
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if strings.TrimSpace(cfg.Gemini.Model) == "" {
		cfg.Gemini.Model = bot.DefaultModel
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// normalizeAddr accepts both "3000" and ":3000".
func normalizeAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return defaultPort
	}
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
