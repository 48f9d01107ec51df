package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"production"`

	// Service Ports
	HTTPPort int `env:"HTTP_PORT" default:"3000"`

	// Upstream feed
	UpstreamHost   string        `env:"UPSTREAM_HOST" default:"https://livetiming.formula1.com/signalr"`
	UpstreamHub    string        `env:"UPSTREAM_HUB" default:"Streaming"`
	UpstreamTopics []string      `env:"UPSTREAM_TOPICS"`
	NegotiateRate  rate.Limit    `env:"NEGOTIATE_RATE" default:"1"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" default:"10s"`

	// State and liveness
	EmptyFrameThreshold   int           `env:"EMPTY_FRAME_THRESHOLD" default:"5"`
	StalenessWindow       time.Duration `env:"STALENESS_WINDOW" default:"30s"`
	MinMeaningfulMessages int           `env:"MIN_MEANINGFUL_MESSAGES" default:"3"`

	// Downstream
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" default:"1s"`
	WSSendBuffer      int           `env:"WS_SEND_BUFFER" default:"16"`
	WSUpgradeRate     rate.Limit    `env:"WS_UPGRADE_RATE" default:"20"`
	CORSOrigins       []string      `env:"CORS_ORIGINS" default:"http://localhost:3000"`

	// Redis mirror, disabled when REDIS_URL is empty
	RedisURL      string        `env:"REDIS_URL"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"CACHE_TTL" default:"1h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// LoadConfig loads configuration from .env and the process environment
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(".env")
}

// LoadConfigFrom loads envFile first, then reads environment variables. A missing file is
// not an error; system env vars are enough.
func LoadConfigFrom(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			slog.Warn("env_file_not_loaded", "path", envFile, "error", err.Error())
		}
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "production"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 3000); err != nil {
		return nil, err
	}

	// Upstream
	if err := loadEnvString(&config.UpstreamHost, "UPSTREAM_HOST", "https://livetiming.formula1.com/signalr"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.UpstreamHub, "UPSTREAM_HUB", "Streaming"); err != nil {
		return nil, err
	}
	if err := loadEnvStringSlice(&config.UpstreamTopics, "UPSTREAM_TOPICS", nil); err != nil {
		return nil, err
	}
	if err := loadEnvRate(&config.NegotiateRate, "NEGOTIATE_RATE", 1); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.RetryDelay, "RETRY_DELAY", 10*time.Second); err != nil {
		return nil, err
	}

	// State and liveness
	if err := loadEnvInt(&config.EmptyFrameThreshold, "EMPTY_FRAME_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.StalenessWindow, "STALENESS_WINDOW", 30*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MinMeaningfulMessages, "MIN_MEANINGFUL_MESSAGES", 3); err != nil {
		return nil, err
	}

	// Downstream
	if err := loadEnvDuration(&config.BroadcastInterval, "BROADCAST_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.WSSendBuffer, "WS_SEND_BUFFER", 16); err != nil {
		return nil, err
	}
	if err := loadEnvRate(&config.WSUpgradeRate, "WS_UPGRADE_RATE", 20); err != nil {
		return nil, err
	}
	if err := loadEnvStringSlice(&config.CORSOrigins, "CORS_ORIGINS", []string{"http://localhost:3000"}); err != nil {
		return nil, err
	}

	// Redis
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.CacheTTL, "CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}

	// Logging
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// loadEnvRate reads events per second; "inf" disables the limit
func loadEnvRate(target *rate.Limit, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		if strings.EqualFold(value, "inf") {
			*target = rate.Inf
			return nil
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid rate value for %s: %v", key, err)
		}
		*target = rate.Limit(parsed)
	} else {
		*target = rate.Limit(defaultValue)
	}
	return nil
}

func loadEnvStringSlice(target *[]string, key string, defaultValue []string) error {
	if value := os.Getenv(key); value != "" {
		*target = (*target)[:0]
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				*target = append(*target, v)
			}
		}
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.UpstreamHost, "http://") && !strings.HasPrefix(c.UpstreamHost, "https://") {
		errors = append(errors, "UPSTREAM_HOST must be an http(s) URL")
	}
	if c.UpstreamHub == "" {
		errors = append(errors, "UPSTREAM_HUB must not be empty")
	}
	if c.NegotiateRate <= 0 {
		errors = append(errors, "NEGOTIATE_RATE must be positive")
	}
	if c.WSUpgradeRate <= 0 {
		errors = append(errors, "WS_UPGRADE_RATE must be positive")
	}
	if c.RetryDelay <= 0 {
		errors = append(errors, "RETRY_DELAY must be positive")
	}
	if len(c.CORSOrigins) == 0 {
		errors = append(errors, "CORS_ORIGINS must not be empty")
	}
	for _, origin := range c.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errors = append(errors, fmt.Sprintf("CORS_ORIGINS entry %q must be * or an http(s) origin", origin))
		}
	}
	if c.BroadcastInterval <= 0 {
		errors = append(errors, "BROADCAST_INTERVAL must be positive")
	}
	if c.StalenessWindow <= 0 {
		errors = append(errors, "STALENESS_WINDOW must be positive")
	}
	if c.MinMeaningfulMessages < 0 {
		errors = append(errors, "MIN_MEANINGFUL_MESSAGES must not be negative")
	}
	if c.EmptyFrameThreshold < 1 {
		errors = append(errors, "EMPTY_FRAME_THRESHOLD must be at least 1")
	}
	if c.WSSendBuffer < 1 {
		errors = append(errors, "WS_SEND_BUFFER must be at least 1")
	}
	if c.RedisURL != "" && c.CacheTTL <= 0 {
		errors = append(errors, "CACHE_TTL must be positive when REDIS_URL is set")
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	// Validate log format
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// EmptyFrameGuard is the empty-frame reset threshold in effect; development disables it
func (c *Config) EmptyFrameGuard() int {
	if c.IsDevelopment() {
		return 0
	}
	return c.EmptyFrameThreshold
}

// SendInactiveState reports whether ticks judged inactive still carry the document.
// Only development opts in; everywhere else an inactive tick is `{}`.
func (c *Config) SendInactiveState() bool {
	return c.IsDevelopment()
}

// SlogLevel maps LogLevel onto slog
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
