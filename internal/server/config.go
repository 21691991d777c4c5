// Package server provides configuration loading that layers YAML files and
// environment overrides onto runtime defaults for the chat service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/history"
	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-session chat rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EventsConfig configures lifecycle event publishing. An empty NATSURL
// disables publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	TCPAddr           string          `yaml:"tcp_addr"`
	HTTPAddr          string          `yaml:"http_addr"`
	AllowedOrigins    []string        `yaml:"allowed_origins"`
	MaxMessageSize    int64           `yaml:"max_message_size"`
	SendBuffer        int             `yaml:"send_buffer"`
	MaxNicknameLength int             `yaml:"max_nickname_length"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	ShutdownTimeout   time.Duration   `yaml:"shutdown_timeout"`

	History history.Config `yaml:"history"`
	Events  EventsConfig   `yaml:"events"`
	Log     LogConfig      `yaml:"log"`
}

const (
	defaultTCPAddr         = ":12345"
	defaultHTTPAddr        = ":8080"
	defaultMaxMessageSize  = 4096
	defaultSendBuffer      = 256
	defaultRateBurst       = 10
	defaultRefillInterval  = time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() *Config {
	return &Config{
		TCPAddr:  defaultTCPAddr,
		HTTPAddr: defaultHTTPAddr,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:    defaultMaxMessageSize,
		SendBuffer:        defaultSendBuffer,
		MaxNicknameLength: 32,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateBurst,
			RefillInterval: defaultRefillInterval,
		},
		ShutdownTimeout: defaultShutdownTimeout,
		History: history.Config{
			Backend: history.BackendFile,
			Dir:     history.DefaultDir,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig builds a Config from defaults, then the YAML file at path (if
// path is non-empty), then environment variables. Invalid values fall back to
// their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	sanitizeConfig(cfg)
	return cfg, nil
}

func sanitizeConfig(cfg *Config) {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	if cfg.MaxNicknameLength <= 0 {
		cfg.MaxNicknameLength = 32
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = history.BackendFile
	}

	if cfg.History.Dir == "" {
		cfg.History.Dir = history.DefaultDir
	}
}

// applyEnv overrides cfg with any recognized environment variables.
func applyEnv(cfg *Config) {
	// Listener addresses; an explicit empty value is not distinguishable from
	// unset, so disabling a listener requires the config file.
	if addr := os.Getenv("CHAT_TCP_ADDR"); addr != "" {
		cfg.TCPAddr = addr
	}
	if addr := os.Getenv("CHAT_HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if backend := os.Getenv("CHAT_HISTORY_BACKEND"); backend != "" {
		cfg.History.Backend = strings.ToLower(strings.TrimSpace(backend))
	}
	if dir := os.Getenv("CHAT_HISTORY_DIR"); dir != "" {
		cfg.History.Dir = dir
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.History.RedisAddr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.History.RedisPassword = password
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.History.PostgresDSN = dsn
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.Events.NATSURL = url
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

// parseRefillInterval accepts whole seconds ("2") or a Go duration ("500ms").
func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
