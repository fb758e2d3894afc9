package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host            string
	Port            int
	Path            string
	LogLevel        string
	Environment     string
	AllowedOrigins  []string
	JWTSecret       string
	DebugEcho       bool
	SendBuffer      int
	MaxMessageBytes int64
	Redis           RedisConfig
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PresenceTTL time.Duration
}

// Enabled reports whether a Redis presence mirror was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads the configuration from the environment, after loading an
// optional .env file. Every invalid variable is reported in the returned error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Host:            p.str("SIGNALING_HOST", "0.0.0.0"),
		Port:            p.positive("SIGNALING_PORT", 8888),
		Path:            p.str("SIGNALING_PATH", "/signal"),
		LogLevel:        strings.ToLower(p.str("SIGNALING_LOG_LEVEL", "info")),
		Environment:     strings.ToLower(p.str("SIGNALING_ENVIRONMENT", "development")),
		AllowedOrigins:  p.list("SIGNALING_ALLOWED_ORIGINS"),
		JWTSecret:       p.str("SIGNALING_JWT_SECRET", ""),
		DebugEcho:       p.boolean("SIGNALING_DEBUG_ECHO", false),
		SendBuffer:      p.positive("SIGNALING_SEND_BUFFER", 256),
		MaxMessageBytes: int64(p.positive("SIGNALING_MAX_MESSAGE_BYTES", 64*1024)),
		Redis: RedisConfig{
			Addr:        p.str("SIGNALING_REDIS_ADDR", ""),
			Password:    p.str("SIGNALING_REDIS_PASSWORD", ""),
			DB:          p.nonNegative("SIGNALING_REDIS_DB", 0),
			PresenceTTL: p.duration("SIGNALING_PRESENCE_TTL", 24*time.Hour),
		},
	}

	if cfg.Port > 65535 {
		p.fail("SIGNALING_PORT", "must be at most 65535")
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		p.fail("SIGNALING_PATH", "must start with /")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		p.fail("SIGNALING_LOG_LEVEL", "must be one of debug, info, warn, error")
	}
	switch cfg.Environment {
	case "development", "production":
	default:
		p.fail("SIGNALING_ENVIRONMENT", "must be development or production")
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(p.errs...))
	}
	return cfg, nil
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) fail(key, msg string) {
	p.errs = append(p.errs, fmt.Errorf("%s %s", key, msg))
}

func (p *parser) str(key, defaultValue string) string {
	if value := strings.TrimSpace(p.getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (p *parser) positive(key string, defaultValue int) int {
	n := p.integer(key, defaultValue)
	if n <= 0 {
		p.fail(key, "must be a positive integer")
	}
	return n
}

func (p *parser) nonNegative(key string, defaultValue int) int {
	n := p.integer(key, defaultValue)
	if n < 0 {
		p.fail(key, "must not be negative")
	}
	return n
}

func (p *parser) integer(key string, defaultValue int) int {
	raw := p.str(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, "must be an integer")
		return defaultValue
	}
	return n
}

func (p *parser) boolean(key string, defaultValue bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, "must be a boolean")
		return defaultValue
	}
	return b
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail(key, "must be a positive duration")
		return defaultValue
	}
	return d
}

// Parse comma-separated values, dropping blanks
func (p *parser) list(key string) []string {
	var out []string
	for _, v := range strings.Split(p.getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
