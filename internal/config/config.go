// Package config loads the server configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file named by HANDSON_CONFIG_FILE, a .env file in the working
// directory, and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the YAML file to read, if any.
const ConfigFileEnv = "HANDSON_CONFIG_FILE"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Password  PasswordConfig  `yaml:"password"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Audit     AuditConfig     `yaml:"audit"`
}

type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type JWTConfig struct {
	Key      string `yaml:"key"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

type RateLimitConfig struct {
	RequestLimit      int  `yaml:"request_limit"`
	TimeWindowSeconds int  `yaml:"time_window_seconds"`
	FailClosed        bool `yaml:"fail_closed"`
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

type PasswordConfig struct {
	Algorithm string `yaml:"algorithm"`
}

type DatabaseConfig struct {
	// URL selects the postgres store; empty uses the in-memory store.
	URL string `yaml:"url"`
}

type CacheConfig struct {
	Backend    string `yaml:"backend"` // memory, redis or none
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type AuditConfig struct {
	Sink string `yaml:"sink"` // none, json or slog
}

// Defaults returns the configuration used when no source sets a value.
func Defaults() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8080", ShutdownTimeoutSeconds: 10},
		Log:       LogConfig{Level: "info", Format: "text"},
		RateLimit: RateLimitConfig{RequestLimit: 100, TimeWindowSeconds: 60},
		Password:  PasswordConfig{Algorithm: "hmac-sha512"},
		Cache:     CacheConfig{Backend: "memory", TTLSeconds: 300},
		Redis:     RedisConfig{Addr: "localhost:6379"},
		Metrics:   MetricsConfig{Enabled: true},
		Audit:     AuditConfig{Sink: "none"},
	}
}

// Load reads every source using the process environment and ./.env.
func Load() (Config, error) {
	return LoadFrom(".env", os.LookupEnv)
}

// LoadFrom is Load with the .env path and environment lookup injected. A
// missing .env file is not an error.
func LoadFrom(dotEnvPath string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if path, ok := lookup(ConfigFileEnv); ok && strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	dotEnv := map[string]string{}
	if dotEnvPath != "" {
		values, err := godotenv.Read(dotEnvPath)
		switch {
		case err == nil:
			dotEnv = values
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", dotEnvPath, err)
		}
	}

	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		if v, ok := dotEnv[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		return "", false
	}

	e := envReader{get: get}
	e.readString("SERVER_ADDR", &cfg.Server.Addr)
	e.readInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeoutSeconds)
	e.readString("LOG_LEVEL", &cfg.Log.Level)
	e.readString("LOG_FORMAT", &cfg.Log.Format)
	e.readString("JWT_KEY", &cfg.JWT.Key)
	e.readString("JWT_ISSUER", &cfg.JWT.Issuer)
	e.readString("JWT_AUDIENCE", &cfg.JWT.Audience)
	e.readInt("RATE_LIMIT_REQUEST_LIMIT", &cfg.RateLimit.RequestLimit)
	e.readInt("RATE_LIMIT_TIME_WINDOW_SECONDS", &cfg.RateLimit.TimeWindowSeconds)
	e.readBool("RATE_LIMIT_FAIL_CLOSED", &cfg.RateLimit.FailClosed)
	e.readBool("RATE_LIMIT_TRUST_FORWARDED_FOR", &cfg.RateLimit.TrustForwardedFor)
	e.readString("PASSWORD_ALGORITHM", &cfg.Password.Algorithm)
	e.readString("DATABASE_URL", &cfg.Database.URL)
	e.readString("CACHE_BACKEND", &cfg.Cache.Backend)
	e.readInt("CACHE_TTL_SECONDS", &cfg.Cache.TTLSeconds)
	e.readString("REDIS_ADDR", &cfg.Redis.Addr)
	e.readString("REDIS_PASSWORD", &cfg.Redis.Password)
	e.readInt("REDIS_DB", &cfg.Redis.DB)
	e.readBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.readString("AUDIT_SINK", &cfg.Audit.Sink)
	if e.err != nil {
		return Config{}, e.err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with. JWT settings are
// checked when the engine is built.
func (c Config) Validate() error {
	if c.RateLimit.RequestLimit < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUEST_LIMIT must be >= 1, got %d", c.RateLimit.RequestLimit)
	}
	if c.RateLimit.TimeWindowSeconds < 1 {
		return fmt.Errorf("RATE_LIMIT_TIME_WINDOW_SECONDS must be >= 1, got %d", c.RateLimit.TimeWindowSeconds)
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be >= 0, got %d", c.Cache.TTLSeconds)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory, redis or none, got %q", c.Cache.Backend)
	}
	switch strings.ToLower(c.Audit.Sink) {
	case "none", "json", "slog":
	default:
		return fmt.Errorf("AUDIT_SINK must be none, json or slog, got %q", c.Audit.Sink)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.TimeWindowSeconds) * time.Second
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// envReader records the first parse error and ignores later keys.
type envReader struct {
	get func(string) (string, bool)
	err error
}

func (e *envReader) readString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) readInt(key string, dst *int) {
	if e.err != nil {
		return
	}
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = n
}

func (e *envReader) readBool(key string, dst *bool) {
	if e.err != nil {
		return
	}
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = b
}
