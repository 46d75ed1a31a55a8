// Package config loads service settings from an optional TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var (
	// ErrMissingDatabaseURL signals that no database connection string was configured.
	ErrMissingDatabaseURL = errors.New("config: database url is required")
	// ErrMissingJWTSecret signals that no token signing secret was configured.
	ErrMissingJWTSecret = errors.New("config: jwt secret is required")
)

// Config is the full service configuration.
type Config struct {
	HTTP    HTTPConfig    `toml:"http"`
	DB      DBConfig      `toml:"db"`
	Auth    AuthConfig    `toml:"auth"`
	Kafka   KafkaConfig   `toml:"kafka"`
	Relay   RelayConfig   `toml:"relay"`
	Catalog CatalogConfig `toml:"catalog"`
	Log     LogConfig     `toml:"log"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

type DBConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
}

type AuthConfig struct {
	JWTSecret   string        `toml:"jwt_secret"`
	TokenTTL    time.Duration `toml:"token_ttl"`
	AdminEmails []string      `toml:"admin_emails"`
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type RelayConfig struct {
	Interval       time.Duration `toml:"interval"`
	BatchSize      int           `toml:"batch_size"`
	MaxAttempts    int           `toml:"max_attempts"`
	SettleInterval time.Duration `toml:"settle_interval"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `toml:"cache_ttl"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

// Default returns the settings used when neither the file nor the
// environment provides a value.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		DB:      DBConfig{MaxConns: 10},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
		Kafka:   KafkaConfig{Topic: "cardswap.events"},
		Relay:   RelayConfig{Interval: 2 * time.Second, BatchSize: 50, MaxAttempts: 5, SettleInterval: time.Minute},
		Catalog: CatalogConfig{CacheTTL: 10 * time.Minute},
		Log:     LogConfig{Level: slog.LevelInfo, Format: "json"},
	}
}

// Load reads path when it is non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer file.Close()
		if err := decode(file, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(cfg); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("DATABASE_URL"); ok {
		cfg.DB.URL = v
	}
	if v, ok := get("JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := get("HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v, ok := get("KAFKA_TOPIC"); ok {
		cfg.Kafka.Topic = v
	}
	if v, ok := get("ADMIN_EMAILS"); ok {
		cfg.Auth.AdminEmails = splitList(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		if err := cfg.Log.Level.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("config: LOG_LEVEL: %w", err)
		}
	}
	if v, ok := get("RELAY_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: RELAY_INTERVAL: %w", err)
		}
		cfg.Relay.Interval = d
	}
	if v, ok := get("DB_MAX_CONNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: DB_MAX_CONNS: %w", err)
		}
		cfg.DB.MaxConns = int32(n)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports settings the binaries cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DB.URL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Relay.Interval <= 0 {
		errs = append(errs, fmt.Errorf("config: relay interval must be positive, got %s", c.Relay.Interval))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger described by the log settings.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level, AddSource: c.AddSource}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
