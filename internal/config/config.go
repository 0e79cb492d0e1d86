// Package config loads Adorify's configuration from defaults, an optional
// YAML file, a .env file and ADORIFY_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ADORIFY_"

// Validation errors.
var (
	ErrMissingSpotifyCredentials = errors.New("spotify.client_id and spotify.client_secret are required")
	ErrInvalidTopUsers           = errors.New("stats.top_users must be positive")
	ErrInvalidMostPlayedLimit    = errors.New("stats.most_played_limit must not be negative")
	ErrInvalidTimezone           = errors.New("stats.timezone is not a known time zone")
	ErrInvalidTimeout            = errors.New("timeouts must be positive")
	ErrInvalidLogFormat          = errors.New("log.format must be text or json")
)

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Spotify  SpotifyConfig  `koanf:"spotify"`
	Stats    StatsConfig    `koanf:"stats"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	RedirectURI  string        `koanf:"redirect_uri"` // must match the Spotify app configuration
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// DatabaseConfig holds the PostgreSQL settings. An empty URL runs with
// in-memory stores.
type DatabaseConfig struct {
	URL          string        `koanf:"url"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
	AutoMigrate  bool          `koanf:"auto_migrate"`
}

// RedisConfig holds the metadata cache settings. An empty URL disables the cache.
type RedisConfig struct {
	URL         string        `koanf:"url"`
	MetadataTTL time.Duration `koanf:"metadata_ttl"`
}

// SpotifyConfig holds the OAuth client credentials.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// StatsConfig tunes the analytics queries.
type StatsConfig struct {
	TopUsers          int    `koanf:"top_users"`
	MostPlayedLimit   int    `koanf:"most_played_limit"`
	Timezone          string `koanf:"timezone"`
	LookupConcurrency int    `koanf:"lookup_concurrency"`
}

// AuthConfig tunes the token refresh scheduler.
type AuthConfig struct {
	RefreshBuffer time.Duration `koanf:"refresh_buffer"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

var defaults = map[string]any{
	"server.addr":              "127.0.0.1:8080",
	"server.redirect_uri":      "http://127.0.0.1:8080/callback",
	"server.read_timeout":      "15s",
	"server.write_timeout":     "15s",
	"database.url":             "",
	"database.query_timeout":   "5s",
	"database.auto_migrate":    true,
	"redis.url":                "",
	"redis.metadata_ttl":       "6h",
	"stats.top_users":          10,
	"stats.most_played_limit":  0,
	"stats.timezone":           "UTC",
	"stats.lookup_concurrency": 5,
	"auth.refresh_buffer":      "30s",
	"log.level":                "info",
	"log.format":               "text",
}

// Load builds the configuration. configPath may be empty.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("setting default %s: %w", key, err)
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// A .env file only fills variables that are not already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	// ADORIFY_DATABASE__URL overrides database.url
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingSpotifyCredentials
	}
	if c.Stats.TopUsers <= 0 {
		return ErrInvalidTopUsers
	}
	if c.Stats.MostPlayedLimit < 0 {
		return ErrInvalidMostPlayedLimit
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Database.QueryTimeout <= 0 || c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return ErrInvalidLogFormat
	}
	return nil
}

// Location returns the time zone histogram days are counted in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Stats.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Stats.Timezone)
	}
	return loc, nil
}
