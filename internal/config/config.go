// Package config loads gitviz settings from defaults, an optional YAML
// file and GITVIZ_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultServerPort      = 8080
	DefaultAPIBaseURL      = "http://localhost:8081"
	DefaultAPITimeout      = 30 * time.Second
	DefaultRenewalSkew     = 30 * time.Second
	DefaultRefreshTimeout  = 15 * time.Second
	DefaultSessionDBPath   = "data/gitviz.db"
	DefaultSessionMaxAge   = 7 * 24 * time.Hour
	DefaultLogLevel        = "info"
	minSessionSecretLength = 16
)

var (
	ErrInvalidPort          = errors.New("server.port must be between 1 and 65535")
	ErrInvalidAPIBaseURL    = errors.New("api.base_url must be an absolute http(s) URL")
	ErrInvalidTimeout       = errors.New("api.timeout must be positive")
	ErrInvalidRenewalSkew   = errors.New("session.renewal_skew must not be negative")
	ErrInvalidSessionSecret = fmt.Errorf("session.secret must be at least %d characters", minSessionSecretLength)
	ErrInvalidSessionMaxAge = errors.New("session.max_age must be positive")
	ErrInvalidLogLevel      = errors.New("log.level must be one of debug, info, warn, error")
)

// Config is the top-level configuration struct.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// APIConfig points at the git-analyser API.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig holds the session lifecycle and persistence settings.
type SessionConfig struct {
	RenewalSkew    time.Duration `mapstructure:"renewal_skew"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	// DBPath is the sqlite file; ":memory:" keeps sessions in the process only.
	DBPath       string        `mapstructure:"db_path"`
	Secret       string        `mapstructure:"secret"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Validate checks the invariants every command relies on and returns the
// first error found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAPIBaseURL
	}

	if c.API.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Session.RenewalSkew < 0 {
		return ErrInvalidRenewalSkew
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// ValidateServe adds the checks only the HTTP server needs: sessions are
// persisted, so they need a sealing secret and a lifetime.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if len(c.Session.Secret) < minSessionSecretLength {
		return ErrInvalidSessionSecret
	}

	if c.Session.MaxAge <= 0 {
		return ErrInvalidSessionMaxAge
	}

	return nil
}

// SlogLevel maps log.level to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, ErrInvalidLogLevel
	}
}
