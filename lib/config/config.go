// Package config loads and saves the dbpool configuration file.
// TOML is the native format; files ending in .yaml or .yml are read and
// written as YAML with the same keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
	"github.com/go-i2p/dbpool/lib/resilience"
	"github.com/go-i2p/dbpool/lib/validation"
)

// Database kinds.
const (
	KindSQL   = "sql"
	KindRedis = "redis"
)

// Default configuration values
const (
	DefaultMinSize             = 2
	DefaultMaxSize             = 10
	DefaultDriver              = "sqlite3"
	DefaultURL                 = "file:dbpool?mode=memory&cache=shared"
	DefaultFailureThreshold    = 5
	DefaultSuccessThreshold    = 1
	DefaultBreakerResetTimeout = "10s"
	DefaultWebListen           = "127.0.0.1:8080"
)

// Config holds all configuration for a dbpool process.
type Config struct {
	Pool     PoolConfig     `toml:"pool" yaml:"pool"`
	Database DatabaseConfig `toml:"database" yaml:"database"`
	Breaker  BreakerConfig  `toml:"breaker" yaml:"breaker"`
	Web      WebConfig      `toml:"web" yaml:"web"`
}

// PoolConfig contains the pool bounds.
type PoolConfig struct {
	// MinSize is the number of idle connections kept cached
	MinSize int `toml:"min_size" yaml:"min_size"`
	// MaxSize is the maximum number of open connections
	MaxSize int `toml:"max_size" yaml:"max_size"`
}

// DatabaseConfig describes the backend the pool connects to.
type DatabaseConfig struct {
	// Kind selects the factory: "sql" or "redis"
	Kind string `toml:"kind" yaml:"kind"`
	// Driver is the database/sql driver name, used when Kind is "sql"
	Driver string `toml:"driver,omitempty" yaml:"driver,omitempty"`
	// URL is the connection target (DSN or redis URL)
	URL string `toml:"url" yaml:"url"`
	// Options are passed to the factory alongside URL on every open
	Options map[string]string `toml:"options,omitempty" yaml:"options,omitempty"`
}

// BreakerConfig contains circuit breaker settings for connection opens.
type BreakerConfig struct {
	Enabled          bool `toml:"enabled" yaml:"enabled"`
	FailureThreshold int  `toml:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int  `toml:"success_threshold" yaml:"success_threshold"`
	// ResetTimeout is a Go duration string, e.g. "10s"
	ResetTimeout string `toml:"reset_timeout" yaml:"reset_timeout"`
}

// WebConfig contains status server settings.
type WebConfig struct {
	// Listen is the address to bind the status server to
	Listen string `toml:"listen" yaml:"listen"`
	// ProbeRate and ProbeBurst throttle /api/probe per client.
	// Zero selects the server defaults.
	ProbeRate  float64 `toml:"probe_rate,omitempty" yaml:"probe_rate,omitempty"`
	ProbeBurst int     `toml:"probe_burst,omitempty" yaml:"probe_burst,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			MinSize: DefaultMinSize,
			MaxSize: DefaultMaxSize,
		},
		Database: DatabaseConfig{
			Kind:   KindSQL,
			Driver: DefaultDriver,
			URL:    DefaultURL,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			ResetTimeout:     DefaultBreakerResetTimeout,
		},
		Web: WebConfig{
			Listen: DefaultWebListen,
		},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig reads configuration from a TOML or YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", path).Debug("config file not found, using defaults")
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, apperrors.WrapKind(apperrors.ErrConfiguration, "parsing config file", err)
	}

	if cfg.Database.Kind == "" {
		cfg.Database.Kind = KindSQL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log.WithField("path", path).Debug("loaded config")
	return cfg, nil
}

// SaveConfig writes the configuration to a TOML or YAML file, chosen by
// extension. It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func invalid(err error) error {
	return apperrors.WrapKind(apperrors.ErrConfiguration, "invalid configuration", err)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Pool.Bounds().Validate(); err != nil {
		return err
	}

	err := validation.All(
		func() error { return validation.OneOf("database.kind", c.Database.Kind, KindSQL, KindRedis) },
		func() error {
			if c.Database.Kind != KindSQL {
				return nil
			}
			return validation.Required("database.driver", c.Database.Driver)
		},
		func() error { return validation.Required("database.url", c.Database.URL) },
		func() error { return validation.HostPort("web.listen", c.Web.Listen) },
		func() error { return validation.NonNegative("web.probe_rate", c.Web.ProbeRate) },
		func() error { return validation.NonNegative("web.probe_burst", c.Web.ProbeBurst) },
	)
	if err != nil {
		return invalid(err)
	}

	if c.Breaker.Enabled {
		if err := c.Breaker.validate(); err != nil {
			return invalid(err)
		}
	}
	return nil
}

func (b BreakerConfig) validate() error {
	return validation.All(
		func() error { return validation.AtLeast("breaker.failure_threshold", b.FailureThreshold, 1) },
		func() error { return validation.AtLeast("breaker.success_threshold", b.SuccessThreshold, 1) },
		func() error {
			_, err := validation.Duration("breaker.reset_timeout", b.ResetTimeout)
			return err
		},
	)
}

// Bounds converts the section to pool bounds.
func (p PoolConfig) Bounds() pool.Config {
	return pool.Config{
		MinSize: p.MinSize,
		MaxSize: p.MaxSize,
	}
}

// Settings converts the section to circuit breaker settings. An empty
// reset_timeout leaves the breaker default in place.
func (b BreakerConfig) Settings() (resilience.Config, error) {
	d, err := validation.Duration("breaker.reset_timeout", b.ResetTimeout)
	if err != nil {
		return resilience.Config{}, invalid(err)
	}
	return resilience.Config{
		FailureThreshold: b.FailureThreshold,
		SuccessThreshold: b.SuccessThreshold,
		ResetTimeout:     d,
	}, nil
}
