// Package config loads the server configuration from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/omega-realm/bossdrop/internal/auth"
	"github.com/omega-realm/bossdrop/internal/captcha"
	"github.com/omega-realm/bossdrop/internal/database"
	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/models"
	"github.com/omega-realm/bossdrop/internal/redis"
	"github.com/omega-realm/bossdrop/internal/scheduler"
	"github.com/omega-realm/bossdrop/internal/transactor"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config is the full server configuration
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	Environment    string   `env:"ENVIRONMENT" envDefault:"development"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CatalogFile    string   `env:"CATALOG_FILE"`

	Database   database.Config
	Redis      redis.Config
	Game       game.Config
	Auth       auth.Config
	Captcha    captcha.Config
	Transactor transactor.Config
	Scheduler  scheduler.Config
}

// Load parses the environment into a Config and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks the settings that have no safe default
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.Game.ExpiryTimeout < 0 {
		errs = append(errs, errors.New("GAME_EXPIRY_TIMEOUT must not be negative"))
	}
	if c.Game.TransferTimeout < 0 {
		errs = append(errs, errors.New("GAME_TRANSFER_TIMEOUT must not be negative"))
	}
	if c.IsProduction() {
		if c.Auth.Secret == "" || c.Auth.Secret == defaultJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		if c.Game.IssuerAddress == "" {
			errs = append(errs, errors.New("GAME_ISSUER_ADDRESS must be set in production"))
		}
	}
	return errors.Join(errs...)
}

// LoadCatalog reads a catalog seed file. An empty path yields no catalog.
func LoadCatalog(path string) (*models.Catalog, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var catalog models.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file: %w", err)
	}
	for _, b := range catalog.Bosses {
		if b.DropChance < 0 || b.DropChance > 100 {
			return nil, fmt.Errorf("boss level %d: drop chance %.2f outside 0-100", b.Level, b.DropChance)
		}
	}
	for _, t := range catalog.Tokens {
		if t.Weight < 0 {
			return nil, fmt.Errorf("token %d: negative weight", t.ExternalID)
		}
	}
	return &catalog, nil
}
