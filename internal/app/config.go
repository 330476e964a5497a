// Package app wires the scenario bot: configuration, storage, chat service, Telegram handlers and HTTP API.
package app

import (
	"fmt"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	coredatabase "github.com/m3rciful/scenariobot/core/database"
)

// Config is the application configuration: the core sections plus the database.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Database          coredatabase.Config `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path, overlays the environment and validates every section.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.Database.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	return &cfg, nil
}

// LoadMigrationConfig reads only what migrations need, so `migrate` runs without a bot token.
func LoadMigrationConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Database.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	return &cfg, nil
}
