// Package config provides YAML-based configuration loading for Shopfloor.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Shopfloor configuration, loaded from shopfloor.yaml.
type Config struct {
	Workshop  string          `yaml:"workshop"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Notify    NotifyConfig    `yaml:"notify"`
	Rebalance RebalanceConfig `yaml:"rebalance"`
	Scoring   Weights         `yaml:"scoring"`
	Stages    []StageConfig   `yaml:"stages"`
}

// DatabaseConfig holds connection settings for the MySQL server.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig selects the notification adapters to wire at startup.
// Tokens are read from the environment (SLACK_BOT_TOKEN, DISCORD_BOT_TOKEN),
// never from the config file.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds the Slack channel for assignment/completion messages.
type SlackConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds the Discord channel for assignment/completion messages.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ChannelID string `yaml:"channel_id"`
}

// RebalanceConfig holds the cron schedule for the periodic rebalance pass.
type RebalanceConfig struct {
	Schedule string `yaml:"schedule"` // 5-field cron expression
}

// StageConfig defines one production stage, seeded into the stage catalog.
type StageConfig struct {
	Sequence           int    `yaml:"sequence"`
	Name               string `yaml:"name"`
	EstimatedMinutes   int    `yaml:"estimated_minutes"`
	NotifyOnAssignment bool   `yaml:"notify_on_assignment"`
	Active             *bool  `yaml:"active"`
}

// IsActive returns the stage's active flag, defaulting to true when unset.
func (s StageConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Scoring: DefaultWeights()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Database == "" && c.Workshop != "" {
		c.Database.Database = "shopfloor_" + c.Workshop
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Rebalance.Schedule == "" {
		c.Rebalance.Schedule = "*/10 * * * *"
	}
	for i := range c.Stages {
		if c.Stages[i].EstimatedMinutes == 0 {
			c.Stages[i].EstimatedMinutes = 60
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Workshop == "" {
		errs = append(errs, "workshop is required")
	}
	if len(c.Stages) == 0 {
		errs = append(errs, "at least one stage is required")
	}
	seen := make(map[int]bool, len(c.Stages))
	for i, s := range c.Stages {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("stages[%d].name is required", i))
		}
		if s.Sequence <= 0 {
			errs = append(errs, fmt.Sprintf("stages[%d].sequence must be positive", i))
		} else if seen[s.Sequence] {
			errs = append(errs, fmt.Sprintf("stages[%d].sequence %d is duplicated", i, s.Sequence))
		}
		seen[s.Sequence] = true
	}
	if err := c.Scoring.validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
