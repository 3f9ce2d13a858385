// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoPrimaryPath is returned when the primary store path is missing.
	ErrNoPrimaryPath = errors.New("primary store path is required")
	// ErrNoMirrorDSN is returned when the mirror DSN is missing.
	ErrNoMirrorDSN = errors.New("mirror dsn is required")
	// ErrNoBucketsPath is returned when the bucket store path is missing.
	ErrNoBucketsPath = errors.New("bucket store path is required")
)

// Config is the full service configuration.
type Config struct {
	Primary  PrimaryConfig  `yaml:"primary"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Buckets  BucketsConfig  `yaml:"buckets"`
	EventLog EventLogConfig `yaml:"event_log"`
}

// PrimaryConfig locates the BoltDB primary store.
type PrimaryConfig struct {
	Path string `yaml:"path"`
}

// MirrorConfig locates the relational mirror.
type MirrorConfig struct {
	// DSN in go-sql-driver/mysql form, e.g.
	// user:pass@tcp(host:3306)/cohorta?parseTime=true
	DSN string `yaml:"dsn"`
}

// BucketsConfig locates the bucket-list store.
type BucketsConfig struct {
	Path string `yaml:"path"`
}

// EventLogConfig configures the domain-event sink. An empty path means
// events go to the structured log only.
type EventLogConfig struct {
	Path string `yaml:"path"`
	// Buffer is the async queue capacity. Default 1024.
	Buffer int `yaml:"buffer"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.Primary.Path == "" {
		return ErrNoPrimaryPath
	}
	if c.Mirror.DSN == "" {
		return ErrNoMirrorDSN
	}
	if c.Buckets.Path == "" {
		return ErrNoBucketsPath
	}
	return nil
}
