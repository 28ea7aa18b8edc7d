// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the mobile bridge configuration: YAML file, then
// environment overrides, then validation.
//
// Thread Safety:
//
//	Load returns a fresh Config per call; the result is owned by the caller.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize caps the YAML file read (1MB).
const MaxConfigFileSize = 1024 * 1024

// Config is the full mobile bridge configuration.
type Config struct {
	// Mode selects development or production behavior. The dev token and
	// the dev solver engine exist only in development.
	Mode string `yaml:"mode" validate:"required,oneof=development production"`

	Server   ServerConfig   `yaml:"server"`
	Platform PlatformConfig `yaml:"platform"`
	Queue    QueueConfig    `yaml:"queue"`
	Live     LiveConfig     `yaml:"live"`
	Solver   SolverConfig   `yaml:"solver"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the local development server.
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required,gt=0,lte=65535"`

	// SnapshotDebounce is the coalescing window for variables_updated
	// pushes.
	SnapshotDebounce time.Duration `yaml:"snapshot_debounce" validate:"required,gt=0"`
}

// PlatformConfig points at the upstream trading platform.
type PlatformConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Token is the bearer token; usually injected via
	// ALEUTIAN_MOBILE_TOKEN rather than written to disk.
	Token string `yaml:"token"`
}

// QueueConfig configures the offline queue store.
type QueueConfig struct {
	Path       string        `yaml:"path" validate:"required"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

// LiveConfig configures the live-update subscription.
type LiveConfig struct {
	URL           string        `yaml:"url" validate:"required"`
	ProductGroups []string      `yaml:"product_groups" validate:"required,min=1,dive,required"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffCap    time.Duration `yaml:"backoff_cap"`
	MaxReconnect  int           `yaml:"max_reconnect"`
}

// SolverConfig configures the bridge worker pool and Monte Carlo defaults.
type SolverConfig struct {
	// Workers sizes the solve pool; 0 means max(2, NumCPU).
	Workers int `yaml:"workers" validate:"gte=0"`

	// Scenarios is the default Monte Carlo scenario count.
	Scenarios int `yaml:"scenarios" validate:"gt=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=text json"`
}

// Default returns the development defaults every load starts from.
func Default() *Config {
	return &Config{
		Mode: "development",
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             8787,
			SnapshotDebounce: 5 * time.Second,
		},
		Platform: PlatformConfig{
			BaseURL: "http://127.0.0.1:8787",
		},
		Queue: QueueConfig{
			Path:       "data/queue",
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		Live: LiveConfig{
			URL:           "ws://127.0.0.1:8787/mobile/websocket",
			ProductGroups: []string{"nh3_domestic"},
			BackoffBase:   1 * time.Second,
			BackoffCap:    30 * time.Second,
			MaxReconnect:  10,
		},
		Solver: SolverConfig{
			Scenarios: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path (optional), applies environment
// overrides, and validates the result.
//
// Inputs:
//
//	path - YAML file path; empty string skips the file and uses defaults
//	       plus environment.
//
// Outputs:
//
//	*Config - Validated configuration.
//	error - Read, parse, or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
		if info.Size() > MaxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", path, MaxConfigFileSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv layers environment overrides over the file values. Secrets
// (the platform token) normally arrive only this way.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ALEUTIAN_MOBILE_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("ALEUTIAN_MOBILE_TOKEN"); v != "" {
		cfg.Platform.Token = v
	}
	if v := os.Getenv("ALEUTIAN_MOBILE_BASE_URL"); v != "" {
		cfg.Platform.BaseURL = v
	}
	if v := os.Getenv("ALEUTIAN_MOBILE_LIVE_URL"); v != "" {
		cfg.Live.URL = v
	}
	if v := os.Getenv("ALEUTIAN_MOBILE_QUEUE_PATH"); v != "" {
		cfg.Queue.Path = v
	}
	if v := os.Getenv("ALEUTIAN_MOBILE_PRODUCT_GROUPS"); v != "" {
		groups := strings.Split(v, ",")
		for i := range groups {
			groups[i] = strings.TrimSpace(groups[i])
		}
		cfg.Live.ProductGroups = groups
	}
	if v := os.Getenv("ALEUTIAN_MOBILE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Development reports whether the configuration runs in development mode.
func (c *Config) Development() bool {
	return c.Mode == "development"
}
