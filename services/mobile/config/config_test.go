// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mobile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Development())
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.SnapshotDebounce)
	assert.Equal(t, 1000, cfg.Solver.Scenarios)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: production
platform:
  base_url: https://platform.example.com
  token: file-token
live:
  url: wss://platform.example.com/mobile/websocket
  product_groups: [nh3_domestic, petcoke]
logging:
  level: warn
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Development())
	assert.Equal(t, "https://platform.example.com", cfg.Platform.BaseURL)
	assert.Equal(t, []string{"nh3_domestic", "petcoke"}, cfg.Live.ProductGroups)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// Unset file keys keep defaults.
	assert.Equal(t, 8787, cfg.Server.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
platform:
  token: file-token
`)
	t.Setenv("ALEUTIAN_MOBILE_TOKEN", "env-token")
	t.Setenv("ALEUTIAN_MOBILE_PRODUCT_GROUPS", "sulphur_international, petcoke")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Platform.Token)
	assert.Equal(t, []string{"sulphur_international", "petcoke"}, cfg.Live.ProductGroups)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
mode: staging
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	path = writeConfig(t, `
logging:
  level: loud
`)
	_, err = Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
