// Copyright (C) 2025 The Spendo Authors
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
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spendo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"OPENAI_API_KEY", "GIN_MODE", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9000
database:
  path: /tmp/other.db
sessions:
  ttl: 48h
chatkit:
  store: badger
  keep_alive: 5s
  rate_limit:
    requests_per_second: 0.5
openai:
  workflow:
    responder_model: gpt-5-mini
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep their defaults")
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, 48*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, ThreadStoreBadger, cfg.ChatKit.Store)
	assert.Equal(t, 5*time.Second, cfg.ChatKit.KeepAlive)
	assert.InDelta(t, 0.5, cfg.ChatKit.RateLimit.RequestsPerSecond, 1e-9)
	assert.Equal(t, 10, cfg.ChatKit.RateLimit.Burst)
	assert.Equal(t, "gpt-5-mini", cfg.OpenAI.Workflow.ResponderModel)
	assert.Equal(t, "gpt-5-nano", cfg.OpenAI.Workflow.ClassifierModel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9000\n")
	t.Setenv("SPENDO_PORT", "9100")
	t.Setenv("SPENDO_DB_PATH", "/var/lib/spendo/spendo.db")
	t.Setenv("SPENDO_CHATKIT_WORKFLOW_ID", "wf_123")
	t.Setenv("SPENDO_SECURE_COOKIE", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/var/lib/spendo/spendo.db", cfg.Database.Path)
	assert.Equal(t, "wf_123", cfg.ChatKit.WorkflowID)
	assert.True(t, cfg.Sessions.SecureCookie)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPENDO_PORT", "eighty")

	_, err := Load("")
	assert.ErrorContains(t, err, "SPENDO_PORT")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SpendoConfig)
		ok     bool
	}{
		{"defaults", func(*SpendoConfig) {}, true},
		{"port out of range", func(c *SpendoConfig) { c.Server.Port = 70000 }, false},
		{"empty db path", func(c *SpendoConfig) { c.Database.Path = "" }, false},
		{"unknown store", func(c *SpendoConfig) { c.ChatKit.Store = "redis" }, false},
		{"badger without path", func(c *SpendoConfig) {
			c.ChatKit.Store = ThreadStoreBadger
			c.ChatKit.BadgerPath = ""
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "spendo.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg SpendoConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, DefaultConfig(), cfg)

	assert.Error(t, WriteDefault(path), "existing files are not overwritten")
}
