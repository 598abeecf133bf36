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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing file at
// DefaultPath is not an error.
const DefaultPath = "spendo.yaml"

// Load builds the configuration from defaults, then the YAML file at
// path, then environment variables.
//
// # Inputs
//
//   - path: Config file. Empty means DefaultPath, which may be absent.
//     An explicit path that does not exist is an error.
//
// # Outputs
//
//   - SpendoConfig: The merged configuration.
//   - error: Unreadable or invalid file, or a failed Validate.
func Load(path string) (SpendoConfig, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read the config file %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteDefault writes DefaultConfig to path, creating parent directories.
// An existing file is left untouched and reported as an error.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create the config directory %w", err)
		}
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects values the server cannot start with.
func (c SpendoConfig) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	switch c.ChatKit.Store {
	case ThreadStoreMemory:
	case ThreadStoreBadger:
		if c.ChatKit.BadgerPath == "" {
			return errors.New("chatkit.badger_path is required for the badger store")
		}
	default:
		return fmt.Errorf("chatkit.store must be %q or %q, got %q", ThreadStoreMemory, ThreadStoreBadger, c.ChatKit.Store)
	}
	return nil
}

// =============================================================================
// Environment overrides
// =============================================================================

// applyEnv overlays environment variables onto cfg. Unset variables keep
// the file value.
func applyEnv(cfg *SpendoConfig) error {
	setString(&cfg.Server.Host, "SPENDO_HOST")
	if err := setInt(&cfg.Server.Port, "SPENDO_PORT"); err != nil {
		return err
	}
	setString(&cfg.Server.GinMode, "GIN_MODE")
	setString(&cfg.Server.FrontendDir, "SPENDO_FRONTEND_DIR")

	setString(&cfg.Database.Path, "SPENDO_DB_PATH")

	setString(&cfg.Logging.Level, "SPENDO_LOG_LEVEL")
	setString(&cfg.Logging.Dir, "SPENDO_LOG_DIR")
	if err := setBool(&cfg.Logging.JSON, "SPENDO_LOG_JSON"); err != nil {
		return err
	}
	if err := setBool(&cfg.Logging.Audit, "SPENDO_AUDIT_LOG"); err != nil {
		return err
	}

	if err := setBool(&cfg.Sessions.SecureCookie, "SPENDO_SECURE_COOKIE"); err != nil {
		return err
	}

	setString(&cfg.ChatKit.Store, "SPENDO_CHATKIT_STORE")
	setString(&cfg.ChatKit.BadgerPath, "SPENDO_CHATKIT_BADGER_PATH")
	setString(&cfg.ChatKit.WorkflowID, "SPENDO_CHATKIT_WORKFLOW_ID")

	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	*dst = b
	return nil
}
