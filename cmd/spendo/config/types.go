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
	"time"

	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/api/ttl"
	"github.com/spendoapp/spendo/services/llm"
)

// Chat thread store backends.
const (
	ThreadStoreMemory = "memory"
	ThreadStoreBadger = "badger"
)

type SpendoConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	ChatKit   ChatKitConfig   `yaml:"chatkit"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GinMode         string        `yaml:"gin_mode"`     // debug, release or test
	FrontendDir     string        `yaml:"frontend_dir"` // built SPA, e.g. ../client/dist
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`

	// PasswordCost is the bcrypt cost. 0 uses bcrypt's default.
	PasswordCost int `yaml:"password_cost,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"` // enables JSON file logging
	Audit bool   `yaml:"audit"`         // log login and logout events
}

type SessionsConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`

	CleanupEnabled bool                `yaml:"cleanup_enabled"`
	Cleanup        ttl.SchedulerConfig `yaml:"cleanup"`
}

type ChatKitConfig struct {
	// Store is "memory" or "badger".
	Store      string `yaml:"store"`
	BadgerPath string `yaml:"badger_path"`

	// WorkflowID enables POST /api/chatkit/session.
	WorkflowID string `yaml:"workflow_id"`
	SessionURL string `yaml:"session_url,omitempty"`

	KeepAlive time.Duration              `yaml:"keep_alive"`
	RateLimit middleware.RateLimitConfig `yaml:"rate_limit"`

	// RedactSensitive masks card numbers, SSNs, bank details and
	// credentials before chat text is sent to OpenAI.
	RedactSensitive bool `yaml:"redact_sensitive"`
}

type OpenAIConfig struct {
	// APIKey is normally left empty and supplied via OPENAI_API_KEY or
	// SecretPath.
	APIKey     string             `yaml:"api_key,omitempty"`
	SecretPath string             `yaml:"secret_path,omitempty"`
	BaseURL    string             `yaml:"base_url,omitempty"`
	Workflow   llm.WorkflowConfig `yaml:"workflow"`
}

type TelemetryConfig struct {
	// OTLPEndpoint is a gRPC collector address. Empty disables tracing.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

func DefaultConfig() SpendoConfig {
	return SpendoConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			GinMode:         "release",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "data/spendo.db"},
		Logging:  LoggingConfig{Level: "info", Audit: true},
		Sessions: SessionsConfig{
			TTL:            14 * 24 * time.Hour,
			CleanupEnabled: true,
			Cleanup: ttl.SchedulerConfig{
				Interval:            time.Hour,
				WebSessionBatchSize: 500,
				ChatSessionMaxAge:   24 * time.Hour,
			},
		},
		ChatKit: ChatKitConfig{
			Store:      ThreadStoreMemory,
			BadgerPath: "data/chatkit",
			KeepAlive:  15 * time.Second,
			RateLimit: middleware.RateLimitConfig{
				RequestsPerSecond: 2,
				Burst:             10,
				IdleTTL:           10 * time.Minute,
			},
			RedactSensitive: true,
		},
		OpenAI:    OpenAIConfig{Workflow: llm.DefaultWorkflowConfig()},
		Telemetry: TelemetryConfig{ServiceName: "spendo-api"},
	}
}
