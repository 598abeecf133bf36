// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// DefaultSecretPath is where container runtimes mount the API key secret.
const DefaultSecretPath = "/run/secrets/openai_api_key"

// ErrNoAPIKey is returned when no key is configured anywhere.
var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set and no secret file found")

var memguardInitOnce sync.Once

// APIKey holds the provider key sealed in a memguard enclave. The
// plaintext is only materialized while a request is being built.
//
// # Thread Safety
//
// Safe for concurrent use.
type APIKey struct {
	enclave *memguard.Enclave
}

// NewAPIKey seals key. The caller's copy is not wiped.
func NewAPIKey(key string) (*APIKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrNoAPIKey
	}
	memguardInitOnce.Do(memguard.CatchInterrupt)
	return &APIKey{enclave: memguard.NewEnclave([]byte(key))}, nil
}

// LoadAPIKey resolves the key from, in order: explicit, the
// OPENAI_API_KEY environment variable, then secretPath.
func LoadAPIKey(explicit, secretPath string) (*APIKey, error) {
	if explicit != "" {
		return NewAPIKey(explicit)
	}
	if env := os.Getenv("OPENAI_API_KEY"); env != "" {
		return NewAPIKey(env)
	}
	if secretPath == "" {
		secretPath = DefaultSecretPath
	}
	raw, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, ErrNoAPIKey
	}
	slog.Info("Read the OpenAI API key from secret file", "path", secretPath)
	return NewAPIKey(string(raw))
}

// Reveal returns the plaintext key.
func (k *APIKey) Reveal() (string, error) {
	buf, err := k.enclave.Open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// PurgeSecrets wipes all memguard memory. Call on shutdown.
func PurgeSecrets() {
	memguard.Purge()
}
