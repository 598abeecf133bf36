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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultSessionURL is the hosted endpoint that mints chat widget sessions.
const DefaultSessionURL = "https://api.openai.com/v1/chatkit/sessions"

// AnonymousUser is sent when no user can be identified.
const AnonymousUser = "anonymous"

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 64 << 10

// APIError is a non-2xx answer from the session endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat session request failed: status %d: %s", e.StatusCode, e.Body)
}

// SessionClientConfig configures a SessionClient.
type SessionClientConfig struct {
	Key        *APIKey
	WorkflowID string

	// URL defaults to DefaultSessionURL.
	URL string

	// Timeout defaults to 30s.
	Timeout time.Duration
}

// SessionClient creates chat front-end sessions bound to a hosted workflow.
type SessionClient struct {
	key        *APIKey
	workflowID string
	url        string
	httpClient *http.Client
}

func NewSessionClient(cfg SessionClientConfig) (*SessionClient, error) {
	if cfg.Key == nil {
		return nil, ErrNoAPIKey
	}
	if cfg.WorkflowID == "" {
		return nil, errors.New("chat workflow id is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultSessionURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SessionClient{
		key:        cfg.Key,
		workflowID: cfg.WorkflowID,
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type sessionRequest struct {
	Workflow sessionWorkflow `json:"workflow"`
	User     string          `json:"user"`
}

type sessionWorkflow struct {
	ID string `json:"id"`
}

type sessionResponse struct {
	ClientSecret string `json:"client_secret"`
}

// CreateSession returns the client secret for user. An empty user is
// sent as AnonymousUser.
//
// # Outputs
//
//   - string: The client secret.
//   - error: *APIError for upstream rejections; other errors for transport
//     or decoding failures.
func (c *SessionClient) CreateSession(ctx context.Context, user string) (string, error) {
	if strings.TrimSpace(user) == "" {
		user = AnonymousUser
	}
	body, err := json.Marshal(sessionRequest{Workflow: sessionWorkflow{ID: c.workflowID}, User: user})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	key, err := c.key.Reveal()
	if err != nil {
		return "", fmt.Errorf("open api key: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "chatkit_beta=v1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat session request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat session response: %w", err)
	}
	if out.ClientSecret == "" {
		return "", errors.New("chat session response has no client_secret")
	}
	return out.ClientSecret, nil
}
