// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm wraps the hosted language model used by the Spendo assistant.
//
// It holds three pieces: an LLMClient abstraction with an OpenAI
// implementation, the two stage financial reasoning workflow built on top
// of it, and a small client for minting chat front-end sessions.
package llm

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Role values for Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// Model overrides the client's default model for one call.
	Model string `json:"model,omitempty"`

	// ReasoningEffort is "minimal", "low", "medium" or "high" for
	// reasoning models. Empty leaves the provider default.
	ReasoningEffort string `json:"reasoning_effort,omitempty"`

	// Instructions is prepended as a system message.
	Instructions string `json:"instructions,omitempty"`
}

// Schema describes a structured output contract.
type Schema struct {
	Name       string
	Definition jsonschema.Definition
	Strict     bool
}

// =============================================================================
// Streaming
// =============================================================================

type StreamEventType string

const (
	// StreamEventToken carries a piece of the answer in Content.
	StreamEventToken StreamEventType = "token"

	// StreamEventDone is sent once after the last token.
	StreamEventDone StreamEventType = "done"
)

// StreamEvent is delivered to a StreamCallback while a response streams.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
}

// StreamCallback receives stream events in order. Returning an error
// aborts the stream and the error is returned from ChatStream.
type StreamCallback func(event StreamEvent) error

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// LLMClient defines the standard interface for any LLM backend.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type LLMClient interface {
	// Generate answers a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat answers a conversation.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// ChatStream answers a conversation, delivering tokens to callback as
	// they arrive. It returns the full concatenated answer.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) (string, error)

	// StructuredChat answers with JSON matching schema and decodes it into out.
	StructuredChat(ctx context.Context, messages []Message, params GenerationParams, schema Schema, out any) error
}
