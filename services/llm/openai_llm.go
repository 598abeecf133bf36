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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is used when OpenAIConfig.Model is empty.
const DefaultModel = "gpt-5"

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	Key *APIKey

	// Model is the default model. Defaults to DefaultModel.
	Model string

	// BaseURL overrides the API endpoint, e.g. for a proxy or tests.
	BaseURL string
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

var _ LLMClient = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Key == nil {
		return nil, ErrNoAPIKey
	}
	key, err := cfg.Key.Reveal()
	if err != nil {
		return nil, fmt.Errorf("open api key: %w", err)
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
		slog.Warn("OpenAI model not set, using default", "model", DefaultModel)
	}
	slog.Info("Initializing OpenAI client", "model", cfg.Model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Generate implements the LLMClient interface
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return o.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, params)
}

func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	req := o.buildRequest(messages, params)
	slog.Debug("Chat via OpenAI", "model", req.Model, "messages", len(req.Messages))

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIClient) ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) (string, error) {
	req := o.buildRequest(messages, params)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI stream failed: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("OpenAI stream receive: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if callback != nil {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: delta}); err != nil {
				return full.String(), err
			}
		}
	}

	if callback != nil {
		if err := callback(StreamEvent{Type: StreamEventDone}); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

func (o *OpenAIClient) StructuredChat(ctx context.Context, messages []Message, params GenerationParams, schema Schema, out any) error {
	req := o.buildRequest(messages, params)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   schema.Name,
			Schema: &schema.Definition,
			Strict: schema.Strict,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode %s output: %w", schema.Name, err)
	}
	return nil
}

func (o *OpenAIClient) buildRequest(messages []Message, params GenerationParams) openai.ChatCompletionRequest {
	model := o.model
	if params.Model != "" {
		model = params.Model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if params.Instructions != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: params.Instructions})
	}
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:           model,
		Messages:        msgs,
		ReasoningEffort: params.ReasoningEffort,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}
