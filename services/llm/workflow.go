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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/spendoapp/spendo/pkg/money"
)

// NonFinanceReply is the canned answer for off-topic messages.
const NonFinanceReply = "Question does not pertain to finances please ask another question."

const classifierInstructions = `You analyze the user's latest message in the context of the conversation and classify it.

Case 1: the message is directly about the user's finances.
  validpromptresponse=true, financequestion=true, monetarybalancequery=true,
  tentativeresponse=<your best answer, under 500 characters>

Case 2: the message has nothing to do with finances.
  validpromptresponse=false, financequestion=false, monetarybalancequery=false,
  tentativeresponse="` + NonFinanceReply + `"

Case 3: the user is continuing a finance conversation with a finance question that does not
relate to a prompt message.
  validpromptresponse=false, financequestion=true, monetarybalancequery=false,
  tentativeresponse=<your best answer, under 500 characters>

Case 4: the user is continuing a finance conversation with a finance question that does relate
to a prompt message.
  validpromptresponse=true, financequestion=true, monetarybalancequery=true,
  tentativeresponse=<your best answer, under 500 characters>

Always answer with the JSON object only.`

const responderPreamble = `You are a well-versed financial advisor. Keep the answer under 500 characters.
Format the answer with clear paragraphs and line breaks. Use bullet points when listing items.
Only mention the user's balances when it helps the answer, and avoid repeating them within a conversation unless asked.`

// classificationSchema mirrors Classification.
var classificationSchema = Schema{
	Name:   "financial_reasoning",
	Strict: true,
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"validpromptresponse":  {Type: jsonschema.Boolean},
			"financequestion":      {Type: jsonschema.Boolean},
			"monetarybalancequery": {Type: jsonschema.Boolean},
			"tentativeresponse":    {Type: jsonschema.String},
		},
		Required:             []string{"validpromptresponse", "financequestion", "monetarybalancequery", "tentativeresponse"},
		AdditionalProperties: false,
	},
}

// Classification is the first stage output.
type Classification struct {
	ValidPromptResponse  bool   `json:"validpromptresponse"`
	FinanceQuestion      bool   `json:"financequestion"`
	MonetaryBalanceQuery bool   `json:"monetarybalancequery"`
	TentativeResponse    string `json:"tentativeresponse"`
}

// Balances is the user's money split by account category.
type Balances struct {
	Cash                money.Amount
	Savings             money.Amount
	InvestingRetirement money.Amount
}

// WorkflowInput is one user turn plus context.
type WorkflowInput struct {
	// InputText is the user's message.
	InputText string

	// History holds earlier turns, oldest first, excluding InputText.
	History []Message

	// Balances is nil for anonymous users.
	Balances *Balances
}

// WorkflowResult is the final answer.
type WorkflowResult struct {
	Text           string
	Classification Classification
}

// WorkflowConfig selects models for each stage.
type WorkflowConfig struct {
	ClassifierModel  string `yaml:"classifier_model"`
	ClassifierEffort string `yaml:"classifier_effort"`
	ResponderModel   string `yaml:"responder_model"`
	ResponderEffort  string `yaml:"responder_effort"`

	// HistoryLimit caps how many earlier turns are sent. 0 sends none.
	HistoryLimit int `yaml:"history_limit"`
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		ClassifierModel:  "gpt-5-nano",
		ClassifierEffort: "medium",
		ResponderModel:   "gpt-5",
		ResponderEffort:  "low",
		HistoryLimit:     20,
	}
}

// Workflow is the two stage financial reasoning pipeline.
//
// # Description
//
// Stage 1 classifies the message with a structured output call and drafts
// a tentative answer. Off-topic messages stop there and return the canned
// reply. Finance questions go to stage 2, where the responder model
// streams the final answer using the draft (and balances, when known) as
// its instructions.
//
// # Thread Safety
//
// Safe for concurrent use if the LLMClient is.
type Workflow struct {
	client LLMClient
	cfg    WorkflowConfig
}

func NewWorkflow(client LLMClient, cfg WorkflowConfig) *Workflow {
	def := DefaultWorkflowConfig()
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = def.ClassifierModel
	}
	if cfg.ResponderModel == "" {
		cfg.ResponderModel = def.ResponderModel
	}
	return &Workflow{client: client, cfg: cfg}
}

// Run executes the workflow. Answer text is delivered to callback as
// StreamEventToken events; the returned result holds the full text.
//
// # Outputs
//
//   - *WorkflowResult: Never nil when error is nil. Text is never empty.
//   - error: Classification or streaming failure.
func (w *Workflow) Run(ctx context.Context, in WorkflowInput, callback StreamCallback) (result *WorkflowResult, err error) {
	ctx, span := startWorkflowSpan(ctx, in)
	defer func() {
		var cls Classification
		if result != nil {
			cls = result.Classification
		}
		setWorkflowSpanResult(span, cls, err)
		span.End()
	}()

	text := strings.TrimSpace(in.InputText)
	if text == "" {
		return nil, errors.New("workflow input is empty")
	}
	conversation := append(w.history(in.History), Message{Role: RoleUser, Content: text})

	var cls Classification
	err = w.client.StructuredChat(ctx, conversation, GenerationParams{
		Model:           w.cfg.ClassifierModel,
		ReasoningEffort: w.cfg.ClassifierEffort,
		Instructions:    classifierInstructions,
	}, classificationSchema, &cls)
	if err != nil {
		return nil, fmt.Errorf("classify message: %w", err)
	}
	slog.Debug("message classified",
		"finance_question", cls.FinanceQuestion,
		"valid_prompt", cls.ValidPromptResponse,
		"balance_query", cls.MonetaryBalanceQuery)

	if !cls.FinanceQuestion {
		reply := cls.TentativeResponse
		if strings.TrimSpace(reply) == "" {
			reply = NonFinanceReply
		}
		if err := emit(callback, reply); err != nil {
			return nil, err
		}
		return &WorkflowResult{Text: reply, Classification: cls}, nil
	}

	var streamed strings.Builder
	answer, err := w.client.ChatStream(ctx, conversation, GenerationParams{
		Model:           w.cfg.ResponderModel,
		ReasoningEffort: w.cfg.ResponderEffort,
		Instructions:    responderInstructions(cls.TentativeResponse, in.Balances),
	}, func(ev StreamEvent) error {
		if ev.Type != StreamEventToken {
			return nil
		}
		streamed.WriteString(ev.Content)
		if callback == nil {
			return nil
		}
		return callback(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	// Streamed deltas, trimmed, always match the returned text.
	if strings.TrimSpace(answer) == "" {
		answer = cls.TentativeResponse
	}
	if strings.TrimSpace(streamed.String()) == "" {
		if err := emit(callback, answer); err != nil {
			return nil, err
		}
	}
	return &WorkflowResult{Text: answer, Classification: cls}, nil
}

func (w *Workflow) history(turns []Message) []Message {
	if w.cfg.HistoryLimit <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > w.cfg.HistoryLimit {
		turns = turns[len(turns)-w.cfg.HistoryLimit:]
	}
	out := make([]Message, len(turns))
	copy(out, turns)
	return out
}

func responderInstructions(tentative string, balances *Balances) string {
	var b strings.Builder
	b.WriteString(responderPreamble)
	if balances != nil {
		b.WriteString("\n\nHere is the user's financial data:\n")
		fmt.Fprintf(&b, "Cash balance: %s\n", balances.Cash.Display())
		fmt.Fprintf(&b, "Savings balance: %s\n", balances.Savings.Display())
		fmt.Fprintf(&b, "Investing/Retirement: %s\n", balances.InvestingRetirement.Display())
	}
	if tentative = strings.TrimSpace(tentative); tentative != "" {
		b.WriteString("\nDraft answer to refine:\n")
		b.WriteString(tentative)
	}
	return b.String()
}

func emit(callback StreamCallback, text string) error {
	if callback == nil || text == "" {
		return nil
	}
	return callback(StreamEvent{Type: StreamEventToken, Content: text})
}
