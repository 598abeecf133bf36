// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chatkit implements the server side of the chat widget protocol
// for the Spendo assistant.
//
// A request arrives as a JSON envelope with a "type". Thread mutations
// that produce an assistant answer are streamed back as a sequence of
// events; reads and simple updates return a single JSON document. Threads
// live in a ThreadStore (in memory or BadgerDB), answers come from the
// financial reasoning workflow, and the user behind a thread is worked
// out by IdentityResolver so answers can use the user's balances.
package chatkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spendoapp/spendo/services/llm"
	"github.com/spendoapp/spendo/services/store"
)

var (
	// ErrEmptyPayload is returned for an empty request body.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrUnknownRequest is returned for an unrecognized request type.
	ErrUnknownRequest = errors.New("unknown request type")

	// ErrAttachmentsUnsupported is returned for any attachment operation.
	ErrAttachmentsUnsupported = errors.New("File attachments are not yet supported.")

	// ErrInvalidRequest wraps malformed params.
	ErrInvalidRequest = errors.New("invalid request")
)

// DefaultPageSize is used when a list request has no limit.
const DefaultPageSize = 20

// titleLength caps generated thread titles.
const titleLength = 64

// errorReplyPrefix starts the assistant reply stored when the workflow fails.
const errorReplyPrefix = "I encountered an error: "

// Workflow produces assistant answers.
type Workflow interface {
	Run(ctx context.Context, in llm.WorkflowInput, callback llm.StreamCallback) (*llm.WorkflowResult, error)
}

// BalanceSource supplies a user's balances for answer context.
type BalanceSource interface {
	BalanceSummary(ctx context.Context, userID int64) (*store.BalanceSummary, error)
}

// Redactor masks sensitive values in text bound for the language model.
// It reports how many values were masked.
type Redactor interface {
	Redact(text string) (string, int)
}

// Config wires a Server.
type Config struct {
	Store    ThreadStore
	Workflow Workflow
	Identity *IdentityResolver

	// Balances is optional. Without it answers never carry balances.
	Balances BalanceSource

	// Redactor is optional. Stored items keep the original text; only
	// the workflow input is masked.
	Redactor Redactor

	// HistoryLimit caps earlier turns passed to the workflow. Defaults to 20.
	HistoryLimit int

	// StreamBuffer is the event channel capacity. Defaults to 16.
	StreamBuffer int

	Logger *slog.Logger
}

// Server dispatches protocol requests.
//
// # Thread Safety
//
// Safe for concurrent use.
type Server struct {
	store        ThreadStore
	workflow     Workflow
	identity     *IdentityResolver
	balances     BalanceSource
	redactor     Redactor
	historyLimit int
	buffer       int
	logger       *slog.Logger
	now          func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("thread store is required")
	}
	if cfg.Workflow == nil {
		return nil, errors.New("workflow is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 16
	}
	return &Server{
		store:        cfg.Store,
		workflow:     cfg.Workflow,
		identity:     cfg.Identity,
		balances:     cfg.Balances,
		redactor:     cfg.Redactor,
		historyLimit: cfg.HistoryLimit,
		buffer:       cfg.StreamBuffer,
		logger:       cfg.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// =============================================================================
// Results
// =============================================================================

// Result is either a stream of events or a single JSON document.
type Result struct {
	events <-chan Event
	json   []byte
}

// Streaming reports whether the result must be consumed with Events.
func (r *Result) Streaming() bool { return r.events != nil }

// Events yields stream events until the channel is closed. The producer
// stops early when the Process context is cancelled.
func (r *Result) Events() <-chan Event { return r.events }

// JSON is the body of a non-streaming result.
func (r *Result) JSON() []byte { return r.json }

func jsonResult(v any) (*Result, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Result{json: raw}, nil
}

// =============================================================================
// Dispatch
// =============================================================================

// Process handles one protocol request.
//
// # Inputs
//
//   - ctx: Bounds the whole request, including the stream producer.
//   - payload: The raw request body.
//   - caller: The authenticated requester, if any.
//
// # Outputs
//
//   - *Result: Streaming or JSON.
//   - error: ErrEmptyPayload, ErrUnknownRequest, ErrAttachmentsUnsupported,
//     ErrInvalidRequest, ErrThreadNotFound, ErrItemNotFound, or a store error.
//     Failures after streaming starts are reported as events instead.
func (s *Server) Process(ctx context.Context, payload []byte, caller Caller) (*Result, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ErrEmptyPayload
	}
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	s.logger.Debug("chat request", "type", req.Type, "authenticated", caller.Authenticated)

	if strings.HasPrefix(string(req.Type), attachmentsPrefix) {
		return nil, ErrAttachmentsUnsupported
	}

	switch req.Type {
	case RequestThreadsCreate:
		return s.createThread(ctx, req, caller)
	case RequestThreadsAddUserMessage:
		return s.addUserMessage(ctx, req, caller)
	case RequestThreadsRetryAfterItem:
		return s.retryAfterItem(ctx, req, caller)
	case RequestThreadsGetByID:
		return s.getThread(ctx, req)
	case RequestThreadsList:
		return s.listThreads(ctx, req)
	case RequestItemsList:
		return s.listItems(ctx, req)
	case RequestThreadsUpdate:
		return s.updateThread(ctx, req, caller)
	case RequestThreadsDelete:
		return s.deleteThread(ctx, req)
	case RequestItemsFeedback:
		return s.feedback(req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}
}

func decodeParams(req Request, out any) error {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return fmt.Errorf("%w: %s params: %v", ErrInvalidRequest, req.Type, err)
	}
	return nil
}

// =============================================================================
// Streaming requests
// =============================================================================

func (s *Server) createThread(ctx context.Context, req Request, caller Caller) (*Result, error) {
	var p createThreadParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if len(p.Input.Attachments) > 0 {
		return nil, ErrAttachmentsUnsupported
	}

	thread := &ThreadMetadata{
		ID:        s.store.GenerateThreadID(),
		CreatedAt: s.now(),
		Status:    ActiveStatus,
		Metadata:  copyMetadata(req.Metadata),
	}
	userItem := s.newUserItem(thread.ID, p.Input)
	if title := makeTitle(userItem.Text()); title != "" {
		thread.Title = &title
	}
	if err := s.store.SaveThread(ctx, thread, caller); err != nil {
		return nil, fmt.Errorf("save thread: %w", err)
	}

	return s.stream(ctx, func(send sender) {
		if !send(Event{Type: EventThreadCreated, Thread: &Thread{ThreadMetadata: *thread, Items: emptyItems()}}) {
			return
		}
		if !s.addUserItem(ctx, thread, userItem, send) {
			return
		}
		s.respond(ctx, thread, userItem, caller, send)
	}), nil
}

func (s *Server) addUserMessage(ctx context.Context, req Request, caller Caller) (*Result, error) {
	var p addUserMessageParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if len(p.Input.Attachments) > 0 {
		return nil, ErrAttachmentsUnsupported
	}
	thread, err := s.store.LoadThread(ctx, p.ThreadID)
	if err != nil {
		return nil, err
	}
	userItem := s.newUserItem(thread.ID, p.Input)

	return s.stream(ctx, func(send sender) {
		if !s.addUserItem(ctx, thread, userItem, send) {
			return
		}
		s.respond(ctx, thread, userItem, caller, send)
	}), nil
}

// retryAfterItem drops everything after the given user message and
// answers it again.
func (s *Server) retryAfterItem(ctx context.Context, req Request, caller Caller) (*Result, error) {
	var p retryAfterItemParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	thread, err := s.store.LoadThread(ctx, p.ThreadID)
	if err != nil {
		return nil, err
	}
	target, err := s.store.LoadItem(ctx, thread.ID, p.ItemID)
	if err != nil {
		return nil, err
	}

	later, err := s.store.LoadThreadItems(ctx, thread.ID, target.ID, 0, OrderAsc)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	for _, it := range later.Data {
		if err := s.store.DeleteThreadItem(ctx, thread.ID, it.ID); err != nil {
			return nil, fmt.Errorf("delete item %s: %w", it.ID, err)
		}
	}

	return s.stream(ctx, func(send sender) {
		s.respond(ctx, thread, *target, caller, send)
	}), nil
}

// sender delivers one event; false means the consumer is gone.
type sender func(Event) bool

// stream runs produce on its own goroutine and returns the event channel.
func (s *Server) stream(ctx context.Context, produce func(send sender)) *Result {
	ch := make(chan Event, s.buffer)
	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("chat stream panicked", "panic", r)
				send(Event{Type: EventError, Code: "stream.error", Message: "An internal error occurred.", AllowRetry: true})
			}
		}()
		produce(send)
	}()
	return &Result{events: ch}
}

func (s *Server) newUserItem(threadID string, in UserMessageInput) ThreadItem {
	content := make([]ContentPart, 0, len(in.Content))
	for _, p := range in.Content {
		if p.Type == "" {
			p.Type = PartInputText
		}
		content = append(content, ContentPart{Type: p.Type, Text: p.Text})
	}
	return ThreadItem{
		ID:               s.store.GenerateItemID(ItemUserMessage),
		ThreadID:         threadID,
		Type:             ItemUserMessage,
		CreatedAt:        s.now(),
		Content:          content,
		QuotedText:       in.QuotedText,
		InferenceOptions: in.InferenceOptions,
	}
}

func (s *Server) addUserItem(ctx context.Context, thread *ThreadMetadata, item ThreadItem, send sender) bool {
	if err := s.store.AddThreadItem(ctx, thread.ID, item); err != nil {
		s.logger.Error("store user message failed", "thread_id", thread.ID, "error", err)
		send(Event{Type: EventError, Code: "store.error", Message: "Could not save your message.", AllowRetry: true})
		return false
	}
	return send(Event{Type: EventItemDone, Item: &item})
}

// respond answers a user message.
//
// # Description
//
// Non-user input and messages without text produce nothing. Otherwise the
// assistant item is announced, text deltas are streamed as the workflow
// produces them, and the finished item is sent and stored. A workflow
// failure becomes an assistant reply describing the error.
func (s *Server) respond(ctx context.Context, thread *ThreadMetadata, input ThreadItem, caller Caller, send sender) {
	if input.Type != ItemUserMessage {
		return
	}
	text := input.Text()
	if text == "" {
		return
	}

	in := llm.WorkflowInput{
		InputText: text,
		History:   s.history(ctx, thread.ID, input.ID),
		Balances:  s.balancesFor(ctx, thread, caller),
	}
	s.redact(thread.ID, &in)

	reply := ThreadItem{
		ID:        s.store.GenerateItemID(ItemAssistantMessage),
		ThreadID:  thread.ID,
		Type:      ItemAssistantMessage,
		CreatedAt: s.now(),
		Content:   []ContentPart{{Type: PartOutputText, Text: ""}},
	}
	if !send(Event{Type: EventItemAdded, Item: &reply}) {
		return
	}

	res, err := s.workflow.Run(ctx, in, func(ev llm.StreamEvent) error {
		if ev.Type != llm.StreamEventToken || ev.Content == "" {
			return nil
		}
		if !send(Event{
			Type:   EventItemUpdated,
			ItemID: reply.ID,
			Update: &ItemUpdate{Type: UpdateTextDelta, ContentIndex: 0, Delta: ev.Content},
		}) {
			return ctx.Err()
		}
		return nil
	})
	if ctx.Err() != nil {
		s.logger.Info("chat stream cancelled", "thread_id", thread.ID)
		return
	}

	var answer string
	if err != nil {
		s.logger.Error("workflow failed", "thread_id", thread.ID, "error", err)
		answer = errorReplyPrefix + err.Error()
	} else {
		answer = res.Text
	}
	reply.Content = []ContentPart{{Type: PartOutputText, Text: answer}}

	if err := s.store.AddThreadItem(ctx, thread.ID, reply); err != nil {
		s.logger.Error("store assistant message failed", "thread_id", thread.ID, "error", err)
	}
	send(Event{Type: EventItemDone, Item: &reply})
}

// history returns earlier turns before beforeID, oldest first.
func (s *Server) history(ctx context.Context, threadID, beforeID string) []llm.Message {
	page, err := s.store.LoadThreadItems(ctx, threadID, "", 0, OrderAsc)
	if err != nil {
		s.logger.Warn("load history failed", "thread_id", threadID, "error", err)
		return nil
	}
	var out []llm.Message
	for _, it := range page.Data {
		if it.ID == beforeID {
			break
		}
		text := it.Text()
		if text == "" {
			continue
		}
		switch it.Type {
		case ItemUserMessage:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: text})
		case ItemAssistantMessage:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: text})
		}
	}
	if len(out) > s.historyLimit {
		out = out[len(out)-s.historyLimit:]
	}
	return out
}

// redact masks the input and history in place.
func (s *Server) redact(threadID string, in *llm.WorkflowInput) {
	if s.redactor == nil {
		return
	}
	var total, n int
	in.InputText, n = s.redactor.Redact(in.InputText)
	total += n
	for i := range in.History {
		in.History[i].Content, n = s.redactor.Redact(in.History[i].Content)
		total += n
	}
	if total > 0 {
		s.logger.Info("masked sensitive values in chat input", "thread_id", threadID, "count", total)
	}
}

func (s *Server) balancesFor(ctx context.Context, thread *ThreadMetadata, caller Caller) *llm.Balances {
	if s.identity == nil {
		return nil
	}
	id, ok := s.identity.Resolve(ctx, thread, caller)
	if !ok || s.balances == nil {
		return nil
	}
	sum, err := s.balances.BalanceSummary(ctx, id.UserID)
	if err != nil {
		s.logger.Warn("balance lookup failed", "user_id", id.UserID, "error", err)
		return nil
	}
	return &llm.Balances{
		Cash:                sum.Cash,
		Savings:             sum.Savings,
		InvestingRetirement: sum.InvestingRetirement,
	}
}

// =============================================================================
// Non-streaming requests
// =============================================================================

func (s *Server) getThread(ctx context.Context, req Request) (*Result, error) {
	var p threadIDParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	thread, err := s.store.LoadThread(ctx, p.ThreadID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.LoadThreadItems(ctx, thread.ID, "", DefaultPageSize, OrderAsc)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return jsonResult(Thread{ThreadMetadata: *thread, Items: items})
}

func (s *Server) listThreads(ctx context.Context, req Request) (*Result, error) {
	var p listThreadsParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	page, err := s.store.LoadThreads(ctx, p.Limit, p.After, normalizeOrder(p.Order))
	if err != nil {
		return nil, err
	}
	out := Page[Thread]{Data: make([]Thread, 0, len(page.Data)), HasMore: page.HasMore, After: page.After}
	for _, t := range page.Data {
		out.Data = append(out.Data, Thread{ThreadMetadata: t, Items: emptyItems()})
	}
	return jsonResult(out)
}

func (s *Server) listItems(ctx context.Context, req Request) (*Result, error) {
	var p listItemsParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if _, err := s.store.LoadThread(ctx, p.ThreadID); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	page, err := s.store.LoadThreadItems(ctx, p.ThreadID, p.After, p.Limit, normalizeOrder(p.Order))
	if err != nil {
		return nil, err
	}
	return jsonResult(page)
}

func (s *Server) updateThread(ctx context.Context, req Request, caller Caller) (*Result, error) {
	var p updateThreadParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	thread, err := s.store.LoadThread(ctx, p.ThreadID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		thread.Title = nil
	} else {
		thread.Title = &title
	}
	if err := s.store.SaveThread(ctx, thread, caller); err != nil {
		return nil, fmt.Errorf("save thread: %w", err)
	}
	return jsonResult(Thread{ThreadMetadata: *thread, Items: emptyItems()})
}

func (s *Server) deleteThread(ctx context.Context, req Request) (*Result, error) {
	var p threadIDParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if _, err := s.store.LoadThread(ctx, p.ThreadID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteThread(ctx, p.ThreadID); err != nil {
		return nil, err
	}
	if s.identity != nil {
		if err := s.identity.Forget(ctx, p.ThreadID); err != nil {
			s.logger.Warn("thread owner cleanup failed", "thread_id", p.ThreadID, "error", err)
		}
	}
	return jsonResult(struct{}{})
}

func (s *Server) feedback(req Request) (*Result, error) {
	var p feedbackParams
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	s.logger.Info("chat feedback", "thread_id", p.ThreadID, "items", len(p.ItemIDs), "kind", p.Kind)
	return jsonResult(struct{}{})
}

// =============================================================================
// Helpers
// =============================================================================

func emptyItems() Page[ThreadItem] {
	return Page[ThreadItem]{Data: []ThreadItem{}}
}

// copyMetadata copies client metadata, dropping the owner key so a
// client cannot claim another user's thread.
func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == MetadataUserIDKey {
			continue
		}
		out[k] = v
	}
	return out
}

// makeTitle derives a thread title from the first message.
func makeTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= titleLength {
		return text
	}
	return strings.TrimSpace(string(runes[:titleLength-1])) + "…"
}
