// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatkit

import (
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// Threads
// =============================================================================

// ThreadStatus is "active" for every thread this server creates.
type ThreadStatus struct {
	Type string `json:"type"`
}

// ActiveStatus is the status of an open thread.
var ActiveStatus = ThreadStatus{Type: "active"}

// ThreadMetadata describes a thread without its items.
type ThreadMetadata struct {
	ID        string         `json:"id"`
	Title     *string        `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	Status    ThreadStatus   `json:"status"`
	Metadata  map[string]any `json:"metadata"`
}

// Thread is a thread with one page of its items.
type Thread struct {
	ThreadMetadata
	Items Page[ThreadItem] `json:"items"`
}

// =============================================================================
// Items
// =============================================================================

type ItemType string

const (
	ItemUserMessage      ItemType = "user_message"
	ItemAssistantMessage ItemType = "assistant_message"
)

// Content part types.
const (
	PartInputText  = "input_text"
	PartOutputText = "output_text"
)

// ContentPart is one piece of message content. Annotations are only
// emitted for output_text parts.
type ContentPart struct {
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	Annotations []json.RawMessage `json:"annotations,omitempty"`
}

func (p ContentPart) MarshalJSON() ([]byte, error) {
	type alias ContentPart
	if p.Type != PartOutputText {
		return json.Marshal(alias(p))
	}
	wire := struct {
		alias
		Annotations []json.RawMessage `json:"annotations"`
	}{alias: alias(p), Annotations: p.Annotations}
	if wire.Annotations == nil {
		wire.Annotations = []json.RawMessage{}
	}
	return json.Marshal(wire)
}

// ThreadItem is a user or assistant message in a thread.
type ThreadItem struct {
	ID               string            `json:"id"`
	ThreadID         string            `json:"thread_id"`
	Type             ItemType          `json:"type"`
	CreatedAt        time.Time         `json:"created_at"`
	Content          []ContentPart     `json:"content"`
	Attachments      []json.RawMessage `json:"attachments,omitempty"`
	QuotedText       string            `json:"quoted_text,omitempty"`
	InferenceOptions map[string]any    `json:"inference_options,omitempty"`
}

// MarshalJSON always writes attachments and inference_options for user
// messages, which the front-end expects to be present.
func (it ThreadItem) MarshalJSON() ([]byte, error) {
	type alias ThreadItem
	if it.Type != ItemUserMessage {
		return json.Marshal(alias(it))
	}
	wire := struct {
		alias
		Attachments      []json.RawMessage `json:"attachments"`
		InferenceOptions map[string]any    `json:"inference_options"`
	}{alias: alias(it), Attachments: it.Attachments, InferenceOptions: it.InferenceOptions}
	if wire.Attachments == nil {
		wire.Attachments = []json.RawMessage{}
	}
	if wire.InferenceOptions == nil {
		wire.InferenceOptions = map[string]any{}
	}
	return json.Marshal(wire)
}

// Text joins the item's text parts with single spaces.
func (it ThreadItem) Text() string {
	parts := make([]string, 0, len(it.Content))
	for _, p := range it.Content {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// =============================================================================
// Pages
// =============================================================================

// Order is the sort direction of a page.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Page is one window of a list.
type Page[T any] struct {
	Data    []T     `json:"data"`
	HasMore bool    `json:"has_more"`
	After   *string `json:"after"`
}

// =============================================================================
// Stream events
// =============================================================================

type EventType string

const (
	EventThreadCreated EventType = "thread.created"
	EventThreadUpdated EventType = "thread.updated"
	EventItemAdded     EventType = "thread.item.added"
	EventItemUpdated   EventType = "thread.item.updated"
	EventItemDone      EventType = "thread.item.done"
	EventError         EventType = "error"
)

// UpdateTextDelta is the update type carrying streamed assistant text.
const UpdateTextDelta = "assistant_message.content_part.text_delta"

// ItemUpdate is the payload of a thread.item.updated event.
type ItemUpdate struct {
	Type         string `json:"type"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

// Event is a single server-sent stream event.
type Event struct {
	Type       EventType   `json:"type"`
	Thread     *Thread     `json:"thread,omitempty"`
	Item       *ThreadItem `json:"item,omitempty"`
	ItemID     string      `json:"item_id,omitempty"`
	Update     *ItemUpdate `json:"update,omitempty"`
	Code       string      `json:"code,omitempty"`
	Message    string      `json:"message,omitempty"`
	AllowRetry bool        `json:"allow_retry,omitempty"`
}

// =============================================================================
// Requests
// =============================================================================

type RequestType string

const (
	RequestThreadsCreate         RequestType = "threads.create"
	RequestThreadsAddUserMessage RequestType = "threads.add_user_message"
	RequestThreadsRetryAfterItem RequestType = "threads.retry_after_item"
	RequestThreadsGetByID        RequestType = "threads.get_by_id"
	RequestThreadsList           RequestType = "threads.list"
	RequestItemsList             RequestType = "items.list"
	RequestThreadsUpdate         RequestType = "threads.update"
	RequestThreadsDelete         RequestType = "threads.delete"
	RequestItemsFeedback         RequestType = "items.feedback"
)

// attachmentsPrefix covers attachments.create, attachments.delete, etc.
const attachmentsPrefix = "attachments."

// Request is the envelope of every protocol call.
type Request struct {
	Type     RequestType     `json:"type"`
	Params   json.RawMessage `json:"params"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// UserMessageInput is the user's new message.
type UserMessageInput struct {
	Content          []ContentPart  `json:"content"`
	Attachments      []string       `json:"attachments"`
	QuotedText       string         `json:"quoted_text,omitempty"`
	InferenceOptions map[string]any `json:"inference_options,omitempty"`
}

type createThreadParams struct {
	Input UserMessageInput `json:"input"`
}

type addUserMessageParams struct {
	ThreadID string           `json:"thread_id"`
	Input    UserMessageInput `json:"input"`
}

type retryAfterItemParams struct {
	ThreadID string `json:"thread_id"`
	ItemID   string `json:"item_id"`
}

type threadIDParams struct {
	ThreadID string `json:"thread_id"`
}

type listThreadsParams struct {
	Limit int    `json:"limit"`
	After string `json:"after"`
	Order Order  `json:"order"`
}

type listItemsParams struct {
	ThreadID string `json:"thread_id"`
	Limit    int    `json:"limit"`
	After    string `json:"after"`
	Order    Order  `json:"order"`
}

type updateThreadParams struct {
	ThreadID string `json:"thread_id"`
	Title    string `json:"title"`
}

type feedbackParams struct {
	ThreadID string   `json:"thread_id"`
	ItemIDs  []string `json:"item_ids"`
	Kind     string   `json:"kind"`
}
