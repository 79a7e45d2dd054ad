/*
 * Copyright 2024 by the tracewire authors
 * https://tracewire.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package trace defines the wire record broadcast to stream subscribers
// and persisted by the Session Finalizer: a single, schema-tagged struct
// mirroring the teacher's kevent.Kevent shape rather than a Go sum type,
// since the contract (§3) requires unknown-field-tolerant, flat JSON
// lines rather than a polymorphic encoding.
package trace

// Type discriminates the tagged union carried by Event.
type Type string

const (
	Call             Type = "call"
	Return           Type = "return"
	Exception        Type = "exception"
	FunctionRegistry Type = "function_registry"
)

// InvocationType classifies how a call was reached, assigned by the
// Protocol Classifier.
type InvocationType string

const (
	APIEntry      InvocationType = "API_ENTRY"
	EventHandler  InvocationType = "EVENT_HANDLER"
	Scheduled     InvocationType = "SCHEDULED"
	Callback      InvocationType = "CALLBACK"
	Internal      InvocationType = "INTERNAL"
)

// MethodRef identifies one (module, function) pair ever instrumented in
// a session; the payload of a FunctionRegistry event.
type MethodRef struct {
	Module   string `json:"module"`
	Function string `json:"function"`
}

// Event is the line-delimited JSON record emitted to subscribers and
// optionally persisted. Field order is not significant and consumers
// must ignore unknown fields (§3); all fields beyond the common ones are
// therefore `omitempty` so a `call` line never carries stray `return`
// fields and vice versa.
type Event struct {
	Type      Type    `json:"type"`
	Timestamp float64 `json:"timestamp"`
	SessionID string  `json:"session_id"`
	ProcessID int     `json:"process_id"`
	Language  string  `json:"language"`

	// Identity, shared by call and return.
	CallID     string `json:"call_id,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
	ThreadID   string `json:"thread_id,omitempty"`
	ThreadName string `json:"thread_name,omitempty"`
	Depth      int    `json:"depth,omitempty"`

	// Location and context, call-only.
	Module         string         `json:"module,omitempty"`
	Function       string         `json:"function,omitempty"`
	File           string         `json:"file,omitempty"`
	Line           int            `json:"line,omitempty"`
	Signature      string         `json:"signature,omitempty"`
	Protocol       string         `json:"protocol,omitempty"`
	InvocationType InvocationType `json:"invocation_type,omitempty"`

	// Outcome, return/exception-only.
	DurationMs       float64 `json:"duration_ms,omitempty"`
	ExceptionKind    string  `json:"exception_kind,omitempty"`
	ExceptionMessage string  `json:"exception_message,omitempty"`

	// FunctionRegistry-only payload.
	RegisteredMethods []MethodRef `json:"registered_methods,omitempty"`
}

// HasException reports whether the event closed via an exception.
func (e *Event) HasException() bool {
	return e.ExceptionKind != ""
}
