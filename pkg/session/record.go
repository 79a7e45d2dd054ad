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

// Package session owns the Call Record and Session types: the in-memory
// description of one function invocation and the per-process singleton
// collecting them. The shape is grounded on the teacher's
// ps.Snapshotter (an RWMutex-guarded map with Find/Write/Remove and
// expvar gauges) generalized from "live processes" to "live calls".
package session

import (
	"expvar"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tracewireio/tracewire/pkg/trace"
)

var (
	recordsCompleted = expvar.NewInt("session.records.completed")
	coherenceWarnings = expvar.NewInt("session.coherence.warnings")
)

// maxExceptionMessage bounds the exception message captured on a closing
// frame (§4.1: "truncated").
const maxExceptionMessage = 2048

// Record is one active or completed function invocation.
//
// Invariants (spec.md §3):
//   - ParentID is non-empty iff Depth > 0.
//   - ParentID refers to a record that is an ancestor on the same
//     thread (enforced by construction: a record's parent is always
//     the element below it on that thread's stack at entry time).
//   - StartNs <= EndNs once closed.
//   - A Record is immutable once Close has been called; callers must
//     not retain pointers across the close for further mutation.
type Record struct {
	// Identity.
	CallID     string
	ParentID   string
	ThreadID   string
	ThreadName string
	SessionID  string

	// Location.
	Module    string
	Function  string
	File      string
	Line      int
	Signature string

	// Timing.
	StartNs int64
	EndNs   int64

	// Context.
	Depth          int
	Protocol       string
	InvocationType trace.InvocationType

	// Outcome.
	ExceptionKind    string
	ExceptionMessage string

	closed bool
}

// DurationMs returns the closed duration. Close must have been called.
func (r *Record) DurationMs() float64 {
	d := r.EndNs - r.StartNs
	if d < 0 {
		d = 0
	}
	return float64(d) / 1e6
}

// Close finalizes timing and, if non-empty, the exception outcome. It is
// the single mutation point after which a Record must be treated as
// read-only; a second call is a no-op protecting the immutability
// invariant.
func (r *Record) Close(endNs int64, exceptionKind, exceptionMessage string) {
	if r.closed {
		return
	}
	if endNs < r.StartNs {
		// A non-monotonic clock between entry and exit (§4.1 edge
		// case): clamp rather than report a negative duration.
		endNs = r.StartNs
	}
	r.EndNs = endNs
	if exceptionKind != "" {
		r.ExceptionKind = exceptionKind
		r.ExceptionMessage = truncateMessage(exceptionMessage)
	}
	r.closed = true
}

// Closed reports whether Close has already run.
func (r *Record) Closed() bool { return r.closed }

func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= maxExceptionMessage {
		return msg
	}
	// Truncate on a rune boundary so a multi-byte character at the cut
	// point is never split.
	var b strings.Builder
	n := 0
	for _, r := range msg {
		if n >= maxExceptionMessage {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String() + "…"
}

// ToCallEvent renders the record's entry as a `call` trace.Event.
func (r *Record) ToCallEvent(now time.Time, processID int, language string) *trace.Event {
	return &trace.Event{
		Type:           trace.Call,
		Timestamp:      float64(now.UnixNano()) / 1e9,
		SessionID:      r.SessionID,
		ProcessID:      processID,
		Language:       language,
		CallID:         r.CallID,
		ParentID:       r.ParentID,
		ThreadID:       r.ThreadID,
		ThreadName:     r.ThreadName,
		Depth:          r.Depth,
		Module:         r.Module,
		Function:       r.Function,
		File:           r.File,
		Line:           r.Line,
		Signature:      r.Signature,
		Protocol:       r.Protocol,
		InvocationType: r.InvocationType,
	}
}

// ToReturnEvent renders the record's exit as a `return` trace.Event. The
// record must already be closed.
func (r *Record) ToReturnEvent(now time.Time, processID int, language string) *trace.Event {
	return &trace.Event{
		Type:             trace.Return,
		Timestamp:        float64(now.UnixNano()) / 1e9,
		SessionID:        r.SessionID,
		ProcessID:        processID,
		Language:         language,
		CallID:           r.CallID,
		ParentID:         r.ParentID,
		Depth:            r.Depth,
		DurationMs:       r.DurationMs(),
		ExceptionKind:    r.ExceptionKind,
		ExceptionMessage: r.ExceptionMessage,
	}
}
