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

package instrument

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tracewireio/tracewire/pkg/session"
)

type ctxKey struct{}

// stackEntry is one live frame on a thread's stack. record is nil for a
// placeholder — a frame that was not recorded because the engine was not
// Enabled, an ancestor was untracked (§4.1 step 3), it was too deep, the
// filter rejected it, or the call budget was spent — which still occupies
// a stack slot so depth accounting stays correct for its siblings and
// descendants. Frames skipped by dedup or sampling are not placeholders:
// they keep a full record and are only left out of the stream.
type stackEntry struct {
	record *session.Record
	traced bool
}

// threadState is the per-thread call stack and re-entry guard (§5 "Each
// thread owns its call stack and re-entry guard as thread-local
// storage"). Go has no implicit per-OS-thread storage for an explicit
// Enter/exit frame source, so threadState travels on the context chain
// instead; by contract a single threadState is only ever driven by one
// logical sequence of Enter/exit calls at a time; the mutex exists as a
// safety net against accidental concurrent misuse, not as a performance
// necessity; correct, single-sequence usage never contends it.
type threadState struct {
	mu       sync.Mutex
	id       string
	name     string
	stack    []stackEntry
	inFrame  bool // re-entry guard: true while onFrameEntry/onFrameExit is executing for this thread
}

func newThreadState(name string) *threadState {
	if name == "" {
		name = "goroutine"
	}
	return &threadState{id: uuid.New().String(), name: name}
}

// WithThreadName seeds ctx with a freshly named thread state, overriding
// the default "goroutine" name a root Enter call would otherwise assign.
// Must be called before the first Enter on this context chain.
func WithThreadName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKey{}, newThreadState(name))
}

func threadStateFrom(ctx context.Context) (*threadState, context.Context) {
	if ts, ok := ctx.Value(ctxKey{}).(*threadState); ok {
		return ts, ctx
	}
	ts := newThreadState("")
	return ts, context.WithValue(ctx, ctxKey{}, ts)
}

func (ts *threadState) depth() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.stack)
}

// parentID returns the call_id of the top traced record on the stack, or
// "" if the stack is empty or every frame on it is a placeholder.
func (ts *threadState) parentID() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for i := len(ts.stack) - 1; i >= 0; i-- {
		if ts.stack[i].record != nil {
			return ts.stack[i].record.CallID
		}
	}
	return ""
}

// ancestorExcluded reports whether any frame currently on the stack was
// itself untracked, which per §4.1 step 3 means every descendant is
// untracked too regardless of its own filter decision.
func (ts *threadState) ancestorExcluded() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, e := range ts.stack {
		if !e.traced {
			return true
		}
	}
	return false
}

func (ts *threadState) push(e stackEntry) {
	ts.mu.Lock()
	ts.stack = append(ts.stack, e)
	ts.mu.Unlock()
}

// pop removes and returns the top entry. ok is false if the stack was
// already empty (the coherence-mismatch case callers must treat
// gracefully).
func (ts *threadState) pop() (e stackEntry, ok bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.stack) == 0 {
		return stackEntry{}, false
	}
	n := len(ts.stack) - 1
	e = ts.stack[n]
	ts.stack = ts.stack[:n]
	return e, true
}
