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

package session

import (
	"expvar"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"

	"github.com/tracewireio/tracewire/pkg/trace"
)

var (
	activeCallsGauge = expvar.NewInt("session.calls.active")
	totalCallsGauge  = expvar.NewInt("session.calls.total")
)

// methodKey identifies a registered (module, function) pair.
type methodKey struct{ module, function string }

// Session is the per-process singleton collecting every Call Record
// produced between Instrumentor.Enable and the Finalizer's first run.
// It is mutated only by the Instrumentor and frozen by the Finalizer;
// after Freeze, all mutating methods are no-ops (§3 "once a session is
// finalized no further mutation is allowed").
type Session struct {
	id        string
	language  string
	processID int
	startedAt time.Time
	endedAt   time.Time

	// active is the global call_id -> *Record lookup consulted on frame
	// exit; it is the "concurrent map" the concurrency model requires
	// (§5). A RWMutex-guarded map matches the teacher's snapshotter
	// discipline more closely than sync.Map, and lets us keep the
	// completed-records append under the same short critical section.
	mu        sync.RWMutex
	active    map[string]*Record
	completed []*Record
	ring      *deque.Deque // non-nil only in bounded/ring mode; stores *Record
	ringCap   int

	registeredMu sync.RWMutex
	registered   map[methodKey]struct{}

	totalCalls  atomic.Int64
	activeCalls atomic.Int64
	callSeq     atomic.Int64

	finalized atomic.Bool
}

// New constructs a fresh Session. ringCapacity of 0 keeps every completed
// record (the default); a positive value switches to the bounded ring
// buffer mode spec.md §5 allows ("An implementation may switch to a ring
// buffer if configured").
func New(language string, processID int, ringCapacity int) *Session {
	s := &Session{
		id:        newSessionID(),
		language:  language,
		processID: processID,
		startedAt: time.Now(),
		active:    make(map[string]*Record, 256),
		registered: make(map[methodKey]struct{}, 256),
		ringCap:   ringCapacity,
	}
	if ringCapacity > 0 {
		s.ring = deque.New(ringCapacity)
	}
	return s
}

func newSessionID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405.000000Z"), uuid.New().String()[:8])
}

// ID returns the session identifier assigned at construction time.
func (s *Session) ID() string { return s.id }

// Language returns the language tag recorded in every emitted event.
func (s *Session) Language() string { return s.language }

// ProcessID returns the host process id.
func (s *Session) ProcessID() int { return s.processID }

// StartedAt returns the wall-clock construction time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// EndedAt returns the wall-clock time recorded by Freeze, or the zero
// time if the session is still live.
func (s *Session) EndedAt() time.Time { return s.endedAt }

// Frozen reports whether Freeze has already run.
func (s *Session) Frozen() bool { return s.finalized.Load() }

// Freeze marks the session immutable. It is idempotent: only the first
// caller gets true and stamps EndedAt; subsequent calls are no-ops that
// return false, matching the Finalizer's own idempotence requirement.
func (s *Session) Freeze() bool {
	if !s.finalized.CompareAndSwap(false, true) {
		return false
	}
	s.endedAt = time.Now()
	return true
}

// NextCallID mints a process-unique, monotonically increasing call
// identifier. It never blocks and never allocates beyond the string
// conversion, keeping frame entry wait-free.
func (s *Session) NextCallID() string {
	n := s.callSeq.Add(1)
	return strconv.FormatInt(n, 10)
}

// TotalCalls returns the lifetime count of calls recorded, monotonically
// non-decreasing and bounded above by the Instrumentor's max_calls.
func (s *Session) TotalCalls() int64 { return s.totalCalls.Load() }

// ActiveCalls returns the number of calls currently open across all
// threads.
func (s *Session) ActiveCalls() int64 { return s.activeCalls.Load() }

// IncrementTotal records one more call having been seen and returns the
// new total. Callers compare the result against max_calls themselves
// (the Instrumentor, not the Session, owns budget policy).
func (s *Session) IncrementTotal() int64 {
	n := s.totalCalls.Add(1)
	totalCallsGauge.Set(n)
	return n
}

// Open registers r as active: reachable from the global lookup used on
// frame exit. The caller is responsible for also pushing r onto the
// relevant thread's local stack.
func (s *Session) Open(r *Record) {
	if s.Frozen() {
		return
	}
	s.mu.Lock()
	s.active[r.CallID] = r
	s.mu.Unlock()
	n := s.activeCalls.Add(1)
	activeCallsGauge.Set(n)
}

// Close removes callID from the active lookup (if present), appends r to
// the completed sequence, and returns whether callID was found — a
// mismatch here is the "coherence warning" condition from §4.1 step 2.
func (s *Session) Close(callID string, r *Record) (found bool) {
	if s.Frozen() {
		return false
	}
	s.mu.Lock()
	_, found = s.active[callID]
	delete(s.active, callID)
	if s.ring != nil {
		if s.ring.Len() == s.ringCap {
			s.ring.PopFront()
		}
		s.ring.PushBack(r)
	} else {
		s.completed = append(s.completed, r)
	}
	s.mu.Unlock()

	n := s.activeCalls.Add(-1)
	activeCallsGauge.Set(n)
	recordsCompleted.Add(1)
	if !found {
		coherenceWarnings.Add(1)
	}
	return found
}

// Find returns the active record for callID, or nil.
func (s *Session) Find(callID string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[callID]
}

// CompletedRecords returns a snapshot copy of every closed record, in
// append order (or ring order, oldest first, in bounded mode).
func (s *Session) CompletedRecords() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ring != nil {
		out := make([]*Record, s.ring.Len())
		for i := 0; i < s.ring.Len(); i++ {
			out[i] = s.ring.At(i).(*Record)
		}
		return out
	}
	out := make([]*Record, len(s.completed))
	copy(out, s.completed)
	return out
}

// RegisterMethod adds (module, function) to the set of methods ever
// observed entering the engine, seeding dead-code analysis downstream.
func (s *Session) RegisterMethod(module, function string) {
	if s.Frozen() {
		return
	}
	k := methodKey{module, function}
	s.registeredMu.RLock()
	_, ok := s.registered[k]
	s.registeredMu.RUnlock()
	if ok {
		return
	}
	s.registeredMu.Lock()
	s.registered[k] = struct{}{}
	s.registeredMu.Unlock()
}

// RegisteredMethods returns a snapshot of every (module, function) pair
// ever observed, order is not significant.
func (s *Session) RegisteredMethods() []trace.MethodRef {
	s.registeredMu.RLock()
	defer s.registeredMu.RUnlock()
	out := make([]trace.MethodRef, 0, len(s.registered))
	for k := range s.registered {
		out = append(out, trace.MethodRef{Module: k.module, Function: k.function})
	}
	return out
}
