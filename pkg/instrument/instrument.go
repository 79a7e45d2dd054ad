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
	"expvar"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tracewireio/tracewire/pkg/classify"
	"github.com/tracewireio/tracewire/pkg/errs"
	"github.com/tracewireio/tracewire/pkg/policy"
	"github.com/tracewireio/tracewire/pkg/session"
	"github.com/tracewireio/tracewire/pkg/trace"
)

var (
	framesDropped  = expvar.NewMap("instrument.frames.dropped")
	budgetExceeded = expvar.NewInt("instrument.budget.exceeded")
)

// Publisher is the Trace Stream Server's inbound face, as seen by the
// Instrumentor: broadcast one event to whatever subscribers are
// currently connected. A nil Publisher is valid (events are recorded in
// the Session but never broadcast), matching deployments that only want
// the persisted session file.
type Publisher interface {
	Publish(ev *trace.Event) error
}

// streamCloser is the optional second face a Publisher may implement:
// spec.md §4.1's disable() sequence closes the Stream Server before
// invoking the Finalizer, so subscribers observe a clean EOF rather than
// a race against the session file write. A Publisher that owns no
// sockets (e.g. a test double) simply doesn't implement this.
type streamCloser interface {
	Close() error
}

// Finalizer is the Session Finalizer's inbound face, as seen by the
// Instrumentor's Disable: persist the frozen session once. A nil
// Finalizer leaves persistence to the caller (e.g. a CLI driving
// Finalize itself after Disable returns).
type Finalizer interface {
	Finalize(sess *session.Session) error
}

// Budget bounds how much a single session may record before the engine
// forces itself into Disabling, per spec.md §3 ("Bounded memory").
type Budget struct {
	// MaxCalls caps the lifetime count of calls recorded; 0 disables the
	// cap.
	MaxCalls int64
	// MaxDepth caps call-stack depth per thread; frames beyond it are
	// still pushed (for depth accounting) but never recorded or streamed.
	// 0 disables the cap.
	MaxDepth int
}

// Config configures a new Instrumentor.
type Config struct {
	Language     string
	ProcessID    int
	SelfModule   string // excluded from tracing so the engine never traces itself
	RingCapacity int    // 0 keeps every completed record
	Budget       Budget
	Policy       policy.Config
	Publisher    Publisher // nil: record only, never broadcast
	Finalizer    Finalizer // nil: caller finalizes explicitly
}

// Instrumentor is the process-singleton tracing engine: spec.md §4.1's
// "frame hook" contract realized as onFrameEntry/onFrameExit, driven by
// Enter and the done closure it returns (enter.go). One Instrumentor owns
// exactly one Session for its entire Enabled lifetime.
type Instrumentor struct {
	sm *stateMachineImpl
	mu sync.Mutex // guards lifecycle transitions: Enable, Disable, and exhaustBudget (reached from onFrameEntry)

	sess *session.Session
	pol  *policy.Policy

	selfModule string
	budget     Budget

	publisher Publisher
	finalizer Finalizer

	chain *Chain
}

// New constructs an Instrumentor in the Uninstalled state. Call Enable to
// start a session.
func New(cfg Config) *Instrumentor {
	return &Instrumentor{
		sm:         newStateMachineHolder(),
		selfModule: cfg.SelfModule,
		budget:     cfg.Budget,
		publisher:  cfg.Publisher,
		finalizer:  cfg.Finalizer,
		pol:        policy.New(mergeBuiltins(cfg.Policy, cfg.SelfModule)),
		chain:      buildChain(cfg.Publisher),
	}
}

func mergeBuiltins(cfg policy.Config, selfModule string) policy.Config {
	if cfg.BuiltinExcludes == nil {
		cfg.BuiltinExcludes = policy.DefaultBuiltinExcludes(selfModule)
	}
	return cfg
}

func buildChain(pub Publisher) *Chain {
	stages := []Stage{}
	if pub != nil {
		stages = append(stages, &publishStage{pub: pub})
	}
	return NewChain(stages...)
}

// newSession is split out of New: an Instrumentor exists without a
// Session until Enable mints one.
func (in *Instrumentor) newSession(language string, processID, ringCapacity int) {
	in.sess = session.New(language, processID, ringCapacity)
}

// Enable transitions Uninstalled -> Enabled, minting a fresh Session.
// Calling Enable a second time returns errs.ErrAlreadyEnabled.
func (in *Instrumentor) Enable(language string, processID, ringCapacity int) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.sm.current() != StateUninstalled {
		return errs.ErrAlreadyEnabled
	}
	if err := in.sm.fire(triggerEnable); err != nil {
		return err
	}
	in.newSession(language, processID, ringCapacity)
	log.WithFields(log.Fields{
		"session_id": in.sess.ID(),
		"language":   language,
	}).Info("instrument: session enabled")
	return nil
}

// Disable transitions Enabled -> Disabling -> Finalized, freezing the
// Session and, if a Finalizer was configured, persisting it. Disable is
// idempotent: calling it again after Finalized returns errs.ErrFinalized.
func (in *Instrumentor) Disable() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.disableLocked(triggerDisable)
}

func (in *Instrumentor) disableLocked(trigger string) error {
	switch in.sm.current() {
	case StateFinalized:
		return errs.ErrFinalized
	case StateDisabling:
		// already in progress from a prior budget exhaustion; fall
		// through to finalize.
	case StateEnabled:
		if err := in.sm.fire(trigger); err != nil {
			return err
		}
	case StateUninstalled:
		return errs.ErrNotEnabled
	}

	in.sess.Freeze()

	// Close the Stream Server before the Finalizer runs, per spec.md
	// §4.1/§4.4: subscribers must see a clean EOF rather than race the
	// session file being written. Publisher itself carries no Close (a
	// publish-only Publisher, e.g. in tests, needn't have one); a real
	// *stream.Server satisfies streamCloser and is closed here.
	if closer, ok := in.publisher.(streamCloser); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("instrument: stream server close failed")
		}
	}
	if in.chain != nil {
		_ = in.chain.Close()
	}

	var ferr error
	if in.finalizer != nil {
		ferr = in.finalizer.Finalize(in.sess)
	}
	if err := in.sm.fire(triggerFinalize); err != nil && ferr == nil {
		ferr = err
	}
	log.WithField("session_id", in.sess.ID()).Info("instrument: session finalized")
	return ferr
}

// State returns the engine's current lifecycle state.
func (in *Instrumentor) State() string { return in.sm.current() }

// Session returns the live (or frozen) session, or nil if never enabled.
func (in *Instrumentor) Session() *session.Session { return in.sess }

// onFrameEntry implements spec.md §4.1's numbered entry steps. It never
// panics: the caller (Enter, in enter.go) wraps it with safeCall.
func (in *Instrumentor) onFrameEntry(f Frame, ts *threadState) Continuation {
	if in.sm.current() != StateEnabled {
		ts.push(stackEntry{traced: false})
		return noTrace
	}

	// Step 3: ancestor exclusion. A frame whose ancestor was untracked is
	// untracked itself, regardless of its own filter decision.
	if ts.ancestorExcluded() {
		ts.push(stackEntry{traced: false})
		return noTrace
	}

	depth := ts.depth()
	if in.budget.MaxDepth > 0 && depth >= in.budget.MaxDepth {
		framesDropped.Add("max_depth", 1)
		ts.push(stackEntry{traced: false})
		return noTrace
	}

	if !in.pol.ShouldTrace(f.Module) {
		framesDropped.Add("filtered", 1)
		ts.push(stackEntry{traced: false})
		return noTrace
	}

	in.sess.RegisterMethod(f.Module, f.Function)

	if in.budget.MaxCalls > 0 && in.sess.TotalCalls() >= in.budget.MaxCalls {
		budgetExceeded.Add(1)
		ts.push(stackEntry{traced: false})
		in.exhaustBudget()
		return noTrace
	}
	in.sess.IncrementTotal()

	streamed := in.pol.ShouldStream(f.File, f.Line) && in.pol.ShouldSample()

	callID := in.sess.NextCallID()
	rec := &session.Record{
		CallID:         callID,
		ParentID:       ts.parentID(),
		ThreadID:       ts.id,
		ThreadName:     ts.name,
		SessionID:      in.sess.ID(),
		Module:         f.Module,
		Function:       f.Function,
		File:           f.File,
		Line:           f.Line,
		Signature:      f.Signature,
		StartNs:        time.Now().UnixNano(),
		Depth:          depth,
		Protocol:       classify.Protocol(f.Module, f.Function, f.FirstArgSummary),
		InvocationType: classify.InvocationType(f.Module, f.Function),
	}
	in.sess.Open(rec)
	ts.push(stackEntry{record: rec, traced: true})

	if streamed && in.chain != nil {
		ev := rec.ToCallEvent(time.Now(), in.sess.ProcessID(), in.sess.Language())
		if err := in.chain.Run(ev); err != nil {
			log.WithError(err).Warn("instrument: call event chain error")
		}
	}

	return Continuation{Trace: true, CallID: callID}
}

// onFrameExit implements spec.md §4.1's numbered exit steps for both a
// normal return (FrameReturn) and an unwinding exception (FrameException).
func (in *Instrumentor) onFrameExit(f Frame, ts *threadState) {
	entry, ok := ts.pop()
	if !ok {
		// Stack already empty: an exit arrived with no matching entry.
		// Step 2's "coherence warning" condition; never fatal.
		framesDropped.Add("stack_underflow", 1)
		return
	}
	if !entry.traced || entry.record == nil {
		return
	}
	rec := entry.record

	endNs := time.Now().UnixNano()
	rec.Close(endNs, f.ExceptionKind, f.ExceptionMessage)

	found := in.sess.Close(rec.CallID, rec)
	if !found {
		log.WithField("call_id", rec.CallID).Warn("instrument: coherence mismatch closing call")
	}

	if in.chain != nil {
		ev := rec.ToReturnEvent(time.Now(), in.sess.ProcessID(), in.sess.Language())
		if f.ExceptionKind != "" {
			ev.Type = trace.Exception
		}
		if err := in.chain.Run(ev); err != nil {
			log.WithError(err).Warn("instrument: return event chain error")
		}
	}
}

// exhaustBudget moves Enabled -> Disabling without finalizing, so the
// engine stops accepting new calls immediately while an external caller
// (or the bootstrap package) decides when to actually call Disable to
// finish the Disabling -> Finalized transition and persist the session.
func (in *Instrumentor) exhaustBudget() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sm.current() == StateEnabled {
		_ = in.sm.fire(triggerExhaust)
		log.Warn("instrument: budget exceeded, transitioning to disabling")
	}
}
