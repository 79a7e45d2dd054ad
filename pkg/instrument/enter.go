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

	log "github.com/sirupsen/logrus"
)

// Enter is the concrete frame source: the call a host integration makes
// at the top of every instrumented function, standing in for the
// per-frame callback spec.md §4.1 describes a dynamic interpreter
// installing natively. Grounded in SPEC_FULL.md's Open Question decision
// to follow the DataDog dd-trace-go pattern of threading call identity
// through context.Context rather than inventing OS-thread-id plumbing Go
// doesn't expose.
//
// Enter returns a derived context (carrying this call's threadState) and
// a done func the caller must invoke exactly once on return, passing the
// exception kind/message if the function is unwinding via panic/error
// rather than returning normally; pass "", "" for a normal return.
//
// Enter never panics and never blocks: a disabled or budget-exhausted
// engine, or a filtered-out frame, costs a single map lookup and a
// stack push of a placeholder entry.
func (in *Instrumentor) Enter(ctx context.Context, module, function, file string, line int, signature string) (context.Context, func(exceptionKind, exceptionMessage string)) {
	ts, ctx := threadStateFrom(ctx)

	ts.mu.Lock()
	reentered := ts.inFrame
	ts.inFrame = true
	ts.mu.Unlock()
	if reentered {
		// A call sequence that re-enters Enter before its own matching
		// exit ran (e.g. Enter called from within a Stage's callback).
		// Degrade to an untraced passthrough rather than corrupt the
		// stack.
		framesDropped.Add("reentrant", 1)
		return ctx, func(string, string) {}
	}

	f := Frame{
		ThreadID:   ts.id,
		ThreadName: ts.name,
		Module:     module,
		Function:   function,
		File:       file,
		Line:       line,
		Signature:  signature,
	}

	var cont Continuation
	if err := safeCall(func() error {
		cont = in.onFrameEntry(f, ts)
		return nil
	}); err != nil {
		log.WithError(err).Error("instrument: Enter recovered from panic")
		cont = noTrace
	}

	ts.mu.Lock()
	ts.inFrame = false
	ts.mu.Unlock()

	done := func(exceptionKind, exceptionMessage string) {
		in.exit(ts, f, cont, exceptionKind, exceptionMessage)
	}
	return ctx, done
}

func (in *Instrumentor) exit(ts *threadState, f Frame, cont Continuation, exceptionKind, exceptionMessage string) {
	ts.mu.Lock()
	reentered := ts.inFrame
	ts.inFrame = true
	ts.mu.Unlock()
	if reentered {
		framesDropped.Add("reentrant", 1)
		return
	}

	f.CallID = cont.CallID
	f.ExceptionKind = exceptionKind
	f.ExceptionMessage = exceptionMessage

	if err := safeCall(func() error {
		in.onFrameExit(f, ts)
		return nil
	}); err != nil {
		log.WithError(err).Error("instrument: exit recovered from panic")
	}

	ts.mu.Lock()
	ts.inFrame = false
	ts.mu.Unlock()
}
