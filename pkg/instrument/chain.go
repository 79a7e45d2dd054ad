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

	"github.com/tracewireio/tracewire/pkg/trace"
)

var stagesDropped = expvar.NewMap("instrument.chain.dropped")

// Stage is one link of the event-processing chain run over each event
// after onFrameEntry/onFrameExit have already filtered, recorded and
// classified the frame; the only Stage built today is the publish stage.
// It adapts the teacher's Chain interface (ProcessEvent may rewrite the
// event in place and returns whether the chain should continue and an
// error), generalized from kernel-event enrichment to trace-event
// publication.
type Stage interface {
	// ProcessEvent may rewrite ev in place. next=false stops the chain
	// without that being an error (e.g. the Publish stage always returns
	// false since it is terminal).
	ProcessEvent(ev *trace.Event) (next bool, err error)
	// Name identifies the stage for the expvar drop counter.
	Name() string
}

// Chain runs a fixed sequence of Stages over one event, stopping at the
// first stage that returns next=false or an error.
type Chain struct {
	stages []Stage
}

// NewChain builds a Chain from stages, run in the given order.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Run drives ev through every stage in order. A stage error is counted
// against that stage's name and stops the chain; it is never fatal to
// the caller (crash isolation is the Instrumentor's job via safe.go, this
// is just bookkeeping for stage-local failures like a publish backlog).
func (c *Chain) Run(ev *trace.Event) error {
	for _, s := range c.stages {
		next, err := s.ProcessEvent(ev)
		if err != nil {
			stagesDropped.Add(s.Name(), 1)
			return err
		}
		if !next {
			return nil
		}
	}
	return nil
}

// Close releases any resources held by stages that need it (e.g. a
// publisher's outbound connections). Stages that don't need closing can
// embed NopCloser.
func (c *Chain) Close() error {
	for _, s := range c.stages {
		if cl, ok := s.(interface{ Close() error }); ok {
			if err := cl.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// NopCloser satisfies the optional Close() error a Stage may implement,
// for stages with nothing to release.
type NopCloser struct{}

func (NopCloser) Close() error { return nil }
