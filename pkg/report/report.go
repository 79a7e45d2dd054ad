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

// Package report builds the Session Finalizer's optional companion
// artifacts (spec.md §4.5: "performance summary, dead-code candidates...
// derived purely from the in-memory session — these are summaries, not
// alternate sources of truth"). Neither artifact here is consulted by
// any other package; both are rendered once, after Finalize, from a
// finalize.Document already written to disk.
package report

import (
	"sort"

	"github.com/tracewireio/tracewire/pkg/finalize"
)

// MethodStat aggregates every completed call of one (module, function)
// pair.
type MethodStat struct {
	Module      string
	Function    string
	CallCount   int
	TotalMs     float64
	SlowestMs   float64
}

// PerformanceSummary ranks methods by total time spent, slowest first.
type PerformanceSummary struct {
	SessionID string
	Methods   []MethodStat
}

// DeadCodeCandidate is a registered method that was never the target of
// a non-root completed call — i.e. the interpreter loaded it but nothing
// in the observed session actually invoked it as a descendant call.
type DeadCodeCandidate struct {
	Module   string
	Function string
}

// BuildPerformanceSummary aggregates doc's completed records by
// (module, function).
func BuildPerformanceSummary(doc *finalize.Document) PerformanceSummary {
	idx := make(map[[2]string]*MethodStat)
	var order [][2]string
	for _, ev := range doc.CompletedRecords {
		key := [2]string{ev.Module, ev.Function}
		st, ok := idx[key]
		if !ok {
			st = &MethodStat{Module: ev.Module, Function: ev.Function}
			idx[key] = st
			order = append(order, key)
		}
		st.CallCount++
		st.TotalMs += ev.DurationMs
		if ev.DurationMs > st.SlowestMs {
			st.SlowestMs = ev.DurationMs
		}
	}
	methods := make([]MethodStat, 0, len(order))
	for _, k := range order {
		methods = append(methods, *idx[k])
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].TotalMs > methods[j].TotalMs })
	return PerformanceSummary{SessionID: doc.SessionID, Methods: methods}
}

// FindDeadCodeCandidates returns every registered method that never
// appears as a call with depth > 0 — i.e. the root call into it from the
// observed entry point aside, nothing else in the session reached it.
// A method only ever seen at depth 0 can still be legitimately dead from
// every other call site, which is exactly the signal spec.md's
// "dead-code candidates" artifact is meant to surface.
func FindDeadCodeCandidates(doc *finalize.Document) []DeadCodeCandidate {
	called := make(map[[2]string]bool)
	for _, ev := range doc.CompletedRecords {
		if ev.Depth > 0 {
			called[[2]string{ev.Module, ev.Function}] = true
		}
	}
	var out []DeadCodeCandidate
	for _, m := range doc.RegisteredMethods {
		key := [2]string{m.Module, m.Function}
		if !called[key] {
			out = append(out, DeadCodeCandidate{Module: m.Module, Function: m.Function})
		}
	}
	return out
}
