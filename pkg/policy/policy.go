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

// Package policy implements the Filter Policy from spec.md §4.2: the
// include/exclude/built-in precedence chain, path-coverage dedup, and
// stochastic sampling that keep the event stream focused and bounded.
// Grounded on the teacher's config.Kstream.ExcludeImage/ExcludeKevent
// pair and kstreamConsumer.isEventDropped, generalized from event-type
// exclusion to module-prefix exclusion.
package policy

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/golang/groupcache/lru"
)

// dedupCacheSize bounds how many distinct (file, line) keys ShouldStream
// remembers. Unlike the dedup *limit* (how many times a key is streamed
// before going silent), this bounds the *key set* itself, so a
// long-running session with an unbounded number of distinct call sites
// still has bounded dedup-tracking memory, per spec.md §3's "bounded
// memory" invariant. groupcache/lru is a direct teacher dependency with
// no other consumer in this module; its plain, unlocked Cache is exactly
// the "bounded map with eviction" primitive dedup tracking needs, guarded
// here by the same mutex that already serializes ShouldStream.
const dedupCacheSize = 50_000

// DefaultBuiltinExcludes returns the always-on exclude prefixes: the
// engine's own module (self-exclusion, preventing infinite regress) and
// a conservative set of runtime/test-harness prefixes common across
// interpreted-language standard libraries. Host integrations are
// expected to extend this list with the target runtime's actual stdlib
// root via Config.BuiltinExcludes.
func DefaultBuiltinExcludes(selfModule string) []string {
	return []string{
		selfModule,
		"runtime.",
		"reflect.",
		"testing.",
	}
}

// Config configures a Policy. Includes empty means "allow all" (§4.2).
type Config struct {
	Includes        []string
	Excludes        []string
	BuiltinExcludes []string
	// DedupLimit bounds how many times a unique (file, line-of-definition)
	// pair is streamed in full before subsequent encounters stop being
	// emitted (still counted). 0 disables dedup (trace all, the default).
	DedupLimit int
	// SampleRate >= 1; 1 disables sampling (emit every qualifying frame).
	SampleRate int
}

// Policy is the compiled, concurrency-safe decision surface built from a
// Config. It carries no per-call identity, only shared counters, so a
// single instance serves every thread.
type Policy struct {
	includes []string
	excludes []string

	dedupLimit int
	dedupMu    sync.Mutex
	dedupSeen  *lru.Cache

	sampleRate int
	sampleSeq  atomic.Int64
}

// New compiles cfg into a Policy. Excludes is the union of cfg.Excludes
// and cfg.BuiltinExcludes; the built-ins can never be overridden by
// includes, matching the "excludes > self/stdlib built-ins" precedence.
func New(cfg Config) *Policy {
	excludes := make([]string, 0, len(cfg.Excludes)+len(cfg.BuiltinExcludes))
	excludes = append(excludes, cfg.BuiltinExcludes...)
	excludes = append(excludes, cfg.Excludes...)

	sampleRate := cfg.SampleRate
	if sampleRate < 1 {
		sampleRate = 1
	}

	return &Policy{
		includes:   cfg.Includes,
		excludes:   excludes,
		dedupLimit: cfg.DedupLimit,
		dedupSeen:  lru.New(dedupCacheSize),
		sampleRate: sampleRate,
	}
}

// ShouldTrace decides, for one frame, whether it is instrumentable at
// all: excludes beat built-ins beat includes, in that strict order. An
// empty includes list allows everything not otherwise excluded.
func (p *Policy) ShouldTrace(module string) bool {
	for _, ex := range p.excludes {
		if ex != "" && strings.HasPrefix(module, ex) {
			return false
		}
	}
	if len(p.includes) == 0 {
		return true
	}
	for _, in := range p.includes {
		if strings.HasPrefix(module, in) {
			return true
		}
	}
	return false
}

// ShouldStream applies path-coverage dedup: the first DedupLimit
// encounters of a unique (file, line) pair are streamed; later
// encounters still update the count (the caller can use that for its
// own counters) but ShouldStream returns false for them. DedupLimit <= 0
// disables dedup entirely (always true). The key set itself is bounded
// by dedupCacheSize: once a session has touched more distinct call sites
// than that, the least-recently-seen key is evicted and starts over at
// count 0 on its next encounter, trading a little dedup precision under
// extreme call-site churn for a hard memory ceiling.
func (p *Policy) ShouldStream(file string, line int) bool {
	if p.dedupLimit <= 0 {
		return true
	}
	key := file + ":" + strconv.Itoa(line)

	p.dedupMu.Lock()
	defer p.dedupMu.Unlock()
	var n int
	if v, ok := p.dedupSeen.Get(key); ok {
		n = v.(int)
	}
	p.dedupSeen.Add(key, n+1)
	return n < p.dedupLimit
}

// ShouldSample applies 1-in-N sampling across every frame that reaches
// this check (i.e. already passed ShouldTrace and ShouldStream). A
// sampleRate of 1 always returns true.
func (p *Policy) ShouldSample() bool {
	if p.sampleRate <= 1 {
		return true
	}
	n := p.sampleSeq.Add(1)
	return n%int64(p.sampleRate) == 0
}

// Includes returns the configured include prefixes, for diagnostics.
func (p *Policy) Includes() []string { return append([]string(nil), p.includes...) }

// Excludes returns the compiled exclude prefixes (built-ins + configured),
// for diagnostics.
func (p *Policy) Excludes() []string { return append([]string(nil), p.excludes...) }
