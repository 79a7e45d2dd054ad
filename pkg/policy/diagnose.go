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

package policy

import "github.com/lithammer/fuzzysearch/fuzzy"

// Suggestion pairs a configured prefix that matched nothing observed
// with its closest observed-module guess.
type Suggestion struct {
	Configured string
	ClosestTo  string
}

// DiagnoseUnmatched checks every configured include/exclude prefix
// against observedModules (typically Session.RegisteredMethods' module
// set) and flags the ones that never matched anything, surfacing the
// closest observed module name as a "did you mean" hint. This is a
// diagnostic only — it never changes ShouldTrace's behavior.
func DiagnoseUnmatched(prefixes, observedModules []string) []Suggestion {
	var out []Suggestion
	for _, prefix := range prefixes {
		if prefix == "" || matchesAny(prefix, observedModules) {
			continue
		}
		closest := closestMatch(prefix, observedModules)
		if closest == "" {
			continue
		}
		out = append(out, Suggestion{Configured: prefix, ClosestTo: closest})
	}
	return out
}

func matchesAny(prefix string, modules []string) bool {
	for _, m := range modules {
		if len(m) >= len(prefix) && m[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func closestMatch(prefix string, modules []string) string {
	best := ""
	bestRank := -1
	for _, m := range modules {
		r := fuzzy.RankMatch(prefix, m)
		if r < 0 {
			continue
		}
		if bestRank == -1 || r < bestRank {
			bestRank = r
			best = m
		}
	}
	return best
}
