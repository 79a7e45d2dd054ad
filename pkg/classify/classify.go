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

// Package classify implements the Protocol Classifier and invocation-type
// rules from spec.md §4.3: pure, side-effect-free lexical matching over
// module/function names (and, for SQL, the stringified first argument),
// applied without locking since it carries no state. Grounded on the
// teacher's processor "Name()"/switch-on-type dispatch shape, simplified
// to first-match-wins table lookup since classification never mutates
// or cancels the event the way a kernel-event processor can.
package classify

import (
	"strings"

	"github.com/tracewireio/tracewire/pkg/trace"
)

type protoRule struct {
	label      string
	substrings []string
	methods    []string // method-name-only substrings, matched against function alone
}

// protocolRules is tried top-down; the first matching rule wins.
var protocolRules = []protoRule{
	{
		label:      "SQL",
		substrings: []string{"jdbc", "datasource", "connection", "statement", "resultset", "repository", "hibernate", "jpa", "mybatis"},
	},
	{
		label:      "HTTP",
		substrings: []string{"httpclient", "resttemplate", "webclient", "controller", "servlet", "feign"},
		methods:    []string{"doget", "dopost", "dorequest"},
	},
	{
		label:      "gRPC",
		substrings: []string{"grpc", "protobuf", "stub"},
	},
	{
		label:      "Kafka",
		substrings: []string{"kafka", "producer", "consumer"},
	},
	{
		label:      "AMQP",
		substrings: []string{"rabbit", "amqp"},
	},
	{
		label:      "Redis",
		substrings: []string{"redis", "jedis", "lettuce"},
	},
	{
		label:      "WebSocket",
		substrings: []string{"websocket", "stomp"},
	},
	{
		label:      "Async",
		substrings: []string{"completablefuture", "async", "reactive", "flux", "mono"},
		methods:    []string{"subscribe"},
	},
}

var sqlVerbs = []string{"select ", "insert ", "update ", "delete ", "create ", "drop ", "alter ", "merge "}

// Protocol returns the advisory protocol label for a call, or "" if none
// of the rules match. firstArgSummary is the stringified first argument
// (if argument capture is enabled upstream; otherwise pass ""). SQL is
// row 1 of protocolRules, so its argument-based trigger (a SQL verb
// prefixing firstArgSummary, per spec.md §4.3) is evaluated at SQL's own
// table position rather than as a fallback tried only after every other
// row has already missed — a later row's substring (e.g. Kafka's
// "consumer") must never win a table-order tie against SQL's own trigger
// set just because the argument check used to run last.
func Protocol(module, function, firstArgSummary string) string {
	haystack := strings.ToLower(module + " " + function)
	fn := strings.ToLower(function)
	arg := strings.ToLower(strings.TrimSpace(firstArgSummary))

	for _, rule := range protocolRules {
		for _, s := range rule.substrings {
			if strings.Contains(haystack, s) {
				return rule.label
			}
		}
		for _, m := range rule.methods {
			if strings.Contains(fn, m) {
				return rule.label
			}
		}
		if rule.label == "SQL" && matchesSQLVerb(arg) {
			return rule.label
		}
	}

	return ""
}

func matchesSQLVerb(arg string) bool {
	for _, verb := range sqlVerbs {
		if strings.HasPrefix(arg, verb) {
			return true
		}
	}
	return false
}

type invocationRule struct {
	kind       trace.InvocationType
	substrings []string // matched against module/class
	methods    []string // matched against function name
}

var invocationRules = []invocationRule{
	{kind: trace.APIEntry, substrings: []string{"controller", "resource", "endpoint"}},
	{kind: trace.EventHandler, methods: []string{"on", "handle", "process", "listener"}},
	{kind: trace.Scheduled, substrings: []string{"scheduled", "cron", "timer"}},
	{kind: trace.Callback, methods: []string{"callback", "complete", "accept", "apply"}},
}

// InvocationType returns the invocation-type label for a call; ties are
// broken by table order and the default is INTERNAL.
func InvocationType(module, function string) trace.InvocationType {
	mod := strings.ToLower(module)
	fn := strings.ToLower(function)

	for _, rule := range invocationRules {
		for _, s := range rule.substrings {
			if strings.Contains(mod, s) {
				return rule.kind
			}
		}
		for _, m := range rule.methods {
			if strings.Contains(fn, m) {
				return rule.kind
			}
		}
	}
	return trace.Internal
}
