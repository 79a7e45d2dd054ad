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

// Package stream implements the Trace Stream Server from spec.md §4.4: a
// loopback TCP listener that sends every new subscriber a function
// registry snapshot, then fans out every subsequently published event
// without ever back-pressuring the Instrumentor. Grounded on the
// teacher's kstreamConsumer (buffered channel + expvar failure counters,
// `errs`/`kevts` fan-out) and ps.Snapshotter (RWMutex-guarded map of live
// entries), generalized from a single ETW consumer to an arbitrary number
// of TCP subscribers.
package stream

import (
	"expvar"
)

var (
	eventsPublished     = expvar.NewInt("stream.events.published")
	eventsDropped       = expvar.NewMap("stream.events.dropped")
	subscribersAccepted = expvar.NewInt("stream.subscribers.accepted")
	subscribersRemoved  = expvar.NewMap("stream.subscribers.removed")
)

// BackpressurePolicy controls what the server does when a subscriber's
// outbound queue is full, per spec.md §4.4 ("drops the event for that
// subscriber or disconnects it... implementation's choice, but... must
// be consistent and documented"). SPEC_FULL.md §5 resolves the Open
// Question in favor of making both available and configurable.
type BackpressurePolicy int

const (
	// DropEvent discards the event for the lagging subscriber only; the
	// subscriber stays connected. This is the default.
	DropEvent BackpressurePolicy = iota
	// DisconnectSubscriber closes the lagging subscriber's connection
	// instead of dropping individual events.
	DisconnectSubscriber
)

func (p BackpressurePolicy) String() string {
	switch p {
	case DropEvent:
		return "drop_event"
	case DisconnectSubscriber:
		return "disconnect_subscriber"
	default:
		return "unknown"
	}
}
