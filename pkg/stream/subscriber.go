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

package stream

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tracewireio/tracewire/pkg/trace"
)

// defaultQueueCapacity bounds a subscriber's pending-event queue; beyond
// it the configured BackpressurePolicy applies.
const defaultQueueCapacity = 1024

// subscriber is one connected client: its own goroutine drains an
// outbound deque and writes NDJSON lines to the socket, so a slow reader
// never blocks the publish path (`Server.Publish` only ever touches the
// deque under its own short-lived lock).
type subscriber struct {
	id     string
	conn   net.Conn
	policy BackpressurePolicy

	limiter *rate.Limiter // nil disables throttling

	mu     sync.Mutex
	queue  *deque.Deque
	closed bool

	paused atomic.Bool // true when paused by a {"type":"pause"} control message

	notify chan struct{}
	done   chan struct{}
}

func newSubscriber(id string, conn net.Conn, policy BackpressurePolicy, ratePerSec float64) *subscriber {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1)
	}
	return &subscriber{
		id:      id,
		conn:    conn,
		policy:  policy,
		limiter: limiter,
		queue:   deque.New(defaultQueueCapacity),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// enqueue offers ev to the subscriber's outbound queue. It never blocks:
// a full queue is handled per BackpressurePolicy. Returns false if the
// subscriber should be removed (DisconnectSubscriber policy tripped, or
// the subscriber was already closed).
func (s *subscriber) enqueue(ev *trace.Event) (keep bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.queue.Len() >= defaultQueueCapacity {
		eventsDropped.Add(s.policy.String(), 1)
		if s.policy == DisconnectSubscriber {
			s.closeLocked()
			s.mu.Unlock()
			return false
		}
		// DropEvent: drop the oldest to make room for the newest rather
		// than starving a long-lagging subscriber of anything new.
		s.queue.PopFront()
	}
	s.queue.PushBack(ev)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *subscriber) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) setPaused(p bool) {
	s.paused.Store(p)
	if !p {
		s.signal()
	}
}

// writeLoop drains the queue and writes one NDJSON line per event until
// the subscriber is closed. It runs on its own goroutine per connection.
func (s *subscriber) writeLoop(ctx context.Context) {
	defer close(s.done)
	w := bufio.NewWriter(s.conn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}
		for {
			if s.paused.Load() {
				break
			}
			ev, ok := s.pop()
			if !ok {
				break
			}
			if s.limiter != nil {
				_ = s.limiter.Wait(ctx)
			}
			if err := writeEvent(w, ev); err != nil {
				log.WithError(err).WithField("subscriber", s.id).Debug("stream: subscriber write failed")
				s.close()
				return
			}
		}
		if err := w.Flush(); err != nil {
			s.close()
			return
		}
	}
}

func writeEvent(w *bufio.Writer, ev *trace.Event) error {
	return trace.EncodeLine(w, ev)
}

func (s *subscriber) pop() (*trace.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil, false
	}
	ev := s.queue.PopFront().(*trace.Event)
	return ev, true
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *subscriber) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
	subscribersRemoved.Add("closed", 1)
}

func (s *subscriber) waitClosed(timeout time.Duration) {
	select {
	case <-s.done:
	case <-time.After(timeout):
	}
}
