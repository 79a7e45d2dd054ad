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
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tracewireio/tracewire/pkg/trace"
)

// shutdownTimeout bounds Close: spec.md §4.4 "closed before the
// Finalizer runs so subscribers see a clean EOF", and §5's general
// requirement that shutdown be bounded.
const shutdownTimeout = time.Second

// RegistrySnapshotFunc builds the `function_registry` event sent to a
// subscriber immediately on connect, per spec.md §4.4.
type RegistrySnapshotFunc func() *trace.Event

// Config configures a Server.
type Config struct {
	// Port is the loopback TCP port to bind. 0 picks any free port (the
	// bound port is available via Server.Addr after Start).
	Port int
	// Policy is the back-pressure policy applied to a lagging subscriber.
	Policy BackpressurePolicy
	// SubscriberRatePerSec optionally throttles each subscriber's send
	// rate; 0 disables throttling.
	SubscriberRatePerSec float64
	// Registry builds the initial snapshot event for each new subscriber.
	Registry RegistrySnapshotFunc
	// OnFinalizeRequest, if set, is invoked (once, in its own goroutine)
	// when any subscriber sends a {"type":"finalize"} control message.
	OnFinalizeRequest func()
}

// Server is the Trace Stream Server: spec.md §4.4. It is safe to call
// Publish concurrently with Start/Close from any goroutine; Publish
// itself never blocks on a slow subscriber.
type Server struct {
	cfg Config
	reg *registry

	mu       sync.Mutex
	ln       net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	closed   bool
	finalize atomic.Bool
}

// New constructs a Server bound to loopback only, not yet listening.
func New(cfg Config) *Server {
	return &Server{cfg: cfg, reg: newRegistry()}
}

// Start binds the loopback listener and begins accepting subscribers.
// Grounded on the teacher's kstreamConsumer.OpenKstream: a background
// accept-loop goroutine paired with a context used to unwind it cleanly
// on Close.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("stream: server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("stream: listen: %w", err)
	}
	s.ln = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.started = true

	s.wg.Add(1)
	go s.acceptLoop()
	log.WithField("addr", ln.Addr().String()).Info("stream: server started")
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// SubscriberCount returns the number of currently connected subscribers.
func (s *Server) SubscriberCount() int { return s.reg.count() }

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				log.WithError(err).Warn("stream: accept failed")
				return
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true) // disable Nagle, per spec.md §4.4
		_ = tc.SetKeepAlive(true)
	}

	id := uuid.New().String()
	sub := newSubscriber(id, conn, s.cfg.Policy, s.cfg.SubscriberRatePerSec)

	// Enqueue the registry snapshot before the subscriber is registered
	// for broadcast, so it is always first in the outbound queue: a
	// concurrent Publish that lands between add() and this enqueue would
	// otherwise race the snapshot and violate spec.md §4.4's "registry
	// first, then every subsequent event" contract.
	if s.cfg.Registry != nil {
		sub.enqueue(s.cfg.Registry())
	}
	s.reg.add(sub)
	subscribersAccepted.Add(1)
	log.WithField("subscriber", id).Debug("stream: subscriber connected")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sub.writeLoop(s.ctx)
	}()

	s.readControlLoop(conn, sub)

	s.reg.remove(id)
	sub.close()
	sub.waitClosed(shutdownTimeout)
}

// readControlLoop blocks reading newline-delimited control messages from
// the subscriber until it disconnects or the server is closed.
func (s *Server) readControlLoop(conn net.Conn, sub *subscriber) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cm, ok := parseControl(scanner.Bytes())
		if !ok {
			continue
		}
		switch cm.Type {
		case controlPause:
			sub.setPaused(true)
		case controlResume:
			sub.setPaused(false)
		case controlGetRegistry:
			if s.cfg.Registry != nil {
				sub.enqueue(s.cfg.Registry())
			}
		case controlFinalize:
			s.requestFinalize()
		}
	}
}

func (s *Server) requestFinalize() {
	if !s.finalize.CompareAndSwap(false, true) {
		return
	}
	if s.cfg.OnFinalizeRequest != nil {
		go s.cfg.OnFinalizeRequest()
	}
}

// Publish fans ev out to every connected subscriber. It never blocks: a
// full subscriber queue is handled per the configured BackpressurePolicy
// entirely inside subscriber.enqueue.
func (s *Server) Publish(ev *trace.Event) error {
	eventsPublished.Add(1)
	for _, sub := range s.reg.snapshot() {
		if !sub.enqueue(ev) {
			s.reg.remove(sub.id)
		}
	}
	return nil
}

// Close stops accepting new subscribers, disconnects every current
// subscriber so it observes a clean EOF, and waits up to shutdownTimeout
// for in-flight writes to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed || !s.started {
		s.closed = true
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, sub := range s.reg.snapshot() {
		sub.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn("stream: shutdown timed out waiting for connections to drain")
	}
	return err
}
