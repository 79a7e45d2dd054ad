package instrument

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewireio/tracewire/pkg/policy"
	"github.com/tracewireio/tracewire/pkg/session"
	"github.com/tracewireio/tracewire/pkg/trace"
)

// fakePublisher collects every published event for assertions instead of
// actually opening a socket, standing in for pkg/stream.Server in these
// unit tests.
type fakePublisher struct {
	mu     sync.Mutex
	events []*trace.Event
}

func (f *fakePublisher) Publish(ev *trace.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ev
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakePublisher) snapshot() []*trace.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*trace.Event, len(f.events))
	copy(out, f.events)
	return out
}

func newEnabled(t *testing.T, cfg Config) *Instrumentor {
	t.Helper()
	in := New(cfg)
	require.NoError(t, in.Enable(cfg.Language, cfg.ProcessID, cfg.RingCapacity))
	return in
}

func TestTwoDeepCallProducesMatchingCallAndReturn(t *testing.T) {
	pub := &fakePublisher{}
	in := newEnabled(t, Config{Language: "python", ProcessID: 1, Publisher: pub})

	ctx, doneOuter := in.Enter(context.Background(), "app.handlers", "handle", "app/handlers.py", 10, "handle(req)")
	_, doneInner := in.Enter(ctx, "app.db", "query", "app/db.py", 42, "query(sql)")
	doneInner("", "")
	doneOuter("", "")

	events := pub.snapshot()
	require.Len(t, events, 4)
	assert.Equal(t, trace.Call, events[0].Type)
	assert.Equal(t, 0, events[0].Depth)
	assert.Equal(t, trace.Call, events[1].Type)
	assert.Equal(t, 1, events[1].Depth)
	assert.Equal(t, events[0].CallID, events[1].ParentID)
	assert.Equal(t, trace.Return, events[2].Type)
	assert.Equal(t, trace.Return, events[3].Type)
}

func TestExceptionExitMarksEventTypeException(t *testing.T) {
	pub := &fakePublisher{}
	in := newEnabled(t, Config{Language: "python", ProcessID: 1, Publisher: pub})

	_, done := in.Enter(context.Background(), "app.jobs", "run", "app/jobs.py", 5, "run()")
	done("ValueError", "bad input")

	events := pub.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, trace.Exception, events[1].Type)
	assert.Equal(t, "ValueError", events[1].ExceptionKind)
	assert.Equal(t, "bad input", events[1].ExceptionMessage)
}

func TestFilterExcludedModuleNeverReachesPublisher(t *testing.T) {
	pub := &fakePublisher{}
	in := newEnabled(t, Config{
		Language:  "python",
		ProcessID: 1,
		Publisher: pub,
		Policy:    policy.Config{Excludes: []string{"vendor."}},
	})

	_, done := in.Enter(context.Background(), "vendor.thirdparty", "helper", "vendor/x.py", 1, "helper()")
	done("", "")

	assert.Empty(t, pub.snapshot())
}

func TestExcludedAncestorSuppressesDescendant(t *testing.T) {
	pub := &fakePublisher{}
	in := newEnabled(t, Config{
		Language:  "python",
		ProcessID: 1,
		Publisher: pub,
		Policy:    policy.Config{Excludes: []string{"vendor."}},
	})

	ctx, doneOuter := in.Enter(context.Background(), "vendor.thirdparty", "helper", "vendor/x.py", 1, "helper()")
	_, doneInner := in.Enter(ctx, "app.core", "work", "app/core.py", 2, "work()")
	doneInner("", "")
	doneOuter("", "")

	assert.Empty(t, pub.snapshot())
}

func TestBudgetExhaustionTransitionsToDisabling(t *testing.T) {
	pub := &fakePublisher{}
	in := newEnabled(t, Config{
		Language:  "python",
		ProcessID: 1,
		Publisher: pub,
		Budget:    Budget{MaxCalls: 2},
	})

	for i := 0; i < 3; i++ {
		_, done := in.Enter(context.Background(), "app.core", "work", "app/core.py", 2, "work()")
		done("", "")
	}

	assert.Equal(t, StateDisabling, in.State())
}

func TestDisableIsIdempotentAfterFinalized(t *testing.T) {
	in := newEnabled(t, Config{Language: "python", ProcessID: 1})
	require.NoError(t, in.Disable())
	assert.Equal(t, StateFinalized, in.State())
	assert.Error(t, in.Disable())
}

func TestEnableTwiceReturnsAlreadyEnabled(t *testing.T) {
	in := newEnabled(t, Config{Language: "python", ProcessID: 1})
	err := in.Enable("python", 1, 0)
	assert.Error(t, err)
}

// closingPublisher is a Publisher that also implements streamCloser,
// standing in for *stream.Server, plus a recorder fake Finalizer so
// Disable's ordering can be asserted without a real socket.
type closingPublisher struct {
	mu     sync.Mutex
	order  *[]string
	closed bool
}

func (c *closingPublisher) Publish(ev *trace.Event) error { return nil }

func (c *closingPublisher) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	*c.order = append(*c.order, "stream_closed")
	return nil
}

type recordingFinalizer struct {
	order *[]string
}

func (r *recordingFinalizer) Finalize(sess *session.Session) error {
	*r.order = append(*r.order, "finalized")
	return nil
}

func TestDisableClosesStreamServerBeforeFinalizing(t *testing.T) {
	var order []string
	pub := &closingPublisher{order: &order}
	fin := &recordingFinalizer{order: &order}
	in := newEnabled(t, Config{Language: "python", ProcessID: 1, Publisher: pub, Finalizer: fin})

	require.NoError(t, in.Disable())

	require.Equal(t, []string{"stream_closed", "finalized"}, order)
	assert.True(t, pub.closed)
}

// panicPublisher exercises crash isolation: the Instrumentor must never
// let a subscriber-side failure propagate out of Enter/the returned done
// closure.
type panicPublisher struct{}

func (panicPublisher) Publish(ev *trace.Event) error {
	panic("boom")
}

func TestPublisherPanicNeverEscapesEnter(t *testing.T) {
	in := newEnabled(t, Config{Language: "python", ProcessID: 1, Publisher: panicPublisher{}})

	assert.NotPanics(t, func() {
		_, done := in.Enter(context.Background(), "app.core", "work", "app/core.py", 2, "work()")
		done("", "")
	})
}
