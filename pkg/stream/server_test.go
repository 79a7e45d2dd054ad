package stream

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/require"

	"github.com/tracewireio/tracewire/pkg/trace"
)

func freePort(t *testing.T) int {
	t.Helper()
	p, err := freeport.GetFreePort()
	require.NoError(t, err)
	return p
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	return conn
}

func readLine(t *testing.T, conn net.Conn) trace.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var ev trace.Event
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
	return ev
}

func TestNewSubscriberReceivesRegistrySnapshotFirst(t *testing.T) {
	s := New(Config{
		Port: freePort(t),
		Registry: func() *trace.Event {
			return &trace.Event{Type: trace.FunctionRegistry, SessionID: "s1"}
		},
	})
	require.NoError(t, s.Start())
	defer s.Close()

	conn := dial(t, s.Addr())
	defer conn.Close()

	ev := readLine(t, conn)
	require.Equal(t, trace.FunctionRegistry, ev.Type)
}

// TestRegistrySnapshotAlwaysWinsRaceAgainstConcurrentPublish guards
// against the snapshot racing a Publish that lands in the window between
// a subscriber connecting and the snapshot being queued: the first line
// a subscriber ever reads must be its function_registry snapshot, never
// a live call/return event, however busy the publisher is.
func TestRegistrySnapshotAlwaysWinsRaceAgainstConcurrentPublish(t *testing.T) {
	s := New(Config{
		Port: freePort(t),
		Registry: func() *trace.Event {
			return &trace.Event{Type: trace.FunctionRegistry, SessionID: "s1"}
		},
	})
	require.NoError(t, s.Start())
	defer s.Close()

	stop := make(chan struct{})
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				_ = s.Publish(&trace.Event{Type: trace.Call, CallID: "racing"})
			}
		}
	}()

	for i := 0; i < 20; i++ {
		conn := dial(t, s.Addr())
		ev := readLine(t, conn)
		require.Equal(t, trace.FunctionRegistry, ev.Type, "iteration %d", i)
		conn.Close()
	}
	close(stop)
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	s := New(Config{Port: freePort(t)})
	require.NoError(t, s.Start())
	defer s.Close()

	c1 := dial(t, s.Addr())
	defer c1.Close()
	c2 := dial(t, s.Addr())
	defer c2.Close()

	require.Eventually(t, func() bool { return s.SubscriberCount() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Publish(&trace.Event{Type: trace.Call, SessionID: "s1", CallID: "1"}))

	ev1 := readLine(t, c1)
	ev2 := readLine(t, c2)
	require.Equal(t, "1", ev1.CallID)
	require.Equal(t, "1", ev2.CallID)
}

func TestDisconnectedSubscriberDoesNotAffectOthers(t *testing.T) {
	s := New(Config{Port: freePort(t)})
	require.NoError(t, s.Start())
	defer s.Close()

	c1 := dial(t, s.Addr())
	c2 := dial(t, s.Addr())
	defer c2.Close()

	require.Eventually(t, func() bool { return s.SubscriberCount() == 2 }, time.Second, 10*time.Millisecond)
	c1.Close()
	require.Eventually(t, func() bool { return s.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Publish(&trace.Event{Type: trace.Call, CallID: "ok"}))
	ev := readLine(t, c2)
	require.Equal(t, "ok", ev.CallID)
}

func TestFinalizeControlMessageInvokesHook(t *testing.T) {
	finalized := make(chan struct{})
	s := New(Config{
		Port:              freePort(t),
		OnFinalizeRequest: func() { close(finalized) },
	})
	require.NoError(t, s.Start())
	defer s.Close()

	conn := dial(t, s.Addr())
	defer conn.Close()

	_, err := conn.Write([]byte(`{"type":"finalize"}` + "\n"))
	require.NoError(t, err)

	select {
	case <-finalized:
	case <-time.After(2 * time.Second):
		t.Fatal("OnFinalizeRequest was not invoked")
	}
}

func TestCloseDisconnectsSubscribersWithinBudget(t *testing.T) {
	s := New(Config{Port: freePort(t)})
	require.NoError(t, s.Start())

	conn := dial(t, s.Addr())
	defer conn.Close()
	require.Eventually(t, func() bool { return s.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, s.Close())
	require.Less(t, time.Since(start), 2*time.Second)
}
