package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCloseLifecycle(t *testing.T) {
	s := New("go", 100, 0)
	id := s.NextCallID()
	r := &Record{CallID: id, Module: "pkg.mod", Function: "outer"}
	s.Open(r)
	assert.EqualValues(t, 1, s.ActiveCalls())
	assert.Same(t, r, s.Find(id))

	r.Close(10, "", "")
	found := s.Close(id, r)
	assert.True(t, found)
	assert.EqualValues(t, 0, s.ActiveCalls())
	assert.Nil(t, s.Find(id))
	assert.Len(t, s.CompletedRecords(), 1)
}

func TestCloseUnknownCallIDReportsCoherenceMismatch(t *testing.T) {
	s := New("go", 100, 0)
	r := &Record{CallID: "ghost"}
	r.Close(1, "", "")
	found := s.Close("ghost", r)
	assert.False(t, found)
	// still appended: the caller discards both per §4.1, but Session
	// itself just reports the mismatch and lets the Instrumentor decide.
	assert.Len(t, s.CompletedRecords(), 1)
}

func TestRingBufferBoundedMode(t *testing.T) {
	s := New("go", 100, 2)
	for i := 0; i < 5; i++ {
		id := s.NextCallID()
		r := &Record{CallID: id}
		s.Open(r)
		r.Close(1, "", "")
		s.Close(id, r)
	}
	require.Len(t, s.CompletedRecords(), 2)
}

func TestRegisterMethodDedup(t *testing.T) {
	s := New("go", 100, 0)
	s.RegisterMethod("pkg", "a")
	s.RegisterMethod("pkg", "a")
	s.RegisterMethod("pkg", "b")
	assert.Len(t, s.RegisteredMethods(), 2)
}

func TestFreezeIsIdempotentAndBlocksMutation(t *testing.T) {
	s := New("go", 100, 0)
	assert.True(t, s.Freeze())
	assert.False(t, s.Freeze())

	id := s.NextCallID()
	r := &Record{CallID: id}
	s.Open(r)
	assert.Zero(t, s.ActiveCalls())
	assert.Empty(t, s.CompletedRecords())
}

func TestTruncateMessageIsRuneSafe(t *testing.T) {
	long := make([]rune, maxExceptionMessage+10)
	for i := range long {
		long[i] = '日'
	}
	msg := truncateMessage(string(long))
	assert.LessOrEqual(t, len([]rune(msg)), maxExceptionMessage+1)
}
