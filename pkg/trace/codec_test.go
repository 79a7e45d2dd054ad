package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := &Event{
		Type:           Call,
		Timestamp:      1700000000.123,
		SessionID:      "sess-1",
		ProcessID:      4242,
		Language:       "go",
		CallID:         "c1",
		ThreadID:       "t1",
		Depth:          0,
		Module:         "pkg.mod",
		Function:       "outer",
		Protocol:       "SQL",
		InvocationType: APIEntry,
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeLine(&buf, e))
	assert.NoError(t, ValidateWire(bytes.TrimRight(buf.Bytes(), "\n")))

	dec := NewDecoder(&buf)
	got, err := dec.Next()
	require.NoError(t, err)

	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.CallID, got.CallID)
	assert.Equal(t, e.Module, got.Module)
	assert.Equal(t, e.Protocol, got.Protocol)
}

func TestDecoderEOF(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil))
	_, err := dec.Next()
	assert.Error(t, err)
}

func TestUnknownFieldsIgnored(t *testing.T) {
	raw := []byte(`{"type":"call","timestamp":1.0,"session_id":"s","process_id":1,"language":"go","future_field":"x"}`)
	dec := NewDecoder(bytes.NewReader(append(raw, '\n')))
	e, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Call, e.Type)
}
