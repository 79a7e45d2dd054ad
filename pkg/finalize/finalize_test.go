package finalize

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewireio/tracewire/pkg/session"
)

func sampleSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New("python", 1234, 0)
	rec := &session.Record{
		CallID:    sess.NextCallID(),
		Module:    "app.handlers",
		Function:  "handle",
		SessionID: sess.ID(),
	}
	sess.Open(rec)
	rec.Close(1000, "", "")
	sess.Close(rec.CallID, rec)
	sess.RegisterMethod("app.handlers", "handle")
	return sess
}

func TestFinalizeWritesSessionFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/out", false)
	sess := sampleSession(t)

	require.NoError(t, f.Finalize(sess))

	path := "/out/session_" + sess.ID() + ".json"
	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.True(t, exists)

	doc, err := Load(fs, path)
	require.NoError(t, err)
	assert.Equal(t, sess.ID(), doc.SessionID)
	assert.Len(t, doc.CompletedRecords, 1)
	assert.Len(t, doc.RegisteredMethods, 1)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/out", false)
	sess := sampleSession(t)

	require.NoError(t, f.Finalize(sess))
	require.NoError(t, f.Finalize(sess))

	entries, err := afero.ReadDir(fs, "/out")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFinalizeCompressedRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/out", true)
	sess := sampleSession(t)

	require.NoError(t, f.Finalize(sess))

	path := "/out/session_" + sess.ID() + ".json.zst"
	doc, err := Load(fs, path)
	require.NoError(t, err)
	assert.Equal(t, sess.ID(), doc.SessionID)
}

func TestLoadRejectsOlderSchemaVersion(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/session_old.json", []byte(`{"schema_version":"0.1.0"}`), 0o644))

	_, err := Load(fs, "/out/session_old.json")
	assert.Error(t, err)
}
