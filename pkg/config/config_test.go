package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracewireio/tracewire/pkg/stream"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	clearEnv(t, "TW_ENABLED", "TW_TRACE_DIR", "TW_SOCKET_PORT", "TW_MAX_CALLS")
	cfg := Load("TW", 5678)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, DefaultTraceDir, cfg.TraceDir)
	assert.Equal(t, 5678, cfg.SocketPort)
	assert.Equal(t, int64(DefaultMaxCalls), cfg.MaxCalls)
}

func TestLoadParsesModulesAndExclude(t *testing.T) {
	os.Setenv("TW_MODULES", "app., lib.")
	os.Setenv("TW_EXCLUDE", "app.internal.")
	t.Cleanup(func() {
		os.Unsetenv("TW_MODULES")
		os.Unsetenv("TW_EXCLUDE")
	})
	cfg := Load("TW", 5678)
	assert.Equal(t, []string{"app.", "lib."}, cfg.Includes)
	assert.Equal(t, []string{"app.internal."}, cfg.Excludes)
}

func TestLoadInvalidIntegerFallsBackToDefault(t *testing.T) {
	os.Setenv("TW_MAX_DEPTH", "not-a-number")
	t.Cleanup(func() { os.Unsetenv("TW_MAX_DEPTH") })
	cfg := Load("TW", 5678)
	assert.Equal(t, DefaultMaxDepth, cfg.MaxDepth)
}

func TestLoadBackpressurePolicy(t *testing.T) {
	os.Setenv("TW_BACKPRESSURE", "disconnect_subscriber")
	t.Cleanup(func() { os.Unsetenv("TW_BACKPRESSURE") })
	cfg := Load("TW", 5678)
	assert.Equal(t, stream.DisconnectSubscriber, cfg.Backpressure)
}

func TestLoadEnabledRequiresExactly1(t *testing.T) {
	os.Setenv("TW_ENABLED", "true")
	t.Cleanup(func() { os.Unsetenv("TW_ENABLED") })
	cfg := Load("TW", 5678)
	assert.False(t, cfg.Enabled)

	os.Setenv("TW_ENABLED", "1")
	cfg = Load("TW", 5678)
	assert.True(t, cfg.Enabled)
}
