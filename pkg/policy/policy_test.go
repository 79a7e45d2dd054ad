package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldTraceExcludesBeatIncludes(t *testing.T) {
	p := New(Config{
		Includes: []string{"app."},
		Excludes: []string{"app.internal."},
	})
	assert.True(t, p.ShouldTrace("app.handlers"))
	assert.False(t, p.ShouldTrace("app.internal.secret"))
	assert.False(t, p.ShouldTrace("thirdparty.lib"))
}

func TestShouldTraceEmptyIncludesAllowsAll(t *testing.T) {
	p := New(Config{})
	assert.True(t, p.ShouldTrace("anything.at.all"))
}

func TestBuiltinExcludesCannotBeOverriddenByIncludes(t *testing.T) {
	p := New(Config{
		Includes:        []string{"runtime."},
		BuiltinExcludes: DefaultBuiltinExcludes("self.module"),
	})
	assert.False(t, p.ShouldTrace("runtime.gc"))
}

func TestDedupStreamsOnlyFirstNEncounters(t *testing.T) {
	p := New(Config{DedupLimit: 2})
	assert.True(t, p.ShouldStream("f.go", 10))
	assert.True(t, p.ShouldStream("f.go", 10))
	assert.False(t, p.ShouldStream("f.go", 10))
	assert.False(t, p.ShouldStream("f.go", 10))
	// a distinct line is tracked independently
	assert.True(t, p.ShouldStream("f.go", 20))
}

func TestDedupDisabledByDefault(t *testing.T) {
	p := New(Config{})
	for i := 0; i < 5; i++ {
		assert.True(t, p.ShouldStream("f.go", 1))
	}
}

func TestSamplingEmitsEveryNth(t *testing.T) {
	p := New(Config{SampleRate: 3})
	results := make([]bool, 6)
	for i := range results {
		results[i] = p.ShouldSample()
	}
	assert.Equal(t, []bool{false, false, true, false, false, true}, results)
}

func TestSamplingDisabledByDefault(t *testing.T) {
	p := New(Config{})
	for i := 0; i < 5; i++ {
		assert.True(t, p.ShouldSample())
	}
}

func TestDiagnoseUnmatchedSuggestsClosest(t *testing.T) {
	suggestions := DiagnoseUnmatched([]string{"ap."}, []string{"app.handlers", "thirdparty.lib"})
	assert.Len(t, suggestions, 1)
	assert.Equal(t, "ap.", suggestions[0].Configured)
}
