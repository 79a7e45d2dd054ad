package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewireio/tracewire/pkg/finalize"
	"github.com/tracewireio/tracewire/pkg/trace"
)

func sampleDoc() *finalize.Document {
	return &finalize.Document{
		SessionID: "s1",
		CompletedRecords: []*trace.Event{
			{Module: "app.handlers", Function: "handle", Depth: 0, DurationMs: 12},
			{Module: "app.db", Function: "query", Depth: 1, DurationMs: 8},
			{Module: "app.db", Function: "query", Depth: 1, DurationMs: 5},
		},
		RegisteredMethods: []trace.MethodRef{
			{Module: "app.handlers", Function: "handle"},
			{Module: "app.db", Function: "query"},
			{Module: "app.unused", Function: "never_called"},
		},
	}
}

func TestBuildPerformanceSummaryRanksBySlowestTotal(t *testing.T) {
	summary := BuildPerformanceSummary(sampleDoc())
	require.Len(t, summary.Methods, 2)
	assert.Equal(t, "app.db", summary.Methods[0].Module)
	assert.Equal(t, 2, summary.Methods[0].CallCount)
	assert.Equal(t, 12.0, summary.Methods[1].TotalMs)
}

func TestFindDeadCodeCandidatesFindsNeverDescendantCalled(t *testing.T) {
	candidates := FindDeadCodeCandidates(sampleDoc())
	require.Len(t, candidates, 2)
	modules := []string{candidates[0].Module, candidates[1].Module}
	assert.Contains(t, modules, "app.handlers")
	assert.Contains(t, modules, "app.unused")
}

func TestRenderMarkdownIncludesDeadCodeSection(t *testing.T) {
	summary := BuildPerformanceSummary(sampleDoc())
	candidates := FindDeadCodeCandidates(sampleDoc())
	md, err := RenderMarkdown(summary, candidates)
	require.NoError(t, err)
	assert.Contains(t, md, "app.unused.never_called")
}

func TestRenderHTMLProducesHTMLTags(t *testing.T) {
	summary := BuildPerformanceSummary(sampleDoc())
	html, err := RenderHTML(summary, nil)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1")
}
