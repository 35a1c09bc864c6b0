package card

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/graph"
	"github.com/c360studio/codetrail/internal/metrics"
	"github.com/c360studio/codetrail/internal/model"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Build(graph.BuildInput{
		RunID: "run-1",
		Files: []graph.FileExtraction{
			{
				File: model.FileRecord{CanonicalPath: "pkg/a.py", Digest: "d1", Language: "python"},
				Result: model.ExtractionResult{Events: []model.EntityEvent{
					{Kind: model.EventModuleDeclared, QualifiedName: "pkg.a"},
					{Kind: model.EventFunctionDeclared, QualifiedName: "pkg.a.f", ParentQualifiedName: "pkg.a"},
					{Kind: model.EventTestDeclared, QualifiedName: "pkg.a.test_f", ParentQualifiedName: "pkg.a"},
				}},
			},
		},
	})
	require.NoError(t, err)
	return g
}

func TestGenerateProducesOneCardPerScope(t *testing.T) {
	cards := Generate(Input{Graph: testGraph(t)})
	require.Len(t, cards, 3)
	assert.Equal(t, ScopeArchitecture, cards[0].Scope)
	assert.Equal(t, ScopeQuality, cards[1].Scope)
	assert.Equal(t, ScopeTests, cards[2].Scope)
}

func TestCardsSeedReviewPendingAndFallbackStatus(t *testing.T) {
	cards := Generate(Input{Graph: testGraph(t)})
	for _, c := range cards {
		require.Len(t, c.ReviewHistory, 1)
		assert.Equal(t, "review_pending", c.ReviewHistory[0].State)
		assert.Equal(t, StatusTemplateFallback, c.Status)
	}
}

func TestCardIDDeterministicFromScopeAndSubgraph(t *testing.T) {
	first := Generate(Input{Graph: testGraph(t)})
	second := Generate(Input{Graph: testGraph(t)})
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Markdown, second[i].Markdown)
	}
	assert.NotEqual(t, first[0].ID, first[2].ID)
}

func TestMarkdownCarriesRequiredSections(t *testing.T) {
	cards := Generate(Input{
		Graph: testGraph(t),
		Metrics: metrics.Aggregate([]*metrics.Input{
			{Tests: &metrics.TestTotals{Total: 3, Passed: 3}},
		}),
		BundleSeqs: map[string][]int{"all": {0, 1}},
	})

	for _, c := range cards {
		for _, section := range []string{"## Summary", "## Rationale", "## Edge Cases", "## Traceability"} {
			assert.Contains(t, c.Markdown, section)
		}
	}

	quality := cards[1]
	assert.Contains(t, quality.Markdown, "3 of 3 tests passed")
	assert.Contains(t, quality.Markdown, "all-0")
	assert.Contains(t, quality.Traceability.MetricsKeys, "tests")
}

func TestEmptyTraceabilityRendersAsNone(t *testing.T) {
	cards := Generate(Input{Graph: testGraph(t)})
	assert.Contains(t, cards[0].Markdown, "_none_")
}

type fakeAdapter struct{ available bool }

func (a fakeAdapter) Available() bool { return a.available }
func (a fakeAdapter) Refine(_ Scope, md string) (string, error) {
	return strings.Replace(md, "# Explain card", "# Refined card", 1), nil
}

func TestAvailableAdapterUpgradesStatus(t *testing.T) {
	cards := Generate(Input{Graph: testGraph(t), Adapter: fakeAdapter{available: true}})
	assert.Equal(t, StatusTemplate, cards[0].Status)
	assert.True(t, strings.HasPrefix(cards[0].Markdown, "# Refined card"))

	cards = Generate(Input{Graph: testGraph(t), Adapter: fakeAdapter{available: false}})
	assert.Equal(t, StatusTemplateFallback, cards[0].Status)
}
