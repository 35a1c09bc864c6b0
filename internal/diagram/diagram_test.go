package diagram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/graph"
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
					{Kind: model.EventTestDeclared, QualifiedName: "pkg.a.test_f", ParentQualifiedName: "pkg.a"},
					{Kind: model.EventImportObserved, Target: "requests"},
				}},
			},
		},
	})
	require.NoError(t, err)
	return g
}

func TestThemeValidation(t *testing.T) {
	for _, name := range []ThemeName{ThemeLight, ThemeDark, ThemeAuto} {
		theme, err := Resolve(name)
		require.NoError(t, err)
		assert.NoError(t, Validate(theme), name)
	}

	_, err := Resolve(ThemeName("sepia"))
	require.Error(t, err)

	err = Validate(Theme{Foreground: "#888888", Background: "#999999", FontSizePt: 12})
	require.Error(t, err, "low contrast must be rejected")

	err = Validate(Theme{Foreground: "#000000", Background: "#ffffff", FontSizePt: 8})
	require.Error(t, err, "small font must be rejected")
}

func TestProjectionDigestIsStable(t *testing.T) {
	g := testGraph(t)
	first := Project(g, PresetArchitecture).Digest()
	second := Project(g, PresetArchitecture).Digest()
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, Project(g, PresetDependencies).Digest())
}

func TestCacheKeyVariesByEveryComponent(t *testing.T) {
	base := CacheKey(PresetArchitecture, FormatMermaid, ThemeLight, "sub")
	assert.NotEqual(t, base, CacheKey(PresetTests, FormatMermaid, ThemeLight, "sub"))
	assert.NotEqual(t, base, CacheKey(PresetArchitecture, FormatGraphviz, ThemeLight, "sub"))
	assert.NotEqual(t, base, CacheKey(PresetArchitecture, FormatMermaid, ThemeDark, "sub"))
	assert.NotEqual(t, base, CacheKey(PresetArchitecture, FormatMermaid, ThemeLight, "other"))
	assert.Equal(t, base, CacheKey(PresetArchitecture, FormatMermaid, ThemeLight, "sub"))
}

func TestBuildSourceCoversAllFormats(t *testing.T) {
	sub := Project(testGraph(t), PresetDependencies)
	assert.Contains(t, string(BuildSource(sub, FormatMermaid)), "graph TD")
	assert.Contains(t, string(BuildSource(sub, FormatPlantUML)), "@startuml")
	assert.Contains(t, string(BuildSource(sub, FormatGraphviz)), "digraph")
}

func TestRenderFallbackIsByteStable(t *testing.T) {
	g := testGraph(t)
	jobs := []Job{{Preset: PresetArchitecture, Format: FormatMermaid, Theme: ThemeLight}}

	first, err := Render(context.Background(), g, jobs, 2, nil, nil)
	require.NoError(t, err)
	second, err := Render(context.Background(), g, jobs, 2, nil, nil)
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, "fallback", first[0].RendererUsed)
	assert.Equal(t, first[0].Rendered, second[0].Rendered)
	assert.Equal(t, first[0].CacheKey, second[0].CacheKey)
	assert.False(t, first[0].CacheHit)
}

func TestRenderUsesCacheOnHit(t *testing.T) {
	g := testGraph(t)
	jobs := []Job{{Preset: PresetArchitecture, Format: FormatMermaid, Theme: ThemeLight}}

	cached := []byte("<svg>cached</svg>")
	lookup := func(string) ([]byte, bool) { return cached, true }

	outputs, err := Render(context.Background(), g, jobs, 1, lookup, nil)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.True(t, outputs[0].CacheHit)
	assert.Equal(t, cached, outputs[0].Rendered)
}

type failingRenderer struct{}

func (failingRenderer) Name() string    { return "broken" }
func (failingRenderer) Available() bool { return true }
func (failingRenderer) Render(context.Context, []byte, Format) ([]byte, error) {
	return nil, errors.New("renderer crashed")
}

func TestExternalFailureFallsBack(t *testing.T) {
	g := testGraph(t)
	jobs := []Job{{Preset: PresetArchitecture, Format: FormatMermaid, Theme: ThemeLight}}

	outputs, err := Render(context.Background(), g, jobs, 1, nil, []Renderer{failingRenderer{}})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "fallback", outputs[0].RendererUsed)
	assert.Contains(t, outputs[0].RenderFailure, "renderer crashed")
	assert.True(t, outputs[0].Probes["broken"])
	assert.NotEmpty(t, outputs[0].Rendered)
}
