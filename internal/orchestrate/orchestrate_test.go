package orchestrate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/c360studio/codetrail/internal/extract/docs"
	_ "github.com/c360studio/codetrail/internal/extract/golang"
	_ "github.com/c360studio/codetrail/internal/extract/python"

	"github.com/c360studio/codetrail/internal/config"
	"github.com/c360studio/codetrail/internal/diagram"
	"github.com/c360studio/codetrail/internal/model"
)

func testConfig(t *testing.T, input string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Input = input
	cfg.OutputDir = filepath.Join(t.TempDir(), "runs")
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	return cfg
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// noExternals keeps every run on the deterministic fallback renderer.
func noExternals(diagram.Format) []diagram.Renderer { return nil }

func runOnce(t *testing.T, cfg *config.Config, at time.Time) *Outcome {
	t.Helper()
	outcome, err := Run(context.Background(), Options{
		Config:       cfg,
		ConfigDigest: "test-config-digest",
		ToolVersion:  "test",
		Clock:        fixedClock(at),
		Renderers:    noExternals,
	})
	require.NoError(t, err)
	return outcome
}

func readDelta(t *testing.T, runDir string) map[string]int {
	t.Helper()
	blob, err := os.ReadFile(filepath.Join(runDir, "delta", "delta.json"))
	require.NoError(t, err)
	var doc struct {
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(blob, &doc))
	return doc.Counts
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestEmptyTreeProducesCompleteRun(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	outcome := runOnce(t, cfg, t0)
	assert.Equal(t, 0, outcome.ExitCode)
	require.NotNil(t, outcome.Manifest)
	assert.Empty(t, outcome.Manifest.FileRecords)

	// One header-only bundle for the default preset, a graph with the
	// sole run node, and a passing gate report.
	assert.FileExists(t, filepath.Join(outcome.RunDir, "bundles", "all-0.txt"))
	assert.FileExists(t, filepath.Join(outcome.RunDir, "gates", "gate.json"))
	assert.FileExists(t, filepath.Join(outcome.RunDir, "summary", "summary.md"))
	assert.FileExists(t, filepath.Join(outcome.RunDir, "manifests", "manifest.json"))

	blob, err := os.ReadFile(filepath.Join(outcome.RunDir, "graphs", "knowledge_graph.json"))
	require.NoError(t, err)
	var doc struct {
		Nodes []model.Node `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(blob, &doc))

	kinds := map[model.NodeKind]int{}
	for _, n := range doc.Nodes {
		kinds[n.Kind]++
	}
	assert.Equal(t, 1, kinds[model.NodeRun])
	assert.Zero(t, kinds[model.NodeFile])
	assert.Zero(t, kinds[model.NodeModule])
}

func TestSingleFileRerunIsStableAndCached(t *testing.T) {
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "a.py"), []byte("def f(): pass\n"), 0o644))

	cfg := testConfig(t, input)

	first := runOnce(t, cfg, t0)
	counts := readDelta(t, first.RunDir)
	assert.Equal(t, 1, counts["added"])

	second := runOnce(t, cfg, t0.Add(time.Minute))
	counts = readDelta(t, second.RunDir)
	assert.Equal(t, 1, counts["unchanged"])
	assert.Equal(t, 0, counts["changed"])

	// Bundles and diagram sources are byte-identical across the two
	// runs. (Graph serializations embed the run node's timestamped ID,
	// so they are compared structurally via the diff instead.)
	for _, rel := range []string{
		filepath.Join("bundles", "all-0.txt"),
		filepath.Join("diagrams", "architecture.mermaid.src"),
	} {
		a, err := os.ReadFile(filepath.Join(first.RunDir, rel))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(second.RunDir, rel))
		require.NoError(t, err)
		assert.Equal(t, a, b, rel)
	}

	// The second run reused the cached extraction events.
	summary, err := os.ReadFile(filepath.Join(second.RunDir, "summary", "summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "codetrail_extraction_cache_hits_total`: 1")
}

func TestMutationReportsChangedAndDiffs(t *testing.T) {
	input := t.TempDir()
	target := filepath.Join(input, "a.py")
	require.NoError(t, os.WriteFile(target, []byte("def f(): pass\n"), 0o644))

	cfg := testConfig(t, input)
	first := runOnce(t, cfg, t0)

	require.NoError(t, os.WriteFile(target, []byte("def g(): pass\n"), 0o644))
	second := runOnce(t, cfg, t0.Add(time.Minute))

	counts := readDelta(t, second.RunDir)
	assert.Equal(t, 1, counts["changed"])

	// The graph diff lists the changed file and the renamed function.
	diffMD, err := os.ReadFile(filepath.Join(second.RunDir, "graphs", "diff.md"))
	require.NoError(t, err)
	assert.Contains(t, string(diffMD), "a.py")

	firstBundle, err := os.ReadFile(filepath.Join(first.RunDir, "bundles", "all-0.txt"))
	require.NoError(t, err)
	secondBundle, err := os.ReadFile(filepath.Join(second.RunDir, "bundles", "all-0.txt"))
	require.NoError(t, err)
	assert.NotEqual(t, firstBundle, secondBundle)
}

func TestGateFailureSetsExitTwoButCompletesRun(t *testing.T) {
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "a.py"), []byte("def f(): pass\n"), 0o644))

	metricsPath := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(metricsPath, []byte(`{"tests":{"total":5,"passed":4,"failed":1,"skipped":0,"duration_ms":10}}`), 0o644))

	cfg := testConfig(t, input)
	cfg.MetricsFiles = []string{metricsPath}
	zero := 0
	cfg.Thresholds.MaxFailedTests = &zero

	outcome := runOnce(t, cfg, t0)
	assert.Equal(t, 2, outcome.ExitCode)
	require.NotNil(t, outcome.Gate)
	require.Len(t, outcome.Gate.Checks, 1)
	assert.Contains(t, outcome.Gate.Checks[0].Reason, "exceed the maximum 0")

	// The failing gate never blocks artifact production.
	assert.FileExists(t, filepath.Join(outcome.RunDir, "manifests", "manifest.json"))
	assert.FileExists(t, filepath.Join(outcome.RunDir, "summary", "summary.md"))
}

func TestMalformedMetricsSkippedWithDiagnostic(t *testing.T) {
	input := t.TempDir()
	metricsPath := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(metricsPath, []byte(`{"tests":`), 0o644))

	cfg := testConfig(t, input)
	cfg.MetricsFiles = []string{metricsPath}

	outcome := runOnce(t, cfg, t0)
	assert.Equal(t, 0, outcome.ExitCode)

	found := false
	for _, d := range outcome.Diagnostics {
		if d.Code == "E_METRICS_SKIPPED" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRetentionPrunesOldRuns(t *testing.T) {
	input := t.TempDir()
	cfg := testConfig(t, input)
	cfg.RetentionCount = 2

	for i := 0; i < 4; i++ {
		runOnce(t, cfg, t0.Add(time.Duration(i)*time.Minute))
	}

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMissingInputRootFailsBeforeRunDirCreation(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := Run(context.Background(), Options{
		Config:       cfg,
		ConfigDigest: "d",
		ToolVersion:  "test",
		Clock:        fixedClock(t0),
		Renderers:    noExternals,
	})
	require.Error(t, err)
	_, statErr := os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUnresolvedImportDiagnostic(t *testing.T) {
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "a.py"), []byte("import numpy\n\ndef f(): pass\n"), 0o644))

	cfg := testConfig(t, input)
	outcome := runOnce(t, cfg, t0)

	found := false
	for _, d := range outcome.Diagnostics {
		if d.Code == "E_IMPORT_UNRESOLVED" && d.Path == "a.py" {
			found = true
		}
	}
	assert.True(t, found, "expected an unresolved-import diagnostic for numpy")
}
