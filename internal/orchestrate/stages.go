package orchestrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/c360studio/codetrail/internal/cache"
	"github.com/c360studio/codetrail/internal/card"
	"github.com/c360studio/codetrail/internal/diagram"
	"github.com/c360studio/codetrail/internal/graph"
	"github.com/c360studio/codetrail/internal/graph/diff"
	"github.com/c360studio/codetrail/internal/graph/serialize"
	"github.com/c360studio/codetrail/internal/metrics"
	"github.com/c360studio/codetrail/internal/runerr"
)

// diagramMeta is one row of diagrams/metadata.json.
type diagramMeta struct {
	Preset        string          `json:"preset"`
	Format        string          `json:"format"`
	Theme         string          `json:"theme"`
	CacheKey      string          `json:"cache_key"`
	CacheHit      bool            `json:"cache_hit"`
	RendererUsed  string          `json:"renderer_used,omitempty"`
	Probes        map[string]bool `json:"probes,omitempty"`
	RenderFailure string          `json:"render_failure,omitempty"`
}

func (s *runState) renderDiagrams(ctx context.Context, g *graph.Graph, c *cache.Cache, renderers func(diagram.Format) []diagram.Renderer) ([]graph.ArtifactInput, error) {
	if !s.cfg.Diagram.Enabled {
		s.skip("diagrams", "disabled by configuration")
		return nil, nil
	}
	if g == nil {
		s.skip("diagrams", "graph construction disabled")
		return nil, nil
	}

	format := diagram.Format(s.cfg.Diagram.Format)
	theme := diagram.ThemeName(s.cfg.Diagram.Theme)

	jobs := make([]diagram.Job, 0, len(s.cfg.Diagram.Presets))
	for _, preset := range s.cfg.Diagram.Presets {
		jobs = append(jobs, diagram.Job{Preset: diagram.Preset(preset), Format: format, Theme: theme})
	}

	lookup := func(key string) ([]byte, bool) {
		blob, ok, err := c.GetTemplate(key)
		if err != nil || !ok {
			s.meter.DiagramCacheMisses.Inc()
			return nil, false
		}
		s.meter.DiagramCacheHits.Inc()
		return blob, true
	}

	outputs, err := diagram.Render(ctx, g, jobs, s.cfg.Diagram.Concurrency, lookup, renderers(format))
	if err != nil {
		return nil, err
	}

	var artifacts []graph.ArtifactInput
	meta := make([]diagramMeta, 0, len(outputs))

	for _, out := range outputs {
		base := fmt.Sprintf("diagrams/%s.%s", out.Job.Preset, out.Job.Format)

		if err := s.writeArtifact("diagram_source", base+".src", out.Source); err != nil {
			return nil, err
		}
		if err := s.writeArtifact("diagram", base+".svg", out.Rendered); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, graph.ArtifactInput{Record: s.artifacts[len(s.artifacts)-1]})

		if !out.CacheHit {
			c.PutTemplate(out.CacheKey, out.Rendered)
		}
		if out.RenderFailure != "" {
			s.diagnostics = append(s.diagnostics, runerr.Diagnostic{
				Code:    "E_RENDER_FALLBACK",
				Class:   runerr.ClassRender,
				Message: out.RenderFailure,
				Path:    base + ".svg",
			})
		}

		meta = append(meta, diagramMeta{
			Preset:        string(out.Job.Preset),
			Format:        string(out.Job.Format),
			Theme:         string(out.Job.Theme),
			CacheKey:      out.CacheKey,
			CacheHit:      out.CacheHit,
			RendererUsed:  out.RendererUsed,
			Probes:        out.Probes,
			RenderFailure: out.RenderFailure,
		})
	}

	sort.Slice(meta, func(i, j int) bool { return meta[i].Preset < meta[j].Preset })
	data, err := marshalJSON(meta)
	if err != nil {
		return nil, runerr.IO("E_DIAGRAM_META_ENCODE", "failed to encode diagram metadata", err)
	}
	if err := s.writeArtifact("diagram_metadata", "diagrams/metadata.json", data); err != nil {
		return nil, err
	}

	return artifacts, nil
}

func (s *runState) aggregateMetrics() (*metrics.Bundle, *metrics.GateReport, error) {
	var inputs []*metrics.Input
	for _, path := range s.cfg.MetricsFiles {
		blob, err := os.ReadFile(path)
		if err != nil {
			s.diagnostics = append(s.diagnostics, runerr.Diagnostic{
				Code:    "E_METRICS_READ",
				Class:   runerr.ClassMetricsFormat,
				Message: err.Error(),
				Path:    path,
			})
			continue
		}
		in, err := metrics.Parse(blob)
		if err != nil {
			s.diagnostics = append(s.diagnostics, runerr.Diagnostic{
				Code:    "E_METRICS_SKIPPED",
				Class:   runerr.ClassMetricsFormat,
				Message: err.Error(),
				Path:    path,
			})
			continue
		}
		inputs = append(inputs, in)
	}

	bundle := metrics.Aggregate(inputs)
	data, err := bundle.Marshal()
	if err != nil {
		return nil, nil, runerr.IO("E_METRICS_ENCODE", "failed to encode metrics bundle", err)
	}
	if err := s.writeArtifact("metrics", "metrics/metrics.json", data); err != nil {
		return nil, nil, err
	}

	gate := metrics.EvaluateGates(bundle, s.cfg.Thresholds)
	data, err = gate.Marshal()
	if err != nil {
		return nil, nil, runerr.IO("E_GATE_ENCODE", "failed to encode gate report", err)
	}
	if err := s.writeArtifact("gate", "gates/gate.json", data); err != nil {
		return nil, nil, err
	}

	return bundle, gate, nil
}

func (s *runState) generateCards(g *graph.Graph, m *metrics.Bundle, bundleSeqs map[string][]int, adapter card.Adapter) ([]graph.ArtifactInput, error) {
	if g == nil {
		s.skip("cards", "graph construction disabled")
		return nil, nil
	}

	cards := card.Generate(card.Input{
		Graph:      g,
		Metrics:    m,
		BundleSeqs: bundleSeqs,
		Adapter:    adapter,
	})

	var artifacts []graph.ArtifactInput
	for _, c := range cards {
		if err := s.writeArtifact("card", "cards/"+c.ID+".md", []byte(c.Markdown)); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, graph.ArtifactInput{Record: s.artifacts[len(s.artifacts)-1]})

		sidecar, err := card.MarshalSidecar(c)
		if err != nil {
			return nil, runerr.IO("E_CARD_ENCODE", "failed to encode card sidecar", err)
		}
		if err := s.writeArtifact("card_sidecar", "cards/"+c.ID+".json", sidecar); err != nil {
			return nil, err
		}
	}

	index, err := card.MarshalIndex(cards)
	if err != nil {
		return nil, runerr.IO("E_CARD_INDEX_ENCODE", "failed to encode card index", err)
	}
	if err := s.writeArtifact("card_index", "cards/index.json", index); err != nil {
		return nil, err
	}

	return artifacts, nil
}

// serializeGraph projects the configured scope, writes both graph
// serializations, and diffs against the most recent prior run's
// snapshot when one exists.
func (s *runState) serializeGraph(g *graph.Graph) error {
	projected := graph.Project(g, graph.Scope(s.cfg.Graph.Scope), s.cfg.Graph.NoTests)

	jsonLD, err := serialize.JSONLD(projected)
	if err != nil {
		return runerr.IO("E_GRAPH_ENCODE", "failed to serialize graph as JSON-LD", err)
	}
	if err := s.writeArtifact("graph", "graphs/knowledge_graph.json", jsonLD); err != nil {
		return err
	}

	graphML, err := serialize.GraphML(projected)
	if err != nil {
		return runerr.IO("E_GRAPH_ENCODE", "failed to serialize graph as GraphML", err)
	}
	if err := s.writeArtifact("graph", "graphs/knowledge_graph.graphml", graphML); err != nil {
		return err
	}

	if !s.cfg.Graph.Diff {
		s.skip("graph_diff", "disabled by configuration")
		return nil
	}

	priorBlob, ok := s.priorGraphSnapshot()
	if !ok {
		s.skip("graph_diff", "no prior run snapshot found")
		return nil
	}

	prior, err := diff.ParsePriorSnapshot(priorBlob)
	if err != nil {
		s.diagnostics = append(s.diagnostics, runerr.Diagnostic{
			Code:    "E_GRAPH_DIFF_PRIOR",
			Class:   runerr.ClassExtraction,
			Message: err.Error(),
		})
		s.skip("graph_diff", "prior snapshot unreadable")
		return nil
	}

	result, err := diff.Compare(prior, projected)
	if err != nil {
		return err
	}

	data, err := marshalJSON(result)
	if err != nil {
		return runerr.IO("E_GRAPH_DIFF_ENCODE", "failed to encode graph diff", err)
	}
	if err := s.writeArtifact("graph_diff", "graphs/diff.json", data); err != nil {
		return err
	}
	return s.writeArtifact("graph_diff", "graphs/diff.md", []byte(diff.Markdown(result)))
}

var runDirPattern = regexp.MustCompile(`^\d{8}T\d{6}Z-[0-9a-f]{8}$`)

// priorGraphSnapshot returns the serialized graph of the most recent
// sibling run, if any.
func (s *runState) priorGraphSnapshot() ([]byte, bool) {
	entries, err := os.ReadDir(s.cfg.OutputDir)
	if err != nil {
		return nil, false
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != s.runID && runDirPattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		blob, err := os.ReadFile(filepath.Join(s.cfg.OutputDir, name, "graphs", "knowledge_graph.json"))
		if err == nil {
			return blob, true
		}
	}
	return nil, false
}

// pruneRuns removes sibling run directories beyond the retention
// count, preserving the current run unconditionally. A retention count
// of zero disables pruning.
func (s *runState) pruneRuns() error {
	if s.cfg.RetentionCount <= 0 {
		return nil
	}

	entries, err := os.ReadDir(s.cfg.OutputDir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && runDirPattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	kept := 0
	for _, name := range names {
		if name == s.runID {
			kept++
			continue
		}
		if kept < s.cfg.RetentionCount {
			kept++
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.cfg.OutputDir, name)); err != nil {
			return err
		}
		s.log.Info("pruned run directory", "run", name)
	}
	return nil
}
