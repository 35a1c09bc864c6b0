// Package orchestrate drives one run end to end: walk,
// delta, extraction, dependency parsing, bundles, graph, diagrams,
// metrics, gates, cards, summary, manifest, cache finalization, and
// retention. The orchestrator exclusively owns the runs/<run_id>/ tree
// until the manifest is written; the cache is committed last, so any
// earlier abort leaves cross-run state untouched.
package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/codetrail/internal/bundle"
	"github.com/c360studio/codetrail/internal/cache"
	"github.com/c360studio/codetrail/internal/card"
	"github.com/c360studio/codetrail/internal/config"
	"github.com/c360studio/codetrail/internal/depend"
	"github.com/c360studio/codetrail/internal/diagram"
	"github.com/c360studio/codetrail/internal/digest"
	"github.com/c360studio/codetrail/internal/extract"
	"github.com/c360studio/codetrail/internal/graph"
	"github.com/c360studio/codetrail/internal/instrument"
	"github.com/c360studio/codetrail/internal/metrics"
	"github.com/c360studio/codetrail/internal/model"
	"github.com/c360studio/codetrail/internal/runerr"
	"github.com/c360studio/codetrail/internal/walker"
	"github.com/c360studio/codetrail/internal/workerpool"
)

// Options configures one run. Clock is injectable so tests can pin the
// run timestamp; production callers leave it nil.
type Options struct {
	Config       *config.Config
	ConfigDigest string
	ToolVersion  string
	Logger       *slog.Logger
	Clock        func() time.Time
	Renderers    func(diagram.Format) []diagram.Renderer
	CardAdapter  card.Adapter
}

// Outcome is the completed run's result. ExitCode is 0 on success and
// 2 when a quality gate failed; fatal errors are returned as errors
// instead and carry their exit code in the runerr class.
type Outcome struct {
	RunID       string
	RunDir      string
	Manifest    *model.Manifest
	Gate        *metrics.GateReport
	Diagnostics []runerr.Diagnostic
	ExitCode    int
}

// subdirs is the fixed run-directory layout.
var subdirs = []string{
	"manifests", "bundles", "graphs", "diagrams", "metrics",
	"delta", "gates", "cards", "assets", "logs", "badges", "summary",
}

type runState struct {
	cfg   *config.Config
	log   *slog.Logger
	meter *instrument.Metrics

	runID  string
	runDir string

	artifacts   []model.ArtifactRecord
	diagnostics []runerr.Diagnostic
	skipped     []model.SkippedStage
}

// Run executes the full pipeline. All artifact writes stay under the
// run directory; the cache mutates only after the manifest lands.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	renderers := opts.Renderers
	if renderers == nil {
		renderers = diagram.DefaultRenderers
	}

	now := clock().UTC()
	seed := opts.ConfigDigest + "\x1f" + cfg.Input
	shortID := strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String(), "-", "")[:8]
	runID := now.Format("20060102T150405Z") + "-" + shortID

	s := &runState{cfg: cfg, log: log, meter: instrument.New(), runID: runID}

	log.Info("starting run", "run_id", runID, "input", cfg.Input)

	// Walk before creating the run directory: an invalid input root is
	// a fatal InputError and must leave no run directory behind.
	walkRes, err := timed(s, ctx, "walk", func(ctx context.Context) (*walker.Result, error) {
		return walker.Walk(walker.Options{
			Root:    cfg.Input,
			Include: cfg.Include,
			Ignore:  cfg.Ignore,
		})
	})
	if err != nil {
		return nil, err
	}
	s.diagnostics = append(s.diagnostics, walkRes.Diagnostics...)
	records := walkRes.Files
	s.meter.FilesWalked.Add(float64(len(records)))

	c, rebuildReason, err := cache.Open(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if rebuildReason != "" {
		log.Warn("cache invalidated, full re-scan forced", "reason", rebuildReason)
	}

	prior, err := c.Snapshot()
	if err != nil {
		return nil, err
	}
	delta := cache.Classify(prior, records)
	force := cfg.ForceRebuild || cfg.NoIncremental || c.ForceRebuild()
	records = cache.ApplyCached(records, delta, force)

	if err := s.createRunDir(); err != nil {
		return nil, err
	}
	log.Info("run directory created", "dir", s.runDir)

	// Entity extraction over all records, bounded by the configured
	// worker count. Cached records reuse the prior run's event blob.
	extractions, err := timed(s, ctx, "extract", func(ctx context.Context) ([]graph.FileExtraction, error) {
		return s.extractAll(ctx, c, records)
	})
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Synopsis = extractions[i].Result.Synopsis
		extractions[i].File = records[i]
	}

	depEvents := s.parseDependencies(records)
	s.diagnostics = append(s.diagnostics, unresolvedImports(extractions, depEvents)...)

	bundles, bundleArtifacts, err := s.buildBundles(records)
	if err != nil {
		return nil, err
	}

	// Core graph: files, entities, dependencies, and bundle artifacts.
	// Diagram and card artifact nodes join in the final rebuild below;
	// neither projection includes artifact nodes, so their cache keys
	// are identical either way.
	var coreGraph *graph.Graph
	if cfg.Graph.Enabled {
		coreGraph, err = graph.Build(graph.BuildInput{
			RunID:        runID,
			Files:        extractions,
			Dependencies: depEvents,
			Artifacts:    bundleArtifacts,
		})
		if err != nil {
			return nil, err
		}
	} else {
		s.skip("graph", "disabled by configuration")
	}

	diagramArtifacts, err := s.renderDiagrams(ctx, coreGraph, c, renderers)
	if err != nil {
		return nil, err
	}

	bundleMetrics, gate, err := s.aggregateMetrics()
	if err != nil {
		return nil, err
	}

	cardArtifacts, err := s.generateCards(coreGraph, bundleMetrics, bundles, opts.CardAdapter)
	if err != nil {
		return nil, err
	}

	if cfg.Graph.Enabled {
		allArtifacts := append(append(bundleArtifacts, diagramArtifacts...), cardArtifacts...)
		finalGraph, err := graph.Build(graph.BuildInput{
			RunID:        runID,
			Files:        extractions,
			Dependencies: depEvents,
			Artifacts:    allArtifacts,
		})
		if err != nil {
			return nil, err
		}
		if err := s.serializeGraph(finalGraph); err != nil {
			return nil, err
		}
	}

	if err := s.writeDelta(delta); err != nil {
		return nil, err
	}

	if err := s.writeSummary(opts, now, records, delta, gate); err != nil {
		return nil, err
	}

	manifest := s.buildManifest(opts, now, records)
	if err := s.writeManifest(manifest); err != nil {
		return nil, err
	}

	// Cache update is the last mutation: stage every record seen this
	// run and commit atomically.
	for i, fr := range records {
		blob, err := json.Marshal(extractions[i].Result)
		if err != nil {
			return nil, runerr.IO("E_RUN_EVENTS_ENCODE", "failed to encode extraction result", err)
		}
		c.Stage(model.CacheEntry{
			CanonicalPath:          fr.CanonicalPath,
			Digest:                 fr.Digest,
			SizeBytes:              fr.SizeBytes,
			MtimeNs:                fr.MtimeNs,
			LastSeenRunID:          runID,
			ExtractionEventsDigest: digest.Bytes(blob),
		})
	}
	if err := c.Finalize(); err != nil {
		return nil, err
	}

	if err := s.pruneRuns(); err != nil {
		log.Warn("retention pruning failed", "error", err)
	}

	outcome := &Outcome{
		RunID:       runID,
		RunDir:      s.runDir,
		Manifest:    manifest,
		Gate:        gate,
		Diagnostics: s.diagnostics,
	}
	if gate != nil && gate.Verdict == metrics.VerdictFail {
		outcome.ExitCode = 2
	}

	log.Info("run complete", "run_id", runID, "files", len(records), "exit_code", outcome.ExitCode)
	return outcome, nil
}

// timed runs one pipeline stage under the configured per-stage
// timeout. A deadline expiry is a fatal run error, never a skip.
func timed[T any](s *runState, ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	sctx := ctx
	if s.cfg.StageTimeoutSec > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.StageTimeoutSec)*time.Second)
		defer cancel()
	}
	out, err := fn(sctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		var zero T
		return zero, runerr.IO("E_STAGE_TIMEOUT", fmt.Sprintf("stage %s exceeded its timeout", name), err)
	}
	return out, err
}

func (s *runState) skip(stage, reason string) {
	s.skipped = append(s.skipped, model.SkippedStage{Stage: stage, Reason: reason})
	s.log.Info("stage skipped", "stage", stage, "reason", reason)
}

func (s *runState) createRunDir() error {
	s.runDir = filepath.Join(s.cfg.OutputDir, s.runID)
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(s.runDir, sub), 0o755); err != nil {
			return runerr.IO("E_RUN_MKDIR", "failed to create run directory", err)
		}
	}
	return nil
}

// writeArtifact writes data under the run directory and registers it in
// the manifest's artifact list with its content digest.
func (s *runState) writeArtifact(kind, rel string, data []byte) error {
	abs := filepath.Join(s.runDir, filepath.FromSlash(rel))
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return runerr.IO("E_RUN_WRITE", fmt.Sprintf("failed to write %s", rel), err)
	}
	s.artifacts = append(s.artifacts, model.ArtifactRecord{
		Kind:         kind,
		RelativePath: rel,
		Digest:       digest.Bytes(data),
	})
	return nil
}

// readInput reads one record's content, refusing any absolute path
// that resolves outside the scan root. The walker only emits in-root
// paths, so a failure here means the tree changed underneath the run.
func (s *runState) readInput(fr model.FileRecord) ([]byte, error) {
	abs, err := walker.ValidateWithinRoot(fr.AbsolutePath, s.cfg.Input)
	if err != nil {
		return nil, runerr.IO("E_RUN_READ", fmt.Sprintf("refusing to read %s", fr.CanonicalPath), err)
	}
	return os.ReadFile(abs)
}

// extractAll runs the entity extractor over every record, bounded by
// the configured worker count, honoring each record's cached flag.
func (s *runState) extractAll(ctx context.Context, c *cache.Cache, records []model.FileRecord) ([]graph.FileExtraction, error) {
	return workerpool.Map(ctx, s.cfg.Workers, records, func(_ context.Context, _ int, fr model.FileRecord) (graph.FileExtraction, error) {
		if fr.Cached {
			blob, ok, err := c.GetEvents(fr.Digest)
			if err != nil {
				return graph.FileExtraction{}, err
			}
			if ok {
				var result model.ExtractionResult
				if err := json.Unmarshal(blob, &result); err == nil {
					s.meter.ExtractionCacheHits.Inc()
					return graph.FileExtraction{File: fr, Result: result}, nil
				}
			}
		}
		s.meter.ExtractionCacheMisses.Inc()

		content, err := s.readInput(fr)
		if err != nil {
			return graph.FileExtraction{}, runerr.IO("E_RUN_READ", fmt.Sprintf("failed to read %s", fr.CanonicalPath), err)
		}

		start := time.Now()
		result := extract.Run(fr.CanonicalPath, fr.Language, content)
		s.meter.ExtractionSeconds.Observe(time.Since(start).Seconds())

		blob, err := json.Marshal(result)
		if err != nil {
			return graph.FileExtraction{}, runerr.IO("E_RUN_EVENTS_ENCODE", "failed to encode extraction result", err)
		}
		c.PutEvents(fr.Digest, blob)

		return graph.FileExtraction{File: fr, Result: result}, nil
	})
}

func (s *runState) parseDependencies(records []model.FileRecord) []model.DependencyEvent {
	var events []model.DependencyEvent
	for _, fr := range records {
		if !depend.Recognized(fr.CanonicalPath) {
			continue
		}
		content, err := s.readInput(fr)
		if err != nil {
			s.diagnostics = append(s.diagnostics, runerr.Diagnostic{
				Code:    "E_DEPEND_READ",
				Class:   runerr.ClassInput,
				Message: err.Error(),
				Path:    fr.CanonicalPath,
			})
			continue
		}
		events = append(events, depend.Parse(fr.CanonicalPath, owningModule(fr.CanonicalPath), content)...)
	}
	return events
}

// owningModule names the nearest containing directory's module for a
// manifest file: the dotted directory path, or empty at the root.
func owningModule(canonicalPath string) string {
	dir := path.Dir(canonicalPath)
	if dir == "." {
		return ""
	}
	return strings.ReplaceAll(dir, "/", ".")
}

func (s *runState) buildBundles(records []model.FileRecord) (map[string][]int, []graph.ArtifactInput, error) {
	read := func(fr model.FileRecord) ([]byte, error) {
		return s.readInput(fr)
	}
	budgets := bundle.Budgets{MaxBytes: s.cfg.Bundle.MaxBytes, MaxLines: s.cfg.Bundle.MaxLines}

	seqs := make(map[string][]int)
	var artifacts []graph.ArtifactInput

	for _, name := range s.cfg.Bundle.Presets {
		preset := bundle.Preset(name)
		built, err := bundle.Build(preset, records, read, budgets)
		if err != nil {
			return nil, nil, err
		}
		for _, b := range built {
			base := fmt.Sprintf("bundles/%s-%d", b.Preset, b.Seq)
			if err := s.writeArtifact("bundle", base+".txt", b.Text); err != nil {
				return nil, nil, err
			}

			index, err := marshalJSON(b.Index)
			if err != nil {
				return nil, nil, runerr.IO("E_BUNDLE_INDEX_ENCODE", "failed to encode bundle index", err)
			}
			if err := s.writeArtifact("bundle_index", base+".index.json", index); err != nil {
				return nil, nil, err
			}

			seqs[name] = append(seqs[name], b.Seq)

			derives := make([]string, 0, len(b.Index))
			for _, unit := range b.Index {
				derives = append(derives, unit.Path)
			}
			artifacts = append(artifacts, graph.ArtifactInput{
				Record:           s.artifacts[len(s.artifacts)-2], // the .txt record just registered
				DerivesFromPaths: derives,
			})
		}
	}

	return seqs, artifacts, nil
}

// unresolvedImports flags imports that resolve to neither a local
// module nor a declared package dependency, surfacing them in the run
// summary's Diagnostics section.
func unresolvedImports(extractions []graph.FileExtraction, deps []model.DependencyEvent) []runerr.Diagnostic {
	localModules := make(map[string]bool)
	for _, fe := range extractions {
		for _, ev := range fe.Result.Events {
			if ev.Kind == model.EventModuleDeclared {
				localModules[ev.QualifiedName] = true
			}
		}
	}

	declared := make(map[string]bool, len(deps))
	for _, dep := range deps {
		declared[dep.Package] = true
	}

	resolvesLocally := func(target string) bool {
		if localModules[target] {
			return true
		}
		for name := range localModules {
			if name == target {
				return true
			}
			if strings.HasSuffix(name, "."+target) {
				return true
			}
		}
		return false
	}

	var diags []runerr.Diagnostic
	seen := make(map[string]bool)
	for _, fe := range extractions {
		for _, ev := range fe.Result.Events {
			if ev.Kind != model.EventImportObserved {
				continue
			}
			target := ev.Target
			if resolvesLocally(target) {
				continue
			}
			root := target
			if idx := strings.IndexAny(root, "./"); idx >= 0 {
				root = root[:idx]
			}
			if declared[depend.CanonicalizePackageName(root)] {
				continue
			}
			key := fe.File.CanonicalPath + "\x1f" + target
			if seen[key] {
				continue
			}
			seen[key] = true
			diags = append(diags, runerr.Diagnostic{
				Code:    "E_IMPORT_UNRESOLVED",
				Class:   runerr.ClassExtraction,
				Message: fmt.Sprintf("import %q resolves to neither a local module nor a declared dependency", target),
				Path:    fe.File.CanonicalPath,
			})
		}
	}
	sort.Slice(diags, func(i, j int) bool {
		if diags[i].Path != diags[j].Path {
			return diags[i].Path < diags[j].Path
		}
		return diags[i].Message < diags[j].Message
	})
	return diags
}

func (s *runState) buildManifest(opts Options, now time.Time, records []model.FileRecord) *model.Manifest {
	artifacts := make([]model.ArtifactRecord, 0, len(s.artifacts))
	artifacts = append(artifacts, s.artifacts...)
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].RelativePath < artifacts[j].RelativePath })

	if records == nil {
		records = []model.FileRecord{}
	}

	return &model.Manifest{
		RunID:                s.runID,
		TimestampUTC:         now,
		ToolVersion:          opts.ToolVersion,
		ConfigVersion:        s.cfg.ConfigVersion,
		Seed:                 opts.ConfigDigest,
		ResolvedConfigDigest: opts.ConfigDigest,
		Environment:          model.Environment{Platform: runtime.GOOS, Arch: runtime.GOARCH},
		FileRecords:          records,
		Artifacts:            artifacts,
		Skipped:              s.skipped,
	}
}

func (s *runState) writeManifest(m *model.Manifest) error {
	data, err := marshalJSON(m)
	if err != nil {
		return runerr.IO("E_MANIFEST_ENCODE", "failed to encode manifest", err)
	}
	abs := filepath.Join(s.runDir, "manifests", "manifest.json")
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return runerr.IO("E_RUN_WRITE", "failed to write manifest", err)
	}
	return nil
}

func (s *runState) writeDelta(delta []model.DeltaRecord) error {
	sorted := make([]model.DeltaRecord, 0, len(delta))
	sorted = append(sorted, delta...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CanonicalPath < sorted[j].CanonicalPath })

	counts := map[string]int{"added": 0, "changed": 0, "removed": 0, "unchanged": 0}
	for _, d := range sorted {
		counts[string(d.State)]++
	}

	doc := struct {
		Counts  map[string]int      `json:"counts"`
		Records []model.DeltaRecord `json:"records"`
	}{Counts: counts, Records: sorted}

	data, err := marshalJSON(doc)
	if err != nil {
		return runerr.IO("E_DELTA_ENCODE", "failed to encode delta report", err)
	}
	return s.writeArtifact("delta", "delta/delta.json", data)
}

// marshalJSON renders v as key-sorted, LF-terminated, two-space
// indented JSON without HTML escaping — the byte shape every JSON
// artifact in the run directory shares.
func marshalJSON(v any) ([]byte, error) {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}
