package diagram

import (
	"context"
	"fmt"

	"github.com/c360studio/codetrail/internal/graph"
	"github.com/c360studio/codetrail/internal/workerpool"
)

// Job is one requested (preset, format, theme) combination.
type Job struct {
	Preset Preset
	Format Format
	Theme  ThemeName
}

// CacheLookup returns a cached render's bytes for a cache key, if any.
// The orchestrator supplies this backed by the run cache; a cache hit
// means Render reuses the prior run's bytes unchanged.
type CacheLookup func(cacheKey string) ([]byte, bool)

// Output is one rendered diagram plus its metadata sidecar fields:
// the renderer that produced it and the result of each renderer probed.
// RenderFailure carries the external renderer's error message when it
// failed and the fallback took over.
type Output struct {
	Job           Job
	CacheKey      string
	Source        []byte
	Rendered      []byte
	CacheHit      bool
	RendererUsed  string
	Probes        map[string]bool
	RenderFailure string
}

// Render produces one Output per job, probing the external renderers in
// order and using the first available one; when none is available, or
// the chosen one fails, FallbackRenderer produces the output. Bounded by
// concurrency concurrent jobs in flight. Ordering of completion never
// affects outputs or cache keys: results are indexed by job position.
func Render(ctx context.Context, g *graph.Graph, jobs []Job, concurrency int, lookup CacheLookup, externals []Renderer) ([]Output, error) {
	return workerpool.Map(ctx, concurrency, jobs, func(ctx context.Context, _ int, job Job) (Output, error) {
		theme, err := Resolve(job.Theme)
		if err != nil {
			return Output{}, err
		}
		if err := Validate(theme); err != nil {
			return Output{}, err
		}

		sub := Project(g, job.Preset)
		subgraphDigest := sub.Digest()
		cacheKey := CacheKey(job.Preset, job.Format, job.Theme, subgraphDigest)
		source := BuildSource(sub, job.Format)

		if lookup != nil {
			if cached, ok := lookup(cacheKey); ok {
				return Output{Job: job, CacheKey: cacheKey, Source: source, Rendered: cached, CacheHit: true}, nil
			}
		}

		probes := make(map[string]bool, len(externals))
		var renderer Renderer = FallbackRenderer{}
		for _, ext := range externals {
			available := ext.Available()
			probes[ext.Name()] = available
			if available {
				renderer = ext
				break
			}
		}

		var renderFailure string
		rendered, err := renderer.Render(ctx, source, job.Format)
		if err != nil {
			// External renderer failure is non-fatal: degrade to the deterministic fallback
			// and record the failure in the metadata sidecar.
			renderFailure = err.Error()
			renderer = FallbackRenderer{}
			rendered, err = renderer.Render(ctx, source, job.Format)
			if err != nil {
				return Output{}, fmt.Errorf("render %s/%s/%s: %w", job.Preset, job.Format, job.Theme, err)
			}
		}

		return Output{
			Job:           job,
			CacheKey:      cacheKey,
			Source:        source,
			Rendered:      rendered,
			RendererUsed:  renderer.Name(),
			Probes:        probes,
			RenderFailure: renderFailure,
		}, nil
	})
}
