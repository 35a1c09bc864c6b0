// Package workerpool implements the one bounded, indexed map shape
// the pipeline's embarrassingly parallel stages share (entity
// extraction, diagram rendering): a configurable worker count, results
// returned indexed by input position so callers can reassemble
// canonical order regardless of completion order, and a single context
// cancellation that aborts in-flight work, realized with
// golang.org/x/sync/errgroup's semaphore-backed bounded group.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map runs fn over items with at most limit concurrent in flight,
// returning results indexed identically to items. A limit <= 0 means
// unbounded. The first error encountered cancels the context passed to
// the remaining work and is returned with a nil results slice.
func Map[T any, R any](ctx context.Context, limit int, items []T, fn func(context.Context, int, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			result, err := fn(gctx, i, item)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
