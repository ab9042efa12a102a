package utils

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelMap applies fn to every item with at most width concurrent calls and
// returns the results in input order. A width <= 0 uses runtime.NumCPU().
// The first error cancels the context passed to the remaining calls and is returned.
func ParallelMap[T, R any](ctx context.Context, items []T, width int, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}
	if width <= 0 {
		width = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(width)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// The loop may have stopped early on a parent cancellation with no worker error.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
