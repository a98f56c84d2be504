package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of packages processed at once.
const DefaultConcurrency = 5

// ForEachLimit calls fn for every item with at most limit calls in flight.
// Failures are local to an item: fn reports them through its own result
// handling, and ForEachLimit only returns ctx.Err() if the context ended.
func ForEachLimit[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T)) error {
	if limit < 1 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, item)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}
