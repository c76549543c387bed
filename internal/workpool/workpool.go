// Package workpool runs indexed tasks with a bounded number of goroutines.
// The same pool type is used for batches, documents and pages.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool bounds how many tasks run at once.
type Pool struct {
	limit int
}

// New returns a pool running at most limit tasks concurrently. Limits
// below one are raised to one.
func New(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{limit: limit}
}

func (p *Pool) Limit() int { return p.limit }

// Map runs fn for every item and returns the results in item order,
// regardless of the order in which the tasks finish. Tasks report their
// own failures through R; Map never stops early.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, i int, item T) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	var eg errgroup.Group
	eg.SetLimit(p.limit)
	for i, item := range items {
		eg.Go(func() error {
			results[i] = fn(ctx, i, item)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}
