// Package search holds the helpers shared by retrieval backends.
package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

const DefaultConcurrency = 16

type SearchFunc func(ctx context.Context, query string, k int) ([]domain.SearchHit, error)

// Batch runs search for every query with at most concurrency requests in
// flight. Results are indexed by input position.
func Batch(ctx context.Context, search SearchFunc, queries []string, k int, concurrency int) ([][]domain.SearchHit, error) {
	out := make([][]domain.SearchHit, len(queries))
	if len(queries) == 0 {
		return out, nil
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, q := range queries {
		g.Go(func() error {
			hits, err := search(gctx, q, k)
			if err != nil {
				return fmt.Errorf("search query %d: %w", i, err)
			}
			out[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
