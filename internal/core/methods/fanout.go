package methods

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut runs n indexed tasks and returns their outputs in index order. When
// parallel is false the tasks run one after another; otherwise up to n run
// at once and the first error cancels the rest.
func fanOut(ctx context.Context, n int, parallel bool, task func(ctx context.Context, i int) (string, error)) ([]string, error) {
	out := make([]string, n)
	if n <= 0 {
		return out, nil
	}
	if !parallel || n == 1 {
		for i := range n {
			s, err := task(ctx, i)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for i := range n {
		g.Go(func() error {
			s, err := task(gctx, i)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
