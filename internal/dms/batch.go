package dms

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// runBatch calls fn for every id on at most BatchWorkers goroutines. Items
// fail independently; the returned results are in the order of ids.
func (s *Service) runBatch(ctx context.Context, op string, ids []string, fn func(ctx context.Context, id string) error) []ItemResult {
	results := make([]ItemResult, len(ids))

	var g errgroup.Group
	g.SetLimit(s.opts.BatchWorkers)
	for i, id := range ids {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = fn(ctx, id)
			}
			if err != nil {
				s.logger.Warn("batch item failed", "op", op, "id", id, "error", err)
			}
			s.observer.BatchItemCompleted(op, err)
			results[i] = ItemResult{ID: id, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// joinResults collapses per-item results into a single error.
func joinResults(results []ItemResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
