package finalize

import (
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"tillclose/backend/internal/domain"
)

const defaultConcurrency = 4

// BatchResult reports the outcome of persisting a batch of counts. Every
// count is attempted; one failure never hides another.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
}

func (r BatchResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	ids := r.FailedIDs()
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, r.Failed[id])
	}
	return &domain.FailedCashierError{CashierIDs: ids, Err: errors.Join(errs...)}
}

func persistBatch(ctx context.Context, persister CountPersister, counts []domain.CashierCount, limit int) BatchResult {
	if limit < 1 {
		limit = defaultConcurrency
	}

	var (
		mu     sync.Mutex
		result = BatchResult{Failed: make(map[string]error)}
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for _, count := range counts {
		g.Go(func() error {
			err := persister.PersistCashierCount(ctx, count)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[count.CashierID] = err
			} else {
				result.Succeeded = append(result.Succeeded, count.CashierID)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(result.Succeeded)
	return result
}

// persistWithRetry persists the batch and retries the failed counts once.
func persistWithRetry(ctx context.Context, persister CountPersister, counts []domain.CashierCount, limit int) BatchResult {
	first := persistBatch(ctx, persister, counts, limit)
	if len(first.Failed) == 0 || ctx.Err() != nil {
		return first
	}

	retry := make([]domain.CashierCount, 0, len(first.Failed))
	for _, count := range counts {
		if _, failed := first.Failed[count.CashierID]; failed {
			retry = append(retry, count)
		}
	}
	second := persistBatch(ctx, persister, retry, limit)

	merged := BatchResult{
		Succeeded: append(slices.Clone(first.Succeeded), second.Succeeded...),
		Failed:    second.Failed,
	}
	slices.Sort(merged.Succeeded)
	return merged
}
