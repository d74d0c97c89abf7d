package stores

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
)

// BatchPolicy centralizes sub-batching, retry-with-backoff and result
// aggregation for all three ingestors, so max retries, the backoff curve and
// failure classification are defined once.
type BatchPolicy struct {
	BatchSize       int
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{
		BatchSize:       100,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func (p BatchPolicy) normalized() BatchPolicy {
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchPolicy().BatchSize
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultBatchPolicy().InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultBatchPolicy().MaxInterval
	}
	return p
}

// Run splits ids into sub-batches and invokes write for each. Transient
// errors are retried with bounded exponential backoff; a sub-batch that
// still fails records all of its items as failed without aborting
// already-committed sub-batches. Cancellation is cooperative: a cancelled
// context stops before the next sub-batch starts and the remaining items are
// recorded as failed rather than silently dropped.
func (p BatchPolicy) Run(
	ctx context.Context,
	ids []string,
	write func(ctx context.Context, offset int, batch []string) error,
) domain.IngestionBatchResult {
	p = p.normalized()
	result := domain.IngestionBatchResult{Total: len(ids)}

	for lo := 0; lo < len(ids); lo += p.BatchSize {
		if err := ctx.Err(); err != nil {
			for _, id := range ids[lo:] {
				result.Failed++
				result.FailedItems = append(result.FailedItems, domain.FailedItem{
					Identifier: id,
					Reason:     "cancelled before sub-batch: " + err.Error(),
				})
			}
			return result
		}

		hi := lo + p.BatchSize
		if hi > len(ids) {
			hi = len(ids)
		}
		batch := ids[lo:hi]

		err := p.retry(ctx, func() error { return write(ctx, lo, batch) })
		if err != nil {
			for _, id := range batch {
				result.Failed++
				result.FailedItems = append(result.FailedItems, domain.FailedItem{
					Identifier: id,
					Reason:     err.Error(),
				})
			}
			continue
		}
		result.Successful += len(batch)
	}
	return result
}

func (p BatchPolicy) retry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx))
}
