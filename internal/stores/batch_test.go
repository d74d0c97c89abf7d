package stores

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func fastPolicy() BatchPolicy {
	return BatchPolicy{
		BatchSize:       2,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("chunk-%d", i)
	}
	return ids
}

func TestBatchPolicyAllSucceed(t *testing.T) {
	var calls int
	res := fastPolicy().Run(context.Background(), makeIDs(5), func(_ context.Context, _ int, batch []string) error {
		calls++
		return nil
	})

	if calls != 3 {
		t.Fatalf("sub-batch calls: want=3 got=%d", calls)
	}
	if res.Total != 5 || res.Successful != 5 || res.Failed != 0 {
		t.Fatalf("counts: got=%d/%d/%d", res.Total, res.Successful, res.Failed)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBatchPolicyFailedSubBatchDoesNotAbortOthers(t *testing.T) {
	res := fastPolicy().Run(context.Background(), makeIDs(6), func(_ context.Context, offset int, _ []string) error {
		if offset == 2 {
			return &ValidationError{Item: "chunk-2", Message: "bad chunk"}
		}
		return nil
	})

	if res.Successful != 4 || res.Failed != 2 {
		t.Fatalf("counts: got=%d/%d/%d", res.Total, res.Successful, res.Failed)
	}
	if len(res.FailedItems) != 2 {
		t.Fatalf("failed items: want=2 got=%d", len(res.FailedItems))
	}
	if res.FailedItems[0].Identifier != "chunk-2" {
		t.Fatalf("failed id: want=%q got=%q", "chunk-2", res.FailedItems[0].Identifier)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBatchPolicyRetriesTransient(t *testing.T) {
	var attempts int
	res := fastPolicy().Run(context.Background(), makeIDs(2), func(_ context.Context, _ int, _ []string) error {
		attempts++
		if attempts < 3 {
			return &TransientError{Op: "upsert", Cause: fmt.Errorf("rate limited")}
		}
		return nil
	})

	if attempts != 3 {
		t.Fatalf("attempts: want=3 got=%d", attempts)
	}
	if res.Successful != 2 {
		t.Fatalf("successful: want=2 got=%d", res.Successful)
	}
}

func TestBatchPolicyDoesNotRetryValidation(t *testing.T) {
	var attempts int
	res := fastPolicy().Run(context.Background(), makeIDs(1), func(_ context.Context, _ int, _ []string) error {
		attempts++
		return &ValidationError{Item: "chunk-0", Message: "missing uuid"}
	})

	if attempts != 1 {
		t.Fatalf("attempts: want=1 got=%d", attempts)
	}
	if res.Failed != 1 {
		t.Fatalf("failed: want=1 got=%d", res.Failed)
	}
}

func TestBatchPolicyTransientExhaustionRecordsFailure(t *testing.T) {
	var attempts int
	res := fastPolicy().Run(context.Background(), makeIDs(2), func(_ context.Context, _ int, _ []string) error {
		attempts++
		return &TransientError{Op: "upsert", Cause: fmt.Errorf("connection reset")}
	})

	// Initial attempt plus MaxRetries.
	if attempts != 3 {
		t.Fatalf("attempts: want=3 got=%d", attempts)
	}
	if res.Failed != 2 || res.Successful != 0 {
		t.Fatalf("counts: got=%d/%d/%d", res.Total, res.Successful, res.Failed)
	}
}

func TestBatchPolicyCancellationBetweenSubBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	res := fastPolicy().Run(ctx, makeIDs(6), func(_ context.Context, _ int, _ []string) error {
		calls++
		cancel()
		return nil
	})

	if calls != 1 {
		t.Fatalf("sub-batch calls after cancel: want=1 got=%d", calls)
	}
	if res.Successful != 2 || res.Failed != 4 {
		t.Fatalf("counts: got=%d/%d/%d", res.Total, res.Successful, res.Failed)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	var lc Lifecycle
	if lc.State() != StateUninitialized {
		t.Fatalf("initial state: got=%s", lc.State())
	}
	if err := lc.RequireReady(); err == nil {
		t.Fatalf("RequireReady before init: expected error")
	}
	if err := lc.BeginInit(); err != nil {
		t.Fatalf("BeginInit: %v", err)
	}
	if err := lc.BeginInit(); err == nil {
		t.Fatalf("double BeginInit: expected error")
	}
	lc.MarkReady()
	if err := lc.RequireReady(); err != nil {
		t.Fatalf("RequireReady: %v", err)
	}
	lc.MarkClosed()
	if err := lc.RequireReady(); err == nil {
		t.Fatalf("RequireReady after close: expected error")
	}
}

func TestLifecycleFailedDuringInit(t *testing.T) {
	var lc Lifecycle
	if err := lc.BeginInit(); err != nil {
		t.Fatalf("BeginInit: %v", err)
	}
	lc.MarkFailed()
	if lc.State() != StateFailed {
		t.Fatalf("state: want=%s got=%s", StateFailed, lc.State())
	}
	if err := lc.RequireReady(); err == nil {
		t.Fatalf("RequireReady in failed state: expected error")
	}
}
