package domain

import "fmt"

// FailedItem records one item that a store could not ingest.
type FailedItem struct {
	Identifier string
	Reason     string
}

// IngestionBatchResult is the per-store accounting for one ingestion run.
// The successful+failed==total invariant is checked after construction via
// Validate, not enforced field by field.
type IngestionBatchResult struct {
	Total       int
	Successful  int
	Failed      int
	FailedItems []FailedItem
}

func (r IngestionBatchResult) Validate() error {
	if r.Total < 0 || r.Successful < 0 || r.Failed < 0 {
		return fmt.Errorf("domain: batch result has negative counts (%d/%d/%d)", r.Total, r.Successful, r.Failed)
	}
	if r.Successful+r.Failed != r.Total {
		return fmt.Errorf("domain: batch result mismatch: successful(%d)+failed(%d) != total(%d)",
			r.Successful, r.Failed, r.Total)
	}
	if len(r.FailedItems) != r.Failed {
		return fmt.Errorf("domain: batch result lists %d failed items but failed=%d",
			len(r.FailedItems), r.Failed)
	}
	return nil
}

// Merge folds another result into this one.
func (r *IngestionBatchResult) Merge(other IngestionBatchResult) {
	r.Total += other.Total
	r.Successful += other.Successful
	r.Failed += other.Failed
	r.FailedItems = append(r.FailedItems, other.FailedItems...)
}
