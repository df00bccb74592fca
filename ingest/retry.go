/*
retry.go - Reconciliation pass for unanalyzed records

PURPOSE:
  Phase two of the two-phase commit: records that were persisted with
  analyzed=false (quota ran out, model hiccuped, reply was garbage) are
  re-fed to the extractor, oldest first. A successful extraction is the
  only mutation a record ever receives after insertion.

DISCIPLINE:
  - Never touches analyzed=true records; the query excludes them, so
    repeated passes are idempotent.
  - Same abort policy as ingestion: a quota or model-unavailable failure
    ends the whole pass, the leftovers wait for the next one.
  - Single-flight: one pass at a time, a concurrent request is rejected
    immediately. It may overlap an ingestion pass - the two touch
    disjoint record sets.
*/
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/budgetlens/policy-engine/extract"
)

// DefaultRetryLimit bounds a reconciliation pass when the caller does not
// say otherwise.
const DefaultRetryLimit = 50

// RetryResult is the outcome of one reconciliation pass. Attempted counts
// records the extractor was actually invoked for; an aborted pass leaves
// the remainder unattempted. StillUnanalyzed counts the queried records
// that remain unanalyzed after the pass.
type RetryResult struct {
	Attempted       int
	Succeeded       int
	StillUnanalyzed int
	Err             error
}

// Retryer heals unanalyzed records.
type Retryer struct {
	store     Store
	extractor extract.Extractor
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewRetryer(store Store, ex extract.Extractor, logger *slog.Logger) *Retryer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retryer{store: store, extractor: ex, logger: logger}
}

// Retry runs one pass synchronously over up to limit records. The second
// return is false when another pass is already in flight (nothing ran).
// Internal failures never escape; they are folded into the result.
func (r *Retryer) Retry(ctx context.Context, limit int) (RetryResult, bool) {
	if !r.begin() {
		return RetryResult{}, false
	}
	defer r.end()
	return r.pass(ctx, limit), true
}

// TriggerRetry starts one pass on its own goroutine and returns
// immediately: true if the pass was started, false if one is in flight.
func (r *Retryer) TriggerRetry(limit int) bool {
	if !r.begin() {
		return false
	}
	go func() {
		defer r.end()
		r.pass(context.Background(), limit)
	}()
	return true
}

// Running reports whether a pass is in flight.
func (r *Retryer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Retryer) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Retryer) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Retryer) pass(ctx context.Context, limit int) RetryResult {
	if limit <= 0 {
		limit = DefaultRetryLimit
	}
	started := time.Now()

	recs, err := r.store.QueryUnanalyzed(ctx, limit)
	if err != nil {
		r.logger.Error("unanalyzed query failed", "error", err)
		return RetryResult{Err: fmt.Errorf("query unanalyzed: %w", err)}
	}
	if len(recs) == 0 {
		return RetryResult{}
	}

	r.logger.Info("reconciliation pass starting", "records", len(recs))

	var res RetryResult
	for _, rec := range recs {
		res.Attempted++
		enr, exErr := r.extractor.Extract(ctx, rec.Title, rec.Summary)
		if exErr != nil {
			if extract.IsBatchAbort(exErr) {
				r.logger.Warn("reconciliation aborted",
					"kind", string(extract.Kind(exErr)),
					"error", exErr)
				break
			}
			r.logger.Warn("re-extraction failed",
				"id", rec.ID,
				"kind", string(extract.Kind(exErr)),
				"error", exErr)
			continue
		}
		if uerr := r.store.UpdateEnrichment(ctx, rec.ID, enr); uerr != nil {
			r.logger.Error("enrichment update failed", "id", rec.ID, "error", uerr)
			continue
		}
		res.Succeeded++
	}

	res.StillUnanalyzed = len(recs) - res.Succeeded
	r.logger.Info("reconciliation pass finished",
		"attempted", res.Attempted,
		"succeeded", res.Succeeded,
		"still_unanalyzed", res.StillUnanalyzed,
		"elapsed", time.Since(started).String())
	return res
}
