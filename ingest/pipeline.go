/*
pipeline.go - One ingestion pass: fetch, dedupe, enrich, persist

PURPOSE:
  RunOnce is phase one of the two-phase commit this service is built
  around: save every new announcement NOW, enriched if the model
  cooperates, unenriched otherwise. Phase two (retry.go) heals the
  unenriched ones later. Raw data is never sacrificed to an AI failure.

CONTRACT:
  RunOnce never panics and never returns an error: every internal failure
  is caught, logged, and folded into the RunResult. The scheduler must be
  able to call this forever without crashing.

BATCH-ABORT:
  When the extractor reports a quota or model-unavailable failure, the
  rest of the batch skips extraction entirely - but every survivor is
  still persisted, the un-extracted ones with analyzed=false.
*/
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/budgetlens/policy-engine/extract"
	"github.com/budgetlens/policy-engine/policy"
	"github.com/budgetlens/policy-engine/source"
)

// RunStatus is the overall outcome of one ingestion pass.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunResult is the aggregate outcome of one ingestion pass.
type RunResult struct {
	Status         RunStatus
	ItemsSeen      int // candidates pulled from the source
	ItemsSaved     int // new records persisted
	DuplicateSkips int // dropped: fingerprint already known (or insert race)
	Unenriched     int // persisted with analyzed=false
	Err            error
}

// Pipeline runs ingestion passes against its collaborators. It holds no
// mutable state of its own; serialization of passes is the scheduler's job.
type Pipeline struct {
	store     Store
	source    source.Source
	extractor extract.Extractor
	logger    *slog.Logger
}

func NewPipeline(store Store, src source.Source, ex extract.Extractor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, source: src, extractor: ex, logger: logger}
}

// RunOnce executes one full ingestion pass.
func (p *Pipeline) RunOnce(ctx context.Context) RunResult {
	started := time.Now()

	cands, err := p.source.FetchCandidates(ctx)
	if err != nil {
		p.logger.Error("candidate fetch failed", "error", err)
		return RunResult{Status: RunFailed, Err: fmt.Errorf("fetch candidates: %w", err)}
	}

	res := RunResult{Status: RunCompleted, ItemsSeen: len(cands)}
	if len(cands) == 0 {
		p.logger.Info("ingestion run finished", "seen", 0, "elapsed", time.Since(started).String())
		return res
	}

	// Fingerprint up front and collapse in-batch repeats, then one batch
	// lookup against the store for everything seen before.
	type pending struct {
		cand policy.Candidate
		fp   string
	}
	inBatch := make(map[string]bool, len(cands))
	fresh := make([]pending, 0, len(cands))
	fps := make([]string, 0, len(cands))
	for _, c := range cands {
		fp := c.Fingerprint()
		if inBatch[fp] {
			res.DuplicateSkips++
			continue
		}
		inBatch[fp] = true
		fresh = append(fresh, pending{cand: c, fp: fp})
		fps = append(fps, fp)
	}

	known, err := p.store.FindByFingerprints(ctx, fps)
	if err != nil {
		p.logger.Error("fingerprint lookup failed", "error", err)
		res.Status = RunFailed
		res.Err = fmt.Errorf("fingerprint lookup: %w", err)
		return res
	}

	now := time.Now()
	records := make([]policy.Record, 0, len(fresh))
	aborted := false
	for _, pn := range fresh {
		if known[pn.fp] {
			res.DuplicateSkips++
			continue
		}

		rec := policy.NewRecord(pn.cand, pn.fp, now)
		if !aborted {
			enr, exErr := p.extractor.Extract(ctx, pn.cand.Title, pn.cand.Summary)
			switch {
			case exErr == nil:
				rec.Enrichment = enr
				rec.Analyzed = true
			case extract.IsBatchAbort(exErr):
				// This item and everything after it persists unenriched;
				// the reconciliation pass picks them up once quota returns.
				aborted = true
				p.logger.Warn("batch enrichment aborted",
					"kind", string(extract.Kind(exErr)),
					"error", exErr)
			default:
				p.logger.Warn("enrichment failed, saving unenriched",
					"kind", string(extract.Kind(exErr)),
					"title", pn.cand.Title,
					"error", exErr)
			}
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		p.logger.Info("ingestion run finished, nothing new",
			"seen", res.ItemsSeen,
			"duplicates", res.DuplicateSkips,
			"elapsed", time.Since(started).String())
		return res
	}

	outcomes, err := p.store.InsertRecords(ctx, records)
	if err != nil {
		p.logger.Error("record insert failed", "error", err)
		res.Status = RunFailed
		res.Err = fmt.Errorf("insert records: %w", err)
		return res
	}
	for i, oc := range outcomes {
		if !oc.Inserted {
			// Another writer landed this fingerprint between our lookup
			// and our insert. Same as any other duplicate.
			res.DuplicateSkips++
			continue
		}
		res.ItemsSaved++
		if !records[i].Analyzed {
			res.Unenriched++
		}
	}

	p.logger.Info("ingestion run finished",
		"seen", res.ItemsSeen,
		"saved", res.ItemsSaved,
		"duplicates", res.DuplicateSkips,
		"unenriched", res.Unenriched,
		"elapsed", time.Since(started).String())
	return res
}
