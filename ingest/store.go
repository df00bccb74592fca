/*
store.go - Persistence interface for the ingestion engine

PURPOSE:
  Defines what the pipeline, scheduler, and reconciliation pass need from
  storage. Keeping the interface this narrow lets the engine run against
  SQLite in production and the in-memory store in tests.

WRITE DISCIPLINE:
  - InsertRecords is the only way records come into existence.
  - UpdateEnrichment is the only mutation afterwards: it attaches the
    enrichment group and flips analyzed false -> true, exactly once.
  - Records are never deleted by the engine.
  - Fingerprint uniqueness is enforced by the store; a conflicting insert
    is absorbed and reported per record, never an error. Two processes
    racing on the same feed item must both survive.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - store/memory: in-memory store for tests
*/
package ingest

import (
	"context"
	"time"

	"github.com/budgetlens/policy-engine/policy"
)

// InsertOutcome reports what happened to one record in an InsertRecords
// batch. Outcome i corresponds to input record i.
type InsertOutcome struct {
	Fingerprint string
	Inserted    bool  // false: fingerprint already stored, record dropped
	ID          int64 // assigned id, set when Inserted
}

// RunRecord is one entry in the ingestion run history. The scheduler saves
// a "running" entry when a pass starts and overwrites it with the final
// status when the pass finishes, so the history shows in-flight passes too.
type RunRecord struct {
	ID          string // uuid
	Trigger     string // "startup", "interval", "manual"
	Status      string // "running", "completed", "failed"
	StartedAt   time.Time
	CompletedAt time.Time // zero while running

	ItemsSeen      int
	ItemsSaved     int
	DuplicateSkips int
	Unenriched     int
	Error          string // empty unless Status == "failed"
}

// Store is the persistence boundary consumed by the engine.
type Store interface {
	// FindByFingerprints reports which of the given fingerprints are
	// already stored. One batch query per pipeline run, not one per item.
	FindByFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error)

	// InsertRecords persists records, absorbing fingerprint conflicts.
	InsertRecords(ctx context.Context, records []policy.Record) ([]InsertOutcome, error)

	// QueryUnanalyzed returns up to limit records with analyzed=false,
	// oldest first, so old failures are healed before new ones.
	QueryUnanalyzed(ctx context.Context, limit int) ([]policy.Record, error)

	// UpdateEnrichment attaches an enrichment to the record and marks it
	// analyzed.
	UpdateEnrichment(ctx context.Context, id int64, e *policy.Enrichment) error

	// SaveRun upserts one run-history record by ID.
	SaveRun(ctx context.Context, run RunRecord) error
}
