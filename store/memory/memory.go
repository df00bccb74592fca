// Package memory provides an in-memory ingest.Store implementation
// (for testing/dev). It mirrors the SQLite store's semantics: fingerprint
// conflicts are absorbed per record, unanalyzed queries come back oldest
// first, and enrichment lands on a record exactly once.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/budgetlens/policy-engine/ingest"
	"github.com/budgetlens/policy-engine/policy"
)

type Store struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string]*policy.Record // keyed by fingerprint
	runs    map[string]ingest.RunRecord
}

var _ ingest.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records: make(map[string]*policy.Record),
		runs:    make(map[string]ingest.RunRecord),
	}
}

func (s *Store) FindByFingerprints(_ context.Context, fingerprints []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		if _, ok := s.records[fp]; ok {
			out[fp] = true
		}
	}
	return out, nil
}

func (s *Store) InsertRecords(_ context.Context, records []policy.Record) ([]ingest.InsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := make([]ingest.InsertOutcome, len(records))
	for i, rec := range records {
		oc := ingest.InsertOutcome{Fingerprint: rec.Fingerprint}
		if _, exists := s.records[rec.Fingerprint]; !exists {
			s.nextID++
			rec.ID = s.nextID
			stored := cloneRecord(rec)
			s.records[rec.Fingerprint] = &stored
			oc.Inserted = true
			oc.ID = rec.ID
		}
		outcomes[i] = oc
	}
	return outcomes, nil
}

func (s *Store) QueryUnanalyzed(_ context.Context, limit int) ([]policy.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []policy.Record
	for _, rec := range s.records {
		if !rec.Analyzed {
			out = append(out, cloneRecord(*rec))
		}
	}
	// Oldest first; insertion order breaks created-at ties.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateEnrichment(_ context.Context, id int64, e *policy.Enrichment) error {
	if e == nil {
		return fmt.Errorf("memory: nil enrichment")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID != id {
			continue
		}
		if rec.Analyzed {
			return fmt.Errorf("memory: record %d already analyzed", id)
		}
		cp := *e
		cp.AffectedItems = append([]string(nil), e.AffectedItems...)
		rec.Enrichment = &cp
		rec.Analyzed = true
		return nil
	}
	return fmt.Errorf("memory: record %d not found", id)
}

func (s *Store) SaveRun(_ context.Context, run ingest.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// Records returns every stored record ordered by ID. Test helper.
func (s *Store) Records() []policy.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]policy.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(*rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Runs returns every run record ordered by start time. Test helper.
func (s *Store) Runs() []ingest.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ingest.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func cloneRecord(r policy.Record) policy.Record {
	if r.Enrichment != nil {
		e := *r.Enrichment
		e.AffectedItems = append([]string(nil), e.AffectedItems...)
		r.Enrichment = &e
	}
	return r
}
