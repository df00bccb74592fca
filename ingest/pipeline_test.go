package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/policy-engine/extract"
	"github.com/budgetlens/policy-engine/ingest"
	"github.com/budgetlens/policy-engine/policy"
	"github.com/budgetlens/policy-engine/store/memory"
)

// ===== FAKES =====

// fakeSource serves a fixed candidate list, or a fixed error.
type fakeSource struct {
	mu    sync.Mutex
	cands []policy.Candidate
	err   error
	calls int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchCandidates(context.Context) ([]policy.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]policy.Candidate, len(f.cands))
	copy(out, f.cands)
	return out, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeExtractor succeeds by default; script maps a 1-based call number to
// the error that call should return instead.
type fakeExtractor struct {
	mu     sync.Mutex
	calls  int
	script map[int]error
}

func (f *fakeExtractor) Extract(_ context.Context, title, _ string) (*policy.Enrichment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.script[f.calls]; ok {
		return nil, err
	}
	return testEnrichment(), nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingExtractor parks every call until release is closed, reporting
// each arrival on entered. Lets tests hold a pass in flight.
type blockingExtractor struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingExtractor() *blockingExtractor {
	return &blockingExtractor{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingExtractor) Extract(context.Context, string, string) (*policy.Enrichment, error) {
	b.entered <- struct{}{}
	<-b.release
	return testEnrichment(), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnrichment() *policy.Enrichment {
	return &policy.Enrichment{
		Category:    policy.CategoryTransportation,
		ImpactType:  policy.ImpactPercentage,
		ImpactValue: decimal.NewFromInt(-5),
		Description: "metro fares up five percent",
	}
}

func candidates(n int) []policy.Candidate {
	out := make([]policy.Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, policy.Candidate{
			Title:   fmt.Sprintf("Policy announcement %d", i+1),
			Summary: fmt.Sprintf("Details of announcement %d", i+1),
			Link:    fmt.Sprintf("https://example.gov/notice/%d", i+1),
			Source:  "fake",
		})
	}
	return out
}

func quotaErr() error {
	return &extract.Error{Kind: extract.KindQuota, Err: errors.New("429: quota exhausted")}
}

// ===== PIPELINE =====

func TestRunOnceSavesAndEnriches(t *testing.T) {
	st := memory.New()
	src := &fakeSource{cands: candidates(3)}
	ex := &fakeExtractor{}
	p := ingest.NewPipeline(st, src, ex, testLogger())

	res := p.RunOnce(context.Background())

	require.Equal(t, ingest.RunCompleted, res.Status)
	assert.Equal(t, 3, res.ItemsSeen)
	assert.Equal(t, 3, res.ItemsSaved)
	assert.Equal(t, 0, res.DuplicateSkips)
	assert.Equal(t, 0, res.Unenriched)
	assert.NoError(t, res.Err)

	recs := st.Records()
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.True(t, rec.Analyzed)
		require.NotNil(t, rec.Enrichment)
		assert.Equal(t, policy.CategoryTransportation, rec.Category())
		assert.True(t, rec.Enrichment.ImpactValue.Equal(decimal.NewFromInt(-5)))
		assert.False(t, rec.CreatedAt.IsZero())
	}
}

func TestRunOnceSecondRunIsIdempotent(t *testing.T) {
	st := memory.New()
	src := &fakeSource{cands: candidates(3)}
	p := ingest.NewPipeline(st, src, &fakeExtractor{}, testLogger())

	// GIVEN a completed first run
	first := p.RunOnce(context.Background())
	require.Equal(t, 3, first.ItemsSaved)

	// WHEN the same feed is ingested again
	second := p.RunOnce(context.Background())

	// THEN nothing new is saved and everything counts as a duplicate
	assert.Equal(t, ingest.RunCompleted, second.Status)
	assert.Equal(t, 3, second.ItemsSeen)
	assert.Equal(t, 0, second.ItemsSaved)
	assert.Equal(t, 3, second.DuplicateSkips)
	assert.Len(t, st.Records(), 3)
}

func TestRunOnceQuotaAbortPersistsEverything(t *testing.T) {
	abortKinds := map[string]error{
		"quota":             quotaErr(),
		"model unavailable": &extract.Error{Kind: extract.KindModelUnavailable, Err: errors.New("404: model not found")},
	}
	for name, abortErr := range abortKinds {
		t.Run(name, func(t *testing.T) {
			// GIVEN five fresh candidates and an extractor that dies on
			// its second call
			st := memory.New()
			src := &fakeSource{cands: candidates(5)}
			ex := &fakeExtractor{script: map[int]error{2: abortErr}}
			p := ingest.NewPipeline(st, src, ex, testLogger())

			// WHEN the pass runs
			res := p.RunOnce(context.Background())

			// THEN the batch aborts after the failure but every record
			// is persisted, only the first one enriched
			require.Equal(t, ingest.RunCompleted, res.Status)
			assert.Equal(t, 5, res.ItemsSeen)
			assert.Equal(t, 5, res.ItemsSaved)
			assert.Equal(t, 4, res.Unenriched)
			assert.Equal(t, 2, ex.callCount(), "items after the abort must not reach the extractor")

			recs := st.Records()
			require.Len(t, recs, 5)
			analyzed := 0
			for _, rec := range recs {
				if rec.Analyzed {
					analyzed++
					assert.NotNil(t, rec.Enrichment)
				} else {
					assert.Nil(t, rec.Enrichment)
					assert.Equal(t, policy.CategoryGeneral, rec.Category())
				}
			}
			assert.Equal(t, 1, analyzed)
		})
	}
}

func TestRunOnceItemFailuresDoNotAbort(t *testing.T) {
	itemKinds := map[string]error{
		"malformed": &extract.Error{Kind: extract.KindMalformed, Err: errors.New("no JSON in reply")},
		"transient": &extract.Error{Kind: extract.KindTransient, Err: errors.New("connection reset")},
	}
	for name, itemErr := range itemKinds {
		t.Run(name, func(t *testing.T) {
			st := memory.New()
			src := &fakeSource{cands: candidates(3)}
			ex := &fakeExtractor{script: map[int]error{2: itemErr}}
			p := ingest.NewPipeline(st, src, ex, testLogger())

			res := p.RunOnce(context.Background())

			// Only the failing item is saved unenriched; the rest of the
			// batch still reaches the extractor.
			require.Equal(t, ingest.RunCompleted, res.Status)
			assert.Equal(t, 3, res.ItemsSaved)
			assert.Equal(t, 1, res.Unenriched)
			assert.Equal(t, 3, ex.callCount())
		})
	}
}

func TestRunOnceSourceFailure(t *testing.T) {
	st := memory.New()
	src := &fakeSource{err: errors.New("feed unreachable")}
	p := ingest.NewPipeline(st, src, &fakeExtractor{}, testLogger())

	res := p.RunOnce(context.Background())

	assert.Equal(t, ingest.RunFailed, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "feed unreachable")
	assert.Equal(t, 0, res.ItemsSeen)
	assert.Empty(t, st.Records())
}

func TestRunOnceEmptyFetch(t *testing.T) {
	st := memory.New()
	p := ingest.NewPipeline(st, &fakeSource{}, &fakeExtractor{}, testLogger())

	res := p.RunOnce(context.Background())

	assert.Equal(t, ingest.RunCompleted, res.Status)
	assert.Equal(t, 0, res.ItemsSeen)
	assert.Empty(t, st.Records())
}

func TestRunOnceCollapsesRepeatsWithinBatch(t *testing.T) {
	// GIVEN a feed that lists the same announcement twice
	cands := candidates(4)
	cands = append(cands, cands[0])
	st := memory.New()
	src := &fakeSource{cands: cands}
	ex := &fakeExtractor{}
	p := ingest.NewPipeline(st, src, ex, testLogger())

	res := p.RunOnce(context.Background())

	assert.Equal(t, 5, res.ItemsSeen)
	assert.Equal(t, 4, res.ItemsSaved)
	assert.Equal(t, 1, res.DuplicateSkips)
	assert.Equal(t, 4, ex.callCount(), "the repeat must not cost an extractor call")
}

// racingStore pretends no fingerprint is stored yet, so the pipeline walks
// into the uniqueness conflict at insert time - the same shape as a second
// process landing the record between our lookup and our insert.
type racingStore struct {
	*memory.Store
}

func (r *racingStore) FindByFingerprints(context.Context, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func TestRunOnceAbsorbsInsertRace(t *testing.T) {
	inner := memory.New()
	cands := candidates(2)

	// GIVEN the first candidate already stored by someone else
	seeded := policy.NewRecord(cands[0], cands[0].Fingerprint(), time.Now())
	_, err := inner.InsertRecords(context.Background(), []policy.Record{seeded})
	require.NoError(t, err)

	p := ingest.NewPipeline(&racingStore{Store: inner}, &fakeSource{cands: cands}, &fakeExtractor{}, testLogger())

	// WHEN a pass ingests both candidates
	res := p.RunOnce(context.Background())

	// THEN the conflict is a silent duplicate-skip, not a failure
	assert.Equal(t, ingest.RunCompleted, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.ItemsSaved)
	assert.Equal(t, 1, res.DuplicateSkips)
	assert.Len(t, inner.Records(), 2)
}

// failingStore errors on every lookup.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) FindByFingerprints(context.Context, []string) (map[string]bool, error) {
	return nil, errors.New("database is locked")
}

func TestRunOnceStoreFailure(t *testing.T) {
	st := &failingStore{Store: memory.New()}
	p := ingest.NewPipeline(st, &fakeSource{cands: candidates(2)}, &fakeExtractor{}, testLogger())

	res := p.RunOnce(context.Background())

	assert.Equal(t, ingest.RunFailed, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "database is locked")
}
