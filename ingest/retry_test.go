package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/policy-engine/extract"
	"github.com/budgetlens/policy-engine/ingest"
	"github.com/budgetlens/policy-engine/policy"
	"github.com/budgetlens/policy-engine/store/memory"
)

// seedUnanalyzed stores n unenriched records a minute apart, oldest first.
func seedUnanalyzed(t *testing.T, st *memory.Store, n int) {
	t.Helper()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	recs := make([]policy.Record, 0, n)
	for i := 0; i < n; i++ {
		c := policy.Candidate{
			Title:  fmt.Sprintf("Seeded notice %d", i+1),
			Link:   fmt.Sprintf("https://example.gov/seed/%d", i+1),
			Source: "seed",
		}
		recs = append(recs, policy.NewRecord(c, c.Fingerprint(), base.Add(time.Duration(i)*time.Minute)))
	}
	_, err := st.InsertRecords(context.Background(), recs)
	require.NoError(t, err)
}

func TestRetryHealsUnanalyzed(t *testing.T) {
	// GIVEN three records left unenriched by an earlier quota failure
	st := memory.New()
	seedUnanalyzed(t, st, 3)
	ex := &fakeExtractor{}
	r := ingest.NewRetryer(st, ex, testLogger())

	// WHEN the extractor has recovered and a pass runs
	res, ok := r.Retry(context.Background(), 10)

	// THEN every record is healed
	require.True(t, ok)
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 0, res.StillUnanalyzed)
	assert.NoError(t, res.Err)

	for _, rec := range st.Records() {
		assert.True(t, rec.Analyzed)
		require.NotNil(t, rec.Enrichment)
	}
}

func TestRetryAbortEndsPass(t *testing.T) {
	st := memory.New()
	seedUnanalyzed(t, st, 4)
	ex := &fakeExtractor{script: map[int]error{2: quotaErr()}}
	r := ingest.NewRetryer(st, ex, testLogger())

	res, ok := r.Retry(context.Background(), 10)

	require.True(t, ok)
	assert.Equal(t, 2, res.Attempted, "records after the abort stay unattempted")
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 3, res.StillUnanalyzed)
	assert.Equal(t, 2, ex.callCount())
}

func TestRetryItemFailureContinues(t *testing.T) {
	st := memory.New()
	seedUnanalyzed(t, st, 3)
	ex := &fakeExtractor{script: map[int]error{
		1: &extract.Error{Kind: extract.KindMalformed, Err: errors.New("prose instead of JSON")},
	}}
	r := ingest.NewRetryer(st, ex, testLogger())

	res, ok := r.Retry(context.Background(), 10)

	require.True(t, ok)
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.StillUnanalyzed)
}

func TestRetryOldestFirstUnderLimit(t *testing.T) {
	st := memory.New()
	seedUnanalyzed(t, st, 5)
	r := ingest.NewRetryer(st, &fakeExtractor{}, testLogger())

	res, ok := r.Retry(context.Background(), 2)

	require.True(t, ok)
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.StillUnanalyzed)

	// The two oldest seeds were healed, the newer three untouched.
	for _, rec := range st.Records() {
		if rec.ID <= 2 {
			assert.True(t, rec.Analyzed, "record %d should be analyzed", rec.ID)
		} else {
			assert.False(t, rec.Analyzed, "record %d should still be unanalyzed", rec.ID)
		}
	}
}

func TestRetryIdempotent(t *testing.T) {
	st := memory.New()
	seedUnanalyzed(t, st, 2)
	ex := &fakeExtractor{}
	r := ingest.NewRetryer(st, ex, testLogger())

	first, ok := r.Retry(context.Background(), 10)
	require.True(t, ok)
	require.Equal(t, 2, first.Succeeded)

	// A second pass finds nothing to do and never calls the extractor.
	second, ok := r.Retry(context.Background(), 10)
	require.True(t, ok)
	assert.Equal(t, 0, second.Attempted)
	assert.Equal(t, 0, second.StillUnanalyzed)
	assert.Equal(t, 2, ex.callCount())
}

func TestRetrySingleFlight(t *testing.T) {
	st := memory.New()
	seedUnanalyzed(t, st, 1)
	bx := newBlockingExtractor()
	r := ingest.NewRetryer(st, bx, testLogger())

	// GIVEN a pass parked inside the extractor
	require.True(t, r.TriggerRetry(0))
	waitEntered(t, bx)
	assert.True(t, r.Running())

	// THEN concurrent requests are rejected, not queued
	assert.False(t, r.TriggerRetry(0))
	_, ok := r.Retry(context.Background(), 10)
	assert.False(t, ok)

	// WHEN the pass finishes, the guard frees and the heal landed
	close(bx.release)
	require.Eventually(t, func() bool { return !r.Running() },
		2*time.Second, 5*time.Millisecond)
	recs := st.Records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Analyzed)
}

type failingQueryStore struct {
	*memory.Store
}

func (f *failingQueryStore) QueryUnanalyzed(context.Context, int) ([]policy.Record, error) {
	return nil, errors.New("database is locked")
}

func TestRetryQueryFailure(t *testing.T) {
	r := ingest.NewRetryer(&failingQueryStore{Store: memory.New()}, &fakeExtractor{}, testLogger())

	res, ok := r.Retry(context.Background(), 10)

	require.True(t, ok)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "database is locked")
	assert.Equal(t, 0, res.Attempted)
}
