package source_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/policy-engine/policy"
	"github.com/budgetlens/policy-engine/source"
)

type fakeSource struct {
	name  string
	cands []policy.Candidate
	err   error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchCandidates(context.Context) ([]policy.Candidate, error) {
	return f.cands, f.err
}

func TestMulti_ConcatenatesInOrder(t *testing.T) {
	m := source.NewMulti(nil,
		&fakeSource{name: "a", cands: []policy.Candidate{{Title: "one"}, {Title: "two"}}},
		&fakeSource{name: "b", cands: []policy.Candidate{{Title: "three"}}},
	)

	cands, err := m.FetchCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, "one", cands[0].Title)
	assert.Equal(t, "three", cands[2].Title)
}

func TestMulti_PartialFailureIsSuccess(t *testing.T) {
	m := source.NewMulti(nil,
		&fakeSource{name: "dead", err: errors.New("connection refused")},
		&fakeSource{name: "alive", cands: []policy.Candidate{{Title: "survivor"}}},
	)

	cands, err := m.FetchCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "survivor", cands[0].Title)
}

func TestMulti_AllFailedIsFailure(t *testing.T) {
	m := source.NewMulti(nil,
		&fakeSource{name: "a", err: errors.New("timeout")},
		&fakeSource{name: "b", err: errors.New("dns failure")},
	)

	_, err := m.FetchCandidates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "dns failure")
}

func TestMulti_EmptyHarvestWithoutErrorsIsSuccess(t *testing.T) {
	m := source.NewMulti(nil, &fakeSource{name: "quiet"})

	cands, err := m.FetchCandidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cands)
}
