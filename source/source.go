// Package source pulls candidate policy announcements from public feeds:
// an RSS press-release feed and HTML news listings. Adapters normalize raw
// items into policy.Candidate values and keep only those that plausibly
// carry a financial impact for households.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/budgetlens/policy-engine/policy"
)

// Feed pages embed arbitrarily long bodies; records carry bounded excerpts.
const (
	maxTitleRunes   = 200
	maxSummaryRunes = 500
)

const userAgent = "policy-engine/1.0 (+https://github.com/budgetlens/policy-engine)"

// Source produces raw candidate records from one feed.
type Source interface {
	// Name identifies the adapter in logs and in candidate source tags.
	Name() string
	FetchCandidates(ctx context.Context) ([]policy.Candidate, error)
}

// =============================================================================
// MULTI - fan out over several adapters
// =============================================================================

// Multi queries several adapters in order and concatenates their results.
// It fails only when every adapter fails: a partial harvest is a success,
// one dead feed must not blank the whole ingestion run.
type Multi struct {
	sources []Source
	logger  *slog.Logger
}

func NewMulti(logger *slog.Logger, sources ...Source) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{sources: sources, logger: logger}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) FetchCandidates(ctx context.Context) ([]policy.Candidate, error) {
	var out []policy.Candidate
	var errs []error
	for _, s := range m.sources {
		cands, err := s.FetchCandidates(ctx)
		if err != nil {
			m.logger.Warn("source fetch failed",
				"source", s.Name(),
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		m.logger.Debug("source fetched",
			"source", s.Name(),
			"candidates", len(cands))
		out = append(out, cands...)
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// newCandidate trims and bounds raw feed fields. Returns false when the
// title is empty - a candidate without a title is unusable.
func newCandidate(title, summary, link, published, sourceTag string) (policy.Candidate, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return policy.Candidate{}, false
	}
	return policy.Candidate{
		Title:         truncateRunes(title, maxTitleRunes),
		Summary:       truncateRunes(strings.TrimSpace(summary), maxSummaryRunes),
		Link:          strings.TrimSpace(link),
		PublishedDate: strings.TrimSpace(published),
		Source:        sourceTag,
	}, true
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
