// Package extract turns raw policy-announcement text into structured
// financial-impact data via an external AI model, and classifies every
// failure into the closed taxonomy in errors.go.
package extract

import (
	"context"
	"errors"

	"github.com/budgetlens/policy-engine/policy"
)

// Extractor is the AI boundary consumed by the ingestion pipeline and the
// reconciliation pass. On failure the returned error always carries a
// FailureKind (see Kind).
type Extractor interface {
	Extract(ctx context.Context, title, summary string) (*policy.Enrichment, error)
}

// Disabled is the stand-in Extractor used when no model credentials are
// configured. Every call fails as model-unavailable, so ingestion still
// persists records (unenriched) and a retry pass can heal them once a
// key arrives.
type Disabled struct{}

var _ Extractor = Disabled{}

func (Disabled) Extract(ctx context.Context, title, summary string) (*policy.Enrichment, error) {
	return nil, &Error{Kind: KindModelUnavailable, Err: errors.New("no API key configured")}
}
