/*
errors.go - Failure taxonomy for the extraction boundary

PURPOSE:
  Every way an extraction can fail is collapsed into a small closed set of
  kinds here, because the pipeline's policy differs by kind:

  KindQuota            retry the item with backoff, then abort the batch
  KindModelUnavailable abort the batch immediately (no model, no point)
  KindMalformed        skip the item, keep the batch going
  KindTransient        skip the item, keep the batch going

  Callers dispatch on Kind()/IsBatchAbort() only. The one place allowed to
  look at raw upstream error text is Classify in gemini.go - that is where
  the taxonomy is minted.

WHY BATCH-ABORT ON QUOTA:
  Quota exhaustion recurs for every subsequent call in the batch; retrying
  each remaining item would burn time and requests for nothing. Malformed
  output is item-specific, so the batch continues.
*/
package extract

import (
	"errors"
	"fmt"
)

// FailureKind classifies an extraction failure. The set is closed.
type FailureKind string

const (
	// KindQuota means the upstream model signalled rate/quota exhaustion.
	KindQuota FailureKind = "quota_exhausted"
	// KindModelUnavailable means the configured model does not exist or
	// cannot be reached at all (HTTP 404 and friends).
	KindModelUnavailable FailureKind = "model_unavailable"
	// KindMalformed means the model answered but the reply does not parse
	// into the expected schema.
	KindMalformed FailureKind = "malformed_output"
	// KindTransient covers network failures, timeouts, and empty replies.
	KindTransient FailureKind = "transient"
)

// Error is the only error type Extract returns.
type Error struct {
	Kind FailureKind
	Err  error // upstream cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("extract: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns the failure kind carried by err. Errors that did not come
// from this package classify as transient - the most conservative per-item
// policy.
func Kind(err error) FailureKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsQuota reports whether err is a quota/rate-limit failure.
func IsQuota(err error) bool { return Kind(err) == KindQuota }

// IsMalformed reports whether err is a malformed-output failure.
func IsMalformed(err error) bool { return Kind(err) == KindMalformed }

// IsBatchAbort reports whether err poisons the rest of the batch: once the
// model is out of quota or missing, every following call would fail the
// same way.
func IsBatchAbort(err error) bool {
	k := Kind(err)
	return k == KindQuota || k == KindModelUnavailable
}
