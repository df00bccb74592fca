package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the deduplication digest for an announcement: a
// SHA-256 over the normalized title plus the link, falling back to the
// normalized summary when the source gave no link. Normalization trims
// surrounding whitespace and case-folds, so retitled-but-identical feed
// items (trailing spaces, casing churn) still collapse to one digest.
func Fingerprint(title, link, summary string) string {
	anchor := strings.TrimSpace(link)
	if anchor == "" {
		anchor = normalize(summary)
	}
	sum := sha256.Sum256([]byte(normalize(title) + "\n" + anchor))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the dedupe digest for this candidate.
func (c Candidate) Fingerprint() string {
	return Fingerprint(c.Title, c.Link, c.Summary)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
