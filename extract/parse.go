package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/budgetlens/policy-engine/policy"
)

// enrichmentJSON is the wire shape the model is asked to produce.
type enrichmentJSON struct {
	Category      string       `json:"category"`
	ImpactType    string       `json:"impact_type"`
	ImpactValue   *json.Number `json:"impact_value"`
	OldValue      *json.Number `json:"old_value"`
	NewValue      *json.Number `json:"new_value"`
	AffectedItems []string     `json:"affected_items"`
	Description   string       `json:"description"`
}

// ParseEnrichment validates a raw model reply against the extraction
// schema. Models habitually wrap JSON in markdown fences despite being told
// not to, so fences are stripped first. Any schema violation comes back as
// a KindMalformed error.
func ParseEnrichment(raw string) (*policy.Enrichment, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("empty reply")}
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var wire enrichmentJSON
	if err := dec.Decode(&wire); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("decode reply: %w", err)}
	}

	e := &policy.Enrichment{
		Category:    policy.Category(strings.ToLower(strings.TrimSpace(wire.Category))),
		ImpactType:  policy.ImpactType(strings.ToLower(strings.TrimSpace(wire.ImpactType))),
		Description: strings.TrimSpace(wire.Description),
	}

	// Unknown categories degrade to the fallback bucket rather than
	// discarding an otherwise-usable extraction.
	if !e.Category.Valid() {
		e.Category = policy.CategoryGeneral
	}

	if wire.ImpactValue == nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("missing impact_value")}
	}
	v, err := decimal.NewFromString(wire.ImpactValue.String())
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("impact_value %q: %w", wire.ImpactValue.String(), err)}
	}
	e.ImpactValue = v

	if e.OldValue, err = parseNullDecimal(wire.OldValue); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("old_value: %w", err)}
	}
	if e.NewValue, err = parseNullDecimal(wire.NewValue); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("new_value: %w", err)}
	}

	e.AffectedItems = make([]string, 0, len(wire.AffectedItems))
	for _, item := range wire.AffectedItems {
		if item = strings.TrimSpace(item); item != "" {
			e.AffectedItems = append(e.AffectedItems, item)
		}
	}

	if err := e.Validate(); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: err}
	}
	return e, nil
}

func parseNullDecimal(n *json.Number) (decimal.NullDecimal, error) {
	if n == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
