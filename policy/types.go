// Package policy defines the domain model for ingested government policy
// announcements: raw candidates pulled from public feeds, persisted records,
// and the AI-extracted financial-impact enrichment attached to them.
package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// Category tags an announcement by the household spending area it touches.
type Category string

const (
	CategoryTransportation Category = "transportation"
	CategoryFood           Category = "food"
	CategoryHousing        Category = "housing"
	CategoryHealthcare     Category = "healthcare"
	CategoryEducation      Category = "education"
	CategoryUtilities      Category = "utilities"
	CategoryEntertainment  Category = "entertainment"
	CategoryShopping       Category = "shopping"
	CategorySavings        Category = "savings"
	CategoryInvestments    Category = "investments"

	// CategoryGeneral is the fallback bucket, and the category a record
	// reports before analysis has assigned a real one.
	CategoryGeneral Category = "general"
)

// Categories returns every valid category in display order.
func Categories() []Category {
	return []Category{
		CategoryTransportation,
		CategoryFood,
		CategoryHousing,
		CategoryHealthcare,
		CategoryEducation,
		CategoryUtilities,
		CategoryEntertainment,
		CategoryShopping,
		CategorySavings,
		CategoryInvestments,
		CategoryGeneral,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTransportation, CategoryFood, CategoryHousing,
		CategoryHealthcare, CategoryEducation, CategoryUtilities,
		CategoryEntertainment, CategoryShopping, CategorySavings,
		CategoryInvestments, CategoryGeneral:
		return true
	}
	return false
}

// =============================================================================
// IMPACT TYPES
// =============================================================================

// ImpactType describes the shape of a price or rate change.
type ImpactType string

const (
	ImpactPercentage  ImpactType = "percentage"   // rate change, e.g. GST 18% -> 12%
	ImpactFixedAmount ImpactType = "fixed_amount" // absolute change in currency units
	ImpactMultiplier  ImpactType = "multiplier"   // scaling factor applied to a price
	ImpactBinary      ImpactType = "binary"       // introduced/withdrawn, no magnitude
)

// Valid reports whether t is one of the known impact types.
func (t ImpactType) Valid() bool {
	switch t {
	case ImpactPercentage, ImpactFixedAmount, ImpactMultiplier, ImpactBinary:
		return true
	}
	return false
}

// =============================================================================
// CANDIDATE - raw item from a source feed
// =============================================================================

// Candidate is a raw item pulled from a source feed, before deduplication
// and enrichment. PublishedDate is carried as source-provided text; feeds
// do not agree on a timestamp format and the value is display-only.
type Candidate struct {
	Title         string
	Summary       string
	Link          string
	PublishedDate string
	Source        string
}

// =============================================================================
// ENRICHMENT - AI-extracted impact data
// =============================================================================

// Enrichment is the structured impact data extracted for one announcement.
// It attaches to a Record as a whole: a record has either a complete
// enrichment or none.
type Enrichment struct {
	Category   Category
	ImpactType ImpactType

	// ImpactValue is sign-bearing: positive means the consumer is better
	// off (price cut, new subsidy), negative means a new cost.
	ImpactValue decimal.Decimal

	// OldValue and NewValue bracket the change where the announcement
	// states both. Binary impacts usually carry neither.
	OldValue decimal.NullDecimal
	NewValue decimal.NullDecimal

	// AffectedItems are short tags for the goods/services touched,
	// e.g. ["petrol", "diesel"].
	AffectedItems []string

	// Description is a one-sentence plain-language summary.
	Description string
}

// Validate checks the enrichment against the closed enumerations.
func (e *Enrichment) Validate() error {
	if !e.Category.Valid() {
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if !e.ImpactType.Valid() {
		return fmt.Errorf("unknown impact type %q", e.ImpactType)
	}
	if e.Description == "" {
		return fmt.Errorf("empty description")
	}
	return nil
}

// =============================================================================
// RECORD - persisted announcement
// =============================================================================

// Record is a persisted policy announcement. Raw fields are written once at
// insertion; the enrichment group and Analyzed flag are set either at
// insertion (immediate extraction success) or later by a reconciliation
// pass, exactly once. CreatedAt is immutable.
type Record struct {
	ID          int64
	Fingerprint string

	Title         string
	Summary       string
	Link          string
	PublishedDate string
	Source        string

	// Enrichment is nil until Analyzed is true.
	Enrichment *Enrichment
	Analyzed   bool
	CreatedAt  time.Time
}

// Category returns the enriched category, or CategoryGeneral for records
// that have not been analyzed yet.
func (r *Record) Category() Category {
	if r.Enrichment != nil {
		return r.Enrichment.Category
	}
	return CategoryGeneral
}

// NewRecord assembles an unanalyzed record from a candidate. The caller
// attaches an enrichment afterwards if extraction succeeded.
func NewRecord(c Candidate, fingerprint string, now time.Time) Record {
	return Record{
		Fingerprint:   fingerprint,
		Title:         c.Title,
		Summary:       c.Summary,
		Link:          c.Link,
		PublishedDate: c.PublishedDate,
		Source:        c.Source,
		CreatedAt:     now.UTC(),
	}
}
