/*
sample.go - Demo corpus loader for testing and demonstrations

PURPOSE:

	Populates the database with realistic announcements so dashboards and
	API clients have something to render before the first real ingestion
	pass. Five records arrive fully analyzed (covering both impact types
	with positive and negative values); two arrive unanalyzed so the retry
	endpoint has visible work to do.

HOW LOADING WORKS:
 1. Build records from the fixed corpus below
 2. Insert through the same store path real ingestion uses
 3. Fingerprint conflicts are absorbed as duplicate skips

Loading is idempotent: a second POST reports every record as skipped.
The database is never cleared.

USAGE VIA API:

	POST /api/admin/sample-data

IMPACT SIGN CONVENTION:

	Positive impact values mean the consumer is better off (a tax cut, a
	new subsidy), negative values mean a new cost. The GST increase on
	food items therefore carries -5 even though the rate moved up by 5.

NOTE:

	Intended for development/demo environments. The records are fictional.

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers
  - ingest/pipeline.go: The real ingestion path
*/
package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/budgetlens/policy-engine/policy"
)

// =============================================================================
// SAMPLE CORPUS
// =============================================================================

type sampleEntry struct {
	candidate  policy.Candidate
	enrichment *policy.Enrichment
}

var sampleCorpus = []sampleEntry{
	{
		candidate: policy.Candidate{
			Title:         "Government Announces 5% Reduction in GST on Electric Vehicles",
			Summary:       "The Ministry of Finance has announced a significant reduction in GST rates for electric vehicles from 12% to 7%, effective from January 1, 2026. This move aims to promote clean energy and make EVs more affordable for the common people.",
			Link:          "https://pib.gov.in/sample/ev-gst-reduction",
			PublishedDate: "2025-12-26",
			Source:        "PIB",
		},
		enrichment: &policy.Enrichment{
			Category:      policy.CategoryTransportation,
			ImpactType:    policy.ImpactPercentage,
			ImpactValue:   dec(5),
			OldValue:      ndec(12),
			NewValue:      ndec(7),
			AffectedItems: []string{"electric vehicles", "EVs", "electric cars"},
			Description:   "GST on electric vehicles reduced by 5 percentage points to make them more affordable and promote clean energy adoption.",
		},
	},
	{
		candidate: policy.Candidate{
			Title:         "₹10,000 Subsidy Announced for Solar Panel Installation",
			Summary:       "The government has introduced a new subsidy scheme providing ₹10,000 per household for installing solar panels. The scheme aims to promote renewable energy and reduce electricity costs for homeowners.",
			Link:          "https://pib.gov.in/sample/solar-subsidy",
			PublishedDate: "2025-12-25",
			Source:        "PIB",
		},
		enrichment: &policy.Enrichment{
			Category:      policy.CategoryUtilities,
			ImpactType:    policy.ImpactFixedAmount,
			ImpactValue:   dec(10000),
			OldValue:      ndec(0),
			NewValue:      ndec(10000),
			AffectedItems: []string{"solar panels", "renewable energy", "households"},
			Description:   "New subsidy of ₹10,000 per household for solar panel installation to promote renewable energy.",
		},
	},
	{
		candidate: policy.Candidate{
			Title:         "Education Loan Interest Rate Reduced to 4%",
			Summary:       "In a major relief to students, the government has reduced education loan interest rates from 7% to 4% for all government-backed education loans. This will benefit millions of students across the country.",
			Link:          "https://pib.gov.in/sample/education-loan",
			PublishedDate: "2025-12-24",
			Source:        "PIB",
		},
		enrichment: &policy.Enrichment{
			Category:      policy.CategoryEducation,
			ImpactType:    policy.ImpactPercentage,
			ImpactValue:   dec(3),
			OldValue:      ndec(7),
			NewValue:      ndec(4),
			AffectedItems: []string{"education loans", "student loans", "higher education"},
			Description:   "Education loan interest rates cut from 7% to 4%, providing significant savings for students.",
		},
	},
	{
		candidate: policy.Candidate{
			Title:         "GST on Essential Food Items Increased from 0% to 5%",
			Summary:       "The government has imposed a 5% GST on certain essential food items including rice, wheat flour, and pulses. This decision has been taken to increase revenue collection.",
			Link:          "https://pib.gov.in/sample/food-gst",
			PublishedDate: "2025-12-23",
			Source:        "PIB",
		},
		enrichment: &policy.Enrichment{
			Category:      policy.CategoryFood,
			ImpactType:    policy.ImpactPercentage,
			ImpactValue:   dec(-5),
			OldValue:      ndec(0),
			NewValue:      ndec(5),
			AffectedItems: []string{"rice", "wheat flour", "pulses", "essential food items"},
			Description:   "New 5% GST imposed on essential food items including rice, wheat flour, and pulses.",
		},
	},
	{
		candidate: policy.Candidate{
			Title:         "New Healthcare Scheme: Free Health Insurance up to ₹5 Lakhs",
			Summary:       "The government has launched a new healthcare scheme providing free health insurance coverage up to ₹5 lakhs for families with annual income below ₹3 lakhs.",
			Link:          "https://pib.gov.in/sample/health-insurance",
			PublishedDate: "2025-12-22",
			Source:        "PIB",
		},
		enrichment: &policy.Enrichment{
			Category:      policy.CategoryHealthcare,
			ImpactType:    policy.ImpactFixedAmount,
			ImpactValue:   dec(500000),
			OldValue:      ndec(0),
			NewValue:      ndec(500000),
			AffectedItems: []string{"health insurance", "medical coverage", "low-income families"},
			Description:   "Free health insurance coverage of up to ₹5 lakhs for low-income families.",
		},
	},
	{
		candidate: policy.Candidate{
			Title:         "Railway Passenger Fare Revision Proposed for Premium Trains",
			Summary:       "The Railway Board has circulated a proposal to revise passenger fares on premium trains. Details of the revised fare structure are yet to be finalized.",
			Link:          "https://pib.gov.in/sample/rail-fares",
			PublishedDate: "2025-12-21",
			Source:        "PIB",
		},
	},
	{
		candidate: policy.Candidate{
			Title:         "Committee Formed to Review Urban Housing Subsidy Allocation",
			Summary:       "A committee of officials has been constituted to review the allocation mechanism for urban housing subsidies and submit recommendations within three months.",
			Link:          "https://pib.gov.in/sample/housing-review",
			PublishedDate: "2025-12-20",
			Source:        "PIB",
		},
	},
}

// =============================================================================
// LOADER
// =============================================================================

// LoadSampleData inserts the demo corpus through the regular store path.
// Fingerprints that already exist are absorbed as duplicate skips, so the
// endpoint can be called repeatedly.
// POST /api/admin/sample-data
func (h *Handler) LoadSampleData(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.Store.InsertRecords(r.Context(), buildSampleRecords(time.Now()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load sample data", err)
		return
	}

	saved, skipped := 0, 0
	for _, oc := range outcomes {
		if oc.Inserted {
			saved++
		} else {
			skipped++
		}
	}
	h.Logger.Info("sample data loaded", "saved", saved, "skipped", skipped)

	writeJSON(w, http.StatusOK, SampleDataResponse{
		Message:               "Sample data loaded",
		ItemsSaved:            saved,
		ItemsSkippedDuplicate: skipped,
		Timestamp:             time.Now().UTC().Format(time.RFC3339),
	})
}

// buildSampleRecords assembles the corpus with staggered creation times so
// newest-first listings show it in the order defined above.
func buildSampleRecords(now time.Time) []policy.Record {
	records := make([]policy.Record, 0, len(sampleCorpus))
	for i, entry := range sampleCorpus {
		createdAt := now.Add(-time.Duration(i) * time.Minute)
		rec := policy.NewRecord(entry.candidate, entry.candidate.Fingerprint(), createdAt)
		if entry.enrichment != nil {
			rec.Enrichment = entry.enrichment
			rec.Analyzed = true
		}
		records = append(records, rec)
	}
	return records
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func ndec(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
}
