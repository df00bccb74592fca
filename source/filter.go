package source

import "strings"

// KeywordFilter keeps announcements that plausibly affect household money.
// Government feeds mix budget notifications with ribbon-cuttings and
// condolence messages; only the former are worth an extraction call.
type KeywordFilter struct {
	keywords []string
}

// DefaultKeywords cover the recurring vocabulary of money-affecting
// announcements.
func DefaultKeywords() []string {
	return []string{
		"tax", "gst", "duty", "tariff", "cess", "subsidy", "price",
		"fare", "toll", "interest rate", "repo rate", "scheme",
		"pension", "lpg", "petrol", "diesel", "electricity", "fee",
		"loan", "insurance", "dearness allowance", "msp", "excise",
		"budget", "rebate", "surcharge",
	}
}

// NewKeywordFilter builds a filter over the given keywords, or over
// DefaultKeywords when none are given. Matching is case-insensitive.
func NewKeywordFilter(keywords ...string) *KeywordFilter {
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &KeywordFilter{keywords: lowered}
}

// Match reports whether the title or summary mentions any keyword.
func (f *KeywordFilter) Match(title, summary string) bool {
	text := strings.ToLower(title + " " + summary)
	for _, kw := range f.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
