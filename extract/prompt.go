package extract

import (
	"fmt"
	"strings"

	"github.com/budgetlens/policy-engine/policy"
)

// promptTemplate is the fixed extraction contract sent to the model. The
// reply must be a single JSON object; parse.go rejects anything else.
const promptTemplate = `Analyze this government policy announcement and extract its financial impact on an ordinary household.

Announcement:
%s

Return ONLY a JSON object with these exact fields, no prose and no markdown:
{
  "category": one of [%s],
  "impact_type": one of ["percentage", "fixed_amount", "multiplier", "binary"],
  "impact_value": number (positive = consumer saves money or gains a benefit, negative = consumer pays more),
  "old_value": number or null (the rate/price before the change, if stated),
  "new_value": number or null (the rate/price after the change, if stated),
  "affected_items": array of short strings naming the affected goods or services,
  "description": one plain-language sentence describing the impact
}

Rules:
- "percentage" for rate changes (tax rates, interest rates, fare revisions in percent).
- "fixed_amount" for absolute currency changes (a subsidy of 200, a fee of 500).
- "multiplier" when a price is scaled by a factor.
- "binary" when something is introduced or withdrawn outright; use impact_value 1 or -1 and null old/new values.
- If the announcement has no measurable household impact, use category "general", impact_type "binary", impact_value 0.`

// buildPrompt assembles the extraction prompt for one announcement.
func buildPrompt(title, summary string) string {
	text := strings.TrimSpace(title)
	if s := strings.TrimSpace(summary); s != "" {
		text += ". " + s
	}

	cats := policy.Categories()
	quoted := make([]string, len(cats))
	for i, c := range cats {
		quoted[i] = `"` + string(c) + `"`
	}
	return fmt.Sprintf(promptTemplate, text, strings.Join(quoted, ", "))
}
