package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/budgetlens/policy-engine/policy"
)

// defaultHeadlineSelector matches headline anchors on the news listing
// pages this adapter targets.
const defaultHeadlineSelector = "h2 a, h3 a, .headline a"

// HTML scrapes a news listing page for announcement headlines. Listing
// pages carry no summaries, so candidates from this adapter lean on the
// fingerprint's title+link form and get their substance at extraction time.
type HTML struct {
	name     string
	pageURL  string
	selector string
	maxItems int
	client   *http.Client
	filter   *KeywordFilter
}

var _ Source = (*HTML)(nil)

// NewHTML builds a listing-page adapter. selector may be empty to use the
// default headline selector; maxItems caps the harvest per fetch
// (default 10).
func NewHTML(name, pageURL, selector string, maxItems int, timeout time.Duration, filter *KeywordFilter) *HTML {
	if selector == "" {
		selector = defaultHeadlineSelector
	}
	if maxItems <= 0 {
		maxItems = 10
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if filter == nil {
		filter = NewKeywordFilter()
	}
	return &HTML{
		name:     name,
		pageURL:  pageURL,
		selector: selector,
		maxItems: maxItems,
		client:   &http.Client{Timeout: timeout},
		filter:   filter,
	}
}

func (h *HTML) Name() string { return h.name }

func (h *HTML) FetchCandidates(ctx context.Context) ([]policy.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	base, err := url.Parse(h.pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var out []policy.Candidate
	doc.Find(h.selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Text())
		if title == "" || !h.filter.Match(title, "") {
			return true
		}
		href, _ := sel.Attr("href")
		if c, ok := newCandidate(title, "", resolveLink(base, href), "", h.name); ok {
			out = append(out, c)
		}
		return len(out) < h.maxItems
	})
	return out, nil
}

// resolveLink absolutizes a scraped href against the listing page URL.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
