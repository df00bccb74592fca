package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/budgetlens/policy-engine/policy"
)

// RSS pulls a press-release feed (the PIB feed in production).
type RSS struct {
	name   string
	url    string
	client *http.Client
	filter *KeywordFilter
}

var _ Source = (*RSS)(nil)

// NewRSS builds an RSS adapter. name becomes the source tag on every
// candidate it emits.
func NewRSS(name, url string, timeout time.Duration, filter *KeywordFilter) *RSS {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if filter == nil {
		filter = NewKeywordFilter()
	}
	return &RSS{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
		filter: filter,
	}
}

func (r *RSS) Name() string { return r.name }

func (r *RSS) FetchCandidates(ctx context.Context) ([]policy.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var out []policy.Candidate
	for _, item := range feed.Items {
		if item == nil || !r.filter.Match(item.Title, item.Description) {
			continue
		}
		published := item.Published
		if published == "" && item.PublishedParsed != nil {
			published = item.PublishedParsed.Format(time.RFC3339)
		}
		if c, ok := newCandidate(item.Title, item.Description, item.Link, published, r.name); ok {
			out = append(out, c)
		}
	}
	return out, nil
}
