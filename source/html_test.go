package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/policy-engine/source"
)

const listingHTML = `<!DOCTYPE html>
<html><body>
  <h2><a href="/news/gst-rate-cut">GST rate cut on packaged food announced</a></h2>
  <h2><a href="/news/museum">New museum wing opens in capital</a></h2>
  <h3><a href="https://news.example/toll-hike">Toll charges on expressways to rise from October</a></h3>
  <h3><a href="/news/fuel-price">Petrol price revised downward by 2 per litre</a></h3>
  <p><a href="/ignored">Subsidy link outside headline markup</a></p>
</body></html>`

func TestHTML_FetchCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	h := source.NewHTML("NewsDesk", srv.URL+"/economy", "", 10, 5*time.Second, nil)
	cands, err := h.FetchCandidates(context.Background())
	require.NoError(t, err)

	// Museum item fails the keyword filter; the <p> anchor is outside the
	// headline selector.
	require.Len(t, cands, 3)

	assert.Equal(t, "GST rate cut on packaged food announced", cands[0].Title)
	assert.Equal(t, srv.URL+"/news/gst-rate-cut", cands[0].Link, "relative href resolved against the page")
	assert.Equal(t, "https://news.example/toll-hike", cands[1].Link, "absolute href untouched")
	assert.Equal(t, srv.URL+"/news/fuel-price", cands[2].Link)
	assert.Equal(t, "NewsDesk", cands[0].Source)
	assert.Empty(t, cands[0].Summary)
}

func TestHTML_CapsHarvest(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 8; i++ {
		b.WriteString(`<h2><a href="/n/` + string(rune('a'+i)) + `">Fuel price update ` + string(rune('a'+i)) + `</a></h2>`)
	}
	b.WriteString("</body></html>")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	h := source.NewHTML("NewsDesk", srv.URL, "", 3, 5*time.Second, nil)
	cands, err := h.FetchCandidates(context.Background())
	require.NoError(t, err)
	assert.Len(t, cands, 3)
}

func TestHTML_TruncatesOverlongTitles(t *testing.T) {
	long := "Tax circular: " + strings.Repeat("clarification ", 30) // well past 200 runes
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h2><a href="/t">` + long + `</a></h2></body></html>`))
	}))
	defer srv.Close()

	h := source.NewHTML("NewsDesk", srv.URL, "", 10, 5*time.Second, nil)
	cands, err := h.FetchCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Len(t, []rune(cands[0].Title), 200)
}
