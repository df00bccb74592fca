/*
gemini.go - Production Extractor backed by Google Gemini

PURPOSE:
  Sends the fixed extraction prompt to Gemini and turns the reply into a
  policy.Enrichment. All upstream failure shapes are classified here, at
  the boundary, into the closed taxonomy (errors.go) - nothing above this
  package ever inspects raw SDK errors.

CALL DISCIPLINE:
  - Every call is bounded by a per-request timeout; an expired call is a
    transient failure, never a hang.
  - Calls are paced through a rate limiter so batch loops do not hammer
    the free-tier quota.
  - Quota failures retry the same item up to quotaRetries times with
    doubling backoff (2s, 4s by default), sleeping interruptibly so
    shutdown is never delayed by a backoff wait.

EXAMPLE:
  g, err := extract.NewGemini(ctx, extract.Options{APIKey: key}, logger)
  defer g.Close()
  enrichment, err := g.Extract(ctx, title, summary)
  if extract.IsBatchAbort(err) { ... stop the batch ... }
*/
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/budgetlens/policy-engine/policy"
)

// quotaRetries is how many times a quota-failed call is retried before the
// failure is surfaced (and the batch aborted by the caller).
const quotaRetries = 2

// callPace spaces successive model calls; free-tier quotas are measured in
// requests per minute.
const callPace = 500 * time.Millisecond

// Options configures the Gemini extractor.
type Options struct {
	APIKey string
	Model  string // defaults to "gemini-1.5-flash"

	// Timeout bounds each individual model call. Default 30s.
	Timeout time.Duration

	// BackoffBase is the first quota-retry delay; it doubles per retry.
	// Default 2s.
	BackoffBase time.Duration
}

// Gemini is the production Extractor.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	limiter *rate.Limiter

	timeout     time.Duration
	backoffBase time.Duration
	logger      *slog.Logger
}

var _ Extractor = (*Gemini)(nil)

// NewGemini builds the extractor and its underlying client. The caller owns
// the returned value and must Close it.
func NewGemini(ctx context.Context, opts Options, logger *slog.Logger) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, errors.New("extract: missing API key")
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("extract: create client: %w", err)
	}

	model := client.GenerativeModel(opts.Model)
	model.SetTemperature(0.2)
	model.SetMaxOutputTokens(1024)

	return &Gemini{
		client:      client,
		model:       model,
		limiter:     rate.NewLimiter(rate.Every(callPace), 1),
		timeout:     opts.Timeout,
		backoffBase: opts.BackoffBase,
		logger:      logger,
	}, nil
}

// Close releases the underlying API client.
func (g *Gemini) Close() error { return g.client.Close() }

// Extract implements Extractor.
func (g *Gemini) Extract(ctx context.Context, title, summary string) (*policy.Enrichment, error) {
	prompt := buildPrompt(title, summary)

	for attempt := 0; ; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindTransient, Err: err}
		}

		raw, err := g.generate(ctx, prompt)
		if err == nil {
			return ParseEnrichment(raw)
		}
		if Kind(err) != KindQuota || attempt >= quotaRetries {
			return nil, err
		}

		delay := g.backoffBase << attempt // 2s, then 4s
		g.logger.Warn("model quota exhausted, backing off",
			"attempt", attempt+1,
			"delay", delay.String())
		if serr := sleepCtx(ctx, delay); serr != nil {
			return nil, &Error{Kind: KindTransient, Err: serr}
		}
	}
}

// generate performs one bounded model call and returns the raw reply text.
func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		return "", &Error{Kind: Classify(err), Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		// Empty candidate lists usually mean the reply was safety-blocked.
		return "", &Error{Kind: KindTransient, Err: errors.New("model returned no content")}
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", &Error{Kind: KindMalformed, Err: fmt.Errorf("unexpected reply part %T", resp.Candidates[0].Content.Parts[0])}
	}
	return string(text), nil
}

// Classify maps an upstream SDK error onto the failure taxonomy. The SDK
// surfaces quota failures in several shapes depending on transport (typed
// REST error, gRPC status text), so the typed check is backed by marker
// matching on the message. This is the only place in the codebase that
// inspects upstream error text.
func Classify(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests:
			return KindQuota
		case http.StatusNotFound:
			return KindModelUnavailable
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "resource exhausted"):
		return KindQuota
	case strings.Contains(msg, "404"),
		strings.Contains(msg, "not found"):
		return KindModelUnavailable
	}
	return KindTransient
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
