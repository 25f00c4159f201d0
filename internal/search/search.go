// Package search provides web search providers that return citable snippets.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/metalagman/ttdr/internal/config"
	"github.com/metalagman/ttdr/internal/model"
	"golang.org/x/time/rate"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxResults = 5
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Searcher returns up to maxResults snippets for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.Snippet, error)
}

// Disabled is a Searcher that never returns results.
type Disabled struct{}

// Search returns no snippets.
func (Disabled) Search(context.Context, string, int) ([]model.Snippet, error) {
	return nil, nil
}

// New constructs the provider selected by cfg.Provider.
func New(cfg config.SearchConfig) (Searcher, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout <= 0 {
		client.Timeout = defaultTimeout
	}
	limiter := newLimiter(cfg.RateLimit)

	switch cfg.Provider {
	case config.SearchDuckDuckGo:
		return NewDuckDuckGo(client, limiter), nil
	case config.SearchTavily:
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			env := cfg.APIKeyEnv
			if env == "" {
				env = "TAVILY_API_KEY"
			}
			key = strings.TrimSpace(os.Getenv(env))
		}
		if key == "" {
			return nil, fmt.Errorf("tavily: api key is required (set search.api_key or search.api_key_env)")
		}
		return NewTavily(key, cfg.Depth, client, limiter), nil
	case config.SearchNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}

// newLimiter returns a limiter allowing perSecond queries. Non-positive
// values disable limiting.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// retryPolicy bounds the attempts of a single search call.
type retryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

var defaultRetry = retryPolicy{
	MaxTries:        4,
	InitialInterval: time.Second,
	MaxInterval:     8 * time.Second,
	MaxElapsed:      30 * time.Second,
}

// statusError is a response status worth retrying.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d", e.code)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// doWithBackoff sends requests built by newReq, retrying 429 and 5xx
// responses and transport errors within policy. Other responses are returned
// to the caller as is.
func doWithBackoff(ctx context.Context, client *http.Client, limiter *rate.Limiter, policy retryPolicy, newReq func() (*http.Request, error)) (*http.Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval

	op := func() (*http.Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := newReq()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if retryableStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			return nil, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	}

	tries := policy.MaxTries
	if tries == 0 {
		tries = 1
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(policy.MaxElapsed),
	)
}

func capResults(n int) int {
	if n <= 0 {
		return defaultMaxResults
	}
	return n
}
