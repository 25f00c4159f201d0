package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/metalagman/ttdr/internal/model"
	"golang.org/x/time/rate"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey   string
	depth    string
	client   *http.Client
	limiter  *rate.Limiter
	retry    retryPolicy
	endpoint string
}

// NewTavily constructs a Tavily searcher. Depth is basic or advanced.
func NewTavily(apiKey, depth string, client *http.Client, limiter *rate.Limiter) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if limiter == nil {
		limiter = newLimiter(0)
	}
	return &Tavily{apiKey: apiKey, depth: depth, client: client, limiter: limiter, retry: defaultRetry, endpoint: tavilyEndpoint}
}

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search posts the query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]model.Snippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	maxResults = capResults(maxResults)

	payload, err := json.Marshal(tavilyRequest{Query: query, SearchDepth: t.depth, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("encode tavily request: %w", err)
	}

	resp, err := doWithBackoff(ctx, t.client, t.limiter, t.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	out := make([]model.Snippet, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		text := strings.TrimSpace(r.Content)
		if text == "" {
			text = strings.TrimSpace(r.Title)
		}
		out = append(out, model.Snippet{Text: text, Source: r.URL})
		if len(out) >= maxResults {
			break
		}
	}
	return out, nil
}
