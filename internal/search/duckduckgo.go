package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/metalagman/ttdr/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the DuckDuckGo HTML interface. No API key is needed.
type DuckDuckGo struct {
	client   *http.Client
	limiter  *rate.Limiter
	retry    retryPolicy
	endpoint string
}

// NewDuckDuckGo constructs a DuckDuckGo searcher.
func NewDuckDuckGo(client *http.Client, limiter *rate.Limiter) *DuckDuckGo {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if limiter == nil {
		limiter = newLimiter(1)
	}
	return &DuckDuckGo{client: client, limiter: limiter, retry: defaultRetry, endpoint: duckDuckGoEndpoint}
}

// Search fetches one result page and parses up to maxResults snippets.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]model.Snippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	searchURL := d.endpoint + "?q=" + url.QueryEscape(query)
	resp, err := doWithBackoff(ctx, d.client, d.limiter, d.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read duckduckgo response: %w", err)
	}
	return parseDuckDuckGo(string(body), capResults(maxResults))
}

type ddgResult struct {
	title   string
	link    string
	snippet string
}

// parseDuckDuckGo extracts results from the class="result" blocks of the
// HTML interface.
func parseDuckDuckGo(page string, maxResults int) ([]model.Snippet, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}

	var out []model.Snippet
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") && !hasClass(n, "result--ad") {
			r := extractResult(n)
			if r.link != "" && r.title != "" {
				text := r.snippet
				if text == "" {
					text = r.title
				}
				out = append(out, model.Snippet{Text: text, Source: r.link})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func extractResult(n *html.Node) ddgResult {
	var r ddgResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				r.link = unwrapRedirect(attr(n, "href"))
				r.title = textContent(n)
			case hasClass(n, "result__snippet"):
				r.snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r
}

// unwrapRedirect resolves //duckduckgo.com/l/?uddg=<target> links.
func unwrapRedirect(link string) string {
	u, err := url.Parse(link)
	if err != nil || !strings.HasSuffix(u.Host, "duckduckgo.com") || u.Path != "/l/" {
		return link
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return link
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
