// Package mediawiki talks to the MediaWiki action API (api.php).
package mediawiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mfenderov/wikibot/internal/retry"
)

// Config holds MediaWiki client configuration.
type Config struct {
	BaseURL   string // wiki root, e.g. "https://redemptionps.com/wiki"
	UserAgent string
	Timeout   time.Duration
	Namespace int // namespace listed by ListTitles; 0 is the main namespace
	Retry     retry.Policy
	// RequestDelay paces listing requests after the first batch.
	RequestDelay time.Duration
}

// Client lists and locates pages of a single wiki.
type Client struct {
	config     Config
	base       *url.URL
	httpClient *http.Client
}

// New creates a new MediaWiki client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %q", config.BaseURL)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "wikibot/1.0"
	}

	return &Client{
		config:     config,
		base:       base,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// BaseURL returns the normalized wiki root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// APIURL returns the api.php endpoint with the given query parameters.
func (c *Client) APIURL(params url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api.php"
	u.RawQuery = params.Encode()
	return u.String()
}

// ParseURL returns the action=parse request for a page's rendered HTML.
func (c *Client) ParseURL(title string) string {
	return c.APIURL(url.Values{
		"action":             {"parse"},
		"format":             {"json"},
		"page":               {title},
		"prop":               {"text"},
		"redirects":          {"1"},
		"disableeditsection": {"1"},
		"disabletoc":         {"1"},
	})
}

// PageURL returns the human-facing URL of a page.
func (c *Client) PageURL(title string) string {
	return PageURL(c.base.String(), title)
}

// PageURL builds a page URL under base the way MediaWiki links pages:
// spaces become underscores, slashes of subpages stay readable.
func PageURL(base, title string) string {
	slug := url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	slug = strings.ReplaceAll(slug, "%2F", "/")
	return strings.TrimSuffix(base, "/") + "/" + slug
}

// listResponse is the action=query&list=allpages response.
type listResponse struct {
	Query struct {
		AllPages []struct {
			PageID int    `json:"pageid"`
			Title  string `json:"title"`
		} `json:"allpages"`
	} `json:"query"`
	Continue      map[string]json.RawMessage `json:"continue"`
	QueryContinue struct {
		AllPages struct {
			APContinue string `json:"apcontinue"`
		} `json:"allpages"`
	} `json:"query-continue"`
	Error *APIError `json:"error"`
}

// APIError is an error payload returned by api.php with a 200 status.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediawiki api error %s: %s", e.Code, e.Info)
}

// ListTitles enumerates all page titles of the configured namespace,
// following continuation tokens until the listing is exhausted.
// Every listing request is retried according to the client's policy.
func (c *Client) ListTitles(ctx context.Context) ([]string, error) {
	var titles []string
	next := url.Values{}

	for page := 1; ; page++ {
		if page > 1 {
			if err := retry.Sleep(ctx, c.config.RequestDelay); err != nil {
				return titles, fmt.Errorf("list pages (batch %d): %w", page, err)
			}
		}

		params := url.Values{
			"action":      {"query"},
			"format":      {"json"},
			"list":        {"allpages"},
			"aplimit":     {"500"},
			"apnamespace": {fmt.Sprint(c.config.Namespace)},
		}
		for k, v := range next {
			params[k] = v
		}

		var resp listResponse
		err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) error {
			resp = listResponse{}
			return c.getJSON(ctx, c.APIURL(params), &resp)
		})
		if err != nil {
			return titles, fmt.Errorf("list pages (batch %d): %w", page, err)
		}
		if resp.Error != nil {
			return titles, resp.Error
		}

		for _, p := range resp.Query.AllPages {
			titles = append(titles, p.Title)
		}
		slog.Debug("listed pages", "batch", page, "count", len(resp.Query.AllPages), "total", len(titles))

		next = continuation(resp)
		if len(next) == 0 {
			return titles, nil
		}
	}
}

// continuation extracts the parameters for the next listing request.
// Modern wikis return a "continue" object whose keys are all sent back;
// older ones use query-continue.
func continuation(resp listResponse) url.Values {
	next := url.Values{}
	if len(resp.Continue) > 0 {
		if _, ok := resp.Continue["apcontinue"]; !ok {
			return next
		}
		for k, raw := range resp.Continue {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				s = string(raw)
			}
			next.Set(k, s)
		}
		return next
	}
	if token := resp.QueryContinue.AllPages.APContinue; token != "" {
		next.Set("apcontinue", token)
	}
	return next
}

// getJSON performs a GET and decodes the JSON body. 4xx responses other than
// 429 are permanent errors.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
		if !Retryable(resp.StatusCode) {
			return retry.Permanent(err)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// Retryable reports whether an HTTP status is worth another attempt.
// Status 0 stands for a transport failure without a response.
func Retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

// parseResponse is the action=parse response. Text is an object with a "*"
// member in formatversion 1 and a plain string in formatversion 2.
type parseResponse struct {
	Parse struct {
		Title  string          `json:"title"`
		PageID int             `json:"pageid"`
		Text   json.RawMessage `json:"text"`
	} `json:"parse"`
	Error *APIError `json:"error"`
}

// ParsedPage is the rendered HTML of a page.
type ParsedPage struct {
	Title string
	HTML  string
}

// DecodeParse decodes an action=parse response body.
func DecodeParse(body []byte) (*ParsedPage, error) {
	var resp parseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if len(resp.Parse.Text) == 0 {
		return nil, fmt.Errorf("parse response has no text")
	}

	var html string
	if err := json.Unmarshal(resp.Parse.Text, &html); err != nil {
		var v1 struct {
			Star string `json:"*"`
		}
		if err := json.Unmarshal(resp.Parse.Text, &v1); err != nil {
			return nil, fmt.Errorf("unexpected parse text format: %w", err)
		}
		html = v1.Star
	}

	return &ParsedPage{Title: resp.Parse.Title, HTML: html}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
