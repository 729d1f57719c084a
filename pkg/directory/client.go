// Package directory provides access to a business-listing directory API.
// This is the only place the provider's wire shapes appear; everything
// downstream treats listings as opaque string-keyed mappings.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/contacts-cli/internal/resilience"
)

const defaultBaseURL = "https://api.bizdirectory.example.com/v1"

// Client performs directory API operations.
type Client interface {
	// Search returns one page of listing stubs matching query. An empty
	// NextPageToken means no further pages.
	Search(ctx context.Context, query string, pageSize int, pageToken string) (*SearchPage, error)

	// Details returns the enriched listing for an id.
	Details(ctx context.Context, id string) (map[string]any, error)
}

// SearchPage is one page of search results.
type SearchPage struct {
	Listings      []map[string]any `json:"listings"`
	NextPageToken string           `json:"next_page_token"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second rate limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a directory API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

type searchRequest struct {
	Query     string `json:"query"`
	PageSize  int    `json:"page_size,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

func (c *httpClient) Search(ctx context.Context, query string, pageSize int, pageToken string) (*SearchPage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "directory: rate limit")
	}

	body, err := json.Marshal(searchRequest{Query: query, PageSize: pageSize, PageToken: pageToken})
	if err != nil {
		return nil, eris.Wrap(err, "directory: marshal request")
	}

	respBody, err := c.do(ctx, http.MethodPost, "/listings:search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var page SearchPage
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, eris.Wrap(err, "directory: unmarshal search response")
	}
	return &page, nil
}

func (c *httpClient) Details(ctx context.Context, id string) (map[string]any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "directory: rate limit")
	}

	respBody, err := c.do(ctx, http.MethodGet, "/listings/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var listing map[string]any
	if err := json.Unmarshal(respBody, &listing); err != nil {
		return nil, eris.Wrap(err, "directory: unmarshal listing")
	}
	return listing, nil
}

// do sends one request, classifying retryable status codes as transient so
// the shared retry policy can act on them.
func (c *httpClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "directory: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "directory: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "directory: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("directory: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	return respBody, nil
}
