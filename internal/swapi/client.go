// Package swapi is the HTTP client for the remote Star Wars catalog. Its
// [Client.FetchAll] walks a paginated collection to the end, one page at a
// time, and returns every raw record in page order. It also provides a
// bounded exponential-backoff [Retry] helper for callers that want one; the
// client itself never retries.
package swapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/njoerd114/holocron/internal/model"
)

const (
	// DefaultBaseURL is the public catalog the original data comes from.
	DefaultBaseURL = "https://swapi.info/api"

	// DefaultTimeout bounds every single HTTP request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxPages caps how many pages one FetchAll may read.
	DefaultMaxPages = 500

	// maxPageSize limits how much of one response body is read.
	maxPageSize = 16 << 20

	// maxErrorBodySize limits how much of an error body is kept in a StatusError.
	maxErrorBodySize = 64 << 10
)

// Config configures a Client. Zero values select the defaults.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	MaxPages int

	// RequestsPerSecond throttles page requests. Zero disables throttling.
	RequestsPerSecond float64

	// HTTPClient replaces the default client. Its Timeout is left as is.
	HTTPClient *http.Client
}

// Client fetches collections from the remote catalog.
type Client struct {
	baseURL  string
	maxPages int
	hc       *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*page]
	log      *slog.Logger
}

// page is one decoded collection response.
type page struct {
	Results []model.RemoteRecord `json:"results"`
	Next    *string              `json:"next"`
}

// NewClient creates a Client for the catalog at cfg.BaseURL.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.ParseRequestURI(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("catalog base URL %q must be a valid http or https URL", base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL:  strings.TrimRight(base, "/"),
		maxPages: maxPages,
		hc:       hc,
		limiter:  limiter,
		breaker:  newBreaker(u.Host, logger),
		log:      logger,
	}, nil
}

// CollectionURL returns the first-page URL of a resource collection.
func (c *Client) CollectionURL(resource string) string {
	return c.baseURL + "/" + url.PathEscape(resource) + "/"
}

// FetchAll returns every record of the resource collection, following the
// "next" link of each page until it is null. Pages are requested strictly one
// after another. Records keep their page order and are not deduplicated.
//
// Any transport error, non-2xx status, undecodable body, or exceeding the
// page ceiling aborts the walk; no records are returned with an error.
func (c *Client) FetchAll(ctx context.Context, resource string) ([]model.RemoteRecord, error) {
	var records []model.RemoteRecord
	next := c.CollectionURL(resource)

	for n := 1; next != ""; n++ {
		if n > c.maxPages {
			return nil, fmt.Errorf("fetching %s: %w (%d pages)", resource, ErrPageLimit, c.maxPages)
		}

		p, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d of %s: %w", n, resource, err)
		}
		records = append(records, p.Results...)
		c.log.Debug("catalog page fetched", "resource", resource, "page", n, "records", len(p.Results))

		if p.Next == nil || *p.Next == "" {
			break
		}
		next, err = resolveNext(next, *p.Next)
		if err != nil {
			return nil, fmt.Errorf("following page %d of %s: %w", n, resource, err)
		}
	}
	return records, nil
}

// Ping checks that the catalog root answers with a 2xx status.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("execute ping request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return nil
}

// fetchPage GETs and decodes one page, waiting for the rate limiter first.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (*page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return c.breaker.Execute(func() (*page, error) {
		return c.get(ctx, pageURL)
	})
}

func (c *Client) get(ctx context.Context, pageURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create page request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute page request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Body:       readBodyForError(resp.Body),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}
	return decodePage(body)
}

// decodePage accepts the paginated {"results": [...], "next": ...} envelope
// and, for catalogs that serve a whole collection at once, a bare JSON array.
func decodePage(body []byte) (*page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []model.RemoteRecord
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		return &page{Results: results}, nil
	}

	var p page
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &p, nil
}

// resolveNext turns a possibly relative "next" link into an absolute URL.
func resolveNext(current, next string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse page URL %q: %w", current, err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next link %q: %w", next, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// readBodyForError returns at most maxErrorBodySize bytes of r as text.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return strings.TrimSpace(string(body))
}
