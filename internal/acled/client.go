package acled

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
)

// ResponseCache stores successful raw response bodies keyed by query digest.
// A nil cache disables memoization.
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, payload []byte) error
}

// Client issues bulk read requests against the provider, one per source,
// and merges the results. Per-source failures surface as warnings and never
// abort the remaining sources.
type Client struct {
	readURL  string
	limit    int
	parallel int
	httpc    *http.Client
	cache    ResponseCache
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLimit sets the per-source result-count ceiling (0 = unlimited).
func WithLimit(limit int) ClientOption {
	return func(c *Client) { c.limit = limit }
}

// WithParallel sets the maximum number of in-flight source fetches.
// Values below two keep the original sequential behavior.
func WithParallel(n int) ClientOption {
	return func(c *Client) { c.parallel = n }
}

// WithCache attaches a response cache.
func WithCache(cache ResponseCache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithHTTPClient overrides the HTTP client used for read requests.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

// WithLogger sets the logger for per-source warnings.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a provider read client for the given endpoint.
func NewClient(readURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		readURL: readURL,
		limit:   5000,
		httpc:   &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves raw records for every source over the inclusive date range.
// Sources are queried in the supplied order (duplicates included) and results
// are merged source-by-source, each in provider response order. A failed
// source contributes one warning; if everything fails or returns nothing the
// result is simply empty.
func (c *Client) Fetch(ctx context.Context, token string, sources []string, from, to time.Time) ([]RawRecord, []models.SourceWarning) {
	if c.parallel > 1 {
		return c.fetchParallel(ctx, token, sources, from, to)
	}

	var merged []RawRecord
	var warnings []models.SourceWarning
	for _, source := range sources {
		records, err := c.fetchSource(ctx, token, source, from, to)
		if err != nil {
			warnings = append(warnings, c.warn(source, err))
			continue
		}
		merged = append(merged, records...)
	}
	return merged, warnings
}

// fetchParallel runs bounded concurrent source fetches and merges the results
// only after every call has completed, in source-iteration order, so the
// observable ordering matches the sequential path.
func (c *Client) fetchParallel(ctx context.Context, token string, sources []string, from, to time.Time) ([]RawRecord, []models.SourceWarning) {
	results := make([][]RawRecord, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for i, source := range sources {
		g.Go(func() error {
			results[i], errs[i] = c.fetchSource(gctx, token, source, from, to)
			return nil
		})
	}
	_ = g.Wait()

	var merged []RawRecord
	var warnings []models.SourceWarning
	for i, source := range sources {
		if errs[i] != nil {
			warnings = append(warnings, c.warn(source, errs[i]))
			continue
		}
		merged = append(merged, results[i]...)
	}
	return merged, warnings
}

func (c *Client) warn(source string, err error) models.SourceWarning {
	c.logger.Warn("source fetch failed",
		slog.String("source", source),
		slog.String("error", err.Error()))
	return models.SourceWarning{Source: source, Reason: err.Error()}
}

// fetchSource issues one read request. The cache holds only bodies that
// already passed envelope validation, so a hit skips the network entirely.
func (c *Client) fetchSource(ctx context.Context, token, source string, from, to time.Time) ([]RawRecord, error) {
	key := checksum.Key(source,
		from.Format(models.DateLayout),
		to.Format(models.DateLayout),
		strconv.Itoa(c.limit))

	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			var env readEnvelope
			if err := json.Unmarshal(body, &env); err == nil {
				return env.Data, nil
			}
		}
	}

	body, err := c.readSource(ctx, token, source, from, to)
	if err != nil {
		return nil, &apperr.SourceError{Source: source, Cause: err}
	}

	var env readEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &apperr.SourceError{Source: source, Cause: fmt.Errorf("decode response: %w", err)}
	}
	if env.Status != http.StatusOK {
		return nil, &apperr.SourceError{Source: source, Cause: fmt.Errorf("provider status %d: %s", env.Status, env.Error)}
	}

	if c.cache != nil {
		if err := c.cache.Put(key, body); err != nil {
			c.logger.Warn("response cache write failed", slog.String("error", err.Error()))
		}
	}
	return env.Data, nil
}

func (c *Client) readSource(ctx context.Context, token, source string, from, to time.Time) ([]byte, error) {
	u, err := url.Parse(c.readURL)
	if err != nil {
		return nil, fmt.Errorf("parse read url: %w", err)
	}
	q := u.Query()
	q.Set("country", source)
	q.Set("event_date", from.Format(models.DateLayout)+"|"+to.Format(models.DateLayout))
	q.Set("event_date_where", "BETWEEN")
	q.Set("limit", strconv.Itoa(c.limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
