// Package session owns the per-session mutable state of the dashboard:
// credentials, the active record set, fetch warnings, and the playback
// controller. It replaces the ambient globals of a typical notebook-style
// dashboard with one explicit object whose only writer is FetchData.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/raido/internal/acled"
	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/normalize"
	"github.com/starford/raido/internal/playback"
)

// Notifier receives fetch lifecycle events for fan-out to clients.
// The SSE broker implements it; a nil Notifier disables notifications.
type Notifier interface {
	PublishSessionEvent(kind string, data interface{})
}

// FetchResult summarizes one completed fetch operation.
type FetchResult struct {
	Records  int                    `json:"records"`
	Dropped  int                    `json:"dropped"`
	Warnings []models.SourceWarning `json:"warnings,omitempty"`
	NoData   bool                   `json:"no_data"`
}

// Service is the session context. FetchData is the single writer of the
// record set; every reader takes the read lock.
type Service struct {
	tokens   *acled.TokenCache
	client   *acled.Client
	playback *playback.Controller
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	credMu sync.RWMutex
	creds  models.Credentials

	// fetchMu serializes whole fetch operations so the record-set swap and
	// the playback date reset always come from the same fetch.
	fetchMu sync.Mutex

	mu          sync.RWMutex
	records     models.RecordSet
	warnings    []models.SourceWarning
	stats       normalize.Stats
	dataFetched bool
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier attaches a session-event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a session over the given token cache, provider client, and
// playback controller.
func New(tokens *acled.TokenCache, client *acled.Client, pb *playback.Controller, creds models.Credentials, opts ...Option) *Service {
	s := &Service{
		tokens:   tokens,
		client:   client,
		playback: pb,
		creds:    creds,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchData runs one full acquisition: validate, authenticate, fetch per
// source, normalize, swap the working set, and reset playback to Paused at
// the earliest date. The date range is validated before any network call.
func (s *Service) FetchData(ctx context.Context, req models.FetchRequest) (FetchResult, error) {
	if req.DateTo.Before(req.DateFrom) {
		return FetchResult{}, apperr.ErrInvalidDateRange
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	start := time.Now()

	token, err := s.tokens.Get(ctx, s.Credentials())
	if err != nil {
		return FetchResult{}, err
	}

	raw, warnings := s.client.Fetch(ctx, token.Value, req.Sources, req.DateFrom, req.DateTo)
	records, stats := normalize.Records(raw)

	s.mu.Lock()
	s.records = records
	s.warnings = warnings
	s.stats = stats
	s.dataFetched = len(records) > 0
	s.mu.Unlock()

	// Playback always restarts at the earliest date of the new set.
	s.playback.SetDates(records.UniqueDates())

	failed := make(map[string]bool, len(warnings))
	for _, w := range warnings {
		failed[w.Source] = true
		if s.notifier != nil {
			s.notifier.PublishSessionEvent("source.warning", w)
		}
	}

	result := FetchResult{
		Records:  len(records),
		Dropped:  stats.DroppedGeo,
		Warnings: warnings,
		NoData:   len(records) == 0,
	}
	if s.notifier != nil {
		if result.NoData {
			s.notifier.PublishSessionEvent("data.empty", result)
		} else {
			s.notifier.PublishSessionEvent("data.fetched", result)
		}
	}

	s.metrics.ObserveFetch(req.Sources, failed, stats.Input, stats.DroppedGeo, len(records), time.Since(start))
	s.logger.Info("fetch completed",
		slog.Int("sources", len(req.Sources)),
		slog.Int("records", len(records)),
		slog.Int("dropped", stats.DroppedGeo),
		slog.Int("warnings", len(warnings)))

	return result, nil
}

// Records returns the active working set. Callers must treat it as
// read-only; it is replaced wholesale by the next fetch, never mutated.
func (s *Service) Records() models.RecordSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// RecordsOn returns the records of one event date (the temporal-mode slice).
func (s *Service) RecordsOn(day time.Time) models.RecordSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.On(day)
}

// Summary computes headline metrics over the active set.
func (s *Service) Summary() models.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Summarize()
}

// Warnings returns the per-source warnings of the last fetch.
func (s *Service) Warnings() []models.SourceWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warnings
}

// Stats returns the normalization stats of the last fetch.
func (s *Service) Stats() normalize.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// DataFetched reports whether the last fetch produced a non-empty set.
func (s *Service) DataFetched() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataFetched
}

// Playback exposes the playback controller to the API layer.
func (s *Service) Playback() *playback.Controller {
	return s.playback
}

// Credentials returns the current provider credentials.
func (s *Service) Credentials() models.Credentials {
	s.credMu.RLock()
	defer s.credMu.RUnlock()
	return s.creds
}

// SetCredentials replaces the provider credentials and invalidates every
// cached token, forcing the next fetch to re-authenticate.
func (s *Service) SetCredentials(creds models.Credentials) {
	s.credMu.Lock()
	s.creds = creds
	s.credMu.Unlock()
	s.tokens.Invalidate()
	s.logger.Info("credentials replaced, token cache invalidated")
}
