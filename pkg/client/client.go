// Package client implements the rate-limited fetch orchestrator: it
// turns an article identifier into exactly one record, containing every
// failure behind a classified status instead of an error.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/habr-tools/habr-ingest/pkg/cache"
	"github.com/habr-tools/habr-ingest/pkg/logging"
	"github.com/habr-tools/habr-ingest/pkg/parse"
	"github.com/habr-tools/habr-ingest/pkg/record"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habr_fetch_requests_total",
		Help: "Total fetch attempts by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "habr_fetch_duration_seconds",
		Help:    "Duration of one fetch-with-retries, including pacing",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Parser maps a fetched document body to a record. It must populate
// at least the "status" field.
type Parser func(body string) record.Record

// Config holds the fetcher configuration.
type Config struct {
	// BaseURL is prefixed to the article identifier to form the fetch URL.
	BaseURL string

	// Headers are sent with every request.
	Headers map[string]string

	// Retry bounds attempts and paces them.
	Retry RetryPolicy

	// MaxConcurrentRequests caps simultaneous in-flight fetches.
	MaxConcurrentRequests int

	// Timeout applies per request attempt.
	Timeout time.Duration

	// ConnLimit caps total open connections.
	ConnLimit int

	// ConnLimitPerHost caps connections per host.
	ConnLimitPerHost int

	// IdleConnTimeout is how long idle connections are kept for reuse.
	IdleConnTimeout time.Duration

	// ForceClose disables connection reuse.
	ForceClose bool

	// Parser maps bodies to records. Defaults to parse.Article.
	Parser Parser

	// Cache is the optional page cache; nil disables it.
	Cache *cache.Manager
}

// Fetcher performs rate-limited fetches against a single long-lived
// connection pool.
type Fetcher struct {
	httpClient *http.Client
	sem        *semaphore.Weighted
	cache      *cache.Manager
	parser     Parser
	cfg        Config
	logger     zerolog.Logger
}

// New creates a fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.MaxConcurrentRequests <= 0 {
		return nil, fmt.Errorf("max_concurrent_requests must be > 0 (got %d)", cfg.MaxConcurrentRequests)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		return nil, fmt.Errorf("retry attempts must be > 0 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Parser == nil {
		cfg.Parser = parse.Article
	}

	transport := &http.Transport{
		MaxConnsPerHost:   cfg.ConnLimitPerHost,
		MaxIdleConns:      cfg.ConnLimit,
		IdleConnTimeout:   cfg.IdleConnTimeout,
		DisableKeepAlives: cfg.ForceClose,
	}

	return &Fetcher{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		cache:  cfg.Cache,
		parser: cfg.Parser,
		cfg:    cfg,
		logger: logging.NewLogger("fetcher"),
	}, nil
}

// FetchRecord fetches and parses one article. It blocks until a
// concurrency slot is free, applies one pacing delay, then runs the
// retry loop. Every failure is folded into the returned record; this
// boundary never surfaces an error for a single identifier.
func (f *Fetcher) FetchRecord(ctx context.Context, id int) (rec record.Record) {
	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().Int("id", id).Interface("panic", r).Msg("Unexpected panic during fetch")
			rec = record.Unexpected(id, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return record.Unexpected(id, fmt.Errorf("%w: %v", ErrContextCancelled, err))
	}
	defer f.sem.Release(1)

	if err := f.cfg.Retry.Wait(ctx); err != nil {
		return record.Unexpected(id, err)
	}

	body, err := f.fetchDocument(ctx, id)
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			f.logger.Error().Int("id", id).Str("error_class", string(fetchErr.Class)).Err(err).Msg("Failed to fetch post")
			return record.FetchFailure(id, err)
		}
		f.logger.Error().Int("id", id).Err(err).Msg("Unexpected error fetching post")
		return record.Unexpected(id, err)
	}

	rec = f.parser(body)
	rec["id"] = id
	return rec
}

// fetchDocument returns the document body for an identifier, retrying
// rate-limited, server-busy, and transport failures up to the attempt
// budget. Any other non-2xx status is terminal.
func (f *Fetcher) fetchDocument(ctx context.Context, id int) (string, error) {
	if body, err := f.cache.Get(ctx, id); err == nil {
		f.logger.Debug().Int("id", id).Msg("Serving post from cache")
		fetchRequestsTotal.WithLabelValues("cache_hit").Inc()
		return body, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		f.logger.Warn().Int("id", id).Err(err).Msg("Page cache error, fetching directly")
	}

	url := fmt.Sprintf("%s%d", f.cfg.BaseURL, id)
	f.logger.Info().Int("id", id).Msg("Fetching post")

	var lastClass ErrorClass
	var lastErr error

	for attempt := 1; attempt <= f.cfg.Retry.MaxAttempts; attempt++ {
		body, class, err := f.attempt(ctx, url)
		if err == nil {
			f.logger.Info().Int("id", id).Int("attempt", attempt).Msg("Successfully fetched post")
			fetchRequestsTotal.WithLabelValues("success").Inc()
			if cacheErr := f.cache.Set(ctx, id, body); cacheErr != nil {
				f.logger.Warn().Int("id", id).Err(cacheErr).Msg("Failed to cache post")
			}
			return body, nil
		}

		if errors.Is(err, ErrContextCancelled) {
			return "", err
		}

		if !shouldRetry(class) {
			fetchRequestsTotal.WithLabelValues("terminal").Inc()
			var fetchErr *FetchError
			if errors.As(err, &fetchErr) {
				fetchErr.ID = id
				return "", fetchErr
			}
			return "", err
		}

		lastClass = class
		lastErr = err
		f.logger.Warn().
			Int("id", id).
			Int("attempt", attempt).
			Str("error_class", string(class)).
			Err(err).
			Msg("Retryable fetch failure")

		// No pacing after the final attempt.
		if attempt >= f.cfg.Retry.MaxAttempts {
			break
		}

		fetchRetriesTotal.WithLabelValues(string(class)).Inc()
		if err := f.cfg.Retry.Wait(ctx); err != nil {
			return "", err
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	fetchRequestsTotal.WithLabelValues("exhausted").Inc()
	return "", &FetchError{
		ID:      id,
		Class:   lastClass,
		Message: "max retries exceeded",
		Err:     fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, f.cfg.Retry.MaxAttempts, lastErr),
	}
}

// attempt performs a single HTTP GET. A nil error means terminal
// success; otherwise the returned class drives the retry decision.
func (f *Fetcher) attempt(ctx context.Context, url string) (string, ErrorClass, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", ErrorClassClient, fmt.Errorf("create request: %w", err)
	}
	for k, v := range f.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrorClassNetwork, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		return "", ErrorClassNetwork, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", ErrorClassNetwork, fmt.Errorf("read body: %w", err)
		}
		return string(body), "", nil
	}

	class := classifyStatus(resp.StatusCode)
	return "", class, &FetchError{
		StatusCode: resp.StatusCode,
		Class:      class,
		Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
	}
}

// Close releases the connection pool.
func (f *Fetcher) Close() {
	f.httpClient.CloseIdleConnections()
}
