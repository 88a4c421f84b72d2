// Package ingest drives the ingestion run: it partitions the
// identifier range into batches, fetches each batch concurrently, and
// hands completed records to the exporter in identifier order.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/habr-tools/habr-ingest/pkg/client"
	"github.com/habr-tools/habr-ingest/pkg/logging"
	"github.com/habr-tools/habr-ingest/pkg/record"
)

// Prometheus metrics for the scheduler.
var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habr_batches_total",
		Help: "Total batches processed",
	})

	recordsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habr_records_skipped_total",
		Help: "Total records dropped by the skip policy",
	})

	ingestProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "habr_ingest_progress",
		Help: "Identifiers processed so far in the current run",
	})
)

// Fetcher produces one record per identifier. Implementations contain
// all per-identifier failures inside the record.
type Fetcher interface {
	FetchRecord(ctx context.Context, id int) record.Record
}

// Sink consumes completed records. Implementations are single-writer:
// the scheduler never calls SaveChunk concurrently.
type Sink interface {
	SaveChunk(rec record.Record) error
	Finalize() error
}

// Config holds the scheduler configuration.
type Config struct {
	// First and Last bound the inclusive identifier range.
	First int
	Last  int

	// BatchSize caps how many identifiers are in flight per batch.
	BatchSize int

	// Skip drops every record whose status is not "ok".
	Skip bool

	// Pace supplies the inter-batch pacing delay.
	Pace client.RetryPolicy
}

// Scheduler runs the ingestion pipeline.
type Scheduler struct {
	fetcher Fetcher
	sink    Sink
	cfg     Config
	logger  zerolog.Logger
}

// New creates a scheduler.
func New(fetcher Fetcher, sink Sink, cfg Config) (*Scheduler, error) {
	if cfg.First < 1 || cfg.Last < cfg.First {
		return nil, fmt.Errorf("invalid range [%d, %d]", cfg.First, cfg.Last)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0 (got %d)", cfg.BatchSize)
	}

	return &Scheduler{
		fetcher: fetcher,
		sink:    sink,
		cfg:     cfg,
		logger:  logging.NewLogger("scheduler"),
	}, nil
}

// Run ingests the configured range. One failing identifier never
// aborts the run; an export or cancellation failure does, but the sink
// is finalized on every exit path so already-flushed work survives.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	total := s.cfg.Last - s.cfg.First + 1
	s.logger.Info().
		Int("first", s.cfg.First).
		Int("last", s.cfg.Last).
		Int("total", total).
		Msg("Starting ingestion run")

	defer func() {
		if finErr := s.sink.Finalize(); finErr != nil && err == nil {
			err = finErr
		}
	}()

	processed := 0
	for start := s.cfg.First; start <= s.cfg.Last; start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize - 1
		if end > s.cfg.Last {
			end = s.cfg.Last
		}

		records := s.fetchBatch(ctx, start, end)

		// Records are forwarded in identifier order regardless of
		// completion order.
		for _, rec := range records {
			if s.cfg.Skip && !rec.OK() {
				recordsSkippedTotal.Inc()
				continue
			}
			if saveErr := s.sink.SaveChunk(rec); saveErr != nil {
				return fmt.Errorf("export record %d: %w", rec.ID(), saveErr)
			}
		}

		processed += len(records)
		batchesTotal.Inc()
		ingestProgress.Set(float64(processed))
		s.logger.Info().
			Int("processed", processed).
			Int("total", total).
			Msg("Batch complete")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		// Pace between batches to avoid a burst at the boundary, but
		// not after the last one.
		if end < s.cfg.Last {
			if waitErr := s.cfg.Pace.Wait(ctx); waitErr != nil {
				return waitErr
			}
		}
	}

	s.logger.Info().Int("total", total).Msg("Ingestion run complete")
	return nil
}

// fetchBatch fetches [start, end] concurrently and returns the records
// indexed by identifier order. The fetcher's semaphore, not the batch
// size, bounds actual parallelism.
func (s *Scheduler) fetchBatch(ctx context.Context, start, end int) []record.Record {
	records := make([]record.Record, end-start+1)

	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i] = s.fetcher.FetchRecord(ctx, start+i)
		}(i)
	}
	wg.Wait()

	return records
}
