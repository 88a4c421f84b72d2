// Package metrics provides the Prometheus listener and a reference
// index of the metrics the pipeline exposes. Metrics themselves are
// defined in their owning packages (client, cache, export, ingest) via
// promauto to avoid circular dependencies.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/habr-tools/habr-ingest/pkg/logging"
)

// Registry is the default Prometheus registry used by the pipeline.
var Registry = prometheus.DefaultRegisterer

// Serve starts the metrics listener on addr in the background and
// returns the server so the caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := logging.NewLogger("metrics")
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics listener started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics listener failed")
		}
	}()

	return server
}

// Metrics Documentation
//
// Fetch Metrics (pkg/client):
//   - habr_fetch_requests_total{outcome} (Counter): Fetches by outcome (success, cache_hit, terminal, exhausted)
//   - habr_fetch_duration_seconds (Histogram): Duration of one fetch-with-retries
//   - habr_fetch_retries_total{error_class} (Counter): Retried attempts by error class
//   - habr_fetch_retry_exhausted_total{error_class} (Counter): Fetches that exhausted all attempts
//   - habr_pacing_delay_seconds (Histogram): Pacing delays applied before attempts
//
// Cache Metrics (pkg/cache):
//   - habr_cache_hits_total (Counter): Page cache hits
//   - habr_cache_misses_total (Counter): Page cache misses
//   - habr_cache_errors_total{operation} (Counter): Cache operation errors
//
// Export Metrics (pkg/export):
//   - habr_records_exported_total{status} (Counter): Records handed to the exporter by status
//   - habr_export_flushes_total{format} (Counter): Buffer flushes by format
//
// Scheduler Metrics (pkg/ingest):
//   - habr_batches_total (Counter): Batches processed
//   - habr_records_skipped_total (Counter): Records dropped by the skip policy
//   - habr_ingest_progress (Gauge): Identifiers processed so far
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(habr_cache_hits_total[5m]) /
//   (rate(habr_cache_hits_total[5m]) + rate(habr_cache_misses_total[5m]))
//
//   # Fetch Failure Rate
//   rate(habr_fetch_requests_total{outcome=~"terminal|exhausted"}[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(habr_fetch_duration_seconds_bucket[5m]))
