package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry and pacing behavior.
var (
	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habr_fetch_retries_total",
		Help: "Total number of retried fetch attempts by error class",
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habr_fetch_retry_exhausted_total",
		Help: "Total number of fetches that exhausted all attempts by error class",
	}, []string{"error_class"})

	pacingDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "habr_pacing_delay_seconds",
		Help:    "Pacing delay applied before fetch attempts",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// RetryPolicy bounds fetch attempts and paces them. Every retry is
// preceded by a delay drawn uniformly from [MinDelay, MaxDelay]; the
// jitter keeps concurrent fetches from hitting the remote service in
// lockstep.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// MinDelay is the lower bound of the pacing delay.
	MinDelay time.Duration

	// MaxDelay is the upper bound of the pacing delay.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns a polite default.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinDelay:    500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// jitter returns a duration drawn uniformly from [MinDelay, MaxDelay].
func (p RetryPolicy) jitter() time.Duration {
	span := p.MaxDelay - p.MinDelay
	if span <= 0 {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(rand.Int63n(int64(span)))
}

// Wait sleeps for one pacing delay, honoring context cancellation. The
// batch scheduler reuses it for inter-batch pacing.
func (p RetryPolicy) Wait(ctx context.Context) error {
	d := p.jitter()
	pacingDelaySeconds.Observe(d.Seconds())

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-time.After(d):
		return nil
	}
}
