// Package cache provides an optional redis-backed cache of fetched
// document bodies, keyed by article identifier. A re-run over an
// overlapping range serves unchanged documents from the cache instead
// of re-fetching them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates the requested article is not cached.
var ErrCacheMiss = errors.New("cache miss")

// Prometheus metrics for cache operations.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habr_cache_hits_total",
		Help: "Total page cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habr_cache_misses_total",
		Help: "Total page cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habr_cache_errors_total",
		Help: "Total page cache errors by operation",
	}, []string{"operation"})
)

// Entry is one cached document body.
type Entry struct {
	// Body is the fetched document text.
	Body string `json:"body"`

	// CachedAt is when the document was fetched.
	CachedAt time.Time `json:"cached_at"`
}

// Manager handles page caching with a redis backend. A nil Manager is
// valid and disables caching.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager. TTL bounds how long a cached body
// is served before the document is fetched again.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// key returns the redis key for an article identifier.
func key(id int) string {
	return fmt.Sprintf("habr:page:%d", id)
}

// Get retrieves a cached document body.
// Returns ErrCacheMiss if the identifier is not cached.
func (m *Manager) Get(ctx context.Context, id int) (string, error) {
	if m == nil {
		return "", ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return "", ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return "", fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return "", fmt.Errorf("decode cache entry: %w", err)
	}

	cacheHits.Inc()
	return entry.Body, nil
}

// Set stores a fetched document body with the configured TTL.
func (m *Manager) Set(ctx context.Context, id int, body string) error {
	if m == nil {
		return nil
	}

	data, err := json.Marshal(Entry{Body: body, CachedAt: time.Now()})
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key(id), data, m.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cached document.
func (m *Manager) Delete(ctx context.Context, id int) error {
	if m == nil {
		return nil
	}

	if err := m.redis.Del(ctx, key(id)).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}
