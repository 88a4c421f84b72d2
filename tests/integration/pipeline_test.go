package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/habr-tools/habr-ingest/internal/testutil"
	"github.com/habr-tools/habr-ingest/pkg/cache"
	"github.com/habr-tools/habr-ingest/pkg/client"
	"github.com/habr-tools/habr-ingest/pkg/export"
	"github.com/habr-tools/habr-ingest/pkg/ingest"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})

	return redisClient
}

func fastRetry() client.RetryPolicy {
	return client.RetryPolicy{
		MaxAttempts: 3,
		MinDelay:    time.Millisecond,
		MaxDelay:    3 * time.Millisecond,
	}
}

func newFetcher(t *testing.T, mock *testutil.MockHabr, cacheManager *cache.Manager) *client.Fetcher {
	t.Helper()

	f, err := client.New(client.Config{
		BaseURL:               mock.BaseURL(),
		Retry:                 fastRetry(),
		MaxConcurrentRequests: 3,
		Timeout:               5 * time.Second,
		ConnLimit:             10,
		ConnLimitPerHost:      10,
		Cache:                 cacheManager,
	})
	if err != nil {
		t.Fatalf("Failed to create fetcher: %v", err)
	}
	t.Cleanup(f.Close)
	return f
}

func runPipeline(t *testing.T, fetcher *client.Fetcher, artifact string, cfg ingest.Config) {
	t.Helper()

	exporter := export.New(artifact, 2)
	scheduler, err := ingest.New(fetcher, exporter, cfg)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	if err := scheduler.Run(context.Background()); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}
}

func readArtifact(t *testing.T, path string) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read artifact: %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("Artifact is not a valid JSON array: %v", err)
	}
	return records
}

// TestFullPipeline runs the whole flow: fetch a range against the mock
// server, retry a flaky identifier, drop a missing one into a
// not_found record, and stream everything into a JSON artifact.
func TestFullPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	mock := testutil.NewMockHabr()
	defer mock.Close()

	// Identifier 3 succeeds only after two rate-limit responses,
	// identifier 5 does not exist.
	mock.SetStatusSequence(3, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK)
	mock.SetResponse(5, testutil.MockResponse{StatusCode: http.StatusOK, Body: testutil.NotFoundHTML()})

	fetcher := newFetcher(t, mock, nil)

	artifact := filepath.Join(t.TempDir(), "posts.json")
	runPipeline(t, fetcher, artifact, ingest.Config{
		First:     1,
		Last:      6,
		BatchSize: 4,
		Pace:      fastRetry(),
	})

	records := readArtifact(t, artifact)
	if len(records) != 6 {
		t.Fatalf("Expected 6 records, got %d", len(records))
	}

	for i, rec := range records {
		if int(rec["id"].(float64)) != i+1 {
			t.Errorf("Record %d has id %v, records must be in identifier order", i, rec["id"])
		}
	}

	if records[2]["status"] != "ok" {
		t.Errorf("Expected retried identifier 3 to end ok, got %v", records[2]["status"])
	}
	if mock.RequestsFor(3) != 3 {
		t.Errorf("Expected 3 requests for flaky identifier, got %d", mock.RequestsFor(3))
	}

	if records[4]["status"] != "not_found" {
		t.Errorf("Expected identifier 5 to be not_found, got %v", records[4]["status"])
	}

	if title := records[0]["title"]; title != "Post 1" {
		t.Errorf("Expected parsed title for identifier 1, got %v", title)
	}
}

// TestFullPipelineSkipPolicy verifies that only ok records reach the
// artifact when skip is enabled.
func TestFullPipelineSkipPolicy(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	mock := testutil.NewMockHabr()
	defer mock.Close()

	mock.SetResponse(2, testutil.MockResponse{StatusCode: http.StatusNotFound})
	mock.SetResponse(4, testutil.MockResponse{StatusCode: http.StatusNotFound})

	fetcher := newFetcher(t, mock, nil)

	artifact := filepath.Join(t.TempDir(), "posts.json")
	runPipeline(t, fetcher, artifact, ingest.Config{
		First:     1,
		Last:      5,
		BatchSize: 5,
		Skip:      true,
		Pace:      fastRetry(),
	})

	records := readArtifact(t, artifact)
	if len(records) != 3 {
		t.Fatalf("Expected 3 ok records after skip, got %d", len(records))
	}
	for _, rec := range records {
		if rec["status"] != "ok" {
			t.Errorf("Skip policy leaked a %v record", rec["status"])
		}
	}
}

// TestFullPipelineWithCache runs the range twice against a Redis-backed
// page cache; the second run must be served from the cache.
func TestFullPipelineWithCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient := setupRedis(t)
	cacheManager := cache.NewManager(redisClient, time.Hour)

	mock := testutil.NewMockHabr()
	defer mock.Close()

	cfg := ingest.Config{First: 1, Last: 4, BatchSize: 4, Pace: fastRetry()}

	dir := t.TempDir()

	fetcher := newFetcher(t, mock, cacheManager)
	runPipeline(t, fetcher, filepath.Join(dir, "first.json"), cfg)

	if mock.RequestCount() != 4 {
		t.Fatalf("Expected 4 upstream requests on the first run, got %d", mock.RequestCount())
	}

	runPipeline(t, fetcher, filepath.Join(dir, "second.json"), cfg)

	if mock.RequestCount() != 4 {
		t.Errorf("Expected the second run to be served from cache, got %d upstream requests", mock.RequestCount())
	}

	records := readArtifact(t, filepath.Join(dir, "second.json"))
	if len(records) != 4 {
		t.Fatalf("Expected 4 records from the cached run, got %d", len(records))
	}
	for _, rec := range records {
		if rec["status"] != "ok" {
			t.Errorf("Cached run produced a %v record", rec["status"])
		}
	}
}

// TestPipelineConcurrencyBudget verifies the in-flight bound holds
// across batch boundaries under slow responses.
func TestPipelineConcurrencyBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	mock := testutil.NewMockHabr()
	defer mock.Close()

	for id := 1; id <= 10; id++ {
		mock.SetResponse(id, testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       testutil.ArticleHTML(id),
			Delay:      20 * time.Millisecond,
		})
	}

	fetcher := newFetcher(t, mock, nil)

	artifact := filepath.Join(t.TempDir(), "posts.json")
	runPipeline(t, fetcher, artifact, ingest.Config{
		First:     1,
		Last:      10,
		BatchSize: 10,
		Pace:      fastRetry(),
	})

	if inFlight := mock.MaxInFlight(); inFlight > 3 {
		t.Errorf("Concurrency budget exceeded: %d requests in flight", inFlight)
	}
}
