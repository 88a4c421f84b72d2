// Package testutil provides testing utilities for the ingestion
// pipeline.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock article response.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockHabr is a configurable mock article server for testing. It
// tracks request counts and the high-water mark of simultaneous
// in-flight requests, which the concurrency-bound tests assert on.
type MockHabr struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	requestCount int
	pathCounts   map[string]int
	inFlight     int
	maxInFlight  int
}

// NewMockHabr creates a new mock article server.
func NewMockHabr() *MockHabr {
	mock := &MockHabr{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.inFlight++
		if mock.inFlight > mock.maxInFlight {
			mock.maxInFlight = mock.inFlight
		}
		handler := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if handler != nil {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// BaseURL returns the article URL prefix identifiers are appended to.
func (m *MockHabr) BaseURL() string {
	return m.server.URL + "/ru/articles/"
}

// Close shuts down the mock server.
func (m *MockHabr) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for one article id.
func (m *MockHabr) SetHandler(id int, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[fmt.Sprintf("/ru/articles/%d", id)] = handler
}

// SetResponse configures a fixed response for one article id.
func (m *MockHabr) SetResponse(id int, resp MockResponse) {
	m.SetHandler(id, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetStatusSequence configures one article id to answer with the given
// statuses in order; the final status repeats for any further
// requests. Statuses in the 2xx range respond with a valid article
// body.
func (m *MockHabr) SetStatusSequence(id int, statuses ...int) {
	var mu sync.Mutex
	attempt := 0
	m.SetHandler(id, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		status := statuses[len(statuses)-1]
		if attempt < len(statuses) {
			status = statuses[attempt]
		}
		attempt++
		mu.Unlock()

		w.WriteHeader(status)
		if status >= 200 && status < 300 {
			w.Write([]byte(ArticleHTML(id)))
		}
	})
}

// RequestCount returns the total number of requests served.
func (m *MockHabr) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// RequestsFor returns the number of requests served for one article id.
func (m *MockHabr) RequestsFor(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pathCounts[fmt.Sprintf("/ru/articles/%d", id)]
}

// MaxInFlight returns the high-water mark of simultaneous requests.
func (m *MockHabr) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// defaultHandler serves a valid article page for any id path.
func (m *MockHabr) defaultHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id := 0
	fmt.Sscanf(parts[len(parts)-1], "%d", &id)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ArticleHTML(id)))
}

// ArticleHTML builds a minimal article page the parser accepts.
func ArticleHTML(id int) string {
	return fmt.Sprintf(`<html>
<head>
<title>Post %d</title>
<meta name="keywords" content="go, pipelines">
</head>
<body>
<div id="post-content-body">
<div class="article-formatted-body">Body of post %d.</div>
</div>
<a class="tm-user-info__username">author%d</a>
<a class="tm-hubs-list__link">Go</a>
<a class="tm-hubs-list__link">Backend</a>
<time datetime="2024-05-01T10:30:00Z"></time>
<span class="tm-article-reading-time__label">7 мин</span>
</body>
</html>`, id, id, id)
}

// NotFoundHTML builds a page without the article content anchor.
func NotFoundHTML() string {
	return `<html><head><title>404</title></head><body><div class="empty"></div></body></html>`
}
