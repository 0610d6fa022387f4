// Package testutil provides testing utilities for the GDELT client.
package testutil

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock GDELT endpoint response.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
}

// MockGDELT is a configurable mock GDELT file server for testing.
type MockGDELT struct {
	server         *httptest.Server
	mu             sync.RWMutex
	handlers       map[string]func(w http.ResponseWriter, r *http.Request)
	defaultHandler func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	PathCounts   map[string]int
}

// NewMockGDELT creates a new mock GDELT server.
func NewMockGDELT() *MockGDELT {
	mock := &MockGDELT{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		fallback := mock.defaultHandler
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}
		if fallback != nil {
			fallback(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGDELT) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGDELT) Close() {
	m.server.Close()
}

// Client returns an http.Client that rewrites every request onto the mock
// server, regardless of the request's original host. Production URL
// validation keeps working against the real GDELT hostnames while the
// bytes come from the mock.
func (m *MockGDELT) Client() *http.Client {
	target, _ := url.Parse(m.server.URL)
	return &http.Client{
		Transport: &rewriteTransport{target: target},
		Timeout:   10 * time.Second,
	}
}

type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	clone.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

// SetDefaultHandler sets the handler used for paths with no specific
// handler registered.
func (m *MockGDELT) SetDefaultHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultHandler = handler
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGDELT) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockGDELT) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if len(resp.Body) > 0 {
			w.Write(resp.Body)
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGDELT) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests to a specific path.
func (m *MockGDELT) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// ZipBytes builds a single-entry ZIP archive the way GDELT publishes its
// bulk files.
func ZipBytes(name string, payload []byte) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(name)
	if err != nil {
		panic(err)
	}
	if _, err := f.Write(payload); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// NewZipResponse creates a 200 OK response carrying a zipped payload.
func NewZipResponse(entryName string, payload []byte) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       ZipBytes(entryName, payload),
		Headers: map[string]string{
			"Content-Type": "application/zip",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       []byte("rate limit exceeded"),
		Headers: map[string]string{
			"Retry-After": strconv.Itoa(retryAfterSeconds),
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       []byte("internal server error"),
	}
}
