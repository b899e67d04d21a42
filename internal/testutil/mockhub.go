// Package testutil provides testing utilities, most notably a
// configurable mock of the upstream hosting API.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockHub is a configurable mock upstream API server for testing.
type MockHub struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests map[string]int
	total    int
}

// NewMockHub creates a new mock upstream server.
func NewMockHub() *MockHub {
	mock := &MockHub{
		handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.total++
		mock.requests[r.URL.Path]++
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockHub) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = 0
	m.requests = make(map[string]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockHub) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetJSON configures a static JSON response for a path.
func (m *MockHub) SetJSON(path string, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal mock payload for %s: %v", path, err))
	}
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		w.Write(body)
	})
}

// SetError configures an upstream-style error response for a path.
func (m *MockHub) SetError(path string, status int, message string) {
	m.SetJSON(path, status, map[string]string{"message": message})
}

// RequestCount returns the total number of requests served.
func (m *MockHub) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

// RequestsTo returns the number of requests served for one path.
func (m *MockHub) RequestsTo(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}
