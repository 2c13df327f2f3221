// Package testutil provides testing utilities for the bookshelf front end.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBook is the origin's JSON representation of a book.
type MockBook struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      any    `json:"author"`
	CoverImage  string `json:"coverImage"`
	File        string `json:"file"`
}

// MockOrigin is a configurable mock backend API for testing.
//
// GET /books and GET /books/{id} serve the configured books. HEAD
// <endpoint>/last-updated answers with the configured Last-Modified time.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	books        []MockBook
	lastModified time.Time
	probeStatus  int

	// Tracking
	getCounts         map[string]int
	probeCount        int
	LastRequestHeader http.Header
}

// NewMockOrigin creates a new mock origin server.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
		getCounts:   make(map[string]int),
		probeStatus: http.StatusOK,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		if r.Method == http.MethodHead {
			mock.probeCount++
		} else {
			mock.getCounts[r.URL.Path]++
			mock.LastRequestHeader = r.Header.Clone()
		}
		mock.mu.Unlock()

		// Check for custom handler
		mock.mu.RLock()
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCounts = make(map[string]int)
	m.probeCount = 0
	m.LastRequestHeader = nil
}

// SetBooks replaces the books served by the origin.
func (m *MockOrigin) SetBooks(books ...MockBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books = books
}

// SetLastModified sets the Last-Modified time returned by freshness probes.
// The zero time omits the header.
func (m *MockOrigin) SetLastModified(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastModified = t
}

// SetProbeStatus sets the status code returned by freshness probes.
func (m *MockOrigin) SetProbeStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeStatus = status
}

// SetHandler sets a custom handler for a method and path.
func (m *MockOrigin) SetHandler(method, path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a simple GET response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(http.MethodGet, path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetCount returns the number of GET requests made to path.
func (m *MockOrigin) GetCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCounts[path]
}

// ProbeCount returns the number of HEAD freshness probes.
func (m *MockOrigin) ProbeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probeCount
}

// defaultHandler serves books and freshness probes.
func (m *MockOrigin) defaultHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	books := m.books
	lastModified := m.lastModified
	probeStatus := m.probeStatus
	m.mu.RUnlock()

	if r.Method == http.MethodHead {
		if !strings.HasSuffix(r.URL.Path, "/last-updated") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !lastModified.IsZero() {
			w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
		}
		w.WriteHeader(probeStatus)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch {
	case r.URL.Path == "/books":
		if books == nil {
			books = []MockBook{}
		}
		json.NewEncoder(w).Encode(books)
		return
	case strings.HasPrefix(r.URL.Path, "/books/"):
		id := strings.TrimPrefix(r.URL.Path, "/books/")
		for _, b := range books {
			if b.ID == id {
				json.NewEncoder(w).Encode(b)
				return
			}
		}
	case strings.HasPrefix(r.URL.Path, "/authors/"):
		w.Write([]byte(`{"_id":"` + strings.TrimPrefix(r.URL.Path, "/authors/") + `","name":"Author"}`))
		return
	}

	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message":"not found"}`))
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// SampleBooks returns a small catalog for tests.
func SampleBooks() []MockBook {
	return []MockBook{
		{
			ID:          "42",
			Title:       "The Go Programming Language",
			Description: "A book about Go.",
			Author:      map[string]string{"name": "Alan Donovan"},
			CoverImage:  "https://cdn.example.com/covers/42.png",
			File:        "https://cdn.example.com/files/42.pdf",
		},
		{
			ID:          "7",
			Title:       "Concurrency in Go",
			Description: "Tools and techniques.",
			Author:      "Katherine Cox-Buday",
			CoverImage:  "https://cdn.example.com/covers/7.png",
			File:        "https://cdn.example.com/files/7.pdf",
		},
	}
}
