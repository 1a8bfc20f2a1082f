package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeHTTPMetrics struct{}

func (fakeHTTPMetrics) IncRequest(method, route, status string)            {}
func (fakeHTTPMetrics) ObserveRequestDuration(method, route string, s float64) {}

func TestNewRouter_ServesHealthAndReady(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	health := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	ready := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	query := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	router := NewRouter(logger, fakeHTTPMetrics{}, nil, 1<<20, health, ready, query)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/ready"},
		{http.MethodPost, "/v1/query"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestNewRouter_QueryEndpointRejectsGet(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	router := NewRouter(logger, fakeHTTPMetrics{}, nil, 1<<20, noop, noop, noop)

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
