package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func TestLoggerWritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Logger(zerolog.New(&buf)))
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	line := buf.String()
	if !strings.Contains(line, `"status":418`) || !strings.Contains(line, `"path":"/ping"`) {
		t.Fatalf("unexpected log line %s", line)
	}
	if !strings.Contains(line, `"request_id":"`) {
		t.Fatalf("missing request id in %s", line)
	}
}

func TestRoutePatternUsesChiPattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/api/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		got = routePattern(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil))
	if got != "/api/sessions/{id}" {
		t.Fatalf("route = %q", got)
	}
}

func TestMetricsKeepsFlusher(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer lost http.Flusher")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}
