package http

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordedRequest struct {
	route  string
	method string
	status int
}

type fakeHTTPMetrics struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (m *fakeHTTPMetrics) ObserveHTTP(route, method string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, recordedRequest{route: route, method: method, status: status})
}

func TestRequestLogger_LogsStatusAndRoute(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	metrics := &fakeHTTPMetrics{}

	r := chi.NewRouter()
	r.Use(RequestLogger(zap.New(core), metrics))
	r.Get("/orders/{orderID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "GET" || fields["path"] != "/orders/42" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("expected status 201 in log, got %v", fields["status"])
	}
	if len(metrics.seen) != 1 || metrics.seen[0].route != "/orders/{orderID}" {
		t.Fatalf("expected route pattern recorded, got %+v", metrics.seen)
	}
}

func TestRequestLogger_DefaultsTo200(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)

	r := chi.NewRouter()
	r.Use(RequestLogger(zap.New(core), nil))
	r.Get("/health", HealthHandler)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(http.StatusOK) {
		t.Fatalf("expected default status 200 in log, got %v", got)
	}
}

func TestRequestLogger_RecoveredPanicLogsRequestID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	metrics := &fakeHTTPMetrics{}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(zap.New(core), metrics))
	r.Use(middleware.Recoverer)
	r.Post("/checkout", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-123" {
		t.Fatalf("expected request id from header, got %v", fields["request_id"])
	}
	if fields["status"] != int64(http.StatusInternalServerError) {
		t.Fatalf("expected status 500 in log, got %v", fields["status"])
	}
	if len(metrics.seen) != 1 || metrics.seen[0].status != http.StatusInternalServerError {
		t.Fatalf("expected failed request recorded, got %+v", metrics.seen)
	}
}

func TestStatusRecorder_Flushes(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	var w http.ResponseWriter = sr
	f, ok := w.(http.Flusher)
	if !ok {
		t.Fatalf("expected recorder to implement http.Flusher")
	}
	f.Flush()
	if !rec.Flushed {
		t.Fatalf("expected flush to reach the underlying writer")
	}
}
