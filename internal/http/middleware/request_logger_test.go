package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

type observation struct {
	route  string
	status int
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveHTTP(route string, status int, _ time.Duration) {
	r.seen = append(r.seen, observation{route: route, status: status})
}

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	obs := &recordingObserver{}

	r := chi.NewRouter()
	r.Use(RequestLogger(logging.NewWithWriter("info", &buf), obs))
	r.Get("/api/v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/abc", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	if len(obs.seen) != 1 || obs.seen[0] != (observation{route: "/api/v1/conversations/{id}", status: http.StatusNotFound}) {
		t.Fatalf("unexpected observations %#v", obs.seen)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"req-42"`)) {
		t.Fatalf("expected request id in log, got %s", buf.String())
	}
}

func TestRequestLoggerDefaultsStatusAndID(t *testing.T) {
	handler := RequestLogger(logging.Discard(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
}
