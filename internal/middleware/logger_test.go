package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_RecordsRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	var seenID string
	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seenID != "req-1" {
		t.Fatalf("request id in context = %q, want req-1", seenID)
	}
	if got := w.Header().Get(RequestIDHeader); got != "req-1" {
		t.Fatalf("response request id = %q, want req-1", got)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("logged status = %v, want %d", fields["status"], http.StatusTeapot)
	}
	if fields["size"] != int64(5) {
		t.Fatalf("logged size = %v, want 5", fields["size"])
	}
	if fields["method"] != http.MethodGet || fields["uri"] != "/api/wallet" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLogger_GeneratesRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ads/claim", nil))

	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("generated request id %q is not a uuid: %v", id, err)
	}
	if fields := logs.All()[0].ContextMap(); fields["status"] != int64(http.StatusOK) {
		t.Fatalf("logged status = %v, want 200", fields["status"])
	}
}
