package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tinoosan/bankledger/internal/service/bank"
	"github.com/tinoosan/bankledger/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type readyFunc func(context.Context) error

func (f readyFunc) Ready(ctx context.Context) error { return f(ctx) }

func setup(t *testing.T, ready ReadyChecker) (*bank.Ledger, http.Handler) {
	t.Helper()
	store := memory.New()
	l, err := bank.Open(context.Background(), store, bank.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return l, New(l, ready, testLogger()).Handler()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReady(t *testing.T) {
	_, h := setup(t, nil)
	if rec := get(h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := get(h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz without checker: %d", rec.Code)
	}

	_, h = setup(t, readyFunc(func(context.Context) error { return errors.New("db down") }))
	if rec := get(h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	_, h = setup(t, memory.New())
	if rec := get(h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("memory backend should be ready: %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	l, h := setup(t, nil)
	ctx := context.Background()
	if err := l.Register(ctx, "alice", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := l.CreateAccount(ctx, "alice", "RUB"); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec := get(h, "/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	var st statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Users != 1 || st.Accounts != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := setup(t, nil)
	_ = get(h, "/healthz")
	rec := get(h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bank_admin_http_requests_total") {
		t.Fatalf("admin request counter not exported")
	}
}
