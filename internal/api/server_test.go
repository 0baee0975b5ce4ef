package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/signalbench/internal/app"
	"github.com/newthinker/signalbench/internal/backtest"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/metrics"
	"go.uber.org/zap"
)

type emptyProvider struct{}

func (emptyProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	return nil, nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, cfg Config, checks map[string]Pinger) (*Server, *metrics.Registry) {
	t.Helper()
	reg := metrics.NewRegistry()
	srv, err := NewServer(cfg, Dependencies{
		App:     app.New(emptyProvider{}, nil, backtest.DefaultOptions(), 1, nil),
		Metrics: reg,
		Checks:  checks,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, reg
}

func serve(srv *Server, method, path, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_RequiresApp(t *testing.T) {
	if _, err := NewServer(Config{}, Dependencies{}, nil); err == nil {
		t.Error("expected error without app")
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, Config{APIKey: "test-key"}, nil)

	w := serve(srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 without a key, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request ID header")
	}
}

func TestServer_Health_Degraded(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, map[string]Pinger{
		"redis":    pingerFunc(func(context.Context) error { return nil }),
		"postgres": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	w := serve(srv, "GET", "/api/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var resp struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.Status != "degraded" {
		t.Errorf("expected degraded, got %s", resp.Data.Status)
	}
	if resp.Data.Checks["redis"] != "ok" || resp.Data.Checks["postgres"] != "unavailable" {
		t.Errorf("unexpected checks: %v", resp.Data.Checks)
	}
}

func TestServer_APIAuth(t *testing.T) {
	srv, _ := newTestServer(t, Config{APIKey: "test-key"}, nil)

	if w := serve(srv, "GET", "/api/v1/strategies", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}
	if w := serve(srv, "GET", "/api/v1/strategies", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", w.Code)
	}
	if w := serve(srv, "GET", "/api/v1/strategies", "test-key"); w.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", w.Code)
	}
}

func TestServer_APIAuth_Disabled(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, nil)

	if w := serve(srv, "GET", "/api/v1/backtests", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 with disabled auth, got %d", w.Code)
	}
}

func TestServer_Routes(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, nil)

	if w := serve(srv, "GET", "/api/v1/backtests/unknown", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", w.Code)
	}
	if w := serve(srv, "DELETE", "/api/v1/backtests", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, nil)

	serve(srv, "GET", "/api/v1/strategies", "")
	w := serve(srv, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `http_requests_total{method="GET",path="/api/v1/strategies",status="2xx"} 1`) {
		t.Errorf("expected request counter in metrics output:\n%s", body)
	}
}
