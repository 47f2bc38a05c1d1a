package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestHealthChecker_Healthy_NoDB(t *testing.T) {
	hc := NewHealthChecker(nil, "test-version")
	health := hc.Check(context.Background())

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["database"] != "not configured" {
		t.Errorf("database check = %q, want 'not configured'", health.Checks["database"])
	}
}

func TestHealthChecker_Healthy_DBReachable(t *testing.T) {
	hc := NewHealthChecker(fakePinger{}, "test-version")
	health := hc.Check(context.Background())

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["database"] != "ok" {
		t.Errorf("database check = %q, want ok", health.Checks["database"])
	}
}

func TestHealthChecker_Unhealthy_DBUnreachable(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("connection refused")}, "")
	health := hc.Check(context.Background())

	if health.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", health.Status)
	}
}

func TestHealthChecker_Handler_HTTP(t *testing.T) {
	hc := NewHealthChecker(nil, "1.0.0")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	hc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("Response status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("Response version = %q, want 1.0.0", resp.Version)
	}
}

func TestHealthChecker_Handler_Unhealthy_503(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("down")}, "")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	hc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "unhealthy" {
		t.Errorf("Response status = %q, want unhealthy", resp.Status)
	}
}

func TestHealthChecker_GoroutineCount(t *testing.T) {
	hc := NewHealthChecker(nil, "")
	health := hc.Check(context.Background())

	if health.Checks["goroutines"] == "" {
		t.Error("goroutines check should be present")
	}
	if health.Checks["goroutines"] == "0" {
		t.Error("goroutines count should be > 0")
	}
}
