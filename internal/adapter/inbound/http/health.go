package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// Pinger is satisfied by the SQL-backed stores (a thin wrapper around
// *sql.DB.PingContext); the in-memory stores never need to implement it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker verifies component health for the /health endpoint.
type HealthChecker struct {
	db      Pinger
	version string
}

// NewHealthChecker creates a HealthChecker. db may be nil when running
// against the in-memory stores, in which case the database check is
// reported as not configured rather than failing.
func NewHealthChecker(db Pinger, version string) *HealthChecker {
	return &HealthChecker{db: db, version: version}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "unreachable: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	checks["goroutines"] = strconv.Itoa(runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
