package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusOK        HealthStatus = "ok"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
}

// HealthCheckResponse represents the overall health check response.
type HealthCheckResponse struct {
	Status        HealthStatus               `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     string                     `json:"timestamp"`
	Checks        map[string]ComponentHealth `json:"checks"`
}

// HealthChecker performs health checks on system components.
type HealthChecker struct {
	version   string
	startTime time.Time
	checks    map[string]HealthCheckFunc
}

// HealthCheckFunc defines a function that checks component health.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheckFunc),
	}
}

// RegisterCheck registers a health check for a component.
func (hc *HealthChecker) RegisterCheck(name string, checkFunc HealthCheckFunc) {
	hc.checks[name] = checkFunc
}

// Check performs all health checks.
func (hc *HealthChecker) Check(ctx context.Context) HealthCheckResponse {
	response := HealthCheckResponse{
		Status:        HealthStatusOK,
		Version:       hc.version,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Timestamp:     time.Now().Format(time.RFC3339),
		Checks:        make(map[string]ComponentHealth),
	}

	for name, checkFunc := range hc.checks {
		health := checkFunc(ctx)
		response.Checks[name] = health

		if health.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if health.Status == HealthStatusDegraded && response.Status != HealthStatusUnhealthy {
			response.Status = HealthStatusDegraded
		}
	}

	return response
}

// Handler returns an HTTP handler for health checks.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := hc.Check(ctx)
		w.Header().Set("Content-Type", "application/json")
		switch response.Status {
		case HealthStatusOK, HealthStatusDegraded:
			w.WriteHeader(http.StatusOK)
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(response)
	}
}

// TCPListenerCheck checks that the transfer accept socket is bound.
func TCPListenerCheck(addr string) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusOK, Message: fmt.Sprintf("TCP listener on %s", addr)}
	}
}

// IdentityCheck checks that the local device identity has been loaded.
func IdentityCheck(loaded bool) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if loaded {
			return ComponentHealth{Status: HealthStatusOK, Message: "device identity loaded"}
		}
		return ComponentHealth{Status: HealthStatusUnhealthy, Message: "device identity not loaded"}
	}
}

// DatabaseCheck checks that the session store file is reachable.
func DatabaseCheck(dbPath string) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		_, err := os.Stat(dbPath)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error(), LatencyMS: latency}
		}
		return ComponentHealth{Status: HealthStatusOK, Message: "sqlite responsive", LatencyMS: latency}
	}
}

// DiskSpaceCheck checks that the download directory's filesystem has free space remaining.
func DiskSpaceCheck(path string, minFreeBytes uint64) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		free, err := freeDiskBytes(path)
		if err != nil {
			return ComponentHealth{Status: HealthStatusDegraded, Message: err.Error()}
		}
		if free < minFreeBytes {
			return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("low disk space: %d bytes free", free)}
		}
		return ComponentHealth{Status: HealthStatusOK, Message: fmt.Sprintf("%d bytes free", free)}
	}
}
