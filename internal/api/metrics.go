package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/servicedesk-core/internal/auth"
)

// healthCheckTimeout bounds each component check made by /api/health.
const healthCheckTimeout = 2 * time.Second

// Component states reported by /api/health.
const (
	componentOK          = "ok"
	componentUnavailable = "unavailable"
	componentDisabled    = "disabled"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Authenticated bool              `json:"authenticated"`
	Identity      *auth.Identity    `json:"identity,omitempty"`
	Components    map[string]string `json:"components"`
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptimeSeconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memoryAllocMb"`
	MemoryTotalMB float64 `json:"memoryTotalMb"`
	NumGC         uint32  `json:"numGc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	Driver          string `json:"driver,omitempty"`
	OpenConnections int    `json:"openConnections"`
	InUse           int    `json:"inUse"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"waitCount"`
}

// handleHealth reports component health. A valid identity is reported back;
// an invalid one is treated as anonymous. The database is the only component
// whose failure makes the service unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		Authenticated: id != nil,
		Identity:      id,
		Components:    make(map[string]string, 3),
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp.Components["database"] = componentDisabled
	if s.db != nil {
		resp.Components["database"] = componentOK
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			resp.Components["database"] = componentUnavailable
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	resp.Components["mqtt"] = componentDisabled
	if s.mqtt != nil {
		resp.Components["mqtt"] = componentOK
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			resp.Components["mqtt"] = componentUnavailable
			if status == http.StatusOK {
				resp.Status = "degraded"
			}
		}
	}

	resp.Components["influxdb"] = componentDisabled
	if s.influx != nil {
		resp.Components["influxdb"] = componentOK
		if err := s.influx.HealthCheck(ctx); err != nil {
			resp.Components["influxdb"] = componentUnavailable
			if status == http.StatusOK {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, status, resp)
}

// handleMetrics returns process and connection pool metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT: MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
		},
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			Driver:          s.db.Driver(),
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
