// Package health implements the health check surface: liveness, readiness,
// shallow and deep checks, and the JSON metrics endpoint. Synthetic
// degradation from the fault injector and real telemetry thresholds are
// combined by logical OR.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/telemetry-lab/faultline/internal/apierrors"
	"github.com/telemetry-lab/faultline/internal/fault"
	"github.com/telemetry-lab/faultline/internal/sysinfo"
	"github.com/telemetry-lab/faultline/internal/tracking"
)

// Version is reported by the health endpoints.
const Version = "1.0.0"

// Degradation thresholds. The pressure fault categories lower the memory
// and disk thresholds so a normally loaded host reads as degraded.
const (
	memoryThreshold         = 85.0
	memoryPressureThreshold = 50.0
	diskThreshold           = 90.0
	diskPressureThreshold   = 60.0
	cpuThreshold            = 80.0
)

var failureReasons = []string{
	"Database connection timeout",
	"Cache service unavailable",
	"External dependency unreachable",
	"Memory threshold exceeded",
	"Disk space critically low",
}

// Checker serves the health endpoints.
type Checker struct {
	injector *fault.Injector
	system   sysinfo.Reader
	tracker  *tracking.Aggregator
	errh     *apierrors.Handler
	logger   *zap.Logger
	started  time.Time
	failures atomic.Int64
}

// NewChecker wires the health surface.
func NewChecker(injector *fault.Injector, system sysinfo.Reader, tracker *tracking.Aggregator, errh *apierrors.Handler, logger *zap.Logger) *Checker {
	return &Checker{
		injector: injector,
		system:   system,
		tracker:  tracker,
		errh:     errh,
		logger:   logger,
		started:  time.Now(),
	}
}

// Injector exposes the health-subsystem injector for the admin endpoints.
func (c *Checker) Injector() *fault.Injector {
	return c.injector
}

// Failures returns the number of failed health checks so far.
func (c *Checker) Failures() int64 {
	return c.failures.Load()
}

// ResetFailures zeroes the failure counter.
func (c *Checker) ResetFailures() {
	c.failures.Store(0)
}

// Uptime returns seconds since the checker was created.
func (c *Checker) Uptime() float64 {
	return time.Since(c.started).Seconds()
}

// HealthResponse is the shallow health body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Message   string    `json:"message,omitempty"`
}

// ComponentCheck describes one resource in the degraded body.
type ComponentCheck struct {
	Status       string  `json:"status"`
	UsagePercent float64 `json:"usage_percent,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Handle serves GET /api/health.
//
// The draws run in a fixed order: slow_responses, then
// intermittent_failures, then the real system check, then a final
// unconditional degraded chance. Each is an independent trial; the overall
// failure probability is their union, deliberately.
func (c *Checker) Handle(w http.ResponseWriter, r *http.Request) {
	if out := c.injector.EvaluateDelay("slow_responses", 0.30, 2*time.Second, 5*time.Second); out.Action == fault.Delay {
		c.logger.Warn("simulating slow health check", zap.Duration("delay", out.Delay))
		time.Sleep(out.Delay)
	}

	if out := c.injector.EvaluateFail("intermittent_failures", 0.15, fault.FailSpec{
		Status:     http.StatusServiceUnavailable,
		RetryAfter: 30 * time.Second,
	}); out.Action == fault.Fail {
		n := c.failures.Add(1)
		reason := c.injector.Pick(failureReasons)
		c.logger.Error("health check failure", zap.Int64("count", n), zap.String("reason", reason))
		c.errh.WriteRetryError(w, r, out.Status, "Health check failed: "+reason, out.RetryAfter)
		return
	}

	healthy, issues, checks, err := c.checkSystem()
	if err != nil {
		c.failures.Add(1)
		c.logger.Error("system health check failed", zap.Error(err))
		c.errh.WriteInternalError(w, r, "Health check failed with error")
		return
	}

	if !healthy {
		c.logger.Error("system health degraded", zap.Strings("issues", issues))
		c.errh.RecordFailure(r, http.StatusServiceUnavailable, "system health degraded")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "degraded",
			"timestamp": time.Now().UTC(),
			"version":   Version,
			"issues":    issues,
			"checks":    checks,
		})
		return
	}

	// Small unconditional chance of reporting degraded even when healthy.
	if c.injector.Chance(0.05) {
		c.logger.Warn("reporting degraded status")
		c.errh.RecordFailure(r, http.StatusServiceUnavailable, "intermittent degradation reported")
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "degraded",
			Timestamp: time.Now().UTC(),
			Version:   Version,
			Message:   "System experiencing intermittent issues",
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   Version,
	})
}

// checkSystem reads real telemetry and applies the (possibly
// pressure-lowered) thresholds.
func (c *Checker) checkSystem() (bool, []string, map[string]ComponentCheck, error) {
	usage, err := c.system.Usage()
	if err != nil {
		return false, nil, nil, err
	}

	issues := []string{}
	checks := map[string]ComponentCheck{}

	memThreshold := memoryThreshold
	if c.injector.Enabled("memory_pressure") {
		memThreshold = memoryPressureThreshold
	}
	memStatus := "healthy"
	if usage.MemoryPercent > memThreshold {
		memStatus = "degraded"
		issues = append(issues, formatIssue("High memory usage", usage.MemoryPercent))
	}
	checks["memory"] = ComponentCheck{Status: memStatus, UsagePercent: usage.MemoryPercent, Threshold: memThreshold}

	dskThreshold := diskThreshold
	if c.injector.Enabled("disk_pressure") {
		dskThreshold = diskPressureThreshold
	}
	diskStatus := "healthy"
	if usage.DiskPercent > dskThreshold {
		diskStatus = "degraded"
		issues = append(issues, formatIssue("High disk usage", usage.DiskPercent))
	}
	checks["disk"] = ComponentCheck{Status: diskStatus, UsagePercent: usage.DiskPercent, Threshold: dskThreshold}

	cpuStatus := "healthy"
	if usage.CPUPercent > cpuThreshold {
		cpuStatus = "degraded"
		issues = append(issues, formatIssue("High CPU usage", usage.CPUPercent))
	}
	checks["cpu"] = ComponentCheck{Status: cpuStatus, UsagePercent: usage.CPUPercent, Threshold: cpuThreshold}

	if out := c.injector.EvaluateFail("cascade_failures", 0.20, fault.FailSpec{}); out.Action == fault.Fail {
		issues = append(issues, "External service dependency failed")
		checks["external_service"] = ComponentCheck{Status: "failed", Error: "Connection timeout to external API"}
	} else {
		checks["external_service"] = ComponentCheck{Status: "healthy"}
	}

	return len(issues) == 0, issues, checks, nil
}

// MetricsResponse is the JSON metrics body.
type MetricsResponse struct {
	TotalRequests     int64   `json:"total_requests"`
	ActiveConnections int     `json:"active_connections"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	MemoryUsageMB     float64 `json:"memory_usage_mb"`
}

// HandleMetrics serves GET /api/metrics.
func (c *Checker) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if c.injector.Chance(0.05) {
		c.logger.Error("metrics collection failed")
		c.errh.WriteError(w, r, http.StatusServiceUnavailable,
			"Unable to collect metrics at this time")
		return
	}

	proc, err := c.system.Process()
	if err != nil {
		c.logger.Error("process metrics read failed", zap.Error(err))
		c.errh.WriteInternalError(w, r, "System metrics collection failed")
		return
	}

	resp := MetricsResponse{
		TotalRequests:     c.tracker.Snapshot().TotalRequests,
		ActiveConnections: proc.Connections,
		UptimeSeconds:     c.Uptime(),
		MemoryUsageMB:     float64(proc.RSSBytes) / (1024 * 1024),
	}

	// Explicitly toggled synthetic corruption: invalid counter values for
	// consumers to choke on.
	if out := c.injector.EvaluateFail("corrupted_metrics", 0.03, fault.FailSpec{}); out.Action == fault.Fail {
		c.logger.Warn("returning corrupted metrics")
		resp.TotalRequests = -1
	}

	writeJSON(w, http.StatusOK, resp)
}

// serviceProbe is one simulated dependency result in the deep check.
type serviceProbe struct {
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	Warning        string `json:"warning,omitempty"`
	ResponseTimeMS int    `json:"response_time_ms,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// HandleDeep serves GET /api/health/deep.
func (c *Checker) HandleDeep(w http.ResponseWriter, r *http.Request) {
	if c.injector.Chance(0.10) {
		c.failures.Add(1)
		c.logger.Error("deep health check failed")
		c.errh.WriteError(w, r, http.StatusServiceUnavailable,
			"Deep health check revealed critical issues")
		return
	}

	services := map[string]serviceProbe{
		"database":      c.probeDatabase(),
		"cache":         c.probeCache(),
		"message_queue": c.probeMessageQueue(),
		"external_apis": c.probeExternalAPI(),
		"file_system":   c.probeFilesystem(),
	}

	failed := []string{}
	for name, probe := range services {
		if probe.Status != "healthy" {
			failed = append(failed, name)
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if len(failed) > 0 {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		c.errh.RecordFailure(r, status, "deep health check found failed services")
	}

	writeJSON(w, status, map[string]interface{}{
		"status":          overall,
		"timestamp":       time.Now().UTC(),
		"services":        services,
		"failed_services": failed,
		"total_checks":    len(services),
		"passed_checks":   len(services) - len(failed),
	})
}

func (c *Checker) probeDatabase() serviceProbe {
	if out := c.injector.EvaluateFail("cascade_failures", 0.15, fault.FailSpec{}); out.Action == fault.Fail {
		return serviceProbe{Status: "failed", Error: "Connection timeout after 5000ms"}
	}
	if c.injector.Chance(0.10) {
		return serviceProbe{Status: "degraded", Warning: "High connection pool usage", ResponseTimeMS: 450}
	}
	return serviceProbe{Status: "healthy", ResponseTimeMS: 10 + c.injector.Intn(40)}
}

func (c *Checker) probeCache() serviceProbe {
	if c.injector.Chance(0.08) {
		return serviceProbe{Status: "failed", Error: "Redis connection refused"}
	}
	return serviceProbe{Status: "healthy", ResponseTimeMS: 1 + c.injector.Intn(4)}
}

func (c *Checker) probeMessageQueue() serviceProbe {
	if c.injector.Chance(0.05) {
		return serviceProbe{Status: "degraded", Warning: "High queue depth", Detail: "15000 messages backed up"}
	}
	return serviceProbe{Status: "healthy", Detail: "queue depth nominal"}
}

func (c *Checker) probeExternalAPI() serviceProbe {
	if c.injector.Chance(0.12) {
		return serviceProbe{Status: "failed", Error: "HTTP 503 Service Unavailable"}
	}
	return serviceProbe{Status: "healthy", ResponseTimeMS: 100 + c.injector.Intn(200)}
}

func (c *Checker) probeFilesystem() serviceProbe {
	if out := c.injector.EvaluateFail("disk_pressure", 0.20, fault.FailSpec{}); out.Action == fault.Fail {
		return serviceProbe{Status: "degraded", Warning: "Low disk space"}
	}
	return serviceProbe{Status: "healthy"}
}

// HandleReadiness serves GET /api/readiness. Readiness can fail
// independently from health.
func (c *Checker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if c.injector.Chance(0.08) {
		c.logger.Warn("service not ready")
		c.errh.WriteError(w, r, http.StatusServiceUnavailable,
			"Service not ready to accept traffic")
		return
	}

	deps := map[string]bool{
		"database_migration": c.injector.Chance(0.75),
		"config_loaded":      true,
		"cache_warmed":       c.injector.Chance(0.66),
	}

	failed := []string{}
	for name, ready := range deps {
		if !ready {
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		c.logger.Warn("dependencies not ready", zap.Strings("failed", failed))
		c.errh.RecordFailure(r, http.StatusServiceUnavailable, "dependencies not ready")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ready":               false,
			"timestamp":           time.Now().UTC(),
			"dependencies":        deps,
			"failed_dependencies": failed,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":        true,
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	})
}

// HandleLiveness serves GET /api/liveness.
func (c *Checker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	if c.injector.Chance(0.02) {
		c.logger.Error("liveness check failed")
		c.errh.WriteError(w, r, http.StatusServiceUnavailable,
			"Application is in unrecoverable state")
		return
	}

	proc, _ := c.system.Process()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC(),
		"pid":            proc.PID,
		"uptime_seconds": c.Uptime(),
	})
}

func formatIssue(prefix string, pct float64) string {
	return fmt.Sprintf("%s: %.1f%%", prefix, pct)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
