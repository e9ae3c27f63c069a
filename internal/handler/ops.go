package handler

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/telemetry-lab/faultline/internal/fault"
)

// DashboardData serves GET /api/dashboard-data: one document combining host
// telemetry, application counters, latency percentiles, and the current
// simulation state. Feeds the external observability demo dashboards.
func (h *Handler) DashboardData(w http.ResponseWriter, r *http.Request) {
	if h.injector.Chance(0.03) {
		h.errh.WriteError(w, r, http.StatusServiceUnavailable, "Dashboard data collection failed")
		return
	}

	usage, err := h.system.Usage()
	if err != nil {
		h.logger.Error("telemetry read failed", zap.Error(err))
		h.errh.WriteInternalError(w, r, "System telemetry collection failed")
		return
	}
	proc, _ := h.system.Process()
	network, _ := h.system.Network()
	loadAvg, _ := h.system.LoadAverage()
	bootTime, _ := h.system.BootTime()

	// Toggled corruption: impossible values for dashboards to mishandle.
	if out := h.health.Injector().EvaluateFail("corrupted_metrics", 0.02, fault.FailSpec{}); out.Action == fault.Fail {
		h.logger.Warn("returning corrupted dashboard data")
		usage.CPUPercent = -50
		usage.MemoryPercent = 150
		usage.DiskPercent = -1
	}

	snap := h.tracker.Snapshot()
	apiConfig, _ := h.injector.Status()
	healthConfig, _ := h.health.Injector().Status()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"system": map[string]interface{}{
			"hostname":       h.system.Hostname(),
			"platform":       h.system.Platform(),
			"boot_time":      bootTime,
			"cpu_percent":    usage.CPUPercent,
			"memory_percent": usage.MemoryPercent,
			"disk_percent":   usage.DiskPercent,
			"load_average":   loadAvg,
			"network": map[string]uint64{
				"bytes_sent":   network.BytesSent,
				"bytes_recv":   network.BytesRecv,
				"packets_sent": network.PacketsSent,
				"packets_recv": network.PacketsRecv,
			},
		},
		"application": map[string]interface{}{
			"uptime_seconds":     time.Since(h.started).Seconds(),
			"total_requests":     snap.TotalRequests,
			"total_errors":       snap.TotalErrors,
			"error_rate_percent": snap.ErrorRate,
			"active_connections": proc.Connections,
			"memory_usage_mb":    float64(proc.RSSBytes) / (1024 * 1024),
			"threads":            proc.Threads,
		},
		"performance": map[string]interface{}{
			"avg_response_ms": float64(h.latency.Average()) / float64(time.Millisecond),
			"p50_ms":          float64(h.latency.Percentile(50)) / float64(time.Millisecond),
			"p95_ms":          float64(h.latency.Percentile(95)) / float64(time.Millisecond),
			"p99_ms":          float64(h.latency.Percentile(99)) / float64(time.Millisecond),
			"samples":         h.latency.Count(),
		},
		"simulation": map[string]interface{}{
			"api":    apiConfig,
			"health": healthConfig,
		},
	})
}

// ChaosMonkey serves POST /api/chaos-monkey. Each scenario is an
// independent draw; several can land in one call.
func (h *Handler) ChaosMonkey(w http.ResponseWriter, r *http.Request) {
	events := []string{}

	if h.injector.Chance(0.30) {
		events = append(events, "cpu_spike")
		go burnCPU(2 * time.Second)
	}
	if h.injector.Chance(0.20) {
		events = append(events, "memory_spike")
		go holdMemory(50<<20, 5*time.Second)
	}
	if h.injector.Chance(0.30) {
		delay := h.injector.Uniform(2*time.Second, 5*time.Second)
		events = append(events, "slow_response")
		time.Sleep(delay)
	}
	if h.injector.Chance(0.15) {
		events = append(events, "error_spike")
		if _, err := h.injector.Set(map[string]bool{"random_errors": true}); err == nil {
			time.AfterFunc(10*time.Second, func() {
				h.injector.Set(map[string]bool{"random_errors": false})
				h.logger.Info("error spike ended")
			})
		}
	}
	if h.injector.Chance(0.05) {
		h.logger.Warn("chaos monkey dropped the connection", zap.Strings("events", events))
		h.errh.WriteError(w, r, http.StatusServiceUnavailable, "Chaos monkey dropped the connection")
		return
	}

	status := "chaos unleashed"
	if len(events) == 0 {
		status = "no chaos today"
	}
	h.logger.Info("chaos monkey ran", zap.Strings("events", events))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"events":    events,
		"timestamp": time.Now().UTC(),
	})
}

const (
	loadTestWorkers       = 4
	loadTestOpsPerWorker  = 50
	loadTestMaxWorkers    = 16
	loadTestMaxOpsPerWkr  = 500
	loadTestDBFailureRate = 0.10
)

// LoadTest serves POST /api/load-test: spins up worker goroutines doing
// cpu, allocation, and fake database work, waits for all of them, and
// reports totals. Worker and operation counts come from query parameters,
// clamped to sane bounds.
func (h *Handler) LoadTest(w http.ResponseWriter, r *http.Request) {
	workers, err := queryInt(r, "workers", loadTestWorkers)
	if err != nil || workers <= 0 {
		h.errh.WriteValidationError(w, r, "Workers must be a positive integer")
		return
	}
	ops, err := queryInt(r, "operations", loadTestOpsPerWorker)
	if err != nil || ops <= 0 {
		h.errh.WriteValidationError(w, r, "Operations must be a positive integer")
		return
	}
	if workers > loadTestMaxWorkers {
		workers = loadTestMaxWorkers
	}
	if ops > loadTestMaxOpsPerWkr {
		ops = loadTestMaxOpsPerWkr
	}

	started := time.Now()
	var completed, failed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				// CPU plus allocation churn, then a fake database call.
				sum := 0
				for k := 0; k < 10000; k++ {
					sum += k * k
				}
				buf := make([]byte, 64<<10)
				buf[0] = byte(sum)

				if h.injector.Chance(loadTestDBFailureRate) {
					failed.Add(1)
					continue
				}
				completed.Add(1)
			}
		}()
	}
	wg.Wait()

	h.logger.Info("load test finished",
		zap.Int("workers", workers),
		zap.Int64("completed", completed.Load()),
		zap.Int64("failed", failed.Load()),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "load test completed",
		"workers":              workers,
		"operations_requested": workers * ops,
		"operations_completed": completed.Load(),
		"operations_failed":    failed.Load(),
		"duration_ms":          time.Since(started).Milliseconds(),
		"timestamp":            time.Now().UTC(),
	})
}

func burnCPU(d time.Duration) {
	deadline := time.Now().Add(d)
	x := 0
	for time.Now().Before(deadline) {
		x++
		if x == 1<<30 {
			x = 0
		}
	}
}

func holdMemory(bytes int, d time.Duration) {
	buf := make([]byte, bytes)
	for i := 0; i < len(buf); i += 4096 {
		buf[i] = 1
	}
	time.Sleep(d)
	_ = buf[0]
}
