package handler

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/telemetry-lab/faultline/internal/apierrors"
	"github.com/telemetry-lab/faultline/internal/fault"
	"github.com/telemetry-lab/faultline/internal/health"
	"github.com/telemetry-lab/faultline/internal/latency"
	"github.com/telemetry-lab/faultline/internal/store"
	"github.com/telemetry-lab/faultline/internal/sysinfo"
	"github.com/telemetry-lab/faultline/internal/tracking"
)

// scriptedSource replays fixed draws, then repeats the last one.
type scriptedSource struct {
	draws []float64
	idx   int
}

func (s *scriptedSource) Float64() float64 {
	if s.idx >= len(s.draws) {
		return s.draws[len(s.draws)-1]
	}
	v := s.draws[s.idx]
	s.idx++
	return v
}

func (s *scriptedSource) Intn(n int) int { return 0 }

// newTestHandler builds a handler with real stores, static telemetry, and
// the given fault sources for the api and health subsystems.
func newTestHandler(t *testing.T, apiSrc, healthSrc fault.Source) *Handler {
	t.Helper()

	logger := zap.NewNop()
	agg := tracking.New()
	errh := apierrors.NewHandler(logger, agg)
	system := &sysinfo.Static{CPU: 10, Memory: 40, Disk: 30, RSS: 64 << 20, Conns: 2}

	predictions, err := store.OpenPredictionLog(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("open prediction log: %v", err)
	}
	t.Cleanup(func() { predictions.Close() })

	healthInj := fault.NewInjector("health", fault.HealthCategories, fault.WithSource(healthSrc))
	checker := health.NewChecker(healthInj, system, agg, errh, logger)

	return New(Deps{
		Users:       store.NewUserStore(),
		Predictions: predictions,
		Injector:    fault.NewInjector("api", fault.APICategories, fault.WithSource(apiSrc)),
		Health:      checker,
		Tracker:     agg,
		Errors:      errh,
		System:      system,
		Latency:     latency.NewTracker(128),
		Logger:      logger,
	})
}

func quietHandler(t *testing.T) *Handler {
	// High draws miss every probability.
	return newTestHandler(t,
		&scriptedSource{draws: []float64{0.99}},
		&scriptedSource{draws: []float64{0.99}})
}

func doJSON(h http.HandlerFunc, method, target, body string, vars map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}
