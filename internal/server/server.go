// Package server assembles the router, middleware chain, and HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/telemetry-lab/faultline/internal/apierrors"
	"github.com/telemetry-lab/faultline/internal/config"
	"github.com/telemetry-lab/faultline/internal/handler"
	"github.com/telemetry-lab/faultline/internal/health"
	"github.com/telemetry-lab/faultline/internal/latency"
	"github.com/telemetry-lab/faultline/internal/metrics"
	"github.com/telemetry-lab/faultline/internal/middleware"
	"github.com/telemetry-lab/faultline/internal/tracking"
)

// Deps bundles everything the server composes.
type Deps struct {
	Config  *config.Config
	Handler *handler.Handler
	Health  *health.Checker
	Errors  *apierrors.Handler
	Tracker *tracking.Aggregator
	Latency *latency.Tracker
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Server is the demo HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds the router and wraps it in the middleware chain.
func New(d Deps) *Server {
	r := mux.NewRouter()

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		d.Errors.WriteError(w, req, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		d.Errors.WriteError(w, req, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/", d.Handler.Root).Methods(http.MethodGet)
	r.HandleFunc("/ping", d.Handler.Ping).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", d.Health.Handle).Methods(http.MethodGet)
	api.HandleFunc("/health/deep", d.Health.HandleDeep).Methods(http.MethodGet)
	api.HandleFunc("/readiness", d.Health.HandleReadiness).Methods(http.MethodGet)
	api.HandleFunc("/liveness", d.Health.HandleLiveness).Methods(http.MethodGet)
	api.HandleFunc("/metrics", d.Health.HandleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/health-simulation/enable", d.Handler.HealthSimulationEnable).Methods(http.MethodPost)
	api.HandleFunc("/health-simulation/status", d.Handler.HealthSimulationStatus).Methods(http.MethodGet)

	api.HandleFunc("/users", d.Handler.CreateUser).Methods(http.MethodPost)
	api.HandleFunc("/users", d.Handler.ListUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", d.Handler.GetUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", d.Handler.DeleteUser).Methods(http.MethodDelete)

	api.HandleFunc("/simulate-work", d.Handler.SimulateWork).Methods(http.MethodGet)
	api.HandleFunc("/trigger-error/{code}", d.Handler.TriggerError).Methods(http.MethodPost)
	api.HandleFunc("/error-simulation/enable", d.Handler.ErrorSimulationEnable).Methods(http.MethodPost)
	api.HandleFunc("/error-simulation/status", d.Handler.ErrorSimulationStatus).Methods(http.MethodGet)
	api.HandleFunc("/error-tracking", d.Handler.ErrorTracking).Methods(http.MethodGet)
	api.HandleFunc("/reset-errors", d.Handler.ResetErrors).Methods(http.MethodPost)

	api.HandleFunc("/predict", d.Handler.Predict).Methods(http.MethodPost)
	api.HandleFunc("/train", d.Handler.Train).Methods(http.MethodGet)
	api.HandleFunc("/data", d.Handler.Data).Methods(http.MethodGet)

	api.HandleFunc("/dashboard-data", d.Handler.DashboardData).Methods(http.MethodGet)
	api.HandleFunc("/chaos-monkey", d.Handler.ChaosMonkey).Methods(http.MethodPost)
	api.HandleFunc("/load-test", d.Handler.LoadTest).Methods(http.MethodPost)

	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logging(d.Logger, d.Latency),
	}
	if d.Metrics != nil {
		chain = append(chain, metrics.Middleware(d.Metrics))
	}
	chain = append(chain,
		middleware.Tracking(d.Tracker, d.Errors, d.Logger),
		middleware.CORS([]string{"*"}),
	)
	if d.Config.RateLimiter.Enabled {
		limiter := middleware.NewRateLimiter(
			d.Config.RateLimiter.RequestsPerSecond,
			d.Config.RateLimiter.BurstSize,
			d.Errors,
			d.Logger,
		)
		chain = append(chain, limiter.Limit)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", d.Config.Server.Port),
			Handler:      middleware.Chain(chain...)(r),
			ReadTimeout:  d.Config.Server.ReadTimeout,
			WriteTimeout: d.Config.Server.WriteTimeout,
			IdleTimeout:  d.Config.Server.IdleTimeout,
		},
		logger: d.Logger,
	}
}

// Handler returns the fully wrapped root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
