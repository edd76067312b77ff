package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/rpc-dashboard/internal/circuitbreaker"
	"github.com/yourorg/rpc-dashboard/internal/collect"
	"github.com/yourorg/rpc-dashboard/internal/config"
	"github.com/yourorg/rpc-dashboard/internal/fetch"
	"github.com/yourorg/rpc-dashboard/internal/metrics"
	"github.com/yourorg/rpc-dashboard/internal/security"
	"github.com/yourorg/rpc-dashboard/internal/types"
	"github.com/yourorg/rpc-dashboard/internal/updater"
)

// startTime records when the process started for uptime reporting
var startTime = time.Now()

// StateRefresher runs one state refresh pass
type StateRefresher interface {
	Run(ctx context.Context) (updater.Result, error)
}

// PassRunner runs one collection pass for a blockchain
type PassRunner interface {
	Run(ctx context.Context, chain types.Blockchain) (*collect.Report, error)
}

// Server exposes health, metrics and the pass triggers over HTTP
type Server struct {
	cfg       config.Config
	endpoints *config.Endpoints

	refresher StateRefresher
	collector PassRunner

	auth      *security.Authorizer
	rateLimit *rate.Limiter
	metrics   *metrics.Metrics
	registry  prometheus.Gatherer
	breakers  *circuitbreaker.Group

	startScheduler func() error
	server         *http.Server
}

// NewServer creates a server over the wired application
func NewServer(a *app) *Server {
	s := &Server{
		cfg:            a.cfg,
		endpoints:      a.endpoints,
		refresher:      a.updater,
		collector:      a.collector,
		auth:           a.auth,
		rateLimit:      rate.NewLimiter(rate.Limit(a.cfg.RateLimitRPS), a.cfg.RateLimitBurst),
		metrics:        a.metrics,
		registry:       a.registry,
		breakers:       a.breakers,
		startScheduler: a.startScheduler,
	}

	logrus.WithFields(logrus.Fields{
		"port":       a.cfg.Port,
		"rate_limit": a.cfg.RateLimitRPS,
		"burst":      a.cfg.RateLimitBurst,
		"schedule":   a.cfg.ScheduleEnabled,
	}).Info("Server initialized")
	return s
}

// routes builds the request multiplexer
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.Handle("GET /api/support/update-state", s.trigger("update-state", s.handleUpdateState))
	mux.Handle("GET /api/read/{blockchain}", s.trigger("read", s.handleRead))

	return mux
}

// trigger wraps a pass handler with auth, rate limiting and request counting
func (s *Server) trigger(route string, h http.HandlerFunc) http.Handler {
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimit.Allow() {
			s.errorResponse(w, route, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h(w, r)
	})
	authed := s.auth.Middleware(limited)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		authed.ServeHTTP(rec, r)
		s.metrics.RecordTrigger(route, strconv.Itoa(rec.status))
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.ScheduleEnabled && s.startScheduler != nil {
		if err := s.startScheduler(); err != nil {
			return err
		}
	}

	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.PassTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("Server stopped")
	return nil
}

// handleHealth is a liveness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus reports configuration and breaker state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	breakers := make(map[string]string)
	for name, st := range s.breakers.States() {
		breakers[name] = st.String()
	}

	chains := make([]string, 0)
	for _, chain := range s.endpoints.Blockchains() {
		chains = append(chains, chain.String())
	}
	supported := make([]string, 0)
	for _, chain := range types.Supported() {
		supported = append(supported, chain.String())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "operational",
		"uptime":      time.Since(startTime).String(),
		"version":     version,
		"environment": s.cfg.Environment,
		"region":      s.cfg.Region,
		"blockchains": chains,
		"supported":   supported,
		"breakers":    breakers,
		"configuration": map[string]any{
			"state_backend": s.cfg.StateBackend,
			"schedule":      s.cfg.ScheduleEnabled,
			"metric_name":   s.cfg.MetricName(),
		},
	})
}

// handleUpdateState runs one refresh pass and returns its summary
func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PassTimeout)
	defer cancel()

	res, err := s.refresher.Run(ctx)
	if err != nil {
		s.errorResponse(w, "update-state", http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRead runs one collection pass for the blockchain in the path
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	chain, err := types.Parse(r.PathValue("blockchain"))
	if err != nil {
		s.errorResponse(w, "read", http.StatusNotFound, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PassTimeout)
	defer cancel()

	report, err := s.collector.Run(ctx, chain)
	switch {
	case errors.Is(err, fetch.ErrNoProviders):
		s.errorResponse(w, "read", http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.errorResponse(w, "read", http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// errorResponse logs and writes a JSON error body
func (s *Server) errorResponse(w http.ResponseWriter, route string, statusCode int, msg string) {
	logrus.WithFields(logrus.Fields{
		"route":  route,
		"status": statusCode,
	}).Warn(msg)

	writeJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  msg,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("Response write failed: %v", err)
	}
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
