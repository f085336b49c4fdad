// Package httpapi is the ambient health/metrics surface the `status`
// command's dependency check and an optional long-running monitor process
// expose, grounded on the teacher's internal/interfaces/http.Server: a
// gorilla/mux router with small logging/request-id middleware, local-only
// by default, serving GET-only JSON endpoints plus a Prometheus handler.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Checker reports one dependency's health. Returning a non-nil error marks
// the dependency unhealthy; the message is included in the response but
// never the underlying error's internals (spec §7: "internals ... are
// logged only").
type Checker func(ctx context.Context) error

// Server is the ambient health/metrics HTTP surface (spec §6 `status`
// command, DOMAIN STACK gorilla/mux entry).
type Server struct {
	router *mux.Router
	server *http.Server
	checks map[string]Checker
}

// NewServer builds a Server bound to addr, with checks registered by name
// (e.g. "database", "quarantine") and metricsHandler serving /metrics
// (promhttp.Handler() when nil).
func NewServer(addr string, checks map[string]Checker, metricsHandler http.Handler) *Server {
	s := &Server{router: mux.NewRouter(), checks: checks}
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	} else {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// healthReport is the /healthz response body.
type healthReport struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

type componentStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	report := healthReport{Status: "HEALTHY", Components: make(map[string]componentStatus, len(s.checks)), CheckedAt: time.Now().UTC()}
	allHealthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			allHealthy = false
			report.Components[name] = componentStatus{Healthy: false, Error: err.Error()}
			continue
		}
		report.Components[name] = componentStatus{Healthy: true}
	}
	if !allHealthy {
		report.Status = "UNHEALTHY"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Str("request_id", requestID).Str("method", r.Method).
			Str("path", r.URL.Path).Dur("duration", time.Since(start)).Msg("httpapi request")
	})
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("httpapi server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// CheckAll runs every check synchronously without starting a server, used
// by the `status` CLI command for a one-shot dependency health check.
func CheckAll(ctx context.Context, checks map[string]Checker) map[string]error {
	out := make(map[string]error, len(checks))
	for name, check := range checks {
		out[name] = check(ctx)
	}
	return out
}
