// Package server exposes the operational HTTP surface: liveness, readiness, archive status and
// Prometheus metrics. It injects correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/staticord/telemetry"
)

const correlationHeader = "X-Correlation-ID"

// NewMux returns the HTTP handler with all routes.
func NewMux(h *Handlers) http.Handler {
	routes := []struct {
		pattern string
		handler http.Handler
	}{
		{"GET /metrics", promhttp.Handler()},
		{"GET /healthz", http.HandlerFunc(h.HandleHealthz)},
		{"GET /readyz", http.HandlerFunc(h.HandleReadyz)},
		{"GET /status", http.HandlerFunc(h.HandleStatus)},
	}
	mux := http.NewServeMux()
	for _, rt := range routes {
		mux.Handle(rt.pattern, traced(rt.pattern, rt.handler))
	}
	return withCorrelation(mux)
}

// withCorrelation reuses the caller's correlation ID or mints one, and echoes it back.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get(correlationHeader)
		if corr == "" {
			corr = uuid.NewString()
		}
		w.Header().Set(correlationHeader, corr)
		next.ServeHTTP(w, r.WithContext(telemetry.WithCorrelation(r.Context(), corr)))
	})
}

// traced wraps one route in a span named after its pattern.
func traced(pattern string, next http.Handler) http.Handler {
	_, route, _ := strings.Cut(pattern, " ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), "http-server", pattern,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(route),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
		if rec.statusCode >= http.StatusInternalServerError {
			telemetry.RecordError(span, fmt.Errorf("HTTP %d", rec.statusCode))
		}
		telemetry.LoggerWithCorr(ctx).Debug("request served",
			slog.String("route", route), slog.Int("status", rec.statusCode),
			slog.Duration("took", time.Since(start)), slog.String("component", "http"))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start serves on addr until ctx is cancelled, then drains in-flight requests for up to 5s.
func Start(ctx context.Context, h *Handlers, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(h),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			slog.Warn("http drain incomplete", slog.Any("err", err), slog.String("component", "http"))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	<-stopped
	return nil
}
