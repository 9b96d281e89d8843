package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/staticord/telemetry"
)

// HandleHealthz is the liveness probe: the process is healthy while the archive database answers.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("liveness ping failed", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

type readiness struct {
	Status      string `json:"status"`
	FailedCheck string `json:"failed_check,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HandleReadyz is the readiness probe. It reports the first failing of the database and
// gateway checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{"database", "gateway"} {
		if err := h.check(r.Context(), name); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "not_ready", FailedCheck: name, Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, readiness{Status: "ready"})
}

func (h *Handlers) check(ctx context.Context, name string) error {
	switch name {
	case "database":
		return h.store.Ping(ctx)
	case "gateway":
		if h.gateway != nil {
			return h.gateway()
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
