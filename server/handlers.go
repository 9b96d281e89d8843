package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/staticord/db"
	"github.com/onnwee/staticord/telemetry"
)

// Store is the archive view the handlers need. *db.Store implements it.
type Store interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (db.Stats, error)
}

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	store   Store
	gateway func() error
	started time.Time
	version string
}

// NewHandlers creates Handlers. gateway reports whether the chat gateway session is usable;
// nil means it is not checked.
func NewHandlers(store Store, gateway func() error, version string) *Handlers {
	return &Handlers{store: store, gateway: gateway, started: time.Now(), version: version}
}

type statusResponse struct {
	Version       string   `json:"version"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Archive       db.Stats `json:"archive"`
}

// HandleStatus reports archive row counts and process uptime.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("status stats failed", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Archive:       st,
	})
}
