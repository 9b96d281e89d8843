// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesArchived prometheus.Counter
	HistoryAppended  *prometheus.CounterVec // kind=nickname|activity
	BackfillChannels *prometheus.CounterVec // result=completed|skipped|failed
	StoreErrors      *prometheus.CounterVec // op
	GameRounds       *prometheus.CounterVec // outcome=won|timeout|aborted

	// Histograms (seconds)
	ReconcileDuration prometheus.Observer

	// Gauges
	GameSessionsActive prometheus.Gauge
	DBOpenConns        prometheus.Gauge
	DBInUseConns       prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesArchived = promauto.NewCounter(prometheus.CounterOpts{Name: "staticord_messages_archived_total", Help: "Messages upserted into the archive"})
		HistoryAppended = promauto.NewCounterVec(prometheus.CounterOpts{Name: "staticord_history_rows_appended_total", Help: "Nickname and activity history rows appended"}, []string{"kind"})
		BackfillChannels = promauto.NewCounterVec(prometheus.CounterOpts{Name: "staticord_backfill_channels_total", Help: "Channel backfill passes by result"}, []string{"result"})
		StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "staticord_store_errors_total", Help: "Failed store operations"}, []string{"op"})
		GameRounds = promauto.NewCounterVec(prometheus.CounterOpts{Name: "staticord_game_rounds_total", Help: "Guessing game rounds by outcome"}, []string{"outcome"})
		ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "staticord_reconcile_duration_seconds",
			Help:    "Duration of one guild reconciliation pass",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		})
		GameSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "staticord_game_sessions_active", Help: "Guessing game sessions currently running"})
		DBOpenConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "staticord_db_open_connections", Help: "Open database connections"})
		DBInUseConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "staticord_db_in_use_connections", Help: "Database connections in use"})
	})
}

// IncMessagesArchived counts one archived message.
func IncMessagesArchived() {
	if MessagesArchived != nil {
		MessagesArchived.Inc()
	}
}

// IncHistoryAppended counts one appended history row of the given kind.
func IncHistoryAppended(kind string) {
	if HistoryAppended != nil {
		HistoryAppended.WithLabelValues(kind).Inc()
	}
}

// IncBackfill counts one channel backfill pass with its result.
func IncBackfill(result string) {
	if BackfillChannels != nil {
		BackfillChannels.WithLabelValues(result).Inc()
	}
}

// IncStoreError counts a failed store operation.
func IncStoreError(op string) {
	if StoreErrors != nil {
		StoreErrors.WithLabelValues(op).Inc()
	}
}

// IncGameRound counts a finished game round.
func IncGameRound(outcome string) {
	if GameRounds != nil {
		GameRounds.WithLabelValues(outcome).Inc()
	}
}

// AddGameSessions moves the active sessions gauge by delta.
func AddGameSessions(delta int) {
	if GameSessionsActive != nil {
		GameSessionsActive.Add(float64(delta))
	}
}

// UpdateDatabasePoolMetrics records the connection pool state.
func UpdateDatabasePoolMetrics(open, inUse int) {
	if DBOpenConns != nil {
		DBOpenConns.Set(float64(open))
	}
	if DBInUseConns != nil {
		DBInUseConns.Set(float64(inUse))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
