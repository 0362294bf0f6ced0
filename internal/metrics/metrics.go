// Package metrics exposes Prometheus counters/histograms/gauges for the
// pipeline and a /healthz liveness endpoint, trimmed and renamed from the
// teacher's larger engine-wide metrics surface (internal/metrics/metrics.go)
// down to this pipeline's four workers: ingestor, assembler, analyzer,
// persister, plus the shared event log.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus instrument the pipeline registers.
// PublishLatency, SignalsEmitted, DetectDuration, PersisterInsertDuration
// and PersisterErrors are registered but not updated by cmd/pipeline, so
// they stay at zero.
type Metrics struct {
	TicksIngested  prometheus.Counter
	TicksDropped   prometheus.Counter
	WSReconnects   prometheus.Counter
	PublishLatency prometheus.Histogram

	CandlesEmitted prometheus.Counter
	LateTicks      prometheus.Counter

	SignalsEmitted  *prometheus.CounterVec // labels: state
	DetectDuration  prometheus.Histogram

	PersisterInsertDuration prometheus.Histogram
	PersisterErrors         prometheus.Counter

	PELMessagesReclaimed prometheus.Counter
	PendingEntries       *prometheus.GaugeVec // labels: stream

	EventLogCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	EventLogCircuitBreakerTrips prometheus.Counter

	WorkerRestarts *prometheus.CounterVec // labels: worker
}

// NewMetrics registers and returns all pipeline instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexpanic_ticks_ingested_total",
			Help: "Total ticks decoded and published to the event log",
		}),
		TicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexpanic_ticks_dropped_total",
			Help: "Ticks dropped by the decoder (malformed frames)",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexpanic_ws_reconnects_total",
			Help: "Total feed reconnection attempts",
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexpanic_publish_latency_seconds",
			Help:    "Event log publish latency",
			Buckets: prometheus.DefBuckets,
		}),

		CandlesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexpanic_candles_emitted_total",
			Help: "Total finalized candles published by the assembler",
		}),
		LateTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexpanic_late_ticks_total",
			Help: "Ticks discarded for belonging to an already-finalized minute",
		}),

		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexpanic_signals_emitted_total",
			Help: "Total signals emitted, by seller state",
		}, []string{"state"}),
		DetectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexpanic_detect_duration_seconds",
			Help:    "Seller-state detector compute latency per candle",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),

		PersisterInsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexpanic_persister_insert_duration_seconds",
			Help:    "SQLite insert latency per candle/signal row",
			Buckets: prometheus.DefBuckets,
		}),
		PersisterErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexpanic_persister_errors_total",
			Help: "Insert errors that left an entry unacked for redelivery",
		}),

		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexpanic_pel_messages_reclaimed_total",
			Help: "Messages reclaimed from dead consumers via XCLAIM",
		}),
		PendingEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indexpanic_pending_entries",
			Help: "Current pending-entries-list size, by stream",
		}, []string{"stream"}),

		EventLogCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexpanic_eventlog_circuit_breaker_state",
			Help: "Event log circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		EventLogCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexpanic_eventlog_circuit_breaker_trips_total",
			Help: "Times the event log circuit breaker tripped open",
		}),

		WorkerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexpanic_worker_restarts_total",
			Help: "Orchestrator-driven worker restarts, by worker name",
		}, []string{"worker"}),
	}

	prometheus.MustRegister(
		m.TicksIngested, m.TicksDropped, m.WSReconnects, m.PublishLatency,
		m.CandlesEmitted, m.LateTicks,
		m.SignalsEmitted, m.DetectDuration,
		m.PersisterInsertDuration, m.PersisterErrors,
		m.PELMessagesReclaimed, m.PendingEntries,
		m.EventLogCircuitBreakerState, m.EventLogCircuitBreakerTrips,
		m.WorkerRestarts,
	)

	return m
}

// HealthStatus tracks process liveness for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected   bool      `json:"feed_connected"`
	LastTickTime    time.Time `json:"last_tick_time"`
	EventLogOK      bool      `json:"event_log_ok"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	EventLogLatencyMs float64 `json:"event_log_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status stamped with the
// current start time.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetEventLogOK(v bool) {
	h.mu.Lock()
	h.EventLogOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckSQLite runs a trivial ping and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected || !h.EventLogOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.EventLogOK && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string `json:"status"`
		Uptime          string `json:"uptime"`
		FeedConnected   bool   `json:"feed_connected"`
		LastTickTime    string `json:"last_tick_time"`
		TickAge         string `json:"tick_age"`
		EventLogOK      bool   `json:"event_log_ok"`
		SQLiteOK        bool   `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		EventLogOK:      h.EventLogOK,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
