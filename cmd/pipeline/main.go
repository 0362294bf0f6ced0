// Command pipeline runs the full index-options analytics pipeline:
// ingestor, candle assembler, analyzer, and persisters, wired together
// through the event log and supervised for crash-restart and graceful
// shutdown. Structured after cmd/mdengine/main.go's single-process
// wiring, generalized from a hand-built goroutine fan-out to named
// workers under internal/orchestrator.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"indexpanic-sysv1/config"
	"indexpanic-sysv1/internal/analyzer"
	"indexpanic-sysv1/internal/candle"
	"indexpanic-sysv1/internal/eventlog"
	"indexpanic-sysv1/internal/ingest"
	"indexpanic-sysv1/internal/logger"
	"indexpanic-sysv1/internal/markethours"
	"indexpanic-sysv1/internal/metrics"
	"indexpanic-sysv1/internal/model"
	"indexpanic-sysv1/internal/orchestrator"
	"indexpanic-sysv1/internal/persist"
)

const (
	streamTicks   = "ticks"
	streamCandles = "candles"
	streamSignals = "signals"
)

func main() {
	log := logger.Init("pipeline", slog.LevelInfo)
	log.Info("starting")

	cfg := config.Load()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("run", time.Now()))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var log_ eventlog.Log
	if cfg.EventLogBackend == "memory" {
		log_ = eventlog.NewMemory(int(cfg.StreamMaxLen))
		log.Info("using in-memory event log backend")
	} else {
		redisLog, err := eventlog.NewRedis(eventlog.RedisConfig{
			Addr: cfg.RedisAddr, Password: cfg.RedisPassword, MaxLen: cfg.StreamMaxLen,
		})
		if err != nil {
			log.Error("redis event log init failed", "error", err)
			os.Exit(1)
		}
		breaker := eventlog.NewCircuitBreaker(5, 30*time.Second)
		breaker.OnStateChange = func(from, to eventlog.State) {
			log.Warn("event log circuit breaker transition", "from", from, "to", to)
			prom.EventLogCircuitBreakerState.Set(float64(to))
			if to == eventlog.StateOpen {
				prom.EventLogCircuitBreakerTrips.Inc()
			}
		}
		log_ = eventlog.NewCircuitBreakerLog(redisLog, breaker)
	}
	health.SetEventLogOK(true)

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Error("creating sqlite dir", "error", err)
		os.Exit(1)
	}
	store, err := persist.Open(cfg.SQLitePath)
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	health.SetSQLiteOK(true)

	sup := &orchestrator.Supervisor{
		MaxCrashes:  cfg.MaxCrashes,
		CrashWindow: cfg.CrashWindow,
		OnRestart: func(worker string) {
			prom.WorkerRestarts.WithLabelValues(worker).Inc()
		},
		OnGiveUp: func(worker string) {
			log.Error("worker exhausted its restart budget, shutting down", "worker", worker)
			cancel()
		},
	}

	// ---- Ingestor ----
	decoder := ingest.JSONDecoder{Location: markethours.IST}
	ingestor := ingest.New(ingest.Config{
		FeedURL:    cfg.FeedURL,
		Decoder:    decoder,
		Log:        log_,
		OutStream:  streamTicks,
		MinBackoff: cfg.ReconnectMinBackoff,
		MaxBackoff: cfg.ReconnectMaxBackoff,
		OnTickDecoded: func() {
			prom.TicksIngested.Inc()
			health.SetLastTickTime(time.Now())
		},
		OnTickDropped: func() { prom.TicksDropped.Inc() },
		OnReconnect:   func() { prom.WSReconnects.Inc(); health.SetFeedConnected(false) },
	})
	sup.Supervise(ctx, orchestrator.Worker{Name: "ingestor", Run: ingestor.Run})
	health.SetFeedConnected(true)

	// ---- Tick consumer: drains the ticks stream into the assembler ----
	ticksCh := make(chan candle.Delivery, 10000)
	sup.Supervise(ctx, orchestrator.Worker{
		Name: "tick-consumer",
		Run:  tickConsumer(log_, ticksCh, log),
	})

	// ---- Candle Assembler ----
	assembler := candle.NewAssembler(markethours.IST, cfg.ScorerWeights, cfg.AssemblerSweepInterval)
	assembler.OnLateTick = func(string) { prom.LateTicks.Inc() }
	candlesCh := make(chan model.Candle, 5000)
	sup.Supervise(ctx, orchestrator.Worker{
		Name: "assembler",
		Run: func(ctx context.Context) error {
			assembler.Run(ctx, ticksCh, candlesCh)
			return nil
		},
	})

	// ---- Candle publisher: assembler's output channel onto the candles stream ----
	sup.Supervise(ctx, orchestrator.Worker{
		Name: "candle-publisher",
		Run:  candlePublisher(log_, candlesCh, prom, log),
	})

	// ---- Analyzer ----
	az := &analyzer.Analyzer{
		Log: log_, InStream: streamCandles, OutStream: streamSignals,
		Group: "analyzer", Consumer: "analyzer-1", BlockFor: time.Duration(cfg.ConsumerBlockMs) * time.Millisecond,
		Thresholds: cfg.DetectorThresholds,
	}
	sup.Supervise(ctx, orchestrator.Worker{Name: "analyzer", Run: az.Run})

	// ---- Persisters ----
	candlePersister := &persist.CandlePersister{
		Log: log_, Store: store, Stream: streamCandles, Group: "persister",
		Consumer: "persister-1", BlockFor: time.Duration(cfg.ConsumerBlockMs) * time.Millisecond,
	}
	sup.Supervise(ctx, orchestrator.Worker{Name: "candle-persister", Run: candlePersister.Run})

	signalPersister := &persist.SignalPersister{
		Log: log_, Store: store, Stream: streamSignals, Group: "persister",
		Consumer: "persister-1", BlockFor: time.Duration(cfg.ConsumerBlockMs) * time.Millisecond,
	}
	sup.Supervise(ctx, orchestrator.Worker{Name: "signal-persister", Run: signalPersister.Run})

	// ---- PEL reclaim sweep ----
	sup.Supervise(ctx, orchestrator.Worker{
		Name: "pel-reclaimer",
		Run:  pelReclaimer(log_, cfg, prom, log),
	})

	log.Info("all workers started")

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case <-ctx.Done(): // a worker exhausted its restart budget
	}

	orchestrator.Shutdown(cancel, sup, cfg.ShutdownGrace,
		closerFunc(metricsSrv.Stop),
		store,
		log_,
	)
	log.Info("shutdown complete")
}

// tickConsumer reads decoded ticks off the event log and forwards them to
// the assembler's input channel as a candle.Delivery. The entry is acked
// only by the assembler's Ack callback, once it has actually folded the
// tick into an accumulator (or dropped it as late) — not at hand-off time
// — so a crash between publish-to-channel and fold leaves the entry
// pending for redelivery instead of silently lost (spec §4.1).
func tickConsumer(l eventlog.Log, out chan<- candle.Delivery, log *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		const group, consumer = "assembler", "assembler-1"
		if err := l.EnsureGroup(ctx, streamTicks, group); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			entries, err := l.ReadGroup(ctx, streamTicks, group, consumer, 500, time.Second)
			if err != nil {
				log.Warn("tick readgroup error", append(logger.LogWithTrace(ctx), "error", err)...)
				continue
			}
			for _, e := range entries {
				var t model.Tick
				if err := decodeJSON(e.Payload, &t); err != nil {
					l.Ack(ctx, streamTicks, group, e.ID)
					continue
				}
				entryID := e.ID
				delivery := candle.Delivery{
					Tick: t,
					Ack:  func() { l.Ack(ctx, streamTicks, group, entryID) },
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// candlePublisher drains the assembler's output channel onto the candles
// stream.
func candlePublisher(l eventlog.Log, in <-chan model.Candle, prom *metrics.Metrics, log *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case c, ok := <-in:
				if !ok {
					return nil
				}
				payload := c.JSON()
				if _, err := l.Publish(ctx, streamCandles, payload); err != nil {
					log.Warn("candle publish error", append(logger.LogWithTrace(ctx), "instrument_key", c.InstrumentKey, "error", err)...)
					continue
				}
				prom.CandlesEmitted.Inc()
			}
		}
	}
}

// pelReclaimer periodically claims stale pending entries over to the
// "reclaimer" consumer and records the reclaim and pending-entry counts.
// No worker reads as "reclaimer", so claimed entries are not processed
// again; and only one group per stream is swept (the candles stream's
// "persister" group is not).
func pelReclaimer(l eventlog.Log, cfg *config.Config, prom *metrics.Metrics, log *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.PELReclaimInterval)
		defer ticker.Stop()
		streams := map[string]string{streamTicks: "assembler", streamCandles: "analyzer", streamSignals: "persister"}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for stream, group := range streams {
					reclaimed, err := l.ReclaimStale(ctx, stream, group, "reclaimer", cfg.PELMinIdle, 100)
					if err != nil {
						log.Warn("pel reclaim error", append(logger.LogWithTrace(ctx), "stream", stream, "group", group, "error", err)...)
						continue
					}
					if len(reclaimed) > 0 {
						prom.PELMessagesReclaimed.Add(float64(len(reclaimed)))
					}
					pending, err := l.PendingCount(ctx, stream, group)
					if err == nil {
						prom.PendingEntries.WithLabelValues(stream).Set(float64(pending))
					}
				}
			}
		}
	}
}

type closerFunc func(ctx context.Context)

func (f closerFunc) Close() error {
	f(context.Background())
	return nil
}

func decodeJSON(payload []byte, v interface{}) error {
	return json.Unmarshal(payload, v)
}
