// Package orchestrator supervises the pipeline's worker goroutines:
// restart-on-crash with a backoff floor, crash-count escalation within a
// sliding window, and an ordered graceful-shutdown sequence (spec §4.7).
// Grounded on cmd/mdengine/main.go's context-cancellation shutdown shape,
// generalized from a hand-wired goroutine fan-out into a named-worker
// supervision loop.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"indexpanic-sysv1/internal/logger"
)

// Worker is one supervised unit of pipeline work. Run should block until
// ctx is cancelled or an unrecoverable error occurs.
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor restarts each worker on crash, with a minimum 1s backoff
// between restarts and escalation once a worker crashes more than
// MaxCrashes times within CrashWindow (spec §4.7/§9: a worker that crash-loops faster than
// it can make progress is stopped rather than restarted forever).
type Supervisor struct {
	MaxCrashes  int
	CrashWindow time.Duration

	OnRestart func(worker string)
	OnGiveUp  func(worker string)

	mu sync.Mutex
	wg sync.WaitGroup
}

const minRestartBackoff = time.Second

// Supervise starts w in its own goroutine and restarts it on error until
// ctx is cancelled, the worker gives up (Run returns nil after a clean
// shutdown), or it exceeds the crash budget.
func (s *Supervisor) Supervise(ctx context.Context, w Worker) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx, w)
	}()
}

func (s *Supervisor) runLoop(ctx context.Context, w Worker) {
	var crashes []time.Time

	for {
		if ctx.Err() != nil {
			return
		}

		err := w.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		slog.Warn("worker crashed", append(logger.LogWithTrace(ctx), "worker", w.Name, "error", err)...)

		now := time.Now()
		crashes = append(crashes, now)
		crashes = withinWindow(crashes, now, s.CrashWindow)

		if s.MaxCrashes > 0 && len(crashes) > s.MaxCrashes {
			slog.Error("worker exceeded crash budget, giving up", append(logger.LogWithTrace(ctx), "worker", w.Name, "max_crashes", s.MaxCrashes, "crash_window", s.CrashWindow)...)
			if s.OnGiveUp != nil {
				s.OnGiveUp(w.Name)
			}
			return
		}

		if s.OnRestart != nil {
			s.OnRestart(w.Name)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(minRestartBackoff):
		}
	}
}

func withinWindow(crashes []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := crashes[:0]
	for _, c := range crashes {
		if c.After(cutoff) {
			kept = append(kept, c)
		}
	}
	return kept
}

// Wait blocks until every supervised worker has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Closer is any resource that must be closed as part of shutdown.
type Closer interface {
	Close() error
}

// Shutdown cancels ctx, which stops every supervised worker at the same
// time, waits up to grace for all of them to return, then closes shared
// resources in the given order (innermost/most-downstream last). Workers
// are not stopped one after another: the ingestor is not stopped ahead of
// the others, and nothing waits for the assembler's output to be drained
// downstream before the downstream workers stop.
func Shutdown(cancel context.CancelFunc, sup *Supervisor, grace time.Duration, closers ...Closer) {
	cancel()

	done := make(chan struct{})
	go func() {
		sup.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		slog.Warn("shutdown grace period elapsed with workers still draining", "grace", grace)
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Error("close error", "error", err)
		}
	}
}

// RunFunc adapts a context-accepting function with no return value into a
// Worker.Run that never errors, for workers (like a metrics server) that
// don't participate in crash-restart semantics.
func RunFunc(fn func(ctx context.Context)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		fn(ctx)
		return nil
	}
}
