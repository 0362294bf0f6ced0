package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSupervisor_RestartsOnError(t *testing.T) {
	sup := &Supervisor{MaxCrashes: 10, CrashWindow: time.Minute}
	var runs int32

	ctx, cancel := context.WithCancel(context.Background())
	sup.Supervise(ctx, Worker{
		Name: "flaky",
		Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&runs, 1)
			if n < 3 {
				return errors.New("boom")
			}
			<-ctx.Done()
			return nil
		},
	})

	deadline := time.After(5 * time.Second)
	for atomic.LoadInt32(&runs) < 3 {
		select {
		case <-deadline:
			t.Fatal("worker did not restart enough times")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	sup.Wait()
}

func TestSupervisor_GivesUpAfterCrashBudgetExceeded(t *testing.T) {
	sup := &Supervisor{MaxCrashes: 2, CrashWindow: time.Minute}
	var gaveUp int32

	sup.OnGiveUp = func(worker string) { atomic.StoreInt32(&gaveUp, 1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Supervise(ctx, Worker{
		Name: "always-crashes",
		Run:  func(ctx context.Context) error { return errors.New("boom") },
	})

	deadline := time.After(5 * time.Second)
	for atomic.LoadInt32(&gaveUp) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected supervisor to give up after exceeding crash budget")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSupervisor_CleanReturnDoesNotRestart(t *testing.T) {
	sup := &Supervisor{MaxCrashes: 10, CrashWindow: time.Minute}
	var runs int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Supervise(ctx, Worker{
		Name: "clean",
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	sup.Wait()
	if n := atomic.LoadInt32(&runs); n != 1 {
		t.Errorf("expected exactly 1 run for a worker that exits cleanly, got %d", n)
	}
}
