package persist

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"indexpanic-sysv1/internal/eventlog"
	"indexpanic-sysv1/internal/model"
)

type fakeCandleStore struct {
	mu      sync.Mutex
	inserts []model.Candle
	failNext bool
}

func (f *fakeCandleStore) InsertCandle(ctx context.Context, c model.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errInsertFailed
	}
	f.inserts = append(f.inserts, c)
	return nil
}
func (f *fakeCandleStore) Close() error { return nil }

var errInsertFailed = &insertError{}

type insertError struct{}

func (e *insertError) Error() string { return "simulated insert failure" }

func TestCandlePersister_AcksOnlyAfterSuccessfulInsert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := eventlog.NewMemory(0)
	store := &fakeCandleStore{}

	payload, _ := json.Marshal(model.Candle{InstrumentKey: "X", CandleTimestamp: time.Now()})
	log.EnsureGroup(ctx, "candles", "persister")
	log.Publish(ctx, "candles", payload)

	p := &CandlePersister{Log: log, Store: store, Stream: "candles", Group: "persister", Consumer: "c1", BlockFor: time.Millisecond}

	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	deadline := time.After(time.Second)
	for {
		store.mu.Lock()
		n := len(store.inserts)
		store.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for candle to be persisted")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done

	pending, err := log.PendingCount(context.Background(), "candles", "persister")
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if pending != 0 {
		t.Errorf("expected acked entry to leave 0 pending, got %d", pending)
	}
}
