package persist

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"indexpanic-sysv1/internal/eventlog"
	"indexpanic-sysv1/internal/logger"
	"indexpanic-sysv1/internal/model"
)

// CandlePersister drains the "candles" stream via a consumer group and
// writes each candle to a CandleStore, acking only after a successful
// write — redelivery on crash is expected and handled by the store's
// idempotent upsert. Grounded on internal/store/sqlite/writer.go's
// single-goroutine consume-and-flush loop, adapted from a Go channel
// source to an eventlog.Log consumer group.
type CandlePersister struct {
	Log      eventlog.Log
	Store    model.CandleStore
	Stream   string
	Group    string
	Consumer string
	BlockFor time.Duration
}

// Run consumes until ctx is cancelled.
func (p *CandlePersister) Run(ctx context.Context) error {
	if err := p.Log.EnsureGroup(ctx, p.Stream, p.Group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := p.Log.ReadGroup(ctx, p.Stream, p.Group, p.Consumer, 100, p.BlockFor)
		if err != nil {
			slog.Warn("candle readgroup error", append(logger.LogWithTrace(ctx), "error", err)...)
			continue
		}

		for _, e := range entries {
			var c model.Candle
			if err := json.Unmarshal(e.Payload, &c); err != nil {
				slog.Error("candle decode error, dropping entry", append(logger.LogWithTrace(ctx), "entry_id", e.ID, "error", err)...)
				p.Log.Ack(ctx, p.Stream, p.Group, e.ID)
				continue
			}
			if err := p.Store.InsertCandle(ctx, c); err != nil {
				slog.Error("candle insert error, leaving unacked for redelivery", append(logger.LogWithTrace(ctx), "entry_id", e.ID, "error", err)...)
				continue
			}
			if err := p.Log.Ack(ctx, p.Stream, p.Group, e.ID); err != nil {
				slog.Warn("candle ack error", append(logger.LogWithTrace(ctx), "entry_id", e.ID, "error", err)...)
			}
		}
	}
}

// SignalPersister is the signals-stream counterpart of CandlePersister.
type SignalPersister struct {
	Log      eventlog.Log
	Store    model.SignalStore
	Stream   string
	Group    string
	Consumer string
	BlockFor time.Duration
}

func (p *SignalPersister) Run(ctx context.Context) error {
	if err := p.Log.EnsureGroup(ctx, p.Stream, p.Group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := p.Log.ReadGroup(ctx, p.Stream, p.Group, p.Consumer, 100, p.BlockFor)
		if err != nil {
			slog.Warn("signal readgroup error", append(logger.LogWithTrace(ctx), "error", err)...)
			continue
		}

		for _, e := range entries {
			var s model.Signal
			if err := json.Unmarshal(e.Payload, &s); err != nil {
				slog.Error("signal decode error, dropping entry", append(logger.LogWithTrace(ctx), "entry_id", e.ID, "error", err)...)
				p.Log.Ack(ctx, p.Stream, p.Group, e.ID)
				continue
			}
			if err := p.Store.InsertSignal(ctx, s); err != nil {
				slog.Error("signal insert error, leaving unacked for redelivery", append(logger.LogWithTrace(ctx), "entry_id", e.ID, "error", err)...)
				continue
			}
			if err := p.Log.Ack(ctx, p.Stream, p.Group, e.ID); err != nil {
				slog.Warn("signal ack error", append(logger.LogWithTrace(ctx), "entry_id", e.ID, "error", err)...)
			}
		}
	}
}
