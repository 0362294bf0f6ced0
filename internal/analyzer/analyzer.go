// Package analyzer runs the worker that consumes finalized candles,
// invokes the seller-state detector, and publishes signals (spec §4.5).
// Structured as a consumer-group loop like internal/persist, since its
// job is also "read one stream, transform, publish/ack" — grounded on
// internal/store/redis/reader.go's consume loop shape.
package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"indexpanic-sysv1/internal/analytics"
	"indexpanic-sysv1/internal/eventlog"
	"indexpanic-sysv1/internal/logger"
	"indexpanic-sysv1/internal/model"
)

// Analyzer consumes the "candles" stream and publishes model.Signal to the
// "signals" stream.
type Analyzer struct {
	Log      eventlog.Log
	InStream string
	OutStream string
	Group    string
	Consumer string
	BlockFor time.Duration

	Thresholds analytics.DetectorThresholds
}

// Run consumes until ctx is cancelled.
func (a *Analyzer) Run(ctx context.Context) error {
	if err := a.Log.EnsureGroup(ctx, a.InStream, a.Group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := a.Log.ReadGroup(ctx, a.InStream, a.Group, a.Consumer, 100, a.BlockFor)
		if err != nil {
			slog.Warn("readgroup error", append(logger.LogWithTrace(ctx), "error", err)...)
			continue
		}

		for _, e := range entries {
			var c model.Candle
			if err := json.Unmarshal(e.Payload, &c); err != nil {
				slog.Error("decode error, dropping entry", append(logger.LogWithTrace(ctx), "entry_id", e.ID, "error", err)...)
				a.Log.Ack(ctx, a.InStream, a.Group, e.ID)
				continue
			}

			sig := a.analyze(c)
			payload, err := json.Marshal(sig)
			if err != nil {
				slog.Error("signal encode error", append(logger.LogWithTrace(ctx), "instrument_key", c.InstrumentKey, "error", err)...)
				continue
			}
			if _, err := a.Log.Publish(ctx, a.OutStream, payload); err != nil {
				slog.Error("signal publish error", append(logger.LogWithTrace(ctx), "instrument_key", c.InstrumentKey, "error", err)...)
				continue
			}
			if err := a.Log.Ack(ctx, a.InStream, a.Group, e.ID); err != nil {
				slog.Warn("ack error", append(logger.LogWithTrace(ctx), "entry_id", e.ID, "error", err)...)
			}
		}
	}
}

// analyze runs the detector over one candle and builds the signal record.
func (a *Analyzer) analyze(c model.Candle) model.Signal {
	// TBQ/TSQ both zero means the candle never observed a live order book, so
	// order_book_ratio/bid_ask_spread are the empty-book sentinel values and
	// must not be treated as real detector inputs.
	hasOrderBook := c.TBQ != 0 || c.TSQ != 0

	var orderBookRatio *decimal.Decimal
	if hasOrderBook {
		r := c.OrderBookRatio
		orderBookRatio = &r
	}
	var bidAskSpread *decimal.Decimal
	if hasOrderBook {
		s := c.BidAskSpread
		bidAskSpread = &s
	}
	vwap := c.VWAP

	result := analytics.Detect(analytics.DetectInputs{
		OIChangePct:    c.OIChangePct,
		Close:          c.Close,
		PreviousClose:  c.PreviousClose,
		VWAP:           &vwap,
		GammaSpike:     c.GammaSpike,
		OrderBookRatio: orderBookRatio,
		BidAskSpread:   bidAskSpread,
	}, a.Thresholds)

	return model.Signal{
		InstrumentKey:      c.InstrumentKey,
		CandleTimestamp:    c.CandleTimestamp,
		SignalTimestamp:    time.Now(),
		SellerState:        result.State,
		Recommendation:     result.Recommendation,
		Confidence:         result.Confidence,
		PanicScore:         result.PanicScore,
		ShortCovering:      result.ShortCovering,
		GammaSpikeDetected: result.GammaSpikeDetected,
		OrderBookPanic:     result.OrderBookPanic,
		LiquidityDrying:    result.LiquidityDrying,
		StrongBuying:       result.StrongBuying,
		FiredSignals:       result.FiredSignals,
		EntryPrice:         c.Close,
		Support:            c.Support,
		Resistance:         c.Resistance,
		CandleScore:        c.CandleScore,
		OIChange:           c.OIChange,
		OIChangePct:        c.OIChangePct,
	}
}
