// Package candle assembles one-minute OHLC candles from option ticks,
// grounded on internal/marketdata/agg.Aggregator's single-goroutine,
// channel-driven structure, adapted from second-bucket price bars to
// minute-keyed option candles carrying order-book and Greek aggregates
// (spec §4.3).
package candle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"indexpanic-sysv1/internal/analytics"
	"indexpanic-sysv1/internal/model"
)

// Assembler owns one Accumulator per instrument and finalizes it either
// when a tick for a strictly later minute arrives, or when the periodic
// sweep notices the instrument has gone quiet (spec §4.3: "finalize on
// next-minute tick, or after a 30s sweep for instruments with no ticks").
type Assembler struct {
	mu           sync.Mutex
	accumulators map[string]*Accumulator
	lastOI       map[string]int64 // OI of the most recently finalized candle, per instrument

	loc           *time.Location
	weights       analytics.ScorerWeights
	sweepInterval time.Duration

	OnLateTick func(instrumentKey string) // observability hook; late tick was dropped
}

// NewAssembler builds an Assembler. loc is the market timezone used to
// evaluate the sweep's "current minute" against each accumulator's minute.
func NewAssembler(loc *time.Location, weights analytics.ScorerWeights, sweepInterval time.Duration) *Assembler {
	return &Assembler{
		accumulators:  make(map[string]*Accumulator),
		lastOI:        make(map[string]int64),
		loc:           loc,
		weights:       weights,
		sweepInterval: sweepInterval,
	}
}

// Delivery carries one tick alongside the Ack callback that must fire once
// the tick has been durably folded into an accumulator (or deliberately
// dropped as a late tick) — not merely handed off to this package. Ack is
// nil-safe to call; callers that don't need delivery acknowledgement (e.g.
// tests) may leave it nil.
type Delivery struct {
	Tick model.Tick
	Ack  func()
}

// Run consumes deliveries until ticks closes or ctx is cancelled, emitting
// finalized candles to candles. On exit, all in-progress accumulators are
// flushed so no partial minute is silently lost. Each delivery's Ack fires
// only after processTick has applied it (or dropped it as late), so a crash
// between the event log hand-off and the fold leaves the entry pending for
// redelivery rather than silently acknowledged (spec §4.1 at-least-once).
func (a *Assembler) Run(ctx context.Context, ticks <-chan Delivery, candles chan<- model.Candle) {
	sweep := time.NewTicker(a.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(candles)
			return

		case d, ok := <-ticks:
			if !ok {
				a.flushAll(candles)
				return
			}
			a.processTick(d.Tick, candles)
			if d.Ack != nil {
				d.Ack()
			}

		case <-sweep.C:
			a.sweepQuiet(time.Now().In(a.loc), candles)
		}
	}
}

// processTick folds one tick into its instrument's accumulator, finalizing
// the previous one first if the tick belongs to a strictly later minute.
// A tick for a minute strictly before the active accumulator's is a late
// tick (its minute already finalized or about to be) and is dropped.
func (a *Assembler) processTick(t model.Tick, candles chan<- model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, exists := a.accumulators[t.InstrumentKey]

	switch {
	case !exists:
		acc = NewAccumulator(t.InstrumentKey, t.CandleMinute)
		a.accumulators[t.InstrumentKey] = acc

	case t.CandleMinute.After(acc.Minute):
		finalized := a.finalizeLocked(acc)
		a.emit(finalized, candles)
		acc = NewAccumulator(t.InstrumentKey, t.CandleMinute)
		a.accumulators[t.InstrumentKey] = acc

	case t.CandleMinute.Before(acc.Minute):
		if a.OnLateTick != nil {
			a.OnLateTick(t.InstrumentKey)
		}
		return
	}

	acc.Apply(t)
}

// sweepQuiet finalizes any accumulator whose minute has fully elapsed
// without a next-minute tick arriving to trigger rollover naturally.
func (a *Assembler) sweepQuiet(now time.Time, candles chan<- model.Candle) {
	currentMinute := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, a.loc)

	a.mu.Lock()
	var finalized []model.Candle
	for key, acc := range a.accumulators {
		if acc.Minute.Before(currentMinute) {
			finalized = append(finalized, a.finalizeLocked(acc))
			delete(a.accumulators, key)
		}
	}
	a.mu.Unlock()

	for _, c := range finalized {
		a.emit(c, candles)
	}
}

// flushAll finalizes every in-progress accumulator, used on shutdown.
func (a *Assembler) flushAll(candles chan<- model.Candle) {
	a.mu.Lock()
	var finalized []model.Candle
	for key, acc := range a.accumulators {
		finalized = append(finalized, a.finalizeLocked(acc))
		delete(a.accumulators, key)
	}
	a.mu.Unlock()

	for _, c := range finalized {
		a.emit(c, candles)
	}
}

// finalizeLocked builds the immutable Candle from an accumulator. Caller
// must hold a.mu. Does not remove acc from a.accumulators.
func (a *Assembler) finalizeLocked(acc *Accumulator) model.Candle {
	ob := analytics.AnalyzeOrderBook(acc.LastBidPrices, acc.LastBidQuantities, acc.LastAskPrices, acc.LastAskQuantities)

	c := model.Candle{
		InstrumentKey:   acc.InstrumentKey,
		CandleTimestamp: acc.Minute,
		Open:            acc.Open,
		High:            acc.High,
		Low:             acc.Low,
		Close:           acc.Close,
		PreviousClose:   acc.PreviousClose,
		Volume:          acc.Volume,
		OI:              acc.OI,
		VWAP:            acc.Close, // documented approximation, spec §4.3 step 5 / §9 open question

		SupportLevels:    ob.SupportLevels,
		Support:          ob.Support,
		ResistanceLevels: ob.ResistanceLevels,
		Resistance:       ob.Resistance,
		TBQ:              ob.TBQ,
		TSQ:              ob.TSQ,
		OrderBookRatio:   ob.OrderBookRatio,
		BidAskSpread:     ob.BidAskSpread,
		BigBidCount:      ob.BigBidCount,
		BigAskCount:      ob.BigAskCount,

		AvgDelta: averageGreek(acc.Deltas),
		AvgGamma: averageGreek(acc.Gammas),
		AvgTheta: averageGreek(acc.Thetas),
		AvgVega:  averageGreek(acc.Vegas),
		AvgRho:   averageGreek(acc.Rhos),
		AvgIV:    averageGreek(acc.IVs),

		TickCount: acc.TickCount,
	}

	if acc.FirstGamma != nil && acc.LastGamma != nil {
		c.GammaSpike = gammaSpike(acc.FirstGamma, acc.LastGamma)
	}

	// prevOI != 0 additionally guards the division below; spec only requires
	// "if present" but a present-and-zero previous OI cannot produce a pct change.
	if prevOI, ok := a.lastOI[acc.InstrumentKey]; ok && prevOI != 0 {
		change := acc.OI - prevOI
		c.OIChange = &change
		pct := decimal.NewFromInt(change).Div(decimal.NewFromInt(prevOI))
		c.OIChangePct = &pct
	}
	a.lastOI[acc.InstrumentKey] = acc.OI

	var orderBookRatio *decimal.Decimal
	if len(acc.LastBidPrices) > 0 || len(acc.LastAskPrices) > 0 {
		r := ob.OrderBookRatio
		orderBookRatio = &r
	}
	var bidAskSpread *decimal.Decimal
	if len(acc.LastBidPrices) > 0 && len(acc.LastAskPrices) > 0 {
		s := ob.BidAskSpread
		bidAskSpread = &s
	}

	c.CandleScore = analytics.Score(analytics.ScoreInputs{
		Volume:         acc.Volume,
		OIChangePct:    c.OIChangePct,
		OrderBookRatio: orderBookRatio,
		High:           acc.High,
		Low:            acc.Low,
		Close:          acc.Close,
		HasOHLC:        true,
		GammaSpike:     c.GammaSpike,
		BidAskSpread:   bidAskSpread,
	}, a.weights)

	return c
}

// emit sends a finalized candle downstream. Non-blocking to avoid one
// stalled consumer wedging the assembler's tick-processing loop.
func (a *Assembler) emit(c model.Candle, candles chan<- model.Candle) {
	select {
	case candles <- c:
	default:
		slog.Warn("candles channel full, dropping candle", "instrument_key", c.InstrumentKey, "candle_timestamp", c.CandleTimestamp)
	}
}
