package candle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"indexpanic-sysv1/internal/analytics"
	"indexpanic-sysv1/internal/model"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func minute(h, m int) time.Time {
	return time.Date(2026, 7, 31, h, m, 0, 0, ist)
}

func tickAt(h, m, s int, ltp string) model.Tick {
	return model.Tick{
		InstrumentKey: "NSE_FO:NIFTY25JAN24000CE",
		RawTimestampMs: time.Date(2026, 7, 31, h, m, s, 0, ist).UnixMilli(),
		CandleMinute:  minute(h, m),
		LTP:           dec(ltp),
		Volume:        1000,
		OI:            8_000_000,
	}
}

// S4 — assembler rollover. Five ticks split across two minutes; only the
// first minute's candle is emitted once the second minute's first tick
// triggers finalization.
func TestAssembler_S4_Rollover(t *testing.T) {
	a := NewAssembler(ist, analytics.DefaultScorerWeights(), time.Hour)
	ticks := []model.Tick{
		tickAt(9, 15, 5, "180"),
		tickAt(9, 15, 23, "181"),
		tickAt(9, 15, 47, "179.5"),
		tickAt(9, 16, 2, "182"),
		tickAt(9, 16, 30, "182.5"),
	}

	candles := make(chan model.Candle, 10)
	for _, tk := range ticks {
		a.processTick(tk, candles)
	}

	close(candles)
	var emitted []model.Candle
	for c := range candles {
		emitted = append(emitted, c)
	}

	if len(emitted) != 1 {
		t.Fatalf("expected exactly 1 candle emitted before next-minute trigger resolves, got %d", len(emitted))
	}
	c := emitted[0]
	if !c.CandleTimestamp.Equal(minute(9, 15)) {
		t.Errorf("candle timestamp = %v, want 09:15", c.CandleTimestamp)
	}
	if !c.Open.Equal(dec("180")) || !c.High.Equal(dec("181")) || !c.Low.Equal(dec("179.5")) || !c.Close.Equal(dec("179.5")) {
		t.Errorf("OHLC = %v/%v/%v/%v, want 180/181/179.5/179.5", c.Open, c.High, c.Low, c.Close)
	}
	if c.TickCount != 3 {
		t.Errorf("tick_count = %d, want 3", c.TickCount)
	}

	a.mu.Lock()
	_, stillOpen := a.accumulators["NSE_FO:NIFTY25JAN24000CE"]
	a.mu.Unlock()
	if !stillOpen {
		t.Error("expected the 09:16 accumulator to still be in progress")
	}
}

// S5 — OI change. Two consecutive candles with OI 8,000,000 then
// 7,950,000 should report oi_change = -50,000, oi_change_pct = -0.00625.
func TestAssembler_S5_OIChange(t *testing.T) {
	a := NewAssembler(ist, analytics.DefaultScorerWeights(), time.Hour)
	candles := make(chan model.Candle, 10)

	first := tickAt(9, 15, 0, "180")
	first.OI = 8_000_000
	a.processTick(first, candles)

	second := tickAt(9, 16, 0, "181")
	second.OI = 7_950_000
	a.processTick(second, candles)

	// A 09:17 tick finalizes the 09:16 candle, the one that carries the change.
	a.processTick(tickAt(9, 17, 0, "182"), candles)

	close(candles)
	var emitted []model.Candle
	for c := range candles {
		emitted = append(emitted, c)
	}
	if len(emitted) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(emitted))
	}
	c := emitted[1]
	if c.OIChange == nil || *c.OIChange != -50_000 {
		t.Fatalf("oi_change = %v, want -50000", c.OIChange)
	}
	if c.OIChangePct == nil || !c.OIChangePct.Equal(dec("-0.00625")) {
		t.Fatalf("oi_change_pct = %v, want -0.00625", c.OIChangePct)
	}
}

// First tick of an instrument has no previous candle, so OI-change fields
// stay null (spec §4.3 edge case).
func TestAssembler_FirstCandleHasNilOIChange(t *testing.T) {
	a := NewAssembler(ist, analytics.DefaultScorerWeights(), time.Hour)
	candles := make(chan model.Candle, 10)

	a.processTick(tickAt(9, 15, 0, "180"), candles)
	a.processTick(tickAt(9, 16, 0, "181"), candles)

	c := <-candles
	if c.OIChange != nil || c.OIChangePct != nil {
		t.Errorf("expected nil oi_change fields on first candle, got %v/%v", c.OIChange, c.OIChangePct)
	}
}

// A tick for a minute strictly before the active accumulator's key is
// discarded rather than merged or causing a new accumulator.
func TestAssembler_LateTickIsDropped(t *testing.T) {
	a := NewAssembler(ist, analytics.DefaultScorerWeights(), time.Hour)
	var dropped string
	a.OnLateTick = func(key string) { dropped = key }

	candles := make(chan model.Candle, 10)
	a.processTick(tickAt(9, 16, 0, "180"), candles)
	a.processTick(tickAt(9, 15, 30, "999"), candles) // belongs to an earlier, already-active minute

	if dropped != "NSE_FO:NIFTY25JAN24000CE" {
		t.Errorf("expected late-tick callback to fire, got %q", dropped)
	}

	a.mu.Lock()
	acc := a.accumulators["NSE_FO:NIFTY25JAN24000CE"]
	a.mu.Unlock()
	if acc.Close.Equal(dec("999")) {
		t.Error("late tick must not have been merged into the active accumulator")
	}
}

// A tick whose minute has no open accumulator and arrives after that minute
// was already finalized is itself just treated as creating a fresh
// accumulator only when nothing is open for the instrument; once something
// is open, an older minute is dropped (covered above). This test exercises
// the periodic sweep finalizing a quiet instrument without a next tick.
func TestAssembler_SweepFinalizesQuietInstrument(t *testing.T) {
	a := NewAssembler(ist, analytics.DefaultScorerWeights(), time.Hour)
	candles := make(chan model.Candle, 10)

	a.processTick(tickAt(9, 15, 0, "180"), candles)
	a.sweepQuiet(minute(9, 16), candles)

	select {
	case c := <-candles:
		if !c.CandleTimestamp.Equal(minute(9, 15)) {
			t.Errorf("swept candle timestamp = %v, want 09:15", c.CandleTimestamp)
		}
	default:
		t.Fatal("expected sweep to finalize the 09:15 accumulator")
	}
}

// Invariant 5: the emitted candle's OHLC and tick_count do not depend on
// tick arrival order within the minute. The ticks carry gamma, but
// gamma_spike follows arrival order and is not compared here.
func TestAssembler_OrderIndependenceWithinMinute(t *testing.T) {
	g1, g2, g3 := 0.10, 0.15, 0.12

	build := func(ticks []model.Tick) model.Candle {
		a := NewAssembler(ist, analytics.DefaultScorerWeights(), time.Hour)
		candles := make(chan model.Candle, 10)
		for _, tk := range ticks {
			a.processTick(tk, candles)
		}
		a.processTick(tickAt(9, 16, 0, "0"), candles) // trigger finalization
		return <-candles
	}

	inOrder := []model.Tick{tickAt(9, 15, 5, "180"), tickAt(9, 15, 23, "181"), tickAt(9, 15, 47, "179.5")}
	inOrder[0].Gamma = &g1
	inOrder[1].Gamma = &g2
	inOrder[2].Gamma = &g3

	reordered := []model.Tick{inOrder[2], inOrder[0], inOrder[1]}

	a := build(inOrder)
	b := build(reordered)

	if !a.Open.Equal(b.Open) || !a.High.Equal(b.High) || !a.Low.Equal(b.Low) {
		t.Errorf("OHLC differ by order: %v vs %v", a, b)
	}
	if a.TickCount != b.TickCount {
		t.Errorf("tick_count differ: %d vs %d", a.TickCount, b.TickCount)
	}
}

func TestAssembler_ShutdownFlushesInProgressAccumulator(t *testing.T) {
	a := NewAssembler(ist, analytics.DefaultScorerWeights(), time.Hour)
	var acked bool
	ticks := make(chan Delivery, 1)
	ticks <- Delivery{Tick: tickAt(9, 15, 0, "180"), Ack: func() { acked = true }}
	close(ticks)

	candles := make(chan model.Candle, 1)
	ctx := context.Background()
	a.Run(ctx, ticks, candles)

	select {
	case c := <-candles:
		if !c.CandleTimestamp.Equal(minute(9, 15)) {
			t.Errorf("flushed candle timestamp = %v, want 09:15", c.CandleTimestamp)
		}
	default:
		t.Fatal("expected channel close to flush the in-progress accumulator")
	}
	if !acked {
		t.Error("expected the delivery to be acked once folded into the accumulator")
	}
}
