package candle

import (
	"time"

	"github.com/shopspring/decimal"

	"indexpanic-sysv1/internal/model"
)

// Accumulator is the per-(instrument_key, candle_minute) in-progress state
// described in spec §3. It is owned exclusively by the Assembler goroutine
// that created it; no other worker ever reads or writes it.
type Accumulator struct {
	InstrumentKey string
	Minute        time.Time

	Open, High, Low, Close decimal.Decimal
	PreviousClose          *decimal.Decimal

	Volume int64
	OI     int64

	firstTs, lastTs int64 // raw timestamps of the ticks that set Open and Close

	FirstGamma *float64
	LastGamma  *float64

	Deltas, Gammas, Thetas, Vegas, Rhos, IVs []float64

	LastBidPrices, LastAskPrices     []decimal.Decimal
	LastBidQuantities, LastAskQuantities []int64

	TickCount int
}

// NewAccumulator creates an empty accumulator for a tick's key, to be
// filled immediately by Apply.
func NewAccumulator(instrumentKey string, minute time.Time) *Accumulator {
	return &Accumulator{InstrumentKey: instrumentKey, Minute: minute}
}

// Apply folds one tick into the accumulator (spec §4.3 per-tick handling).
// Open, Close, Volume and OI follow the ticks' raw timestamps, so ticks that
// arrive out of order within the minute give the same values; previous_close,
// first/last gamma and the order-book snapshot follow arrival order.
func (a *Accumulator) Apply(t model.Tick) {
	if a.TickCount == 0 {
		a.High = t.LTP
		a.Low = t.LTP
		a.PreviousClose = t.PreviousClose
		a.FirstGamma = t.Gamma
	}
	if a.TickCount == 0 || t.RawTimestampMs < a.firstTs {
		a.firstTs = t.RawTimestampMs
		a.Open = t.LTP
	}

	if t.LTP.GreaterThan(a.High) {
		a.High = t.LTP
	}
	if t.LTP.LessThan(a.Low) {
		a.Low = t.LTP
	}
	if a.TickCount == 0 || t.RawTimestampMs >= a.lastTs {
		a.lastTs = t.RawTimestampMs
		a.Close = t.LTP
		a.Volume = t.Volume // feed sends cumulative volume; store latest
		a.OI = t.OI
	}

	a.TickCount++

	if len(t.BidPrices) > 0 && len(t.AskPrices) > 0 {
		a.LastBidPrices = t.BidPrices
		a.LastBidQuantities = t.BidQuantities
		a.LastAskPrices = t.AskPrices
		a.LastAskQuantities = t.AskQuantities
	}

	a.LastGamma = t.Gamma // spec §4.3 step 3: updated every tick, not just non-null ones

	if t.Delta != nil {
		a.Deltas = append(a.Deltas, *t.Delta)
	}
	if t.Gamma != nil {
		a.Gammas = append(a.Gammas, *t.Gamma)
	}
	if t.Theta != nil {
		a.Thetas = append(a.Thetas, *t.Theta)
	}
	if t.Vega != nil {
		a.Vegas = append(a.Vegas, *t.Vega)
	}
	if t.Rho != nil {
		a.Rhos = append(a.Rhos, *t.Rho)
	}
	if t.IV != nil {
		a.IVs = append(a.IVs, *t.IV)
	}
}

func averageGreek(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	return &avg
}

// gammaSpike is (last-first)/|first| when both samples exist and first != 0,
// else 0 (spec §4.3 finalization step 3).
func gammaSpike(first, last *float64) *float64 {
	if first == nil || last == nil || *first == 0 {
		zero := 0.0
		return &zero
	}
	spike := (*last - *first) / absFloat(*first)
	return &spike
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
