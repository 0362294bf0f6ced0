package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single immutable market-data update for one instrument.
// Prices and ratios are decimal.Decimal to avoid binary floating-point
// round-trip drift; option Greeks are float64 since the spec permits
// intermediate floats for those only.
type Tick struct {
	InstrumentKey  string           `json:"instrument_key"`
	RawTimestampMs int64            `json:"raw_timestamp"` // broker epoch millis
	CandleMinute   time.Time        `json:"candle_minute"` // minute-truncated, market zone
	LTP            decimal.Decimal  `json:"ltp"`
	LTQ            int64            `json:"ltq"`
	Volume         int64            `json:"volume"` // cumulative day volume
	OI             int64            `json:"oi"`
	PreviousClose  *decimal.Decimal `json:"previous_close,omitempty"`

	BidPrices     []decimal.Decimal `json:"bid_prices"`
	BidQuantities []int64           `json:"bid_quantities"`
	AskPrices     []decimal.Decimal `json:"ask_prices"`
	AskQuantities []int64           `json:"ask_quantities"`

	TBQ *int64 `json:"tbq,omitempty"`
	TSQ *int64 `json:"tsq,omitempty"`

	Delta *float64 `json:"delta,omitempty"`
	Gamma *float64 `json:"gamma,omitempty"`
	Theta *float64 `json:"theta,omitempty"`
	Vega  *float64 `json:"vega,omitempty"`
	Rho   *float64 `json:"rho,omitempty"`
	IV    *float64 `json:"iv,omitempty"`
}

// Key returns the instrument key this tick belongs to.
func (t *Tick) Key() string {
	return t.InstrumentKey
}

// Validate checks the order-book invariants the spec requires of every tick:
// bids strictly non-increasing, asks strictly non-decreasing, and a
// non-negative spread between the best bid and best ask.
func (t *Tick) Validate() bool {
	for i := 1; i < len(t.BidPrices); i++ {
		if t.BidPrices[i].GreaterThan(t.BidPrices[i-1]) {
			return false
		}
	}
	for i := 1; i < len(t.AskPrices); i++ {
		if t.AskPrices[i].LessThan(t.AskPrices[i-1]) {
			return false
		}
	}
	if len(t.BidPrices) > 0 && len(t.AskPrices) > 0 {
		if t.BidPrices[0].GreaterThan(t.AskPrices[0]) {
			return false
		}
	}
	return true
}

// CandleMinuteFromRawMs truncates an epoch-millisecond timestamp to the
// minute boundary in the given location (Asia/Kolkata for this pipeline).
func CandleMinuteFromRawMs(rawMs int64, loc *time.Location) time.Time {
	t := time.UnixMilli(rawMs).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}
