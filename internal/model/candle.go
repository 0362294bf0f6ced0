package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Level is one order-book price/quantity pair, used for the top-3 support
// and resistance reports on a finalized Candle.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Qty   int64           `json:"qty"`
}

// Candle is the immutable one-minute aggregate emitted by the assembler,
// produced exactly once per finalized CandleAccumulator.
type Candle struct {
	InstrumentKey   string          `json:"instrument_key"`
	CandleTimestamp time.Time       `json:"candle_timestamp"` // minute bucket start, market zone
	Open            decimal.Decimal `json:"open"`
	High            decimal.Decimal `json:"high"`
	Low             decimal.Decimal `json:"low"`
	Close           decimal.Decimal `json:"close"`
	PreviousClose   *decimal.Decimal `json:"previous_close,omitempty"`
	Volume          int64           `json:"volume"`
	OI              int64           `json:"oi"`
	OIChange        *int64          `json:"oi_change,omitempty"`
	OIChangePct     *decimal.Decimal `json:"oi_change_pct,omitempty"`
	VWAP            decimal.Decimal `json:"vwap"`

	SupportLevels    [3]Level        `json:"support_levels"`
	Support          decimal.Decimal `json:"support"`
	ResistanceLevels [3]Level        `json:"resistance_levels"`
	Resistance       decimal.Decimal `json:"resistance"`

	TBQ            int64           `json:"tbq"`
	TSQ            int64           `json:"tsq"`
	OrderBookRatio decimal.Decimal `json:"order_book_ratio"`
	BidAskSpread   decimal.Decimal `json:"bid_ask_spread"`
	BigBidCount    int             `json:"big_bid_count"`
	BigAskCount    int             `json:"big_ask_count"`

	AvgDelta *float64 `json:"avg_delta,omitempty"`
	AvgGamma *float64 `json:"avg_gamma,omitempty"`
	AvgTheta *float64 `json:"avg_theta,omitempty"`
	AvgVega  *float64 `json:"avg_vega,omitempty"`
	AvgRho   *float64 `json:"avg_rho,omitempty"`
	AvgIV    *float64 `json:"avg_iv,omitempty"`

	GammaSpike *float64        `json:"gamma_spike,omitempty"`
	CandleScore decimal.Decimal `json:"candle_score"`
	TickCount   int             `json:"tick_count"`
}

// Key returns the instrument key this candle belongs to.
func (c *Candle) Key() string {
	return c.InstrumentKey
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// PriceChangePct returns (close - previous_close) / previous_close, and
// false when previous_close is absent or not positive (spec §4.4.3).
func (c *Candle) PriceChangePct() (decimal.Decimal, bool) {
	if c.PreviousClose == nil || !c.PreviousClose.IsPositive() {
		return decimal.Zero, false
	}
	return c.Close.Sub(*c.PreviousClose).Div(*c.PreviousClose), true
}
