package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SellerState is one of the bounded seller-behavior states the detector emits.
type SellerState string

const (
	SellerPanic      SellerState = "SELLER_PANIC"
	ProfitBooking    SellerState = "PROFIT_BOOKING"
	SellerDirection  SellerState = "SELLER_DIRECTION" // unreachable under current rules, kept for forward compatibility
	Neutral          SellerState = "NEUTRAL"
)

// Recommendation is the trade action implied by a Signal.
type Recommendation string

const (
	RecommendBuy  Recommendation = "BUY"
	RecommendSell Recommendation = "SELL"
	RecommendWait Recommendation = "WAIT"
)

// Signal is the immutable output of the analyzer worker for one candle.
type Signal struct {
	InstrumentKey   string          `json:"instrument_key"`
	CandleTimestamp time.Time       `json:"candle_timestamp"`
	SignalTimestamp time.Time       `json:"signal_timestamp"`

	SellerState    SellerState    `json:"seller_state"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	PanicScore     float64        `json:"panic_score"`

	ShortCovering      bool `json:"short_covering"`
	GammaSpikeDetected bool `json:"gamma_spike_detected"`
	OrderBookPanic     bool `json:"order_book_panic"`
	LiquidityDrying    bool `json:"liquidity_drying"`
	StrongBuying       bool `json:"strong_buying"`

	FiredSignals []string `json:"fired_signals"`

	EntryPrice  decimal.Decimal `json:"entry_price"`
	Support     decimal.Decimal `json:"support"`
	Resistance  decimal.Decimal `json:"resistance"`
	CandleScore decimal.Decimal `json:"candle_score"`

	OIChange    *int64           `json:"oi_change,omitempty"`
	OIChangePct *decimal.Decimal `json:"oi_change_pct,omitempty"`
}

// Key returns the instrument key this signal belongs to.
func (s *Signal) Key() string {
	return s.InstrumentKey
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
