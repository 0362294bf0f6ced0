package analytics

import "github.com/shopspring/decimal"

// ScorerWeights are the configurable weights applied to each scoring term
// (spec §4.4.2). Weights are configuration, not constants, so their effect
// on the final score can be independently observed and tuned.
type ScorerWeights struct {
	Volume         float64
	OI             float64
	OrderBook      float64
	Volatility     float64
	Greek          float64
	SpreadPenalty  float64
}

// DefaultScorerWeights matches the spec's documented defaults.
func DefaultScorerWeights() ScorerWeights {
	return ScorerWeights{
		Volume:        1.0,
		OI:            0.8,
		OrderBook:     0.6,
		Volatility:    0.5,
		Greek:         0.4,
		SpreadPenalty: 0.3,
	}
}

// ScoreInputs is every optional input the scorer may use; a zero value for
// a *decimal.Decimal/*float64 field means "absent" and its term scores 0.
type ScoreInputs struct {
	Volume        int64
	AvgVolume     int64 // 0 means "not available"
	OIChangePct   *decimal.Decimal
	OrderBookRatio *decimal.Decimal
	High, Low, Close decimal.Decimal
	HasOHLC       bool
	GammaSpike    *float64
	BidAskSpread  *decimal.Decimal
}

// Score computes the non-negative weighted-sum candle importance score
// (spec §4.4.2). Each term is independently zero when its input is absent;
// the spread penalty is subtracted, and the whole sum is floored at zero.
func Score(in ScoreInputs, w ScorerWeights) decimal.Decimal {
	score := volumeScore(in.Volume, in.AvgVolume, w.Volume)

	if in.OIChangePct != nil {
		score = score.Add(in.OIChangePct.Abs().Mul(decimal.NewFromInt(10000)).Mul(decimal.NewFromFloat(w.OI)))
	}

	if in.OrderBookRatio != nil {
		imbalance := in.OrderBookRatio.Sub(half).Abs()
		score = score.Add(imbalance.Mul(decimal.NewFromInt(2000)).Mul(decimal.NewFromFloat(w.OrderBook)))
	}

	if in.HasOHLC && in.Close.IsPositive() {
		rangePct := in.High.Sub(in.Low).Div(in.Close)
		score = score.Add(rangePct.Mul(decimal.NewFromInt(5000)).Mul(decimal.NewFromFloat(w.Volatility)))
	}

	if in.GammaSpike != nil {
		abs := *in.GammaSpike
		if abs < 0 {
			abs = -abs
		}
		score = score.Add(decimal.NewFromFloat(abs).Mul(decimal.NewFromInt(1000)).Mul(decimal.NewFromFloat(w.Greek)))
	}

	if in.BidAskSpread != nil {
		penalty := in.BidAskSpread.Mul(decimal.NewFromInt(5000)).Mul(decimal.NewFromFloat(w.SpreadPenalty))
		score = score.Sub(penalty)
	}

	if score.IsNegative() {
		return decimal.Zero
	}
	return score
}

// volumeScore is (volume/avg_volume)*1000 when an average is available,
// else volume/100 (absolute fallback), both weighted.
func volumeScore(volume, avgVolume int64, weight float64) decimal.Decimal {
	var raw decimal.Decimal
	if avgVolume > 0 {
		raw = decimal.NewFromInt(volume).Div(decimal.NewFromInt(avgVolume)).Mul(decimal.NewFromInt(1000))
	} else {
		raw = decimal.NewFromInt(volume).Div(decimal.NewFromInt(100))
	}
	return raw.Mul(decimal.NewFromFloat(weight))
}
