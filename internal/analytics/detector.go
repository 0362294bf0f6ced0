package analytics

import (
	"github.com/shopspring/decimal"

	"indexpanic-sysv1/internal/model"
)

// DetectorThresholds are the configurable cutoffs for each of the five
// seller-behavior features and for the panic-score BUY threshold (spec
// §4.4.3). All are overridable per spec §6.
type DetectorThresholds struct {
	OIDecrease       float64 // oi_change_pct below this → bearish OI
	PriceIncrease    float64 // price_change_pct above this → bullish price
	GammaSpike       float64 // abs(gamma_spike) above this fires
	OrderBookPanic   float64 // order_book_ratio below this fires
	Spread           float64 // bid_ask_spread above this fires
	VWAPDeviation    float64 // (close-vwap)/vwap above this fires
	PanicScoreBuy    float64 // panic_score at/above this → SELLER_PANIC/BUY
}

// DefaultDetectorThresholds matches the spec's documented defaults.
func DefaultDetectorThresholds() DetectorThresholds {
	return DetectorThresholds{
		OIDecrease:     -0.003,
		PriceIncrease:  0.005,
		GammaSpike:     0.30,
		OrderBookPanic: 0.35,
		Spread:         0.005,
		VWAPDeviation:  0.01,
		PanicScoreBuy:  60.0,
	}
}

// DetectionResult mirrors model.Signal's feature/state fields before they
// are stamped with timestamps and candle context.
type DetectionResult struct {
	State          model.SellerState
	Recommendation model.Recommendation
	Confidence     float64
	PanicScore     float64
	FiredSignals   []string

	ShortCovering      bool
	GammaSpikeDetected bool
	OrderBookPanic     bool
	LiquidityDrying    bool
	StrongBuying       bool
}

// DetectInputs carries the optional metrics the detector reasons over; a
// nil pointer means the input is unavailable and the feature it gates does
// not fire (spec §7: "the detector refuses to emit when required inputs
// are missing").
type DetectInputs struct {
	OIChangePct    *decimal.Decimal
	Close          decimal.Decimal
	PreviousClose  *decimal.Decimal
	VWAP           *decimal.Decimal
	GammaSpike     *float64
	OrderBookRatio *decimal.Decimal
	BidAskSpread   *decimal.Decimal
}

// Detect evaluates the five boolean features, the panic score, and the
// state/recommendation decision tree (spec §4.4.3).
func Detect(in DetectInputs, t DetectorThresholds) DetectionResult {
	priceChangePct, havePriceChange := priceChangePct(in.Close, in.PreviousClose)

	shortCovering := in.OIChangePct != nil && havePriceChange &&
		in.OIChangePct.InexactFloat64() < t.OIDecrease &&
		priceChangePct.InexactFloat64() > t.PriceIncrease

	gammaSpike := in.GammaSpike != nil && absFloat(*in.GammaSpike) > t.GammaSpike

	obPanic := in.OrderBookRatio != nil && in.OrderBookRatio.InexactFloat64() < t.OrderBookPanic

	liquidityDrying := in.BidAskSpread != nil && in.BidAskSpread.InexactFloat64() > t.Spread

	strongBuying := false
	if in.VWAP != nil && in.VWAP.IsPositive() {
		deviation := in.Close.Sub(*in.VWAP).Div(*in.VWAP)
		strongBuying = deviation.InexactFloat64() > t.VWAPDeviation
	}

	var fired []string
	if shortCovering {
		fired = append(fired, "SHORT_COVERING")
	}
	if gammaSpike {
		fired = append(fired, "GAMMA_SPIKE")
	}
	if obPanic {
		fired = append(fired, "ORDER_BOOK_PANIC")
	}
	if liquidityDrying {
		fired = append(fired, "LIQUIDITY_DRYING")
	}
	if strongBuying {
		fired = append(fired, "STRONG_BUYING")
	}

	panicScore := panicScore(shortCovering, gammaSpike, obPanic, liquidityDrying, strongBuying, in.OIChangePct, in.OrderBookRatio)
	state, recommendation, confidence := stateAndRecommendation(panicScore, shortCovering, len(fired), t)

	return DetectionResult{
		State:              state,
		Recommendation:     recommendation,
		Confidence:         confidence,
		PanicScore:         panicScore,
		FiredSignals:       fired,
		ShortCovering:      shortCovering,
		GammaSpikeDetected: gammaSpike,
		OrderBookPanic:     obPanic,
		LiquidityDrying:    liquidityDrying,
		StrongBuying:       strongBuying,
	}
}

// priceChangePct returns (close-previousClose)/previousClose, and false
// when previousClose is absent or not positive.
func priceChangePct(close decimal.Decimal, previousClose *decimal.Decimal) (decimal.Decimal, bool) {
	if previousClose == nil || !previousClose.IsPositive() {
		return decimal.Zero, false
	}
	return close.Sub(*previousClose).Div(*previousClose), true
}

func panicScore(shortCovering, gammaSpike, obPanic, liquidityDrying, strongBuying bool, oiChangePct, orderBookRatio *decimal.Decimal) float64 {
	score := 0.0

	if shortCovering {
		base := 30.0
		if oiChangePct != nil && absFloat(oiChangePct.InexactFloat64()) > 0.01 {
			base += 10.0
		}
		score += base
	}

	if gammaSpike {
		score += 25.0
	}

	if obPanic {
		base := 20.0
		if orderBookRatio != nil && orderBookRatio.InexactFloat64() < 0.25 {
			base += 10.0
		}
		score += base
	}

	if liquidityDrying {
		score += 15.0
	}

	if strongBuying {
		score += 10.0
	}

	if score > 100 {
		return 100
	}
	return score
}

func stateAndRecommendation(panicScore float64, shortCovering bool, firedCount int, t DetectorThresholds) (model.SellerState, model.Recommendation, float64) {
	if panicScore >= t.PanicScoreBuy {
		confidence := panicScore / 100
		if confidence > 0.9 {
			confidence = 0.9
		}
		return model.SellerPanic, model.RecommendBuy, confidence
	}

	if firedCount >= 2 && !shortCovering {
		return model.ProfitBooking, model.RecommendWait, 0.6
	}

	return model.Neutral, model.RecommendWait, 0.5
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
