package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func floatPtr(f float64) *float64 {
	return &f
}

// S1 — clean panic, BUY.
func TestDetect_S1_CleanPanicBuy(t *testing.T) {
	in := DetectInputs{
		OIChangePct:    decPtr("-0.008"),
		Close:          dec("185.00"),
		PreviousClose:  decPtr("182.00"),
		VWAP:           decPtr("182.50"),
		GammaSpike:     floatPtr(0.55),
		OrderBookRatio: decPtr("0.28"),
		BidAskSpread:   decPtr("0.008"),
	}

	res := Detect(in, DefaultDetectorThresholds())

	if !res.ShortCovering || !res.GammaSpikeDetected || !res.OrderBookPanic || !res.LiquidityDrying || !res.StrongBuying {
		t.Fatalf("expected all five features to fire, got %+v", res)
	}
	if res.PanicScore != 100 {
		t.Errorf("expected panic_score capped at 100, got %v", res.PanicScore)
	}
	if res.State != "SELLER_PANIC" {
		t.Errorf("expected SELLER_PANIC, got %v", res.State)
	}
	if res.Recommendation != "BUY" {
		t.Errorf("expected BUY, got %v", res.Recommendation)
	}
	if res.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", res.Confidence)
	}
}

// S2 — quiet market, NEUTRAL.
func TestDetect_S2_QuietNeutral(t *testing.T) {
	in := DetectInputs{
		OIChangePct:    decPtr("0.0001"),
		Close:          dec("182.00"),
		PreviousClose:  decPtr("181.90"),
		VWAP:           decPtr("181.95"),
		GammaSpike:     floatPtr(0.0),
		OrderBookRatio: decPtr("0.5"),
		BidAskSpread:   decPtr("0.001"),
	}

	res := Detect(in, DefaultDetectorThresholds())

	if len(res.FiredSignals) != 0 {
		t.Fatalf("expected zero features to fire, got %v", res.FiredSignals)
	}
	if res.PanicScore != 0 {
		t.Errorf("expected panic_score 0, got %v", res.PanicScore)
	}
	if res.State != "NEUTRAL" || res.Recommendation != "WAIT" {
		t.Errorf("expected NEUTRAL/WAIT, got %v/%v", res.State, res.Recommendation)
	}
}

// Invariant 4: no fired feature implies WAIT and panic_score 0.
func TestDetect_NoFeaturesMeansWait(t *testing.T) {
	res := Detect(DetectInputs{Close: dec("100")}, DefaultDetectorThresholds())
	if res.Recommendation != "WAIT" || res.PanicScore != 0 {
		t.Errorf("expected WAIT/0, got %v/%v", res.Recommendation, res.PanicScore)
	}
}

// Invariant 6: nil previous_close must never fire a feature requiring price_change_pct.
func TestDetect_NilPreviousCloseNoShortCovering(t *testing.T) {
	in := DetectInputs{
		OIChangePct: decPtr("-0.02"),
		Close:       dec("185"),
	}
	res := Detect(in, DefaultDetectorThresholds())
	if res.ShortCovering {
		t.Error("short_covering must not fire without previous_close")
	}
}
