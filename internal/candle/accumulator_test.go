package candle

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"indexpanic-sysv1/internal/model"
)

func prices(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		out[i] = dec(s)
	}
	return out
}

func TestAccumulator_FirstTickSeedsOpenAndPreviousClose(t *testing.T) {
	prev := dec("178")
	acc := NewAccumulator("X", minute(9, 15))
	acc.Apply(model.Tick{LTP: dec("180"), PreviousClose: &prev, Volume: 500, OI: 100})

	if !acc.Open.Equal(dec("180")) || !acc.High.Equal(dec("180")) || !acc.Low.Equal(dec("180")) {
		t.Errorf("first tick should seed open=high=low=ltp, got %v/%v/%v", acc.Open, acc.High, acc.Low)
	}
	if acc.PreviousClose == nil || !acc.PreviousClose.Equal(prev) {
		t.Errorf("previous_close = %v, want %v", acc.PreviousClose, prev)
	}
	if acc.TickCount != 1 {
		t.Errorf("tick_count = %d, want 1", acc.TickCount)
	}
}

func TestAccumulator_VolumeAndOIAreLatestNotSummed(t *testing.T) {
	acc := NewAccumulator("X", minute(9, 15))
	acc.Apply(model.Tick{LTP: dec("180"), Volume: 500, OI: 100})
	acc.Apply(model.Tick{LTP: dec("181"), Volume: 700, OI: 120})

	if acc.Volume != 700 {
		t.Errorf("volume = %d, want latest 700 (feed sends cumulative volume)", acc.Volume)
	}
	if acc.OI != 120 {
		t.Errorf("oi = %d, want latest 120", acc.OI)
	}
}

func TestAccumulator_EmptyBookSnapshotNotOverwritten(t *testing.T) {
	acc := NewAccumulator("X", minute(9, 15))
	acc.Apply(model.Tick{
		LTP: dec("180"),
	})
	acc.Apply(model.Tick{
		LTP:       dec("181"),
		BidPrices: prices("179", "178"),
		AskPrices: prices("181", "182"),
	})
	acc.Apply(model.Tick{LTP: dec("182")}) // tick with no book at all

	if len(acc.LastBidPrices) != 2 {
		t.Fatalf("expected the last non-empty snapshot to persist, got %d bid levels", len(acc.LastBidPrices))
	}
}

func TestAccumulator_LastGammaUpdatesEveryTickIncludingNil(t *testing.T) {
	g := 0.2
	acc := NewAccumulator("X", minute(9, 15))
	acc.Apply(model.Tick{LTP: dec("180"), Gamma: &g})
	acc.Apply(model.Tick{LTP: dec("181")}) // no gamma on this tick

	if acc.LastGamma != nil {
		t.Errorf("last_gamma should track the most recent tick's gamma verbatim (nil here), got %v", acc.LastGamma)
	}
	if acc.FirstGamma == nil || *acc.FirstGamma != g {
		t.Errorf("first_gamma should remain from the first tick, got %v", acc.FirstGamma)
	}
}

func TestGammaSpike_ComputedOnlyWhenBothPresentAndFirstNonZero(t *testing.T) {
	first, last := 0.10, 0.15
	spike := gammaSpike(&first, &last)
	if spike == nil || math.Abs(*spike-0.5) > 1e-9 {
		t.Errorf("gamma_spike = %v, want 0.5", spike)
	}

	zero := 0.0
	spikeZeroFirst := gammaSpike(&zero, &last)
	if spikeZeroFirst == nil || *spikeZeroFirst != 0 {
		t.Errorf("gamma_spike with zero first should be 0, got %v", spikeZeroFirst)
	}

	if gammaSpike(nil, &last) == nil || *gammaSpike(nil, &last) != 0 {
		t.Error("gamma_spike with missing first should default to 0")
	}
}

func TestAverageGreek_NilWhenNoSamples(t *testing.T) {
	if averageGreek(nil) != nil {
		t.Error("expected nil average for no samples")
	}
	avg := averageGreek([]float64{0.1, 0.3})
	if avg == nil || *avg != 0.2 {
		t.Errorf("average = %v, want 0.2", avg)
	}
}
