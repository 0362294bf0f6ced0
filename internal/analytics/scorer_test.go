package analytics

import "testing"

func TestScore_FloorsAtZero(t *testing.T) {
	in := ScoreInputs{
		Volume:       0,
		BidAskSpread: decPtr("0.5"), // huge penalty, nothing else to offset it
	}
	got := Score(in, DefaultScorerWeights())
	if !got.IsZero() {
		t.Errorf("expected score floored at 0, got %v", got)
	}
}

func TestScore_VolumeFallsBackToAbsoluteWithoutAverage(t *testing.T) {
	in := ScoreInputs{Volume: 500}
	got := Score(in, DefaultScorerWeights())
	// 500/100 * 1.0 weight = 5
	if !got.Equal(dec("5")) {
		t.Errorf("expected 5, got %v", got)
	}
}

func TestScore_VolumeUsesRatioWhenAverageProvided(t *testing.T) {
	in := ScoreInputs{Volume: 200, AvgVolume: 100}
	got := Score(in, DefaultScorerWeights())
	// (200/100)*1000 * 1.0 weight = 2000
	if !got.Equal(dec("2000")) {
		t.Errorf("expected 2000, got %v", got)
	}
}

func TestScore_AbsentTermsContributeNothing(t *testing.T) {
	in := ScoreInputs{Volume: 100}
	got := Score(in, DefaultScorerWeights())
	if !got.Equal(dec("1")) {
		t.Errorf("expected 1 (volume only), got %v", got)
	}
}
