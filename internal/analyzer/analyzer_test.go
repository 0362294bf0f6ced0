package analyzer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"indexpanic-sysv1/internal/analytics"
	"indexpanic-sysv1/internal/eventlog"
	"indexpanic-sysv1/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// S1 — clean panic/BUY candle should round-trip through the analyzer into
// a SELLER_PANIC/BUY signal on the output stream.
func TestAnalyzer_PublishesSignalForEachCandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := eventlog.NewMemory(0)
	l.EnsureGroup(ctx, "candles", "analyzer")

	prevClose := dec("100")
	oiChangePct := dec("-0.01")
	gammaSpike := 0.5
	candle := model.Candle{
		InstrumentKey:   "X",
		CandleTimestamp: time.Now(),
		Close:           dec("101"),
		PreviousClose:   &prevClose,
		OIChangePct:     &oiChangePct,
		GammaSpike:      &gammaSpike,
		OrderBookRatio:  dec("0.2"),
		TBQ:             200,
		TSQ:             800,
		BidAskSpread:    dec("0.01"),
		VWAP:            dec("99"),
	}
	payload, _ := json.Marshal(candle)
	l.Publish(ctx, "candles", payload)

	a := &Analyzer{
		Log: l, InStream: "candles", OutStream: "signals", Group: "analyzer", Consumer: "a1",
		BlockFor: time.Millisecond, Thresholds: analytics.DefaultDetectorThresholds(),
	}

	done := make(chan struct{})
	go func() { a.Run(ctx); close(done) }()

	deadline := time.After(time.Second)
	var length int64
	for {
		var err error
		length, err = l.StreamLength(context.Background(), "signals")
		if err != nil {
			t.Fatalf("StreamLength: %v", err)
		}
		if length == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a signal to be published")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done

	l.EnsureGroup(context.Background(), "signals", "verify")
	entries, err := l.ReadGroup(context.Background(), "signals", "verify", "v1", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(entries))
	}
	var sig model.Signal
	if err := json.Unmarshal(entries[0].Payload, &sig); err != nil {
		t.Fatalf("unmarshal signal: %v", err)
	}
	if sig.SellerState != model.SellerPanic || sig.Recommendation != model.RecommendBuy {
		t.Errorf("seller_state/recommendation = %s/%s, want SELLER_PANIC/BUY", sig.SellerState, sig.Recommendation)
	}
}
