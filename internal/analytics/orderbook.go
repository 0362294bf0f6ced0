// Package analytics holds the pure-function order-book analyzer, candle
// scorer, and seller-state detector. None of these functions perform I/O;
// they are invoked by the candle assembler and the analyzer worker.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"indexpanic-sysv1/internal/model"
)

var half = decimal.NewFromFloat(0.5)

// WhaleThresholdMultiplier is the default multiplier over the median
// quantity above which a level counts as a whale order.
const WhaleThresholdMultiplier = 5.0

// OrderBookResult is the complete set of metrics derived from one snapshot.
type OrderBookResult struct {
	SupportLevels    [3]model.Level
	Support          decimal.Decimal
	ResistanceLevels [3]model.Level
	Resistance       decimal.Decimal

	TBQ            int64
	TSQ            int64
	OrderBookRatio decimal.Decimal
	BidAskSpread   decimal.Decimal
	BigBidCount    int
	BigAskCount    int
}

// AnalyzeOrderBook computes support/resistance, TBQ/TSQ, the order-book
// ratio, bid-ask spread, and whale counts from one order-book snapshot.
// All four slices must be the same length per side (bid/ask pairs).
func AnalyzeOrderBook(bidPrices []decimal.Decimal, bidQty []int64, askPrices []decimal.Decimal, askQty []int64) OrderBookResult {
	support, supportLevels := topByQuantity(bidPrices, bidQty)
	resistance, resistanceLevels := topByQuantity(askPrices, askQty)

	var tbq, tsq int64
	for _, q := range bidQty {
		tbq += q
	}
	for _, q := range askQty {
		tsq += q
	}

	ratio := orderBookRatio(tbq, tsq)
	spread := decimal.Zero
	if len(bidPrices) > 0 && len(askPrices) > 0 && bidPrices[0].IsPositive() {
		spread = askPrices[0].Sub(bidPrices[0]).Div(bidPrices[0])
	}

	return OrderBookResult{
		SupportLevels:    supportLevels,
		Support:          support,
		ResistanceLevels: resistanceLevels,
		Resistance:       resistance,
		TBQ:              tbq,
		TSQ:              tsq,
		OrderBookRatio:   ratio,
		BidAskSpread:     spread,
		BigBidCount:      whaleCount(bidQty),
		BigAskCount:      whaleCount(askQty),
	}
}

// orderBookRatio returns tbq/(tbq+tsq), or the neutral sentinel 0.5 when
// both sides are empty (spec §4.4.1, invariant 3 in §8).
func orderBookRatio(tbq, tsq int64) decimal.Decimal {
	total := tbq + tsq
	if total == 0 {
		return half
	}
	return decimal.NewFromInt(tbq).Div(decimal.NewFromInt(total))
}

// topByQuantity returns the top-3 levels by quantity (descending), ties
// broken by higher price, padded with zero levels, plus the mean of the
// non-zero-price levels among them.
func topByQuantity(prices []decimal.Decimal, qtys []int64) (decimal.Decimal, [3]model.Level) {
	n := len(prices)
	if len(qtys) < n {
		n = len(qtys)
	}
	levels := make([]model.Level, n)
	for i := 0; i < n; i++ {
		levels[i] = model.Level{Price: prices[i], Qty: qtys[i]}
	}

	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Qty != levels[j].Qty {
			return levels[i].Qty > levels[j].Qty
		}
		return levels[i].Price.GreaterThan(levels[j].Price)
	})

	var top [3]model.Level
	for i := range top {
		if i < len(levels) {
			top[i] = levels[i]
		}
	}

	sum := decimal.Zero
	count := 0
	for _, lvl := range top {
		if lvl.Price.IsPositive() {
			sum = sum.Add(lvl.Price)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero, top
	}
	return sum.Div(decimal.NewFromInt(int64(count))), top
}

// whaleCount returns the number of quantities strictly greater than
// WhaleThresholdMultiplier times the median quantity on that side.
func whaleCount(qtys []int64) int {
	if len(qtys) == 0 {
		return 0
	}
	sorted := append([]int64(nil), qtys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = float64(sorted[mid-1]+sorted[mid]) / 2
	} else {
		median = float64(sorted[mid])
	}
	threshold := median * WhaleThresholdMultiplier

	count := 0
	for _, q := range qtys {
		if float64(q) > threshold {
			count++
		}
	}
	return count
}
