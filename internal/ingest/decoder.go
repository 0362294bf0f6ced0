package ingest

import (
	"encoding/json"
	"time"

	"indexpanic-sysv1/internal/model"
)

// wireFrame is the JSON shape of a feed frame (spec §4.2). Absent scalar
// fields decode to Go zero values; the optional fields are pointers and
// stay nil when absent, the "absent" representation model.Tick expects.
type wireFrame struct {
	InstrumentKey string  `json:"instrument_key"`
	Timestamp     int64   `json:"timestamp"`
	LTP           string  `json:"ltp"`
	LTQ           int64   `json:"ltq"`
	Volume        int64   `json:"volume"`
	OI            int64   `json:"oi"`
	PreviousClose *string `json:"previous_close"`

	BidPrices     []string `json:"bid_prices"`
	BidQuantities []int64  `json:"bid_quantities"`
	AskPrices     []string `json:"ask_prices"`
	AskQuantities []int64  `json:"ask_quantities"`

	TBQ *int64 `json:"tbq"`
	TSQ *int64 `json:"tsq"`

	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
	Rho   *float64 `json:"rho"`
	IV    *float64 `json:"iv"`
}

// JSONDecoder implements model.Decoder for the feed's documented JSON wire
// format (spec §4.2). Malformed frames decode with ok=false and are
// counted and dropped by the caller, never retried.
type JSONDecoder struct {
	Location *time.Location
}

func (d JSONDecoder) Decode(frame []byte) (model.Tick, bool) {
	var w wireFrame
	if err := json.Unmarshal(frame, &w); err != nil {
		return model.Tick{}, false
	}
	if w.InstrumentKey == "" || w.Timestamp == 0 {
		return model.Tick{}, false
	}

	ltp, ok := parseDecimal(w.LTP)
	if !ok {
		return model.Tick{}, false
	}

	t := model.Tick{
		InstrumentKey:  w.InstrumentKey,
		RawTimestampMs: w.Timestamp,
		CandleMinute:   model.CandleMinuteFromRawMs(w.Timestamp, d.Location),
		LTP:            ltp,
		LTQ:            w.LTQ,
		Volume:         w.Volume,
		OI:             w.OI,
		TBQ:            w.TBQ,
		TSQ:            w.TSQ,
		Delta:          w.Delta,
		Gamma:          w.Gamma,
		Theta:          w.Theta,
		Vega:           w.Vega,
		Rho:            w.Rho,
		IV:             w.IV,
	}

	if w.PreviousClose != nil {
		if pc, ok := parseDecimal(*w.PreviousClose); ok {
			t.PreviousClose = &pc
		}
	}

	if bids, ok := parseDecimals(w.BidPrices); ok {
		t.BidPrices = bids
		t.BidQuantities = w.BidQuantities
	}
	if asks, ok := parseDecimals(w.AskPrices); ok {
		t.AskPrices = asks
		t.AskQuantities = w.AskQuantities
	}

	if !t.Validate() {
		return model.Tick{}, false
	}

	return t, true
}
