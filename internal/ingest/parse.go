package ingest

import "github.com/shopspring/decimal"

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseDecimals(ss []string) ([]decimal.Decimal, bool) {
	if len(ss) == 0 {
		return nil, false
	}
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		d, ok := parseDecimal(s)
		if !ok {
			return nil, false
		}
		out[i] = d
	}
	return out, true
}
