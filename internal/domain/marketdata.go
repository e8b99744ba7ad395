package domain

import "time"

// MarketData is a single OHLCV observation for a symbol.
type MarketData struct {
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}
