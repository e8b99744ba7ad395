package domain

import "time"

type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalSell SignalAction = "SELL"
	SignalHold SignalAction = "HOLD"
)

// Signal is a trading recommendation produced by the analyzer peer.
type Signal struct {
	Symbol                string       `json:"symbol"`
	Action                SignalAction `json:"action"`
	Confidence            float64      `json:"confidence"` // 0.0 .. 1.0
	SuggestedPositionSize float64      `json:"suggested_position_size"`
	ReceivedAt            time.Time    `json:"-"`
}
