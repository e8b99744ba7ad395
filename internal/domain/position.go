package domain

import "time"

// Position is an open long position in the portfolio.
type Position struct {
	Symbol        string
	Quantity      float64
	EntryPrice    float64 // weighted-average across fills
	CurrentPrice  float64
	UnrealizedPnL float64
	EntryTime     time.Time
}

// PnLPercent returns the unrealized P&L relative to the entry price.
func (p *Position) PnLPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100.0
}

// Portfolio holds the cash balance and all open positions, keyed by symbol.
type Portfolio struct {
	CashBalance float64
	Positions   map[string]*Position
}

func NewPortfolio(cash float64) *Portfolio {
	return &Portfolio{
		CashBalance: cash,
		Positions:   make(map[string]*Position),
	}
}

// Equity is the cash balance plus the market value of all open positions.
func (p *Portfolio) Equity() float64 {
	equity := p.CashBalance
	for _, pos := range p.Positions {
		equity += pos.Quantity * pos.CurrentPrice
	}
	return equity
}
