package usecase

import (
	"math/rand"

	"github.com/vitos/crypto_paper_trader/internal/domain"
)

// Rand is the random source used for fill draws. Tests inject a
// deterministic sequence.
type Rand interface {
	Float64() float64
}

type mathRand struct{}

func (mathRand) Float64() float64 { return rand.Float64() }

// FillSimulator models paper-trading execution: size-proportional slippage
// unfavorable to the trader, a spread markup, and probabilistic limit
// fills.
type FillSimulator struct {
	slippageRate    float64
	spreadRate      float64
	fillProbability float64
	rng             Rand
}

func NewFillSimulator(slippageRate, spreadRate, fillProbability float64, rng Rand) *FillSimulator {
	if rng == nil {
		rng = mathRand{}
	}
	return &FillSimulator{
		slippageRate:    slippageRate,
		spreadRate:      spreadRate,
		fillProbability: fillProbability,
		rng:             rng,
	}
}

// FillPrice derives the simulated fill price for a market order: slippage
// grows with order size and moves against the trader, then the spread
// markup is applied.
func (s *FillSimulator) FillPrice(marketPrice, quantity float64, side domain.Side) float64 {
	slippage := marketPrice * s.slippageRate * (1.0 + quantity/100.0)

	price := marketPrice
	if side == domain.SideBuy {
		price += slippage // pay more when buying
	} else {
		price -= slippage // receive less when selling
	}
	return price * (1.0 + s.spreadRate)
}

// LimitFills reports whether a limit order fills against the reference
// price: the limit condition must hold and a random draw must beat the
// configured fill probability.
func (s *FillSimulator) LimitFills(order *domain.Order, marketPrice float64) bool {
	if order.Type != domain.OrderTypeLimit {
		return order.Type == domain.OrderTypeMarket
	}
	marketable := (order.Side == domain.SideBuy && order.Price >= marketPrice) ||
		(order.Side == domain.SideSell && order.Price <= marketPrice)
	if !marketable {
		return false
	}
	return s.rng.Float64() < s.fillProbability
}
