package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/crypto_paper_trader/internal/domain"
	"github.com/vitos/crypto_paper_trader/internal/usecase"
)

func TestFillPrice_SlippageIsUnfavorable(t *testing.T) {
	sim := usecase.NewFillSimulator(0.001, 0, 0.95, nil)

	buy := sim.FillPrice(100000, 0.05, domain.SideBuy)
	sell := sim.FillPrice(100000, 0.05, domain.SideSell)

	assert.Greater(t, buy, 100000.0)
	assert.Less(t, sell, 100000.0)
}

func TestFillPrice_SlippageGrowsWithSize(t *testing.T) {
	sim := usecase.NewFillSimulator(0.001, 0, 0.95, nil)

	small := sim.FillPrice(100000, 0.01, domain.SideBuy)
	large := sim.FillPrice(100000, 50, domain.SideBuy)

	assert.Greater(t, large, small)
}

func TestFillPrice_SpreadMarkup(t *testing.T) {
	sim := usecase.NewFillSimulator(0, 0.0005, 0.95, nil)

	price := sim.FillPrice(100000, 0.05, domain.SideBuy)
	assert.InDelta(t, 100000*1.0005, price, 1e-6)
}

func TestLimitFills_Conditions(t *testing.T) {
	sim := usecase.NewFillSimulator(0, 0, 0.95, FixedRand{V: 0.5})

	buy := &domain.Order{Side: domain.SideBuy, Type: domain.OrderTypeLimit, Price: 105}
	assert.True(t, sim.LimitFills(buy, 100))  // limit above market
	assert.False(t, sim.LimitFills(buy, 110)) // limit below market

	sell := &domain.Order{Side: domain.SideSell, Type: domain.OrderTypeLimit, Price: 95}
	assert.True(t, sim.LimitFills(sell, 100)) // limit below market
	assert.False(t, sim.LimitFills(sell, 90)) // limit above market

	// Market orders always fill.
	market := &domain.Order{Side: domain.SideBuy, Type: domain.OrderTypeMarket}
	assert.True(t, sim.LimitFills(market, 100))
}

func TestLimitFills_ProbabilityDraw(t *testing.T) {
	buy := &domain.Order{Side: domain.SideBuy, Type: domain.OrderTypeLimit, Price: 105}

	lucky := usecase.NewFillSimulator(0, 0, 0.95, FixedRand{V: 0.94})
	assert.True(t, lucky.LimitFills(buy, 100))

	unlucky := usecase.NewFillSimulator(0, 0, 0.95, FixedRand{V: 0.96})
	assert.False(t, unlucky.LimitFills(buy, 100))
}
