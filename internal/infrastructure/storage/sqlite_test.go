package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_paper_trader/internal/domain"
	"github.com/vitos/crypto_paper_trader/internal/infrastructure/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOrders_SaveUpdateList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := &domain.Order{
		ID:        "ord-1",
		Symbol:    "BTCUSDT",
		Side:      domain.SideBuy,
		Quantity:  0.05,
		Price:     100000,
		Type:      domain.OrderTypeMarket,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveOrder(ctx, order))

	order.Status = domain.OrderStatusFilled
	order.Price = 100150
	require.NoError(t, store.UpdateOrder(ctx, order))

	orders, err := store.ListOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusFilled, orders[0].Status)
	assert.Equal(t, 100150.0, orders[0].Price)
}

func TestTradeStats_CountsClosedSells(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	save := func(id string, side domain.Side, status domain.OrderStatus, pnl float64) {
		require.NoError(t, store.SaveOrder(ctx, &domain.Order{
			ID: id, Symbol: "BTCUSDT", Side: side, Quantity: 1, Price: 100,
			Type: domain.OrderTypeMarket, Status: status, RealizedPnL: pnl,
			CreatedAt: time.Now().UTC(),
		}))
	}

	save("w1", domain.SideSell, domain.OrderStatusFilled, 120)
	save("w2", domain.SideSell, domain.OrderStatusFilled, 3)
	save("l1", domain.SideSell, domain.OrderStatusFilled, -40)
	// None of these count: a buy, an unfilled sell, a flat sell.
	save("buy", domain.SideBuy, domain.OrderStatusFilled, 0)
	save("pend", domain.SideSell, domain.OrderStatusPending, 50)
	save("flat", domain.SideSell, domain.OrderStatusFilled, 0)

	wins, losses, err := store.TradeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, wins)
	assert.Equal(t, 1, losses)
}

func TestPositions_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pos := &domain.Position{
		Symbol:       "BTCUSDT",
		Quantity:     0.05,
		EntryPrice:   100000,
		CurrentPrice: 100000,
		EntryTime:    time.Now().UTC(),
	}
	require.NoError(t, store.SavePosition(ctx, pos))

	pos.Quantity = 0.08
	pos.EntryPrice = 101000
	require.NoError(t, store.UpdatePosition(ctx, pos))

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 0.08, open[0].Quantity)
	assert.Equal(t, 101000.0, open[0].EntryPrice)

	require.NoError(t, store.DeletePosition(ctx, "BTCUSDT"))
	open, err = store.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSavePosition_UpsertsOnConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pos := &domain.Position{Symbol: "ETHUSDT", Quantity: 1, EntryPrice: 3000, CurrentPrice: 3000, EntryTime: time.Now().UTC()}
	require.NoError(t, store.SavePosition(ctx, pos))

	pos.Quantity = 2
	require.NoError(t, store.SavePosition(ctx, pos))

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 2.0, open[0].Quantity)
}

func TestMarketData_LatestPrices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, close := range []float64{99000, 100000, 101000} {
		require.NoError(t, store.SaveMarketData(ctx, &domain.MarketData{
			Symbol: "BTCUSDT", Open: close, High: close, Low: close,
			Close: close, Volume: 10, Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.SaveMarketData(ctx, &domain.MarketData{
		Symbol: "ETHUSDT", Close: 3000, Volume: 5, Timestamp: base,
	}))

	prices, err := store.LatestPrices(ctx, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	require.NoError(t, err)
	assert.Equal(t, 101000.0, prices["BTCUSDT"])
	assert.Equal(t, 3000.0, prices["ETHUSDT"])
	_, ok := prices["SOLUSDT"]
	assert.False(t, ok) // no rows, no entry
}
