package domain

import "context"

// OrderRepository defines storage operations for orders.
type OrderRepository interface {
	SaveOrder(ctx context.Context, order *Order) error
	UpdateOrder(ctx context.Context, order *Order) error
	ListOrders(ctx context.Context, limit int) ([]*Order, error)

	// TradeStats returns the number of winning and losing SELL fills.
	TradeStats(ctx context.Context) (wins, losses int, err error)
}

// PositionRepository defines storage operations for open positions.
type PositionRepository interface {
	SavePosition(ctx context.Context, position *Position) error
	UpdatePosition(ctx context.Context, position *Position) error
	DeletePosition(ctx context.Context, symbol string) error
	OpenPositions(ctx context.Context) ([]*Position, error)
}

// MarketDataRepository defines storage operations for market data rows.
type MarketDataRepository interface {
	SaveMarketData(ctx context.Context, data *MarketData) error

	// LatestPrices returns the most recent close per symbol. Symbols with
	// no stored rows are absent from the result.
	LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// PriceSource fetches the latest market price for a symbol.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (*MarketData, error)
}
