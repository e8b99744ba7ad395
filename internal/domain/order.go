package domain

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Order represents a single order created by the engine.
// Once FILLED or CANCELLED an order is never mutated again.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Quantity    float64
	Price       float64 // limit price for LIMIT orders, fill price once filled
	Type        OrderType
	Status      OrderStatus
	RealizedPnL float64 // set on SELL fills
	CreatedAt   time.Time
}
