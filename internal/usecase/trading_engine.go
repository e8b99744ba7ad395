package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_paper_trader/internal/domain"
	"go.uber.org/zap"
)

type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Fallback reference for signals arriving before any market data is known.
const defaultReferencePrice = 100000.0

// Fraction of the cash balance a signal-sized order may consume.
const cashReserveFactor = 0.95

// RiskParams are the engine's risk limits and exit thresholds.
type RiskParams struct {
	MaxPositionSize float64 // max order notional
	MaxDrawdown     float64
	StopLossPct     float64
	TakeProfitPct   float64
}

// TradingEngine is the sole mutator of the portfolio. All mutating entry
// points run under one mutex: periodic flows and signal callbacks may call
// in from different goroutines.
//
// Persistence is best-effort write-through: store errors are logged and
// the in-memory state stays authoritative for the process lifetime.
type TradingEngine struct {
	mode      Mode
	risk      RiskParams
	sim       *FillSimulator
	orders    domain.OrderRepository
	positions domain.PositionRepository
	logger    *zap.Logger

	mu             sync.Mutex
	portfolio      *domain.Portfolio
	pending        map[string]*domain.Order
	filled         map[string]*domain.Order
	lastPrices     map[string]float64
	initialBalance float64
	peakEquity     float64
}

func NewTradingEngine(
	mode Mode,
	initialBalance float64,
	risk RiskParams,
	sim *FillSimulator,
	orders domain.OrderRepository,
	positions domain.PositionRepository,
	logger *zap.Logger,
) *TradingEngine {
	return &TradingEngine{
		mode:           mode,
		risk:           risk,
		sim:            sim,
		orders:         orders,
		positions:      positions,
		logger:         logger,
		portfolio:      domain.NewPortfolio(initialBalance),
		pending:        make(map[string]*domain.Order),
		filled:         make(map[string]*domain.Order),
		lastPrices:     make(map[string]float64),
		initialBalance: initialBalance,
		peakEquity:     initialBalance,
	}
}

// LoadPositions restores open positions persisted by a previous run.
func (e *TradingEngine) LoadPositions(ctx context.Context) error {
	positions, err := e.positions.OpenPositions(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, pos := range positions {
		e.portfolio.Positions[pos.Symbol] = pos
		if pos.CurrentPrice > 0 {
			e.lastPrices[pos.Symbol] = pos.CurrentPrice
		}
	}
	e.logger.Info("Loaded open positions", zap.Int("count", len(positions)))
	return nil
}

// PlaceOrder validates the order, runs risk checks, records it PENDING and
// (paper mode, immediately marketable orders only) fills it synchronously.
// Business rejections return an empty id and a nil error; only unexpected
// system failures are errors.
func (e *TradingEngine) PlaceOrder(ctx context.Context, symbol string, side domain.Side, quantity float64, orderType domain.OrderType, price float64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placeOrderLocked(ctx, symbol, side, quantity, orderType, price), nil
}

func (e *TradingEngine) placeOrderLocked(ctx context.Context, symbol string, side domain.Side, quantity float64, orderType domain.OrderType, price float64) string {
	if quantity <= 0 {
		e.logger.Warn("Invalid order quantity",
			zap.String("symbol", symbol), zap.Float64("quantity", quantity))
		return ""
	}

	marketRef, hasRef := e.referencePriceLocked(symbol, orderType, price)
	riskPrice := price
	if riskPrice <= 0 {
		riskPrice = marketRef
	}
	// Risk limits gate position-increasing orders only. A SELL reduces
	// exposure and adds cash, so stop-loss and take-profit exits must
	// never be blocked by them.
	if side == domain.SideBuy && !e.checkRiskLimitsLocked(symbol, quantity, riskPrice) {
		return ""
	}

	order := &domain.Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Type:      orderType,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now(),
	}
	e.pending[order.ID] = order

	if err := e.orders.SaveOrder(ctx, order); err != nil {
		e.logger.Error("Failed to persist order", zap.String("order_id", order.ID), zap.Error(err))
	}

	// Live orders stay PENDING: there is no broker path to a fill.
	if e.mode == ModePaper && hasRef {
		e.simulateFillLocked(ctx, order, marketRef)
	}

	return order.ID
}

// referencePriceLocked picks the market price used for fills and risk
// notionals. Market orders take the caller's price when given; otherwise
// the last observed price, with a fixed fallback. Limit orders need a real
// observation to judge marketability.
func (e *TradingEngine) referencePriceLocked(symbol string, orderType domain.OrderType, price float64) (float64, bool) {
	if orderType == domain.OrderTypeMarket && price > 0 {
		return price, true
	}
	if last, ok := e.lastPrices[symbol]; ok && last > 0 {
		return last, true
	}
	if orderType == domain.OrderTypeMarket {
		return defaultReferencePrice, true
	}
	return 0, false
}

func (e *TradingEngine) checkRiskLimitsLocked(symbol string, quantity, price float64) bool {
	notional := quantity * price

	if notional > e.risk.MaxPositionSize {
		e.logger.Warn("Order rejected: position size limit",
			zap.String("symbol", symbol),
			zap.Float64("notional", notional),
			zap.Float64("limit", e.risk.MaxPositionSize))
		return false
	}

	if notional > e.portfolio.CashBalance {
		e.logger.Warn("Order rejected: insufficient funds",
			zap.String("symbol", symbol),
			zap.Float64("required", notional),
			zap.Float64("available", e.portfolio.CashBalance))
		return false
	}

	drawdown := (e.peakEquity - e.portfolio.Equity()) / e.peakEquity
	if drawdown > e.risk.MaxDrawdown {
		e.logger.Warn("Order rejected: maximum drawdown exceeded",
			zap.String("symbol", symbol),
			zap.Float64("drawdown", drawdown),
			zap.Float64("limit", e.risk.MaxDrawdown))
		return false
	}

	return true
}

func (e *TradingEngine) simulateFillLocked(ctx context.Context, order *domain.Order, marketPrice float64) {
	switch order.Type {
	case domain.OrderTypeMarket:
		fillPrice := e.sim.FillPrice(marketPrice, order.Quantity, order.Side)
		e.fillLocked(ctx, order, fillPrice)
	case domain.OrderTypeLimit:
		if e.sim.LimitFills(order, marketPrice) {
			e.fillLocked(ctx, order, order.Price)
		}
		// Otherwise the order simply stays PENDING.
	}
}

func (e *TradingEngine) fillLocked(ctx context.Context, order *domain.Order, fillPrice float64) {
	order.Price = fillPrice
	order.Status = domain.OrderStatusFilled

	e.updatePortfolioLocked(ctx, order)

	delete(e.pending, order.ID)
	e.filled[order.ID] = order

	if err := e.orders.UpdateOrder(ctx, order); err != nil {
		e.logger.Error("Failed to persist fill", zap.String("order_id", order.ID), zap.Error(err))
	}

	e.logger.Info("Order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("price", fillPrice))
}

func (e *TradingEngine) updatePortfolioLocked(ctx context.Context, order *domain.Order) {
	switch order.Side {
	case domain.SideBuy:
		e.portfolio.CashBalance -= order.Quantity * order.Price

		if pos, ok := e.portfolio.Positions[order.Symbol]; ok {
			totalCost := pos.Quantity*pos.EntryPrice + order.Quantity*order.Price
			pos.Quantity += order.Quantity
			pos.EntryPrice = totalCost / pos.Quantity
			pos.CurrentPrice = order.Price
			if err := e.positions.UpdatePosition(ctx, pos); err != nil {
				e.logger.Error("Failed to persist position", zap.String("symbol", pos.Symbol), zap.Error(err))
			}
		} else {
			pos := &domain.Position{
				Symbol:       order.Symbol,
				Quantity:     order.Quantity,
				EntryPrice:   order.Price,
				CurrentPrice: order.Price,
				EntryTime:    time.Now(),
			}
			e.portfolio.Positions[order.Symbol] = pos
			if err := e.positions.SavePosition(ctx, pos); err != nil {
				e.logger.Error("Failed to persist position", zap.String("symbol", pos.Symbol), zap.Error(err))
			}
		}
		e.lastPrices[order.Symbol] = order.Price

	case domain.SideSell:
		pos, ok := e.portfolio.Positions[order.Symbol]
		if !ok {
			return
		}

		order.RealizedPnL = order.Quantity * (order.Price - pos.EntryPrice)
		e.portfolio.CashBalance += order.Quantity * order.Price

		pos.Quantity -= order.Quantity
		if pos.Quantity <= 0 {
			delete(e.portfolio.Positions, order.Symbol)
			if err := e.positions.DeletePosition(ctx, order.Symbol); err != nil {
				e.logger.Error("Failed to delete position", zap.String("symbol", order.Symbol), zap.Error(err))
			}
		} else {
			pos.CurrentPrice = order.Price
			if err := e.positions.UpdatePosition(ctx, pos); err != nil {
				e.logger.Error("Failed to persist position", zap.String("symbol", pos.Symbol), zap.Error(err))
			}
		}
		e.lastPrices[order.Symbol] = order.Price

		// Peak equity is monotonic: it only ever ratchets up.
		if equity := e.portfolio.Equity(); equity > e.peakEquity {
			e.peakEquity = equity
		}
	}
}

// ProcessSignal turns an analyzer signal into an order. Candidate size is
// suggested size scaled by confidence, capped by the cash reserve and the
// position size limit; a non-positive size skips the signal.
func (e *TradingEngine) ProcessSignal(ctx context.Context, sig *domain.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Info("Processing signal",
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)),
		zap.Float64("confidence", sig.Confidence))

	size := sig.SuggestedPositionSize * sig.Confidence
	size = math.Min(size, e.portfolio.CashBalance*cashReserveFactor)
	size = math.Min(size, e.risk.MaxPositionSize)
	if size <= 0 {
		e.logger.Info("Position size too small, skipping signal", zap.String("symbol", sig.Symbol))
		return
	}

	pos, ok := e.portfolio.Positions[sig.Symbol]
	hasPosition := ok && pos.Quantity > 0

	switch sig.Action {
	case domain.SignalBuy:
		if hasPosition {
			return
		}
		ref, _ := e.referencePriceLocked(sig.Symbol, domain.OrderTypeMarket, 0)
		quantity := size / ref
		e.placeOrderLocked(ctx, sig.Symbol, domain.SideBuy, quantity, domain.OrderTypeMarket, ref)

	case domain.SignalSell:
		if !hasPosition {
			return
		}
		price := pos.CurrentPrice
		e.placeOrderLocked(ctx, sig.Symbol, domain.SideSell, pos.Quantity, domain.OrderTypeMarket, price)

	case domain.SignalHold:
		e.logger.Info("Holding position", zap.String("symbol", sig.Symbol))
	}
}

// UpdatePositionPrices refreshes positions that have a price update and
// enforces exits. Stop-loss is evaluated before take-profit. Symbols
// absent from the map keep their last observed price and P&L.
func (e *TradingEngine) UpdatePositionPrices(ctx context.Context, prices map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for symbol, price := range prices {
		e.lastPrices[symbol] = price
	}

	for symbol, pos := range e.portfolio.Positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}

		pos.CurrentPrice = price
		pos.UnrealizedPnL = pos.Quantity * (price - pos.EntryPrice)

		// An exit already in flight (live mode) must not be duplicated
		// by the next identical price update.
		if e.hasPendingSellLocked(symbol) {
			continue
		}

		lossPct := (pos.EntryPrice - price) / pos.EntryPrice
		if lossPct >= e.risk.StopLossPct {
			e.logger.Info("Stop loss triggered",
				zap.String("symbol", symbol), zap.Float64("price", price))
			e.placeOrderLocked(ctx, symbol, domain.SideSell, pos.Quantity, domain.OrderTypeMarket, price)
			continue
		}

		profitPct := (price - pos.EntryPrice) / pos.EntryPrice
		if profitPct >= e.risk.TakeProfitPct {
			e.logger.Info("Take profit triggered",
				zap.String("symbol", symbol), zap.Float64("price", price))
			e.placeOrderLocked(ctx, symbol, domain.SideSell, pos.Quantity, domain.OrderTypeMarket, price)
			continue
		}

		if err := e.positions.UpdatePosition(ctx, pos); err != nil {
			e.logger.Error("Failed to persist position", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func (e *TradingEngine) hasPendingSellLocked(symbol string) bool {
	for _, o := range e.pending {
		if o.Symbol == symbol && o.Side == domain.SideSell {
			return true
		}
	}
	return false
}

// CancelOrder removes a PENDING order. It cannot retract a fill.
func (e *TradingEngine) CancelOrder(ctx context.Context, orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.pending[orderID]
	if !ok {
		return false
	}

	order.Status = domain.OrderStatusCancelled
	delete(e.pending, orderID)

	if err := e.orders.UpdateOrder(ctx, order); err != nil {
		e.logger.Error("Failed to persist cancellation", zap.String("order_id", orderID), zap.Error(err))
	}

	e.logger.Info("Order cancelled", zap.String("order_id", orderID))
	return true
}

// Portfolio returns a snapshot copy of the portfolio.
func (e *TradingEngine) Portfolio() domain.Portfolio {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := domain.Portfolio{
		CashBalance: e.portfolio.CashBalance,
		Positions:   make(map[string]*domain.Position, len(e.portfolio.Positions)),
	}
	for symbol, pos := range e.portfolio.Positions {
		p := *pos
		snapshot.Positions[symbol] = &p
	}
	return snapshot
}

func (e *TradingEngine) Position(symbol string) (domain.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.portfolio.Positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

func (e *TradingEngine) Positions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions := make([]domain.Position, 0, len(e.portfolio.Positions))
	for _, pos := range e.portfolio.Positions {
		positions = append(positions, *pos)
	}
	return positions
}

func (e *TradingEngine) Order(orderID string) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o, ok := e.pending[orderID]; ok {
		return *o, true
	}
	if o, ok := e.filled[orderID]; ok {
		return *o, true
	}
	return domain.Order{}, false
}

func (e *TradingEngine) PendingOrders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	orders := make([]domain.Order, 0, len(e.pending))
	for _, o := range e.pending {
		orders = append(orders, *o)
	}
	return orders
}

func (e *TradingEngine) Equity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.portfolio.Equity()
}

// TotalPnL is the equity change since the engine started.
func (e *TradingEngine) TotalPnL() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.portfolio.Equity() - e.initialBalance
}

// WinRate is the fraction of closed trades with positive realized P&L,
// computed from the store; 0 when no trades closed or the store fails.
func (e *TradingEngine) WinRate(ctx context.Context) float64 {
	wins, losses, err := e.orders.TradeStats(ctx)
	if err != nil {
		e.logger.Error("Failed to read trade stats", zap.Error(err))
		return 0
	}
	total := wins + losses
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}
