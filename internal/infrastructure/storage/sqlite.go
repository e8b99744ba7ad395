package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_paper_trader/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			order_type TEXT NOT NULL,
			status TEXT NOT NULL,
			realized_pnl REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);`,
		`CREATE TABLE IF NOT EXISTS positions (
			symbol TEXT PRIMARY KEY,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			current_price REAL NOT NULL,
			unrealized_pnl REAL NOT NULL DEFAULT 0,
			entry_time DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS market_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			timestamp DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_market_data_symbol_ts ON market_data(symbol, timestamp);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// OrderRepository implementation

func (s *SQLiteStore) SaveOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (id, symbol, side, quantity, price, order_type, status, realized_pnl, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		order.ID, order.Symbol, order.Side, order.Quantity, order.Price,
		order.Type, order.Status, order.RealizedPnL, order.CreatedAt)
	return err
}

func (s *SQLiteStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	query := `UPDATE orders SET status = ?, price = ?, realized_pnl = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, order.Status, order.Price, order.RealizedPnL, order.ID)
	return err
}

func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `SELECT id, symbol, side, quantity, price, order_type, status, realized_pnl, created_at
			  FROM orders ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.Symbol, &o.Side, &o.Quantity, &o.Price, &o.Type, &o.Status, &o.RealizedPnL, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) TradeStats(ctx context.Context) (int, int, error) {
	query := `SELECT
			  COUNT(CASE WHEN realized_pnl > 0 THEN 1 END),
			  COUNT(CASE WHEN realized_pnl < 0 THEN 1 END)
			  FROM orders WHERE side = ? AND status = ?`
	var wins, losses int
	err := s.db.QueryRowContext(ctx, query, domain.SideSell, domain.OrderStatusFilled).Scan(&wins, &losses)
	if err != nil {
		return 0, 0, err
	}
	return wins, losses, nil
}

// PositionRepository implementation

func (s *SQLiteStore) SavePosition(ctx context.Context, position *domain.Position) error {
	query := `INSERT INTO positions (symbol, quantity, entry_price, current_price, unrealized_pnl, entry_time)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON CONFLICT(symbol) DO UPDATE SET
			  quantity=excluded.quantity,
			  entry_price=excluded.entry_price,
			  current_price=excluded.current_price,
			  unrealized_pnl=excluded.unrealized_pnl`
	_, err := s.db.ExecContext(ctx, query,
		position.Symbol, position.Quantity, position.EntryPrice,
		position.CurrentPrice, position.UnrealizedPnL, position.EntryTime)
	return err
}

func (s *SQLiteStore) UpdatePosition(ctx context.Context, position *domain.Position) error {
	query := `UPDATE positions SET quantity = ?, entry_price = ?, current_price = ?, unrealized_pnl = ? WHERE symbol = ?`
	_, err := s.db.ExecContext(ctx, query,
		position.Quantity, position.EntryPrice, position.CurrentPrice,
		position.UnrealizedPnL, position.Symbol)
	return err
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM positions WHERE symbol = ?", symbol)
	return err
}

func (s *SQLiteStore) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT symbol, quantity, entry_price, current_price, unrealized_pnl, entry_time FROM positions WHERE quantity > 0`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.Symbol, &p.Quantity, &p.EntryPrice, &p.CurrentPrice, &p.UnrealizedPnL, &p.EntryTime); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// MarketDataRepository implementation

func (s *SQLiteStore) SaveMarketData(ctx context.Context, data *domain.MarketData) error {
	query := `INSERT INTO market_data (symbol, open, high, low, close, volume, timestamp)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		data.Symbol, data.Open, data.High, data.Low, data.Close, data.Volume, data.Timestamp)
	return err
}

func (s *SQLiteStore) LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	query := `SELECT close FROM market_data WHERE symbol = ? ORDER BY timestamp DESC, id DESC LIMIT 1`

	prices := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		var close float64
		err := s.db.QueryRowContext(ctx, query, symbol).Scan(&close)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		prices[symbol] = close
	}
	return prices, nil
}
