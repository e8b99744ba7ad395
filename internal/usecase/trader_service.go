package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/vitos/crypto_paper_trader/internal/domain"
	"github.com/vitos/crypto_paper_trader/internal/ipc"
	"go.uber.org/zap"
)

// TraderServiceConfig holds the control-loop parameters.
type TraderServiceConfig struct {
	Symbols           []string
	DataFetchInterval time.Duration
	AnalysisInterval  time.Duration
	StatusInterval    time.Duration
}

// TraderService runs the periodic control loop: market-data refresh,
// analysis requests to the peer, position price updates and status
// reporting. Inbound peer messages arrive through the transport callback.
type TraderService struct {
	cfg        TraderServiceConfig
	engine     *TradingEngine
	channel    ipc.MessageChannel
	prices     domain.PriceSource
	marketData domain.MarketDataRepository
	logger     *zap.Logger
}

func NewTraderService(
	cfg TraderServiceConfig,
	engine *TradingEngine,
	channel ipc.MessageChannel,
	prices domain.PriceSource,
	marketData domain.MarketDataRepository,
	logger *zap.Logger,
) *TraderService {
	return &TraderService{
		cfg:        cfg,
		engine:     engine,
		channel:    channel,
		prices:     prices,
		marketData: marketData,
		logger:     logger,
	}
}

// Run registers the inbound callback and drives the tickers until the
// context is cancelled. Errors inside an iteration are logged, never
// fatal.
func (s *TraderService) Run(ctx context.Context) {
	s.channel.SetCallback(func(msg string) {
		s.HandleMessage(ctx, msg)
	})

	dataTicker := time.NewTicker(s.cfg.DataFetchInterval)
	defer dataTicker.Stop()
	analysisTicker := time.NewTicker(s.cfg.AnalysisInterval)
	defer analysisTicker.Stop()
	statusTicker := time.NewTicker(s.cfg.StatusInterval)
	defer statusTicker.Stop()

	// Prime prices before the first analysis round.
	s.FetchMarketData(ctx)
	s.RefreshPositions(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-dataTicker.C:
			s.FetchMarketData(ctx)
			s.RefreshPositions(ctx)
		case <-analysisTicker.C:
			s.RequestAnalysis()
		case <-statusTicker.C:
			s.LogStatus(ctx)
		}
	}
}

// FetchMarketData pulls the latest price per symbol and persists it.
// Failures are per symbol: one bad fetch does not stop the rest.
func (s *TraderService) FetchMarketData(ctx context.Context) {
	for _, symbol := range s.cfg.Symbols {
		data, err := s.prices.LatestPrice(ctx, symbol)
		if err != nil {
			s.logger.Error("Failed to fetch market data",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		if err := s.marketData.SaveMarketData(ctx, data); err != nil {
			s.logger.Error("Failed to persist market data",
				zap.String("symbol", symbol), zap.Error(err))
		}

		s.logger.Debug("Fetched price",
			zap.String("symbol", symbol), zap.Float64("price", data.Close))
	}
}

// RefreshPositions feeds the latest stored prices into the engine.
func (s *TraderService) RefreshPositions(ctx context.Context) {
	prices, err := s.marketData.LatestPrices(ctx, s.cfg.Symbols)
	if err != nil {
		s.logger.Error("Failed to load latest prices", zap.Error(err))
		return
	}
	if len(prices) == 0 {
		return
	}
	s.engine.UpdatePositionPrices(ctx, prices)
}

// RequestAnalysis asks the peer for a batch analysis of all symbols.
func (s *TraderService) RequestAnalysis() {
	msg, err := ipc.EncodeAnalysisRequest(s.cfg.Symbols)
	if err != nil {
		s.logger.Error("Failed to encode analysis request", zap.Error(err))
		return
	}
	if err := s.channel.Send(msg); err != nil {
		s.logger.Error("Failed to send analysis request", zap.Error(err))
		return
	}
	s.logger.Info("Requested market analysis", zap.Strings("symbols", s.cfg.Symbols))
}

// HandleMessage decodes one inbound peer message and routes signals into
// the engine. Malformed messages are logged and dropped.
func (s *TraderService) HandleMessage(ctx context.Context, msg string) {
	s.logger.Debug("Received peer message", zap.String("message", msg))

	sig, err := ipc.DecodeSignal(msg)
	if err != nil {
		var peerErr *ipc.PeerError
		switch {
		case errors.As(err, &peerErr):
			s.logger.Error("Analyzer reported error", zap.String("error", peerErr.Message))
		case errors.Is(err, ipc.ErrNotSignal):
			s.logger.Debug("Ignoring non-signal message")
		default:
			s.logger.Error("Failed to decode peer message", zap.Error(err))
		}
		return
	}

	s.engine.ProcessSignal(ctx, sig)
}

// OnStreamPrice handles a live ticker observation from the websocket
// stream, if one is connected.
func (s *TraderService) OnStreamPrice(ctx context.Context, symbol string, price float64) {
	s.engine.UpdatePositionPrices(ctx, map[string]float64{symbol: price})
}

// LogStatus reports the portfolio state.
func (s *TraderService) LogStatus(ctx context.Context) {
	portfolio := s.engine.Portfolio()

	s.logger.Info("Portfolio status",
		zap.Float64("cash", portfolio.CashBalance),
		zap.Float64("equity", portfolio.Equity()),
		zap.Float64("pnl", s.engine.TotalPnL()),
		zap.Float64("win_rate", s.engine.WinRate(ctx)),
		zap.Int("open_positions", len(portfolio.Positions)))

	for _, pos := range portfolio.Positions {
		s.logger.Info("Open position",
			zap.String("symbol", pos.Symbol),
			zap.Float64("quantity", pos.Quantity),
			zap.Float64("entry", pos.EntryPrice),
			zap.Float64("pnl_pct", pos.PnLPercent()))
	}
}
