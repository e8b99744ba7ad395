package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_paper_trader/internal/config"
	"github.com/vitos/crypto_paper_trader/internal/infrastructure/exchange"
	"github.com/vitos/crypto_paper_trader/internal/infrastructure/logger"
	"github.com/vitos/crypto_paper_trader/internal/infrastructure/storage"
	"github.com/vitos/crypto_paper_trader/internal/ipc"
	"github.com/vitos/crypto_paper_trader/internal/peer"
	"github.com/vitos/crypto_paper_trader/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFile(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.New(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Trading system starting",
		zap.String("mode", cfg.Trading.Mode),
		zap.Float64("initial_balance", cfg.Trading.InitialBalance),
		zap.Strings("symbols", cfg.Symbols))

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Market Data Source
	bybitAdapter := exchange.NewBybitAdapter(cfg.MarketData.RESTEndpoint, cfg.MarketData.WSEndpoint, log)

	// 5. Init IPC channel and start the reader
	channel, err := ipc.NewPipeChannel(cfg.IPC.PipeName)
	if err != nil {
		log.Fatal("Failed to init IPC channel", zap.Error(err))
	}
	defer channel.Close()
	if err := channel.Start(); err != nil {
		log.Fatal("Failed to start IPC channel", zap.Error(err))
	}

	// 6. Launch the analyzer peer and give it time to come up
	supervisor := peer.NewSupervisor(cfg.Peer.Command, cfg.Peer.Args, cfg.PeerStopTimeout(), log)
	if err := supervisor.Start(); err != nil {
		log.Fatal("Failed to start analyzer process", zap.Error(err))
	}
	time.Sleep(cfg.PeerReadyWait())
	if !supervisor.IsRunning() {
		log.Fatal("Analyzer process died during startup")
	}

	// 7. Init Trading Engine
	sim := usecase.NewFillSimulator(
		cfg.Simulation.SlippageRate,
		cfg.Simulation.SpreadRate,
		cfg.Simulation.FillProbability,
		nil)
	engine := usecase.NewTradingEngine(
		usecase.Mode(cfg.Trading.Mode),
		cfg.Trading.InitialBalance,
		usecase.RiskParams{
			MaxPositionSize: cfg.Trading.MaxPositionSize,
			MaxDrawdown:     cfg.Trading.MaxDrawdown,
			StopLossPct:     cfg.Trading.StopLossPct,
			TakeProfitPct:   cfg.Trading.TakeProfitPct,
		},
		sim, store, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.LoadPositions(ctx); err != nil {
		log.Error("Failed to load open positions", zap.Error(err))
	}

	// 8. Control loop
	service := usecase.NewTraderService(
		usecase.TraderServiceConfig{
			Symbols:           cfg.Symbols,
			DataFetchInterval: cfg.DataFetchInterval(),
			AnalysisInterval:  cfg.AnalysisInterval(),
			StatusInterval:    cfg.StatusInterval(),
		},
		engine, channel, bybitAdapter, store, log)

	// Optional live ticker stream on top of the polling loop.
	if cfg.MarketData.StreamEnabled {
		bybitAdapter.OnPriceUpdate(func(symbol string, price float64) {
			service.OnStreamPrice(ctx, symbol, price)
		})
		if err := bybitAdapter.ConnectWS(cfg.Symbols); err != nil {
			log.Error("Failed to connect price stream", zap.Error(err))
		}
	}

	go service.Run(ctx)

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()

	supervisor.Stop()
	channel.Stop()
	bybitAdapter.CloseWS()

	log.Info("Final portfolio",
		zap.Float64("equity", engine.Equity()),
		zap.Float64("pnl", engine.TotalPnL()))
	log.Info("Shutdown complete")
}
