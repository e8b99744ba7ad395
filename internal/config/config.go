package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Trading struct {
		Mode            string  `yaml:"mode"` // "paper" or "live"
		InitialBalance  float64 `yaml:"initial_balance"`
		MaxPositionSize float64 `yaml:"max_position_size"` // max order notional
		MaxDrawdown     float64 `yaml:"max_drawdown"`
		StopLossPct     float64 `yaml:"stop_loss_pct"`
		TakeProfitPct   float64 `yaml:"take_profit_pct"`
	} `yaml:"trading"`

	Simulation struct {
		SlippageRate    float64 `yaml:"slippage_rate"`
		SpreadRate      float64 `yaml:"spread_rate"`
		FillProbability float64 `yaml:"fill_probability"`
	} `yaml:"simulation"`

	Symbols []string `yaml:"symbols"`

	Intervals struct {
		DataFetchSec int `yaml:"data_fetch_sec"`
		AnalysisSec  int `yaml:"analysis_sec"`
		StatusSec    int `yaml:"status_sec"`
	} `yaml:"intervals"`

	IPC struct {
		PipeName string `yaml:"pipe_name"`
	} `yaml:"ipc"`

	Peer struct {
		Command        string   `yaml:"command"`
		Args           []string `yaml:"args"`
		ReadyWaitSec   int      `yaml:"ready_wait_sec"`
		StopTimeoutSec int      `yaml:"stop_timeout_sec"`
	} `yaml:"peer"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	MarketData struct {
		RESTEndpoint  string `yaml:"rest_endpoint"`
		WSEndpoint    string `yaml:"ws_endpoint"`
		StreamEnabled bool   `yaml:"stream_enabled"`
	} `yaml:"market_data"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// Load reads the yaml config file, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Environment variables take precedence over the config file.
func (c *Config) applyEnv() {
	if mode := os.Getenv("TRADING_MODE"); mode != "" {
		c.Trading.Mode = mode
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) applyDefaults() {
	if c.Trading.Mode == "" {
		c.Trading.Mode = "paper"
	}
	if c.Trading.InitialBalance == 0 {
		c.Trading.InitialBalance = 10000
	}
	if c.Trading.MaxPositionSize == 0 {
		c.Trading.MaxPositionSize = 5000
	}
	if c.Trading.MaxDrawdown == 0 {
		c.Trading.MaxDrawdown = 0.20
	}
	if c.Trading.StopLossPct == 0 {
		c.Trading.StopLossPct = 0.02
	}
	if c.Trading.TakeProfitPct == 0 {
		c.Trading.TakeProfitPct = 0.05
	}
	if c.Simulation.SlippageRate == 0 {
		c.Simulation.SlippageRate = 0.001
	}
	if c.Simulation.SpreadRate == 0 {
		c.Simulation.SpreadRate = 0.0005
	}
	if c.Simulation.FillProbability == 0 {
		c.Simulation.FillProbability = 0.95
	}
	if c.Intervals.DataFetchSec == 0 {
		c.Intervals.DataFetchSec = 60
	}
	if c.Intervals.AnalysisSec == 0 {
		c.Intervals.AnalysisSec = 300
	}
	if c.Intervals.StatusSec == 0 {
		c.Intervals.StatusSec = 30
	}
	if c.IPC.PipeName == "" {
		c.IPC.PipeName = "/tmp/trading_pipe"
	}
	if c.Peer.Command == "" {
		c.Peer.Command = "python3"
		c.Peer.Args = []string{"market_data_analyzer.py"}
	}
	if c.Peer.ReadyWaitSec == 0 {
		c.Peer.ReadyWaitSec = 2
	}
	if c.Peer.StopTimeoutSec == 0 {
		c.Peer.StopTimeoutSec = 5
	}
	if c.Database.Path == "" {
		c.Database.Path = "trading.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Trading.Mode != "paper" && c.Trading.Mode != "live" {
		return fmt.Errorf("invalid trading mode %q", c.Trading.Mode)
	}
	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive, got %v", c.Trading.InitialBalance)
	}
	if c.Trading.MaxDrawdown <= 0 || c.Trading.MaxDrawdown >= 1 {
		return fmt.Errorf("max drawdown must be in (0,1), got %v", c.Trading.MaxDrawdown)
	}
	if c.Simulation.FillProbability < 0 || c.Simulation.FillProbability > 1 {
		return fmt.Errorf("fill probability must be in [0,1], got %v", c.Simulation.FillProbability)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	return nil
}

func (c *Config) DataFetchInterval() time.Duration {
	return time.Duration(c.Intervals.DataFetchSec) * time.Second
}

func (c *Config) AnalysisInterval() time.Duration {
	return time.Duration(c.Intervals.AnalysisSec) * time.Second
}

func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Intervals.StatusSec) * time.Second
}

func (c *Config) PeerReadyWait() time.Duration {
	return time.Duration(c.Peer.ReadyWaitSec) * time.Second
}

func (c *Config) PeerStopTimeout() time.Duration {
	return time.Duration(c.Peer.StopTimeoutSec) * time.Second
}
