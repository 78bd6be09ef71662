package backtest

import (
	"trades-backtest/internal/cost"
	"trades-backtest/internal/strategy"
)

// 仓位规模模式。
const (
	SizingFixed          = "fixed"
	SizingEquityFraction = "equity_fraction"
)

// Sizing 决定开仓数量。
type Sizing struct {
	Mode     string  `mapstructure:"mode" json:"mode"`
	Quantity float64 `mapstructure:"quantity" json:"quantity"` // fixed 模式下的数量
	Fraction float64 `mapstructure:"fraction" json:"fraction"` // equity_fraction 模式下占净值比例
}

// Config 定义一次回测的全部参数。
type Config struct {
	Symbol         string          `json:"symbol"`
	InitialEquity  float64         `json:"initial_equity"`
	Sizing         Sizing          `json:"sizing"`
	Cost           cost.Config     `json:"cost"`
	Strategy       strategy.Config `json:"strategy"`
	Windows        map[string]int  `json:"window_sizes"`
	Seed           *uint64         `json:"seed,omitempty"`
	PeriodsPerYear float64         `json:"periods_per_year"`
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = 10000
	}
	if cfg.Sizing.Mode == "" {
		cfg.Sizing.Mode = SizingFixed
	}
	if cfg.Sizing.Mode == SizingFixed && cfg.Sizing.Quantity <= 0 {
		cfg.Sizing.Quantity = 1
	}
	if cfg.Cost.Slippage.Model == "" {
		cfg.Cost.Slippage.Model = cost.SlippageFixedFraction
	}
	if cfg.Cost.Commission.Model == "" {
		cfg.Cost.Commission.Model = cost.CommissionFixed
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	windows := make(map[string]int, len(cfg.Windows))
	for name, w := range cfg.Windows {
		windows[name] = w
	}
	cfg.Windows = windows
	if cfg.Seed != nil {
		seed := *cfg.Seed
		cfg.Seed = &seed
	}
	return cfg
}
