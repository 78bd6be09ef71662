package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/cost"
	"trades-backtest/internal/indicator"
	"trades-backtest/internal/strategy"
)

// 行情来源类型。
const (
	SourceCSV      = "csv"
	SourceParquet  = "parquet"
	SourceExchange = "exchange"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Sources  []SourceConfig `mapstructure:"sources"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BacktestConfig 为所有来源共用的回测参数。
type BacktestConfig struct {
	Symbol         string          `mapstructure:"symbol"`
	InitialEquity  float64         `mapstructure:"initial_equity"`
	WindowSizes    map[string]int  `mapstructure:"window_sizes"`
	Slippage       cost.Policy     `mapstructure:"slippage"`
	Commission     cost.Policy     `mapstructure:"commission"`
	Seed           *uint64         `mapstructure:"seed"`
	Sizing         backtest.Sizing `mapstructure:"sizing"`
	Strategy       strategy.Config `mapstructure:"strategy"`
	PeriodsPerYear float64         `mapstructure:"periods_per_year"`
}

// SourceConfig 描述一组行情数据。
type SourceConfig struct {
	Name      string    `mapstructure:"name"`
	Symbol    string    `mapstructure:"symbol"`
	Kind      string    `mapstructure:"kind"`
	Path      string    `mapstructure:"path"`
	Timeframe string    `mapstructure:"timeframe"`
	Since     time.Time `mapstructure:"since"`
	Limit     int       `mapstructure:"limit"`
	Cache     string    `mapstructure:"cache"` // exchange 来源的 Parquet 缓存路径
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RunnerConfig 控制并行回测数量。
type RunnerConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
	// Fields 附加到每条日志的固定字段，例如回测批次标识。
	Fields map[string]string `mapstructure:"fields"`
}

// ServerConfig 控制只读查询接口。
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// EngineConfig 将回测配置转换为某个来源的引擎参数。
func (c BacktestConfig) EngineConfig(symbol string) backtest.Config {
	if symbol == "" {
		symbol = c.Symbol
	}
	return backtest.Config{
		Symbol:        symbol,
		InitialEquity: c.InitialEquity,
		Sizing:        c.Sizing,
		Cost: cost.Config{
			Slippage:   c.Slippage,
			Commission: c.Commission,
		},
		Strategy:       c.Strategy,
		Windows:        c.WindowSizes,
		Seed:           c.Seed,
		PeriodsPerYear: c.PeriodsPerYear,
	}
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Backtest.InitialEquity <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_equity 必须大于0"))
	}
	if e := indicator.ValidateWindows(c.Backtest.WindowSizes); e != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.window_sizes: %w", e))
	}
	if _, e := cost.New(cost.Config{Slippage: c.Backtest.Slippage, Commission: c.Backtest.Commission}); e != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.slippage/commission: %w", e))
	}
	switch c.Backtest.Sizing.Mode {
	case backtest.SizingFixed:
		if c.Backtest.Sizing.Quantity <= 0 {
			err = multierr.Append(err, errors.New("backtest.sizing.quantity 必须大于0"))
		}
	case backtest.SizingEquityFraction:
		if c.Backtest.Sizing.Fraction <= 0 || c.Backtest.Sizing.Fraction > 1 {
			err = multierr.Append(err, errors.New("backtest.sizing.fraction 必须位于(0,1]"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("backtest.sizing.mode 无法识别: %q", c.Backtest.Sizing.Mode))
	}
	if c.Backtest.Strategy.Kind == "" {
		err = multierr.Append(err, errors.New("backtest.strategy.kind 不能为空"))
	}
	if strings.EqualFold(c.Backtest.Strategy.Kind, strategy.KindRandom) && c.Backtest.Seed == nil {
		err = multierr.Append(err, errors.New("random 策略需要配置 backtest.seed"))
	}
	if c.Backtest.PeriodsPerYear <= 0 {
		err = multierr.Append(err, errors.New("backtest.periods_per_year 必须大于0"))
	}

	if len(c.Sources) == 0 {
		err = multierr.Append(err, errors.New("sources 至少包含一个行情来源"))
	}
	names := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			err = multierr.Append(err, fmt.Errorf("sources[%d].name 不能为空", i))
		} else if _, dup := names[src.Name]; dup {
			err = multierr.Append(err, fmt.Errorf("sources[%d].name %q 重复", i, src.Name))
		}
		names[src.Name] = struct{}{}

		switch src.Kind {
		case SourceCSV, SourceParquet:
			if src.Path == "" {
				err = multierr.Append(err, fmt.Errorf("sources[%d].path 不能为空", i))
			}
			if src.Cache != "" {
				err = multierr.Append(err, fmt.Errorf("sources[%d].cache 仅适用于 exchange 来源", i))
			}
		case SourceExchange:
			if src.Symbol == "" {
				err = multierr.Append(err, fmt.Errorf("sources[%d].symbol 不能为空", i))
			}
			if src.Timeframe == "" {
				err = multierr.Append(err, fmt.Errorf("sources[%d].timeframe 不能为空", i))
			}
			if src.Limit < 0 {
				err = multierr.Append(err, fmt.Errorf("sources[%d].limit 不能为负", i))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("sources[%d].kind 无法识别: %q", i, src.Kind))
		}
	}

	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Runner.Parallelism <= 0 {
		err = multierr.Append(err, errors.New("runner.parallelism 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
