package backtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"trades-backtest/internal/cost"
	"trades-backtest/internal/errs"
	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// seedStream 为 PCG 的第二个种子，固定以保证可复现。
const seedStream = 0x9e3779b97f4a7c15

// Result 汇总回测结果：报告、完整账本与权益曲线。
type Result struct {
	Report      Report        `json:"report"`
	Ledger      []Fill        `json:"ledger"`
	EquityCurve []EquityPoint `json:"equity_curve"`
}

// RunError 记录失败发生的K线位置，BarIndex 为 -1 表示与具体K线无关。
type RunError struct {
	BarIndex  int
	Timestamp time.Time
	Err       error
}

func (e *RunError) Error() string {
	if e.BarIndex < 0 {
		return fmt.Sprintf("backtest: 回测失败: %v", e.Err)
	}
	return fmt.Sprintf("backtest: 第 %d 根K线 (%s) 回测失败: %v",
		e.BarIndex, e.Timestamp.UTC().Format(time.RFC3339), e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Kind 返回错误类别名称。
func (e *RunError) Kind() string {
	return errs.KindOf(e.Err)
}

// Option 调整引擎行为。
type Option func(*Engine)

// WithStrategyFactory 替换按配置构建的策略。
func WithStrategyFactory(factory StrategyFactory) Option {
	return func(e *Engine) {
		if factory != nil {
			e.factory = factory
		}
	}
}

// Engine 串联指标、策略、模拟撮合与报告构建。自身不可变，可被多个并发运行共享。
type Engine struct {
	cfg     Config
	model   cost.Model
	factory StrategyFactory
	logger  *zap.Logger
}

// NewEngine 校验配置并构建回测引擎。
func NewEngine(cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.normalize()

	model, err := cost.New(cfg.Cost)
	if err != nil {
		return nil, err
	}
	if err := indicator.ValidateWindows(cfg.Windows); err != nil {
		return nil, err
	}
	switch cfg.Sizing.Mode {
	case SizingFixed:
	case SizingEquityFraction:
		if cfg.Sizing.Fraction <= 0 {
			return nil, fmt.Errorf("backtest: equity_fraction 需要正的 fraction: %w", errs.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("backtest: 无法识别的仓位模式 %q: %w", cfg.Sizing.Mode, errs.ErrConfiguration)
	}
	if !finite(cfg.InitialEquity) {
		return nil, fmt.Errorf("backtest: 初始资金非有限数: %w", errs.ErrConfiguration)
	}

	e := &Engine{
		cfg:     cfg,
		model:   model,
		factory: configuredStrategy(cfg.Strategy),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config 返回规范化后的配置副本。
func (e *Engine) Config() Config {
	return e.cfg.normalize()
}

// Run 执行一次完整回测。失败时不返回任何部分结果。
func (e *Engine) Run(ctx context.Context, bars []market.Bar) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if err := market.ValidateSeries(bars); err != nil {
		var seriesErr *market.SeriesError
		if errors.As(err, &seriesErr) {
			return Result{}, &RunError{BarIndex: seriesErr.Index, Timestamp: seriesErr.Timestamp, Err: seriesErr.Err}
		}
		return Result{}, &RunError{BarIndex: -1, Err: err}
	}

	frame, err := indicator.Compute(bars, e.cfg.Windows)
	if err != nil {
		return Result{}, &RunError{BarIndex: -1, Err: err}
	}

	strat, err := e.factory(frame, e.newRand())
	if err != nil {
		return Result{}, &RunError{BarIndex: -1, Err: err}
	}

	logger := e.logger.With(zap.String("symbol", e.cfg.Symbol), zap.String("strategy", strat.Name()))
	logger.Info("开始回测",
		zap.Int("bars", len(bars)),
		zap.Time("start", bars[0].Timestamp),
		zap.Time("end", bars[len(bars)-1].Timestamp),
	)

	sim := NewSimulator(e.cfg.InitialEquity, e.model, e.cfg.Sizing, strat, logger)
	last := len(bars) - 1
	for i, bar := range bars {
		if err := sim.Step(frame.View(i), bar, i == last); err != nil {
			return Result{}, &RunError{BarIndex: i, Timestamp: bar.Timestamp, Err: err}
		}
	}

	ledger := sim.Ledger()
	curve := sim.EquityCurve()
	report, err := BuildReport(ReportInput{
		InitialEquity:  e.cfg.InitialEquity,
		Ledger:         ledger,
		EquityCurve:    curve,
		PeriodsPerYear: e.cfg.PeriodsPerYear,
	})
	if err != nil {
		return Result{}, &RunError{BarIndex: last, Timestamp: bars[last].Timestamp, Err: err}
	}
	report.Symbol = e.cfg.Symbol
	report.Strategy = strat.Name()

	logger.Info("回测完成",
		zap.Float64("pnl", report.PnL),
		zap.Float64("max_drawdown", report.MaxDrawdown),
		zap.Int("trades", report.TradeCount),
		zap.Float64("commission", report.TotalCommission),
		zap.Float64("slippage", report.TotalSlippage),
	)

	return Result{Report: report, Ledger: ledger, EquityCurve: curve}, nil
}

// newRand 每次运行创建独立的随机源；未配置种子时返回 nil。
func (e *Engine) newRand() *rand.Rand {
	if e.cfg.Seed == nil {
		return nil
	}
	return rand.New(rand.NewPCG(*e.cfg.Seed, seedStream))
}
