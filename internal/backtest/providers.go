package backtest

import (
	"errors"
	"math/rand/v2"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

// StrategyFactory 为每次运行构建独立的策略实例。
type StrategyFactory func(frame *indicator.Frame, rng *rand.Rand) (strategy.Strategy, error)

// SignalFunc 允许使用函数作为策略，便于在回测中注入自定义信号源。
type SignalFunc func(view indicator.View, bar market.Bar) (strategy.Signal, error)

// Name 返回固定名称。
func (f SignalFunc) Name() string {
	return "func"
}

// Produce 调用底层函数。
func (f SignalFunc) Produce(view indicator.View, bar market.Bar) (strategy.Signal, error) {
	if f == nil {
		return strategy.Hold, errors.New("backtest: 信号函数未实现")
	}
	return f(view, bar)
}

func configuredStrategy(cfg strategy.Config) StrategyFactory {
	return func(frame *indicator.Frame, rng *rand.Rand) (strategy.Strategy, error) {
		return strategy.New(cfg, frame, rng)
	}
}
