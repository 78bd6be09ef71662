package backtest

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"trades-backtest/internal/cost"
	"trades-backtest/internal/errs"
	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

// State 为模拟器状态。
type State int

const (
	StateAwaitingBar State = iota
	StateProcessing
	StateFlat
	StateLong
	StateShort
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingBar:
		return "awaiting_bar"
	case StateProcessing:
		return "processing"
	case StateFlat:
		return "flat"
	case StateLong:
		return "long"
	case StateShort:
		return "short"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Simulator 按时间顺序逐根K线撮合信号，独占持仓、账本与权益曲线。
type Simulator struct {
	initialEquity float64
	model         cost.Model
	sizing        Sizing
	strategy      strategy.Strategy
	logger        *zap.Logger

	state    State
	position Position
	ledger   []Fill
	curve    []EquityPoint
	lastBar  market.Bar
}

// NewSimulator 创建模拟器。
func NewSimulator(initialEquity float64, model cost.Model, sizing Sizing, strat strategy.Strategy, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		initialEquity: initialEquity,
		model:         model,
		sizing:        sizing,
		strategy:      strat,
		logger:        logger,
		state:         StateAwaitingBar,
	}
}

// Step 处理一根K线；final 为 true 时在记录净值前强制平仓。
func (s *Simulator) Step(view indicator.View, bar market.Bar, final bool) error {
	index := view.Index()
	switch {
	case s.state == StateClosed:
		return fmt.Errorf("backtest: 模拟已结束，拒绝第 %d 根K线: %w", index, errs.ErrInvalidParameter)
	case index != len(s.curve):
		return fmt.Errorf("backtest: K线序号 %d 不连续，期望 %d: %w", index, len(s.curve), errs.ErrInvalidParameter)
	case len(s.curve) > 0 && !bar.Timestamp.After(s.lastBar.Timestamp):
		return fmt.Errorf("backtest: 时间戳未严格递增: %w", errs.ErrInvalidParameter)
	}

	s.state = StateProcessing

	signal, err := s.strategy.Produce(view, bar)
	if err != nil {
		return err
	}
	if !signal.Valid() {
		return fmt.Errorf("backtest: 无法识别的信号 %s: %w", signal, errs.ErrInvalidOrder)
	}
	// 最后一根K线只允许平仓，不再开新仓
	if final && (signal == strategy.Long || signal == strategy.Short) {
		signal = strategy.Hold
	}

	target, err := s.target(signal, bar)
	if err != nil {
		return err
	}
	if delta := target - s.position.Quantity; delta != 0 {
		if err := s.execute(index, bar, delta, false); err != nil {
			return err
		}
	}

	if final && s.position.Quantity != 0 {
		if err := s.execute(index, bar, -s.position.Quantity, true); err != nil {
			return err
		}
	}

	pnl, equity, err := s.markToMarket(bar.Close)
	if err != nil {
		return err
	}
	s.curve = append(s.curve, EquityPoint{BarIndex: index, Timestamp: bar.Timestamp, PnL: pnl, Equity: equity})
	s.lastBar = bar

	switch {
	case final:
		s.state = StateClosed
	case s.position.Quantity > 0:
		s.state = StateLong
	case s.position.Quantity < 0:
		s.state = StateShort
	default:
		s.state = StateFlat
	}
	return nil
}

// target 将信号转换为目标持仓；同向信号不重复加仓。
func (s *Simulator) target(signal strategy.Signal, bar market.Bar) (float64, error) {
	current := s.position.Quantity
	switch signal {
	case strategy.Hold:
		return current, nil
	case strategy.Flat:
		return 0, nil
	case strategy.Long:
		if current > 0 {
			return current, nil
		}
		size, err := s.size(bar)
		return size, err
	case strategy.Short:
		if current < 0 {
			return current, nil
		}
		size, err := s.size(bar)
		return -size, err
	default:
		return current, fmt.Errorf("backtest: 无法识别的信号 %s: %w", signal, errs.ErrInvalidOrder)
	}
}

func (s *Simulator) size(bar market.Bar) (float64, error) {
	var size float64
	switch s.sizing.Mode {
	case SizingFixed:
		size = s.sizing.Quantity
	case SizingEquityFraction:
		_, equity, err := s.markToMarket(bar.Close)
		if err != nil {
			return 0, err
		}
		size = s.sizing.Fraction * equity / bar.Close
	default:
		return 0, fmt.Errorf("backtest: 无法识别的仓位模式 %q: %w", s.sizing.Mode, errs.ErrConfiguration)
	}
	if !finite(size) {
		return 0, fmt.Errorf("backtest: 开仓数量 %v 非有限数: %w", size, errs.ErrNumeric)
	}
	if size <= 0 {
		return 0, fmt.Errorf("backtest: 开仓数量 %v 必须为正: %w", size, errs.ErrInvalidOrder)
	}
	return size, nil
}

func (s *Simulator) execute(index int, bar market.Bar, delta float64, forced bool) error {
	order := Order{
		Side:      sideFor(delta),
		Quantity:  math.Abs(delta),
		Price:     bar.Close,
		Timestamp: bar.Timestamp,
		BarIndex:  index,
	}

	slippage, err := s.model.Slippage(order.costOrder(), bar)
	if err != nil {
		return err
	}
	price, err := s.model.FillPrice(order.costOrder(), bar)
	if err != nil {
		return err
	}
	commission, err := s.model.Commission(order.costOrder(), price)
	if err != nil {
		return err
	}

	next := s.position
	closed, gross := next.apply(order.Side, order.Quantity, price)
	realized := gross - commission
	next.RealizedPnL += realized

	for _, v := range [...]float64{gross, realized, next.Quantity, next.AverageEntry, next.RealizedPnL} {
		if !finite(v) {
			return fmt.Errorf("backtest: 成交后持仓出现非有限数: %w", errs.ErrNumeric)
		}
	}

	fill := Fill{
		Side:           order.Side,
		Quantity:       order.Quantity,
		RequestedPrice: order.Price,
		Price:          price,
		Slippage:       slippage,
		Commission:     commission,
		ClosedQuantity: closed,
		RealizedPnL:    realized,
		Forced:         forced,
		BarIndex:       index,
		Timestamp:      order.Timestamp,
	}
	s.position = next
	s.ledger = append(s.ledger, fill)

	s.logger.Debug("模拟成交",
		zap.Int("bar", index),
		zap.String("side", string(fill.Side)),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("price", fill.Price),
		zap.Float64("commission", fill.Commission),
		zap.Float64("realized_pnl", fill.RealizedPnL),
		zap.Bool("forced", forced),
		zap.String("position", s.position.Side()),
	)
	return nil
}

// markToMarket 返回累计盈亏（已实现 + 浮动）及净值；空仓时盈亏恰为已实现盈亏。
func (s *Simulator) markToMarket(price float64) (pnl, equity float64, err error) {
	pnl = s.position.RealizedPnL
	if s.position.Quantity != 0 {
		pnl += s.position.Unrealized(price)
	}
	equity = s.initialEquity + pnl
	if !finite(pnl) || !finite(equity) {
		return 0, 0, fmt.Errorf("backtest: 盯市净值非有限数: %w", errs.ErrNumeric)
	}
	return pnl, equity, nil
}

// State 返回当前状态。
func (s *Simulator) State() State {
	return s.state
}

// Position 返回持仓快照。
func (s *Simulator) Position() Position {
	return s.position
}

// Ledger 返回成交账本副本。
func (s *Simulator) Ledger() []Fill {
	return append([]Fill(nil), s.ledger...)
}

// EquityCurve 返回权益曲线副本。
func (s *Simulator) EquityCurve() []EquityPoint {
	return append([]EquityPoint(nil), s.curve...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
