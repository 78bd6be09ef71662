package cost

import (
	"fmt"
	"math"
	"strings"

	"trades-backtest/internal/errs"
	"trades-backtest/internal/market"
)

// 滑点模型。
const (
	SlippageFixedFraction = "fixed_fraction"
	SlippageFixedAmount   = "fixed_amount"
)

// 手续费模型。
const (
	CommissionFixed      = "fixed"
	CommissionPerUnit    = "per_unit"
	CommissionPercentage = "percentage"
)

// Side 表示订单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order 为成本计算所需的订单信息。
type Order struct {
	Side     Side
	Quantity float64
	Price    float64
}

// Policy 由模型名称与参数组成。
type Policy struct {
	Model string  `mapstructure:"model" json:"model"`
	Value float64 `mapstructure:"value" json:"value"`
}

// Config 描述一次回测使用的成本参数。
type Config struct {
	Slippage   Policy `mapstructure:"slippage" json:"slippage"`
	Commission Policy `mapstructure:"commission" json:"commission"`
}

// Model 计算滑点与手续费，自身不持有可变状态。
type Model struct {
	slippage   Policy
	commission Policy
}

// New 校验配置并构建 Model。
func New(cfg Config) (Model, error) {
	slip := normalizePolicy(cfg.Slippage)
	comm := normalizePolicy(cfg.Commission)

	switch slip.Model {
	case SlippageFixedFraction, SlippageFixedAmount:
	default:
		return Model{}, fmt.Errorf("cost: 无法识别的滑点模型 %q: %w", cfg.Slippage.Model, errs.ErrConfiguration)
	}
	switch comm.Model {
	case CommissionFixed, CommissionPerUnit, CommissionPercentage:
	default:
		return Model{}, fmt.Errorf("cost: 无法识别的手续费模型 %q: %w", cfg.Commission.Model, errs.ErrConfiguration)
	}
	if !finite(slip.Value) || slip.Value < 0 {
		return Model{}, fmt.Errorf("cost: 滑点参数 %v 必须为非负有限数: %w", slip.Value, errs.ErrConfiguration)
	}
	if !finite(comm.Value) || comm.Value < 0 {
		return Model{}, fmt.Errorf("cost: 手续费参数 %v 必须为非负有限数: %w", comm.Value, errs.ErrConfiguration)
	}

	return Model{slippage: slip, commission: comm}, nil
}

// Config 返回模型参数。
func (m Model) Config() Config {
	return Config{Slippage: m.slippage, Commission: m.commission}
}

// Slippage 返回订单的滑点成本（单位滑点乘以数量）。
func (m Model) Slippage(order Order, bar market.Bar) (float64, error) {
	perUnit, err := m.perUnitSlippage(order, bar)
	if err != nil {
		return 0, err
	}
	return checked("slippage", perUnit*order.Quantity)
}

// FillPrice 返回向不利方向调整滑点后的成交价：买入上移、卖出下移。
func (m Model) FillPrice(order Order, bar market.Bar) (float64, error) {
	perUnit, err := m.perUnitSlippage(order, bar)
	if err != nil {
		return 0, err
	}
	price := order.Price + perUnit
	if order.Side == SideSell {
		price = order.Price - perUnit
	}
	return checked("fill price", price)
}

// Commission 按配置计算手续费，percentage 模型按成交价计算名义价值。
func (m Model) Commission(order Order, fillPrice float64) (float64, error) {
	if err := validateOrder(order); err != nil {
		return 0, err
	}
	if !finite(fillPrice) {
		return 0, fmt.Errorf("cost: 成交价 %v 非有限数: %w", fillPrice, errs.ErrInvalidOrder)
	}

	var fee float64
	switch m.commission.Model {
	case CommissionFixed:
		fee = m.commission.Value
	case CommissionPerUnit:
		fee = order.Quantity * m.commission.Value
	case CommissionPercentage:
		fee = order.Quantity * math.Abs(fillPrice) * m.commission.Value
	default:
		return 0, fmt.Errorf("cost: 无法识别的手续费模型 %q: %w", m.commission.Model, errs.ErrConfiguration)
	}
	return checked("commission", fee)
}

func (m Model) perUnitSlippage(order Order, bar market.Bar) (float64, error) {
	if err := validateOrder(order); err != nil {
		return 0, err
	}
	if !finite(bar.Close) {
		return 0, fmt.Errorf("cost: K线收盘价非有限数: %w", errs.ErrInvalidOrder)
	}

	var perUnit float64
	switch m.slippage.Model {
	case SlippageFixedFraction:
		perUnit = math.Abs(order.Price) * m.slippage.Value
	case SlippageFixedAmount:
		perUnit = m.slippage.Value
	default:
		return 0, fmt.Errorf("cost: 无法识别的滑点模型 %q: %w", m.slippage.Model, errs.ErrConfiguration)
	}
	return checked("slippage per unit", perUnit)
}

func validateOrder(order Order) error {
	if order.Side != SideBuy && order.Side != SideSell {
		return fmt.Errorf("cost: 订单方向 %q 无效: %w", order.Side, errs.ErrInvalidOrder)
	}
	if !finite(order.Quantity) || order.Quantity <= 0 {
		return fmt.Errorf("cost: 订单数量 %v 必须为正: %w", order.Quantity, errs.ErrInvalidOrder)
	}
	if !finite(order.Price) {
		return fmt.Errorf("cost: 订单价格 %v 非有限数: %w", order.Price, errs.ErrInvalidOrder)
	}
	return nil
}

func normalizePolicy(p Policy) Policy {
	p.Model = strings.ToLower(strings.TrimSpace(p.Model))
	return p
}

func checked(what string, v float64) (float64, error) {
	if !finite(v) {
		return 0, fmt.Errorf("cost: %s 计算结果非有限数: %w", what, errs.ErrNumeric)
	}
	return v, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
