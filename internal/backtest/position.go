package backtest

import (
	"math"

	"trades-backtest/internal/cost"
)

// Position 为单一标的持仓，数量为正表示多头。
type Position struct {
	Quantity     float64 `json:"quantity"`
	AverageEntry float64 `json:"average_entry"`
	RealizedPnL  float64 `json:"realized_pnl"`
}

// Side 返回 LONG/SHORT，空仓返回空字符串。
func (p Position) Side() string {
	switch {
	case p.Quantity > 0:
		return "LONG"
	case p.Quantity < 0:
		return "SHORT"
	default:
		return ""
	}
}

// Unrealized 返回按给定价格计算的浮动盈亏。
func (p Position) Unrealized(price float64) float64 {
	return p.Quantity * (price - p.AverageEntry)
}

// apply 以成交价更新持仓，返回平仓数量与平仓部分毛利。
func (p *Position) apply(side cost.Side, qty, price float64) (closed, gross float64) {
	signed := qty
	if side == cost.SideSell {
		signed = -qty
	}

	if p.Quantity == 0 {
		p.Quantity = signed
		p.AverageEntry = price
		return 0, 0
	}

	if sameDirection(p.Quantity, signed) {
		total := math.Abs(p.Quantity) + qty
		p.AverageEntry = (p.AverageEntry*math.Abs(p.Quantity) + price*qty) / total
		p.Quantity += signed
		return 0, 0
	}

	held := math.Abs(p.Quantity)
	direction := 1.0
	if p.Quantity < 0 {
		direction = -1
	}

	closed = math.Min(held, qty)
	gross = closed * (price - p.AverageEntry) * direction

	switch {
	case qty < held:
		p.Quantity += signed
	case qty == held:
		p.Quantity = 0
		p.AverageEntry = 0
	default:
		remaining := qty - held
		p.Quantity = -direction * remaining
		p.AverageEntry = price
	}
	return closed, gross
}

func sameDirection(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
