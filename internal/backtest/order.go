package backtest

import (
	"time"

	"trades-backtest/internal/cost"
)

// Order 为模拟器在信号变化时生成的委托，仅存活于一次撮合。
type Order struct {
	Side      cost.Side
	Quantity  float64
	Price     float64 // 当前K线收盘价
	Timestamp time.Time
	BarIndex  int
}

func (o Order) costOrder() cost.Order {
	return cost.Order{Side: o.Side, Quantity: o.Quantity, Price: o.Price}
}

// Fill 为成交记录，写入账本后不再修改。
type Fill struct {
	Side           cost.Side `json:"side"`
	Quantity       float64   `json:"quantity"`
	RequestedPrice float64   `json:"requested_price"`
	Price          float64   `json:"price"`
	Slippage       float64   `json:"slippage"`
	Commission     float64   `json:"commission"`
	ClosedQuantity float64   `json:"closed_quantity"`
	RealizedPnL    float64   `json:"realized_pnl"` // 平仓部分毛利减去本笔手续费
	Forced         bool      `json:"forced"`
	BarIndex       int       `json:"bar_index"`
	Timestamp      time.Time `json:"timestamp"`
}

// EquityPoint 为逐K线的盯市结果；Equity = 初始资金 + PnL。
type EquityPoint struct {
	BarIndex  int       `json:"bar_index"`
	Timestamp time.Time `json:"timestamp"`
	PnL       float64   `json:"pnl"` // 已实现 + 浮动盈亏，不含初始资金
	Equity    float64   `json:"equity"`
}

func sideFor(delta float64) cost.Side {
	if delta < 0 {
		return cost.SideSell
	}
	return cost.SideBuy
}
