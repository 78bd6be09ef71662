package backtest

import (
	"fmt"

	"trades-backtest/internal/errs"
)

// Report 汇总一次回测的绩效，构建后不再修改。
type Report struct {
	Symbol             string        `json:"symbol,omitempty"`
	Strategy           string        `json:"strategy,omitempty"`
	InitialEquity      float64       `json:"initial_equity"`
	FinalEquity        float64       `json:"final_equity"`
	PnL                float64       `json:"pnl"`
	RealizedPnL        float64       `json:"realized_pnl"`
	TotalReturn        float64       `json:"total_return"`
	MaxDrawdown        float64       `json:"max_drawdown"`
	MaxDrawdownPercent float64       `json:"max_drawdown_percent"`
	SharpeRatio        float64       `json:"sharpe_ratio"`
	TradeCount         int           `json:"trade_count"`
	ClosedTrades       int           `json:"closed_trades"`
	WinRate            float64       `json:"win_rate"`
	TotalSlippage      float64       `json:"total_slippage"`
	TotalCommission    float64       `json:"total_commission"`
	EquityCurve        []EquityPoint `json:"equity_curve"`
}

// ReportInput 为构建报告所需的数据。
type ReportInput struct {
	InitialEquity  float64
	Ledger         []Fill
	EquityCurve    []EquityPoint
	PeriodsPerYear float64
}

// BuildReport 根据账本与权益曲线计算报告，并校验两者的盈亏一致。
func BuildReport(in ReportInput) (Report, error) {
	if len(in.EquityCurve) == 0 {
		return Report{}, fmt.Errorf("backtest: 权益曲线为空: %w", errs.ErrEmptyRun)
	}

	var (
		realized, slippage, commission float64
		closed, wins                   int
	)
	for _, fill := range in.Ledger {
		realized += fill.RealizedPnL
		slippage += fill.Slippage
		commission += fill.Commission
		if fill.ClosedQuantity > 0 {
			closed++
			if fill.RealizedPnL > 0 {
				wins++
			}
		}
	}

	last := in.EquityCurve[len(in.EquityCurve)-1]
	final := last.Equity
	if last.PnL != realized {
		return Report{}, fmt.Errorf("backtest: 账本已实现盈亏 %v 与权益曲线盈亏 %v 不一致: %w",
			realized, last.PnL, errs.ErrNumeric)
	}

	maxDD, maxDDPct := computeDrawdown(in.EquityCurve)

	report := Report{
		InitialEquity:      in.InitialEquity,
		FinalEquity:        final,
		PnL:                last.PnL,
		RealizedPnL:        realized,
		MaxDrawdown:        maxDD,
		MaxDrawdownPercent: maxDDPct,
		SharpeRatio:        computeSharpe(computeReturns(in.InitialEquity, in.EquityCurve), in.PeriodsPerYear),
		TradeCount:         len(in.Ledger),
		ClosedTrades:       closed,
		TotalSlippage:      slippage,
		TotalCommission:    commission,
		EquityCurve:        append([]EquityPoint(nil), in.EquityCurve...),
	}
	if in.InitialEquity > 0 {
		report.TotalReturn = final/in.InitialEquity - 1
	}
	if closed > 0 {
		report.WinRate = float64(wins) / float64(closed)
	}

	for _, v := range [...]float64{report.PnL, report.TotalReturn, report.SharpeRatio, report.TotalSlippage, report.TotalCommission} {
		if !finite(v) {
			return Report{}, fmt.Errorf("backtest: 报告指标非有限数: %w", errs.ErrNumeric)
		}
	}

	return report, nil
}
