package backtest

import "math"

// computeDrawdown 单次扫描权益曲线，返回最大回撤绝对值及其相对峰值的比例。
func computeDrawdown(curve []EquityPoint) (absolute, percent float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].Equity
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		dd := peak - point.Equity
		if dd > absolute {
			absolute = dd
		}
		if peak > 0 {
			if pct := dd / peak; pct > percent {
				percent = pct
			}
		}
	}
	return absolute, percent
}

func computeReturns(initial float64, curve []EquityPoint) []float64 {
	returns := make([]float64, 0, len(curve))
	prev := initial
	for _, point := range curve {
		if prev != 0 {
			returns = append(returns, point.Equity/prev-1)
		}
		prev = point.Equity
	}
	return returns
}

func computeSharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}
	return (mean / std) * math.Sqrt(periodsPerYear)
}
