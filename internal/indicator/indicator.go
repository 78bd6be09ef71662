package indicator

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"trades-backtest/internal/errs"
)

// Value 为单个位置的指标值，OK=false 表示窗口尚未填满。
type Value struct {
	V  float64
	OK bool
}

// Values 与输入等长的指标序列。
type Values []Value

// At 返回指定位置的值，越界或尚不可用时 ok=false。
func (v Values) At(i int) (float64, bool) {
	if i < 0 || i >= len(v) {
		return 0, false
	}
	return v[i].V, v[i].OK
}

// SMA 简单移动平均，前 window-1 个位置不可用。
func SMA(values []float64, window int) (Values, error) {
	if err := checkWindow("sma", len(values), window, 1); err != nil {
		return nil, err
	}
	return mask(talib.Sma(values, window), window-1), nil
}

// EMA 指数移动平均，以前 window 个值的 SMA 为种子，alpha=2/(window+1)。
func EMA(values []float64, window int) (Values, error) {
	if err := checkWindow("ema", len(values), window, 1); err != nil {
		return nil, err
	}
	return mask(talib.Ema(values, window), window-1), nil
}

// WMA 线性加权移动平均。
func WMA(values []float64, window int) (Values, error) {
	if err := checkWindow("wma", len(values), window, 1); err != nil {
		return nil, err
	}
	return mask(talib.Wma(values, window), window-1), nil
}

// RSI 相对强弱指标，需要前一收盘价，因此前 window 个位置不可用。
func RSI(values []float64, window int) (Values, error) {
	if window < 2 {
		return nil, fmt.Errorf("indicator: rsi 窗口 %d 必须不小于2: %w", window, errs.ErrInvalidParameter)
	}
	if err := checkWindow("rsi", len(values), window+1, 2); err != nil {
		return nil, err
	}
	return mask(talib.Rsi(values, window), window), nil
}

// ATR 平均真实波幅，前 window 个位置不可用。
func ATR(high, low, close []float64, window int) (Values, error) {
	if len(high) != len(close) || len(low) != len(close) {
		return nil, fmt.Errorf("indicator: atr 输入长度不一致 high=%d low=%d close=%d: %w",
			len(high), len(low), len(close), errs.ErrInvalidParameter)
	}
	if window < 2 {
		return nil, fmt.Errorf("indicator: atr 窗口 %d 必须不小于2: %w", window, errs.ErrInvalidParameter)
	}
	if err := checkWindow("atr", len(close), window+1, 2); err != nil {
		return nil, err
	}
	return mask(talib.Atr(high, low, close, window), window), nil
}

// checkWindow 要求 window>=min 且输入至少包含 need 个值。
func checkWindow(name string, length, need, min int) error {
	if need < min {
		return fmt.Errorf("indicator: %s 窗口必须为正: %w", name, errs.ErrInvalidParameter)
	}
	if length < need {
		return fmt.Errorf("indicator: %s 需要至少 %d 个值，实际 %d: %w", name, need, length, errs.ErrInvalidParameter)
	}
	return nil
}

func mask(raw []float64, lookback int) Values {
	out := make(Values, len(raw))
	for i, v := range raw {
		if i < lookback {
			continue
		}
		out[i] = Value{V: v, OK: true}
	}
	return out
}
