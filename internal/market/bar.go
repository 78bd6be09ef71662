package market

import (
	"fmt"
	"math"
	"time"

	"trades-backtest/internal/errs"
)

// Bar 代表单根K线（OHLCV），生成后不可修改。
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate 校验单根K线的价格关系。
func (b Bar) Validate() error {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("market: K线包含非有限数值: %w", errs.ErrNumeric)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("market: high %.8f 小于 low %.8f: %w", b.High, b.Low, errs.ErrInvalidParameter)
	}
	if b.High < b.Open || b.High < b.Close || b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("market: open/close 超出 high/low 区间: %w", errs.ErrInvalidParameter)
	}
	if b.Volume < 0 {
		return fmt.Errorf("market: 成交量不能为负: %w", errs.ErrInvalidParameter)
	}
	return nil
}

// SeriesError 标记校验失败的K线位置。
type SeriesError struct {
	Index     int
	Timestamp time.Time
	Err       error
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("market: 第 %d 根K线 (%s) 无效: %v", e.Index, e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *SeriesError) Unwrap() error {
	return e.Err
}

// ValidateSeries 校验整段行情：非空、逐根合法、时间戳严格递增。
func ValidateSeries(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("market: 行情序列为空: %w", errs.ErrEmptyRun)
	}
	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return &SeriesError{Index: i, Timestamp: bar.Timestamp, Err: err}
		}
		if i > 0 && !bar.Timestamp.After(bars[i-1].Timestamp) {
			return &SeriesError{
				Index:     i,
				Timestamp: bar.Timestamp,
				Err:       fmt.Errorf("market: 时间戳未严格递增: %w", errs.ErrInvalidParameter),
			}
		}
	}
	return nil
}
