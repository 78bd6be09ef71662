package indicator

import (
	"fmt"
	"sort"
	"strings"

	"trades-backtest/internal/errs"
	"trades-backtest/internal/market"
)

// 支持的指标类型，对应配置名称的前缀。
const (
	KindSMA = "sma"
	KindEMA = "ema"
	KindWMA = "wma"
	KindRSI = "rsi"
	KindATR = "atr"
)

// KindOf 从指标名称解析类型，例如 "sma_fast" -> "sma"。
func KindOf(name string) string {
	kind, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(name)), "_")
	return kind
}

// ValidateWindows 在不依赖行情的情况下检查指标配置。
func ValidateWindows(windows map[string]int) error {
	for _, name := range sortedNames(windows) {
		switch KindOf(name) {
		case KindSMA, KindEMA, KindWMA, KindRSI, KindATR:
		default:
			return fmt.Errorf("indicator: 无法识别的指标 %q: %w", name, errs.ErrConfiguration)
		}
		if windows[name] <= 0 {
			return fmt.Errorf("indicator: 指标 %q 窗口 %d 必须为正: %w", name, windows[name], errs.ErrInvalidParameter)
		}
	}
	return nil
}

// Frame 保存一次回测中按名称计算的全部指标。
type Frame struct {
	series market.Series
	names  []string
	values map[string]Values
}

// Compute 按配置的窗口计算全部指标，名称按字典序处理。
func Compute(bars []market.Bar, windows map[string]int) (*Frame, error) {
	if err := ValidateWindows(windows); err != nil {
		return nil, err
	}

	series := market.NewSeries(bars)
	frame := &Frame{
		series: series,
		names:  sortedNames(windows),
		values: make(map[string]Values, len(windows)),
	}

	for _, name := range frame.names {
		window := windows[name]
		var (
			values Values
			err    error
		)
		switch KindOf(name) {
		case KindSMA:
			values, err = SMA(series.Close, window)
		case KindEMA:
			values, err = EMA(series.Close, window)
		case KindWMA:
			values, err = WMA(series.Close, window)
		case KindRSI:
			values, err = RSI(series.Close, window)
		case KindATR:
			values, err = ATR(series.High, series.Low, series.Close, window)
		}
		if err != nil {
			return nil, fmt.Errorf("indicator: 计算 %q 失败: %w", name, err)
		}
		frame.values[name] = values
	}

	return frame, nil
}

// Names 返回已计算的指标名称。
func (f *Frame) Names() []string {
	return append([]string(nil), f.names...)
}

// Has 判断指标是否存在。
func (f *Frame) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// View 返回截至 index（含）的只读视图。
func (f *Frame) View(index int) View {
	return View{frame: f, index: index}
}

// View 只暴露当前位置及之前的数据，避免策略读取未来值。
type View struct {
	frame *Frame
	index int
}

// Index 当前K线位置。
func (v View) Index() int {
	return v.index
}

// Value 返回当前位置的指标值。
func (v View) Value(name string) (float64, bool) {
	return v.at(name, v.index)
}

// Previous 返回上一根K线的指标值。
func (v View) Previous(name string) (float64, bool) {
	return v.at(name, v.index-1)
}

// Close 返回当前收盘价。
func (v View) Close() float64 {
	if v.frame == nil || v.index < 0 || v.index >= v.frame.series.Len() {
		return 0
	}
	return v.frame.series.Close[v.index]
}

func (v View) at(name string, i int) (float64, bool) {
	if v.frame == nil || i < 0 || i > v.index {
		return 0, false
	}
	values, ok := v.frame.values[name]
	if !ok {
		return 0, false
	}
	return values.At(i)
}

func sortedNames(windows map[string]int) []string {
	names := make([]string, 0, len(windows))
	for name := range windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
