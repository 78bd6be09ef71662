package strategy

import (
	"fmt"
	"strings"

	"trades-backtest/internal/errs"
)

// Signal 表示策略在当前K线期望的仓位状态。
type Signal int

const (
	Hold Signal = iota
	Long
	Short
	Flat
)

// Valid 判断信号是否属于已知枚举。
func (s Signal) Valid() bool {
	return s >= Hold && s <= Flat
}

func (s Signal) String() string {
	switch s {
	case Hold:
		return "hold"
	case Long:
		return "long"
	case Short:
		return "short"
	case Flat:
		return "flat"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// ParseSignal 解析配置中的信号名称。
func ParseSignal(text string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "hold", "":
		return Hold, nil
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	case "flat", "close":
		return Flat, nil
	default:
		return Hold, fmt.Errorf("strategy: 无法识别的信号 %q: %w", text, errs.ErrConfiguration)
	}
}
