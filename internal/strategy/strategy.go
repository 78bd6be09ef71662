package strategy

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"trades-backtest/internal/errs"
	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// 可选策略类型。
const (
	KindSMACross     = "sma_cross"
	KindPriceTrend   = "price_trend"
	KindRSIReversion = "rsi_reversion"
	KindRandom       = "random"
	KindScripted     = "scripted"
	KindBuyHold      = "buy_hold"
)

// Strategy 根据截至当前K线的指标给出信号。
type Strategy interface {
	Name() string
	Produce(view indicator.View, bar market.Bar) (Signal, error)
}

// Catalog 用于校验策略引用的指标是否存在。
type Catalog interface {
	Has(name string) bool
}

// Instruction 为脚本策略中的一条指令。
type Instruction struct {
	Bar    int    `mapstructure:"bar" json:"bar"`
	Signal string `mapstructure:"signal" json:"signal"`
}

// Config 选择策略及其参数。
type Config struct {
	Kind        string        `mapstructure:"kind" json:"kind"`
	Fast        string        `mapstructure:"fast" json:"fast,omitempty"`
	Slow        string        `mapstructure:"slow" json:"slow,omitempty"`
	Indicator   string        `mapstructure:"indicator" json:"indicator,omitempty"`
	Oversold    float64       `mapstructure:"oversold" json:"oversold,omitempty"`
	Overbought  float64       `mapstructure:"overbought" json:"overbought,omitempty"`
	AllowShort  bool          `mapstructure:"allow_short" json:"allow_short,omitempty"`
	Probability float64       `mapstructure:"probability" json:"probability,omitempty"`
	Schedule    []Instruction `mapstructure:"schedule" json:"schedule,omitempty"`
}

// New 按配置构建策略；rng 仅供 random 策略使用，由调用方独占传入。
func New(cfg Config, catalog Catalog, rng *rand.Rand) (Strategy, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	switch kind {
	case KindSMACross:
		if err := requireIndicators(catalog, cfg.Fast, cfg.Slow); err != nil {
			return nil, err
		}
		return &smaCross{fast: cfg.Fast, slow: cfg.Slow, allowShort: cfg.AllowShort}, nil
	case KindPriceTrend:
		if err := requireIndicators(catalog, cfg.Indicator); err != nil {
			return nil, err
		}
		return &priceTrend{indicator: cfg.Indicator, allowShort: cfg.AllowShort}, nil
	case KindRSIReversion:
		if err := requireIndicators(catalog, cfg.Indicator); err != nil {
			return nil, err
		}
		if cfg.Oversold <= 0 || cfg.Overbought >= 100 || cfg.Oversold >= cfg.Overbought {
			return nil, fmt.Errorf("strategy: rsi 阈值需满足 0<oversold<overbought<100: %w", errs.ErrConfiguration)
		}
		return &rsiReversion{
			indicator:  cfg.Indicator,
			oversold:   cfg.Oversold,
			overbought: cfg.Overbought,
			allowShort: cfg.AllowShort,
		}, nil
	case KindRandom:
		if rng == nil {
			return nil, fmt.Errorf("strategy: random 策略需要显式种子: %w", errs.ErrConfiguration)
		}
		if cfg.Probability < 0 || cfg.Probability > 1 {
			return nil, fmt.Errorf("strategy: probability 必须位于[0,1]: %w", errs.ErrConfiguration)
		}
		return &randomEntry{rng: rng, probability: cfg.Probability}, nil
	case KindScripted:
		return NewScripted(cfg.Schedule)
	case KindBuyHold:
		return buyHold{}, nil
	default:
		return nil, fmt.Errorf("strategy: 无法识别的策略 %q: %w", cfg.Kind, errs.ErrConfiguration)
	}
}

func requireIndicators(catalog Catalog, names ...string) error {
	var missing []string
	for _, name := range names {
		if name == "" || catalog == nil || !catalog.Has(name) {
			missing = append(missing, fmt.Sprintf("%q", name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("strategy: 缺少指标 %s: %w", strings.Join(missing, ", "), errs.ErrConfiguration)
	}
	return nil
}

func downSignal(allowShort bool) Signal {
	if allowShort {
		return Short
	}
	return Flat
}

type smaCross struct {
	fast, slow string
	allowShort bool
}

func (s *smaCross) Name() string { return KindSMACross }

func (s *smaCross) Produce(view indicator.View, _ market.Bar) (Signal, error) {
	fast, okFast := view.Value(s.fast)
	slow, okSlow := view.Value(s.slow)
	if !okFast || !okSlow {
		return Hold, nil
	}
	switch {
	case fast > slow:
		return Long, nil
	case fast < slow:
		return downSignal(s.allowShort), nil
	default:
		return Hold, nil
	}
}

type priceTrend struct {
	indicator  string
	allowShort bool
}

func (s *priceTrend) Name() string { return KindPriceTrend }

func (s *priceTrend) Produce(view indicator.View, bar market.Bar) (Signal, error) {
	level, ok := view.Value(s.indicator)
	if !ok {
		return Hold, nil
	}
	switch {
	case bar.Close > level:
		return Long, nil
	case bar.Close < level:
		return downSignal(s.allowShort), nil
	default:
		return Hold, nil
	}
}

type rsiReversion struct {
	indicator            string
	oversold, overbought float64
	allowShort           bool
}

func (s *rsiReversion) Name() string { return KindRSIReversion }

func (s *rsiReversion) Produce(view indicator.View, _ market.Bar) (Signal, error) {
	rsi, ok := view.Value(s.indicator)
	if !ok {
		return Hold, nil
	}
	switch {
	case rsi < s.oversold:
		return Long, nil
	case rsi > s.overbought:
		return downSignal(s.allowShort), nil
	default:
		return Hold, nil
	}
}

// buyHold 首根K线买入并一直持有，由最后一根K线强制平仓。
type buyHold struct{}

func (buyHold) Name() string { return KindBuyHold }

func (buyHold) Produce(_ indicator.View, _ market.Bar) (Signal, error) {
	return Long, nil
}

type randomEntry struct {
	rng         *rand.Rand
	probability float64
}

func (s *randomEntry) Name() string { return KindRandom }

func (s *randomEntry) Produce(_ indicator.View, _ market.Bar) (Signal, error) {
	// 每根K线固定消耗两次随机数，保证相同种子下序列一致。
	roll := s.rng.Float64()
	pick := s.rng.IntN(3)
	if roll >= s.probability {
		return Hold, nil
	}
	return [...]Signal{Long, Short, Flat}[pick], nil
}

// Scripted 按K线序号回放预设信号。
type Scripted struct {
	schedule map[int][]Signal
}

// NewScripted 解析指令表，同一K线允许出现多条指令，冲突在执行时报告。
func NewScripted(instructions []Instruction) (*Scripted, error) {
	schedule := make(map[int][]Signal, len(instructions))
	for _, ins := range instructions {
		if ins.Bar < 0 {
			return nil, fmt.Errorf("strategy: 指令K线序号 %d 不能为负: %w", ins.Bar, errs.ErrConfiguration)
		}
		sig, err := ParseSignal(ins.Signal)
		if err != nil {
			return nil, err
		}
		schedule[ins.Bar] = append(schedule[ins.Bar], sig)
	}
	return &Scripted{schedule: schedule}, nil
}

func (s *Scripted) Name() string { return KindScripted }

// Produce 返回当前K线的指令；出现两个不同的非 Hold 指令时视为无效订单。
func (s *Scripted) Produce(view indicator.View, _ market.Bar) (Signal, error) {
	result := Hold
	for _, sig := range s.schedule[view.Index()] {
		if sig == Hold {
			continue
		}
		if result != Hold && result != sig {
			return Hold, fmt.Errorf("strategy: 第 %d 根K线同时出现 %s 与 %s 指令: %w",
				view.Index(), result, sig, errs.ErrInvalidOrder)
		}
		result = sig
	}
	return result, nil
}
