package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "backtest"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// defaults 为各配置项的缺省值，按段分组，键与 YAML 路径一致。
var defaults = []struct {
	section string
	values  map[string]any
}{
	{"app", map[string]any{"environment": "development"}},
	{"backtest", map[string]any{
		"symbol":           "BTC/USDT",
		"initial_equity":   10000.0,
		"periods_per_year": 252.0,
		"sizing.mode":      "fixed",
		"sizing.quantity":  1.0,
		"slippage.model":   "fixed_fraction",
		"slippage.value":   0.0,
		"commission.model": "fixed",
		"commission.value": 0.0,
		"strategy.kind":    "sma_cross",
		"strategy.fast":    "sma_fast",
		"strategy.slow":    "sma_slow",
	}},
	{"exchange", map[string]any{
		"name":               "binanceusdm",
		"use_sandbox":        false,
		"retry.max_attempts": 5,
		"retry.min_delay":    "500ms",
		"retry.max_delay":    "5s",
	}},
	{"runner", map[string]any{"parallelism": 4}},
	{"database", map[string]any{
		"path":              "data/backtest.db",
		"max_open_conns":    4,
		"max_idle_conns":    4,
		"conn_max_lifetime": "1h",
		"in_memory":         false,
	}},
	{"logging", map[string]any{
		"level":              "info",
		"encoding":           "console",
		"development":        true,
		"output_paths":       []string{"stdout"},
		"error_output_paths": []string{"stderr"},
	}},
	{"server", map[string]any{"addr": ":8080"}},
}

func setDefaults(v *viper.Viper) {
	for _, group := range defaults {
		for key, value := range group.values {
			v.SetDefault(group.section+"."+key, value)
		}
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
