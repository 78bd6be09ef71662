package feed

import (
	"fmt"

	"trades-backtest/internal/config"
	"trades-backtest/internal/errs"
	"trades-backtest/internal/market"
)

// LoadFile 按来源类型读取本地K线文件；exchange 来源由 exchange 包处理。
func LoadFile(src config.SourceConfig) ([]market.Bar, error) {
	switch src.Kind {
	case config.SourceCSV:
		return LoadCSV(src.Path)
	case config.SourceParquet:
		return LoadParquet(src.Path)
	default:
		return nil, fmt.Errorf("feed: 来源 %s 的类型 %q 不是本地文件: %w", src.Name, src.Kind, errs.ErrConfiguration)
	}
}
