package exchange

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trades-backtest/internal/market"
)

// Request 描述一组待拉取的历史K线。
type Request struct {
	Name      string
	Symbol    string
	Timeframe string
	Since     time.Time
	Limit     int
}

// MarketDataService 并发拉取多组历史K线。
type MarketDataService struct {
	client *Client
	logger *zap.Logger
}

// NewMarketDataService 创建市场数据服务。
func NewMarketDataService(client *Client, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		client: client,
		logger: logger,
	}
}

// FetchAll 并发拉取全部请求，任一失败即取消其余请求；结果按 Name 索引。
func (s *MarketDataService) FetchAll(ctx context.Context, reqs []Request) (map[string][]market.Bar, error) {
	results := make([][]market.Bar, len(reqs))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		group.Go(func() error {
			bars, err := s.client.FetchBars(groupCtx, req.Symbol, req.Timeframe, req.Since, req.Limit)
			if err != nil {
				return fmt.Errorf("exchange: 拉取 %s 失败: %w", req.Name, err)
			}
			results[i] = bars
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]market.Bar, len(reqs))
	for i, req := range reqs {
		out[req.Name] = results[i]
	}

	s.logger.Debug("历史K线批量拉取完成", zap.Int("requests", len(reqs)))
	return out, nil
}
