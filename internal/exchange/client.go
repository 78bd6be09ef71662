package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"trades-backtest/internal/config"
	"trades-backtest/internal/market"
)

const pageSize int64 = 1000

// source 抽象出回测所需的两个 ccxt 调用。
type source struct {
	loadMarkets func() error
	fetchOHLCV  func(symbol, timeframe string, since, limit int64) ([]ccxt.OHLCV, error)
}

// Client 负责从交易所拉取历史K线并实现重试机制。
type Client struct {
	name   string
	retry  backoff
	logger *zap.Logger
	src    source

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 按 exchange.name 构造 ccxt 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, src, logger), nil
}

func newClient(cfg config.ExchangeConfig, src source, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{name: cfg.Name, retry: newBackoff(cfg.Retry), logger: logger, src: src}
}

func newSource(cfg config.ExchangeConfig) (source, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	switch strings.ToLower(cfg.Name) {
	case "binanceusdm":
		ex := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return source{
			loadMarkets: func() error {
				_, err := ex.LoadMarkets()
				return err
			},
			fetchOHLCV: func(symbol, timeframe string, since, limit int64) ([]ccxt.OHLCV, error) {
				return ex.FetchOHLCV(symbol, ohlcvOptions(timeframe, since, limit)...)
			},
		}, nil
	case "hyperliquid":
		ex := ccxt.NewHyperliquid(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return source{
			loadMarkets: func() error {
				_, err := ex.LoadMarkets()
				return err
			},
			fetchOHLCV: func(symbol, timeframe string, since, limit int64) ([]ccxt.OHLCV, error) {
				return ex.FetchOHLCV(symbol, ohlcvOptions(timeframe, since, limit)...)
			},
		}, nil
	default:
		return source{}, fmt.Errorf("exchange: 不支持的交易所 %q", cfg.Name)
	}
}

func ohlcvOptions(timeframe string, since, limit int64) []ccxt.FetchOHLCVOptions {
	opts := []ccxt.FetchOHLCVOptions{
		ccxt.WithFetchOHLCVTimeframe(timeframe),
		ccxt.WithFetchOHLCVLimit(limit),
	}
	if since > 0 {
		opts = append(opts, ccxt.WithFetchOHLCVSince(since))
	}
	return opts
}

// FetchBars 分页拉取 since 之后最多 limit 根K线，按时间升序去重返回。
func (c *Client) FetchBars(ctx context.Context, symbol, timeframe string, since time.Time, limit int) ([]market.Bar, error) {
	if limit <= 0 {
		limit = int(pageSize)
	}
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return nil, err
	}

	var cursor int64
	if !since.IsZero() {
		cursor = since.UnixMilli()
	}

	var raw []ccxt.OHLCV
	for len(raw) < limit {
		batch := min(pageSize, int64(limit-len(raw)))

		var page []ccxt.OHLCV
		err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
			result, err := c.src.fetchOHLCV(symbol, timeframe, cursor, batch)
			if err != nil {
				return err
			}
			page = result
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		raw = append(raw, page...)
		next := page[len(page)-1].Timestamp + 1
		if next <= cursor || int64(len(page)) < batch {
			break
		}
		cursor = next
	}

	bars := convertOHLCV(raw)
	if len(bars) > limit {
		bars = bars[:limit]
	}

	c.logger.Debug("历史K线拉取完成",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("count", len(bars)),
	)
	return bars, nil
}

func convertOHLCV(raw []ccxt.OHLCV) []market.Bar {
	sorted := append([]ccxt.OHLCV(nil), raw...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	bars := make([]market.Bar, 0, len(sorted))
	for i, item := range sorted {
		if i > 0 && item.Timestamp == sorted[i-1].Timestamp {
			continue
		}
		bars = append(bars, market.Bar{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return bars
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", c.src.loadMarkets)
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("exchange", c.name))
	return nil
}

// backoff 为指数退避参数，未配置的项取默认值。
type backoff struct {
	attempts int
	min, max time.Duration
}

func newBackoff(cfg config.RetryConfig) backoff {
	b := backoff{attempts: cfg.MaxAttempts, min: cfg.MinDelay, max: cfg.MaxDelay}
	if b.attempts <= 0 {
		b.attempts = 1
	}
	if b.min <= 0 {
		b.min = 500 * time.Millisecond
	}
	if b.max <= 0 {
		b.max = 5 * time.Second
	}
	return b
}

// delay 返回第 attempt 次失败后的等待时间，attempt 从 1 开始。
func (b backoff) delay(attempt int) time.Duration {
	d := b.min
	for i := 1; i < attempt && d < b.max; i++ {
		d *= 2
	}
	return min(d, b.max)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// callWithRetry 调用 fn，暂时性错误按退避重试；维护与不可重试错误立即返回。
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	log := c.logger.With(zap.String("operation", operation))
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info("交易所调用重试后成功", zap.Int("attempts", attempt))
			}
			return nil
		}

		err, kind := classifyError(err)
		switch {
		case kind == maintenance:
			log.Warn("交易所维护中", zap.Error(err))
			return err
		case kind != retry || attempt >= c.retry.attempts:
			log.Error("交易所调用失败", zap.Int("attempts", attempt), zap.Error(err))
			return err
		}

		wait := c.retry.delay(attempt)
		log.Warn("交易所调用失败，等待重试",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}
