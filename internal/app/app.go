package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/config"
	"trades-backtest/internal/exchange"
	"trades-backtest/internal/feed"
	"trades-backtest/internal/market"
	"trades-backtest/internal/store"
)

// App 聚合核心依赖并驱动一次批量回测。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	archive *store.Archive
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, db *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	archive, err := store.NewArchive(db, logger.Named("archive"))
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		archive: archive,
	}, nil
}

// Run 加载全部行情来源并行回测，归档成功结果；serve 为 true 时保持查询接口直到 ctx 结束。
func (a *App) Run(ctx context.Context, serve bool) error {
	a.logger.Info("回测系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Int("sources", len(a.cfg.Sources)),
		zap.Int("parallelism", a.cfg.Runner.Parallelism),
	)

	runErr := a.runAll(ctx)

	if !serve {
		return runErr
	}

	if _, err := startServer(ctx, a.archive, a.cfg.Server.Addr, a.logger); err != nil {
		return multierr.Append(runErr, err)
	}
	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return multierr.Append(runErr, fmt.Errorf("系统异常退出: %w", err))
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return runErr
}

func (a *App) runAll(ctx context.Context) error {
	bars, err := a.loadSources(ctx)
	if err != nil {
		return err
	}

	jobs := make([]backtest.Job, 0, len(a.cfg.Sources))
	for _, src := range a.cfg.Sources {
		engine, err := backtest.NewEngine(a.cfg.Backtest.EngineConfig(src.Symbol), a.logger.With(zap.String("source", src.Name)))
		if err != nil {
			return fmt.Errorf("来源 %s 配置无效: %w", src.Name, err)
		}
		jobs = append(jobs, backtest.Job{Name: src.Name, Engine: engine, Bars: bars[src.Name]})
	}

	outcomes := backtest.NewRunner(a.cfg.Runner.Parallelism, a.logger).Run(ctx, jobs)

	var archiveErr error
	for i, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		report := outcome.Result.Report
		a.logger.Info("回测完成",
			zap.String("source", outcome.Name),
			zap.String("symbol", report.Symbol),
			zap.Float64("final_equity", report.FinalEquity),
			zap.Float64("pnl", report.PnL),
			zap.Float64("max_drawdown", report.MaxDrawdown),
			zap.Float64("sharpe", report.SharpeRatio),
			zap.Int("trades", report.TradeCount),
		)
		id, err := a.archive.SaveRun(ctx, outcome.Name, jobs[i].Engine.Config(), outcome.Result)
		if err != nil {
			archiveErr = multierr.Append(archiveErr, err)
			continue
		}
		a.logger.Info("回测结果已保存", zap.String("source", outcome.Name), zap.String("id", id))
	}

	return multierr.Append(backtest.JoinErrors(outcomes), archiveErr)
}

// loadSources 读取本地文件来源，并发拉取交易所来源。
func (a *App) loadSources(ctx context.Context) (map[string][]market.Bar, error) {
	out := make(map[string][]market.Bar, len(a.cfg.Sources))
	var requests []exchange.Request

	caches := make(map[string]string)

	for _, src := range a.cfg.Sources {
		if src.Kind == config.SourceExchange {
			if src.Cache != "" {
				if bars, ok := a.loadCache(src); ok {
					out[src.Name] = bars
					continue
				}
				caches[src.Name] = src.Cache
			}
			requests = append(requests, exchange.Request{
				Name:      src.Name,
				Symbol:    src.Symbol,
				Timeframe: src.Timeframe,
				Since:     src.Since,
				Limit:     src.Limit,
			})
			continue
		}
		bars, err := feed.LoadFile(src)
		if err != nil {
			return nil, err
		}
		out[src.Name] = bars
		a.logger.Debug("已加载本地行情", zap.String("source", src.Name), zap.Int("bars", len(bars)))
	}

	if len(requests) == 0 {
		return out, nil
	}

	client, err := exchange.NewClient(a.cfg.Exchange, a.logger.Named("exchange"))
	if err != nil {
		return nil, err
	}
	fetched, err := exchange.NewMarketDataService(client, a.logger).FetchAll(ctx, requests)
	if err != nil {
		return nil, err
	}
	for name, bars := range fetched {
		out[name] = bars
		if path, ok := caches[name]; ok {
			if err := feed.WriteParquet(path, bars); err != nil {
				a.logger.Warn("写入行情缓存失败", zap.String("source", name), zap.Error(err))
			}
		}
	}
	return out, nil
}

// loadCache 读取已存在的 Parquet 缓存，不存在或损坏时回退到交易所拉取。
func (a *App) loadCache(src config.SourceConfig) ([]market.Bar, bool) {
	if _, err := os.Stat(src.Cache); err != nil {
		return nil, false
	}
	bars, err := feed.LoadParquet(src.Cache)
	if err != nil {
		a.logger.Warn("读取行情缓存失败，改为重新拉取", zap.String("source", src.Name), zap.Error(err))
		return nil, false
	}
	a.logger.Debug("已命中行情缓存", zap.String("source", src.Name), zap.Int("bars", len(bars)))
	return bars, true
}
