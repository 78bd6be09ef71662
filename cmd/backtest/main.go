package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"trades-backtest/internal/app"
	"trades-backtest/internal/config"
	"trades-backtest/internal/errs"
	"trades-backtest/internal/log"
	"trades-backtest/internal/store"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认使用 configs/config.yaml")
	serve := flag.Bool("serve", false, "回测完成后保持查询接口运行")
	flag.Parse()

	os.Exit(run(*configPath, *serve))
}

// run 返回进程退出码，保证 defer 在退出前执行。
func run(configPath string, serve bool) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.String("path", cfg.Database.Path), zap.Error(err))
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("关闭数据库失败", zap.Error(err))
		}
	}()

	backtestApp, err := app.New(cfg, logger, db)
	if err != nil {
		logger.Error("初始化回测系统失败", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := backtestApp.Run(ctx, serve); err != nil {
		logger.Error("回测运行异常", zap.String("kind", errs.KindOf(err)), zap.Error(err))
		return 1
	}
	logger.Info("系统已安全退出")
	return 0
}
