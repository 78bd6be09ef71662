package backtest

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trades-backtest/internal/market"
)

// Job 为一次独立回测：引擎与行情均归该任务所有。
type Job struct {
	Name   string
	Engine *Engine
	Bars   []market.Bar
}

// Outcome 为单个任务的结果。
type Outcome struct {
	Name   string
	Result Result
	Err    error
}

// Runner 并行执行互不共享状态的回测任务。
type Runner struct {
	parallelism int
	logger      *zap.Logger
}

// NewRunner 创建 Runner，parallelism<=0 时串行执行。
func NewRunner(parallelism int, logger *zap.Logger) *Runner {
	if parallelism <= 0 {
		parallelism = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{parallelism: parallelism, logger: logger}
}

// Run 执行全部任务，结果顺序与输入一致；单个任务失败不影响其他任务。
func (r *Runner) Run(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, job := range jobs {
		g.Go(func() error {
			outcome := Outcome{Name: job.Name}
			if job.Engine == nil {
				outcome.Err = fmt.Errorf("backtest: 任务 %s 缺少引擎", job.Name)
			} else {
				outcome.Result, outcome.Err = job.Engine.Run(ctx, job.Bars)
			}
			if outcome.Err != nil {
				r.logger.Warn("回测任务失败", zap.String("job", job.Name), zap.Error(outcome.Err))
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// JoinErrors 汇总失败任务的错误。
func JoinErrors(outcomes []Outcome) error {
	var err error
	for _, o := range outcomes {
		if o.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", o.Name, o.Err))
		}
	}
	return err
}
