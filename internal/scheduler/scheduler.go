package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/orchestrator"

	"github.com/jpillora/backoff"
)

// Runner 调度器驱动的周期执行者，*orchestrator.Service 实现了它
type Runner interface {
	RunCycle(ctx context.Context) (domain.CycleSummary, error)
	Persist(ctx context.Context) error
}

type Options struct {
	Interval         time.Duration // 正常轮询间隔
	BackoffBase      time.Duration // 周期出错后的首次等待
	BackoffMax       time.Duration // 指数退避上限
	RateLimitBackoff time.Duration // 触发限频后的固定等待
}

// Scheduler 定时执行交易周期，出错时退避，ctx 取消后做最后一次持久化再退出
type Scheduler struct {
	runner  Runner
	opts    Options
	backoff *backoff.Backoff
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(runner Runner, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 30 * time.Second
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = 10 * opts.BackoffBase
	}
	if opts.RateLimitBackoff <= 0 {
		opts.RateLimitBackoff = 5 * time.Minute
	}
	return &Scheduler{
		runner: runner,
		opts:   opts,
		backoff: &backoff.Backoff{
			Min:    opts.BackoffBase,
			Max:    opts.BackoffMax,
			Factor: 2,
			Jitter: false,
		},
		sleep: sleepCtx,
	}
}

// Run 阻塞运行直到 ctx 取消。启动后立即执行一轮
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("[调度] 已启动 间隔=%s 退避=%s~%s 限频等待=%s",
		s.opts.Interval, s.opts.BackoffBase, s.opts.BackoffMax, s.opts.RateLimitBackoff)

	for {
		wait := s.runOnce(ctx)
		if ctx.Err() != nil {
			break
		}
		if err := s.sleep(ctx, wait); err != nil {
			break
		}
	}

	log.Println("[调度] 收到停止信号，保存最终快照")
	if err := s.runner.Persist(context.WithoutCancel(ctx)); err != nil {
		log.Printf("[调度] ✘ 最终快照保存失败: %v", err)
		return err
	}
	log.Println("[调度] 已停止")
	return nil
}

// runOnce 执行一轮并返回到下一轮的等待时间
func (s *Scheduler) runOnce(ctx context.Context) time.Duration {
	summary, err := s.runner.RunCycle(ctx)
	switch {
	case err == nil:
		s.backoff.Reset()
		return s.opts.Interval
	case errors.Is(err, orchestrator.ErrCycleRunning):
		log.Println("[调度] 上一轮仍在执行，跳过本次")
		return s.opts.Interval
	case errors.Is(err, domain.ErrRateLimited):
		log.Printf("[调度] ⚠ 触发限频，等待 %s", s.opts.RateLimitBackoff)
		return s.opts.RateLimitBackoff
	default:
		wait := s.backoff.Duration()
		log.Printf("[调度] ✘ 周期 %s 失败（第 %d 次）: %v，%s 后重试",
			shortID(summary.ID), int(s.backoff.Attempt()), err, wait)
		return wait
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
