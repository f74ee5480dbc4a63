package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/service/health"
	"github.com/Aduersarius/polybet-sub009/internal/service/sweeper"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

// CycleRunner 一轮归集
type CycleRunner interface {
	RunCycle(ctx context.Context) (sweeper.CycleResult, error)
}

type closer struct {
	name string
	fn   func() error
}

// Scheduler 定时驱动归集和健康输出
// SkipIfStillRunning 保证同一时刻最多一轮归集，Recover 保证任务 panic 不会拖垮进程
// 健康状态由 Scheduler 持有，通过 State() 交给归集和健康检查使用
type Scheduler struct {
	cron     *cron.Cron
	state    *health.State
	runner   CycleRunner
	reporter *health.Reporter
	logger   *zap.Logger

	pollInterval   time.Duration
	healthInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []closer
	once    sync.Once
}

func New(pollInterval, healthInterval time.Duration, failureThreshold int, logger *zap.Logger) *Scheduler {
	cl := newCronLogger(logger)
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:           cron.New(cron.WithLogger(cl)),
		state:          health.NewState(pollInterval, failureThreshold),
		logger:         logger,
		pollInterval:   pollInterval,
		healthInterval: healthInterval,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// OnStop 注册退出时释放的资源，按注册顺序关闭
func (s *Scheduler) OnStop(name string, fn func() error) {
	s.closers = append(s.closers, closer{name: name, fn: fn})
}

// State 本调度器的健康状态
func (s *Scheduler) State() *health.State {
	return s.state
}

// Start 注册任务并立即执行第一轮归集
// runner 和 reporter 必须使用 State() 返回的同一个状态
func (s *Scheduler) Start(runner CycleRunner, reporter *health.Reporter) {
	s.runner = runner
	s.reporter = reporter

	cl := newCronLogger(s.logger)
	sweepJob := cron.NewChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)).Then(cron.FuncJob(s.sweep))

	s.cron.Schedule(cron.Every(s.pollInterval), sweepJob)
	s.cron.Schedule(cron.Every(s.healthInterval), cron.NewChain(cron.Recover(cl)).Then(cron.FuncJob(func() {
		s.reporter.Emit("interval")
	})))
	s.cron.Start()

	// 首轮不等第一个间隔，与定时任务共用同一个 SkipIfStillRunning
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sweepJob.Run()
	}()

	s.logger.Info("归集调度已启动",
		zap.Duration("poll_interval", s.pollInterval),
		zap.Duration("health_interval", s.healthInterval))
}

func (s *Scheduler) sweep() {
	_, err := s.runner.RunCycle(s.ctx)
	if errors.Is(err, errno.ErrCycleInProgress) {
		s.logger.Debug("上一轮归集仍在运行，跳过")
	}
}

// Stop 通知正在执行的归集在阶段边界停下，等待任务结束，
// 输出最后一次健康快照后释放资源
func (s *Scheduler) Stop() health.Snapshot {
	var snap health.Snapshot
	s.once.Do(func() {
		s.logger.Info("正在停止归集调度...")
		s.cancel()

		<-s.cron.Stop().Done()
		s.wg.Wait()

		if s.reporter != nil {
			snap = s.reporter.Emit("shutdown")
		} else {
			snap = s.state.Snapshot()
		}

		for _, c := range s.closers {
			if err := c.fn(); err != nil {
				s.logger.Error("释放资源失败", zap.String("resource", c.name), zap.Error(err))
			}
		}
		s.logger.Info("归集调度已停止")
	})
	return snap
}
