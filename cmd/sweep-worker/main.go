package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/app"
	"github.com/Aduersarius/polybet-sub009/internal/server"
	"github.com/Aduersarius/polybet-sub009/internal/service/scheduler"
	"github.com/Aduersarius/polybet-sub009/pkg/config"
	"github.com/Aduersarius/polybet-sub009/pkg/logger"
	"github.com/Aduersarius/polybet-sub009/pkg/monitor"
)

// 启动阶段的错误直接 Fatal (退出码 1)；
// 启动之后的后台任务错误只记录日志，进程继续运行
func main() {
	// 1. 初始化配置与日志 (缺少必填项直接退出)
	config.Init()
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	cfg := &config.Global
	logger.Info("启动资金归集服务 (Sweep Worker)...",
		zap.String("env", cfg.App.Env),
		zap.Duration("poll_interval", cfg.Sweeper.PollInterval),
		zap.Int("batch_size", cfg.Sweeper.BatchSize),
		zap.Int("max_retries", cfg.Sweeper.MaxRetries))

	// 2. 调度器持有健康状态，装配组件时传下去
	sched := scheduler.New(cfg.Sweeper.PollInterval, cfg.Sweeper.HealthInterval, cfg.Sweeper.FailureThreshold, logger.Named("scheduler"))
	a, err := app.Build(context.Background(), cfg, app.Options{
		Registerer: prometheus.DefaultRegisterer,
		State:      sched.State(),
	})
	if err != nil {
		logger.Fatal("初始化失败", zap.Error(err))
	}

	// 3. 健康检查 / 指标
	router := server.NewRouter(sched.State(), monitor.NewHTTPMetrics(prometheus.DefaultRegisterer), prometheus.DefaultGatherer)
	httpApp := server.New(cfg.App.MetricsPort, router, logger.Named("http"))
	httpApp.Start()

	// 4. 调度
	sched.OnStop("http", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpApp.Shutdown(ctx)
	})
	for _, r := range a.Resources() {
		sched.OnStop(r.Name, r.Close)
	}
	sched.Start(a.Sweeper, a.Reporter)

	// 5. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("⚠️  收到退出信号，等待当前步骤完成...", zap.String("signal", sig.String()))
	snap := sched.Stop()
	logger.Info("归集服务已停止", zap.Bool("healthy", snap.Healthy))
}
