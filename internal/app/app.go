package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aduersarius/polybet-sub009/internal/chain"
	"github.com/Aduersarius/polybet-sub009/internal/keys"
	"github.com/Aduersarius/polybet-sub009/internal/repository"
	"github.com/Aduersarius/polybet-sub009/internal/service/health"
	"github.com/Aduersarius/polybet-sub009/internal/service/mq"
	"github.com/Aduersarius/polybet-sub009/internal/service/notify"
	"github.com/Aduersarius/polybet-sub009/internal/service/sweeper"
	"github.com/Aduersarius/polybet-sub009/pkg/config"
	"github.com/Aduersarius/polybet-sub009/pkg/database"
	"github.com/Aduersarius/polybet-sub009/pkg/logger"
	"github.com/Aduersarius/polybet-sub009/pkg/monitor"
)

const streamMaxLen = 10000

// Options 控制哪些外部依赖需要装配
type Options struct {
	Registerer prometheus.Registerer
	// DisableNotify 为 true 时不连接消息通道 (sweep-cli run-once)
	DisableNotify bool
	// State 调度器持有的健康状态；为空时 (run-once 没有调度器) 单独创建
	State *health.State
}

// App 归集 worker 运行所需的全部组件
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Chain    *chain.EthClient
	Producer mq.Producer
	Repo     *repository.SQLDepositRepository
	Deriver  *keys.Deriver
	Master   *keys.Signer
	State    *health.State
	Metrics  *monitor.SweeperMetrics
	Reporter *health.Reporter
	Sweeper  *sweeper.Sweeper

	closers []Resource
}

// Resource 退出时需要释放的资源
type Resource struct {
	Name  string
	Close func() error
}

// Build 按配置装配组件，任何一步失败都会释放已经打开的资源
func Build(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	// 1. 密钥 (不依赖任何网络连接，最先校验)
	a.Deriver, a.Master, err = LoadKeys(cfg.Wallet, logger.Named("keys"))
	if err != nil {
		return a, err
	}

	// 2. 数据库
	a.DB, err = database.ConnectPostgres(cfg.DB.DSN(), cfg.App.Env != "production")
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, Resource{"postgres", func() error { return database.ClosePostgres(a.DB) }})
	a.Repo = repository.NewDepositRepository(a.DB)

	// 3. 链
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Sweeper.RpcTimeout)
	a.Chain, err = chain.Dial(dialCtx, cfg.Chain.RpcUrl, logger.Named("chain"))
	cancel()
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, Resource{"rpc", func() error { a.Chain.Close(); return nil }})

	// 4. 通知通道
	var notifier notify.Notifier = notify.Nop{}
	a.State = opts.State
	if a.State == nil {
		a.State = health.NewState(cfg.Sweeper.PollInterval, cfg.Sweeper.FailureThreshold)
	}
	a.Metrics = monitor.NewSweeperMetrics(opts.Registerer)
	if !opts.DisableNotify {
		a.Producer, err = a.newProducer(ctx)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, Resource{"producer", a.Producer.Close})
		notifier = notify.NewPublisher(a.Producer, cfg.Notify.ChannelPrefix, a.State, a.Metrics, logger.Named("notify"))
	}

	// 5. 归集
	a.Sweeper = sweeper.New(sweeper.Dependencies{
		Repo:     a.Repo,
		Chain:    a.Chain,
		Keys:     a.Deriver,
		Master:   a.Master,
		Tokens:   &cfg.Chain,
		Notifier: notifier,
		State:    a.State,
		Metrics:  a.Metrics,
		Logger:   logger.Named("sweeper"),
	}, cfg.Sweeper)
	a.Reporter = health.NewReporter(a.State, logger.Named("health"), a.Metrics)

	return a, nil
}

func (a *App) newProducer(ctx context.Context) (mq.Producer, error) {
	cfg := a.Config
	if cfg.Notify.Driver == "kafka" {
		logger.Info("Notify Mode: Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
		return mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.Redis = rdb
	a.closers = append(a.closers, Resource{"redis", rdb.Close})

	if cfg.Notify.Driver == "stream" {
		logger.Info("Notify Mode: Redis Stream")
		return mq.NewRedisStreamProducer(rdb, streamMaxLen), nil
	}
	logger.Info("Notify Mode: Redis Pub/Sub")
	return mq.NewRedisPubSubProducer(rdb), nil
}

// Resources 按打开的逆序排列
func (a *App) Resources() []Resource {
	out := make([]Resource, 0, len(a.closers))
	for i := len(a.closers) - 1; i >= 0; i-- {
		out = append(out, a.closers[i])
	}
	return out
}

// Close 逆序释放所有资源
func (a *App) Close() error {
	var errs []error
	for _, r := range a.Resources() {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("释放资源失败: %w", errors.Join(errs...))
	}
	return nil
}
