package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/model"
	"github.com/Aduersarius/polybet-sub009/internal/service/health"
	"github.com/Aduersarius/polybet-sub009/internal/service/mq"
	"github.com/Aduersarius/polybet-sub009/pkg/monitor"
)

type EventType string

const (
	EventDepositCompleted      EventType = "deposit.completed"
	EventDepositRetryScheduled EventType = "deposit.retry_scheduled"
	EventDepositFailed         EventType = "deposit.failed"
)

// Event 推送给用户频道的消息体
type Event struct {
	Type       EventType           `json:"type"`
	DepositID  uint64              `json:"deposit_id"`
	UserID     uint64              `json:"user_id"`
	Currency   string              `json:"currency"`
	Status     model.DepositStatus `json:"status"`
	Amount     string              `json:"amount,omitempty"`
	TxHash     string              `json:"tx_hash,omitempty"`
	RetryCount int                 `json:"retry_count"`
	NextRetry  *time.Time          `json:"next_retry,omitempty"`
	Error      string              `json:"error,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Notifier 出站通知，永远不向调用方返回错误
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Publisher 通过 mq.Producer 推送到 <prefix>:<userId>
type Publisher struct {
	producer mq.Producer
	prefix   string
	timeout  time.Duration
	state    *health.State
	metrics  *monitor.SweeperMetrics
	logger   *zap.Logger
}

func NewPublisher(producer mq.Producer, prefix string, state *health.State, metrics *monitor.SweeperMetrics, logger *zap.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		prefix:   prefix,
		timeout:  5 * time.Second,
		state:    state,
		metrics:  metrics,
		logger:   logger,
	}
}

// Channel 用户的实时通知频道
func (p *Publisher) Channel(userID uint64) string {
	return fmt.Sprintf("%s:%d", p.prefix, userID)
}

func (p *Publisher) Notify(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.fail(event, err)
		return
	}

	// 退出信号不应打断已经决定要发送的通知
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.producer.Publish(pubCtx, p.Channel(event.UserID), strconv.FormatUint(event.UserID, 10), payload); err != nil {
		p.fail(event, err)
		return
	}

	p.logger.Debug("通知已推送",
		zap.String("type", string(event.Type)),
		zap.Uint64("deposit_id", event.DepositID),
		zap.Uint64("user_id", event.UserID),
	)
}

func (p *Publisher) fail(event Event, err error) {
	if p.metrics != nil {
		p.metrics.NotifyFailuresTotal.Inc()
	}
	if p.state != nil {
		p.state.RecordNotifyFailure()
	}
	p.logger.Warn("推送通知失败",
		zap.String("type", string(event.Type)),
		zap.Uint64("deposit_id", event.DepositID),
		zap.Uint64("user_id", event.UserID),
		zap.Error(err),
	)
}

// Nop 不推送任何消息 (sweep-cli run-once 使用)
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
