package sweeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/chain"
	"github.com/Aduersarius/polybet-sub009/internal/keys"
	"github.com/Aduersarius/polybet-sub009/internal/model"
	"github.com/Aduersarius/polybet-sub009/internal/repository"
	"github.com/Aduersarius/polybet-sub009/internal/service/health"
	"github.com/Aduersarius/polybet-sub009/internal/service/notify"
	"github.com/Aduersarius/polybet-sub009/pkg/config"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
	"github.com/Aduersarius/polybet-sub009/pkg/monitor"
)

// SignerDeriver 按索引派生充值地址的 signer
type SignerDeriver interface {
	Derive(index uint32) (*keys.Signer, error)
}

// TokenRegistry 币种 -> ERC-20 合约
type TokenRegistry interface {
	Token(currency string) (config.TokenConfig, bool)
}

// Dependencies Sweeper 的外部依赖
type Dependencies struct {
	Repo     repository.DepositRepository
	Chain    chain.Client
	Keys     SignerDeriver
	Master   chain.Signer
	Tokens   TokenRegistry
	Notifier notify.Notifier
	State    *health.State
	Metrics  *monitor.SweeperMetrics
	Logger   *zap.Logger
}

// Outcome 单笔记录本轮的处理结果
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeRetryScheduled
	OutcomeFailed
	OutcomeSkipped     // 找不到充值地址，记录不动
	OutcomeInterrupted // 收到退出信号，停在阶段边界，记录不动
	OutcomeDeferred    // 充值地址有未上链的交易，retryCount 不变，下一轮再看
	OutcomeUnchanged   // 记录已是终态或持久化失败
)

// CycleResult 一轮归集的汇总
type CycleResult struct {
	Fetched        int
	Completed      int
	RetryScheduled int
	Failed         int
	Skipped        int
	Deferred       int
	Unchanged      int
	Interrupted    bool
}

func (r *CycleResult) add(o Outcome) {
	switch o {
	case OutcomeCompleted:
		r.Completed++
	case OutcomeRetryScheduled:
		r.RetryScheduled++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeDeferred:
		r.Deferred++
	case OutcomeInterrupted:
		r.Interrupted = true
	default:
		r.Unchanged++
	}
}

// Sweeper 资金归集: 待归集队列 -> 查余额 -> 补 gas -> 转入主钱包
type Sweeper struct {
	// mu 保证同一时刻只有一轮归集在使用主钱包 (避免 nonce 冲突)
	mu sync.Mutex

	repo     repository.DepositRepository
	chain    chain.Client
	keys     SignerDeriver
	master   chain.Signer
	tokens   TokenRegistry
	notifier notify.Notifier
	state    *health.State
	metrics  *monitor.SweeperMetrics
	logger   *zap.Logger

	funder   *GasFunder
	executor *Executor
	retry    RetryPolicy
	cfg      config.SweeperConfig
	now      func() time.Time
}

func New(deps Dependencies, cfg config.SweeperConfig) *Sweeper {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Sweeper{
		repo:     deps.Repo,
		chain:    deps.Chain,
		keys:     deps.Keys,
		master:   deps.Master,
		tokens:   deps.Tokens,
		notifier: notifier,
		state:    deps.State,
		metrics:  deps.Metrics,
		logger:   logger,
		funder:   NewGasFunder(deps.Chain, deps.Master, cfg.GasMultiplier, cfg.RpcTimeout, cfg.ConfirmTimeout, logger),
		executor: NewExecutor(deps.Chain, deps.Master.Address(), cfg.RpcTimeout, cfg.ConfirmTimeout, logger),
		retry:    RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay},
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunCycle 执行一轮归集
// 已有一轮在运行时立即返回 errno.ErrCycleInProgress
// 队列查询失败只计数并返回错误，不会 panic
func (s *Sweeper) RunCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	if !s.mu.TryLock() {
		return result, errno.ErrCycleInProgress
	}
	defer s.mu.Unlock()

	timer := prometheus.NewTimer(s.metrics.SweeperCycleDuration)
	defer timer.ObserveDuration()

	if err := ctx.Err(); err != nil {
		result.Interrupted = true
		return result, nil
	}

	// 1. 拉取队列
	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.RpcTimeout)
	deposits, err := s.repo.ListPendingSweeps(queryCtx, s.cfg.BatchSize, s.cfg.MaxRetries)
	cancel()
	if err != nil {
		s.queueFailed(err)
		return result, err
	}

	s.state.CycleSucceeded()
	s.metrics.ConsecutiveFailures.Set(0)
	s.metrics.LastSuccessfulCycleTime.SetToCurrentTime()

	result.Fetched = len(deposits)
	if len(deposits) == 0 {
		return result, nil
	}
	s.logger.Info("开始归集", zap.Int("count", len(deposits)))

	// 2. 逐笔串行处理
	for i := range deposits {
		if i > 0 && !s.pause(ctx) {
			result.Interrupted = true
			break
		}
		outcome := s.process(ctx, &deposits[i])
		result.add(outcome)
		if outcome == OutcomeInterrupted {
			break
		}
	}

	s.logger.Info("本轮归集结束",
		zap.Int("fetched", result.Fetched),
		zap.Int("completed", result.Completed),
		zap.Int("retry_scheduled", result.RetryScheduled),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("deferred", result.Deferred),
		zap.Bool("interrupted", result.Interrupted))
	return result, nil
}

func (s *Sweeper) queueFailed(err error) {
	s.metrics.QueueFailuresTotal.Inc()
	consecutive, reached := s.state.CycleFailed()
	s.metrics.ConsecutiveFailures.Set(float64(consecutive))

	if reached {
		s.logger.Error("CRITICAL: 待归集队列连续查询失败，已达到告警阈值",
			zap.String("severity", "critical"),
			zap.Int("consecutive_failures", consecutive),
			zap.Error(err))
		return
	}
	s.logger.Warn("查询待归集队列失败", zap.Int("consecutive_failures", consecutive), zap.Error(err))
}

// pause 两笔之间的固定间隔，期间收到退出信号返回 false
func (s *Sweeper) pause(ctx context.Context) bool {
	if s.cfg.RecordPause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.cfg.RecordPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// process 单笔归集，每个阶段开始前检查退出信号
func (s *Sweeper) process(ctx context.Context, d *model.Deposit) Outcome {
	if ctx.Err() != nil {
		return OutcomeInterrupted
	}

	timer := prometheus.NewTimer(s.metrics.SweeperJobDuration.WithLabelValues(d.Currency))
	defer timer.ObserveDuration()

	s.state.RecordAttempt()
	s.metrics.SweepAttemptsTotal.WithLabelValues(d.Currency).Inc()

	log := s.logger.With(
		zap.Uint64("deposit_id", d.ID),
		zap.Uint64("user_id", d.UserID),
		zap.String("currency", d.Currency),
		zap.Int("retry_count", d.RetryCount))

	// 1. 解析充值地址
	rpcCtx, cancel := detach(ctx, s.cfg.RpcTimeout)
	addr, err := s.repo.FindDepositAddress(rpcCtx, d.UserID, d.Currency)
	cancel()
	if errors.Is(err, errno.ErrAddressNotFound) {
		s.metrics.UnresolvedAddressTotal.WithLabelValues(d.Currency).Inc()
		s.state.RecordUnresolved()
		log.Warn("找不到充值地址，跳过该记录")
		return OutcomeSkipped
	}
	if err != nil {
		return s.fail(ctx, d, stageErr(StageResolve, err), log)
	}

	token, ok := s.tokens.Token(d.Currency)
	if !ok {
		return s.fail(ctx, d, stageErr(StageToken, fmt.Errorf("%w: %s", errno.ErrUnsupportedToken, d.Currency)), log)
	}
	tokenAddr := common.HexToAddress(token.Contract)

	child, err := s.keys.Derive(addr.HDPathIndex)
	if err != nil {
		return s.fail(ctx, d, stageErr(StageKey, err), log)
	}
	if !strings.EqualFold(child.Address().Hex(), addr.Address) {
		return s.fail(ctx, d, stageErr(StageKey, fmt.Errorf("派生地址 %s 与记录地址 %s 不一致 (index=%d)",
			child.Address().Hex(), addr.Address, addr.HDPathIndex)), log)
	}
	log = log.With(zap.String("address", addr.Address))

	// 2. 上一笔交易还没上链时不再签新交易，否则会用下一个 nonce 重复转账
	if ctx.Err() != nil {
		return OutcomeInterrupted
	}
	rpcCtx, cancel = detach(ctx, s.cfg.RpcTimeout)
	pending, err := s.chain.HasPendingTx(rpcCtx, child.Address())
	cancel()
	if err != nil {
		return s.fail(ctx, d, stageErr(StagePending, err), log)
	}
	if pending {
		log.Warn("充值地址仍有未上链的交易，等待下一轮", zap.String("pending_tx", d.Metadata.PendingTxHash))
		return OutcomeDeferred
	}

	// 3. 查询代币余额
	rpcCtx, cancel = detach(ctx, s.cfg.RpcTimeout)
	balance, err := s.chain.TokenBalance(rpcCtx, tokenAddr, child.Address())
	cancel()
	if err != nil {
		return s.fail(ctx, d, stageErr(StageBalance, err), log)
	}
	if balance.Sign() == 0 {
		if c, ok := adoptPending(d, token.Decimals); ok {
			log.Info("确认超时的归集交易已上链，标记完成", zap.String("tx_hash", c.txHash.Hex()))
			return s.complete(ctx, d, c, log)
		}
		log.Info("链上余额为 0，直接标记完成")
		return s.complete(ctx, d, completion{amount: balance, decimals: token.Decimals, zero: true}, log)
	}

	// 4. 补 gas
	if ctx.Err() != nil {
		return OutcomeInterrupted
	}
	funding, err := s.funder.Ensure(ctx, child, tokenAddr, balance)
	if funding.TopUpTx != nil {
		s.metrics.GasTopUpTotal.WithLabelValues(d.Currency).Inc()
	}
	if err != nil {
		return s.fail(ctx, d, err, log)
	}

	// 5. 归集
	if ctx.Err() != nil {
		return OutcomeInterrupted
	}
	swept, err := s.executor.Sweep(ctx, child, tokenAddr, balance, funding.Fee)
	if err != nil {
		if swept.TxHash != (common.Hash{}) {
			log = log.With(zap.String("tx_hash", swept.TxHash.Hex()))
		}
		if errors.Is(err, errno.ErrConfirmTimeout) {
			return s.deferPending(ctx, d, swept.TxHash, balance, err, log)
		}
		return s.fail(ctx, d, err, log)
	}

	return s.complete(ctx, d, completion{
		amount:   balance,
		decimals: token.Decimals,
		txHash:   &swept.TxHash,
		topUpTx:  funding.TopUpTx,
	}, log)
}

// adoptPending 余额为 0 且记录里有确认超时的交易: 说明那笔交易已经上链
func adoptPending(d *model.Deposit, decimals int32) (completion, bool) {
	if d.Metadata.PendingTxHash == "" {
		return completion{}, false
	}
	amount, ok := new(big.Int).SetString(d.Metadata.PendingAmount, 10)
	if !ok {
		amount = new(big.Int)
	}
	hash := common.HexToHash(d.Metadata.PendingTxHash)
	return completion{amount: amount, decimals: decimals, txHash: &hash}, true
}

type completion struct {
	amount   *big.Int
	decimals int32
	txHash   *common.Hash
	topUpTx  *common.Hash
	zero     bool
}

func (s *Sweeper) complete(ctx context.Context, d *model.Deposit, c completion, log *zap.Logger) Outcome {
	now := s.now().UTC()
	human := decimal.NewFromBigInt(c.amount, -c.decimals)

	persistCtx, cancel := detach(ctx, s.cfg.RpcTimeout)
	defer cancel()

	updated, applied, err := s.repo.UpdatePending(persistCtx, d.ID, func(rec *model.Deposit) error {
		rec.Status = model.DepositStatusCompleted
		if c.txHash != nil {
			h := c.txHash.Hex()
			rec.TxHash = &h
		}
		rec.CompletedAt = &now
		rec.UpdatedAt = now
		rec.Metadata.NextRetry = nil
		rec.Metadata.NextRetryDelayMs = 0
		rec.Metadata.SweptAmount = c.amount.String()
		rec.Metadata.ZeroBalance = c.zero
		rec.Metadata.PendingTxHash = ""
		rec.Metadata.PendingAmount = ""
		if c.topUpTx != nil {
			rec.Metadata.GasTopUpTxHash = c.topUpTx.Hex()
		}
		return nil
	})
	if err != nil {
		// 链上已经转走的情况下，下一轮会因为余额为 0 走幂等完成
		s.metrics.SweepFailuresTotal.WithLabelValues(d.Currency, StagePersist).Inc()
		fields := []zap.Field{zap.Error(err)}
		if c.txHash != nil {
			fields = append(fields, zap.String("tx_hash", c.txHash.Hex()))
		}
		log.Error("保存归集完成状态失败", fields...)
		return OutcomeUnchanged
	}
	if !applied {
		log.Info("记录已是终态，忽略", zap.String("status", string(updated.Status)))
		return OutcomeUnchanged
	}

	s.state.RecordSuccess()
	s.metrics.SweepSuccessTotal.WithLabelValues(d.Currency).Inc()
	s.metrics.SweptAmountTotal.WithLabelValues(d.Currency).Add(human.InexactFloat64())

	event := notify.Event{
		Type:       notify.EventDepositCompleted,
		DepositID:  updated.ID,
		UserID:     updated.UserID,
		Currency:   updated.Currency,
		Status:     updated.Status,
		Amount:     human.String(),
		RetryCount: updated.RetryCount,
		Timestamp:  now,
	}
	if updated.TxHash != nil {
		event.TxHash = *updated.TxHash
	}
	s.notifier.Notify(ctx, event)

	log.Info("✅ 归集完成", zap.String("amount", human.String()), zap.String("tx_hash", event.TxHash))
	return OutcomeCompleted
}

// fail 进入重试流程: retryCount+1，达到上限则 FAILED
func (s *Sweeper) fail(ctx context.Context, d *model.Deposit, cause error, log *zap.Logger) Outcome {
	stage := stageOf(cause)
	now := s.now().UTC()

	s.state.RecordFailure()
	s.metrics.SweepFailuresTotal.WithLabelValues(d.Currency, stage).Inc()

	persistCtx, cancel := detach(ctx, s.cfg.RpcTimeout)
	defer cancel()

	var decision RetryDecision
	updated, applied, err := s.repo.UpdatePending(persistCtx, d.ID, func(rec *model.Deposit) error {
		decision = s.retry.Next(rec.RetryCount, now)
		rec.RetryCount = decision.RetryCount
		rec.UpdatedAt = now
		rec.Metadata.LastError = cause.Error()
		rec.Metadata.LastErrorTime = &now
		rec.Metadata.FailedStage = stage
		if stage == StageSweep || stage == StageConfirm {
			// 新交易已经失败，之前确认超时的那笔不再代表链上状态
			rec.Metadata.PendingTxHash = ""
			rec.Metadata.PendingAmount = ""
		}
		if decision.Terminal {
			rec.Status = model.DepositStatusFailed
			rec.Metadata.NextRetry = nil
			rec.Metadata.NextRetryDelayMs = 0
		} else {
			next := decision.NextRetry
			rec.Metadata.NextRetry = &next
			rec.Metadata.NextRetryDelayMs = decision.Delay.Milliseconds()
		}
		return nil
	})
	if err != nil {
		s.metrics.SweepFailuresTotal.WithLabelValues(d.Currency, StagePersist).Inc()
		log.Error("保存失败状态失败", zap.String("stage", stage), zap.NamedError("cause", cause), zap.Error(err))
		return OutcomeUnchanged
	}
	if !applied {
		log.Info("记录已是终态，忽略", zap.String("status", string(updated.Status)))
		return OutcomeUnchanged
	}

	event := notify.Event{
		DepositID:  updated.ID,
		UserID:     updated.UserID,
		Currency:   updated.Currency,
		Status:     updated.Status,
		RetryCount: updated.RetryCount,
		Error:      cause.Error(),
		Timestamp:  now,
	}

	if decision.Terminal {
		s.metrics.DepositFailedTotal.WithLabelValues(d.Currency).Inc()
		event.Type = notify.EventDepositFailed
		s.notifier.Notify(ctx, event)
		log.Error("❌ 归集失败次数达到上限，标记为 FAILED",
			zap.String("stage", stage), zap.Int("retry_count", updated.RetryCount), zap.Error(cause))
		return OutcomeFailed
	}

	s.metrics.RetryScheduledTotal.WithLabelValues(d.Currency).Inc()
	event.Type = notify.EventDepositRetryScheduled
	event.NextRetry = updated.Metadata.NextRetry
	s.notifier.Notify(ctx, event)
	log.Warn("归集失败，等待下一轮重试",
		zap.String("stage", stage),
		zap.Int("retry_count", updated.RetryCount),
		zap.Duration("next_retry_delay", decision.Delay),
		zap.Error(cause))
	return OutcomeRetryScheduled
}

// deferPending 交易已广播但确认超时: 记下交易哈希，retryCount 不变
// 下一轮会先等这笔交易离开交易池，上链后按余额为 0 完成
func (s *Sweeper) deferPending(ctx context.Context, d *model.Deposit, hash common.Hash, amount *big.Int, cause error, log *zap.Logger) Outcome {
	now := s.now().UTC()
	s.metrics.SweepFailuresTotal.WithLabelValues(d.Currency, StageConfirm).Inc()

	persistCtx, cancel := detach(ctx, s.cfg.RpcTimeout)
	defer cancel()

	updated, applied, err := s.repo.UpdatePending(persistCtx, d.ID, func(rec *model.Deposit) error {
		rec.UpdatedAt = now
		rec.Metadata.LastError = cause.Error()
		rec.Metadata.LastErrorTime = &now
		rec.Metadata.FailedStage = StageConfirm
		rec.Metadata.PendingTxHash = hash.Hex()
		rec.Metadata.PendingAmount = amount.String()
		return nil
	})
	if err != nil {
		log.Error("保存待确认交易失败", zap.NamedError("cause", cause), zap.Error(err))
		return OutcomeUnchanged
	}
	if !applied {
		log.Info("记录已是终态，忽略", zap.String("status", string(updated.Status)))
		return OutcomeUnchanged
	}

	log.Warn("归集交易确认超时，等待上链后再处理", zap.Error(cause))
	return OutcomeDeferred
}
