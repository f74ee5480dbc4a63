package sweeper

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/chain"
)

// Executor 把充值地址上的全部代币转入主钱包
type Executor struct {
	chain          chain.Client
	destination    common.Address
	rpcTimeout     time.Duration
	confirmTimeout time.Duration
	logger         *zap.Logger
}

type SweepResult struct {
	TxHash      common.Hash
	BlockNumber *big.Int
}

func NewExecutor(client chain.Client, destination common.Address, rpcTimeout, confirmTimeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		chain:          client,
		destination:    destination,
		rpcTimeout:     rpcTimeout,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}
}

// Sweep 发送 transfer 并等待确认，fee 使用 GasFunder 的报价
func (e *Executor) Sweep(ctx context.Context, child chain.Signer, token common.Address, amount *big.Int, fee chain.FeeQuote) (SweepResult, error) {
	var result SweepResult

	sendCtx, cancel := detach(ctx, e.rpcTimeout)
	defer cancel()

	hash, err := e.chain.SendTokenTransfer(sendCtx, child, token, e.destination, amount, fee)
	if err != nil {
		return result, stageErr(StageSweep, err)
	}
	result.TxHash = hash

	confirmCtx, cancelConfirm := detach(ctx, e.confirmTimeout)
	defer cancelConfirm()

	receipt, err := e.chain.WaitMined(confirmCtx, hash)
	if err != nil {
		return result, stageErr(StageConfirm, err)
	}
	result.BlockNumber = receipt.BlockNumber

	e.logger.Debug("归集交易已确认",
		zap.String("tx_hash", hash.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed))
	return result, nil
}

// detach 链上调用不受退出信号打断，只受自身超时约束
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
