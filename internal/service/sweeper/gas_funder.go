package sweeper

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/chain"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

// GasFunder 保证充值地址有足够的原生币支付 transfer 手续费
type GasFunder struct {
	chain          chain.Client
	master         chain.Signer
	multiplier     int64
	rpcTimeout     time.Duration
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// Funding 资金检查的结果，Fee 会原样交给 Executor 使用
type Funding struct {
	Fee      chain.FeeQuote
	Required *big.Int     // multiplier * gasLimit * gasPrice
	TopUpTx  *common.Hash // 没有补 gas 时为 nil
}

func NewGasFunder(client chain.Client, master chain.Signer, multiplier int64, rpcTimeout, confirmTimeout time.Duration, logger *zap.Logger) *GasFunder {
	return &GasFunder{
		chain:          client,
		master:         master,
		multiplier:     multiplier,
		rpcTimeout:     rpcTimeout,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}
}

// Ensure 估算手续费，余额不足时由主钱包补差额并等待确认
func (f *GasFunder) Ensure(ctx context.Context, child chain.Signer, token common.Address, amount *big.Int) (Funding, error) {
	var funding Funding

	// 1. 报价
	rpcCtx, cancel := detach(ctx, f.rpcTimeout)
	defer cancel()

	gasPrice, err := f.chain.SuggestGasPrice(rpcCtx)
	if err != nil {
		return funding, stageErr(StageGas, err)
	}
	gasLimit, err := f.chain.EstimateTokenTransferGas(rpcCtx, token, child.Address(), f.master.Address(), amount)
	if err != nil {
		return funding, stageErr(StageGas, err)
	}

	funding.Fee = chain.FeeQuote{GasLimit: gasLimit, GasPrice: gasPrice}
	funding.Required = new(big.Int).Mul(funding.Fee.Cost(), big.NewInt(f.multiplier))

	// 2. 当前余额
	balance, err := f.chain.NativeBalance(rpcCtx, child.Address())
	if err != nil {
		return funding, stageErr(StageGas, err)
	}
	if balance.Cmp(funding.Required) >= 0 {
		return funding, nil
	}

	// 3. 主钱包补差额
	shortfall := new(big.Int).Sub(funding.Required, balance)
	f.logger.Info("充值地址 gas 不足，主钱包补充",
		zap.String("address", child.Address().Hex()),
		zap.String("balance", balance.String()),
		zap.String("required", funding.Required.String()),
		zap.String("shortfall", shortfall.String()))

	hash, err := f.chain.SendNative(rpcCtx, f.master, child.Address(), shortfall, gasPrice)
	if err != nil {
		return funding, stageErr(StageGas, fmt.Errorf("发送 gas 失败: %w", err))
	}
	funding.TopUpTx = &hash

	confirmCtx, cancelConfirm := detach(ctx, f.confirmTimeout)
	defer cancelConfirm()
	if _, err := f.chain.WaitMined(confirmCtx, hash); err != nil {
		return funding, stageErr(StageGas, fmt.Errorf("gas 交易未确认: %w", err))
	}

	// 4. 确认后复查，保证 transfer 前余额达标
	verifyCtx, cancelVerify := detach(ctx, f.rpcTimeout)
	defer cancelVerify()
	balance, err = f.chain.NativeBalance(verifyCtx, child.Address())
	if err != nil {
		return funding, stageErr(StageGas, err)
	}
	if balance.Cmp(funding.Required) < 0 {
		return funding, stageErr(StageGas, fmt.Errorf("%w: have %s, need %s", errno.ErrInsufficientGas, balance, funding.Required))
	}
	return funding, nil
}
