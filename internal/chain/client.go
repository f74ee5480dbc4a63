package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer 可以对交易签名的账户 (主钱包或用户充值地址)
// 实现方持有私钥，但私钥本身不对外暴露
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// FeeQuote 一笔交易的 gas 报价
type FeeQuote struct {
	GasLimit uint64
	GasPrice *big.Int
}

// Cost = GasLimit * GasPrice
func (q FeeQuote) Cost() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(q.GasLimit), q.GasPrice)
}

// Client 归集流程需要的全部链上能力，固定在一条链上
type Client interface {
	// TokenBalance 读取 ERC-20 余额 (最小单位)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	// NativeBalance 读取原生币 (gas 币) 余额
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	// HasPendingTx owner 是否还有未上链的交易
	HasPendingTx(ctx context.Context, owner common.Address) (bool, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// EstimateTokenTransferGas 估算 from 调用 token.transfer(to, amount) 的 gasLimit
	EstimateTokenTransferGas(ctx context.Context, token, from, to common.Address, amount *big.Int) (uint64, error)
	// SendNative 发送原生币，返回交易哈希 (不等待确认)
	SendNative(ctx context.Context, from Signer, to common.Address, value, gasPrice *big.Int) (common.Hash, error)
	// SendTokenTransfer 发送 ERC-20 transfer，返回交易哈希 (不等待确认)
	SendTokenTransfer(ctx context.Context, from Signer, token, to common.Address, amount *big.Int, fee FeeQuote) (common.Hash, error)
	// WaitMined 等待交易上链; 回执 status=0 时返回 errno.ErrTxReverted
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}
