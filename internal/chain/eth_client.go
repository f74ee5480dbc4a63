package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

// rpcBackend EthClient 用到的节点接口，*ethclient.Client 和 simulated.Client 都满足
type rpcBackend interface {
	ethereum.ChainIDReader
	ethereum.ContractCaller
	ethereum.ChainStateReader
	ethereum.PendingStateReader
	ethereum.GasPricer
	ethereum.GasEstimator
	ethereum.TransactionSender
	ethereum.TransactionReader
}

// EthClient 基于 ethclient 的 Client 实现
type EthClient struct {
	rpc          rpcBackend
	closeFn      func()
	chainID      *big.Int
	token        *erc20
	pollInterval time.Duration
	logger       *zap.Logger
}

// Dial 连接 RPC 节点并读取 ChainID
// 连接失败直接返回错误，不存在 "模拟模式"
func Dial(ctx context.Context, rpcURL string, logger *zap.Logger) (*EthClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("无法连接 RPC: %w", err)
	}

	c, err := newEthClient(ctx, rpc, logger)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	c.closeFn = rpc.Close
	return c, nil
}

func newEthClient(ctx context.Context, rpc rpcBackend, logger *zap.Logger) (*EthClient, error) {
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取 ChainID 失败: %w", err)
	}

	token, err := newERC20()
	if err != nil {
		return nil, err
	}

	logger.Info("已连接 RPC 节点", zap.String("chain_id", chainID.String()))
	return &EthClient{
		rpc:          rpc,
		chainID:      chainID,
		token:        token,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}, nil
}

func (c *EthClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *EthClient) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func (c *EthClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := c.token.packBalanceOf(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf 调用失败: %w", err)
	}
	balance, err := c.token.unpackBalance(result)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", token.Hex(), err)
	}
	return balance, nil
}

func (c *EthClient) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	balance, err := c.rpc.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("查询原生币余额失败: %w", err)
	}
	return balance, nil
}

// HasPendingTx pending nonce 大于已上链 nonce 说明 owner 还有交易在交易池里
func (c *EthClient) HasPendingTx(ctx context.Context, owner common.Address) (bool, error) {
	pending, err := c.rpc.PendingNonceAt(ctx, owner)
	if err != nil {
		return false, fmt.Errorf("failed to get pending nonce: %w", err)
	}
	latest, err := c.rpc.NonceAt(ctx, owner, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get nonce: %w", err)
	}
	return pending > latest, nil
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 gas price 失败: %w", err)
	}
	return gasPrice, nil
}

func (c *EthClient) EstimateTokenTransferGas(ctx context.Context, token, from, to common.Address, amount *big.Int) (uint64, error) {
	data, err := c.token.packTransfer(to, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to pack transfer: %w", err)
	}

	gas, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &token, Data: data})
	if err != nil {
		return 0, fmt.Errorf("估算 transfer gas 失败: %w", err)
	}
	return gas, nil
}

func (c *EthClient) SendNative(ctx context.Context, from Signer, to common.Address, value, gasPrice *big.Int) (common.Hash, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, from.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, to, value, params.TxGas, gasPrice, nil)
	return c.signAndSend(ctx, from, tx)
}

func (c *EthClient) SendTokenTransfer(ctx context.Context, from Signer, token, to common.Address, amount *big.Int, fee FeeQuote) (common.Hash, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, from.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	data, err := c.token.packTransfer(to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack transfer: %w", err)
	}

	// ERC-20 transfer: value 为 0，调用数据里带金额
	tx := types.NewTransaction(nonce, token, big.NewInt(0), fee.GasLimit, fee.GasPrice, data)
	return c.signAndSend(ctx, from, tx)
}

func (c *EthClient) signAndSend(ctx context.Context, from Signer, tx *types.Transaction) (common.Hash, error) {
	signedTx, err := from.SignTx(tx, c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签名失败: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("广播失败: %w", err)
	}

	c.logger.Info("交易已广播",
		zap.String("from", from.Address().Hex()),
		zap.String("to", tx.To().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.String("tx_hash", signedTx.Hash().Hex()))
	return signedTx.Hash(), nil
}

// WaitMined 轮询回执直到上链或 ctx 超时
func (c *EthClient) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt

	attempts := uint(1)
	if deadline, ok := ctx.Deadline(); ok {
		attempts += uint(time.Until(deadline) / c.pollInterval)
	} else {
		attempts += 90
	}

	err := retry.Do(
		func() error {
			r, err := c.rpc.TransactionReceipt(ctx, hash)
			if err != nil {
				return err
			}
			receipt = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if !errors.Is(err, ethereum.NotFound) {
				c.logger.Warn("查询回执失败，稍后重试", zap.Uint("attempt", n), zap.Error(err))
			}
		}),
	)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", errno.ErrConfirmTimeout, hash.Hex())
		}
		return nil, fmt.Errorf("等待交易确认失败: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s (block %s)", errno.ErrTxReverted, hash.Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}
