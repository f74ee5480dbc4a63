package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/keys"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var (
	// PUSH1 0 PUSH1 0 REVERT: 任何调用都会回滚
	revertingContract = common.HexToAddress("0x00000000000000000000000000000000000000fd")
	emptyAccount      = common.HexToAddress("0x00000000000000000000000000000000000000e0")
)

type simEnv struct {
	sim    *simulated.Backend
	client *EthClient
	master *keys.Signer
}

func newSimEnv(t *testing.T) *simEnv {
	t.Helper()

	deriver, err := keys.NewDeriver(testMnemonic, "")
	require.NoError(t, err)
	master, err := deriver.Derive(keys.MasterIndex)
	require.NoError(t, err)

	sim := simulated.NewBackend(types.GenesisAlloc{
		master.Address():  {Balance: new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))},
		revertingContract: {Balance: big.NewInt(0), Code: common.FromHex("0x60006000fd")},
	})
	t.Cleanup(func() { _ = sim.Close() })

	client, err := newEthClient(context.Background(), sim.Client(), zap.NewNop())
	require.NoError(t, err)
	client.pollInterval = 20 * time.Millisecond

	return &simEnv{sim: sim, client: client, master: master}
}

func (e *simEnv) fee(t *testing.T) FeeQuote {
	t.Helper()
	gasPrice, err := e.client.SuggestGasPrice(context.Background())
	require.NoError(t, err)
	// 留出 1 gwei 小费，保证 Commit 时一定被打包
	gasPrice.Add(gasPrice, big.NewInt(params.GWei))
	return FeeQuote{GasLimit: 100_000, GasPrice: gasPrice}
}

func TestEthClient_ChainID(t *testing.T) {
	env := newSimEnv(t)
	assert.Equal(t, int64(1337), env.client.ChainID().Int64())
}

func TestEthClient_WaitMinedSuccess(t *testing.T) {
	env := newSimEnv(t)
	ctx := context.Background()
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	hash, err := env.client.SendNative(ctx, env.master, to, big.NewInt(params.GWei), env.fee(t).GasPrice)
	require.NoError(t, err)

	pending, err := env.client.HasPendingTx(ctx, env.master.Address())
	require.NoError(t, err)
	assert.True(t, pending, "交易未打包前应视为 pending")

	env.sim.Commit()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	receipt, err := env.client.WaitMined(waitCtx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	pending, err = env.client.HasPendingTx(ctx, env.master.Address())
	require.NoError(t, err)
	assert.False(t, pending)

	balance, err := env.client.NativeBalance(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(params.GWei), balance)
}

func TestEthClient_WaitMinedReverted(t *testing.T) {
	env := newSimEnv(t)
	ctx := context.Background()

	hash, err := env.client.SendTokenTransfer(ctx, env.master, revertingContract, emptyAccount, big.NewInt(1), env.fee(t))
	require.NoError(t, err)
	env.sim.Commit()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	receipt, err := env.client.WaitMined(waitCtx, hash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errno.ErrTxReverted))
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestEthClient_WaitMinedTimeout(t *testing.T) {
	env := newSimEnv(t)
	ctx := context.Background()

	// 不 Commit，交易一直停在交易池里
	hash, err := env.client.SendNative(ctx, env.master, emptyAccount, big.NewInt(1), env.fee(t).GasPrice)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = env.client.WaitMined(waitCtx, hash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errno.ErrConfirmTimeout))
}

func TestEthClient_TokenBalanceWithoutContractCode(t *testing.T) {
	env := newSimEnv(t)

	_, err := env.client.TokenBalance(context.Background(), emptyAccount, env.master.Address())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errNoCode))
}
