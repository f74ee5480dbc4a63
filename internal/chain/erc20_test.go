package chain

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestERC20_PackTransfer(t *testing.T) {
	token, err := newERC20()
	require.NoError(t, err)

	to := common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	data, err := token.packTransfer(to, big.NewInt(1_000_000_000))
	require.NoError(t, err)

	// transfer(address,uint256) selector
	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	assert.Len(t, data, 4+32+32)
	assert.Equal(t, to.Bytes(), data[4+12:4+32])
}

func TestERC20_PackBalanceOf(t *testing.T) {
	token, err := newERC20()
	require.NoError(t, err)

	data, err := token.packBalanceOf(common.HexToAddress("0x01"))
	require.NoError(t, err)
	// balanceOf(address) selector
	assert.Equal(t, "70a08231", hex.EncodeToString(data[:4]))
}

func TestERC20_UnpackBalance(t *testing.T) {
	token, err := newERC20()
	require.NoError(t, err)

	// 没有合约代码时 eth_call 返回空，必须报错而不是当作 0
	_, err = token.unpackBalance(nil)
	require.ErrorIs(t, err, errNoCode)
	_, err = token.unpackBalance([]byte{})
	require.ErrorIs(t, err, errNoCode)

	zero, err := token.unpackBalance(make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, 0, zero.Sign())

	encoded := math.U256Bytes(big.NewInt(1_000_000_000))
	got, err := token.unpackBalance(encoded)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000), got)
}

func TestFeeQuote_Cost(t *testing.T) {
	q := FeeQuote{GasLimit: 65000, GasPrice: big.NewInt(20_000_000_000)}
	assert.Equal(t, "1300000000000000", q.Cost().String())
}
