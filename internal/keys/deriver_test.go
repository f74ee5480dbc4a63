package keys

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aduersarius/polybet-sub009/pkg/bip39"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// m/44'/60'/0'/0/0 的公开测试向量
var vectorMaster = common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")

func TestDeriver_MasterVector(t *testing.T) {
	d, err := NewDeriver(testMnemonic, "")
	require.NoError(t, err)

	master, err := d.Master(vectorMaster)
	require.NoError(t, err)
	assert.Equal(t, MasterIndex, master.Index())
	assert.Equal(t, vectorMaster, master.Address())
}

func TestDeriver_AccountXPub(t *testing.T) {
	d, err := NewDeriver(testMnemonic, "")
	require.NoError(t, err)

	xpub, err := d.AccountXPub()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(xpub, "xpub"), xpub)

	// 同一个助记词得到同一个 xpub
	again, err := NewDeriver(testMnemonic, "")
	require.NoError(t, err)
	xpub2, err := again.AccountXPub()
	require.NoError(t, err)
	assert.Equal(t, xpub, xpub2)
}

func TestDeriver_MasterMismatch(t *testing.T) {
	d, err := NewDeriver(testMnemonic, "")
	require.NoError(t, err)

	_, err = d.Master(common.HexToAddress("0x0000000000000000000000000000000000000001"))
	assert.True(t, errors.Is(err, errno.ErrMasterKeyMismatch))
}

func TestDeriver_Deterministic(t *testing.T) {
	d1, err := NewDeriver(testMnemonic, "")
	require.NoError(t, err)
	d2, err := NewDeriver(testMnemonic, "")
	require.NoError(t, err)

	seen := map[common.Address]bool{}
	for i := uint32(0); i < 5; i++ {
		a, err := d1.Derive(i)
		require.NoError(t, err)
		b, err := d2.Derive(i)
		require.NoError(t, err)
		assert.Equal(t, a.Address(), b.Address())
		assert.False(t, seen[a.Address()], "index %d 地址重复", i)
		seen[a.Address()] = true
	}
}

func TestDeriver_InvalidMnemonic(t *testing.T) {
	_, err := NewDeriver("not a valid mnemonic", "")
	assert.ErrorIs(t, err, bip39.ErrInvalidMnemonic)
}

func TestSigner_SignTxRecoversAddress(t *testing.T) {
	d, err := NewDeriver(testMnemonic, "")
	require.NoError(t, err)
	s, err := d.Derive(3)
	require.NoError(t, err)

	chainID := big.NewInt(11155111)
	tx := types.NewTransaction(0, vectorMaster, big.NewInt(1), 21000, big.NewInt(1), nil)
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestSigner_FormatHidesKey(t *testing.T) {
	d, err := NewDeriver(testMnemonic, "")
	require.NoError(t, err)
	s, err := d.Derive(1)
	require.NoError(t, err)

	for _, out := range []string{fmt.Sprint(s), fmt.Sprintf("%v", s), fmt.Sprintf("%#v", s)} {
		assert.Contains(t, out, s.Address().Hex())
		assert.NotContains(t, out, "key")
	}
}
