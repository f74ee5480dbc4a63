package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// 只保留 sweeper 用到的 ERC-20 方法
const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// errNoCode 与 bind.ErrNoCode 含义相同
var errNoCode = errors.New("balanceOf returned no data (no contract code at token address?)")

type erc20 struct {
	abi abi.ABI
}

func newERC20() (*erc20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &erc20{abi: parsed}, nil
}

func (e *erc20) packBalanceOf(owner common.Address) ([]byte, error) {
	return e.abi.Pack("balanceOf", owner)
}

func (e *erc20) packTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return e.abi.Pack("transfer", to, amount)
}

// unpackBalance 空返回值说明该地址上没有合约代码 (配置了别的链的合约)，
// 不能当作余额为 0，否则记录会被直接标记完成
func (e *erc20) unpackBalance(result []byte) (*big.Int, error) {
	if len(result) == 0 {
		return nil, errNoCode
	}
	out, err := e.abi.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balance: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected balanceOf output length %d", len(out))
	}
	balance, ok := out[0].(*big.Int)
	if !ok || balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}
