package keys

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Aduersarius/polybet-sub009/pkg/bip32"
	"github.com/Aduersarius/polybet-sub009/pkg/bip39"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

// MasterIndex 主钱包 (gas 来源 + 归集目标) 的派生索引
const MasterIndex uint32 = 0

// accountPath BIP-44 以太坊外部链: m/44'/60'/0'/0/{index}
const accountPath = "m/44'/60'/0'/0"

// Deriver 从一个助记词派生所有签名账户
// 启动时构造一次，之后只暴露 "按索引派生 signer"，助记词和种子不再保留
type Deriver struct {
	account bip32.ExtendedKey // m/44'/60'/0'/0
}

// NewDeriver 校验助记词并预先派生到 account 层
func NewDeriver(mnemonic, passphrase string) (*Deriver, error) {
	seed, err := bip39.NewMnemonicService().SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}

	wallet, err := bip32.NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	for i := range seed {
		seed[i] = 0
	}

	account, err := wallet.DerivePath(accountPath)
	if err != nil {
		return nil, fmt.Errorf("派生 account key 失败: %w", err)
	}
	return &Deriver{account: account}, nil
}

// Derive 派生指定索引的 signer
func (d *Deriver) Derive(index uint32) (*Signer, error) {
	if index >= bip32.HardenedKeyStart {
		return nil, fmt.Errorf("索引超出范围: %d", index)
	}

	child, err := d.account.Derive(index)
	if err != nil {
		return nil, err
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("获取私钥失败 (index=%d): %w", index, err)
	}

	key := priv.ToECDSA()
	return &Signer{
		index:   index,
		address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}

// AccountXPub m/44'/60'/0'/0 的扩展公钥，可用于只读地派生充值地址
func (d *Deriver) AccountXPub() (string, error) {
	pub, err := d.account.Neuter()
	if err != nil {
		return "", err
	}
	return pub.String(), nil
}

// Master 派生主钱包，并校验与配置的主钱包地址一致
func (d *Deriver) Master(expected common.Address) (*Signer, error) {
	master, err := d.Derive(MasterIndex)
	if err != nil {
		return nil, err
	}
	if master.Address() != expected {
		return nil, fmt.Errorf("%w: derived=%s configured=%s", errno.ErrMasterKeyMismatch, master.Address().Hex(), expected.Hex())
	}
	return master, nil
}

// Signer 单个派生账户
// String/Format 只输出地址，私钥不会出现在日志里
type Signer struct {
	index   uint32
	address common.Address
	key     *ecdsa.PrivateKey
}

func (s *Signer) Index() uint32 {
	return s.index
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func (s *Signer) String() string {
	return fmt.Sprintf("signer(%d, %s)", s.index, s.address.Hex())
}

func (s *Signer) GoString() string {
	return s.String()
}
