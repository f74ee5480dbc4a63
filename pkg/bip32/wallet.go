package bip32

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// HardenedKeyStart 硬化派生的起始索引 (2^31)
const HardenedKeyStart = hdkeychain.HardenedKeyStart

// keychain 实现 ExtendedKey，封装 hdkeychain.ExtendedKey
type keychain struct {
	key *hdkeychain.ExtendedKey
}

func (k *keychain) String() string {
	return k.key.String()
}

func (k *keychain) ECPrivKey() (*btcec.PrivateKey, error) {
	return k.key.ECPrivKey()
}

func (k *keychain) Derive(index uint32) (ExtendedKey, error) {
	child, err := k.key.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("派生子密钥失败 (index=%d): %w", index, err)
	}
	return &keychain{key: child}, nil
}

func (k *keychain) Neuter() (ExtendedKey, error) {
	pub, err := k.key.Neuter()
	if err != nil {
		return nil, fmt.Errorf("转换公钥失败: %w", err)
	}
	return &keychain{key: pub}, nil
}

// Wallet 从种子生成的 HD 钱包，只支持按路径派生
type Wallet struct {
	masterKey *keychain
}

// NewMasterKeyFromSeed 使用 BIP-39 种子生成主密钥
// network 只影响 xprv/xpub 的序列化前缀，不影响派生结果；传 nil 使用 MainNet
func NewMasterKeyFromSeed(seed []byte, network *chaincfg.Params) (*Wallet, error) {
	if len(seed) < hdkeychain.MinSeedBytes || len(seed) > hdkeychain.MaxSeedBytes {
		return nil, ErrInvalidSeed
	}
	if network == nil {
		network = &chaincfg.MainNetParams
	}

	master, err := hdkeychain.NewMaster(seed, network)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}
	return &Wallet{masterKey: &keychain{key: master}}, nil
}

// DerivePath 解析路径并逐级派生
// 支持格式: m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func (w *Wallet) DerivePath(path string) (ExtendedKey, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	var current ExtendedKey = w.masterKey
	for _, index := range indices {
		current, err = current.Derive(index)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// ParsePath 把派生路径转换为索引列表，空路径或 "m" 表示主密钥本身
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "m" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "m/") {
		return nil, fmt.Errorf("%w: 必须以 m/ 开头: %q", ErrInvalidPath, path)
	}

	segments := strings.Split(path[2:], "/")
	indices := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil || uint32(val) >= HardenedKeyStart {
			return nil, fmt.Errorf("%w: 路径段 %q", ErrInvalidPath, segment)
		}

		index := uint32(val)
		if hardened {
			index += HardenedKeyStart
		}
		indices = append(indices, index)
	}
	return indices, nil
}
