package bip39

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

var ErrInvalidMnemonic = errors.New("助记词校验失败")

// MnemonicService 提供助记词相关的功能
type MnemonicService struct{}

func NewMnemonicService() *MnemonicService {
	return &MnemonicService{}
}

// GenerateMnemonic 生成新的随机助记词
// bitSize: 128 (12 个单词) 或 256 (24 个单词)
func (s *MnemonicService) GenerateMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("生成熵失败: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("生成助记词失败: %w", err)
	}
	return mnemonic, nil
}

func (s *MnemonicService) ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(normalize(mnemonic))
}

// SeedFromMnemonic 校验助记词并转换为 BIP-39 Seed
// 非法助记词直接返回错误，避免用错误的种子派生出错误的热钱包
func (s *MnemonicService) SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	m := normalize(mnemonic)
	if !bip39.IsMnemonicValid(m) {
		return nil, ErrInvalidMnemonic
	}
	return bip39.NewSeed(m, passphrase), nil
}

// normalize 去掉多余空白 (配置文件/环境变量里经常带换行)
func normalize(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}
