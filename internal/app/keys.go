package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/keys"
	"github.com/Aduersarius/polybet-sub009/pkg/config"
	"github.com/Aduersarius/polybet-sub009/pkg/keystore"
)

// LoadMnemonic 优先从加密 keystore 读取助记词，不存在时回退到明文配置
func LoadMnemonic(w config.WalletConfig, logger *zap.Logger) (string, error) {
	if w.KeystorePath != "" {
		_, err := os.Stat(w.KeystorePath)
		switch {
		case err == nil:
			if w.Password == "" {
				return "", errors.New("加载 Keystore 失败: 未提供密码 (环境变量 WALLET_PASSWORD)")
			}
			mnemonic, err := keystore.LoadMnemonic(w.KeystorePath, w.Password)
			if err != nil {
				return "", fmt.Errorf("解密 Keystore 失败: %w", err)
			}
			logger.Info("✅ 成功从 Keystore 加载并解密助记词", zap.String("path", w.KeystorePath))
			return mnemonic, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("读取 Keystore 失败: %w", err)
		case w.Mnemonic == "":
			return "", fmt.Errorf("Keystore 文件不存在: %s", w.KeystorePath)
		}
	}

	if w.Mnemonic == "" {
		return "", errors.New("未找到可用的助记词来源 (Keystore 或 WALLET_MNEMONIC)")
	}
	logger.Warn("⚠️  使用配置中的明文助记词 (仅限开发环境)")
	return w.Mnemonic, nil
}

// LoadKeys 构造 Deriver 并校验主钱包地址
func LoadKeys(w config.WalletConfig, logger *zap.Logger) (*keys.Deriver, *keys.Signer, error) {
	mnemonic, err := LoadMnemonic(w, logger)
	if err != nil {
		return nil, nil, err
	}

	deriver, err := keys.NewDeriver(mnemonic, "")
	if err != nil {
		return nil, nil, err
	}

	master, err := deriver.Master(common.HexToAddress(w.MasterAddress))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("🔐 主钱包校验通过", zap.String("master", master.Address().Hex()))
	return deriver, master, nil
}
