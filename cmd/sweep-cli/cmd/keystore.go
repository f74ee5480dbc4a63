package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Aduersarius/polybet-sub009/internal/keys"
	"github.com/Aduersarius/polybet-sub009/pkg/bip39"
	"github.com/Aduersarius/polybet-sub009/pkg/keystore"
)

var keystoreOut string

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "管理加密的助记词 Keystore",
}

var keystoreNewCmd = &cobra.Command{
	Use:   "new",
	Short: "生成新的助记词并加密保存",
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic, err := bip39.NewMnemonicService().GenerateMnemonic(256) // 24 words
		if err != nil {
			return fmt.Errorf("生成助记词失败: %w", err)
		}
		if err := saveKeystore(mnemonic); err != nil {
			return err
		}

		fmt.Println("---------------------------------------------------")
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Println("---------------------------------------------------")
		fmt.Println("请离线备份助记词！任何拥有助记词的人都可以控制所有充值地址和主钱包。")
		return nil
	},
}

var keystoreImportCmd = &cobra.Command{
	Use:   "import",
	Short: "导入已有助记词并加密保存",
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic, err := readSecret("请输入助记词: ")
		if err != nil {
			return err
		}
		if !bip39.NewMnemonicService().ValidateMnemonic(mnemonic) {
			return bip39.ErrInvalidMnemonic
		}
		return saveKeystore(mnemonic)
	},
}

func saveKeystore(mnemonic string) error {
	if _, err := os.Stat(keystoreOut); err == nil {
		return fmt.Errorf("文件已存在，拒绝覆盖: %s", keystoreOut)
	}

	password, err := readSecret("设置 Keystore 密码: ")
	if err != nil {
		return err
	}
	confirm, err := readSecret("再次输入密码: ")
	if err != nil {
		return err
	}
	if password == "" || password != confirm {
		return errors.New("两次输入的密码不一致或为空")
	}

	deriver, err := keys.NewDeriver(mnemonic, "")
	if err != nil {
		return err
	}
	master, err := deriver.Derive(keys.MasterIndex)
	if err != nil {
		return err
	}

	fmt.Println("正在加密 (scrypt)...")
	enc, err := keystore.EncryptMnemonic(mnemonic, password, keystore.StandardParams)
	if err != nil {
		return err
	}
	if err := enc.SaveToFile(keystoreOut); err != nil {
		return err
	}

	fmt.Printf("✅ Keystore 已保存: %s\n", keystoreOut)
	fmt.Printf("主钱包地址 (wallet.master_address): %s\n", master.Address().Hex())
	return nil
}

func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取输入失败: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func init() {
	keystoreCmd.PersistentFlags().StringVar(&keystoreOut, "out", "wallet.json", "Keystore 文件路径")
	keystoreCmd.AddCommand(keystoreNewCmd, keystoreImportCmd)
	rootCmd.AddCommand(keystoreCmd)
}
