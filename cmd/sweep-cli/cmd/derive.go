package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/internal/app"
)

var deriveIndex uint32

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "显示指定索引的充值地址",
	Long:  `用配置中的助记词派生 m/44'/60'/0'/0/{index} 的地址，用于核对 deposit_addresses 表。同时输出 account 层扩展公钥。只输出地址和公钥，不输出私钥。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		deriver, master, err := app.LoadKeys(cfg.Wallet, zap.NewNop())
		if err != nil {
			return err
		}
		signer, err := deriver.Derive(deriveIndex)
		if err != nil {
			return err
		}

		xpub, err := deriver.AccountXPub()
		if err != nil {
			return err
		}

		fmt.Printf("Account xpub [m/44'/60'/0'/0]: %s\n", xpub)
		fmt.Printf("Master  [m/44'/60'/0'/0/0]: %s\n", master.Address().Hex())
		fmt.Printf("Address [m/44'/60'/0'/0/%d]: %s\n", deriveIndex, signer.Address().Hex())
		return nil
	},
}

func init() {
	deriveCmd.Flags().Uint32Var(&deriveIndex, "index", 0, "派生索引")
	_ = deriveCmd.MarkFlagRequired("index")
	rootCmd.AddCommand(deriveCmd)
}
