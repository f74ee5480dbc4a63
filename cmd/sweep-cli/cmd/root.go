package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aduersarius/polybet-sub009/pkg/config"
	"github.com/Aduersarius/polybet-sub009/pkg/logger"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "sweep-cli",
	Short: "资金归集运维工具",
	Long: `资金归集 worker 的运维命令行工具。
支持查看待归集队列、核对派生地址、手动执行一轮归集以及管理加密的助记词 Keystore。`,
	SilenceUsage: true,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig 读取并校验配置，日志只输出到终端
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.App.Env)
	return cfg, nil
}
