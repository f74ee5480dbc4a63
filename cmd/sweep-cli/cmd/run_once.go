package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aduersarius/polybet-sub009/internal/app"
)

var runOnceNotify bool

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "手动执行一轮归集",
	Long:  `与 worker 使用同一套逻辑执行一轮归集，结束后输出本轮结果和健康快照。不要与正在运行的 worker 同时使用同一个主钱包。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.Build(ctx, cfg, app.Options{DisableNotify: !runOnceNotify})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		result, err := a.Sweeper.RunCycle(ctx)
		if err != nil {
			return err
		}

		out, _ := json.MarshalIndent(map[string]interface{}{
			"chain_id": a.Chain.ChainID().String(),
			"result":   result,
			"health":   a.State.Snapshot(),
		}, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	runOnceCmd.Flags().BoolVar(&runOnceNotify, "notify", false, "推送用户通知")
	rootCmd.AddCommand(runOnceCmd)
}
