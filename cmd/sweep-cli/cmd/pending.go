package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aduersarius/polybet-sub009/internal/repository"
	"github.com/Aduersarius/polybet-sub009/pkg/database"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

var pendingLimit int

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "列出待归集的充值记录",
	Long:  `按处理顺序列出 PENDING_SWEEP 且未达到重试上限的记录，并标记找不到充值地址的记录 (这些记录会一直被跳过，需要人工处理)。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.ConnectPostgres(cfg.DB.DSN(), false)
		if err != nil {
			return err
		}
		defer func() { _ = database.ClosePostgres(db) }()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		repo := repository.NewDepositRepository(db)
		deposits, err := repo.ListPendingSweeps(ctx, pendingLimit, cfg.Sweeper.MaxRetries)
		if err != nil {
			return err
		}
		if len(deposits) == 0 {
			fmt.Println("没有待归集的记录")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tCURRENCY\tEXPECTED\tRETRY\tCREATED\tADDRESS\tLAST ERROR")
		unresolved := 0
		for _, d := range deposits {
			address := ""
			addr, err := repo.FindDepositAddress(ctx, d.UserID, d.Currency)
			switch {
			case errors.Is(err, errno.ErrAddressNotFound):
				address = "MISSING"
				unresolved++
			case err != nil:
				return err
			default:
				address = fmt.Sprintf("%s (#%d)", addr.Address, addr.HDPathIndex)
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
				d.ID, d.UserID, d.Currency, d.ExpectedAmount.String(),
				d.RetryCount, cfg.Sweeper.MaxRetries,
				d.CreatedAt.Format(time.RFC3339), address, d.Metadata.LastError)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n共 %d 条，其中 %d 条找不到充值地址\n", len(deposits), unresolved)
		return nil
	},
}

func init() {
	pendingCmd.Flags().IntVar(&pendingLimit, "limit", 100, "最多显示条数")
	rootCmd.AddCommand(pendingCmd)
}
