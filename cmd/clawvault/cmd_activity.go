package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/sipeed/clawvault/pkg/activity"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the activity feed of the active wallet",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if w, chainCfg, err := a.wallet.Active(); err == nil && !noSync {
			_ = a.sched.SyncOnce(context.Background(), w.ID, chainCfg.ChainID, common.HexToAddress(w.Address))
		}

		items, err := a.wallet.Activity()
		if err != nil {
			fatal(err)
		}
		printActivity(items)
	},
}

func printActivity(items []activity.Item) {
	if len(items) == 0 {
		fmt.Println("No activity yet.")
		return
	}
	for _, it := range items {
		when := it.Timestamp.Local().Format("2006-01-02 15:04")
		fmt.Printf("%s  %-8s %-8s %-10s %s  %s\n", when, it.Type, it.Status, it.Asset, it.Amount, it.Hash)
	}
}

func init() {
	rootCmd.AddCommand(activityCmd)
}
