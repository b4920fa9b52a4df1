package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/sipeed/clawvault/pkg/store"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show balances of the active wallet",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		snap, err := refreshBalances(a)
		if err != nil {
			fatal(err)
		}
		printBalances(snap)
	},
}

func refreshBalances(a *app) (store.Snapshot, error) {
	w, chainCfg, err := a.wallet.Active()
	if err != nil {
		return store.Snapshot{}, err
	}

	// Best effort: a failed sync still shows the cached snapshot.
	if !noSync {
		_ = a.sched.SyncOnce(context.Background(), w.ID, chainCfg.ChainID, common.HexToAddress(w.Address))
	}

	return a.wallet.Balances()
}

func printBalances(snap store.Snapshot) {
	if len(snap.Assets) == 0 {
		fmt.Println("No balance data yet. Check chain connectivity.")
		return
	}
	for _, asset := range snap.Assets {
		line := fmt.Sprintf("%-8s %s", asset.Symbol, asset.Balance)
		if asset.UnitPriceUsd > 0 {
			line += fmt.Sprintf("  ($%.2f/unit)", asset.UnitPriceUsd)
		}
		fmt.Println(line)
	}
	fmt.Printf("\nFetched at %s\n", snap.FetchedAt.Local().Format("15:04:05"))
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
