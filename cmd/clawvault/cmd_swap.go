package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var swapCmd = &cobra.Command{
	Use:   "swap <from-symbol> <to-symbol> <amount>",
	Short: "Swap one token for another through the chain's router",
	Long: `Swap one token for another through the chain's router.

The approval and the swap are submitted as one atomic batch, and the
output is protected by the configured slippage tolerance.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		from, to, amount := args[0], args[1], args[2]

		pin, err := promptPIN()
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Swapping %s %s for %s...\n", amount, from, to)
		res, err := a.wallet.Swap(context.Background(), pin, from, to, amount)
		if err != nil {
			fatal(err)
		}

		path := "self-funded"
		if res.Sponsored {
			path = "sponsored"
		}
		fmt.Printf("Confirmed (%s): %s\n", path, res.Hash.Hex())
	},
}

func init() {
	rootCmd.AddCommand(swapCmd)
}
