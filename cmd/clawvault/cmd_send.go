package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <symbol> <to> <amount>",
	Short: "Send the native currency or a token from the active wallet",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		symbol, to, amount := args[0], args[1], args[2]

		pin, err := promptPIN()
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Sending %s %s to %s...\n", amount, symbol, to)
		res, err := a.wallet.Send(context.Background(), pin, symbol, to, amount)
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
	rootCmd.AddCommand(sendCmd)
}
