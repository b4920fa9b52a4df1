package main

import (
	"fmt"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show the active wallet's address as text and QR code",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		w, chainCfg, err := a.wallet.Active()
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Receive on %s:\n\n", chainCfg.Name)
		qrterminal.GenerateHalfBlock(w.Address, qrterminal.L, os.Stdout)
		fmt.Printf("\n%s\n", w.Address)
	},
}

func init() {
	rootCmd.AddCommand(receiveCmd)
}
