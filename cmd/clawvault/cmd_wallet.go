package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage local wallets",
}

var walletCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new wallet with a fresh secret phrase",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		name := "wallet"
		if len(args) > 0 {
			name = args[0]
		}

		pin, err := promptNewPIN()
		if err != nil {
			fatal(err)
		}

		w, phrase, err := a.wallet.Create(name, pin)
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Wallet created: %s\n", w.Address)
		fmt.Println("\nSecret phrase (write it down, it will not be shown again):")
		fmt.Printf("\n  %s\n\n", phrase)
		fmt.Println("Anyone with this phrase controls the wallet.")
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import [name]",
	Short: "Import a wallet from an existing secret phrase",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		name := "wallet"
		if len(args) > 0 {
			name = args[0]
		}

		phrase, err := promptSecret("Secret phrase: ")
		if err != nil {
			fatal(err)
		}
		pin, err := promptNewPIN()
		if err != nil {
			fatal(err)
		}

		w, err := a.wallet.Import(name, phrase, pin)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Wallet imported: %s\n", w.Address)
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all wallets",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		wallets, err := a.wallet.List()
		if err != nil {
			fatal(err)
		}
		if len(wallets) == 0 {
			fmt.Println("No wallets. Create one with 'clawvault wallet create'.")
			return
		}

		activeID := ""
		if active, _, err := a.wallet.Active(); err == nil {
			activeID = active.ID
		}

		for _, w := range wallets {
			marker := "  "
			if w.ID == activeID {
				marker = "* "
			}
			fmt.Printf("%s%s  %s  (%s)\n", marker, w.ID, w.Address, w.Name)
		}
	},
}

var walletSelectCmd = &cobra.Command{
	Use:   "select <wallet-id> [chain-id]",
	Short: "Make a wallet (and optionally a chain) active",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		chainID := a.cfg.Chains[0].ChainID
		if len(args) > 1 {
			parsed, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				fatal(fmt.Errorf("invalid chain ID: %s", args[1]))
			}
			chainID = parsed
		}

		if err := a.wallet.Select(args[0], chainID); err != nil {
			fatal(err)
		}
		fmt.Printf("Active wallet: %s on chain %d\n", args[0], chainID)
	},
}

var walletBackupCmd = &cobra.Command{
	Use:   "backup <wallet-id>",
	Short: "Reveal the secret phrase of a wallet (PIN required)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		pin, err := promptPIN()
		if err != nil {
			fatal(err)
		}

		phrase, err := a.wallet.Backup(args[0], pin)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("\n  %s\n\n", phrase)
	},
}

func init() {
	walletCmd.AddCommand(walletCreateCmd, walletImportCmd, walletListCmd, walletSelectCmd, walletBackupCmd)
	rootCmd.AddCommand(walletCmd)
}
