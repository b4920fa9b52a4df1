package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ergochat/readline"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console with background syncing",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := runConsole(a); err != nil {
			fatal(err)
		}
	},
}

func runConsole(a *app) error {
	// Background sync runs for the console's lifetime; a.Close stops it.
	if w, chainCfg, err := a.wallet.Active(); err == nil {
		if !noSync {
			a.sched.Start(w.ID, chainCfg.ChainID, common.HexToAddress(w.Address))
		}
	} else {
		fmt.Println("No wallet selected. Create or import one first.")
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt: "clawvault> ",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("Type 'help' for commands, 'exit' to quit.")

	for {
		line, err := rl.ReadLine()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			return nil
		case "help":
			consoleHelp()
		case "balance":
			snap, err := a.wallet.Balances()
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			printBalances(snap)
		case "activity":
			items, err := a.wallet.Activity()
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			printActivity(items)
		case "receive":
			w, _, err := a.wallet.Active()
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			fmt.Println(w.Address)
		case "send":
			if len(fields) != 4 {
				fmt.Println("usage: send <symbol> <to> <amount>")
				continue
			}
			consoleSend(a, fields[1], fields[2], fields[3])
		case "swap":
			if len(fields) != 4 {
				fmt.Println("usage: swap <from-symbol> <to-symbol> <amount>")
				continue
			}
			consoleSwap(a, fields[1], fields[2], fields[3])
		default:
			fmt.Printf("Unknown command: %s (try 'help')\n", fields[0])
		}
	}
}

func consoleHelp() {
	fmt.Println(`Commands:
  balance                          show balances
  activity                         show activity feed
  receive                          show address
  send <symbol> <to> <amount>      send native currency or a token
  swap <from> <to> <amount>        swap tokens
  exit                             quit`)
}

func consoleSend(a *app, symbol, to, amount string) {
	pin, err := promptPIN()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	res, err := a.wallet.Send(context.Background(), pin, symbol, to, amount)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Confirmed: %s\n", res.Hash.Hex())
}

func consoleSwap(a *app, from, to, amount string) {
	pin, err := promptPIN()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	res, err := a.wallet.Swap(context.Background(), pin, from, to, amount)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Confirmed: %s\n", res.Hash.Hex())
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
