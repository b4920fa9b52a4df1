package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var abiCmd = &cobra.Command{
	Use:   "abi",
	Short: "Manage contract ABIs",
}

var abiListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered ABIs",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		names := a.chain.ABIs().List()
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

var abiUploadCmd = &cobra.Command{
	Use:   "upload <name> <file>",
	Short: "Register a contract ABI from a JSON file",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		data, err := os.ReadFile(args[1])
		if err != nil {
			fatal(err)
		}
		if err := a.chain.ABIs().Upload(args[0], string(data)); err != nil {
			fatal(err)
		}
		fmt.Printf("ABI %s registered\n", args[0])
	},
}

func init() {
	abiCmd.AddCommand(abiListCmd, abiUploadCmd)
	rootCmd.AddCommand(abiCmd)
}
