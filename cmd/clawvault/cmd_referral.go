package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var referralCmd = &cobra.Command{
	Use:   "referral",
	Short: "Referral program: bind, claim, status",
}

var referralBindCmd = &cobra.Command{
	Use:   "bind <referrer-address>",
	Short: "Bind the active wallet to a referrer (permanent)",
	Args:  cobra.ExactArgs(1),
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

		pin, err := promptPIN()
		if err != nil {
			fatal(err)
		}
		signer, release, err := a.wallet.Signer(pin)
		if err != nil {
			fatal(err)
		}
		defer release()

		res, err := a.referral.Bind(context.Background(), chainCfg.ChainID, w.ID, args[0], signer)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Bound to %s: %s\n", args[0], res.Hash.Hex())
	},
}

var referralClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the referral reward",
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

		pin, err := promptPIN()
		if err != nil {
			fatal(err)
		}
		signer, release, err := a.wallet.Signer(pin)
		if err != nil {
			fatal(err)
		}
		defer release()

		res, err := a.referral.Claim(context.Background(), chainCfg.ChainID, w.ID, signer)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Reward claimed: %s\n", res.Hash.Hex())
	},
}

var referralStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active wallet's referral summary",
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

		rec, err := a.referral.Summary(context.Background(), chainCfg.ChainID, w.ID, common.HexToAddress(w.Address))
		if err != nil {
			// Fall back to the cached record when the chain is unreachable.
			cached, cErr := a.referral.Cached(w.ID)
			if cErr != nil || cached == nil {
				fatal(err)
			}
			fmt.Printf("(cached at %s)\n", cached.UpdatedAt.Local().Format("2006-01-02 15:04"))
			rec = cached
		}

		referrer := rec.Referrer
		if referrer == "" {
			referrer = "none"
		}
		fmt.Printf("Referrer:          %s\n", referrer)
		fmt.Printf("Invites:           %d\n", rec.InviteCount)
		fmt.Printf("Rewards earned:    %s\n", rec.TotalRewards)
		fmt.Printf("Commissions:       %s\n", rec.TotalCommissions)
		fmt.Printf("Reward claimed:    %v\n", rec.IsClaimed)
		for _, inv := range rec.Invitees {
			fmt.Printf("  invited %s on %s\n", inv.Wallet, inv.BindTime.Local().Format("2006-01-02"))
		}
	},
}

func init() {
	referralCmd.AddCommand(referralBindCmd, referralClaimCmd, referralStatusCmd)
	rootCmd.AddCommand(referralCmd)
}
