package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/clawvault/pkg/chain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/executor"
	"github.com/sipeed/clawvault/pkg/referral"
	"github.com/sipeed/clawvault/pkg/scheduler"
	"github.com/sipeed/clawvault/pkg/sponsor"
	"github.com/sipeed/clawvault/pkg/store"
	"github.com/sipeed/clawvault/pkg/wallet"
)

const version = "0.1.0"

var (
	configPath string
	noSync     bool
)

var rootCmd = &cobra.Command{
	Use:     "clawvault",
	Short:   "Self-custodial wallet for ClawSwift and other EVM chains",
	Version: version,
}

// app holds the wired service graph behind every command.
type app struct {
	cfg      *config.Config
	store    *store.Store
	chain    *chain.Client
	sponsor  *sponsor.Client
	exec     *executor.Executor
	wallet   *wallet.Service
	referral *referral.Service
	sched    *scheduler.Scheduler
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".clawvault", "config.json")
}

func newApp() (*app, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	abis, err := chain.NewABIRegistry(workspace)
	if err != nil {
		return nil, err
	}

	cc := chain.NewClient(abis, cfg.Executor.EndpointRPS)
	for i := range cfg.Chains {
		if err := cc.AddChain(&cfg.Chains[i]); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(filepath.Join(workspace, "clawvault.db"))
	if err != nil {
		return nil, err
	}

	sp := sponsor.NewClient(cfg.Sponsor.URL, time.Duration(cfg.Sponsor.TimeoutSeconds)*time.Second)
	exec := executor.New(cc, sp, st, cfg, abis)

	return &app{
		cfg:      cfg,
		store:    st,
		chain:    cc,
		sponsor:  sp,
		exec:     exec,
		wallet:   wallet.NewService(cfg, st, cc, exec, abis),
		referral: referral.New(cc, exec, st, cfg, abis),
		sched:    scheduler.New(cc, nil, st, cfg),
	}, nil
}

func (a *app) Close() {
	a.sched.Stop()
	a.chain.Close()
	a.store.Close()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.clawvault/config.json)")
	rootCmd.PersistentFlags().BoolVar(&noSync, "no-sync", false, "skip chain sync and show cached data only")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
