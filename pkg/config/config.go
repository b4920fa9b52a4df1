package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is the full clawvault configuration, loaded from
// ~/.clawvault/config.json with CLAWVAULT_* environment overrides.
type Config struct {
	Workspace string         `json:"workspace" env:"CLAWVAULT_WORKSPACE"`
	Chains    []EVMChain     `json:"chains"`
	Sponsor   SponsorConfig  `json:"sponsor"`
	Sync      SyncConfig     `json:"sync"`
	Swap      SwapConfig     `json:"swap"`
	Referral  ReferralConfig `json:"referral"`
	Executor  ExecutorConfig `json:"executor"`
}

// EVMChain describes one chain the wallet can operate on. RPCs is an
// ordered fallback list: reads hit the first endpoint and rotate on
// network failure.
type EVMChain struct {
	Name           string   `json:"name"`
	ChainID        int64    `json:"chain_id"`
	RPCs           []string `json:"rpcs"`
	Explorer       string   `json:"explorer"`
	Currency       string   `json:"currency"`
	Decimals       int32    `json:"decimals"`
	Tokens         []Token  `json:"tokens"`
	Router         string   `json:"router"`
	Referral       string   `json:"referral"`
	BatchRouter    string   `json:"batch_router"`
	LookbackBlocks uint64   `json:"lookback_blocks"`
}

// Token describes an ERC-20 asset tracked on a chain.
type Token struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
}

// SponsorConfig points at the gas sponsor endpoint.
type SponsorConfig struct {
	URL            string `json:"url" env:"CLAWVAULT_SPONSOR_URL"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"CLAWVAULT_SPONSOR_TIMEOUT_SECONDS"`
}

// SyncConfig controls the balance/activity/price polling loops.
type SyncConfig struct {
	BalanceIntervalSeconds  int    `json:"balance_interval_seconds" env:"CLAWVAULT_SYNC_BALANCE_INTERVAL_SECONDS"`
	ActivityIntervalSeconds int    `json:"activity_interval_seconds" env:"CLAWVAULT_SYNC_ACTIVITY_INTERVAL_SECONDS"`
	PriceCron               string `json:"price_cron" env:"CLAWVAULT_SYNC_PRICE_CRON"`
	FreshnessWindowSeconds  int    `json:"freshness_window_seconds" env:"CLAWVAULT_SYNC_FRESHNESS_WINDOW_SECONDS"`
}

// SwapConfig controls swap protection parameters.
type SwapConfig struct {
	SlippageBps     int64 `json:"slippage_bps" env:"CLAWVAULT_SWAP_SLIPPAGE_BPS"`
	DeadlineSeconds int64 `json:"deadline_seconds" env:"CLAWVAULT_SWAP_DEADLINE_SECONDS"`
}

// ReferralConfig describes the referral rewards program.
type ReferralConfig struct {
	// RewardToken is the symbol of the asset rewards accrue in. Empty
	// means the chain's native currency.
	RewardToken string `json:"reward_token" env:"CLAWVAULT_REFERRAL_REWARD_TOKEN"`
	// ClaimThreshold is the minimum reward balance, in whole units,
	// required before a claim is allowed.
	ClaimThreshold int64 `json:"claim_threshold" env:"CLAWVAULT_REFERRAL_CLAIM_THRESHOLD"`
}

// ExecutorConfig controls submission and confirmation behaviour.
type ExecutorConfig struct {
	ReceiptIntervalSeconds int `json:"receipt_interval_seconds" env:"CLAWVAULT_EXECUTOR_RECEIPT_INTERVAL_SECONDS"`
	ConfirmTimeoutSeconds  int `json:"confirm_timeout_seconds" env:"CLAWVAULT_EXECUTOR_CONFIRM_TIMEOUT_SECONDS"`
	EndpointRPS            int `json:"endpoint_rps" env:"CLAWVAULT_EXECUTOR_ENDPOINT_RPS"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Workspace: "~/.clawvault/workspace",
		Chains: []EVMChain{
			{
				Name:           "ClawSwift",
				ChainID:        7441,
				RPCs:           []string{"https://exp.clawswift.net/rpc"},
				Explorer:       "https://exp.clawswift.net",
				Currency:       "CLAW",
				Decimals:       18,
				LookbackBlocks: 5000,
			},
		},
		Sponsor: SponsorConfig{
			TimeoutSeconds: 10,
		},
		Sync: SyncConfig{
			BalanceIntervalSeconds:  30,
			ActivityIntervalSeconds: 30,
			PriceCron:               "* * * * *",
			FreshnessWindowSeconds:  300,
		},
		Swap: SwapConfig{
			SlippageBps:     100,
			DeadlineSeconds: 600,
		},
		Referral: ReferralConfig{
			ClaimThreshold: 200,
		},
		Executor: ExecutorConfig{
			ReceiptIntervalSeconds: 5,
			ConfirmTimeoutSeconds:  180,
			EndpointRPS:            10,
		},
	}
}

// LoadConfig reads the config file at path, falling back to defaults when
// the file does not exist, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories as needed.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// WorkspacePath returns the expanded workspace directory.
func (c *Config) WorkspacePath() string {
	return expandHome(c.Workspace)
}

// Chain returns the chain config for the given chain ID.
func (c *Config) Chain(chainID int64) (*EVMChain, error) {
	for i := range c.Chains {
		if c.Chains[i].ChainID == chainID {
			return &c.Chains[i], nil
		}
	}
	return nil, fmt.Errorf("chain %d not configured", chainID)
}

// TokenBySymbol returns the token config for symbol on this chain.
func (ch *EVMChain) TokenBySymbol(symbol string) (*Token, bool) {
	for i := range ch.Tokens {
		if ch.Tokens[i].Symbol == symbol {
			return &ch.Tokens[i], true
		}
	}
	return nil, false
}

// NativeDecimals returns the chain's native currency decimals, defaulting
// to 18 when unset.
func (ch *EVMChain) NativeDecimals() int32 {
	if ch.Decimals == 0 {
		return 18
	}
	return ch.Decimals
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
