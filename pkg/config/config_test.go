package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Chains) == 0 {
		t.Fatal("default config must ship at least one chain")
	}
	if cfg.Chains[0].ChainID != 7441 {
		t.Errorf("default chain ID = %d, want 7441", cfg.Chains[0].ChainID)
	}
	if cfg.Sync.BalanceIntervalSeconds != 30 {
		t.Errorf("balance interval = %d, want 30", cfg.Sync.BalanceIntervalSeconds)
	}
	if cfg.Swap.SlippageBps != 100 {
		t.Errorf("slippage = %d bps, want 100", cfg.Swap.SlippageBps)
	}
	if cfg.Referral.ClaimThreshold != 200 {
		t.Errorf("claim threshold = %d, want 200", cfg.Referral.ClaimThreshold)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Workspace = "/tmp/clawvault-test"
	cfg.Chains[0].Router = "0x00000000000000000000000000000000000000cc"
	cfg.Sponsor.URL = "https://sponsor.example.com"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Workspace != cfg.Workspace {
		t.Errorf("workspace = %s, want %s", loaded.Workspace, cfg.Workspace)
	}
	if loaded.Chains[0].Router != cfg.Chains[0].Router {
		t.Errorf("router = %s, want %s", loaded.Chains[0].Router, cfg.Chains[0].Router)
	}
	if loaded.Sponsor.URL != cfg.Sponsor.URL {
		t.Errorf("sponsor URL = %s, want %s", loaded.Sponsor.URL, cfg.Sponsor.URL)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Chains[0].ChainID != 7441 {
		t.Errorf("missing file should fall back to defaults")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLAWVAULT_SPONSOR_URL", "https://override.example.com")
	t.Setenv("CLAWVAULT_SWAP_SLIPPAGE_BPS", "50")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Sponsor.URL != "https://override.example.com" {
		t.Errorf("sponsor URL override not applied: %s", cfg.Sponsor.URL)
	}
	if cfg.Swap.SlippageBps != 50 {
		t.Errorf("slippage override not applied: %d", cfg.Swap.SlippageBps)
	}
}

func TestChainLookup(t *testing.T) {
	cfg := DefaultConfig()

	ch, err := cfg.Chain(7441)
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	if ch.Name != "ClawSwift" {
		t.Errorf("chain name = %s", ch.Name)
	}

	if _, err := cfg.Chain(9999); err == nil {
		t.Error("unknown chain should error")
	}
}

func TestTokenBySymbol(t *testing.T) {
	ch := &EVMChain{
		Tokens: []Token{
			{Symbol: "USDT", Address: "0x1", Decimals: 6},
		},
	}

	tok, ok := ch.TokenBySymbol("USDT")
	if !ok || tok.Decimals != 6 {
		t.Errorf("TokenBySymbol(USDT) = %+v, %v", tok, ok)
	}
	if _, ok := ch.TokenBySymbol("DOGE"); ok {
		t.Error("unknown symbol should not resolve")
	}
}

func TestNativeDecimals(t *testing.T) {
	if (&EVMChain{}).NativeDecimals() != 18 {
		t.Error("unset decimals should default to 18")
	}
	if (&EVMChain{Decimals: 6}).NativeDecimals() != 6 {
		t.Error("explicit decimals should be honored")
	}
}
