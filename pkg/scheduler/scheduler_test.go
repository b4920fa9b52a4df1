package scheduler

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sipeed/clawvault/pkg/activity"
	"github.com/sipeed/clawvault/pkg/chain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/store"
)

type fakeChain struct {
	nativeBalance *big.Int
	nativeErr     error
	tokenBalances map[string]*big.Int
	tokenDecimals map[string]int32
	head          uint64
	logs          []types.Log
	receipts      map[common.Hash]*types.Receipt
}

func (f *fakeChain) NativeBalance(ctx context.Context, chainID int64, addr common.Address) (*big.Int, error) {
	if f.nativeErr != nil {
		return nil, f.nativeErr
	}
	return f.nativeBalance, nil
}

func (f *fakeChain) TokenBalance(ctx context.Context, chainID int64, token, wallet common.Address) (*big.Int, error) {
	bal, ok := f.tokenBalances[token.Hex()]
	if !ok {
		return big.NewInt(0), nil
	}
	return bal, nil
}

func (f *fakeChain) TokenDecimals(ctx context.Context, chainID int64, token common.Address) (int32, error) {
	if d, ok := f.tokenDecimals[token.Hex()]; ok {
		return d, nil
	}
	return 18, nil
}

func (f *fakeChain) BlockNumber(ctx context.Context, chainID int64) (uint64, error) {
	return f.head, nil
}

func (f *fakeChain) FilterTransferLogs(ctx context.Context, chainID int64, token, wallet common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeChain) Receipt(ctx context.Context, chainID int64, hash common.Hash) (*types.Receipt, bool, error) {
	r, ok := f.receipts[hash]
	return r, ok, nil
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestShouldReplace(t *testing.T) {
	now := time.Now()
	window := 5 * time.Minute
	funded := store.Snapshot{
		Assets:    []store.Asset{{Symbol: "CLAW", Balance: "5"}},
		FetchedAt: now.Add(-time.Minute),
	}
	zero := store.Snapshot{
		Assets:    []store.Asset{{Symbol: "CLAW", Balance: "0"}},
		FetchedAt: now,
	}
	stale := store.Snapshot{
		Assets:    []store.Asset{{Symbol: "CLAW", Balance: "5"}},
		FetchedAt: now.Add(-10 * time.Minute),
	}

	cases := []struct {
		name       string
		cached     store.Snapshot
		haveCached bool
		fresh      store.Snapshot
		want       bool
	}{
		{"no cache", store.Snapshot{}, false, zero, true},
		{"funded result always wins", zero, true, funded, true},
		{"zero result keeps fresh funded cache", funded, true, zero, false},
		{"zero result replaces zero cache", zero, true, zero, true},
		{"zero result replaces stale funded cache", stale, true, zero, true},
	}
	for _, tc := range cases {
		got := shouldReplace(tc.cached, tc.haveCached, tc.fresh, now, window)
		if got != tc.want {
			t.Errorf("%s: shouldReplace = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSyncBalancesWritesSnapshot(t *testing.T) {
	st := testStore(t)
	cfg := config.DefaultConfig()
	fc := &fakeChain{nativeBalance: big.NewInt(1_500_000_000_000_000_000)}
	s := New(fc, nil, st, cfg)
	addr := common.HexToAddress("0x1")

	chainCfg, _ := cfg.Chain(7441)
	s.syncBalances(context.Background(), "w1", chainCfg, addr)

	snap, ok := st.Balances("w1", 7441)
	if !ok {
		t.Fatal("expected snapshot after sync")
	}
	if len(snap.Assets) != 1 || snap.Assets[0].Balance != "1.5" {
		t.Errorf("snapshot = %+v", snap.Assets)
	}
	if !snap.Assets[0].IsNative {
		t.Error("native asset should be flagged")
	}
}

func TestSyncBalancesResolvesUnknownDecimals(t *testing.T) {
	st := testStore(t)
	cfg := config.DefaultConfig()
	tokenAddr := "0x00000000000000000000000000000000000000a1"
	cfg.Chains[0].Tokens = []config.Token{
		{Symbol: "USDT", Name: "Tether", Address: tokenAddr}, // decimals omitted
	}
	fc := &fakeChain{
		nativeBalance: big.NewInt(0),
		tokenBalances: map[string]*big.Int{common.HexToAddress(tokenAddr).Hex(): big.NewInt(1_500_000)},
		tokenDecimals: map[string]int32{common.HexToAddress(tokenAddr).Hex(): 6},
	}
	s := New(fc, nil, st, cfg)
	chainCfg, _ := cfg.Chain(7441)

	s.syncBalances(context.Background(), "w1", chainCfg, common.HexToAddress("0x1"))

	snap, ok := st.Balances("w1", 7441)
	if !ok {
		t.Fatal("expected snapshot after sync")
	}
	if len(snap.Assets) != 2 || snap.Assets[1].Balance != "1.5" {
		t.Errorf("token balance must use contract-reported decimals: %+v", snap.Assets)
	}
}

func TestSyncBalancesKeepsCacheWhenUnavailable(t *testing.T) {
	st := testStore(t)
	cfg := config.DefaultConfig()
	fc := &fakeChain{nativeBalance: big.NewInt(2_000_000_000_000_000_000)}
	s := New(fc, nil, st, cfg)
	addr := common.HexToAddress("0x1")
	chainCfg, _ := cfg.Chain(7441)

	s.syncBalances(context.Background(), "w1", chainCfg, addr)
	before, _ := st.Balances("w1", 7441)

	fc.nativeErr = chain.ErrUnavailable
	s.syncBalances(context.Background(), "w1", chainCfg, addr)

	after, ok := st.Balances("w1", 7441)
	if !ok {
		t.Fatal("cached snapshot must survive an unavailable poll")
	}
	if after.Assets[0].Balance != before.Assets[0].Balance {
		t.Errorf("balance changed across failed poll: %s -> %s", before.Assets[0].Balance, after.Assets[0].Balance)
	}
}

func TestZeroPollDoesNotClobberFreshSnapshot(t *testing.T) {
	st := testStore(t)
	cfg := config.DefaultConfig()
	fc := &fakeChain{nativeBalance: big.NewInt(3_000_000_000_000_000_000)}
	s := New(fc, nil, st, cfg)
	addr := common.HexToAddress("0x1")
	chainCfg, _ := cfg.Chain(7441)

	s.syncBalances(context.Background(), "w1", chainCfg, addr)

	fc.nativeBalance = big.NewInt(0)
	s.syncBalances(context.Background(), "w1", chainCfg, addr)

	snap, _ := st.Balances("w1", 7441)
	if snap.Assets[0].Balance != "3" {
		t.Errorf("all-zero poll overwrote fresh snapshot: %s", snap.Assets[0].Balance)
	}
}

func TestResolvePendingSettlesByReceipt(t *testing.T) {
	st := testStore(t)
	cfg := config.DefaultConfig()

	okHash := "0xaa" + "00000000000000000000000000000000000000000000000000000000000000"
	badHash := "0xbb" + "00000000000000000000000000000000000000000000000000000000000000"
	for _, h := range []string{okHash, badHash} {
		err := st.RecordPending("w1", activity.Item{
			ID:        "local-" + h[:4],
			Type:      activity.TypeSend,
			Asset:     "CLAW",
			Amount:    "1",
			Status:    activity.StatusPending,
			Hash:      h,
			Timestamp: time.Unix(1000, 0),
		})
		if err != nil {
			t.Fatalf("RecordPending failed: %v", err)
		}
	}

	fc := &fakeChain{receipts: map[common.Hash]*types.Receipt{
		common.HexToHash(okHash):  {Status: types.ReceiptStatusSuccessful},
		common.HexToHash(badHash): {Status: types.ReceiptStatusFailed},
	}}
	s := New(fc, nil, st, cfg)

	items, _ := st.Activity("w1")
	s.resolvePending(context.Background(), "w1", 7441, items)

	items, _ = st.Activity("w1")
	byHash := make(map[string]activity.Status)
	for _, it := range items {
		byHash[it.Hash] = it.Status
	}
	if byHash[okHash] != activity.StatusSuccess {
		t.Errorf("confirmed receipt should settle to success, got %s", byHash[okHash])
	}
	if byHash[badHash] != activity.StatusFailed {
		t.Errorf("failed receipt should settle to failed, got %s", byHash[badHash])
	}
}

func TestStartStopLifecycle(t *testing.T) {
	st := testStore(t)
	cfg := config.DefaultConfig()
	fc := &fakeChain{nativeBalance: big.NewInt(1_000_000_000_000_000_000)}
	s := New(fc, nil, st, cfg)
	s.balanceInterval = 10 * time.Millisecond
	s.activityInterval = 10 * time.Millisecond

	s.Start("w1", 7441, common.HexToAddress("0x1"))
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if _, ok := st.Balances("w1", 7441); !ok {
		t.Error("running loop should have produced a snapshot")
	}

	// Restart with a different wallet replaces the loop.
	s.Start("w2", 7441, common.HexToAddress("0x2"))
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if _, ok := st.Balances("w2", 7441); !ok {
		t.Error("restarted loop should sync the new wallet")
	}
}

type staticPrices struct {
	prices map[string]float64
}

func (p *staticPrices) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if p.prices == nil {
		return nil, errors.New("no prices")
	}
	return p.prices, nil
}

func TestPricesFlowIntoSnapshots(t *testing.T) {
	st := testStore(t)
	cfg := config.DefaultConfig()
	fc := &fakeChain{nativeBalance: big.NewInt(1_000_000_000_000_000_000)}
	ps := &staticPrices{prices: map[string]float64{"CLAW": 0.42}}
	s := New(fc, ps, st, cfg)
	addr := common.HexToAddress("0x1")
	chainCfg, _ := cfg.Chain(7441)

	s.syncPrices(context.Background(), chainCfg)
	s.syncBalances(context.Background(), "w1", chainCfg, addr)

	snap, _ := st.Balances("w1", 7441)
	if snap.Assets[0].UnitPriceUsd != 0.42 {
		t.Errorf("unit price = %v, want 0.42", snap.Assets[0].UnitPriceUsd)
	}
}
