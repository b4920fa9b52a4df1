// Package scheduler keeps the local store in sync with the chain:
// balances and activity on fixed intervals, prices on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sipeed/clawvault/pkg/activity"
	"github.com/sipeed/clawvault/pkg/chain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/logger"
	"github.com/sipeed/clawvault/pkg/store"
)

// ChainSource is the read access the sync loops need.
type ChainSource interface {
	NativeBalance(ctx context.Context, chainID int64, address common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, chainID int64, token, wallet common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, chainID int64, token common.Address) (int32, error)
	BlockNumber(ctx context.Context, chainID int64) (uint64, error)
	FilterTransferLogs(ctx context.Context, chainID int64, token, wallet common.Address, fromBlock, toBlock uint64) ([]types.Log, error)
	Receipt(ctx context.Context, chainID int64, hash common.Hash) (*types.Receipt, bool, error)
}

// PriceSource resolves USD unit prices for asset symbols.
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Scheduler runs one sync loop per active wallet/chain pair. Starting a
// new pair stops the previous loop first, so a wallet or network switch
// is a restart.
type Scheduler struct {
	chain  ChainSource
	prices PriceSource
	store  *store.Store
	cfg    *config.Config

	balanceInterval  time.Duration
	activityInterval time.Duration
	priceCron        string
	freshnessWindow  time.Duration

	mu         sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastPrices map[string]float64
}

// New creates a scheduler. prices may be nil; the price lane is then
// skipped.
func New(cs ChainSource, ps PriceSource, st *store.Store, cfg *config.Config) *Scheduler {
	return &Scheduler{
		chain:            cs,
		prices:           ps,
		store:            st,
		cfg:              cfg,
		balanceInterval:  time.Duration(cfg.Sync.BalanceIntervalSeconds) * time.Second,
		activityInterval: time.Duration(cfg.Sync.ActivityIntervalSeconds) * time.Second,
		priceCron:        cfg.Sync.PriceCron,
		freshnessWindow:  time.Duration(cfg.Sync.FreshnessWindowSeconds) * time.Second,
		lastPrices:       make(map[string]float64),
	}
}

// Start begins syncing the given wallet/chain pair, replacing any
// previously running loop.
func (s *Scheduler) Start(walletID string, chainID int64, address common.Address) {
	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	logger.InfoCF("scheduler", "Sync started", map[string]any{
		"wallet": walletID,
		"chain":  chainID,
	})

	s.wg.Add(1)
	go s.run(ctx, walletID, chainID, address)
}

// SyncOnce runs a single balance/activity/price pass without starting a
// loop. One-shot CLI commands use it to show fresh data.
func (s *Scheduler) SyncOnce(ctx context.Context, walletID string, chainID int64, address common.Address) error {
	chainCfg, err := s.cfg.Chain(chainID)
	if err != nil {
		return err
	}
	s.syncPrices(ctx, chainCfg)
	s.syncBalances(ctx, walletID, chainCfg, address)
	s.syncActivity(ctx, walletID, chainCfg, address)
	return nil
}

// Stop cancels the running loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, walletID string, chainID int64, address common.Address) {
	defer s.wg.Done()

	chainCfg, err := s.cfg.Chain(chainID)
	if err != nil {
		logger.ErrorCF("scheduler", "Unknown chain, sync aborted", map[string]any{
			"chain": chainID,
		})
		return
	}

	// First pass immediately so the UI has data before the first tick.
	s.syncPrices(ctx, chainCfg)
	s.syncBalances(ctx, walletID, chainCfg, address)
	s.syncActivity(ctx, walletID, chainCfg, address)

	balances := time.NewTicker(s.balanceInterval)
	defer balances.Stop()
	activityTick := time.NewTicker(s.activityInterval)
	defer activityTick.Stop()
	priceTick := time.NewTicker(time.Minute)
	defer priceTick.Stop()

	gron := gronx.New()

	for {
		select {
		case <-ctx.Done():
			return
		case <-balances.C:
			s.syncBalances(ctx, walletID, chainCfg, address)
		case <-activityTick.C:
			s.syncActivity(ctx, walletID, chainCfg, address)
		case <-priceTick.C:
			if due, err := gron.IsDue(s.priceCron, time.Now()); err == nil && due {
				s.syncPrices(ctx, chainCfg)
			}
		}
	}
}

// shouldReplace decides whether a fresh poll result may overwrite the
// cached snapshot. An all-zero result does not clobber a non-degenerate
// snapshot that is still inside the freshness window; a zero balance
// shown to the user must mean zero, not "an endpoint hiccuped".
func shouldReplace(cached store.Snapshot, haveCached bool, fresh store.Snapshot, now time.Time, window time.Duration) bool {
	if !haveCached {
		return true
	}
	if !fresh.Degenerate() {
		return true
	}
	if cached.Degenerate() {
		return true
	}
	return now.Sub(cached.FetchedAt) > window
}

func (s *Scheduler) syncBalances(ctx context.Context, walletID string, chainCfg *config.EVMChain, address common.Address) {
	native, err := s.chain.NativeBalance(ctx, chainCfg.ChainID, address)
	if err != nil {
		s.logSyncSkip("balance", err)
		return
	}

	s.mu.Lock()
	prices := make(map[string]float64, len(s.lastPrices))
	for k, v := range s.lastPrices {
		prices[k] = v
	}
	s.mu.Unlock()

	assets := []store.Asset{{
		Symbol:       chainCfg.Currency,
		Name:         chainCfg.Currency,
		Balance:      chain.FormatUnits(native, chainCfg.NativeDecimals()),
		UnitPriceUsd: prices[chainCfg.Currency],
		IsNative:     true,
	}}

	for _, tok := range chainCfg.Tokens {
		bal, err := s.chain.TokenBalance(ctx, chainCfg.ChainID, common.HexToAddress(tok.Address), address)
		if err != nil {
			// A partial snapshot would show phantom zeros; keep the
			// cached one and retry next tick.
			s.logSyncSkip("balance", err)
			return
		}
		decimals := tok.Decimals
		if decimals <= 0 {
			// Not in the config; ask the contract.
			decimals, err = s.chain.TokenDecimals(ctx, chainCfg.ChainID, common.HexToAddress(tok.Address))
			if err != nil {
				s.logSyncSkip("balance", err)
				return
			}
		}
		assets = append(assets, store.Asset{
			Symbol:          tok.Symbol,
			Name:            tok.Name,
			Balance:         chain.FormatUnits(bal, decimals),
			ContractAddress: tok.Address,
			UnitPriceUsd:    prices[tok.Symbol],
		})
	}

	now := time.Now().UTC()
	fresh := store.Snapshot{Assets: assets, FetchedAt: now}
	cached, haveCached := s.store.Balances(walletID, chainCfg.ChainID)
	if !shouldReplace(cached, haveCached, fresh, now, s.freshnessWindow) {
		logger.DebugCF("scheduler", "Degenerate snapshot discarded, cached data is fresh", map[string]any{
			"wallet": walletID,
		})
		return
	}

	s.store.SetBalances(walletID, chainCfg.ChainID, assets, now)
}

func (s *Scheduler) syncActivity(ctx context.Context, walletID string, chainCfg *config.EVMChain, address common.Address) {
	head, err := s.chain.BlockNumber(ctx, chainCfg.ChainID)
	if err != nil {
		s.logSyncSkip("activity", err)
		return
	}

	var fromBlock uint64
	if lookback := chainCfg.LookbackBlocks; head > lookback {
		fromBlock = head - lookback
	}

	existing, err := s.store.Activity(walletID)
	if err != nil {
		logger.WarnCF("scheduler", "Failed to read local activity", map[string]any{
			"error": err.Error(),
		})
		return
	}
	settled := make(map[string]bool)
	for _, it := range existing {
		if it.Status != activity.StatusPending {
			if key, ok := activity.NormalizeHash(it.Hash); ok {
				settled[key] = true
			}
		}
	}

	now := time.Now().UTC()
	var events []activity.Item
	for _, tok := range chainCfg.Tokens {
		logs, err := s.chain.FilterTransferLogs(ctx, chainCfg.ChainID, common.HexToAddress(tok.Address), address, fromBlock, head)
		if err != nil {
			s.logSyncSkip("activity", err)
			return
		}
		for _, lg := range logs {
			if key, ok := activity.NormalizeHash(lg.TxHash.Hex()); ok && settled[key] {
				continue
			}
			item, ok := activity.FromTransferLog(lg, address, tok.Symbol, tok.Decimals, now)
			if !ok {
				continue
			}
			events = append(events, item)
		}
	}

	s.resolvePending(ctx, walletID, chainCfg.ChainID, existing)

	if len(events) == 0 {
		return
	}
	if err := s.store.ApplyChainEvents(walletID, events); err != nil {
		logger.WarnCF("scheduler", "Failed to apply chain events", map[string]any{
			"error": err.Error(),
		})
	}
}

// resolvePending settles local pending entries whose receipts have
// since landed, including operations that timed out at submission time.
func (s *Scheduler) resolvePending(ctx context.Context, walletID string, chainID int64, items []activity.Item) {
	for _, it := range items {
		if it.Status != activity.StatusPending {
			continue
		}
		key, ok := activity.NormalizeHash(it.Hash)
		if !ok {
			continue
		}
		receipt, found, err := s.chain.Receipt(ctx, chainID, common.HexToHash(key))
		if err != nil || !found {
			continue
		}
		status := activity.StatusSuccess
		if receipt.Status != types.ReceiptStatusSuccessful {
			status = activity.StatusFailed
		}
		if err := s.store.MarkActivity(walletID, it.Hash, status); err != nil {
			logger.WarnCF("scheduler", "Failed to settle pending activity", map[string]any{
				"hash":  it.Hash,
				"error": err.Error(),
			})
		}
	}
}

func (s *Scheduler) syncPrices(ctx context.Context, chainCfg *config.EVMChain) {
	if s.prices == nil {
		return
	}

	symbols := []string{chainCfg.Currency}
	for _, tok := range chainCfg.Tokens {
		symbols = append(symbols, tok.Symbol)
	}

	prices, err := s.prices.Prices(ctx, symbols)
	if err != nil {
		logger.DebugCF("scheduler", "Price refresh failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	s.mu.Lock()
	for sym, p := range prices {
		s.lastPrices[sym] = p
	}
	s.mu.Unlock()
}

func (s *Scheduler) logSyncSkip(lane string, err error) {
	fields := map[string]any{"lane": lane, "error": err.Error()}
	if errors.Is(err, chain.ErrUnavailable) {
		// Unknown is not zero: retry next tick with cached data intact.
		logger.DebugCF("scheduler", "Chain unavailable, keeping cached data", fields)
		return
	}
	logger.WarnCF("scheduler", "Sync pass failed", fields)
}
