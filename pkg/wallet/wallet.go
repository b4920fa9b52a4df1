// Package wallet orchestrates the whole client: wallet lifecycle,
// phrase custody, and the send/swap operations that flow through the
// executor. The raw secret phrase exists in memory only inside
// derivation and backup calls.
package wallet

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/sipeed/clawvault/pkg/activity"
	"github.com/sipeed/clawvault/pkg/chain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/executor"
	"github.com/sipeed/clawvault/pkg/keys"
	"github.com/sipeed/clawvault/pkg/logger"
	"github.com/sipeed/clawvault/pkg/store"
)

// Runner executes wallet operations.
type Runner interface {
	Execute(ctx context.Context, op executor.Operation, signer executor.Signer) (*executor.Result, error)
}

// ChainReader is the read-only chain access used for swap quotes and
// allowance checks.
type ChainReader interface {
	CallView(ctx context.Context, chainID int64, contract common.Address, abiName, method string, args ...interface{}) ([]interface{}, error)
	Allowance(ctx context.Context, chainID int64, token, owner, spender common.Address) (*big.Int, error)
}

// Service wires the store, chain client, and executor into the
// user-facing wallet operations.
type Service struct {
	cfg       *config.Config
	store     *store.Store
	reader    ChainReader
	runner    Runner
	abis      *chain.ABIRegistry
	walletDir string
}

// NewService creates the wallet service.
func NewService(cfg *config.Config, st *store.Store, reader ChainReader, runner Runner, abis *chain.ABIRegistry) *Service {
	return &Service{
		cfg:       cfg,
		store:     st,
		reader:    reader,
		runner:    runner,
		abis:      abis,
		walletDir: filepath.Join(cfg.WorkspacePath(), "wallets"),
	}
}

// Create generates a fresh wallet: new 12-word phrase, PIN-encrypted
// phrase file, derived address. The phrase is returned exactly once so
// the user can write it down; afterwards it is only reachable through
// Backup.
func (s *Service) Create(name, pin string) (*store.Wallet, string, error) {
	if err := CheckPIN(pin); err != nil {
		return nil, "", err
	}

	phrase, err := keys.NewPhrase(12)
	if err != nil {
		return nil, "", err
	}

	w, err := s.register(name, phrase, pin)
	if err != nil {
		return nil, "", err
	}
	return w, phrase, nil
}

// Import registers a wallet from an existing secret phrase.
func (s *Service) Import(name, phrase, pin string) (*store.Wallet, error) {
	if err := CheckPIN(pin); err != nil {
		return nil, err
	}
	return s.register(name, phrase, pin)
}

func (s *Service) register(name, phrase, pin string) (*store.Wallet, error) {
	derived, err := keys.Derive(phrase, keys.DefaultPath)
	if err != nil {
		return nil, err
	}
	address := derived.Address
	derived.Zero()

	id := uuid.New().String()
	phrasePath := filepath.Join(s.walletDir, id+".phrase")
	if err := sealPhrase(phrasePath, keys.Normalize(phrase), pin); err != nil {
		return nil, fmt.Errorf("failed to store phrase: %w", err)
	}

	w := store.Wallet{
		ID:         id,
		Name:       name,
		Address:    address.Hex(),
		PhraseFile: phrasePath,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.AddWallet(w); err != nil {
		return nil, err
	}

	// The first wallet becomes active automatically, on the first
	// configured chain.
	if _, _, selected, err := s.store.Selected(); err == nil && !selected && len(s.cfg.Chains) > 0 {
		if err := s.store.SelectWallet(w.ID, s.cfg.Chains[0].ChainID); err != nil {
			logger.WarnCF("wallet", "Failed to select new wallet", map[string]any{
				"wallet": w.ID,
				"error":  err.Error(),
			})
		}
	}

	logger.InfoCF("wallet", "Wallet registered", map[string]any{
		"wallet":  w.ID,
		"address": w.Address,
	})
	return &w, nil
}

// List returns all registered wallets.
func (s *Service) List() ([]store.Wallet, error) {
	return s.store.Wallets()
}

// Backup reveals the secret phrase of a wallet. PIN-gated; this is the
// only read path for a stored phrase.
func (s *Service) Backup(walletID, pin string) (string, error) {
	if err := CheckPIN(pin); err != nil {
		return "", err
	}

	w, err := s.store.WalletByID(walletID)
	if err != nil {
		return "", err
	}
	if w == nil {
		return "", ErrWalletNotFound
	}

	return openPhrase(w.PhraseFile, pin)
}

// Select makes a wallet/chain pair active.
func (s *Service) Select(walletID string, chainID int64) error {
	w, err := s.store.WalletByID(walletID)
	if err != nil {
		return err
	}
	if w == nil {
		return ErrWalletNotFound
	}
	if _, err := s.cfg.Chain(chainID); err != nil {
		return err
	}
	return s.store.SelectWallet(walletID, chainID)
}

// Active returns the selected wallet and chain.
func (s *Service) Active() (*store.Wallet, *config.EVMChain, error) {
	walletID, chainID, ok, err := s.store.Selected()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNoWalletSelected
	}

	w, err := s.store.WalletByID(walletID)
	if err != nil {
		return nil, nil, err
	}
	if w == nil {
		return nil, nil, ErrWalletNotFound
	}

	chainCfg, err := s.cfg.Chain(chainID)
	if err != nil {
		return nil, nil, err
	}
	return w, chainCfg, nil
}

// Balances returns the cached balance snapshot for the active wallet.
func (s *Service) Balances() (store.Snapshot, error) {
	w, chainCfg, err := s.Active()
	if err != nil {
		return store.Snapshot{}, err
	}
	snap, _ := s.store.Balances(w.ID, chainCfg.ChainID)
	return snap, nil
}

// Activity returns the active wallet's feed, newest first.
func (s *Service) Activity() ([]activity.Item, error) {
	w, _, err := s.Active()
	if err != nil {
		return nil, err
	}
	return s.store.Activity(w.ID)
}

func (s *Service) signerFor(w *store.Wallet, pin string) (*opSigner, error) {
	if err := CheckPIN(pin); err != nil {
		return nil, err
	}

	phrase, err := openPhrase(w.PhraseFile, pin)
	if err != nil {
		return nil, err
	}

	derived, err := keys.Derive(phrase, keys.DefaultPath)
	if err != nil {
		return nil, err
	}
	return &opSigner{derived: derived}, nil
}

// Signer returns a signer for the active wallet and a release function
// that wipes the key. Callers must invoke release when done.
func (s *Service) Signer(pin string) (executor.Signer, func(), error) {
	w, _, err := s.Active()
	if err != nil {
		return nil, nil, err
	}
	signer, err := s.signerFor(w, pin)
	if err != nil {
		return nil, nil, err
	}
	return signer, signer.Close, nil
}

// Send transfers the native currency or a configured token from the
// active wallet.
func (s *Service) Send(ctx context.Context, pin, symbol, to, amount string) (*executor.Result, error) {
	w, chainCfg, err := s.Active()
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("invalid recipient address: %s", to)
	}
	toAddr := common.HexToAddress(to)

	var op executor.Operation
	switch {
	case symbol == chainCfg.Currency:
		value, err := chain.ParseUnits(amount, chainCfg.NativeDecimals())
		if err != nil {
			return nil, err
		}
		op = executor.BuildNativeTransfer(w.ID, chainCfg, toAddr, value)
	default:
		tok, ok := chainCfg.TokenBySymbol(symbol)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
		}
		value, err := chain.ParseUnits(amount, tok.Decimals)
		if err != nil {
			return nil, err
		}
		op = executor.BuildTokenTransfer(w.ID, chainCfg, *tok, toAddr, value, s.haveAllowance(ctx, chainCfg, tok, w.Address, value))
	}

	signer, err := s.signerFor(w, pin)
	if err != nil {
		return nil, err
	}
	defer signer.Close()

	return s.runner.Execute(ctx, op, signer)
}

// haveAllowance reports whether the batch router can already spend
// amount of the token. A failed lookup counts as no allowance; the
// redundant approve is harmless.
func (s *Service) haveAllowance(ctx context.Context, chainCfg *config.EVMChain, token *config.Token, owner string, amount *big.Int) bool {
	if s.reader == nil || chainCfg.BatchRouter == "" {
		return false
	}
	current, err := s.reader.Allowance(ctx, chainCfg.ChainID,
		common.HexToAddress(token.Address),
		common.HexToAddress(owner),
		common.HexToAddress(chainCfg.BatchRouter))
	if err != nil {
		return false
	}
	return current.Cmp(amount) >= 0
}

// Swap exchanges one configured token for another through the chain's
// router. Approval and swap land in one atomic batch; the output is
// protected by the configured slippage tolerance.
func (s *Service) Swap(ctx context.Context, pin, fromSymbol, toSymbol, amount string) (*executor.Result, error) {
	w, chainCfg, err := s.Active()
	if err != nil {
		return nil, err
	}

	tokenIn, ok := chainCfg.TokenBySymbol(fromSymbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, fromSymbol)
	}
	tokenOut, ok := chainCfg.TokenBySymbol(toSymbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, toSymbol)
	}

	amountIn, err := chain.ParseUnits(amount, tokenIn.Decimals)
	if err != nil {
		return nil, err
	}

	expectedOut, err := s.quoteOut(ctx, chainCfg, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to quote swap: %w", err)
	}

	signer, err := s.signerFor(w, pin)
	if err != nil {
		return nil, err
	}
	defer signer.Close()

	op, err := executor.BuildSwap(
		w.ID, chainCfg, s.abis,
		*tokenIn, *tokenOut,
		signer.Address(),
		amountIn, expectedOut,
		s.cfg.Swap.SlippageBps,
		time.Duration(s.cfg.Swap.DeadlineSeconds)*time.Second,
	)
	if err != nil {
		return nil, err
	}

	return s.runner.Execute(ctx, op, signer)
}

func (s *Service) quoteOut(ctx context.Context, chainCfg *config.EVMChain, tokenIn, tokenOut *config.Token, amountIn *big.Int) (*big.Int, error) {
	if chainCfg.Router == "" {
		return nil, fmt.Errorf("chain %s has no swap router configured", chainCfg.Name)
	}

	path := []common.Address{
		common.HexToAddress(tokenIn.Address),
		common.HexToAddress(tokenOut.Address),
	}
	vals, err := s.reader.CallView(ctx, chainCfg.ChainID, common.HexToAddress(chainCfg.Router), chain.ABIRouter, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}

	if len(vals) == 0 {
		return nil, fmt.Errorf("empty getAmountsOut result")
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("unexpected getAmountsOut result type %T", vals[0])
	}
	return amounts[len(amounts)-1], nil
}
