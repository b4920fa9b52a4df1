// Package referral drives the on-chain referral program: binding a
// wallet to a referrer, claiming the signup reward once the threshold is
// reached, and summarizing accrued earnings.
package referral

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sipeed/clawvault/pkg/chain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/executor"
	"github.com/sipeed/clawvault/pkg/logger"
	"github.com/sipeed/clawvault/pkg/store"
)

// ChainReader is the read-only chain access the service needs.
type ChainReader interface {
	CallView(ctx context.Context, chainID int64, contract common.Address, abiName, method string, args ...interface{}) ([]interface{}, error)
}

// Runner executes wallet operations.
type Runner interface {
	Execute(ctx context.Context, op executor.Operation, signer executor.Signer) (*executor.Result, error)
}

// Service implements bind, claim, and summary against the per-chain
// referral contract.
type Service struct {
	reader ChainReader
	runner Runner
	store  *store.Store
	cfg    *config.Config
	abis   *chain.ABIRegistry
}

// New creates a referral service.
func New(reader ChainReader, runner Runner, st *store.Store, cfg *config.Config, abis *chain.ABIRegistry) *Service {
	return &Service{reader: reader, runner: runner, store: st, cfg: cfg, abis: abis}
}

func (s *Service) contract(chainID int64) (common.Address, *config.EVMChain, error) {
	chainCfg, err := s.cfg.Chain(chainID)
	if err != nil {
		return common.Address{}, nil, err
	}
	if chainCfg.Referral == "" {
		return common.Address{}, nil, ErrNoReferralContract
	}
	return common.HexToAddress(chainCfg.Referral), chainCfg, nil
}

// validReferrer rejects malformed, zero, and self addresses without
// touching the network.
func validReferrer(referrer string, self common.Address) (common.Address, error) {
	if !common.IsHexAddress(referrer) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrInvalidReferrer, referrer)
	}
	addr := common.HexToAddress(referrer)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidReferrer)
	}
	if addr == self {
		return common.Address{}, fmt.Errorf("%w: cannot refer yourself", ErrInvalidReferrer)
	}
	return addr, nil
}

// Bind binds the wallet to a referrer. The binding is permanent: a
// wallet that already has a referrer cannot be rebound.
func (s *Service) Bind(ctx context.Context, chainID int64, walletID, referrer string, signer executor.Signer) (*executor.Result, error) {
	sender := signer.Address()

	referrerAddr, err := validReferrer(referrer, sender)
	if err != nil {
		return nil, err
	}

	contract, _, err := s.contract(chainID)
	if err != nil {
		return nil, err
	}

	current, err := s.referrerOf(ctx, chainID, contract, sender)
	if err != nil {
		return nil, err
	}
	if current != (common.Address{}) {
		return nil, fmt.Errorf("%w: bound to %s", ErrAlreadyBound, current.Hex())
	}

	refABI, err := s.abis.Get(chain.ABIReferral)
	if err != nil {
		return nil, err
	}
	data, err := refABI.Pack("bindReferrer", referrerAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to pack bindReferrer: %w", err)
	}

	logger.InfoCF("referral", "Binding referrer", map[string]any{
		"wallet":   sender.Hex(),
		"referrer": referrerAddr.Hex(),
	})

	op := executor.BuildContractCall(walletID, chainID, contract, nil, data, "referral-bind")
	return s.runner.Execute(ctx, op, signer)
}

// Claim claims the signup reward. Accrued rewards must meet the
// configured threshold; a balance exactly at the threshold qualifies.
func (s *Service) Claim(ctx context.Context, chainID int64, walletID string, signer executor.Signer) (*executor.Result, error) {
	sender := signer.Address()

	contract, chainCfg, err := s.contract(chainID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.rewardClaimed(ctx, chainID, contract, sender)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}

	earned, err := s.viewBig(ctx, chainID, contract, "totalRewardsEarned", sender)
	if err != nil {
		return nil, err
	}

	threshold := s.claimThreshold(chainCfg)
	if earned.Cmp(threshold) < 0 {
		decimals := s.rewardDecimals(chainCfg)
		return nil, fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientBalance,
			chain.FormatUnits(earned, decimals),
			chain.FormatUnits(threshold, decimals))
	}

	refABI, err := s.abis.Get(chain.ABIReferral)
	if err != nil {
		return nil, err
	}
	data, err := refABI.Pack("claimReward")
	if err != nil {
		return nil, fmt.Errorf("failed to pack claimReward: %w", err)
	}

	logger.InfoCF("referral", "Claiming reward", map[string]any{
		"wallet": sender.Hex(),
		"earned": earned.String(),
	})

	op := executor.BuildContractCall(walletID, chainID, contract, nil, data, "referral-claim")
	return s.runner.Execute(ctx, op, signer)
}

// Summary reads the wallet's referral state from the contract and
// refreshes the local cache.
func (s *Service) Summary(ctx context.Context, chainID int64, walletID string, wallet common.Address) (*store.ReferralRecord, error) {
	contract, chainCfg, err := s.contract(chainID)
	if err != nil {
		return nil, err
	}

	rec := &store.ReferralRecord{}
	decimals := s.rewardDecimals(chainCfg)

	referrer, err := s.referrerOf(ctx, chainID, contract, wallet)
	if err != nil {
		return nil, err
	}
	if referrer != (common.Address{}) {
		rec.Referrer = referrer.Hex()
	}

	count, err := s.viewBig(ctx, chainID, contract, "getInviteCount", wallet)
	if err != nil {
		return nil, err
	}
	rec.InviteCount = count.Uint64()

	rewards, err := s.viewBig(ctx, chainID, contract, "totalRewardsEarned", wallet)
	if err != nil {
		return nil, err
	}
	rec.TotalRewards = chain.FormatUnits(rewards, decimals)

	commissions, err := s.viewBig(ctx, chainID, contract, "totalCommissionsEarned", wallet)
	if err != nil {
		return nil, err
	}
	rec.TotalCommissions = chain.FormatUnits(commissions, decimals)

	claimed, err := s.rewardClaimed(ctx, chainID, contract, wallet)
	if err != nil {
		return nil, err
	}
	rec.IsClaimed = claimed

	invitees, err := s.invitees(ctx, chainID, contract, wallet)
	if err == nil {
		rec.Invitees = invitees
	}

	if s.store != nil {
		if err := s.store.PutReferral(walletID, *rec); err != nil {
			logger.WarnCF("referral", "Failed to cache referral record", map[string]any{
				"wallet": walletID,
				"error":  err.Error(),
			})
		}
	}

	return rec, nil
}

// Cached returns the locally cached referral record without touching the
// network.
func (s *Service) Cached(walletID string) (*store.ReferralRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Referral(walletID)
}

func (s *Service) claimThreshold(chainCfg *config.EVMChain) *big.Int {
	units := big.NewInt(s.cfg.Referral.ClaimThreshold)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.rewardDecimals(chainCfg))), nil)
	return units.Mul(units, scale)
}

func (s *Service) rewardDecimals(chainCfg *config.EVMChain) int32 {
	if tok, ok := chainCfg.TokenBySymbol(s.cfg.Referral.RewardToken); ok {
		return tok.Decimals
	}
	return 18
}

func (s *Service) referrerOf(ctx context.Context, chainID int64, contract, wallet common.Address) (common.Address, error) {
	vals, err := s.reader.CallView(ctx, chainID, contract, chain.ABIReferral, "getReferrer", wallet)
	if err != nil {
		return common.Address{}, err
	}
	if len(vals) == 0 {
		return common.Address{}, fmt.Errorf("empty getReferrer result")
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getReferrer result type %T", vals[0])
	}
	return addr, nil
}

func (s *Service) rewardClaimed(ctx context.Context, chainID int64, contract, wallet common.Address) (bool, error) {
	vals, err := s.reader.CallView(ctx, chainID, contract, chain.ABIReferral, "rewardClaimed", wallet)
	if err != nil {
		return false, err
	}
	if len(vals) == 0 {
		return false, fmt.Errorf("empty rewardClaimed result")
	}
	claimed, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected rewardClaimed result type %T", vals[0])
	}
	return claimed, nil
}

func (s *Service) viewBig(ctx context.Context, chainID int64, contract common.Address, method string, wallet common.Address) (*big.Int, error) {
	vals, err := s.reader.CallView(ctx, chainID, contract, chain.ABIReferral, method, wallet)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, vals[0])
	}
	return n, nil
}

func (s *Service) invitees(ctx context.Context, chainID int64, contract, wallet common.Address) ([]store.Invitee, error) {
	vals, err := s.reader.CallView(ctx, chainID, contract, chain.ABIReferral, "getInvitees", wallet)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty getInvitees result")
	}

	rows, ok := vals[0].([]struct {
		Wallet   common.Address `json:"wallet"`
		BindTime *big.Int       `json:"bindTime"`
	})
	if !ok {
		return nil, fmt.Errorf("unexpected getInvitees result type %T", vals[0])
	}

	out := make([]store.Invitee, 0, len(rows))
	for _, row := range rows {
		out = append(out, store.Invitee{
			Wallet:   row.Wallet.Hex(),
			BindTime: time.Unix(row.BindTime.Int64(), 0).UTC(),
		})
	}
	return out, nil
}
