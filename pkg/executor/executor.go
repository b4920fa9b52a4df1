package executor

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/sipeed/clawvault/pkg/activity"
	"github.com/sipeed/clawvault/pkg/chain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/logger"
	"github.com/sipeed/clawvault/pkg/sponsor"
)

// State tracks an operation through its lifecycle. Transitions only move
// forward; a denied sponsorship falls through to the self-funded path
// within the same run.
type State string

const (
	StateBuilding             State = "building"
	StateSponsorshipRequested State = "sponsorship_requested"
	StateSponsorshipGranted   State = "sponsorship_granted"
	StateSponsorshipDenied    State = "sponsorship_denied"
	StateSubmittedSponsored   State = "submitted_sponsored"
	StateSubmittedSelfFunded  State = "submitted_self_funded"
	StateConfirmed            State = "confirmed"
	StateReverted             State = "reverted"
	StateTimedOut             State = "timed_out"
)

// Call is one contract call or value transfer inside an operation.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Operation is a unit of work: one or more calls executed atomically on
// one chain for one wallet, plus the metadata recorded in the activity
// feed.
type Operation struct {
	WalletID string
	ChainID  int64
	Type     activity.Type
	Asset    string
	Amount   string
	To       string
	Calls    []Call
}

// Result reports how an operation ended up on chain.
type Result struct {
	Hash      common.Hash
	Sponsored bool
	State     State
	GasUsed   uint64
}

// ChainBackend is the subset of the chain client the executor needs.
type ChainBackend interface {
	NativeBalance(ctx context.Context, chainID int64, address common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context, chainID int64) (*big.Int, error)
	PendingNonce(ctx context.Context, chainID int64, address common.Address) (uint64, error)
	EstimateGas(ctx context.Context, chainID int64, msg ethereum.CallMsg) (uint64, error)
	Broadcast(ctx context.Context, chainID int64, tx *types.Transaction) error
	Receipt(ctx context.Context, chainID int64, hash common.Hash) (*types.Receipt, bool, error)
}

// SponsorBackend is the subset of the sponsor client the executor needs.
type SponsorBackend interface {
	Configured() bool
	RequestSponsorship(ctx context.Context, chainID int64, op sponsor.Operation) sponsor.Decision
	SubmitSponsored(ctx context.Context, chainID int64, env sponsor.Envelope) (common.Hash, bool, error)
}

// Recorder receives activity updates as operations progress.
type Recorder interface {
	RecordPending(walletID string, item activity.Item) error
	MarkActivity(walletID, hash string, status activity.Status) error
}

// Signer signs on behalf of one wallet. Implementations derive the key
// per call and wipe it afterwards.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
	SignDigest(digest []byte) ([]byte, error)
}

// Executor runs wallet operations: it requests sponsorship, falls back
// to self-funded submission on denial, and confirms receipts. Operations
// for the same wallet are serialized so nonces never race.
type Executor struct {
	chain   ChainBackend
	sponsor SponsorBackend
	rec     Recorder
	cfg     *config.Config
	abis    *chain.ABIRegistry

	receiptInterval time.Duration
	confirmTimeout  time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an executor.
func New(cb ChainBackend, sb SponsorBackend, rec Recorder, cfg *config.Config, abis *chain.ABIRegistry) *Executor {
	ri := time.Duration(cfg.Executor.ReceiptIntervalSeconds) * time.Second
	if ri <= 0 {
		ri = 5 * time.Second
	}
	ct := time.Duration(cfg.Executor.ConfirmTimeoutSeconds) * time.Second
	if ct <= 0 {
		ct = 3 * time.Minute
	}
	return &Executor{
		chain:           cb,
		sponsor:         sb,
		rec:             rec,
		cfg:             cfg,
		abis:            abis,
		receiptInterval: ri,
		confirmTimeout:  ct,
		locks:           make(map[string]*sync.Mutex),
	}
}

func (e *Executor) walletLock(walletID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[walletID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[walletID] = l
	}
	return l
}

// Execute runs an operation to completion: sponsorship request, payment
// path selection, submission, and receipt confirmation. It returns once
// the operation is confirmed, reverted, or the confirmation window
// expires.
func (e *Executor) Execute(ctx context.Context, op Operation, signer Signer) (*Result, error) {
	if len(op.Calls) == 0 {
		return nil, ErrEmptyOperation
	}

	l := e.walletLock(op.WalletID)
	l.Lock()
	defer l.Unlock()

	target, value, data, err := e.flatten(op)
	if err != nil {
		return nil, err
	}

	sender := signer.Address()

	gasEstimate, err := e.chain.EstimateGas(ctx, op.ChainID, ethereum.CallMsg{
		From:  sender,
		To:    &target,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", err)
	}

	// Sponsored path first. A denial here is routine; only a submission
	// that may have reached the chain aborts the run.
	if e.sponsor.Configured() {
		decision := e.sponsor.RequestSponsorship(ctx, op.ChainID, sponsorOperation(sender, op.Calls, gasEstimate))

		if decision.Granted {
			res, submitted, err := e.submitSponsored(ctx, op, sender, signer, decision)
			if err != nil {
				if submitted {
					return nil, err
				}
				// Relay refused before broadcast; safe to fall back.
				logger.WarnCF("executor", "Sponsored submission rejected, falling back to self-funded", map[string]any{
					"wallet": op.WalletID,
					"error":  err.Error(),
				})
			} else {
				return res, nil
			}
		} else {
			logger.InfoCF("executor", "Sponsorship denied, using self-funded path", map[string]any{
				"wallet": op.WalletID,
				"reason": decision.Reason,
			})
		}
	}

	return e.submitSelfFunded(ctx, op, sender, signer, target, value, data, gasEstimate)
}

// flatten resolves an operation to a single on-chain target. Multi-call
// operations go through the chain's batch router so they land atomically.
func (e *Executor) flatten(op Operation) (common.Address, *big.Int, []byte, error) {
	if len(op.Calls) == 1 {
		c := op.Calls[0]
		v := c.Value
		if v == nil {
			v = big.NewInt(0)
		}
		return c.To, v, c.Data, nil
	}

	chainCfg, err := e.cfg.Chain(op.ChainID)
	if err != nil || chainCfg.BatchRouter == "" {
		return common.Address{}, nil, nil, ErrNoBatchRouter
	}

	targets := make([]common.Address, len(op.Calls))
	values := make([]*big.Int, len(op.Calls))
	datas := make([][]byte, len(op.Calls))
	total := big.NewInt(0)
	for i, c := range op.Calls {
		targets[i] = c.To
		v := c.Value
		if v == nil {
			v = big.NewInt(0)
		}
		values[i] = v
		datas[i] = c.Data
		total = new(big.Int).Add(total, v)
	}

	batchABI, err := e.abis.Get(chain.ABIBatchRouter)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	packed, err := batchABI.Pack("executeBatch", targets, values, datas)
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to pack batch: %w", err)
	}

	return common.HexToAddress(chainCfg.BatchRouter), total, packed, nil
}

func sponsorOperation(sender common.Address, calls []Call, gasEstimate uint64) sponsor.Operation {
	out := sponsor.Operation{
		Sender:      sender.Hex(),
		GasEstimate: gasEstimate,
	}
	for _, c := range calls {
		v := c.Value
		if v == nil {
			v = big.NewInt(0)
		}
		out.Calls = append(out.Calls, sponsor.Call{
			To:    c.To.Hex(),
			Value: v.String(),
			Data:  hexutil.Encode(c.Data),
		})
	}
	return out
}

// envelopeDigest is the preimage the wallet signs to authorize a
// sponsored operation. The encoding is fixed: any change breaks every
// deployed relay.
func envelopeDigest(chainID int64, sender common.Address, calls []Call, paymasterData []byte) []byte {
	var buf []byte
	buf = append(buf, sender.Bytes()...)

	var cid [8]byte
	binary.BigEndian.PutUint64(cid[:], uint64(chainID))
	buf = append(buf, cid[:]...)

	for _, c := range calls {
		buf = append(buf, c.To.Bytes()...)
		v := c.Value
		if v == nil {
			v = big.NewInt(0)
		}
		buf = append(buf, common.BigToHash(v).Bytes()...)
		buf = append(buf, crypto.Keccak256(c.Data)...)
	}
	buf = append(buf, crypto.Keccak256(paymasterData)...)

	return crypto.Keccak256(buf)
}

// submitSponsored signs and relays a granted operation. submitted=true
// means the relay may have broadcast something, so the caller must not
// fall back to the self-funded path.
func (e *Executor) submitSponsored(ctx context.Context, op Operation, sender common.Address, signer Signer, decision sponsor.Decision) (*Result, bool, error) {
	digest := envelopeDigest(op.ChainID, sender, op.Calls, decision.PaymasterData)
	sig, err := signer.SignDigest(digest)
	if err != nil {
		return nil, false, fmt.Errorf("failed to sign sponsored operation: %w", err)
	}

	env := sponsor.Envelope{
		Sender:        sender.Hex(),
		PaymasterData: hexutil.Encode(decision.PaymasterData),
		GasLimit:      decision.GasLimit,
		Signature:     hexutil.Encode(sig),
	}
	env.Calls = sponsorOperation(sender, op.Calls, 0).Calls

	hash, rejected, err := e.sponsor.SubmitSponsored(ctx, op.ChainID, env)
	if err != nil {
		if rejected {
			return nil, false, err
		}
		return nil, true, fmt.Errorf("sponsored submission state unknown: %w", err)
	}

	logger.InfoCF("executor", "Sponsored operation submitted", map[string]any{
		"wallet": op.WalletID,
		"hash":   hash.Hex(),
	})

	e.recordPending(op, hash)
	return e.await(ctx, op, hash, true)
}

func (e *Executor) submitSelfFunded(ctx context.Context, op Operation, sender common.Address, signer Signer, target common.Address, value *big.Int, data []byte, gasEstimate uint64) (*Result, error) {
	gasPrice, err := e.chain.SuggestGasPrice(ctx, op.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	nonce, err := e.chain.PendingNonce(ctx, op.ChainID, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	// Fail before broadcasting if the wallet cannot cover value + fee.
	balance, err := e.chain.NativeBalance(ctx, op.ChainID, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to check balance: %w", err)
	}
	fee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasEstimate))
	cost := new(big.Int).Add(fee, value)
	if balance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientGasFunds, cost.String(), balance.String())
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasEstimate,
		To:       &target,
		Value:    value,
		Data:     data,
	})
	signed, err := signer.SignTx(big.NewInt(op.ChainID), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.chain.Broadcast(ctx, op.ChainID, signed); err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	hash := signed.Hash()
	logger.InfoCF("executor", "Self-funded transaction submitted", map[string]any{
		"wallet": op.WalletID,
		"hash":   hash.Hex(),
		"nonce":  nonce,
	})

	e.recordPending(op, hash)
	res, _, err := e.await(ctx, op, hash, false)
	return res, err
}

func (e *Executor) recordPending(op Operation, hash common.Hash) {
	if e.rec == nil {
		return
	}
	item := activity.Item{
		ID:        uuid.New().String(),
		Type:      op.Type,
		Asset:     op.Asset,
		Amount:    op.Amount,
		Status:    activity.StatusPending,
		Hash:      hash.Hex(),
		Timestamp: time.Now().UTC(),
		To:        op.To,
	}
	if err := e.rec.RecordPending(op.WalletID, item); err != nil {
		logger.WarnCF("executor", "Failed to record pending activity", map[string]any{
			"wallet": op.WalletID,
			"error":  err.Error(),
		})
	}
}

func (e *Executor) mark(op Operation, hash common.Hash, status activity.Status) {
	if e.rec == nil {
		return
	}
	if err := e.rec.MarkActivity(op.WalletID, hash.Hex(), status); err != nil {
		logger.WarnCF("executor", "Failed to update activity status", map[string]any{
			"wallet": op.WalletID,
			"error":  err.Error(),
		})
	}
}

// await polls for the receipt until confirmation or the timeout. The
// second return mirrors submitSponsored's "submitted" flag for callers
// on that path.
func (e *Executor) await(ctx context.Context, op Operation, hash common.Hash, sponsored bool) (*Result, bool, error) {
	deadline := time.Now().Add(e.confirmTimeout)
	ticker := time.NewTicker(e.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, found, err := e.chain.Receipt(ctx, op.ChainID, hash)
		if err == nil && found {
			if receipt.Status == types.ReceiptStatusSuccessful {
				e.mark(op, hash, activity.StatusSuccess)
				return &Result{
					Hash:      hash,
					Sponsored: sponsored,
					State:     StateConfirmed,
					GasUsed:   receipt.GasUsed,
				}, true, nil
			}
			e.mark(op, hash, activity.StatusFailed)
			return nil, true, fmt.Errorf("%w: %s", ErrExecutionReverted, hash.Hex())
		}
		if err != nil {
			logger.DebugCF("executor", "Receipt poll failed", map[string]any{
				"hash":  hash.Hex(),
				"error": err.Error(),
			})
		}

		if time.Now().After(deadline) {
			// Leave the activity entry pending; the sync loop will
			// resolve it if the transaction eventually lands.
			return nil, true, fmt.Errorf("%w: %s", ErrConfirmationTimeout, hash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, true, ctx.Err()
		case <-ticker.C:
		}
	}
}
