package executor

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sipeed/clawvault/pkg/activity"
	"github.com/sipeed/clawvault/pkg/chain"
	"github.com/sipeed/clawvault/pkg/config"
)

// BuildNativeTransfer builds a plain value transfer.
func BuildNativeTransfer(walletID string, chainCfg *config.EVMChain, to common.Address, amount *big.Int) Operation {
	return Operation{
		WalletID: walletID,
		ChainID:  chainCfg.ChainID,
		Type:     activity.TypeSend,
		Asset:    chainCfg.Currency,
		Amount:   chain.FormatUnits(amount, chainCfg.NativeDecimals()),
		To:       to.Hex(),
		Calls: []Call{
			{To: to, Value: amount},
		},
	}
}

// BuildTokenTransfer builds an ERC-20 transfer. On chains with a batch
// router the allowance grant and the transfer land as one atomic batch,
// so partial execution can never leave the allowance outstanding without
// the paired transfer. haveAllowance drops the grant when the router
// already holds enough; without a batch router the transfer goes direct
// and needs no allowance at all.
func BuildTokenTransfer(walletID string, chainCfg *config.EVMChain, token config.Token, to common.Address, amount *big.Int, haveAllowance bool) Operation {
	tokenAddr := common.HexToAddress(token.Address)

	calls := []Call{
		{
			To:    tokenAddr,
			Value: big.NewInt(0),
			Data:  chain.ERC20TransferData(to, amount),
		},
	}
	if chainCfg.BatchRouter != "" && !haveAllowance {
		calls = append([]Call{
			{
				To:    tokenAddr,
				Value: big.NewInt(0),
				Data:  chain.ERC20ApproveData(common.HexToAddress(chainCfg.BatchRouter), amount),
			},
		}, calls...)
	}

	return Operation{
		WalletID: walletID,
		ChainID:  chainCfg.ChainID,
		Type:     activity.TypeSend,
		Asset:    token.Symbol,
		Amount:   chain.FormatUnits(amount, token.Decimals),
		To:       to.Hex(),
		Calls:    calls,
	}
}

// BuildSwap builds an atomic approve + swap batch against the chain's
// router. minOut applies the slippage tolerance to the quoted amount so
// the swap reverts instead of filling at a worse rate.
func BuildSwap(walletID string, chainCfg *config.EVMChain, abis *chain.ABIRegistry, tokenIn, tokenOut config.Token, recipient common.Address, amountIn, expectedOut *big.Int, slippageBps int64, deadline time.Duration) (Operation, error) {
	if chainCfg.Router == "" {
		return Operation{}, fmt.Errorf("chain %s has no swap router configured", chainCfg.Name)
	}
	if slippageBps < 0 || slippageBps > 10000 {
		return Operation{}, fmt.Errorf("slippage out of range: %d bps", slippageBps)
	}

	router := common.HexToAddress(chainCfg.Router)
	minOut := SlippageMinOut(expectedOut, slippageBps)
	deadlineTS := big.NewInt(time.Now().Add(deadline).Unix())
	path := []common.Address{
		common.HexToAddress(tokenIn.Address),
		common.HexToAddress(tokenOut.Address),
	}

	routerABI, err := abis.Get(chain.ABIRouter)
	if err != nil {
		return Operation{}, err
	}
	swapData, err := routerABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, recipient, deadlineTS)
	if err != nil {
		return Operation{}, fmt.Errorf("failed to pack swap call: %w", err)
	}

	return Operation{
		WalletID: walletID,
		ChainID:  chainCfg.ChainID,
		Type:     activity.TypeSwap,
		Asset:    fmt.Sprintf("%s->%s", tokenIn.Symbol, tokenOut.Symbol),
		Amount:   chain.FormatUnits(amountIn, tokenIn.Decimals),
		To:       chainCfg.Router,
		Calls: []Call{
			{
				To:    common.HexToAddress(tokenIn.Address),
				Value: big.NewInt(0),
				Data:  chain.ERC20ApproveData(router, amountIn),
			},
			{
				To:    router,
				Value: big.NewInt(0),
				Data:  swapData,
			},
		},
	}, nil
}

// BuildContractCall builds an arbitrary single-call operation.
func BuildContractCall(walletID string, chainID int64, to common.Address, value *big.Int, data []byte, label string) Operation {
	if value == nil {
		value = big.NewInt(0)
	}
	return Operation{
		WalletID: walletID,
		ChainID:  chainID,
		Type:     activity.TypeContract,
		Asset:    label,
		Amount:   "0",
		To:       to.Hex(),
		Calls: []Call{
			{To: to, Value: value, Data: data},
		},
	}
}

// SlippageMinOut computes the minimum acceptable output for a quoted
// amount: expected * (10000 - bps) / 10000, rounded down.
func SlippageMinOut(expected *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(expected, big.NewInt(10000-bps))
	return out.Div(out, big.NewInt(10000))
}
