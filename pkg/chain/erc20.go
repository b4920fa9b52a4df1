package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC-20 function selectors.
var (
	transferSig  = []byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
	approveSig   = []byte{0x09, 0x5e, 0xa7, 0xb3} // approve(address,uint256)
	balanceOfSig = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
	allowanceSig = []byte{0xdd, 0x62, 0xed, 0x3e} // allowance(address,address)
	decimalsSig  = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
)

// TransferEventTopic is the topic0 of the ERC-20 Transfer event.
var TransferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ERC20TransferData builds calldata for transfer(to, amount).
func ERC20TransferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSig...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// ERC20ApproveData builds calldata for approve(spender, amount).
func ERC20ApproveData(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, approveSig...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// TokenBalance returns the raw ERC-20 balance of wallet.
func (c *Client) TokenBalance(ctx context.Context, chainID int64, token, wallet common.Address) (*big.Int, error) {
	data := append(append([]byte{}, balanceOfSig...), common.LeftPadBytes(wallet.Bytes(), 32)...)

	raw, err := c.CallRaw(ctx, chainID, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

// Allowance returns the raw ERC-20 allowance granted by owner to spender.
func (c *Client) Allowance(ctx context.Context, chainID int64, token, owner, spender common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32+32)
	data = append(data, allowanceSig...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)

	raw, err := c.CallRaw(ctx, chainID, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

// TokenDecimals returns the token's decimals, falling back to 18 when the
// contract does not report them.
func (c *Client) TokenDecimals(ctx context.Context, chainID int64, token common.Address) (int32, error) {
	raw, err := c.CallRaw(ctx, chainID, ethereum.CallMsg{To: &token, Data: decimalsSig}, nil)
	if err != nil {
		return 18, err
	}
	if len(raw) < 32 {
		return 18, fmt.Errorf("invalid decimals result length: %d", len(raw))
	}
	return int32(raw[31]), nil
}
