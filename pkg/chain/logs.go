package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// FilterTransferLogs returns ERC-20 Transfer events for token where wallet
// is the sender or the recipient, over [fromBlock, toBlock]. Events are
// deduplicated across the two topic queries.
func (c *Client) FilterTransferLogs(ctx context.Context, chainID int64, token, wallet common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	walletTopic := common.BytesToHash(common.LeftPadBytes(wallet.Bytes(), 32))

	queries := []ethereum.FilterQuery{
		{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{TransferEventTopic}, {walletTopic}},
		},
		{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{TransferEventTopic}, nil, {walletTopic}},
		},
	}

	seen := make(map[string]bool)
	var logs []types.Log

	for _, q := range queries {
		query := q
		var batch []types.Log
		err := c.do(ctx, chainID, "eth_getLogs", func(ctx context.Context, client *ethclient.Client) error {
			res, err := client.FilterLogs(ctx, query)
			if err != nil {
				return err
			}
			batch = res
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, l := range batch {
			key := fmt.Sprintf("%s:%d", l.TxHash.Hex(), l.Index)
			if seen[key] {
				continue
			}
			seen[key] = true
			logs = append(logs, l)
		}
	}

	return logs, nil
}
