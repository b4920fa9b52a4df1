package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/logger"
)

// Client manages connections to multiple EVM chains. Each chain carries
// an ordered list of equivalent RPC endpoints; every request is issued
// against the first endpoint and rotates to the next on network failure.
// Reads are side-effect free; Broadcast is the only mutating call.
type Client struct {
	mu        sync.RWMutex
	chains    map[int64]*config.EVMChain
	endpoints map[int64][]*endpoint
	abis      *ABIRegistry
	rps       int
}

type endpoint struct {
	url     string
	limiter *rate.Limiter

	mu     sync.Mutex
	client *ethclient.Client
}

// NewClient creates a chain client. rps bounds the request rate against
// each individual endpoint.
func NewClient(abis *ABIRegistry, rps int) *Client {
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		chains:    make(map[int64]*config.EVMChain),
		endpoints: make(map[int64][]*endpoint),
		abis:      abis,
		rps:       rps,
	}
}

// AddChain registers a chain and its endpoint list. Connections are
// dialed lazily on first use.
func (c *Client) AddChain(chain *config.EVMChain) error {
	if len(chain.RPCs) == 0 {
		return fmt.Errorf("chain %s has no RPC endpoints", chain.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.chains[chain.ChainID]; exists {
		return nil
	}

	eps := make([]*endpoint, 0, len(chain.RPCs))
	for _, url := range chain.RPCs {
		eps = append(eps, &endpoint{
			url:     url,
			limiter: rate.NewLimiter(rate.Limit(c.rps), c.rps),
		})
	}

	c.chains[chain.ChainID] = chain
	c.endpoints[chain.ChainID] = eps

	logger.InfoCF("chain", "Registered chain", map[string]any{
		"name":      chain.Name,
		"chainId":   chain.ChainID,
		"endpoints": len(eps),
	})

	return nil
}

// Chain returns the configuration for a chain ID.
func (c *Client) Chain(chainID int64) (*config.EVMChain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chain, ok := c.chains[chainID]
	return chain, ok
}

// ABIs returns the ABI registry.
func (c *Client) ABIs() *ABIRegistry {
	return c.abis
}

// Close closes all dialed connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for chainID, eps := range c.endpoints {
		for _, ep := range eps {
			ep.mu.Lock()
			if ep.client != nil {
				ep.client.Close()
				ep.client = nil
			}
			ep.mu.Unlock()
		}
		logger.InfoCF("chain", "Disconnected from chain", map[string]any{
			"chainId": chainID,
		})
	}
}

func (ep *endpoint) dial(ctx context.Context) (*ethclient.Client, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.client != nil {
		return ep.client, nil
	}

	client, err := ethclient.DialContext(ctx, ep.url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", ep.url, err)
	}
	ep.client = client
	return client, nil
}

func (ep *endpoint) drop() {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.client != nil {
		ep.client.Close()
		ep.client = nil
	}
}

// do walks the chain's endpoint list in order until fn succeeds. Once the
// list is exhausted the typed ErrUnavailable is returned so callers can
// distinguish "unknown" from an actual zero result.
func (c *Client) do(ctx context.Context, chainID int64, op string, fn func(context.Context, *ethclient.Client) error) error {
	c.mu.RLock()
	eps := c.endpoints[chainID]
	c.mu.RUnlock()

	if len(eps) == 0 {
		return fmt.Errorf("chain %d not configured", chainID)
	}

	var lastErr error
	for _, ep := range eps {
		if err := ep.limiter.Wait(ctx); err != nil {
			return err
		}

		client, err := ep.dial(ctx)
		if err != nil {
			lastErr = err
			logger.WarnCF("chain", "Endpoint dial failed, rotating", map[string]any{
				"op":       op,
				"endpoint": ep.url,
				"error":    err.Error(),
			})
			continue
		}

		if err := fn(ctx, client); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			ep.drop()
			logger.WarnCF("chain", "Endpoint request failed, rotating", map[string]any{
				"op":       op,
				"endpoint": ep.url,
				"error":    err.Error(),
			})
			continue
		}

		return nil
	}

	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, lastErr)
}

// NativeBalance returns the native currency balance as a raw integer
// amount.
func (c *Client) NativeBalance(ctx context.Context, chainID int64, address common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.do(ctx, chainID, "eth_getBalance", func(ctx context.Context, client *ethclient.Client) error {
		b, err := client.BalanceAt(ctx, address, nil)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context, chainID int64) (uint64, error) {
	var number uint64
	err := c.do(ctx, chainID, "eth_blockNumber", func(ctx context.Context, client *ethclient.Client) error {
		n, err := client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		number = n
		return nil
	})
	return number, err
}

// SuggestGasPrice returns the chain's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context, chainID int64) (*big.Int, error) {
	var price *big.Int
	err := c.do(ctx, chainID, "eth_gasPrice", func(ctx context.Context, client *ethclient.Client) error {
		p, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return price, nil
}

// PendingNonce returns the next account nonce including pending txs.
func (c *Client) PendingNonce(ctx context.Context, chainID int64, address common.Address) (uint64, error) {
	var nonce uint64
	err := c.do(ctx, chainID, "eth_getTransactionCount", func(ctx context.Context, client *ethclient.Client) error {
		n, err := client.PendingNonceAt(ctx, address)
		if err != nil {
			return err
		}
		nonce = n
		return nil
	})
	return nonce, err
}

// EstimateGas estimates the gas required for a call.
func (c *Client) EstimateGas(ctx context.Context, chainID int64, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.do(ctx, chainID, "eth_estimateGas", func(ctx context.Context, client *ethclient.Client) error {
		g, err := client.EstimateGas(ctx, msg)
		if err != nil {
			return err
		}
		gas = g
		return nil
	})
	return gas, err
}

// Receipt fetches a transaction receipt. found is false while the
// transaction has not been mined yet.
func (c *Client) Receipt(ctx context.Context, chainID int64, hash common.Hash) (*types.Receipt, bool, error) {
	var receipt *types.Receipt
	var found bool
	err := c.do(ctx, chainID, "eth_getTransactionReceipt", func(ctx context.Context, client *ethclient.Client) error {
		r, err := client.TransactionReceipt(ctx, hash)
		if err == ethereum.NotFound {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		receipt = r
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return receipt, found, nil
}

// CallRaw performs a raw eth_call at the given block (nil for latest).
func (c *Client) CallRaw(ctx context.Context, chainID int64, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, chainID, "eth_call", func(ctx context.Context, client *ethclient.Client) error {
		res, err := client.CallContract(ctx, msg, block)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CallView calls a read-only contract method through the ABI registry and
// returns the unpacked outputs.
func (c *Client) CallView(ctx context.Context, chainID int64, contract common.Address, abiName, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := c.abis.Get(abiName)
	if err != nil {
		return nil, fmt.Errorf("failed to get ABI: %w", err)
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := c.CallRaw(ctx, chainID, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method not found: %s", method)
	}
	if len(m.Outputs) == 0 {
		return nil, nil
	}

	outputs, err := m.Outputs.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return outputs, nil
}

// Broadcast submits a signed transaction through the endpoint list.
func (c *Client) Broadcast(ctx context.Context, chainID int64, tx *types.Transaction) error {
	return c.do(ctx, chainID, "eth_sendRawTransaction", func(ctx context.Context, client *ethclient.Client) error {
		return client.SendTransaction(ctx, tx)
	})
}
