package activity

import (
	"math/big"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sipeed/clawvault/pkg/chain"
)

// Type classifies an activity item.
type Type string

const (
	TypeSend     Type = "send"
	TypeReceive  Type = "receive"
	TypeSwap     Type = "swap"
	TypeContract Type = "contract"
)

// Status is the resolution state of an activity item.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Item is one entry in the wallet's activity feed. Hash is the dedup key:
// a chain-observed record always supersedes a locally recorded placeholder
// with the same hash.
type Item struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Asset     string    `json:"asset"`
	Amount    string    `json:"amount"`
	Status    Status    `json:"status"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
}

var hashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// NormalizeHash lower-cases a transaction hash and validates it as 32-byte
// hex. Malformed hashes report ok=false and never participate in merging.
func NormalizeHash(h string) (string, bool) {
	h = strings.ToLower(strings.TrimSpace(h))
	if !hashPattern.MatchString(h) {
		return "", false
	}
	return h, true
}

// mergeKey returns the dedup key for an item. Items without a well-formed
// hash fall back to their own ID so they are kept but never merged.
func mergeKey(it Item) string {
	if key, ok := NormalizeHash(it.Hash); ok {
		return key
	}
	return "id:" + it.ID
}

// Merge reconciles chain-observed transfer events with locally recorded
// entries. Both lists are grouped by normalized hash; for any hash present
// in both, the chain-observed record wins. The result is sorted by
// timestamp descending. Merge is pure, total, and idempotent: merging a
// merged result with itself yields the same result.
func Merge(chainEvents, local []Item) []Item {
	merged := make(map[string]Item, len(chainEvents)+len(local))

	for _, it := range local {
		merged[mergeKey(it)] = it
	}
	// Chain records are authoritative.
	for _, it := range chainEvents {
		merged[mergeKey(it)] = it
	}

	out := make([]Item, 0, len(merged))
	for _, it := range merged {
		out = append(out, it)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return mergeKey(out[i]) < mergeKey(out[j])
	})

	return out
}

// FromTransferLog converts an ERC-20 Transfer event into a chain-observed
// activity item for the given wallet. ok is false when the log is not a
// well-formed Transfer event.
func FromTransferLog(l types.Log, wallet common.Address, symbol string, decimals int32, ts time.Time) (Item, bool) {
	if len(l.Topics) < 3 || l.Topics[0] != chain.TransferEventTopic {
		return Item{}, false
	}

	from := common.BytesToAddress(l.Topics[1].Bytes())
	to := common.BytesToAddress(l.Topics[2].Bytes())
	amount := new(big.Int).SetBytes(l.Data)

	typ := TypeReceive
	if from == wallet {
		typ = TypeSend
	}

	hash, ok := NormalizeHash(l.TxHash.Hex())
	if !ok {
		return Item{}, false
	}

	return Item{
		ID:        hash,
		Type:      typ,
		Asset:     symbol,
		Amount:    chain.FormatUnits(amount, decimals),
		Status:    StatusSuccess,
		Hash:      hash,
		Timestamp: ts,
		From:      strings.ToLower(from.Hex()),
		To:        strings.ToLower(to.Hex()),
	}, true
}
