package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sipeed/clawvault/pkg/keys"
)

// opSigner signs for one operation. The private key lives only for the
// signer's lifetime; Close wipes it.
type opSigner struct {
	derived *keys.Derived
}

func (s *opSigner) Address() common.Address {
	return s.derived.Address
}

func (s *opSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.derived.PrivateKey())
}

func (s *opSigner) SignDigest(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.derived.PrivateKey())
}

func (s *opSigner) Close() {
	s.derived.Zero()
}
