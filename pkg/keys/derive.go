package keys

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// DefaultPath is the standard Ethereum account derivation path.
const DefaultPath = "m/44'/60'/0'/0/0"

// Derived is the result of deriving a signing key from a secret phrase.
// The key is scoped to a single signing operation: callers must Zero it
// as soon as the signature has been produced.
type Derived struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// PrivateKey returns the derived signing key.
func (d *Derived) PrivateKey() *ecdsa.PrivateKey {
	return d.key
}

// Zero wipes the signing key material.
func (d *Derived) Zero() {
	if d.key != nil {
		d.key.D.SetInt64(0)
		d.key = nil
	}
}

// NewPhrase generates a fresh mnemonic of 12 or 24 words.
func NewPhrase(words int) (string, error) {
	var bits int
	switch words {
	case 12:
		bits = 128
	case 24:
		bits = 256
	default:
		return "", fmt.Errorf("unsupported mnemonic length: %d words", words)
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	return bip39.NewMnemonic(entropy)
}

// Normalize canonicalizes a secret phrase: trimmed, lower-cased, single
// spaces between words.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// Derive deterministically derives the signing key and address for a
// secret phrase at the given derivation path. It performs no I/O and the
// same inputs always produce the same address.
func Derive(phrase, path string) (*Derived, error) {
	phrase = Normalize(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidSecretPhrase
	}

	dpath, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDerivationPath, path)
	}

	seed := bip39.NewSeed(phrase, "")

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	for _, n := range dpath {
		key, err = key.Derive(n)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child %d: %w", n, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}

	ecdsaKey := priv.ToECDSA()

	return &Derived{
		Address: crypto.PubkeyToAddress(ecdsaKey.PublicKey),
		key:     ecdsaKey,
	}, nil
}
