package keys

import "errors"

var (
	// ErrInvalidSecretPhrase is returned when the mnemonic fails
	// word-list or checksum validation.
	ErrInvalidSecretPhrase = errors.New("invalid secret phrase")

	// ErrInvalidDerivationPath is returned when the path cannot be parsed.
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
)
