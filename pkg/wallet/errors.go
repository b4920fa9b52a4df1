package wallet

import "errors"

var (
	// ErrInvalidPIN means the PIN is not a 4-digit code.
	ErrInvalidPIN = errors.New("PIN must be 4 digits")

	// ErrWrongPIN means the phrase file could not be decrypted with the
	// given PIN.
	ErrWrongPIN = errors.New("wrong PIN")

	// ErrWalletNotFound means no wallet exists with the given ID.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrNoWalletSelected means no active wallet has been chosen yet.
	ErrNoWalletSelected = errors.New("no wallet selected")

	// ErrUnknownAsset means the symbol is neither the native currency nor
	// a configured token on the active chain.
	ErrUnknownAsset = errors.New("unknown asset")
)
