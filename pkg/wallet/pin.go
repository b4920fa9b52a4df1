package wallet

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GeneratePIN returns a random 4-digit PIN for a new wallet.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// CheckPIN validates the 4-digit PIN format.
func CheckPIN(pin string) error {
	if len(pin) != 4 {
		return ErrInvalidPIN
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}
