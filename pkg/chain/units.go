package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatUnits converts a raw integer amount into a decimal string using
// the token's decimals exponent. Trailing fractional zeros are trimmed.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(amount, divisor, frac)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*s", decimals, frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr
}

// ParseUnits converts a non-negative decimal string into a raw integer
// amount. Fractional digits beyond the token's decimals are rejected
// rather than silently truncated.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount: %s", s)
	}

	parts := strings.SplitN(s, ".", 2)
	wholeStr := parts[0]
	fracStr := ""
	if len(parts) == 2 {
		fracStr = parts[1]
	}
	if wholeStr == "" && fracStr == "" {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	if wholeStr == "" {
		wholeStr = "0"
	}
	if int32(len(fracStr)) > decimals {
		return nil, fmt.Errorf("amount %s exceeds %d decimal places", s, decimals)
	}

	whole, ok := new(big.Int).SetString(wholeStr, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	result := new(big.Int).Mul(whole, scale)

	if fracStr != "" {
		frac, ok := new(big.Int).SetString(fracStr, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount: %s", s)
		}
		pad := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)-int64(len(fracStr))), nil)
		result.Add(result, frac.Mul(frac, pad))
	}

	return result, nil
}
