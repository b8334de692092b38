package chains

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits converts a decimal string such as "0.001" into an integer amount
// of the smallest unit. Values with more fractional digits than decimals are
// rejected rather than rounded.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.ContainsAny(s, "/eE") {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("amount cannot be negative: %q", s)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatUnits renders an integer amount of the smallest unit as a decimal
// string with trailing zeros trimmed.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, scale, new(big.Int))

	out := whole.String()
	if frac.Sign() != 0 {
		fs := fmt.Sprintf("%0*s", decimals, frac.String())
		out += "." + strings.TrimRight(fs, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}
