package amount

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
)

var (
	ErrEmpty       = errors.New("amount is empty")
	ErrFormat      = errors.New("amount is not a decimal number")
	ErrPrecision   = errors.New("amount has too many decimal places")
	ErrNotPositive = errors.New("amount must be greater than 0")
	ErrOverflow    = errors.New("amount exceeds the token's representable range")
)

// Matches: "1", "1.5", "1.", ".5"
var decimalPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// Validate checks a user-entered amount. A negative decimals value skips the
// precision bound, which is used while the token is still unresolved.
func Validate(value string, decimals int) error {
	if value == "" {
		return ErrEmpty
	}
	if !decimalPattern.MatchString(value) {
		return ErrFormat
	}

	whole, frac := split(value)
	if decimals >= 0 && len(frac) > decimals {
		return ErrPrecision
	}
	if strings.Trim(whole+frac, "0") == "" {
		return ErrNotPositive
	}

	if decimals >= 0 {
		units, err := ToSmallestUnit(value, uint8(decimals))
		if err != nil {
			return err
		}
		if units.Cmp(math.MaxBig256) > 0 {
			return ErrOverflow
		}
	}

	return nil
}

// IsValid is Validate as a predicate
func IsValid(value string, decimals int) bool {
	return Validate(value, decimals) == nil
}

// ToSmallestUnit converts a decimal string into the token's integer base unit.
// Extra fraction digits are truncated, never rounded up. An empty string is zero.
func ToSmallestUnit(value string, decimals uint8) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	if !decimalPattern.MatchString(value) {
		return nil, fmt.Errorf("%w: %q", ErrFormat, value)
	}

	whole, frac := split(value)
	d := int(decimals)
	if len(frac) > d {
		frac = frac[:d]
	} else {
		frac += strings.Repeat("0", d-len(frac))
	}

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return new(big.Int), nil
	}

	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFormat, value)
	}
	return result, nil
}

// Format renders a smallest-unit integer as a decimal string without trailing zeros
func Format(units *big.Int, decimals uint8) string {
	if units == nil {
		return ""
	}

	neg := units.Sign() < 0
	digits := new(big.Int).Abs(units).String()
	d := int(decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}

	whole := digits[:len(digits)-d]
	frac := strings.TrimRight(digits[len(digits)-d:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func split(value string) (string, string) {
	whole, frac, _ := strings.Cut(value, ".")
	return whole, frac
}
