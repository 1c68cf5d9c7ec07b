package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Fixed is an integer value scaled by 10^Decimals, the way the ledger stores
// token amounts and prediction shares.
type Fixed struct {
	Value    *big.Int
	Decimals int32
}

// MaxDecimals bounds the scale FormatDecimal and ParseDecimal accept.
const MaxDecimals = 255

// NewFixed builds a Fixed from an int64 value.
func NewFixed(value int64, decimals int32) Fixed {
	return Fixed{Value: big.NewInt(value), Decimals: decimals}
}

// ParseFixed parses a display string such as "43.1234" into a Fixed with the
// given number of decimals. More fractional digits than decimals is an error.
func ParseFixed(s string, decimals int32) (Fixed, error) {
	raw, err := ParseDecimal(s, int(decimals))
	if err != nil {
		return Fixed{}, err
	}
	v, _ := new(big.Int).SetString(raw, 10)
	return Fixed{Value: v, Decimals: decimals}, nil
}

// Decimal returns the exact decimal value.
func (f Fixed) Decimal() decimal.Decimal {
	if f.Value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(f.Value, -f.Decimals)
}

// Float64 converts to float64 by dividing the integer value by 10^Decimals.
// For values that fit in 53 bits this is a single correctly rounded division.
func (f Fixed) Float64() float64 {
	if f.Value == nil {
		return 0
	}
	if f.Value.IsInt64() && f.Decimals >= 0 && f.Decimals <= 22 {
		v := f.Value.Int64()
		if v > -(1<<53) && v < 1<<53 {
			return float64(v) / math.Pow10(int(f.Decimals))
		}
	}
	v, _ := f.Decimal().Float64()
	return v
}

func (f Fixed) String() string {
	return f.Decimal().StringFixed(f.Decimals)
}

// MarshalJSON encodes the value as its display string.
func (f Fixed) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts a display string; the decimals are taken from the
// number of fractional digits present.
func (f *Fixed) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var decimals int32
	if i := strings.IndexByte(s, '.'); i >= 0 {
		decimals = int32(len(s) - i - 1)
	}
	f.Value = d.Shift(decimals).BigInt()
	f.Decimals = decimals
	return nil
}

// FormatDecimal inserts a decimal point decimals digits from the right of an
// unsigned integer string, left padding with zeros when needed.
//
//	FormatDecimal("12345", 2) == "123.45"
//	FormatDecimal("5", 3)     == "0.005"
func FormatDecimal(value string, decimals int) (string, error) {
	if err := checkDecimals(decimals); err != nil {
		return "", err
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 || strings.HasPrefix(value, "+") {
		return "", fmt.Errorf("%w: %q is not an unsigned integer", ErrInvalidInput, value)
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).StringFixed(int32(decimals)), nil
}

// ParseDecimal is the inverse of FormatDecimal: it returns the unsigned integer
// string that formats to s at the given number of decimals.
func ParseDecimal(s string, decimals int) (string, error) {
	if err := checkDecimals(decimals); err != nil {
		return "", err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("%w: %q is negative", ErrInvalidInput, s)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidInput, s, decimals)
	}
	return shifted.BigInt().String(), nil
}

func checkDecimals(decimals int) error {
	if decimals < 0 || decimals > MaxDecimals {
		return fmt.Errorf("%w: decimals %d outside [0, %d]", ErrInvalidInput, decimals, MaxDecimals)
	}
	return nil
}
