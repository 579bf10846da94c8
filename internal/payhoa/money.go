package payhoa

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is a monetary amount in integer cents. Comparisons and sums are
// plain integer arithmetic; the upstream API speaks cents as well, so
// values survive the round trip exactly.
type Cents int64

// Abs returns the magnitude of the amount.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// Dollars renders the amount as a plain decimal dollar string, e.g.
// "23017.77" or "-2.00".
func (c Cents) Dollars() string {
	return decimal.New(int64(c), -2).StringFixed(2)
}

// String renders the amount with a currency symbol, e.g. "$23017.77" or
// "-$2.00".
func (c Cents) String() string {
	if c < 0 {
		return "-$" + (-c).Dollars()
	}
	return "$" + c.Dollars()
}

// ParseDollars converts a dollar string such as "150", "1,234.56" or
// "-$2.00" into cents. Amounts with sub-cent precision are rejected rather
// than rounded.
func ParseDollars(s string) (Cents, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	if cleaned == "" {
		return 0, fmt.Errorf("parse dollar amount %q: empty value", s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parse dollar amount %q: %w", s, err)
	}
	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, fmt.Errorf("parse dollar amount %q: sub-cent precision", s)
	}
	whole := cents.IntPart()
	if !decimal.NewFromInt(whole).Equal(cents) {
		return 0, fmt.Errorf("parse dollar amount %q: value out of range", s)
	}
	return Cents(whole), nil
}
