// Package money holds monetary amounts as integer minor units tagged with a
// currency code. Arithmetic never goes through floating point.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnderflow        = errors.New("amount would become negative")
	ErrOverflow         = errors.New("amount out of range")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// Money is an amount in cents (1/100 of the currency unit).
type Money struct {
	Cents    int64
	Currency string
}

// New builds a Money value. The currency code is upper-cased.
func New(cents int64, currency string) Money {
	return Money{Cents: cents, Currency: normalizeCurrency(currency)}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return New(0, currency)
}

// Parse converts a decimal string such as "12.34", "-5" or "12,34" into Money.
// More than two fractional digits are rounded half away from zero.
//
// A lone comma is a decimal mark unless exactly three digits follow it:
// "1,000" could be one thousand or one, so it is rejected. Commas alongside a
// dot, or repeated in 3-digit groups ("1,000,000"), separate thousands.
func Parse(s, currency string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	switch {
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		parts := strings.Split(s, ",")
		switch {
		case len(parts) == 2 && len(parts[1]) != 3:
			s = parts[0] + "." + parts[1]
		case len(parts) > 2 && thousandsGroups(parts[1:]):
			s = strings.Join(parts, "")
		default:
			return Money{}, fmt.Errorf("%w: %q is ambiguous, use a dot as decimal mark", ErrInvalidAmount, s)
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d, currency)
}

// ParsePositive is Parse restricted to amounts strictly greater than zero.
func ParsePositive(s, currency string) (Money, error) {
	m, err := Parse(s, currency)
	if err != nil {
		return Money{}, err
	}
	if !m.IsPositive() {
		return Money{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return m, nil
}

// FromDecimal rounds d to cents.
func FromDecimal(d decimal.Decimal, currency string) (Money, error) {
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || cents.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return Money{}, ErrOverflow
	}
	return New(cents.IntPart(), currency), nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// Negate flips the sign. Used for outgoing ledger amounts. The most negative
// int64 has no positive counterpart and fails with ErrOverflow.
func (m Money) Negate() (Money, error) {
	if m.Cents == math.MinInt64 {
		return Money{}, ErrOverflow
	}
	return Money{Cents: -m.Cents, Currency: m.Currency}, nil
}

// Abs returns the absolute value, failing like Negate.
func (m Money) Abs() (Money, error) {
	if m.Cents < 0 {
		return m.Negate()
	}
	return m, nil
}

// Add returns a+b.
func Add(a, b Money) (Money, error) {
	if a.Currency != b.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	if (b.Cents > 0 && a.Cents > math.MaxInt64-b.Cents) ||
		(b.Cents < 0 && a.Cents < math.MinInt64-b.Cents) {
		return Money{}, ErrOverflow
	}
	return Money{Cents: a.Cents + b.Cents, Currency: a.Currency}, nil
}

// Subtract returns a-b and fails with ErrUnderflow when the result would be
// negative.
func Subtract(a, b Money) (Money, error) {
	if a.Currency != b.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	if b.Cents < 0 && a.Cents > math.MaxInt64+b.Cents {
		return Money{}, ErrOverflow
	}
	if a.Cents < b.Cents {
		return Money{}, ErrUnderflow
	}
	return Money{Cents: a.Cents - b.Cents, Currency: a.Currency}, nil
}

// Compare orders by currency code first, then by amount.
func Compare(a, b Money) int {
	if c := strings.Compare(a.Currency, b.Currency); c != 0 {
		return c
	}
	switch {
	case a.Cents < b.Cents:
		return -1
	case a.Cents > b.Cents:
		return 1
	}
	return 0
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(o Money) bool {
	return Compare(m, o) == 0
}

// String returns the plain decimal form, e.g. "-1234.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

var symbols = map[string]string{
	"USD":  "$",
	"USDC": "$",
	"EUR":  "€",
	"GBP":  "£",
	"CRC":  "₡",
	"JPY":  "¥",
}

// Symbol returns the display symbol for a currency code, or "" if unknown.
func Symbol(currency string) string {
	return symbols[normalizeCurrency(currency)]
}

// Format renders the amount for display: "$1,234.50", "-$5.00", "12.00 XYZ".
func (m Money) Format() string {
	abs := m.Decimal().Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(abs, ".")
	grouped := groupThousands(intPart) + "." + frac

	sign := ""
	if m.Cents < 0 {
		sign = "-"
	}
	if sym := Symbol(m.Currency); sym != "" {
		return sign + sym + grouped
	}
	if m.Currency == "" {
		return sign + grouped
	}
	return sign + grouped + " " + m.Currency
}

func thousandsGroups(groups []string) bool {
	for _, g := range groups {
		if len(g) != 3 || strings.Trim(g, "0123456789") != "" {
			return false
		}
	}
	return true
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

type wireMoney struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// MarshalJSON encodes as {"amount":"12.34","currency":"USD"}.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{Amount: m.String(), Currency: m.Currency})
}

// UnmarshalJSON accepts the amount as either a JSON string or number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var w wireMoney
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	v, err := FromDecimal(w.Amount, w.Currency)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
