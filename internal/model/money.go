package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-precision monetary value with a currency tag. The amount
// is rounded to two decimal places once, at construction, using
// round-half-away-from-zero semantics, so repeated arithmetic cannot
// accumulate sub-cent drift. Money values are immutable; every operation
// returns a new value.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates a Money value from a decimal amount and an ISO currency
// code. The currency code is upper-cased.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{
		amount:   amount.Round(2),
		currency: strings.ToUpper(strings.TrimSpace(currency)),
	}
}

// NewMoneyFromString parses a decimal string (e.g. "12.50") into Money.
func NewMoneyFromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(d, currency), nil
}

// NewMoneyFromFloat creates Money from a float64 amount.
func NewMoneyFromFloat(amount float64, currency string) Money {
	return NewMoney(decimal.NewFromFloat(amount), currency)
}

// NewMoneyFromCents creates Money from an integer amount of minor units,
// the representation payment gateways report captured amounts in.
func NewMoneyFromCents(cents int64, currency string) Money {
	return NewMoney(decimal.New(cents, -2), currency)
}

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money {
	return NewMoney(decimal.Zero, currency)
}

// Amount returns the rounded decimal amount.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the ISO currency code.
func (m Money) Currency() string {
	return m.currency
}

// Cents returns the amount in minor units.
func (m Money) Cents() int64 {
	return m.amount.Mul(decimal.New(100, 0)).IntPart()
}

// Add returns m + other. Fails with ErrCurrencyMismatch when the currencies
// differ.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, ErrCurrencyMismatch
	}
	return NewMoney(m.amount.Add(other.amount), m.currency), nil
}

// Subtract returns m - other. Fails with ErrCurrencyMismatch when the
// currencies differ.
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, ErrCurrencyMismatch
	}
	return NewMoney(m.amount.Sub(other.amount), m.currency), nil
}

// Multiply returns m scaled by an integer factor.
func (m Money) Multiply(factor int) Money {
	return NewMoney(m.amount.Mul(decimal.NewFromInt(int64(factor))), m.currency)
}

// MultiplyRate returns m scaled by a decimal rate, rounded back to cents.
// Used for tax computation.
func (m Money) MultiplyRate(rate decimal.Decimal) Money {
	return NewMoney(m.amount.Mul(rate), m.currency)
}

// Equals reports whether both amount and currency match.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Cmp compares two Money values of the same currency. It returns -1, 0 or 1.
func (m Money) Cmp(other Money) (int, error) {
	if m.currency != other.currency {
		return 0, ErrCurrencyMismatch
	}
	return m.amount.Cmp(other.amount), nil
}

// LessThan reports whether m < other.
func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c < 0, err
}

// GreaterThan reports whether m > other.
func (m Money) GreaterThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c > 0, err
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// String renders the value as "12.50 EUR".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

// AmountString renders just the amount with two decimal places, the form the
// repositories persist.
func (m Money) AmountString() string {
	return m.amount.StringFixed(2)
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON renders Money as {"amount": "12.50", "currency": "EUR"}. The
// amount is a string so clients never touch it as a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.AmountString(), Currency: m.currency})
}

// UnmarshalJSON parses the wire form produced by MarshalJSON.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMoneyFromString(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
