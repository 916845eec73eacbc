// Package core provides the expense domain: types, validation, money
// handling and the month-over-month comparison policy.
//
// This file contains money parsing and conversion between decimal amounts
// and the integer cents used for storage.
package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a currency amount with two decimal places.
type Money struct {
	decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{Decimal: decimal.Zero}

// MaxAmount is the largest amount a single expense may carry, the range of a
// DECIMAL(10,2) column.
var MaxAmount = Money{Decimal: decimal.New(9999999999, -2)}

const (
	maxIntegerDigits = 8
	maxScale         = 32

	// 40 decimal digits need at most 133 bits.
	maxCoefficientBits = 133
)

// MoneyFromCents converts stored cents to Money.
func MoneyFromCents(cents int64) Money {
	return Money{Decimal: decimal.New(cents, -2)}
}

// MustParseMoney is ParseMoney for literals in tests and fixtures.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMoney converts a decimal string to Money with half-up rounding to cents.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. The
// result must be strictly positive and no larger than MaxAmount.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,345") -> 12.35
//	ParseMoney("0.004")  -> ErrInvalidAmount
//	ParseMoney("1e9")    -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := checkMagnitude(d); err != nil {
		return Money{}, err
	}
	m := Money{Decimal: d.Round(2)}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// checkMagnitude rejects values whose integer part is wider than MaxAmount or
// whose exponent is out of range. It never rescales d, so an exponent literal
// such as 1e5000000 is refused without building the full number.
func checkMagnitude(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp > maxIntegerDigits || exp < -maxScale {
		return fmt.Errorf("%w: exponent %d out of range", ErrInvalidAmount, exp)
	}
	if d.IsZero() {
		return nil
	}
	if d.Coefficient().BitLen() > maxCoefficientBits {
		return fmt.Errorf("%w: too many digits", ErrInvalidAmount)
	}
	if int64(d.NumDigits())+exp > maxIntegerDigits {
		return fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, MaxAmount)
	}
	return nil
}

// Validate requires a strictly positive amount no larger than MaxAmount.
func (m Money) Validate() error {
	if err := checkMagnitude(m.Decimal); err != nil {
		return err
	}
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	if m.GreaterThan(MaxAmount.Decimal) {
		return fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, MaxAmount)
	}
	return nil
}

// Cents returns the amount in integer cents, rounding half away from zero.
func (m Money) Cents() int64 {
	return m.Round(2).Shift(2).IntPart()
}

func (m Money) Plus(o Money) Money {
	return Money{Decimal: m.Add(o.Decimal)}
}

func (m Money) Minus(o Money) Money {
	return Money{Decimal: m.Sub(o.Decimal)}
}

// String renders the amount with exactly two decimals, e.g. "12.50".
func (m Money) String() string {
	return m.StringFixed(2)
}

// MarshalJSON emits a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string. null leaves zero.
// Values outside the range checkMagnitude allows are rejected before rounding.
func (m *Money) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		m.Decimal = decimal.Zero
		return nil
	}
	var raw json.Number
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ErrInvalidAmount
		}
		raw = json.Number(s)
	} else if err := json.Unmarshal(b, &raw); err != nil {
		return ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw.String())
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, raw.String())
	}
	if err := checkMagnitude(d); err != nil {
		return err
	}
	m.Decimal = d.Round(2)
	return nil
}
