// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package money provides a fixed two-decimal amount type for balances,
// incomes and payments.
//
// Amounts are stored in SQLite as TEXT ("1234.50") so no precision is
// lost, and serialized to JSON as strings the same way. JSON input
// accepts either a string or a number.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places every amount is rounded to.
const Places = 2

// MaxDigits bounds the total number of digits, matching a DECIMAL(10,2) column.
const MaxDigits = 10

// ErrTooLarge is returned when an amount does not fit in MaxDigits.
var ErrTooLarge = errors.New("amount exceeds 10 digits")

// Amount is a monetary value rounded to two decimal places.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{d: decimal.Zero}

// New returns value rounded to two places.
func New(value decimal.Decimal) Amount {
	return Amount{d: value.Round(Places)}
}

// FromFloat builds an amount from a float, rounding half away from zero.
func FromFloat(f float64) Amount {
	return New(decimal.NewFromFloat(f))
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -Places)}
}

// Parse reads an amount such as "12.5", "-3", or "2311.43".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	a := New(d)
	if err := a.checkDigits(); err != nil {
		return Zero, err
	}
	return a, nil
}

// MustParse is Parse for constants and tests. Panics on bad input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) checkDigits() error {
	intPart := a.d.Abs().Truncate(0)
	if len(intPart.String()) > MaxDigits-Places {
		return ErrTooLarge
	}
	return nil
}

func (a Amount) Add(b Amount) Amount      { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount      { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) IsZero() bool             { return a.d.IsZero() }
func (a Amount) IsNegative() bool         { return a.d.IsNegative() }
func (a Amount) Cmp(b Amount) int         { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool      { return a.d.Equal(b.d) }
func (a Amount) Decimal() decimal.Decimal { return a.d }

// String renders the amount with exactly two decimals, e.g. "20.40".
func (a Amount) String() string {
	return a.d.StringFixed(Places)
}

// Display renders the amount for humans: "$2,311.43", "-$5.00".
func (a Amount) Display() string {
	s := a.d.Abs().StringFixed(Places)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if a.d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + "." + frac
}

// Sum adds a list of amounts.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// Encoding
// =============================================================================

// MarshalJSON encodes the amount as a string, "12.50".
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts "12.5" or 12.5.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = Zero
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores the amount as TEXT.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan reads TEXT, REAL or INTEGER columns.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Zero
		return nil
	case string:
		return a.scanString(v)
	case []byte:
		return a.scanString(string(v))
	case float64:
		*a = FromFloat(v)
		return nil
	case int64:
		*a = New(decimal.NewFromInt(v))
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

func (a *Amount) scanString(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("money: scan %q: %w", s, err)
	}
	*a = New(d)
	return nil
}
