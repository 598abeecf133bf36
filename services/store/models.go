// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spendoapp/spendo/pkg/money"
)

// =============================================================================
// Users
// =============================================================================

// User is a Spendo account holder. PasswordHash never leaves the store
// through JSON.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	Occupation   *string    `json:"occupation"`
	IsStaff      bool       `json:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser"`
	IsActive     bool       `json:"is_active"`
	DateJoined   time.Time  `json:"date_joined"`
	LastLogin    *time.Time `json:"last_login"`
}

// Role is "admin" for staff or superusers and "user" otherwise.
func (u *User) Role() string {
	if u.IsStaff || u.IsSuperuser {
		return "admin"
	}
	return "user"
}

// NewUser carries the fields needed to create a user.
type NewUser struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Occupation  *string
	IsStaff     bool
	IsSuperuser bool
}

// =============================================================================
// Sessions
// =============================================================================

// WebSession is a server-side login session keyed by an opaque token.
type WebSession struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ChatKitUserSession marks a user as currently logged in for chat identity.
type ChatKitUserSession struct {
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// Finance
// =============================================================================

// InstitutionType classifies accounts.
type InstitutionType string

const (
	InstitutionCash                InstitutionType = "cash"
	InstitutionSaving              InstitutionType = "saving"
	InstitutionInvestingRetirement InstitutionType = "investing_retirement"
)

// InstitutionTypes lists every valid type in display order.
var InstitutionTypes = []InstitutionType{
	InstitutionCash,
	InstitutionSaving,
	InstitutionInvestingRetirement,
}

// Label returns the human readable name.
func (t InstitutionType) Label() string {
	switch t {
	case InstitutionCash:
		return "Cash"
	case InstitutionSaving:
		return "Saving"
	case InstitutionInvestingRetirement:
		return "Investing & Retirement"
	default:
		return string(t)
	}
}

// Valid reports whether t is one of InstitutionTypes.
func (t InstitutionType) Valid() bool {
	for _, v := range InstitutionTypes {
		if t == v {
			return true
		}
	}
	return false
}

type Institution struct {
	ID   int64           `json:"id"`
	Type InstitutionType `json:"type"`
}

type IncomeType struct {
	ID         int64     `json:"id"`
	IncomeType string    `json:"income_type"`
	CreatedAt  time.Time `json:"created_at"`
}

type TransactionType struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type Income struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Amount       money.Amount `json:"amount"`
	IncomeTypeID int64        `json:"incometype"`
	UserID       int64        `json:"user"`
	IncomeDate   Date         `json:"income_date"`
	CreatedAt    time.Time    `json:"created_at"`
}

type Account struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Balance       money.Amount `json:"balance"`
	InstitutionID int64        `json:"institution"`
	UserID        int64        `json:"user"`
	CreatedAt     time.Time    `json:"created_at"`

	// InstitutionType is joined in on reads.
	InstitutionType InstitutionType `json:"institution_type,omitempty"`
}

type Transaction struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	Payment           money.Amount `json:"payment"`
	TransactionDate   *Date        `json:"transaction_date"`
	Recurring         bool         `json:"recurring"`
	Note              *string      `json:"note"`
	UserID            int64        `json:"user"`
	AccountID         *int64       `json:"account"`
	TransactionTypeID int64        `json:"transactiontype"`
	CreatedAt         time.Time    `json:"created_at"`
}

// BalanceSummary totals a user's account balances per institution type.
type BalanceSummary struct {
	Cash                money.Amount `json:"cash_balance"`
	Savings             money.Amount `json:"savings_balance"`
	InvestingRetirement money.Amount `json:"investing_retirement"`
	Total               money.Amount `json:"total"`
	Accounts            int          `json:"accounts"`
}

// add folds one account into the summary.
func (b *BalanceSummary) add(t InstitutionType, balance money.Amount) {
	switch t {
	case InstitutionCash:
		b.Cash = b.Cash.Add(balance)
	case InstitutionSaving:
		b.Savings = b.Savings.Add(balance)
	case InstitutionInvestingRetirement:
		b.InvestingRetirement = b.InvestingRetirement.Add(balance)
	}
	b.Total = b.Total.Add(balance)
	b.Accounts++
}

// =============================================================================
// Date
// =============================================================================

// dateLayout is the wire and storage format of Date.
const dateLayout = "2006-01-02"

// Date is a calendar day without time of day, "2025-03-31" on the wire.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate reads "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
	case []byte:
		return d.Scan(string(v))
	case time.Time:
		*d = NewDate(v)
	default:
		return fmt.Errorf("store: cannot scan %T into Date", src)
	}
	return nil
}
