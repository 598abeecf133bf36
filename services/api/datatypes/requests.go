// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the request and response bodies of the Spendo
// HTTP API. Request types carry gin binding tags, which are checked by
// go-playground/validator when the handler binds the body.
package datatypes

import (
	"encoding/json"
	"strings"

	"github.com/spendoapp/spendo/pkg/money"
	"github.com/spendoapp/spendo/services/store"
)

// =============================================================================
// Auth & Users
// =============================================================================

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateUserRequest is the body of POST /api/customuser.
type CreateUserRequest struct {
	Username   string  `json:"username" binding:"required,username"`
	Email      string  `json:"email" binding:"required,email"`
	Password   string  `json:"password" binding:"required,min=8,max=128"`
	FirstName  string  `json:"first_name" binding:"max=150"`
	LastName   string  `json:"last_name" binding:"max=150"`
	Occupation *string `json:"occupation" binding:"omitempty,max=500"`
}

// ToNewUser converts the request for the store.
func (r CreateUserRequest) ToNewUser() store.NewUser {
	return store.NewUser{
		Username:   strings.TrimSpace(r.Username),
		Email:      strings.TrimSpace(r.Email),
		Password:   r.Password,
		FirstName:  strings.TrimSpace(r.FirstName),
		LastName:   strings.TrimSpace(r.LastName),
		Occupation: r.Occupation,
	}
}

// ChatKitSessionRequest is the optional body of POST /api/chatkit/session.
// UserID accepts a JSON number or a numeric string.
type ChatKitSessionRequest struct {
	UserID json.Number `json:"user_id"`
}

// =============================================================================
// Finance
// =============================================================================

// AccountRequest creates or replaces an account.
type AccountRequest struct {
	Name          string       `json:"name" binding:"max=255"`
	Balance       money.Amount `json:"balance"`
	InstitutionID int64        `json:"institution" binding:"required,gt=0"`
}

func (r AccountRequest) ToAccount(userID int64) store.Account {
	return store.Account{
		Name:          strings.TrimSpace(r.Name),
		Balance:       r.Balance,
		InstitutionID: r.InstitutionID,
		UserID:        userID,
	}
}

// IncomeRequest creates or replaces an income. A missing income_date
// means today.
type IncomeRequest struct {
	Name         string       `json:"name" binding:"required,max=255"`
	Amount       money.Amount `json:"amount"`
	IncomeTypeID int64        `json:"incometype" binding:"required,gt=0"`
	IncomeDate   *store.Date  `json:"income_date"`
}

func (r IncomeRequest) ToIncome(userID int64) store.Income {
	in := store.Income{
		Name:         strings.TrimSpace(r.Name),
		Amount:       r.Amount,
		IncomeTypeID: r.IncomeTypeID,
		UserID:       userID,
	}
	if r.IncomeDate != nil {
		in.IncomeDate = *r.IncomeDate
	}
	return in
}

// TransactionRequest creates or replaces a transaction.
type TransactionRequest struct {
	Name              string       `json:"name" binding:"required,max=255"`
	Payment           money.Amount `json:"payment"`
	TransactionDate   *store.Date  `json:"transaction_date"`
	Recurring         bool         `json:"recurring"`
	Note              *string      `json:"note" binding:"omitempty,max=2000"`
	AccountID         *int64       `json:"account" binding:"omitempty,gt=0"`
	TransactionTypeID int64        `json:"transactiontype" binding:"required,gt=0"`
}

func (r TransactionRequest) ToTransaction(userID int64) store.Transaction {
	return store.Transaction{
		Name:              strings.TrimSpace(r.Name),
		Payment:           r.Payment,
		TransactionDate:   r.TransactionDate,
		Recurring:         r.Recurring,
		Note:              r.Note,
		UserID:            userID,
		AccountID:         r.AccountID,
		TransactionTypeID: r.TransactionTypeID,
	}
}
