// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendoapp/spendo/pkg/money"
)

func bindJSON(t *testing.T, body string, obj any) error {
	t.Helper()
	RegisterValidators()
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return binding.JSON.Bind(req, obj)
}

func TestCreateUserRequest_Valid(t *testing.T) {
	var req CreateUserRequest
	err := bindJSON(t, `{"username":" ada.l ","email":"ada@example.com","password":"correct horse"}`, &req)
	require.NoError(t, err)

	nu := req.ToNewUser()
	assert.Equal(t, "ada.l", nu.Username)
	assert.Equal(t, "ada@example.com", nu.Email)
	assert.False(t, nu.IsStaff)
}

func TestCreateUserRequest_FieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing username", `{"email":"a@b.co","password":"password1"}`, "username"},
		{"bad username", `{"username":"has space","email":"a@b.co","password":"password1"}`, "username"},
		{"bad email", `{"username":"ada","email":"nope","password":"password1"}`, "email"},
		{"short password", `{"username":"ada","email":"a@b.co","password":"short"}`, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CreateUserRequest
			err := bindJSON(t, tt.body, &req)
			require.Error(t, err)

			fields, ok := FieldErrors(err)
			require.True(t, ok)
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestFieldErrors_NotValidation(t *testing.T) {
	var req CreateUserRequest
	err := bindJSON(t, `{"username":`, &req)
	require.Error(t, err)

	_, ok := FieldErrors(err)
	assert.False(t, ok)
}

func TestTransactionRequest_ToTransaction(t *testing.T) {
	var req TransactionRequest
	err := bindJSON(t, `{"name":"Rent","payment":"1200.50","transaction_date":"2025-02-01","recurring":true,"account":3,"transactiontype":2}`, &req)
	require.NoError(t, err)

	tx := req.ToTransaction(9)
	assert.Equal(t, int64(9), tx.UserID)
	assert.True(t, tx.Payment.Equal(money.MustParse("1200.50")))
	require.NotNil(t, tx.TransactionDate)
	assert.Equal(t, "2025-02-01", tx.TransactionDate.String())
	require.NotNil(t, tx.AccountID)
	assert.Equal(t, int64(3), *tx.AccountID)
	assert.True(t, tx.Recurring)
}

func TestTransactionRequest_RequiresType(t *testing.T) {
	var req TransactionRequest
	err := bindJSON(t, `{"name":"Coffee","payment":4.5}`, &req)
	require.Error(t, err)

	fields, ok := FieldErrors(err)
	require.True(t, ok)
	assert.Contains(t, fields, "transactiontype")
}

func TestIncomeRequest_DefaultsDate(t *testing.T) {
	var req IncomeRequest
	err := bindJSON(t, `{"name":"Salary","amount":"2500","incometype":1}`, &req)
	require.NoError(t, err)

	in := req.ToIncome(4)
	assert.True(t, in.IncomeDate.IsZero())
	assert.Equal(t, int64(1), in.IncomeTypeID)
}

func TestAccountRequest_RequiresInstitution(t *testing.T) {
	var req AccountRequest
	err := bindJSON(t, `{"name":"Checking","balance":"10.00"}`, &req)
	require.Error(t, err)

	fields, ok := FieldErrors(err)
	require.True(t, ok)
	assert.Equal(t, "This field is required.", fields["institution"])
}
