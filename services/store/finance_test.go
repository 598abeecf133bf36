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
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendoapp/spendo/pkg/money"
)

func TestGetOrCreateLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inst, created, err := s.GetOrCreateInstitution(ctx, InstitutionSaving)
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := s.GetOrCreateInstitution(ctx, InstitutionSaving)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, inst.ID, again.ID)

	_, _, err = s.GetOrCreateInstitution(ctx, "crypto")
	assert.Error(t, err)

	it, created, err := s.GetOrCreateIncomeType(ctx, "Salary")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Salary", it.IncomeType)
	_, created, err = s.GetOrCreateIncomeType(ctx, "Salary")
	require.NoError(t, err)
	assert.False(t, created)

	tt, _, err := s.GetOrCreateTransactionType(ctx, "scheduled")
	require.NoError(t, err)
	assert.Equal(t, "scheduled", tt.Type)

	insts, err := s.ListInstitutions(ctx)
	require.NoError(t, err)
	assert.Len(t, insts, 1)
	types, err := s.ListIncomeTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 1)
	ttypes, err := s.ListTransactionTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, ttypes, 1)
}

func TestInstitutionType_Label(t *testing.T) {
	assert.Equal(t, "Cash", InstitutionCash.Label())
	assert.Equal(t, "Saving", InstitutionSaving.Label())
	assert.Equal(t, "Investing & Retirement", InstitutionInvestingRetirement.Label())
	assert.False(t, InstitutionType("gold").Valid())
}

func TestAccounts_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	cash, _, err := s.GetOrCreateInstitution(ctx, InstitutionCash)
	require.NoError(t, err)
	saving, _, err := s.GetOrCreateInstitution(ctx, InstitutionSaving)
	require.NoError(t, err)

	acct, err := s.CreateAccount(ctx, Account{Balance: money.MustParse("100.5"), InstitutionID: cash.ID, UserID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, "Account", acct.Name)
	assert.Equal(t, "100.50", acct.Balance.String())
	assert.Equal(t, InstitutionCash, acct.InstitutionType)

	_, err = s.GetAccount(ctx, bob.ID, acct.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	acct.Name = "Rainy day"
	acct.InstitutionID = saving.ID
	updated, err := s.UpdateAccount(ctx, *acct)
	require.NoError(t, err)
	assert.Equal(t, "Rainy day", updated.Name)
	assert.Equal(t, InstitutionSaving, updated.InstitutionType)

	stolen := *acct
	stolen.UserID = bob.ID
	_, err = s.UpdateAccount(ctx, stolen)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListAccounts(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.DeleteAccount(ctx, bob.ID, acct.ID), ErrNotFound)
	require.NoError(t, s.DeleteAccount(ctx, alice.ID, acct.ID))
	list, err = s.ListAccounts(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.CreateAccount(ctx, Account{InstitutionID: 999, UserID: alice.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBalanceSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "alice")

	for _, tc := range []struct {
		inst    InstitutionType
		balance string
	}{
		{InstitutionCash, "1000.10"},
		{InstitutionCash, "1311.33"},
		{InstitutionSaving, "500"},
		{InstitutionInvestingRetirement, "20000.01"},
	} {
		inst, _, err := s.GetOrCreateInstitution(ctx, tc.inst)
		require.NoError(t, err)
		_, err = s.CreateAccount(ctx, Account{Balance: money.MustParse(tc.balance), InstitutionID: inst.ID, UserID: u.ID})
		require.NoError(t, err)
	}

	sum, err := s.BalanceSummary(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2,311.43", sum.Cash.Display())
	assert.Equal(t, "500.00", sum.Savings.String())
	assert.Equal(t, "20000.01", sum.InvestingRetirement.String())
	assert.Equal(t, "22811.44", sum.Total.String())
	assert.Equal(t, 4, sum.Accounts)

	empty, err := s.BalanceSummary(ctx, 999)
	require.NoError(t, err)
	assert.True(t, empty.Total.IsZero())
	assert.Zero(t, empty.Accounts)
}

func TestIncomes_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "alice")
	it, _, err := s.GetOrCreateIncomeType(ctx, "Salary")
	require.NoError(t, err)

	march, err := ParseDate("2025-03-31")
	require.NoError(t, err)

	in, err := s.CreateIncome(ctx, Income{Name: "Paycheck", Amount: money.MustParse("2500"), IncomeTypeID: it.ID, UserID: u.ID, IncomeDate: march})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-31", in.IncomeDate.String())

	undated, err := s.CreateIncome(ctx, Income{Name: "Bonus", Amount: money.MustParse("10"), IncomeTypeID: it.ID, UserID: u.ID})
	require.NoError(t, err)
	assert.False(t, undated.IncomeDate.IsZero())

	list, err := s.ListIncomes(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, undated.ID, list[0].ID)

	in.Amount = money.MustParse("2600")
	updated, err := s.UpdateIncome(ctx, *in)
	require.NoError(t, err)
	assert.Equal(t, "2600.00", updated.Amount.String())

	require.NoError(t, s.DeleteIncome(ctx, u.ID, in.ID))
	_, err = s.GetIncome(ctx, u.ID, in.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactions_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	tt, _, err := s.GetOrCreateTransactionType(ctx, "one-time")
	require.NoError(t, err)
	inst, _, err := s.GetOrCreateInstitution(ctx, InstitutionCash)
	require.NoError(t, err)
	acct, err := s.CreateAccount(ctx, Account{InstitutionID: inst.ID, UserID: alice.ID})
	require.NoError(t, err)
	bobAcct, err := s.CreateAccount(ctx, Account{InstitutionID: inst.ID, UserID: bob.ID})
	require.NoError(t, err)

	note := "weekly shop"
	day, err := ParseDate("2025-04-02")
	require.NoError(t, err)
	txn, err := s.CreateTransaction(ctx, Transaction{
		Name:              "Walmart",
		Payment:           money.MustParse("42.10"),
		TransactionDate:   &day,
		Note:              &note,
		UserID:            alice.ID,
		AccountID:         &acct.ID,
		TransactionTypeID: tt.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, txn.TransactionDate)
	assert.Equal(t, "2025-04-02", txn.TransactionDate.String())
	require.NotNil(t, txn.AccountID)
	assert.Equal(t, acct.ID, *txn.AccountID)

	_, err = s.CreateTransaction(ctx, Transaction{Name: "Sneaky", UserID: alice.ID, AccountID: &bobAcct.ID, TransactionTypeID: tt.ID})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateTransaction(ctx, Transaction{UserID: alice.ID, TransactionTypeID: tt.ID})
	assert.Error(t, err)

	txn.AccountID = nil
	txn.TransactionDate = nil
	txn.Recurring = true
	updated, err := s.UpdateTransaction(ctx, *txn)
	require.NoError(t, err)
	assert.Nil(t, updated.AccountID)
	assert.Nil(t, updated.TransactionDate)
	assert.True(t, updated.Recurring)

	list, err := s.ListTransactions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteTransaction(ctx, alice.ID, txn.ID))
	assert.ErrorIs(t, s.DeleteTransaction(ctx, alice.ID, txn.ID), ErrNotFound)
}

func TestDeleteAccount_CascadesTransactions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "alice")
	tt, _, err := s.GetOrCreateTransactionType(ctx, "scheduled")
	require.NoError(t, err)
	inst, _, err := s.GetOrCreateInstitution(ctx, InstitutionCash)
	require.NoError(t, err)
	acct, err := s.CreateAccount(ctx, Account{InstitutionID: inst.ID, UserID: u.ID})
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, Transaction{Name: "Rent", UserID: u.ID, AccountID: &acct.ID, TransactionTypeID: tt.ID})
	require.NoError(t, err)

	require.NoError(t, s.DeleteAccount(ctx, u.ID, acct.ID))
	list, err := s.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDate_JSON(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2025-01-15"`), &d))
	assert.Equal(t, 15, d.Day())

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-15"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`"15/01/2025"`), &d))
}
