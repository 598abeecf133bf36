// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/store"
)

// All finance handlers are mounted behind RequireAuth and only ever touch
// the authenticated user's rows. A row owned by someone else is reported
// as not found.

// =============================================================================
// Accounts
// =============================================================================

func HandleListAccounts(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		accounts, err := s.ListAccounts(c.Request.Context(), user.ID)
		if err != nil {
			respondStoreError(c, err, "Account")
			return
		}
		c.JSON(http.StatusOK, nonNil(accounts))
	}
}

func HandleCreateAccount(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		user := middleware.CurrentUser(c)
		account, err := s.CreateAccount(c.Request.Context(), req.ToAccount(user.ID))
		if err != nil {
			respondStoreError(c, err, "Institution")
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

func HandleGetAccount(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		account, err := s.GetAccount(c.Request.Context(), middleware.CurrentUser(c).ID, id)
		if err != nil {
			respondStoreError(c, err, "Account")
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func HandleUpdateAccount(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req datatypes.AccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		a := req.ToAccount(middleware.CurrentUser(c).ID)
		a.ID = id
		account, err := s.UpdateAccount(c.Request.Context(), a)
		if err != nil {
			respondStoreError(c, err, "Account")
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func HandleDeleteAccount(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := s.DeleteAccount(c.Request.Context(), middleware.CurrentUser(c).ID, id); err != nil {
			respondStoreError(c, err, "Account")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// HandleBalanceSummary totals the user's balances by institution type.
func HandleBalanceSummary(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := s.BalanceSummary(c.Request.Context(), middleware.CurrentUser(c).ID)
		if err != nil {
			respondStoreError(c, err, "Account")
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// =============================================================================
// Incomes
// =============================================================================

func HandleListIncomes(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		incomes, err := s.ListIncomes(c.Request.Context(), middleware.CurrentUser(c).ID)
		if err != nil {
			respondStoreError(c, err, "Income")
			return
		}
		c.JSON(http.StatusOK, nonNil(incomes))
	}
}

func HandleCreateIncome(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.IncomeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		income, err := s.CreateIncome(c.Request.Context(), req.ToIncome(middleware.CurrentUser(c).ID))
		if err != nil {
			respondStoreError(c, err, "Income type")
			return
		}
		c.JSON(http.StatusCreated, income)
	}
}

func HandleGetIncome(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		income, err := s.GetIncome(c.Request.Context(), middleware.CurrentUser(c).ID, id)
		if err != nil {
			respondStoreError(c, err, "Income")
			return
		}
		c.JSON(http.StatusOK, income)
	}
}

func HandleUpdateIncome(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req datatypes.IncomeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		in := req.ToIncome(middleware.CurrentUser(c).ID)
		in.ID = id
		income, err := s.UpdateIncome(c.Request.Context(), in)
		if err != nil {
			respondStoreError(c, err, "Income")
			return
		}
		c.JSON(http.StatusOK, income)
	}
}

func HandleDeleteIncome(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := s.DeleteIncome(c.Request.Context(), middleware.CurrentUser(c).ID, id); err != nil {
			respondStoreError(c, err, "Income")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// =============================================================================
// Transactions
// =============================================================================

func HandleListTransactions(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := s.ListTransactions(c.Request.Context(), middleware.CurrentUser(c).ID)
		if err != nil {
			respondStoreError(c, err, "Transaction")
			return
		}
		c.JSON(http.StatusOK, nonNil(txs))
	}
}

func HandleCreateTransaction(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		tx, err := s.CreateTransaction(c.Request.Context(), req.ToTransaction(middleware.CurrentUser(c).ID))
		if err != nil {
			respondStoreError(c, err, "Account or transaction type")
			return
		}
		c.JSON(http.StatusCreated, tx)
	}
}

func HandleGetTransaction(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		tx, err := s.GetTransaction(c.Request.Context(), middleware.CurrentUser(c).ID, id)
		if err != nil {
			respondStoreError(c, err, "Transaction")
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

func HandleUpdateTransaction(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req datatypes.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		t := req.ToTransaction(middleware.CurrentUser(c).ID)
		t.ID = id
		tx, err := s.UpdateTransaction(c.Request.Context(), t)
		if err != nil {
			respondStoreError(c, err, "Transaction")
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

func HandleDeleteTransaction(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := s.DeleteTransaction(c.Request.Context(), middleware.CurrentUser(c).ID, id); err != nil {
			respondStoreError(c, err, "Transaction")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// =============================================================================
// Lookups
// =============================================================================

func HandleListInstitutions(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.ListInstitutions(c.Request.Context())
		if err != nil {
			respondStoreError(c, err, "Institution")
			return
		}
		c.JSON(http.StatusOK, nonNil(out))
	}
}

func HandleListIncomeTypes(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.ListIncomeTypes(c.Request.Context())
		if err != nil {
			respondStoreError(c, err, "Income type")
			return
		}
		c.JSON(http.StatusOK, nonNil(out))
	}
}

func HandleListTransactionTypes(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.ListTransactionTypes(c.Request.Context())
		if err != nil {
			respondStoreError(c, err, "Transaction type")
			return
		}
		c.JSON(http.StatusOK, nonNil(out))
	}
}

// nonNil makes empty lists encode as [] instead of null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
