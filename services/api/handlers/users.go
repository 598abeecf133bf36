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
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/store"
)

// HandleListUsers lists users, optionally filtered by ?email=. An empty
// result is the JSON string "No users found".
func HandleListUsers(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.ListUsers(c.Request.Context(), strings.TrimSpace(c.Query("email")))
		if err != nil {
			respondStoreError(c, err, "User")
			return
		}
		if len(users) == 0 {
			c.JSON(http.StatusOK, "No users found")
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// HandleGetUser returns the user named by :username.
func HandleGetUser(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.GetUserByUsername(c.Request.Context(), c.Param("username"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(c, http.StatusNotFound, "User not found")
				return
			}
			respondStoreError(c, err, "User")
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// HandleCreateUser registers a new user.
//
// # Outputs
//
//   - 201 {"detail":"User created successfully"}
//   - 400 with per-field messages for invalid input
//   - 409 when the username is taken
func HandleCreateUser(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		user, err := s.CreateUser(c.Request.Context(), req.ToNewUser())
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				c.JSON(http.StatusConflict, datatypes.ValidationErrorResponse{
					Error:  "User already exists",
					Fields: map[string]string{"username": "A user with that username already exists."},
				})
				return
			}
			respondStoreError(c, err, "User")
			return
		}

		slog.Info("user created", "user_id", user.ID)
		c.JSON(http.StatusCreated, datatypes.DetailResponse{Detail: "User created successfully"})
	}
}

// HandleUserAccounts returns the accounts of user :id with a balance
// summary. Callers may only read their own accounts unless they are staff.
// A user without accounts gets the JSON string
// "No accounts found for logged in User".
func HandleUserAccounts(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		caller := middleware.CurrentUser(c)
		if caller == nil {
			c.JSON(http.StatusUnauthorized, datatypes.DetailResponse{Detail: "Authentication credentials were not provided."})
			return
		}
		if caller.ID != id && !caller.IsStaff && !caller.IsSuperuser {
			c.JSON(http.StatusForbidden, datatypes.DetailResponse{Detail: "You do not have permission to perform this action."})
			return
		}

		ctx := c.Request.Context()
		accounts, err := s.ListAccounts(ctx, id)
		if err != nil {
			respondStoreError(c, err, "Account")
			return
		}
		if len(accounts) == 0 {
			c.JSON(http.StatusOK, "No accounts found for logged in User")
			return
		}
		summary, err := s.BalanceSummary(ctx, id)
		if err != nil {
			respondStoreError(c, err, "Account")
			return
		}
		c.JSON(http.StatusOK, datatypes.UserAccountsResponse{Accounts: accounts, Summary: *summary})
	}
}
