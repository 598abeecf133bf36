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
	"time"

	"github.com/spendoapp/spendo/services/store"
)

// DetailResponse is the {"detail": ...} acknowledgement used by the auth
// and user endpoints.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// ErrorResponse is the {"error": ...} body of failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse lists failing fields by their JSON name.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// LoginResponse also returns the session token for bearer clients.
type LoginResponse struct {
	Detail    string    `json:"detail"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MeResponse is the body of GET /api/user/me.
type MeResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	Role        string `json:"role"`
}

func NewMeResponse(u *store.User) MeResponse {
	return MeResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		Role:        u.Role(),
	}
}

// UserAccountsResponse is the body of GET /api/users/:id/accounts.
type UserAccountsResponse struct {
	Accounts []store.Account      `json:"accounts"`
	Summary  store.BalanceSummary `json:"summary"`
}

// ClientSecretResponse carries a chat widget session secret.
type ClientSecretResponse struct {
	ClientSecret string `json:"client_secret"`
}

// StatusResponse is the {"status": ...} body of liveness checks.
type StatusResponse struct {
	Status string `json:"status"`
}
