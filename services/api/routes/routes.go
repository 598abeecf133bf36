// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/services/api/handlers"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/api/observability"
	"github.com/spendoapp/spendo/services/store"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	// Store is required.
	Store *store.Store

	// Chat serves the chat protocol. nil leaves the chat routes out.
	Chat handlers.ChatProcessor

	// Sessions mints chat widget secrets. nil answers 503.
	Sessions handlers.SessionCreator

	// Metrics defaults to a fresh registry.
	Metrics *observability.Metrics

	// RateLimiter guards the chat routes. nil disables limiting.
	RateLimiter *middleware.RateLimiter

	Session   handlers.SessionConfig
	KeepAlive time.Duration

	// FrontendDir holds the built single-page app. Empty disables it.
	FrontendDir string
}

// SetupRoutes registers every route on router. Authentication runs for
// all /api routes; handlers that need a user are grouped behind
// RequireAuth.
func SetupRoutes(router *gin.Engine, deps Deps) {
	if deps.Store == nil {
		panic("routes: Store is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics()
	}
	s := deps.Store

	router.GET("/health", handlers.HandleHealth(s))
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := router.Group("/api", middleware.Authenticate(s))
	{
		api.POST("/login", handlers.HandleLogin(s, deps.Session))
		api.POST("/logout", handlers.HandleLogout(s, deps.Session))

		api.GET("/customusers", handlers.HandleListUsers(s))
		api.GET("/customuser/:username", handlers.HandleGetUser(s))
		api.POST("/customuser", handlers.HandleCreateUser(s))

		api.GET("/institutions", handlers.HandleListInstitutions(s))
		api.GET("/income-types", handlers.HandleListIncomeTypes(s))
		api.GET("/transaction-types", handlers.HandleListTransactionTypes(s))

		authed := api.Group("", middleware.RequireAuth())
		{
			authed.GET("/user/me", handlers.HandleMe())
			authed.GET("/users/:id/accounts", handlers.HandleUserAccounts(s))

			authed.GET("/accounts", handlers.HandleListAccounts(s))
			authed.POST("/accounts", handlers.HandleCreateAccount(s))
			authed.GET("/balances", handlers.HandleBalanceSummary(s))
			authed.GET("/accounts/:id", handlers.HandleGetAccount(s))
			authed.PUT("/accounts/:id", handlers.HandleUpdateAccount(s))
			authed.DELETE("/accounts/:id", handlers.HandleDeleteAccount(s))

			authed.GET("/incomes", handlers.HandleListIncomes(s))
			authed.POST("/incomes", handlers.HandleCreateIncome(s))
			authed.GET("/incomes/:id", handlers.HandleGetIncome(s))
			authed.PUT("/incomes/:id", handlers.HandleUpdateIncome(s))
			authed.DELETE("/incomes/:id", handlers.HandleDeleteIncome(s))

			authed.GET("/transactions", handlers.HandleListTransactions(s))
			authed.POST("/transactions", handlers.HandleCreateTransaction(s))
			authed.GET("/transactions/:id", handlers.HandleGetTransaction(s))
			authed.PUT("/transactions/:id", handlers.HandleUpdateTransaction(s))
			authed.DELETE("/transactions/:id", handlers.HandleDeleteTransaction(s))
		}

		chat := api.Group("/chatkit")
		if deps.RateLimiter != nil {
			chat.Use(deps.RateLimiter.Middleware())
		}
		{
			chat.POST("/session", handlers.HandleChatKitSession(deps.Sessions, s))
			if deps.Chat != nil {
				chat.Any("", handlers.HandleChatKit(deps.Chat, deps.Metrics, deps.KeepAlive))
				chat.GET("/ws", handlers.HandleChatKitWebSocket(deps.Chat, deps.Metrics))
			}
		}
	}

	if deps.FrontendDir != "" {
		frontend := handlers.HandleFrontend(deps.FrontendDir)
		router.GET("/", frontend)
		router.NoRoute(frontend)
	}
}
