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
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/services/api/datatypes"
)

// Pinger is satisfied by *store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth reports liveness. The database is pinged with a short
// timeout; a failed ping answers 503.
func HandleHealth(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			slog.Warn("health check: database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, datatypes.StatusResponse{Status: "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, datatypes.StatusResponse{Status: "ok"})
	}
}
