// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers of the Spendo HTTP API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/store"
)

// respondError writes {"error": msg} with status.
func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, datatypes.ErrorResponse{Error: msg})
}

// respondBindError reports a failed ShouldBindJSON. Validation failures
// list the offending fields; anything else is a malformed body.
func respondBindError(c *gin.Context, err error) {
	if fields, ok := datatypes.FieldErrors(err); ok {
		c.JSON(http.StatusBadRequest, datatypes.ValidationErrorResponse{
			Error:  "Invalid request body",
			Fields: fields,
		})
		return
	}
	respondError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
}

// respondStoreError maps store sentinels to statuses. Unexpected errors
// are logged and reported as 500 without detail.
func respondStoreError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrConflict):
		respondError(c, http.StatusConflict, what+" already exists")
	default:
		slog.Error("store operation failed", "resource", what, "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}

// pathID parses the :id parameter. On failure it writes 400 and returns
// false.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}
