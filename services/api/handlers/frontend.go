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
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// HandleFrontend serves the built single-page app from dir. A path naming
// a regular file under dir is served as that file; any other path gets
// <dir>/index.html so client-side routes resolve. API paths and non-GET
// requests fall through to a JSON 404.
func HandleFrontend(dir string) gin.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			respondError(c, http.StatusNotFound, "Not found")
			return
		}
		if file, ok := staticFile(dir, c.Request.URL.Path); ok {
			c.File(file)
			return
		}
		if _, err := os.Stat(index); err != nil {
			respondError(c, http.StatusNotFound, "Frontend not built")
			return
		}
		c.File(index)
	}
}

// staticFile maps urlPath to a regular file under dir. Cleaning a rooted
// path drops any "..", so the result never escapes dir.
func staticFile(dir, urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	if clean == "/" {
		return "", false
	}
	file := filepath.Join(dir, filepath.FromSlash(clean))
	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return file, true
}
