// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command spendo runs the Spendo personal-finance API and its
// maintenance tasks.
//
// # Usage
//
//	spendo serve                       # start the HTTP API
//	spendo seed --users 5              # generate fake data
//	spendo db migrate                  # create missing tables
//	spendo db truncate --yes           # delete every row
//	spendo config init                 # write spendo.yaml with defaults
//
// # Environment Variables
//
//   - SPENDO_PORT, SPENDO_HOST: listen address (default: 0.0.0.0:8000)
//   - SPENDO_DB_PATH: SQLite file (default: data/spendo.db)
//   - OPENAI_API_KEY: enables the chat endpoints
//   - SPENDO_CHATKIT_WORKFLOW_ID: enables POST /api/chatkit/session
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
