// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines optional hooks the API calls into.
//
// The open source build ships no-op or log-backed implementations. A
// deployment that needs more, such as a compliance audit sink, provides
// its own implementation and wires it in at startup.
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// Options groups the extension points.
type Options struct {
	// AuditLogger records security-relevant events.
	// Default: NopAuditLogger
	AuditLogger AuditLogger
}

// DefaultOptions returns Options with no-op defaults.
func DefaultOptions() Options {
	return Options{AuditLogger: NopAuditLogger{}}
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts Options) WithAudit(logger AuditLogger) Options {
	opts.AuditLogger = logger
	return opts
}

// Audit returns opts.AuditLogger, or a no-op logger when unset.
func (opts Options) Audit() AuditLogger {
	if opts.AuditLogger == nil {
		return NopAuditLogger{}
	}
	return opts.AuditLogger
}
