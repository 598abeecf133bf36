// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enforcement embeds the sensitive data patterns so the rules
// ship with the binary and cannot be changed on the host without a
// rebuild.
package enforcement

import (
	_ "embed"
)

// SensitiveDataPatterns is the raw content of sensitive_data_patterns.yaml.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.SensitiveDataPatterns, &targetStruct)
//
//go:embed sensitive_data_patterns.yaml
var SensitiveDataPatterns []byte
