// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for user-supplied identifiers.
//
// Usernames end up in URLs (/api/customuser/:username), in chat session
// requests sent upstream, and in seeded data, so they are restricted to a
// small safe alphabet.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxUsernameLength is the longest accepted username.
const MaxUsernameLength = 150

// usernamePattern matches valid usernames.
// Allows: letters, digits and @ . + - _
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9@.+_-]+$`)

// ValidateUsername validates a username.
//
// Valid usernames:
//   - 1-150 characters
//   - Letters A-Z and a-z
//   - Digits 0-9
//   - The characters @ . + - _
//
// Example:
//
//	if err := validation.ValidateUsername(name); err != nil {
//	    return fmt.Errorf("invalid username: %w", err)
//	}
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return fmt.Errorf("username is longer than %d characters", MaxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username format: %q (letters, digits and @/./+/-/_ only)", username)
	}
	return nil
}

// ValidateUsernames validates multiple usernames.
// Returns an error listing all invalid usernames if any fail validation.
func ValidateUsernames(usernames []string) error {
	var invalid []string
	for _, u := range usernames {
		if err := ValidateUsername(u); err != nil {
			invalid = append(invalid, u)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid usernames: %v", invalid)
	}
	return nil
}

// SanitizeUsername trims surrounding whitespace and validates the result.
func SanitizeUsername(username string) (string, error) {
	normalized := strings.TrimSpace(username)
	if err := ValidateUsername(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
