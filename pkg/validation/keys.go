// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that end up
// in storage keys, channel names, or URLs. Using these validators prevents
// key/channel injection and path traversal.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// keyPattern matches model variable keys: snake_case identifiers like
// "river_stage", "nola_buy", "fr_don_stl". Max length 64.
var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// groupPattern matches product group names: snake_case like "nh3_domestic",
// "sulphur_international", "petcoke". Max length 48.
var groupPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,47}$`)

// ValidateVariableKey validates a model variable key before it is used in a
// storage key or pushed over a channel.
//
// Example:
//
//	if err := validation.ValidateVariableKey(key); err != nil {
//	    return fmt.Errorf("invalid variable: %w", err)
//	}
func ValidateVariableKey(key string) error {
	if key == "" {
		return fmt.Errorf("variable key cannot be empty")
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid variable key %q (must be snake_case, max 64 chars)", key)
	}
	return nil
}

// ValidateProductGroup validates a product group name before it is embedded
// in a channel name like "variables:<group>".
func ValidateProductGroup(group string) error {
	if group == "" {
		return fmt.Errorf("product group cannot be empty")
	}
	if !groupPattern.MatchString(group) {
		return fmt.Errorf("invalid product group %q (must be snake_case, max 48 chars)", group)
	}
	return nil
}

// ValidateProductGroups validates multiple product groups, listing every
// invalid one.
func ValidateProductGroups(groups []string) error {
	var invalid []string
	for _, g := range groups {
		if err := ValidateProductGroup(g); err != nil {
			invalid = append(invalid, g)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid product groups: %v", invalid)
	}
	return nil
}

// SanitizeProductGroup normalizes and validates a product group name.
// Returns the lowercase, trimmed name if valid.
func SanitizeProductGroup(group string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(group))
	if err := ValidateProductGroup(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
