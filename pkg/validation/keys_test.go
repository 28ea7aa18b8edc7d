// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateVariableKey(t *testing.T) {
	for _, key := range []string{"river_stage", "nola_buy", "fr_don_stl", "lock_hrs", "x"} {
		assert.NoError(t, ValidateVariableKey(key), key)
	}
	for _, key := range []string{"", "River_Stage", "1stage", "a b", "a/../b", "alerts:x"} {
		assert.Error(t, ValidateVariableKey(key), key)
	}
}

func TestValidateProductGroup(t *testing.T) {
	for _, g := range []string{"nh3_domestic", "sulphur_international", "petcoke"} {
		assert.NoError(t, ValidateProductGroup(g), g)
	}
	for _, g := range []string{"", "NH3", "a:b", "group name"} {
		assert.Error(t, ValidateProductGroup(g), g)
	}
}

func TestValidateProductGroups(t *testing.T) {
	require.NoError(t, ValidateProductGroups([]string{"nh3_domestic", "petcoke"}))

	err := ValidateProductGroups([]string{"nh3_domestic", "BAD", "also bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAD")
	assert.Contains(t, err.Error(), "also bad")
}

func TestSanitizeProductGroup(t *testing.T) {
	got, err := SanitizeProductGroup("  NH3_Domestic ")
	require.NoError(t, err)
	assert.Equal(t, "nh3_domestic", got)

	_, err = SanitizeProductGroup("alerts:nh3")
	require.Error(t, err)
}
