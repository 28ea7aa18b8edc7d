// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth validates bearer tokens for the mobile surface.
//
// The core carries only the token-validation contract; identity providers
// (magic links, SSO) live outside it. The dev validator exists so the
// development server is usable without identity infrastructure, and it
// refuses to validate anything outside development mode.
package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when token validation fails. Implementations
// wrap it with context.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is who a validated token belongs to.
type Identity struct {
	// UserID is the unique user identifier. Never empty on success.
	UserID string

	// Email may be empty when the provider doesn't carry one.
	Email string

	// ProductGroups the user may subscribe to. Empty means all.
	ProductGroups []string
}

// CanAccess reports whether the identity may read the product group.
func (id *Identity) CanAccess(productGroup string) bool {
	if len(id.ProductGroups) == 0 {
		return true
	}
	for _, g := range id.ProductGroups {
		if g == productGroup {
			return true
		}
	}
	return false
}

// TokenValidator checks a bearer token and returns the identity behind it.
//
// Implementations must be safe for concurrent use.
type TokenValidator interface {
	// Validate returns the token's identity, or ErrUnauthorized (wrapped)
	// when the token is invalid, expired, or revoked.
	Validate(ctx context.Context, token string) (*Identity, error)
}

// DevToken is the fixed token the dev validator accepts.
const DevToken = "dev-token-alice"

// DevValidator accepts exactly DevToken, and only when built for
// development mode. In any other mode every token is rejected: the dev
// backdoor must not survive a misconfigured production deploy.
type DevValidator struct {
	development bool
}

var _ TokenValidator = (*DevValidator)(nil)

// NewDevValidator creates a validator for the given mode.
func NewDevValidator(development bool) *DevValidator {
	return &DevValidator{development: development}
}

// Validate implements TokenValidator.
func (v *DevValidator) Validate(_ context.Context, token string) (*Identity, error) {
	if !v.development {
		return nil, fmt.Errorf("dev tokens disabled outside development mode: %w", ErrUnauthorized)
	}
	if token != DevToken {
		return nil, fmt.Errorf("unknown token: %w", ErrUnauthorized)
	}
	return &Identity{
		UserID: "alice",
		Email:  "alice@example.com",
	}, nil
}

// StaticValidator validates against a fixed token-to-identity table, e.g.
// loaded from configuration.
type StaticValidator struct {
	tokens map[string]Identity
}

var _ TokenValidator = (*StaticValidator)(nil)

// NewStaticValidator copies the token table.
func NewStaticValidator(tokens map[string]Identity) *StaticValidator {
	copied := make(map[string]Identity, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticValidator{tokens: copied}
}

// Validate implements TokenValidator.
func (v *StaticValidator) Validate(_ context.Context, token string) (*Identity, error) {
	id, ok := v.tokens[token]
	if !ok {
		return nil, fmt.Errorf("unknown token: %w", ErrUnauthorized)
	}
	return &id, nil
}
