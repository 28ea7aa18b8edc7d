// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianMobile/services/mobile/auth"
)

// identityKey is the gin context key for the validated identity. Typed key
// string to avoid collisions with handler-set values.
const identityKey = "aleutian_mobile_identity"

// setIdentity stores the validated identity for downstream handlers.
func setIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(identityKey, id)
}

// getIdentity retrieves the validated identity, nil when unauthenticated.
func getIdentity(c *gin.Context) *auth.Identity {
	if v, exists := c.Get(identityKey); exists {
		if id, ok := v.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

// authMiddleware validates the bearer token on every request and rejects
// failures with a 401 JSON error envelope.
func authMiddleware(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := validator.Validate(c.Request.Context(), bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}
