/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

type contextKey string

const claimsContextKey contextKey = "guildtuneClaims"

// WithClaims attaches JWT claims to the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext retrieves JWT claims from context if present.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// CanView reports whether the request context may read guildID. A context without
// claims belongs to an unauthenticated deployment and may read everything.
func CanView(ctx context.Context, guildID string) bool {
	claims, ok := ClaimsFromContext(ctx)
	return !ok || claims.CanView(guildID)
}
