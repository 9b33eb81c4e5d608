package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// UsernameKey is the context key for username
	UsernameKey ContextKey = "username"
	// RoleKey is the context key for the operator role
	RoleKey ContextKey = "role"
	// ClaimsKey is the context key for JWT claims
	ClaimsKey ContextKey = "claims"
)

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware validates JWT tokens and adds operator info to the request context
func (h *AuthHandlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			h.sendError(w, http.StatusUnauthorized, "MissingToken", "Authorization header required")
			return
		}
		tokenString, ok := BearerToken(r)
		if !ok {
			h.sendError(w, http.StatusUnauthorized, "InvalidToken", "Invalid authorization header format")
			return
		}

		claims, err := h.jwtService.ValidateToken(tokenString)
		if err != nil {
			h.sendError(w, http.StatusUnauthorized, "InvalidToken", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UsernameKey, claims.Username)
		ctx = context.WithValue(ctx, RoleKey, claims.Role)
		ctx = context.WithValue(ctx, ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole middleware ensures the operator has the required role
func (h *AuthHandlers) RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value(RoleKey).(string)
			if !ok || role != requiredRole {
				h.sendError(w, http.StatusForbidden, "InsufficientPermissions", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin chains token validation with the admin role check
func (h *AuthHandlers) RequireAdmin(next http.Handler) http.Handler {
	return h.AuthMiddleware(h.RequireRole(RoleAdmin)(next))
}

// GetUsername extracts username from request context
func GetUsername(r *http.Request) (string, bool) {
	username, ok := r.Context().Value(UsernameKey).(string)
	return username, ok
}

// GetClaims extracts JWT claims from request context
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	return claims, ok
}
