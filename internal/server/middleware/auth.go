// Package middleware provides HTTP middleware for authentication, CORS and request logging.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// principalKey is the context key for the authenticated principal.
const principalKey ContextKey = "principal"

// Principal is the identity carried by a verified session token.
type Principal interface {
	GetRole() string
	PrincipalSubject() string
}

// TokenValidator verifies a session token.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (Principal, error)
}

// AuthOptions configure Auth
type AuthOptions struct {
	Validator TokenValidator
	// Role the principal must carry
	Role string
	// CookieName is checked when no Authorization header is sent
	CookieName string
	// Check runs after the token verifies, e.g. to reject a revoked access code.
	// Its error message is returned to the client.
	Check func(ctx context.Context, p Principal) error
}

// Auth creates middleware that accepts a bearer token or session cookie and
// adds the principal to the request context. Rejected cookies are cleared.
func Auth(opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, fromCookie := extractToken(r, opts.CookieName)
			if tokenString == "" {
				unauthorized(w, "", "Access denied. Token required.")
				return
			}

			clearName := ""
			if fromCookie {
				clearName = opts.CookieName
			}

			principal, err := opts.Validator.ValidateToken(tokenString)
			if err != nil || principal.GetRole() != opts.Role {
				unauthorized(w, clearName, "Unauthorized")
				return
			}

			if opts.Check != nil {
				if err := opts.Check(r.Context(), principal); err != nil {
					// Revoked credentials are cleared whichever way they were sent
					unauthorized(w, opts.CookieName, err.Error())
					return
				}
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken returns the bearer token, falling back to the cookie
func extractToken(r *http.Request, cookieName string) (token string, fromCookie bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		// Handle case-insensitive "Bearer" prefix
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		return strings.TrimSpace(parts[1]), false
	}
	if cookieName == "" {
		return "", false
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

func unauthorized(w http.ResponseWriter, clearCookie, message string) {
	if clearCookie != "" {
		ClearCookie(w, clearCookie)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ClearCookie expires a session cookie
func ClearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// GetPrincipal extracts the authenticated principal from the request context.
func GetPrincipal(r *http.Request) (Principal, error) {
	p, ok := r.Context().Value(principalKey).(Principal)
	if !ok {
		return nil, fmt.Errorf("principal not found in request context")
	}
	return p, nil
}

// WithPrincipal returns a context carrying p (for testing purposes).
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
