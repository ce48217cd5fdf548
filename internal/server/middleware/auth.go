package middleware

import (
	"net/http"
	"strings"

	"github.com/gatehouse-cms/gatehouse/internal/service"
)

// Authenticate returns a guard that verifies the caller's session token.
// It looks for the token in two places:
//
//  1. JWT Bearer token via the Authorization header (API clients)
//  2. The adminToken cookie (browser sessions)
//
// On success the Access carries the verified identity and the raw token.
func Authenticate(auth *service.AuthService) Guard {
	return func(r *http.Request, acc *Access) (*Access, error) {
		token := TokenFromRequest(r)
		id, err := auth.Authenticate(r.Context(), token)
		if err != nil {
			return nil, err
		}
		return &Access{Identity: id, Token: token, Client: ClientFrom(r)}, nil
	}
}

// RequireRole returns a guard that admits callers whose role authorizes at
// least one of roles. It must follow Authenticate.
func RequireRole(auth *service.AuthService, roles ...string) Guard {
	return func(r *http.Request, acc *Access) (*Access, error) {
		if acc == nil || acc.Identity == nil {
			return nil, errAuthRequired
		}
		if err := auth.Authorize(acc.Identity, roles...); err != nil {
			return nil, err
		}
		return acc, nil
	}
}

// RequirePermission returns a guard that admits callers holding perm
// through their role or individual grants. It must follow Authenticate.
func RequirePermission(auth *service.AuthService, perm string) Guard {
	return func(r *http.Request, acc *Access) (*Access, error) {
		if acc == nil || acc.Identity == nil {
			return nil, errAuthRequired
		}
		if err := auth.Permit(acc.Identity, perm); err != nil {
			return nil, err
		}
		return acc, nil
	}
}

// RecordAccess returns a guard that writes a page_access audit row. Place
// it after the authorization guards so only admitted requests are recorded.
func RecordAccess(auth *service.AuthService) Guard {
	return func(r *http.Request, acc *Access) (*Access, error) {
		if acc == nil || acc.Identity == nil {
			return nil, errAuthRequired
		}
		auth.RecordPageAccess(r.Context(), acc.Identity, acc.Client)
		return acc, nil
	}
}

var errAuthRequired = &service.Error{
	Kind:    service.KindAuthentication,
	Message: "Admin authentication required",
}

// TokenFromRequest returns the Bearer token, falling back to the session
// cookie. Returns "" when neither is present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); token != "" {
			return token
		}
	}
	if c, err := r.Cookie(service.CookieName); err == nil {
		return c.Value
	}
	return ""
}
