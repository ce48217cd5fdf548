package service

import (
	"context"
	"errors"
)

// Authenticate verifies a raw session token and classifies any failure for
// the caller. An empty token is reported as missing authentication.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, authenticationError("Admin authentication required", ErrTokenInvalid)
	}
	id, err := s.tokens.Verify(ctx, raw)
	if err == nil {
		return id, nil
	}

	switch {
	case errors.Is(err, ErrTokenExpired):
		return nil, &Error{
			Kind:    KindAuthentication,
			Message: "Admin session expired",
			Fields:  map[string]interface{}{"expired": true},
			Err:     err,
		}
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenRevoked):
		return nil, authenticationError("Invalid admin token", err)
	case errors.Is(err, ErrAccountInactive):
		return nil, authorizationError("Admin account has been deactivated", err)
	case errors.Is(err, ErrNoRole):
		return nil, authorizationError("No admin role assigned", err)
	}
	s.logger.Error("token verification failed", "error", err)
	return nil, internalError("Server error", err)
}

// Authorize checks that id's role authorizes at least one of roles. The
// denial carries the cumulative allowed set and the caller's role.
func (s *AuthService) Authorize(id *Identity, roles ...string) error {
	if id.Role() == "" || !s.hierarchy.Has(id.Role()) {
		return authorizationError("No admin role assigned", ErrNoRole)
	}
	if s.hierarchy.Authorizes(id.Role(), roles...) {
		return nil
	}
	return &Error{
		Kind:    KindAuthorization,
		Message: "Access denied. Insufficient admin permissions.",
		Fields: map[string]interface{}{
			"requiredRoles": s.hierarchy.AllowedRoles(roles...),
			"userRole":      id.Role(),
		},
		Err: ErrInsufficientRole,
	}
}

// Permit checks that id holds perm, directly or through its role.
func (s *AuthService) Permit(id *Identity, perm string) error {
	if id.HasPermission(perm) {
		return nil
	}
	return &Error{
		Kind:    KindAuthorization,
		Message: "Access denied. Missing permission.",
		Fields: map[string]interface{}{
			"requiredPermission": perm,
			"userRole":           id.Role(),
		},
		Err: ErrInsufficientRole,
	}
}
