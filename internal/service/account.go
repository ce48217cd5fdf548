package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
)

// Logout revokes the session token and records the logout. Revocation
// failures are logged; the caller still clears the cookie.
func (s *AuthService) Logout(ctx context.Context, id *Identity, rawToken string, client Client) {
	if err := s.tokens.Revoke(ctx, rawToken); err != nil {
		s.logger.Error("revoke token on logout", "admin_id", id.AdminID(), "error", err)
	}
	s.audit.Append(ctx, Entry{
		AdminID:   id.AdminID(),
		Action:    model.ActionLogout,
		Client:    client,
		SessionID: id.SessionID,
	})
}

// RecordPageAccess writes the page_access row for an authorized request.
func (s *AuthService) RecordPageAccess(ctx context.Context, id *Identity, client Client) {
	s.audit.Append(ctx, Entry{
		AdminID:   id.AdminID(),
		Action:    model.ActionPageAccess,
		Client:    client,
		SessionID: id.SessionID,
	})
}

// Profile returns the public view of the authenticated admin.
func (s *AuthService) Profile(id *Identity) model.AdminProfile {
	return id.Admin.Profile(id.Permissions)
}

// UpdateProfile applies the supplied profile fields and returns the
// refreshed profile.
func (s *AuthService) UpdateProfile(ctx context.Context, id *Identity, upd model.ProfileUpdate, client Client) (*model.AdminProfile, error) {
	if upd.Empty() {
		return nil, validationError("No profile fields to update", nil)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, validationError("Name must not be empty", map[string]interface{}{"field": "name"})
		}
		upd.Name = &name
	}
	if upd.Email != nil {
		email := config.NormalizeEmail(*upd.Email)
		if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
			return nil, validationError("Invalid email address", map[string]interface{}{"field": "email"})
		}
		upd.Email = &email
	}

	if err := s.store.UpdateAdminProfile(ctx, id.AdminID(), upd); err != nil {
		switch {
		case errors.Is(err, config.ErrConflict):
			return nil, validationError("Email is already in use", map[string]interface{}{"field": "email"})
		case errors.Is(err, config.ErrNotFound):
			return nil, notFoundError("Admin not found", err)
		}
		return nil, internalError("Failed to update profile", err)
	}

	s.audit.Append(ctx, Entry{
		AdminID:     id.AdminID(),
		Action:      model.ActionProfileUpdate,
		Client:      client,
		SessionID:   id.SessionID,
		RequestData: upd,
	})

	admin, err := s.store.GetAdminByID(ctx, id.AdminID())
	if err != nil {
		return nil, internalError("Failed to load profile", err)
	}
	profile := admin.Profile(s.hierarchy.Effective(admin.RoleName, admin.Permissions))
	return &profile, nil
}

// ChangePassword replaces the password after re-checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, id *Identity, current, next string, client Client) error {
	if current == "" || next == "" {
		return validationError("Current password and new password are required", map[string]interface{}{
			"fields": []string{"currentPassword", "newPassword"},
		})
	}
	if err := ValidateNewPassword(next); err != nil {
		return err
	}
	if !s.hasher.Check(id.Admin.PasswordHash, current) {
		return validationError("Current password is incorrect", map[string]interface{}{"field": "currentPassword"})
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return internalError("Failed to change password", err)
	}
	if err := s.store.UpdateAdminPassword(ctx, id.AdminID(), hash); err != nil {
		return internalError("Failed to change password", err)
	}

	s.audit.Append(ctx, Entry{
		AdminID:   id.AdminID(),
		Action:    model.ActionPasswordChange,
		Client:    client,
		SessionID: id.SessionID,
	})
	return nil
}

// SetupMFA starts MFA enrolment. Nothing is persisted until EnableMFA.
func (s *AuthService) SetupMFA(id *Identity) (*MFASetup, error) {
	if id.Admin.MFAEnabled {
		return nil, validationError("MFA is already enabled", nil)
	}
	setup, err := s.mfa.Setup(id.Admin)
	if err != nil {
		return nil, internalError("Failed to set up MFA", err)
	}
	return setup, nil
}

// EnableMFA confirms enrolment and returns the one-time backup codes.
func (s *AuthService) EnableMFA(ctx context.Context, id *Identity, secret, code string, client Client) ([]string, error) {
	if id.Admin.MFAEnabled {
		return nil, validationError("MFA is already enabled", nil)
	}
	codes, err := s.mfa.Enable(ctx, id.AdminID(), strings.TrimSpace(secret), code)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, internalError("Failed to enable MFA", err)
	}

	s.audit.Append(ctx, Entry{
		AdminID:   id.AdminID(),
		Action:    model.ActionMFAEnabled,
		Client:    client,
		SessionID: id.SessionID,
	})
	return codes, nil
}

// DisableMFA turns MFA off after re-verifying the password.
func (s *AuthService) DisableMFA(ctx context.Context, id *Identity, password string, client Client) error {
	if password == "" {
		return validationError("Password is required", map[string]interface{}{"field": "password"})
	}
	if !id.Admin.MFAEnabled {
		return validationError("MFA is not enabled", nil)
	}
	if !s.hasher.Check(id.Admin.PasswordHash, password) {
		return validationError("Invalid password", map[string]interface{}{"field": "password"})
	}
	if err := s.mfa.Disable(ctx, id.AdminID()); err != nil {
		return internalError("Failed to disable MFA", err)
	}

	s.audit.Append(ctx, Entry{
		AdminID:   id.AdminID(),
		Action:    model.ActionMFADisabled,
		Client:    client,
		SessionID: id.SessionID,
	})
	return nil
}
