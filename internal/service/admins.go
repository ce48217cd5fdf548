package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
)

// NewAdmin describes an account to provision.
type NewAdmin struct {
	Email       string
	Name        string
	Password    string
	Role        string
	PhoneNumber string
	Department  string
	Permissions []string
}

// CreateAdmin provisions an active admin with the named role.
func (s *AuthService) CreateAdmin(ctx context.Context, in NewAdmin) (*model.Admin, error) {
	email := config.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationError("A valid email is required", map[string]interface{}{"field": "email"})
	}
	if err := ValidateNewPassword(in.Password); err != nil {
		return nil, err
	}
	role, err := s.lookupRole(ctx, in.Role)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError("Failed to create admin", err)
	}
	admin := &model.Admin{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		PhoneNumber:  in.PhoneNumber,
		Department:   in.Department,
		RoleID:       role.ID,
		RoleName:     role.Name,
		IsActive:     true,
		Permissions:  in.Permissions,
	}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, config.ErrConflict) {
			return nil, validationError(fmt.Sprintf("Admin %s already exists", email), map[string]interface{}{"field": "email"})
		}
		return nil, internalError("Failed to create admin", err)
	}
	return admin, nil
}

// ListAdmins returns the public profiles of all admins.
func (s *AuthService) ListAdmins(ctx context.Context) ([]model.AdminProfile, error) {
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return nil, internalError("Failed to list admins", err)
	}
	out := make([]model.AdminProfile, 0, len(admins))
	for _, a := range admins {
		out = append(out, a.Profile(s.hierarchy.Effective(a.RoleName, a.Permissions)))
	}
	return out, nil
}

// SetActive activates or deactivates the admin with the given email. A
// deactivated admin's outstanding tokens stop verifying immediately.
func (s *AuthService) SetActive(ctx context.Context, email string, active bool) error {
	admin, err := s.adminByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.store.SetAdminActive(ctx, admin.ID, active); err != nil {
		return internalError("Failed to update admin", err)
	}
	s.logger.Info("admin active state changed", "admin_id", admin.ID, "active", active)
	return nil
}

// Unlock clears a lockout for the admin with the given email.
func (s *AuthService) Unlock(ctx context.Context, email string) error {
	admin, err := s.adminByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.lockout.Unlock(ctx, admin.ID); err != nil {
		return internalError("Failed to unlock admin", err)
	}
	s.logger.Info("admin unlocked", "admin_id", admin.ID)
	return nil
}

// AssignRole moves the admin with the given email to another role.
func (s *AuthService) AssignRole(ctx context.Context, email, roleName string) error {
	admin, err := s.adminByEmail(ctx, email)
	if err != nil {
		return err
	}
	role, err := s.lookupRole(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.store.SetAdminRole(ctx, admin.ID, role.ID); err != nil {
		return internalError("Failed to assign role", err)
	}
	s.logger.Info("admin role changed", "admin_id", admin.ID, "role", role.Name)
	return nil
}

func (s *AuthService) adminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	admin, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("Admin %s not found", config.NormalizeEmail(email)), err)
		}
		return nil, internalError("Failed to load admin", err)
	}
	return admin, nil
}

func (s *AuthService) lookupRole(ctx context.Context, name string) (*model.Role, error) {
	if !s.hierarchy.Has(name) {
		return nil, validationError(fmt.Sprintf("Unknown role %q", name), map[string]interface{}{"field": "role"})
	}
	role, err := s.store.GetRoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, validationError(fmt.Sprintf("Role %q has not been seeded", name), map[string]interface{}{"field": "role"})
		}
		return nil, internalError("Failed to load role", err)
	}
	return role, nil
}

// RoleView is a role as reported by the roles endpoint.
type RoleView struct {
	model.Role
	AllowedRoles []string `json:"allowedRoles"`
}

// Roles describes the hierarchy: each role with the set of roles allowed
// through a guard that requires it.
func (s *AuthService) Roles() []RoleView {
	roles := s.hierarchy.Roles()
	out := make([]RoleView, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleView{Role: r, AllowedRoles: s.hierarchy.AllowedRoles(r.Name)})
	}
	return out
}
