package model

import "time"

// Admin represents an administrative user of the CMS back office. Passwords
// are stored as bcrypt hashes; MFA material and lockout counters never leave
// the auth subsystem.
type Admin struct {
	ID                  int64      `json:"id" db:"id"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name                string     `json:"name" db:"name"`
	PhoneNumber         string     `json:"phoneNumber,omitempty" db:"phone_number"`
	Department          string     `json:"department,omitempty" db:"department"`
	RoleID              int64      `json:"roleId" db:"role_id"`
	RoleName            string     `json:"role" db:"role_name"`
	IsActive            bool       `json:"isActive" db:"is_active"`
	MFAEnabled          bool       `json:"mfaEnabled" db:"mfa_enabled"`
	MFASecret           string     `json:"-" db:"mfa_secret"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockoutUntil        *time.Time `json:"-" db:"lockout_until"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	Permissions         []string   `json:"-"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
}

// AdminProfile is the outward-facing view of an admin. It is the only admin
// shape handlers serialize.
type AdminProfile struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	Department  string     `json:"department,omitempty"`
	MFAEnabled  bool       `json:"mfaEnabled"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Profile builds the public view of a, attaching the resolved permission set.
func (a *Admin) Profile(permissions []string) AdminProfile {
	if permissions == nil {
		permissions = []string{}
	}
	return AdminProfile{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Role:        a.RoleName,
		Permissions: permissions,
		PhoneNumber: a.PhoneNumber,
		Department:  a.Department,
		MFAEnabled:  a.MFAEnabled,
		IsActive:    a.IsActive,
		LastLoginAt: a.LastLoginAt,
	}
}

// LoginState is the slice of an admin row that the lockout policy reads and
// writes. It is loaded and stored under a row lock.
type LoginState struct {
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	LastLoginAt         *time.Time
}

// ProfileUpdate carries the optional fields accepted by a profile update.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Department  *string `json:"department,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.PhoneNumber == nil && u.Department == nil
}
