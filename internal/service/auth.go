package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
	"github.com/gatehouse-cms/gatehouse/internal/rbac"
)

// Options tunes the auth subsystem. Zero values select the defaults.
type Options struct {
	JWTSecret        string
	TokenTTL         time.Duration
	BcryptCost       int
	LockoutThreshold int
	LockoutDuration  time.Duration
	MFAIssuer        string
	BackupCodeCount  int
	Revoker          Revoker
	Logger           *slog.Logger
}

// AuthService authenticates admins and runs the account operations that go
// with an authenticated session.
type AuthService struct {
	store     *config.Store
	hierarchy *rbac.Hierarchy
	hasher    *PasswordHasher
	lockout   *LockoutPolicy
	mfa       *MFA
	tokens    *TokenIssuer
	audit     *AuditLog
	logger    *slog.Logger
}

func NewAuthService(store *config.Store, hierarchy *rbac.Hierarchy, opts Options) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:     store,
		hierarchy: hierarchy,
		hasher:    NewPasswordHasher(opts.BcryptCost),
		lockout:   NewLockoutPolicy(store, opts.LockoutThreshold, opts.LockoutDuration),
		mfa:       NewMFA(store, opts.MFAIssuer, opts.BackupCodeCount),
		tokens:    NewTokenIssuer(store, hierarchy, opts.Revoker, opts.JWTSecret, opts.TokenTTL),
		audit:     NewAuditLog(store, logger),
		logger:    logger,
	}
}

func (s *AuthService) Tokens() *TokenIssuer { return s.tokens }
func (s *AuthService) Audit() *AuditLog { return s.audit }
func (s *AuthService) MFA() *MFA { return s.mfa }
func (s *AuthService) Lockout() *LockoutPolicy { return s.lockout }
func (s *AuthService) Hasher() *PasswordHasher { return s.hasher }
func (s *AuthService) Hierarchy() *rbac.Hierarchy { return s.hierarchy }
func (s *AuthService) Store() *config.Store { return s.store }

// LoginRequest is one login attempt.
type LoginRequest struct {
	Email    string
	Password string
	MFACode  string
	Client   Client
}

// SessionResult is a successful login.
type SessionResult struct {
	Admin model.AdminProfile
	Token *Token
}

// Login runs the credential check. The steps run strictly in order and each
// failure returns a classified *Error:
//
//  1. unknown email: 401, nothing recorded
//  2. locked: 423 with lockoutUntil, failed_login "Account locked"
//  3. inactive: 403, nothing recorded
//  4. wrong password: counts toward lockout, failed_login "Invalid password", 401
//  5. MFA enabled and no code: 400 with mfaRequired, nothing recorded
//  6. MFA code is neither a valid TOTP nor an unused backup code: failed_login, 401
//  7. success: counters reset, token issued, login row written
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*SessionResult, error) {
	email := config.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, validationError("Email and password are required", map[string]interface{}{
			"fields": []string{"email", "password"},
		})
	}

	admin, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			// No audit row: the log requires an admin id.
			s.logger.Warn("login attempt for unknown email", "email", email, "ip", req.Client.IP)
			return nil, authenticationError("Invalid credentials", ErrInvalidCredentials)
		}
		return nil, internalError("Login failed", err)
	}

	if s.lockout.IsLocked(admin) {
		s.audit.Append(ctx, Entry{
			AdminID:      admin.ID,
			Action:       model.ActionFailedLogin,
			Client:       req.Client,
			ErrorMessage: "Account locked",
		})
		return nil, &Error{
			Kind:    KindLockout,
			Message: "Account is temporarily locked due to too many failed login attempts",
			Fields:  map[string]interface{}{"lockoutUntil": admin.LockoutUntil.UTC()},
		}
	}

	if !admin.IsActive {
		return nil, authorizationError("Account is deactivated. Please contact an administrator.", ErrAccountInactive)
	}

	if !s.hasher.Check(admin.PasswordHash, req.Password) {
		if _, err := s.lockout.RecordAttempt(ctx, admin.ID, false); err != nil {
			s.logger.Error("record failed login", "admin_id", admin.ID, "error", err)
		}
		s.audit.Append(ctx, Entry{
			AdminID:      admin.ID,
			Action:       model.ActionFailedLogin,
			Client:       req.Client,
			ErrorMessage: "Invalid password",
		})
		return nil, authenticationError("Invalid credentials", ErrInvalidCredentials)
	}

	if admin.MFAEnabled {
		code := strings.TrimSpace(req.MFACode)
		if code == "" {
			return nil, validationError("MFA code required", map[string]interface{}{"mfaRequired": true})
		}
		ok := s.mfa.VerifyTOTP(admin.MFASecret, code, s.lockout.now())
		if !ok {
			ok, err = s.mfa.ConsumeBackupCode(ctx, admin.ID, code)
			if err != nil {
				return nil, internalError("Login failed", err)
			}
		}
		if !ok {
			s.audit.Append(ctx, Entry{
				AdminID:      admin.ID,
				Action:       model.ActionFailedLogin,
				Client:       req.Client,
				ErrorMessage: "Invalid MFA code",
			})
			return nil, authenticationError("Invalid MFA code", ErrInvalidCredentials)
		}
	}

	state, err := s.lockout.RecordAttempt(ctx, admin.ID, true)
	if err != nil {
		return nil, internalError("Login failed", err)
	}
	admin.FailedLoginAttempts = state.FailedLoginAttempts
	admin.LockoutUntil = state.LockoutUntil
	admin.LastLoginAt = state.LastLoginAt

	tok, err := s.tokens.Issue(admin.ID)
	if err != nil {
		return nil, internalError("Login failed", err)
	}

	s.audit.Append(ctx, Entry{
		AdminID:   admin.ID,
		Action:    model.ActionLogin,
		Client:    req.Client,
		SessionID: tok.SessionID(),
	})
	s.logger.Info("admin logged in", "admin_id", admin.ID, "role", admin.RoleName)

	return &SessionResult{
		Admin: admin.Profile(s.hierarchy.Effective(admin.RoleName, admin.Permissions)),
		Token: tok,
	}, nil
}
