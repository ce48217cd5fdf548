package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
	"github.com/gatehouse-cms/gatehouse/internal/rbac"
)

const (
	// CookieName is the session cookie carrying the admin token.
	CookieName = "adminToken"

	DefaultTokenTTL = 15 * time.Minute

	tokenKindAdmin = "admin"
	tokenIssuer    = "gatehouse"
)

// Token is a freshly issued session token.
type Token struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionID is the session identifier recorded in the audit log (the jti).
func (t *Token) SessionID() string {
	return t.ID
}

// Identity is the verified caller attached to an authenticated request.
// Downstream handlers read it from the request context.
type Identity struct {
	Admin       *model.Admin
	Permissions []string
	TokenID     string
	SessionID   string
	ExpiresAt   time.Time
}

// AdminID returns the authenticated admin's id.
func (i *Identity) AdminID() int64 { return i.Admin.ID }

// Role returns the authenticated admin's role name.
func (i *Identity) Role() string { return i.Admin.RoleName }

// HasPermission reports whether the identity holds perm, honouring
// wildcard grants.
func (i *Identity) HasPermission(perm string) bool {
	return rbac.HasPermission(i.Permissions, perm)
}

type tokenClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens. Verification fails
// closed: anything other than a well-formed, unexpired, unrevoked token for
// an active admin with a known role is rejected.
type TokenIssuer struct {
	secret    []byte
	ttl       time.Duration
	store     *config.Store
	hierarchy *rbac.Hierarchy
	revoker   Revoker
	now       func() time.Time
}

func NewTokenIssuer(store *config.Store, hierarchy *rbac.Hierarchy, revoker Revoker, secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &TokenIssuer{
		secret:    []byte(secret),
		ttl:       ttl,
		store:     store,
		hierarchy: hierarchy,
		revoker:   revoker,
		now:       time.Now,
	}
}

// TTL returns the token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue signs a new token for adminID.
func (t *TokenIssuer) Issue(adminID int64) (*Token, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}
	now := t.now().UTC().Truncate(time.Second)
	exp := now.Add(t.ttl)

	claims := tokenClaims{
		Kind: tokenKindAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(adminID, 10),
			Issuer:    tokenIssuer,
			ID:        id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Value: signed, ID: id.String(), IssuedAt: now, ExpiresAt: exp}, nil
}

// parse checks signature, kind and expiry without touching the store.
func (t *TokenIssuer) parse(raw string) (*tokenClaims, int64, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, 0, ErrTokenExpired
		}
		return nil, 0, ErrTokenInvalid
	}
	if claims.Kind != tokenKindAdmin || claims.ID == "" {
		return nil, 0, ErrTokenInvalid
	}
	adminID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || adminID <= 0 {
		return nil, 0, ErrTokenInvalid
	}
	return claims, adminID, nil
}

// Verify validates raw and resolves the admin it names. Errors are one of
// ErrTokenExpired, ErrTokenInvalid, ErrTokenRevoked, ErrAccountInactive,
// ErrNoRole, or a wrapped storage error; all of them mean "deny".
func (t *TokenIssuer) Verify(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	claims, adminID, err := t.parse(raw)
	if err != nil {
		return nil, err
	}

	revoked, err := t.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	admin, err := t.store.GetAdminByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("resolve admin: %w", err)
	}
	if !admin.IsActive {
		return nil, ErrAccountInactive
	}
	if admin.RoleName == "" || !t.hierarchy.Has(admin.RoleName) {
		return nil, ErrNoRole
	}

	return &Identity{
		Admin:       admin,
		Permissions: t.hierarchy.Effective(admin.RoleName, admin.Permissions),
		TokenID:     claims.ID,
		SessionID:   claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Revoke denylists the token until its natural expiry. Invalid or expired
// tokens need no revocation and are ignored.
func (t *TokenIssuer) Revoke(ctx context.Context, raw string) error {
	claims, _, err := t.parse(raw)
	if err != nil {
		return nil
	}
	return t.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// SessionCookie builds the cookie that carries tok.
func (t *TokenIssuer) SessionCookie(tok *Token, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    tok.Value,
		Path:     "/",
		MaxAge:   int(t.ttl.Seconds()),
		Expires:  tok.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearSessionCookie returns a cookie that deletes the session cookie.
func ClearSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
