package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-cms/gatehouse/internal/model"
	"github.com/gatehouse-cms/gatehouse/internal/rbac"
)

func TestTokenRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)
	admin := createAdmin(t, auth, "token@example.com", rbac.ContentAdmin)

	tok, err := auth.Tokens().Issue(admin.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := tok.ExpiresAt.Sub(tok.IssuedAt); got != DefaultTokenTTL {
		t.Errorf("lifetime = %v, want %v", got, DefaultTokenTTL)
	}

	id, err := auth.Tokens().Verify(context.Background(), tok.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.AdminID() != admin.ID || id.Role() != rbac.ContentAdmin {
		t.Errorf("identity = %d/%s", id.AdminID(), id.Role())
	}
	if id.TokenID != tok.ID || id.SessionID != tok.SessionID() {
		t.Errorf("token id %q / session %q, want %q", id.TokenID, id.SessionID, tok.ID)
	}
	if !id.HasPermission("content.moderate") || id.HasPermission("system.site_config") {
		t.Errorf("unexpected permissions: %v", id.Permissions)
	}
}

func TestTokenClaims(t *testing.T) {
	auth, _ := newTestAuth(t)
	tok, err := auth.Tokens().Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.Value, claims); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if claims.Subject != "42" || claims.Kind != "admin" || claims.ID == "" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Error("iat and exp must be set")
	}
}

func TestTokenExpiredIsDistinguishable(t *testing.T) {
	auth, _ := newTestAuth(t)
	admin := createAdmin(t, auth, "late@example.com", rbac.Reviewers)

	issuer := auth.Tokens()
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := issuer.Issue(admin.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	issuer.now = time.Now

	_, err = issuer.Verify(context.Background(), tok.Value)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenInvalid(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "bad@example.com", rbac.Reviewers)
	ctx := context.Background()

	tests := map[string]string{
		"garbage": "garbage.token.here",
		"empty":   "",
	}
	other := NewTokenIssuer(store, auth.Hierarchy(), nil, "another-secret", 0)
	forged, _ := other.Issue(admin.ID)
	tests["wrong secret"] = forged.Value

	none := jwt.NewWithClaims(jwt.SigningMethodNone, tokenClaims{
		Kind: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	tests["alg none"] = unsigned

	wrongKind := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Kind: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tests["wrong kind"], _ = wrongKind.SignedString([]byte("test-secret-key-for-jwt"))

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Tokens().Verify(ctx, raw)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}

func TestTokenRejectsDeactivatedAdmin(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()
	admin := createAdmin(t, auth, "leaver@example.com", rbac.StaffWriters)

	tok, _ := auth.Tokens().Issue(admin.ID)
	if _, err := auth.Tokens().Verify(ctx, tok.Value); err != nil {
		t.Fatalf("Verify before deactivation: %v", err)
	}
	auth.SetActive(ctx, admin.Email, false)
	if _, err := auth.Tokens().Verify(ctx, tok.Value); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("expected ErrAccountInactive, got %v", err)
	}
}

func TestTokenUnknownAdminDenied(t *testing.T) {
	auth, _ := newTestAuth(t)
	tok, _ := auth.Tokens().Issue(9999)
	if _, err := auth.Tokens().Verify(context.Background(), tok.Value); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenRoleMissingFromHierarchy(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "orphan@example.com", rbac.Reviewers)

	narrow, err := rbac.New([]model.Role{{Name: "Guest", Rank: 1}})
	if err != nil {
		t.Fatalf("rbac.New: %v", err)
	}
	issuer := NewTokenIssuer(store, narrow, nil, "s", 0)
	tok, _ := issuer.Issue(admin.ID)
	if _, err := issuer.Verify(context.Background(), tok.Value); !errors.Is(err, ErrNoRole) {
		t.Errorf("expected ErrNoRole, got %v", err)
	}
}

func TestTokenRevocationMemory(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()
	admin := createAdmin(t, auth, "logout@example.com", rbac.Contributors)

	tok, _ := auth.Tokens().Issue(admin.ID)
	other, _ := auth.Tokens().Issue(admin.ID)
	if err := auth.Tokens().Revoke(ctx, tok.Value); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := auth.Tokens().Verify(ctx, tok.Value); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked, got %v", err)
	}
	if _, err := auth.Tokens().Verify(ctx, other.Value); err != nil {
		t.Errorf("unrelated token rejected: %v", err)
	}
	if err := auth.Tokens().Revoke(ctx, "not-a-token"); err != nil {
		t.Errorf("revoking garbage should be a no-op, got %v", err)
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisRevoker(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	r := NewRedisRevoker(client, "")

	if err := r.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := r.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsRevoked = %v, %v", revoked, err)
	}
	if revoked, _ := r.IsRevoked(ctx, "jti-2"); revoked {
		t.Error("unknown jti reported revoked")
	}

	ttl := mr.TTL("gatehouse:revoked:jti-1")
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want (0, 1m]", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if revoked, _ := r.IsRevoked(ctx, "jti-1"); revoked {
		t.Error("entry should expire with the token")
	}

	if err := r.Revoke(ctx, "old", time.Now().Add(-time.Minute)); err != nil {
		t.Errorf("revoking an expired token: %v", err)
	}
	if mr.Exists("gatehouse:revoked:old") {
		t.Error("expired token should not be stored")
	}
}

func TestRedisRevokerFailsClosed(t *testing.T) {
	mr, client := newTestRedis(t)
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "redis@example.com", rbac.Contributors)

	issuer := NewTokenIssuer(store, auth.Hierarchy(), NewRedisRevoker(client, ""), "s", 0)
	tok, _ := issuer.Issue(admin.ID)
	if _, err := issuer.Verify(context.Background(), tok.Value); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	mr.Close()
	if _, err := issuer.Verify(context.Background(), tok.Value); err == nil {
		t.Error("verification must fail when the denylist is unreachable")
	}
}

func TestSessionCookie(t *testing.T) {
	auth, _ := newTestAuth(t)
	tok, _ := auth.Tokens().Issue(1)

	c := auth.Tokens().SessionCookie(tok, true)
	if c.Name != CookieName || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
		t.Errorf("cookie flags = %+v", c)
	}
	if c.MaxAge != int(DefaultTokenTTL.Seconds()) {
		t.Errorf("max-age = %d", c.MaxAge)
	}

	clear := ClearSessionCookie(false)
	if clear.MaxAge >= 0 || clear.Value != "" || clear.Secure {
		t.Errorf("clear cookie = %+v", clear)
	}
	if !strings.Contains(clear.String(), "Max-Age=0") {
		t.Errorf("clear cookie header = %q", clear.String())
	}
}

func TestMemoryRevokerPrunes(t *testing.T) {
	m := NewMemoryRevoker()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Revoke(ctx, "a", now.Add(time.Minute))
	now = now.Add(2 * time.Minute)
	if revoked, _ := m.IsRevoked(ctx, "a"); revoked {
		t.Error("expired entry still revoked")
	}
	m.Revoke(ctx, "b", now.Add(time.Minute))
	if _, ok := m.entries["a"]; ok {
		t.Error("expired entry not pruned")
	}
}
