package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
	"github.com/gatehouse-cms/gatehouse/internal/rbac"
)

const testPassword = "correct-horse-battery"

var testClient = Client{IP: "192.0.2.10", UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0", Endpoint: "/api/admin/login", Method: "POST"}

func newTestAuth(t *testing.T) (*AuthService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h, err := rbac.New(rbac.DefaultRoles())
	if err != nil {
		t.Fatalf("rbac.New: %v", err)
	}
	if _, err := store.SeedRoles(context.Background(), h.Roles()); err != nil {
		t.Fatalf("SeedRoles: %v", err)
	}

	auth := NewAuthService(store, h, Options{
		JWTSecret:  "test-secret-key-for-jwt",
		BcryptCost: bcrypt.MinCost,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return auth, store
}

func createAdmin(t *testing.T, auth *AuthService, email, role string) *model.Admin {
	t.Helper()
	a, err := auth.CreateAdmin(context.Background(), NewAdmin{
		Email:    email,
		Name:     "Test Admin",
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	return a
}

func auditRows(t *testing.T, store *config.Store, adminID int64) []model.AdminLoginLog {
	t.Helper()
	logs, _, err := store.ListLoginLogs(context.Background(), adminID, model.LogFilter{Limit: 100})
	if err != nil {
		t.Fatalf("ListLoginLogs: %v", err)
	}
	return logs
}

func countAction(logs []model.AdminLoginLog, action model.LoginAction) int {
	n := 0
	for _, l := range logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

func assertKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error of kind %d, got %v", want, err)
	}
	if e.Kind != want {
		t.Fatalf("kind = %d (%s), want %d", e.Kind, e.Message, want)
	}
	return e
}

func login(auth *AuthService, email, password, code string) (*SessionResult, error) {
	return auth.Login(context.Background(), LoginRequest{
		Email: email, Password: password, MFACode: code, Client: testClient,
	})
}

func TestLoginSuccess(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "editor@example.com", rbac.EditorInChief)

	res, err := login(auth, "  EDITOR@example.com ", testPassword, "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token == nil || res.Token.Value == "" {
		t.Fatal("expected a token")
	}
	if res.Admin.ID != admin.ID || res.Admin.Role != rbac.EditorInChief {
		t.Errorf("profile = %+v", res.Admin)
	}
	if !rbac.HasPermission(res.Admin.Permissions, "content.review") {
		t.Error("permissions should include those inherited from junior tiers")
	}
	if res.Admin.LastLoginAt == nil {
		t.Error("lastLoginAt not stamped")
	}

	rows := auditRows(t, store, admin.ID)
	if len(rows) != 1 || rows[0].Action != model.ActionLogin {
		t.Fatalf("audit rows = %+v, want one login row", rows)
	}
	if rows[0].SessionID == nil || *rows[0].SessionID != res.Token.SessionID() {
		t.Errorf("sessionId = %v, want %q", rows[0].SessionID, res.Token.SessionID())
	}
	if rows[0].IPAddress != testClient.IP || rows[0].DeviceInfo.Browser != "Firefox" {
		t.Errorf("client metadata not recorded: %+v", rows[0])
	}
}

func TestLoginUnknownEmailWritesNoAuditRow(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "real@example.com", rbac.Reviewers)

	_, err := login(auth, "ghost@example.com", testPassword, "")
	e := assertKind(t, err, KindAuthentication)
	if e.Kind.Status() != http.StatusUnauthorized {
		t.Errorf("status = %d", e.Kind.Status())
	}
	if rows := auditRows(t, store, admin.ID); len(rows) != 0 {
		t.Errorf("expected no audit rows, got %d", len(rows))
	}
}

func TestLoginMissingFields(t *testing.T) {
	auth, _ := newTestAuth(t)
	_, err := login(auth, "", "", "")
	assertKind(t, err, KindValidation)
}

func TestLoginInactiveAdmin(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "gone@example.com", rbac.StaffWriters)
	if err := auth.SetActive(context.Background(), "gone@example.com", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	_, err := login(auth, "gone@example.com", testPassword, "")
	assertKind(t, err, KindAuthorization)
	if !errors.Is(err, ErrAccountInactive) {
		t.Errorf("expected ErrAccountInactive, got %v", err)
	}
	if rows := auditRows(t, store, admin.ID); len(rows) != 0 {
		t.Errorf("inactive login should not be recorded, got %d rows", len(rows))
	}
}

func TestLoginWrongPasswordRecordsFailure(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "typo@example.com", rbac.Contributors)

	_, err := login(auth, "typo@example.com", "wrong-password", "")
	assertKind(t, err, KindAuthentication)

	got, _ := store.GetAdminByID(context.Background(), admin.ID)
	if got.FailedLoginAttempts != 1 {
		t.Errorf("failedLoginAttempts = %d, want 1", got.FailedLoginAttempts)
	}
	rows := auditRows(t, store, admin.ID)
	if len(rows) != 1 || rows[0].Action != model.ActionFailedLogin {
		t.Fatalf("audit rows = %+v", rows)
	}
	if rows[0].ErrorMessage == nil || *rows[0].ErrorMessage != "Invalid password" {
		t.Errorf("errorMessage = %v", rows[0].ErrorMessage)
	}
}

func TestLockoutAfterThreshold(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "target@example.com", rbac.Webmaster)

	now := time.Now().UTC()
	auth.lockout.now = func() time.Time { return now }

	for i := 0; i < DefaultLockoutThreshold; i++ {
		_, err := login(auth, "target@example.com", "bad", "")
		assertKind(t, err, KindAuthentication)
	}

	// The correct password is refused while locked.
	_, err := login(auth, "target@example.com", testPassword, "")
	e := assertKind(t, err, KindLockout)
	if e.Kind.Status() != http.StatusLocked {
		t.Errorf("status = %d, want 423", e.Kind.Status())
	}
	until, ok := e.Fields["lockoutUntil"].(time.Time)
	if !ok {
		t.Fatalf("lockoutUntil missing: %+v", e.Fields)
	}
	if !until.After(now) {
		t.Errorf("lockoutUntil %v not after now %v", until, now)
	}

	rows := auditRows(t, store, admin.ID)
	if n := countAction(rows, model.ActionFailedLogin); n != DefaultLockoutThreshold+1 {
		t.Errorf("failed_login rows = %d, want %d", n, DefaultLockoutThreshold+1)
	}
	if rows[0].ErrorMessage == nil || *rows[0].ErrorMessage != "Account locked" {
		t.Errorf("latest errorMessage = %v, want Account locked", rows[0].ErrorMessage)
	}

	// Lock expires lazily.
	now = now.Add(DefaultLockoutDuration + time.Second)
	if _, err := login(auth, "target@example.com", testPassword, ""); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	got, _ := store.GetAdminByID(context.Background(), admin.ID)
	if got.FailedLoginAttempts != 0 || got.LockoutUntil != nil {
		t.Errorf("counters not reset: attempts=%d until=%v", got.FailedLoginAttempts, got.LockoutUntil)
	}
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "reset@example.com", rbac.SectionEditors)

	for i := 0; i < DefaultLockoutThreshold-1; i++ {
		login(auth, "reset@example.com", "bad", "")
	}
	if _, err := login(auth, "reset@example.com", testPassword, ""); err != nil {
		t.Fatalf("Login: %v", err)
	}
	got, _ := store.GetAdminByID(context.Background(), admin.ID)
	if got.FailedLoginAttempts != 0 || got.LockoutUntil != nil {
		t.Errorf("attempts=%d until=%v, want reset", got.FailedLoginAttempts, got.LockoutUntil)
	}

	// One more failure must not lock: the counter started over.
	login(auth, "reset@example.com", "bad", "")
	if _, err := login(auth, "reset@example.com", testPassword, ""); err != nil {
		t.Errorf("expected login to succeed after reset, got %v", err)
	}
}

func TestFailureAfterExpiredLockRestartsCount(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "again@example.com", rbac.Reviewers)

	now := time.Now().UTC()
	auth.lockout.now = func() time.Time { return now }
	for i := 0; i < DefaultLockoutThreshold; i++ {
		login(auth, "again@example.com", "bad", "")
	}

	now = now.Add(DefaultLockoutDuration + time.Minute)
	login(auth, "again@example.com", "bad", "")

	got, _ := store.GetAdminByID(context.Background(), admin.ID)
	if got.FailedLoginAttempts != 1 {
		t.Errorf("attempts = %d, want 1", got.FailedLoginAttempts)
	}
	if got.LockoutUntil != nil {
		t.Errorf("lockoutUntil = %v, want nil", got.LockoutUntil)
	}
}

// enableMFA turns MFA on for admin and returns its secret and backup codes.
func enableMFA(t *testing.T, auth *AuthService, adminID int64) (string, []string) {
	t.Helper()
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "test@example.com"})
	if err != nil {
		t.Fatalf("totp.Generate: %v", err)
	}
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	codes, err := auth.MFA().Enable(context.Background(), adminID, key.Secret(), code)
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	return key.Secret(), codes
}

func TestLoginMFARequired(t *testing.T) {
	auth, store := newTestAuth(t)
	admin := createAdmin(t, auth, "mfa@example.com", rbac.MasterAdmin)
	enableMFA(t, auth, admin.ID)

	_, err := login(auth, "mfa@example.com", testPassword, "")
	e := assertKind(t, err, KindValidation)
	if e.Fields["mfaRequired"] != true {
		t.Errorf("expected mfaRequired, got %+v", e.Fields)
	}
	if rows := auditRows(t, store, admin.ID); len(rows) != 0 {
		t.Errorf("mfaRequired should not be recorded, got %d rows", len(rows))
	}
	got, _ := store.GetAdminByID(context.Background(), admin.ID)
	if got.FailedLoginAttempts != 0 {
		t.Errorf("state changed: attempts=%d", got.FailedLoginAttempts)
	}
}

func TestLoginWithTOTP(t *testing.T) {
	auth, _ := newTestAuth(t)
	admin := createAdmin(t, auth, "totp@example.com", rbac.MasterAdmin)
	secret, _ := enableMFA(t, auth, admin.ID)

	code, _ := totp.GenerateCode(secret, time.Now())
	if _, err := login(auth, "totp@example.com", testPassword, code); err != nil {
		t.Fatalf("Login with TOTP: %v", err)
	}
}

func TestLoginBadTOTPFallsBackToBackupCode(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()
	admin := createAdmin(t, auth, "backup@example.com", rbac.MasterAdmin)
	_, codes := enableMFA(t, auth, admin.ID)
	if len(codes) != DefaultBackupCodeCount {
		t.Fatalf("got %d backup codes, want %d", len(codes), DefaultBackupCodeCount)
	}

	// Wrong TOTP, no fallback match.
	_, err := login(auth, "backup@example.com", testPassword, "000000")
	assertKind(t, err, KindAuthentication)

	before, _ := store.CountBackupCodes(ctx, admin.ID)
	res, err := login(auth, "backup@example.com", testPassword, codes[3])
	if err != nil {
		t.Fatalf("Login with backup code: %v", err)
	}
	if res.Token == nil {
		t.Fatal("expected token")
	}
	after, _ := store.CountBackupCodes(ctx, admin.ID)
	if after != before-1 {
		t.Errorf("backup codes %d -> %d, want exactly one fewer", before, after)
	}

	// Second use of the same code fails.
	_, err = login(auth, "backup@example.com", testPassword, codes[3])
	assertKind(t, err, KindAuthentication)

	rows := auditRows(t, store, admin.ID)
	if countAction(rows, model.ActionLogin) != 1 || countAction(rows, model.ActionFailedLogin) != 2 {
		t.Errorf("unexpected audit rows: login=%d failed=%d",
			countAction(rows, model.ActionLogin), countAction(rows, model.ActionFailedLogin))
	}
}
