package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
	"github.com/gatehouse-cms/gatehouse/internal/rbac"
	"github.com/gatehouse-cms/gatehouse/internal/service"
)

const testSecret = "middleware-test-secret"

func newTestAuth(t *testing.T) (*service.AuthService, *config.Store) {
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
	auth := service.NewAuthService(store, h, service.Options{
		JWTSecret:  testSecret,
		BcryptCost: bcrypt.MinCost,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return auth, store
}

// adminToken creates an admin with role and returns it with a fresh token.
func adminToken(t *testing.T, auth *service.AuthService, email, role string) (*model.Admin, string) {
	t.Helper()
	a, err := auth.CreateAdmin(context.Background(), service.NewAdmin{
		Email: email, Name: "Test", Password: "long-enough-password", Role: role,
	})
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	tok, err := auth.Tokens().Issue(a.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return a, tok.Value
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("expected non-empty request ID in context")
		}
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	if respID := rr.Header().Get("X-Request-ID"); len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q", respID)
	}
}

func TestRequestIDClientValue(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"short id kept", "trace-123", true},
		{"oversized id replaced", strings.Repeat("x", 500), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("X-Request-ID", tt.header)
			rr := httptest.NewRecorder()
			RequestID(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)

			got := rr.Header().Get("X-Request-ID")
			if (got == tt.header) != tt.keep {
				t.Errorf("X-Request-ID = %q, keep=%v", got, tt.keep)
			}
		})
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Guard chain tests
// ---------------------------------------------------------------------------

func TestChainRunsGuardsInOrder(t *testing.T) {
	var calls []string
	guard := func(name string, fail bool) Guard {
		return func(r *http.Request, acc *Access) (*Access, error) {
			calls = append(calls, name)
			if fail {
				return nil, errors.New(name)
			}
			if acc == nil {
				acc = &Access{}
			}
			acc.Token += name
			return acc, nil
		}
	}
	var denied error
	deny := func(w http.ResponseWriter, r *http.Request, err error) {
		denied = err
		w.WriteHeader(http.StatusTeapot)
	}

	var seen *Access
	handler := Chain(deny, guard("a", false), guard("b", false))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAccess(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if seen == nil || seen.Token != "ab" {
		t.Errorf("access = %+v, want token ab", seen)
	}

	calls = nil
	rr := httptest.NewRecorder()
	Chain(deny, guard("a", false), guard("b", true), guard("c", false))(http.HandlerFunc(okHandler)).
		ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusTeapot || denied == nil || denied.Error() != "b" {
		t.Errorf("status %d, denied %v", rr.Code, denied)
	}
	if strings.Join(calls, "") != "ab" {
		t.Errorf("calls = %v, guard after the failure must not run", calls)
	}
}

func TestAuthenticateBearerAndCookie(t *testing.T) {
	auth, _ := newTestAuth(t)
	admin, token := adminToken(t, auth, "mw@example.com", rbac.Reviewers)

	var got *service.Identity
	handler := Chain(Denier(false), Authenticate(auth))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetIdentity(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/admin/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.AdminID() != admin.ID {
		t.Fatalf("bearer: identity = %+v", got)
	}

	got = nil
	req = httptest.NewRequest("GET", "/api/admin/status", nil)
	req.AddCookie(&http.Cookie{Name: service.CookieName, Value: token})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.AdminID() != admin.ID {
		t.Fatalf("cookie: identity = %+v", got)
	}

	// The header wins over a stale cookie.
	got = nil
	req = httptest.NewRequest("GET", "/api/admin/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.AddCookie(&http.Cookie{Name: service.CookieName, Value: "stale"})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil {
		t.Error("bearer token should take precedence over the cookie")
	}
}

func TestAuthenticateFailures(t *testing.T) {
	auth, _ := newTestAuth(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"kind": "admin",
		"sub":  "1",
		"jti":  "old",
		"iat":  time.Now().Add(-time.Hour).Unix(),
		"exp":  time.Now().Add(-time.Minute).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	handler := Chain(Denier(true), Authenticate(auth))(http.HandlerFunc(okHandler))

	t.Run("missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rr.Code)
		}
		if body := decodeBody(t, rr); body["message"] != "Admin authentication required" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer nonsense")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if body := decodeBody(t, rr); rr.Code != http.StatusUnauthorized || body["message"] != "Invalid admin token" {
			t.Errorf("status %d body %v", rr.Code, body)
		}
	})

	t.Run("expired clears cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: service.CookieName, Value: expiredToken})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rr.Code)
		}
		body := decodeBody(t, rr)
		if body["message"] != "Admin session expired" || body["expired"] != true {
			t.Errorf("body = %v", body)
		}
		cleared := false
		for _, c := range rr.Result().Cookies() {
			if c.Name == service.CookieName && c.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Error("expired session cookie not cleared")
		}
	})

	t.Run("expired html redirects", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.AddCookie(&http.Cookie{Name: service.CookieName, Value: expiredToken})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/admin/login?expired=true" {
			t.Errorf("status %d location %q", rr.Code, rr.Header().Get("Location"))
		}
	})
}

func TestDeactivatedAdminDenied(t *testing.T) {
	auth, _ := newTestAuth(t)
	admin, token := adminToken(t, auth, "gone@example.com", rbac.StaffWriters)
	if err := auth.SetActive(context.Background(), admin.Email, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	handler := Chain(Denier(false), Authenticate(auth))(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if body := decodeBody(t, rr); rr.Code != http.StatusForbidden || body["message"] != "Admin account has been deactivated" {
		t.Errorf("status %d body %v", rr.Code, body)
	}

	req.Header.Set("Accept", "text/html")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Location") != "/admin/login?inactive=true" {
		t.Errorf("location = %q", rr.Header().Get("Location"))
	}
}

func TestLoginRedirectTargets(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{service.ErrTokenExpired, "/admin/login?expired=true"},
		{service.ErrAccountInactive, "/admin/login?inactive=true"},
		{service.ErrNoRole, "/admin/login?error=norole"},
		{service.ErrTokenInvalid, "/admin/login"},
		{errors.New("boom"), "/admin/login"},
	}
	for _, tt := range tests {
		if got := loginRedirect(&service.Error{Err: tt.err}); got != tt.want {
			t.Errorf("loginRedirect(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRequireRole(t *testing.T) {
	auth, _ := newTestAuth(t)
	_, editor := adminToken(t, auth, "editor@example.com", rbac.SectionEditors)
	_, writer := adminToken(t, auth, "writer@example.com", rbac.StaffWriters)

	handler := Chain(Denier(false), Authenticate(auth), RequireRole(auth, rbac.SeniorWriters))(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+editor)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("senior role should pass, got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+writer)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("junior role should be denied, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["userRole"] != rbac.StaffWriters {
		t.Errorf("userRole = %v", body["userRole"])
	}
	required, _ := body["requiredRoles"].([]interface{})
	if len(required) != 6 || required[0] != rbac.MasterAdmin || required[5] != rbac.SeniorWriters {
		t.Errorf("requiredRoles = %v", body["requiredRoles"])
	}

	req.Header.Set("Accept", "text/html")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden || !strings.Contains(rr.Body.String(), "Access Denied") {
		t.Errorf("html denial: %d %q", rr.Code, rr.Body.String())
	}
}

func TestRequireRoleWithoutAuthenticate(t *testing.T) {
	auth, _ := newTestAuth(t)
	rr := httptest.NewRecorder()
	Chain(Denier(false), RequireRole(auth, rbac.Reviewers))(http.HandlerFunc(okHandler)).
		ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	auth, _ := newTestAuth(t)
	_, webmaster := adminToken(t, auth, "web@example.com", rbac.Webmaster)
	_, social := adminToken(t, auth, "social@example.com", rbac.SocialMediaManager)

	handler := Chain(Denier(false), Authenticate(auth), RequirePermission(auth, "system.site_config"))(http.HandlerFunc(okHandler))
	for token, want := range map[string]int{webmaster: http.StatusOK, social: http.StatusForbidden} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Errorf("status = %d, want %d", rr.Code, want)
		}
	}
}

func TestRecordAccessOnlyAfterAuthorization(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()
	allowed, allowedToken := adminToken(t, auth, "in@example.com", rbac.MasterAdmin)
	denied, deniedToken := adminToken(t, auth, "out@example.com", rbac.Reviewers)

	handler := Chain(Denier(false),
		Authenticate(auth),
		RequireRole(auth, rbac.MasterAdmin),
		RecordAccess(auth),
	)(http.HandlerFunc(okHandler))

	for _, token := range []string{allowedToken, deniedToken} {
		req := httptest.NewRequest("GET", "/api/admin/users?page=2", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0")
		req.RemoteAddr = "203.0.113.9:51234"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	logs, _, err := store.ListLoginLogs(ctx, allowed.ID, model.LogFilter{})
	if err != nil || len(logs) != 1 {
		t.Fatalf("allowed admin logs = %v, %v", logs, err)
	}
	row := logs[0]
	if row.Action != model.ActionPageAccess || row.IPAddress != "203.0.113.9" ||
		row.Endpoint != "/api/admin/users?page=2" || row.Method != "GET" || row.DeviceInfo.Browser != "Chrome" {
		t.Errorf("page_access row = %+v", row)
	}
	if row.SessionID == nil || *row.SessionID == "" {
		t.Error("page_access row should carry the session id")
	}

	logs, _, _ = store.ListLoginLogs(ctx, denied.ID, model.LogFilter{})
	if len(logs) != 0 {
		t.Errorf("denied request recorded: %+v", logs)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting and logging
// ---------------------------------------------------------------------------

func TestRateLimit(t *testing.T) {
	handler := RateLimit(2)(http.HandlerFunc(okHandler))
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/admin/login", nil)
		req.RemoteAddr = "198.51.100.7:1000"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last.Code)
	}
	if body := decodeBody(t, last); body["code"] != float64(429) {
		t.Errorf("body = %v", body)
	}

	// Another client is unaffected.
	req := httptest.NewRequest("POST", "/api/admin/login", nil)
	req.RemoteAddr = "198.51.100.8:1000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("other client status = %d", rr.Code)
	}
}

func TestLoggerReportsAdmin(t *testing.T) {
	auth, _ := newTestAuth(t)
	admin, token := adminToken(t, auth, "logged@example.com", rbac.Reviewers)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestID(Logger(logger)(Chain(Denier(false), Authenticate(auth))(http.HandlerFunc(okHandler))))

	req := httptest.NewRequest("GET", "/api/admin/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	if line["admin_id"] != float64(admin.ID) || line["status"] != float64(200) || line["request_id"] == "" {
		t.Errorf("log line = %v", line)
	}

	buf.Reset()
	line = nil
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/admin/profile", nil))
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line: %v", err)
	}
	if line["level"] != "WARN" || line["status"] != float64(401) {
		t.Errorf("denied log line = %v", line)
	}
}
