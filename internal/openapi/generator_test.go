package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

func TestGenerateAdminSpec_Valid(t *testing.T) {
	doc := GenerateAdminSpec(Options{BaseURL: "http://localhost:8080", MasterRoles: []string{"Master Admin"}})

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	loaded, err := openapi3.NewLoader().LoadFromData(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := loaded.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if doc.Info.Title != "Gatehouse Admin API" || doc.Info.Version != "1.0.0" {
		t.Errorf("info = %+v", doc.Info)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080" {
		t.Errorf("servers = %+v", doc.Servers)
	}
}

func TestGenerateAdminSpec_Paths(t *testing.T) {
	doc := GenerateAdminSpec(Options{})

	tests := []struct {
		method string
		path   string
		id     string
	}{
		{http.MethodPost, "/api/admin/login", "adminLogin"},
		{http.MethodPost, "/api/admin/logout", "adminLogout"},
		{http.MethodGet, "/api/admin/status", "adminStatus"},
		{http.MethodGet, "/api/admin/profile", "getAdminProfile"},
		{http.MethodPut, "/api/admin/profile", "updateAdminProfile"},
		{http.MethodPut, "/api/admin/change-password", "changeAdminPassword"},
		{http.MethodPost, "/api/admin/mfa/setup", "setupMFA"},
		{http.MethodPost, "/api/admin/mfa/verify", "verifyMFA"},
		{http.MethodPost, "/api/admin/mfa/disable", "disableMFA"},
		{http.MethodGet, "/api/admin/login-history", "getLoginHistory"},
		{http.MethodGet, "/api/admin/activity-logs", "getActivityLogs"},
		{http.MethodGet, "/api/admin/roles", "listRoles"},
		{http.MethodGet, "/api/admin/users", "listAdmins"},
	}
	for _, tt := range tests {
		item := doc.Paths.Value(tt.path)
		if item == nil {
			t.Errorf("missing path %s", tt.path)
			continue
		}
		op := item.GetOperation(tt.method)
		if op == nil || op.OperationID != tt.id {
			t.Errorf("%s %s: operation = %+v", tt.method, tt.path, op)
		}
	}
	if doc.Paths.Len() != 12 {
		t.Errorf("paths = %d, want 12", doc.Paths.Len())
	}
}

func TestGenerateAdminSpec_Security(t *testing.T) {
	doc := GenerateAdminSpec(Options{MasterRoles: []string{"Master Admin"}})

	cookie := doc.Components.SecuritySchemes["cookieAuth"]
	if cookie == nil || cookie.Value.In != "cookie" || cookie.Value.Name != "adminToken" {
		t.Errorf("cookieAuth = %+v", cookie)
	}
	bearer := doc.Components.SecuritySchemes["bearerAuth"]
	if bearer == nil || bearer.Value.Scheme != "bearer" || bearer.Value.BearerFormat != "JWT" {
		t.Errorf("bearerAuth = %+v", bearer)
	}

	login := doc.Paths.Value("/api/admin/login").Post
	if login.Security == nil || len(*login.Security) != 0 {
		t.Error("login must be public")
	}
	if login.Responses.Value("423") == nil || login.Responses.Value("401") != nil {
		t.Error("login responses should document 423 and not require auth")
	}

	profile := doc.Paths.Value("/api/admin/profile").Get
	if profile.Security != nil {
		t.Error("profile should inherit the global security requirement")
	}
	if profile.Responses.Value("401") == nil {
		t.Error("authenticated operations document 401")
	}

	roles := doc.Paths.Value("/api/admin/roles").Get
	if got, ok := roles.Extensions["x-required-roles"].([]string); !ok || len(got) != 1 || got[0] != "Master Admin" {
		t.Errorf("x-required-roles = %v", roles.Extensions["x-required-roles"])
	}
}

func TestGenerateAdminSpec_ActivityParameters(t *testing.T) {
	doc := GenerateAdminSpec(Options{})
	op := doc.Paths.Value("/api/admin/activity-logs").Get
	names := map[string]bool{}
	for _, p := range op.Parameters {
		names[p.Value.Name] = true
	}
	for _, want := range []string{"page", "limit", "action", "startDate", "endDate"} {
		if !names[want] {
			t.Errorf("missing parameter %q", want)
		}
	}
	history := doc.Paths.Value("/api/admin/login-history").Get
	if len(history.Parameters) != 2 {
		t.Errorf("login-history parameters = %d, want 2", len(history.Parameters))
	}
}
