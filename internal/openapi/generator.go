package openapi

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// APIPrefix is where the admin API is mounted.
const APIPrefix = "/api/admin"

// Options describes the deployment the document is generated for.
type Options struct {
	BaseURL string
	Version string
	// MasterRoles are the roles allowed through the Master Admin guard, in
	// rank order. They are published as x-required-roles.
	MasterRoles []string
}

// endpoint is one documented admin API operation.
type endpoint struct {
	method      string
	path        string
	id          string
	summary     string
	tag         string
	public      bool
	master      bool
	request     string
	response    string
	params      openapi3.Parameters
	extraErrors []string
}

// GenerateAdminSpec builds the OpenAPI 3.0 document for the admin identity
// API: session, profile, MFA, audit and hierarchy endpoints.
func GenerateAdminSpec(opts Options) *openapi3.T {
	version := opts.Version
	if version == "" {
		version = "1.0.0"
	}
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Gatehouse Admin API",
			Description: "Admin authentication, MFA, role hierarchy and audit trail for the CMS back office.",
			Version:     version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		},
		"cookieAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{Type: "apiKey", In: "cookie", Name: "adminToken"},
		},
	}
	doc.Components = &components
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
		{"cookieAuth": {}},
	}

	doc.Paths = openapi3.NewPaths()
	for _, e := range endpoints() {
		addEndpoint(doc, e, opts.MasterRoles)
	}
	return doc
}

func endpoints() []endpoint {
	pageParams := openapi3.Parameters{
		queryParam("page", "Page number, starting at 1.", integerSchema("int32")),
		queryParam("limit", "Rows per page (capped at 200).", integerSchema("int32")),
	}
	activityParams := append(openapi3.Parameters{}, pageParams...)
	activityParams = append(activityParams,
		queryParam("action", "Only rows with this action.", actionSchema()),
		queryParam("startDate", "Earliest timestamp (RFC 3339 or YYYY-MM-DD).", stringSchema()),
		queryParam("endDate", "Latest timestamp (RFC 3339 or YYYY-MM-DD, inclusive).", stringSchema()),
	)

	return []endpoint{
		{method: http.MethodPost, path: "/login", id: "adminLogin", summary: "Start an admin session", tag: "session",
			public: true, request: "LoginRequest", response: "LoginResponse", extraErrors: []string{"403", "423", "429"}},
		{method: http.MethodPost, path: "/logout", id: "adminLogout", summary: "End the current session", tag: "session",
			response: "MessageResponse"},
		{method: http.MethodGet, path: "/status", id: "adminStatus", summary: "Report the authenticated admin", tag: "session",
			response: "StatusResponse"},
		{method: http.MethodGet, path: "/profile", id: "getAdminProfile", summary: "Get the caller's profile", tag: "profile",
			response: "ProfileResponse"},
		{method: http.MethodPut, path: "/profile", id: "updateAdminProfile", summary: "Update the caller's profile", tag: "profile",
			request: "ProfileUpdate", response: "ProfileUpdateResponse"},
		{method: http.MethodPut, path: "/change-password", id: "changeAdminPassword", summary: "Change the caller's password", tag: "profile",
			request: "ChangePasswordRequest", response: "MessageResponse"},
		{method: http.MethodPost, path: "/mfa/setup", id: "setupMFA", summary: "Generate a TOTP secret and QR code", tag: "mfa",
			response: "MFASetupResponse"},
		{method: http.MethodPost, path: "/mfa/verify", id: "verifyMFA", summary: "Confirm the secret and enable MFA", tag: "mfa",
			request: "MFAVerifyRequest", response: "MFAVerifyResponse"},
		{method: http.MethodPost, path: "/mfa/disable", id: "disableMFA", summary: "Disable MFA", tag: "mfa",
			request: "MFADisableRequest", response: "MessageResponse"},
		{method: http.MethodGet, path: "/login-history", id: "getLoginHistory", summary: "Page through the caller's audit rows", tag: "audit",
			response: "LoginHistoryResponse", params: pageParams},
		{method: http.MethodGet, path: "/activity-logs", id: "getActivityLogs", summary: "Filter the caller's audit rows", tag: "audit",
			response: "ActivityLogsResponse", params: activityParams},
		{method: http.MethodGet, path: "/roles", id: "listRoles", summary: "Describe the role hierarchy", tag: "hierarchy",
			master: true, response: "RolesResponse", extraErrors: []string{"403"}},
		{method: http.MethodGet, path: "/users", id: "listAdmins", summary: "List admin accounts", tag: "hierarchy",
			master: true, response: "UsersResponse", extraErrors: []string{"403"}},
	}
}

func addEndpoint(doc *openapi3.T, e endpoint, masterRoles []string) {
	op := &openapi3.Operation{
		OperationID: e.id,
		Summary:     e.summary,
		Tags:        []string{e.tag},
		Parameters:  e.params,
	}
	if e.public {
		op.Security = &openapi3.SecurityRequirements{}
	}
	if e.master && len(masterRoles) > 0 {
		op.Extensions = map[string]interface{}{"x-required-roles": masterRoles}
	}
	if e.request != "" {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(schemaRef(e.request)),
		}
	}

	errs := []string{"400", "500"}
	if !e.public {
		errs = append(errs, "401")
	}
	op.Responses = newResponses(schemaRef(e.response), append(errs, e.extraErrors...))

	path := APIPrefix + e.path
	item := doc.Paths.Value(path)
	if item == nil {
		item = &openapi3.PathItem{}
		doc.Paths.Set(path, item)
	}
	item.SetOperation(e.method, op)
}

var errorDescriptions = map[string]string{
	"400": "Validation failed or MFA code required",
	"401": "Not authenticated or credentials rejected",
	"403": "Account inactive or role not allowed",
	"423": "Account locked",
	"429": "Too many requests",
	"500": "Internal server error",
}

func newResponses(success *openapi3.SchemaRef, errorCodes []string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	okDesc := "OK"
	responses.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &okDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(success),
		},
	})
	errorRef := schemaRef("ErrorResponse")
	for _, code := range errorCodes {
		desc := errorDescriptions[code]
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

// ─── Schemas ────────────────────────────────────────────────────────────────

func componentSchemas() openapi3.Schemas {
	adminProfile := objectSchema(map[string]*openapi3.SchemaRef{
		"id":          integerSchema("int64"),
		"name":        stringSchema(),
		"email":       stringSchema(),
		"role":        stringSchema(),
		"permissions": arraySchema(stringSchema()),
		"phoneNumber": stringSchema(),
		"department":  stringSchema(),
		"mfaEnabled":  booleanSchema(),
		"isActive":    booleanSchema(),
		"lastLoginAt": dateTimeSchema(),
	}, "id", "email", "role", "permissions")

	auditRow := objectSchema(map[string]*openapi3.SchemaRef{
		"id":           integerSchema("int64"),
		"adminId":      integerSchema("int64"),
		"action":       actionSchema(),
		"ipAddress":    stringSchema(),
		"userAgent":    stringSchema(),
		"endpoint":     stringSchema(),
		"method":       stringSchema(),
		"sessionId":    stringSchema(),
		"errorMessage": stringSchema(),
		"requestData":  {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
		"deviceInfo": objectSchema(map[string]*openapi3.SchemaRef{
			"browser":        stringSchema(),
			"browserVersion": stringSchema(),
			"os":             stringSchema(),
			"device":         stringSchema(),
		}),
		"timestamp": dateTimeSchema(),
	}, "id", "adminId", "action", "timestamp")

	page := func(key string) *openapi3.SchemaRef {
		return objectSchema(map[string]*openapi3.SchemaRef{
			key:           arraySchema(schemaRef("AuditLog")),
			"totalCount":  integerSchema("int64"),
			"totalPages":  integerSchema("int64"),
			"currentPage": integerSchema("int32"),
		}, key, "totalCount", "totalPages", "currentPage")
	}

	errorResponse := objectSchema(map[string]*openapi3.SchemaRef{
		"code":          integerSchema("int32"),
		"message":       stringSchema(),
		"mfaRequired":   booleanSchema(),
		"lockoutUntil":  dateTimeSchema(),
		"expired":       booleanSchema(),
		"requiredRoles": arraySchema(stringSchema()),
		"userRole":      stringSchema(),
	}, "code", "message")
	errorResponse.Value.AdditionalProperties = openapi3.AdditionalProperties{Has: boolPtr(true)}

	return openapi3.Schemas{
		"ErrorResponse":   errorResponse,
		"AdminProfile":    adminProfile,
		"AuditLog":        auditRow,
		"MessageResponse": objectSchema(map[string]*openapi3.SchemaRef{"message": stringSchema()}, "message"),
		"LoginRequest": objectSchema(map[string]*openapi3.SchemaRef{
			"email":    {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
			"password": stringSchema(),
			"mfaCode":  {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "TOTP code or backup code"}},
		}, "email", "password"),
		"LoginResponse": objectSchema(map[string]*openapi3.SchemaRef{
			"message": stringSchema(),
			"admin":   schemaRef("AdminProfile"),
			"token":   stringSchema(),
		}, "message", "admin", "token"),
		"StatusResponse": objectSchema(map[string]*openapi3.SchemaRef{
			"success":       booleanSchema(),
			"authenticated": booleanSchema(),
			"admin":         schemaRef("AdminProfile"),
		}, "success", "authenticated", "admin"),
		"ProfileResponse": objectSchema(map[string]*openapi3.SchemaRef{
			"admin": schemaRef("AdminProfile"),
		}, "admin"),
		"ProfileUpdate": objectSchema(map[string]*openapi3.SchemaRef{
			"name":        stringSchema(),
			"email":       stringSchema(),
			"phoneNumber": stringSchema(),
			"department":  stringSchema(),
		}),
		"ProfileUpdateResponse": objectSchema(map[string]*openapi3.SchemaRef{
			"message": stringSchema(),
			"admin":   schemaRef("AdminProfile"),
		}, "message", "admin"),
		"ChangePasswordRequest": objectSchema(map[string]*openapi3.SchemaRef{
			"currentPassword": stringSchema(),
			"newPassword":     {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, MinLength: 8}},
		}, "currentPassword", "newPassword"),
		"MFASetupResponse": objectSchema(map[string]*openapi3.SchemaRef{
			"secret":  stringSchema(),
			"qrCode":  {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "PNG data URL"}},
			"message": stringSchema(),
		}, "secret", "qrCode"),
		"MFAVerifyRequest": objectSchema(map[string]*openapi3.SchemaRef{
			"code":   stringSchema(),
			"secret": stringSchema(),
		}, "code", "secret"),
		"MFAVerifyResponse": objectSchema(map[string]*openapi3.SchemaRef{
			"message":     stringSchema(),
			"backupCodes": arraySchema(stringSchema()),
		}, "message", "backupCodes"),
		"MFADisableRequest": objectSchema(map[string]*openapi3.SchemaRef{
			"password": stringSchema(),
		}, "password"),
		"LoginHistoryResponse": page("loginHistory"),
		"ActivityLogsResponse": page("activityLogs"),
		"RolesResponse": objectSchema(map[string]*openapi3.SchemaRef{
			"roles": arraySchema(objectSchema(map[string]*openapi3.SchemaRef{
				"name":         stringSchema(),
				"description":  stringSchema(),
				"rank":         integerSchema("int32"),
				"includes":     arraySchema(stringSchema()),
				"permissions":  arraySchema(stringSchema()),
				"allowedRoles": arraySchema(stringSchema()),
			}, "name", "rank")),
		}, "roles"),
		"UsersResponse": objectSchema(map[string]*openapi3.SchemaRef{
			"admins": arraySchema(schemaRef("AdminProfile")),
		}, "admins"),
	}
}

func schemaRef(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func objectSchema(props map[string]*openapi3.SchemaRef, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: openapi3.Schemas(props),
		Required:   required,
	}}
}

func arraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func stringSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func dateTimeSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}}
}

func integerSchema(format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: format}}
}

func booleanSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
}

func actionSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"string"},
		Enum: []interface{}{
			"login", "failed_login", "logout", "page_access",
			"profile_update", "password_change", "mfa_enabled", "mfa_disabled",
		},
	}}
}

func queryParam(name, description string, schema *openapi3.SchemaRef) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        name,
		In:          openapi3.ParameterInQuery,
		Description: description,
		Schema:      schema,
	}}
}

func boolPtr(b bool) *bool { return &b }
