package middleware

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gatehouse-cms/gatehouse/internal/model"
	"github.com/gatehouse-cms/gatehouse/internal/service"
)

// LoginPath is where browser clients are sent when a session is missing or
// no longer usable.
const LoginPath = "/admin/login"

// Denier returns the standard Deny. API clients get a JSON error body;
// clients that accept text/html are redirected to the login page, except
// for role denials which render an access-denied page. An expired session
// cookie is always cleared.
func Denier(secureCookies bool) Deny {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, service.ErrTokenExpired) {
			http.SetCookie(w, service.ClearSessionCookie(secureCookies))
		}

		var e *service.Error
		if !errors.As(err, &e) {
			e = &service.Error{Kind: service.KindInternal, Message: "Server error", Err: err}
		}

		if WantsHTML(r) {
			if errors.Is(err, service.ErrInsufficientRole) {
				renderDenied(w, e)
				return
			}
			http.Redirect(w, r, loginRedirect(err), http.StatusFound)
			return
		}
		WriteError(w, e.Kind.Status(), e.Message, e.Fields)
	}
}

// WantsHTML reports whether the client prefers an HTML response.
func WantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func loginRedirect(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return LoginPath + "?expired=true"
	case errors.Is(err, service.ErrAccountInactive):
		return LoginPath + "?inactive=true"
	case errors.Is(err, service.ErrNoRole):
		return LoginPath + "?error=norole"
	}
	return LoginPath
}

// WriteError writes the flat JSON error body used across the API.
func WriteError(w http.ResponseWriter, status int, message string, extra map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{Code: status, Message: message, Extra: extra})
}

var deniedPage = template.Must(template.New("denied").Parse(`<!DOCTYPE html>
<html><head><title>Access Denied</title></head>
<body>
<h1>Access Denied</h1>
<p>{{.Message}}</p>
{{with .UserRole}}<p>Your role: {{.}}</p>{{end}}
{{with .RequiredRoles}}<p>Allowed roles: {{range $i, $r := .}}{{if $i}}, {{end}}{{$r}}{{end}}</p>{{end}}
</body></html>
`))

func renderDenied(w http.ResponseWriter, e *service.Error) {
	data := struct {
		Message       string
		UserRole      interface{}
		RequiredRoles interface{}
	}{Message: "You do not have permission to access this page."}
	if e.Fields != nil {
		data.UserRole = e.Fields["userRole"]
		data.RequiredRoles = e.Fields["requiredRoles"]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	deniedPage.Execute(w, data)
}
