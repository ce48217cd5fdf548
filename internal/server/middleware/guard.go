package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/gatehouse-cms/gatehouse/internal/service"
)

type contextKeyAccess string

// AccessKey is the context key for the request's *Access.
const AccessKey contextKeyAccess = "admin_access"

// Access is the state a guard pipeline builds up for one request. It is
// nil until a guard establishes who is calling.
type Access struct {
	Identity *service.Identity
	Token    string
	Client   service.Client
}

// Guard inspects a request and the access established so far. It returns
// the access to pass to the next guard, or an error that stops the chain.
// Guards never write to the response.
type Guard func(r *http.Request, acc *Access) (*Access, error)

// Deny renders a guard failure.
type Deny func(w http.ResponseWriter, r *http.Request, err error)

// Chain runs guards in order and stops at the first error, which is handed
// to deny. When every guard passes, the final *Access is attached to the
// request context.
func Chain(deny Deny, guards ...Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var acc *Access
			for _, guard := range guards {
				out, err := guard(r, acc)
				if err != nil {
					deny(w, r, err)
					return
				}
				acc = out
				if acc != nil && acc.Identity != nil {
					noteAdmin(r.Context(), acc.Identity.AdminID())
				}
			}
			ctx := context.WithValue(r.Context(), AccessKey, acc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccess extracts the access attached by Chain. Returns nil for
// requests that did not pass through a guard pipeline.
func GetAccess(ctx context.Context) *Access {
	if acc, ok := ctx.Value(AccessKey).(*Access); ok {
		return acc
	}
	return nil
}

// GetIdentity returns the authenticated identity, or nil.
func GetIdentity(ctx context.Context) *service.Identity {
	if acc := GetAccess(ctx); acc != nil {
		return acc.Identity
	}
	return nil
}

// ClientFrom describes the caller for audit rows. The IP comes from
// RemoteAddr, which chi's RealIP middleware rewrites from proxy headers.
func ClientFrom(r *http.Request) service.Client {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.Client{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.RequestURI(),
		Method:    r.Method,
	}
}
