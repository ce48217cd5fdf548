package handler

import (
	"log/slog"
	"net/http"

	"github.com/gatehouse-cms/gatehouse/internal/model"
	"github.com/gatehouse-cms/gatehouse/internal/server/middleware"
	"github.com/gatehouse-cms/gatehouse/internal/service"
)

// AdminHandler serves the admin session, profile, MFA and audit endpoints.
type AdminHandler struct {
	auth          *service.AuthService
	secureCookies bool
	logger        *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. secureCookies sets the Secure
// flag on the session cookie and should be true in production.
func NewAdminHandler(auth *service.AuthService, secureCookies bool, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{auth: auth, secureCookies: secureCookies, logger: logger}
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
}

type loginResponse struct {
	Message string             `json:"message"`
	Admin   model.AdminProfile `json:"admin"`
	Token   string             `json:"token"`
}

// Login checks credentials and starts a session.
// POST /api/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), service.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		MFACode:  req.MFACode,
		Client:   middleware.ClientFrom(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, h.auth.Tokens().SessionCookie(res.Token, h.secureCookies))
	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Admin login successful",
		Admin:   res.Admin,
		Token:   res.Token.Value,
	})
}

// Logout revokes the current token and clears the session cookie.
// POST /api/admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	acc := middleware.GetAccess(r.Context())
	h.auth.Logout(r.Context(), acc.Identity, acc.Token, acc.Client)
	http.SetCookie(w, service.ClearSessionCookie(h.secureCookies))
	writeMessage(w, http.StatusOK, "Admin logout successful")
}

// Status reports the authenticated admin.
// GET /api/admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"authenticated": true,
		"admin":         h.auth.Profile(id),
	})
}

// ---------------------------------------------------------------------------
// Profile
// ---------------------------------------------------------------------------

// GetProfile returns the authenticated admin's profile.
// GET /api/admin/profile
func (h *AdminHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"admin": h.auth.Profile(id)})
}

// UpdateProfile changes name, email, phone number or department.
// PUT /api/admin/profile
func (h *AdminHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd model.ProfileUpdate
	if err := readJSON(w, r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}
	acc := middleware.GetAccess(r.Context())
	profile, err := h.auth.UpdateProfile(r.Context(), acc.Identity, upd, acc.Client)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated successfully",
		"admin":   profile,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword replaces the password after re-checking the current one.
// PUT /api/admin/change-password
func (h *AdminHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	acc := middleware.GetAccess(r.Context())
	if err := h.auth.ChangePassword(r.Context(), acc.Identity, req.CurrentPassword, req.NewPassword, acc.Client); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

// ---------------------------------------------------------------------------
// MFA
// ---------------------------------------------------------------------------

// SetupMFA generates a candidate TOTP secret and its QR code.
// POST /api/admin/mfa/setup
func (h *AdminHandler) SetupMFA(w http.ResponseWriter, r *http.Request) {
	setup, err := h.auth.SetupMFA(middleware.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"secret":  setup.Secret,
		"qrCode":  setup.QRCode,
		"message": "Scan the QR code with your authenticator app",
	})
}

type verifyMFARequest struct {
	Code   string `json:"code"`
	Secret string `json:"secret"`
}

// VerifyMFA confirms the candidate secret and enables MFA.
// POST /api/admin/mfa/verify
func (h *AdminHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req verifyMFARequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	acc := middleware.GetAccess(r.Context())
	codes, err := h.auth.EnableMFA(r.Context(), acc.Identity, req.Secret, req.Code, acc.Client)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "MFA enabled successfully",
		"backupCodes": codes,
	})
}

type disableMFARequest struct {
	Password string `json:"password"`
}

// DisableMFA turns MFA off after re-checking the password.
// POST /api/admin/mfa/disable
func (h *AdminHandler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	var req disableMFARequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	acc := middleware.GetAccess(r.Context())
	if err := h.auth.DisableMFA(r.Context(), acc.Identity, req.Password, acc.Client); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "MFA disabled successfully")
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// LoginHistory pages through the caller's audit rows without payloads.
// GET /api/admin/login-history?page=&limit=
func (h *AdminHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	logs, meta, err := h.auth.Audit().History(r.Context(), id.AdminID(),
		queryInt(r, "page", 1), queryInt(r, "limit", service.DefaultHistoryLimit))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loginHistory": nonNil(logs),
		"totalCount":   meta.TotalCount,
		"totalPages":   meta.TotalPages,
		"currentPage":  meta.CurrentPage,
	})
}

// ActivityLogs pages through the caller's audit rows with filters.
// GET /api/admin/activity-logs?page=&limit=&action=&startDate=&endDate=
func (h *AdminHandler) ActivityLogs(w http.ResponseWriter, r *http.Request) {
	start, err := queryTime(r, "startDate", false)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	end, err := queryTime(r, "endDate", true)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := middleware.GetIdentity(r.Context())
	logs, meta, err := h.auth.Audit().Activity(r.Context(), id.AdminID(), model.LogFilter{
		Action: model.LoginAction(r.URL.Query().Get("action")),
		Start:  start,
		End:    end,
		Limit:  queryInt(r, "limit", service.DefaultActivityLimit),
	}, queryInt(r, "page", 1))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activityLogs": nonNil(logs),
		"totalCount":   meta.TotalCount,
		"totalPages":   meta.TotalPages,
		"currentPage":  meta.CurrentPage,
	})
}

// ---------------------------------------------------------------------------
// Hierarchy and accounts (Master Admin)
// ---------------------------------------------------------------------------

// ListRoles describes the role hierarchy.
// GET /api/admin/roles
func (h *AdminHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": h.auth.Roles()})
}

// ListUsers lists every admin's public profile.
// GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	admins, err := h.auth.ListAdmins(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"admins": admins})
}

func nonNil(logs []model.AdminLoginLog) []model.AdminLoginLog {
	if logs == nil {
		return []model.AdminLoginLog{}
	}
	return logs
}
