package model

import (
	"encoding/json"
	"time"
)

// LoginAction labels an audit row.
type LoginAction string

const (
	ActionLogin          LoginAction = "login"
	ActionFailedLogin    LoginAction = "failed_login"
	ActionLogout         LoginAction = "logout"
	ActionPageAccess     LoginAction = "page_access"
	ActionProfileUpdate  LoginAction = "profile_update"
	ActionPasswordChange LoginAction = "password_change"
	ActionMFAEnabled     LoginAction = "mfa_enabled"
	ActionMFADisabled    LoginAction = "mfa_disabled"
)

// Valid reports whether a is one of the known audit actions.
func (a LoginAction) Valid() bool {
	switch a {
	case ActionLogin, ActionFailedLogin, ActionLogout, ActionPageAccess,
		ActionProfileUpdate, ActionPasswordChange, ActionMFAEnabled, ActionMFADisabled:
		return true
	}
	return false
}

// DeviceInfo is a coarse summary of the client derived from its user agent.
type DeviceInfo struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	Device         string `json:"device"`
}

// AdminLoginLog is one immutable audit row. Rows are only ever inserted.
type AdminLoginLog struct {
	ID           int64           `json:"id"`
	AdminID      int64           `json:"adminId"`
	Action       LoginAction     `json:"action"`
	IPAddress    string          `json:"ipAddress"`
	UserAgent    string          `json:"userAgent,omitempty"`
	Endpoint     string          `json:"endpoint,omitempty"`
	Method       string          `json:"method,omitempty"`
	SessionID    *string         `json:"sessionId,omitempty"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	RequestData  json.RawMessage `json:"requestData,omitempty"`
	DeviceInfo   DeviceInfo      `json:"deviceInfo"`
	Timestamp    time.Time       `json:"timestamp"`
}

// LogFilter narrows an audit query for one admin. Zero values mean "no
// constraint"; Limit and Offset page the newest-first result.
type LogFilter struct {
	Action LoginAction
	Start  *time.Time
	End    *time.Time
	Limit  int
	Offset int
}
