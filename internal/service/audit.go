package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
)

const (
	DefaultHistoryLimit  = 20
	DefaultActivityLimit = 50
	maxLogLimit          = 200
)

// Client describes where a request came from.
type Client struct {
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
}

// Entry is one audit event to record.
type Entry struct {
	AdminID      int64
	Action       model.LoginAction
	Client       Client
	SessionID    string
	ErrorMessage string
	RequestData  interface{}
}

// AuditLog writes and queries the append-only admin audit trail. Writes
// never fail the operation they describe: errors are logged and dropped.
type AuditLog struct {
	store  *config.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLog(store *config.Store, logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{store: store, logger: logger, now: time.Now}
}

// Append records e. It returns nothing because the caller must proceed
// regardless of the outcome.
func (a *AuditLog) Append(ctx context.Context, e Entry) {
	row := &model.AdminLoginLog{
		AdminID:    e.AdminID,
		Action:     e.Action,
		IPAddress:  e.Client.IP,
		UserAgent:  e.Client.UserAgent,
		Endpoint:   e.Client.Endpoint,
		Method:     e.Client.Method,
		DeviceInfo: ParseDevice(e.Client.UserAgent),
		Timestamp:  a.now().UTC(),
	}
	if e.SessionID != "" {
		row.SessionID = &e.SessionID
	}
	if e.ErrorMessage != "" {
		row.ErrorMessage = &e.ErrorMessage
	}
	if e.RequestData != nil {
		data, err := json.Marshal(e.RequestData)
		if err != nil {
			a.logger.Warn("audit request data not serializable", "action", e.Action, "error", err)
		} else {
			row.RequestData = data
		}
	}

	if err := a.store.AppendLoginLog(ctx, row); err != nil {
		a.logger.Error("audit write failed",
			"action", e.Action,
			"admin_id", e.AdminID,
			"endpoint", e.Client.Endpoint,
			"error", err,
		)
	}
}

// History returns a page of an admin's audit rows without request payloads.
func (a *AuditLog) History(ctx context.Context, adminID int64, page, limit int) ([]model.AdminLoginLog, model.PageMeta, error) {
	page, limit = normalizePage(page, limit, DefaultHistoryLimit)
	logs, total, err := a.store.ListLoginLogs(ctx, adminID, model.LogFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, model.PageMeta{}, internalError("Failed to load login history", err)
	}
	for i := range logs {
		logs[i].RequestData = nil
	}
	return logs, model.NewPageMeta(total, page, limit), nil
}

// Activity returns a filtered page of an admin's audit rows.
func (a *AuditLog) Activity(ctx context.Context, adminID int64, f model.LogFilter, page int) ([]model.AdminLoginLog, model.PageMeta, error) {
	if f.Action != "" && !f.Action.Valid() {
		return nil, model.PageMeta{}, validationError("Unknown action filter", map[string]interface{}{"field": "action"})
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return nil, model.PageMeta{}, validationError("endDate must not be before startDate", map[string]interface{}{"field": "endDate"})
	}
	page, f.Limit = normalizePage(page, f.Limit, DefaultActivityLimit)
	f.Offset = (page - 1) * f.Limit

	logs, total, err := a.store.ListLoginLogs(ctx, adminID, f)
	if err != nil {
		return nil, model.PageMeta{}, internalError("Failed to load activity logs", err)
	}
	return logs, model.NewPageMeta(total, page, f.Limit), nil
}

func normalizePage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return page, limit
}

var (
	chromeVersion  = regexp.MustCompile(`chrome/(\d+)`)
	firefoxVersion = regexp.MustCompile(`firefox/(\d+)`)
	safariVersion  = regexp.MustCompile(`version/(\d+)`)
	edgeVersion    = regexp.MustCompile(`edg/(\d+)`)
)

// ParseDevice derives a coarse browser/OS/device summary from a user agent.
func ParseDevice(userAgent string) model.DeviceInfo {
	info := model.DeviceInfo{Browser: "Unknown", BrowserVersion: "Unknown", OS: "Unknown", Device: "Unknown"}
	if userAgent == "" {
		return info
	}
	ua := strings.ToLower(userAgent)

	version := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(ua); m != nil {
			return m[1]
		}
		return "Unknown"
	}
	switch {
	case strings.Contains(ua, "edg"):
		info.Browser, info.BrowserVersion = "Edge", version(edgeVersion)
	case strings.Contains(ua, "chrome"):
		info.Browser, info.BrowserVersion = "Chrome", version(chromeVersion)
	case strings.Contains(ua, "firefox"):
		info.Browser, info.BrowserVersion = "Firefox", version(firefoxVersion)
	case strings.Contains(ua, "safari"):
		info.Browser, info.BrowserVersion = "Safari", version(safariVersion)
	}

	switch {
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		info.OS = "iOS"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os x"):
		info.OS = "macOS"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	switch {
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		info.Device = "Tablet"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		info.Device = "Mobile"
	default:
		info.Device = "Desktop"
	}
	return info
}
