package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gatehouse-cms/gatehouse/internal/model"
)

// Store persists admins, roles, backup codes and the admin audit log. SQLite
// is the default backend; Postgres and MySQL are supported through Open.
type Store struct {
	db      *sqlx.DB
	dialect dialect
}

// NewStore creates a SQLite-backed store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "gatehouse.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open("sqlite", dsn)
}

// Open connects to the given backend and applies migrations. driver is one of
// sqlite, postgres or mysql. MySQL DSNs must set parseTime=true.
func Open(driver, dsn string) (*Store, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.name, err)
	}

	if d.name == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the canonical backend name (sqlite, postgres, mysql).
func (s *Store) Driver() string {
	return s.dialect.name
}

// NormalizeEmail lower-cases and trims an email address. All lookups and
// writes go through it so the unique index is case-insensitive in effect.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// insert runs a named INSERT and returns the new row id.
func (s *Store) insert(ctx context.Context, ext sqlx.ExtContext, query string, arg interface{}) (int64, error) {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return 0, err
	}
	q = ext.Rebind(q)

	if s.dialect.returning {
		var id int64
		if err := ext.QueryRowxContext(ctx, q+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := ext.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func isUniqueViolation(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(s string) ([]string, error) {
	out := []string{}
	if s == "" || s == "[]" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// roleRow maps 1:1 to the roles table. Includes and permissions are JSON
// arrays in TEXT columns.
type roleRow struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	Description     string    `db:"description"`
	RankOrder       int       `db:"rank_order"`
	IncludesJSON    string    `db:"includes_json"`
	PermissionsJSON string    `db:"permissions_json"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func roleRowFromModel(r *model.Role) (roleRow, error) {
	includes, err := marshalStrings(r.Includes)
	if err != nil {
		return roleRow{}, fmt.Errorf("marshal includes: %w", err)
	}
	perms, err := marshalStrings(r.Permissions)
	if err != nil {
		return roleRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	return roleRow{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		RankOrder:       r.Rank,
		IncludesJSON:    includes,
		PermissionsJSON: perms,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func (r roleRow) toModel() (model.Role, error) {
	includes, err := unmarshalStrings(r.IncludesJSON)
	if err != nil {
		return model.Role{}, fmt.Errorf("unmarshal includes: %w", err)
	}
	perms, err := unmarshalStrings(r.PermissionsJSON)
	if err != nil {
		return model.Role{}, fmt.Errorf("unmarshal permissions: %w", err)
	}
	return model.Role{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Rank:        r.RankOrder,
		Includes:    includes,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

const insertRoleQ = `INSERT INTO roles
	(name, description, rank_order, includes_json, permissions_json, created_at, updated_at)
	VALUES
	(:name, :description, :rank_order, :includes_json, :permissions_json, :created_at, :updated_at)`

// CreateRole inserts a new role. The ID, CreatedAt, and UpdatedAt fields are
// populated after a successful insert.
func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now

	row, err := roleRowFromModel(role)
	if err != nil {
		return err
	}
	id, err := s.insert(ctx, s.db, insertRoleQ, row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert role: %w", err)
	}
	role.ID = id
	return nil
}

// SeedRoles inserts every role whose name is not present yet, in a single
// transaction. Existing roles are left untouched. It returns the number of
// roles inserted.
func (s *Store) SeedRoles(ctx context.Context, roles []model.Role) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	inserted := 0
	for i := range roles {
		var count int
		if err := tx.GetContext(ctx, &count, tx.Rebind("SELECT COUNT(*) FROM roles WHERE name = ?"), roles[i].Name); err != nil {
			return 0, fmt.Errorf("check role %q: %w", roles[i].Name, err)
		}
		if count > 0 {
			continue
		}
		roles[i].CreatedAt = now
		roles[i].UpdatedAt = now
		row, err := roleRowFromModel(&roles[i])
		if err != nil {
			return 0, err
		}
		id, err := s.insert(ctx, tx, insertRoleQ, row)
		if err != nil {
			return 0, fmt.Errorf("insert role %q: %w", roles[i].Name, err)
		}
		roles[i].ID = id
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit roles: %w", err)
	}
	return inserted, nil
}

// GetRoleByName returns a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	var row roleRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM roles WHERE name = ?"), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role by name: %w", err)
	}
	role, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ListRoles returns all roles, most senior first.
func (s *Store) ListRoles(ctx context.Context) ([]model.Role, error) {
	var rows []roleRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM roles ORDER BY rank_order, name"); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	roles := make([]model.Role, 0, len(rows))
	for _, r := range rows {
		role, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", r.Name, err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

// adminRow maps the admins table joined with the role name.
type adminRow struct {
	ID                  int64      `db:"id"`
	Email               string     `db:"email"`
	PasswordHash        string     `db:"password_hash"`
	Name                string     `db:"name"`
	PhoneNumber         string     `db:"phone_number"`
	Department          string     `db:"department"`
	RoleID              int64      `db:"role_id"`
	RoleName            string     `db:"role_name"`
	IsActive            bool       `db:"is_active"`
	MFAEnabled          bool       `db:"mfa_enabled"`
	MFASecret           string     `db:"mfa_secret"`
	FailedLoginAttempts int        `db:"failed_login_attempts"`
	LockoutUntil        *time.Time `db:"lockout_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	PermissionsJSON     string     `db:"permissions_json"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

const selectAdmin = `SELECT a.id, a.email, a.password_hash, a.name, a.phone_number, a.department,
	a.role_id, COALESCE(r.name, '') AS role_name, a.is_active, a.mfa_enabled, a.mfa_secret,
	a.failed_login_attempts, a.lockout_until, a.last_login_at, a.permissions_json,
	a.created_at, a.updated_at
	FROM admins a LEFT JOIN roles r ON r.id = a.role_id`

func (r adminRow) toModel() (*model.Admin, error) {
	perms, err := unmarshalStrings(r.PermissionsJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal admin permissions: %w", err)
	}
	return &model.Admin{
		ID:                  r.ID,
		Email:               r.Email,
		PasswordHash:        r.PasswordHash,
		Name:                r.Name,
		PhoneNumber:         r.PhoneNumber,
		Department:          r.Department,
		RoleID:              r.RoleID,
		RoleName:            r.RoleName,
		IsActive:            r.IsActive,
		MFAEnabled:          r.MFAEnabled,
		MFASecret:           r.MFASecret,
		FailedLoginAttempts: r.FailedLoginAttempts,
		LockoutUntil:        utcPtr(r.LockoutUntil),
		LastLoginAt:         utcPtr(r.LastLoginAt),
		Permissions:         perms,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// CreateAdmin inserts a new admin account. The email is normalized; the ID,
// CreatedAt, and UpdatedAt fields are populated after a successful insert.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	now := time.Now().UTC()
	admin.Email = NormalizeEmail(admin.Email)
	admin.CreatedAt = now
	admin.UpdatedAt = now

	perms, err := marshalStrings(admin.Permissions)
	if err != nil {
		return fmt.Errorf("marshal admin permissions: %w", err)
	}
	row := adminRow{
		Email:           admin.Email,
		PasswordHash:    admin.PasswordHash,
		Name:            admin.Name,
		PhoneNumber:     admin.PhoneNumber,
		Department:      admin.Department,
		RoleID:          admin.RoleID,
		IsActive:        admin.IsActive,
		PermissionsJSON: perms,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	const q = `INSERT INTO admins
		(email, password_hash, name, phone_number, department, role_id, is_active,
		 mfa_enabled, mfa_secret, failed_login_attempts, permissions_json, created_at, updated_at)
		VALUES
		(:email, :password_hash, :name, :phone_number, :department, :role_id, :is_active,
		 :mfa_enabled, :mfa_secret, :failed_login_attempts, :permissions_json, :created_at, :updated_at)`

	id, err := s.insert(ctx, s.db, q, row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	admin.ID = id
	return nil
}

// GetAdminByEmail returns an admin by (normalized) email address.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var row adminRow
	q := s.db.Rebind(selectAdmin + " WHERE a.email = ?")
	if err := s.db.GetContext(ctx, &row, q, NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return row.toModel()
}

// GetAdminByID returns an admin by primary key.
func (s *Store) GetAdminByID(ctx context.Context, id int64) (*model.Admin, error) {
	var row adminRow
	q := s.db.Rebind(selectAdmin + " WHERE a.id = ?")
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return row.toModel()
}

// ListAdmins returns all admin accounts ordered by email.
func (s *Store) ListAdmins(ctx context.Context) ([]*model.Admin, error) {
	var rows []adminRow
	if err := s.db.SelectContext(ctx, &rows, selectAdmin+" ORDER BY a.email"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	admins := make([]*model.Admin, 0, len(rows))
	for _, r := range rows {
		a, err := r.toModel()
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, nil
}

// HasAnyAdmin reports whether at least one admin account exists. This is used
// for first-run detection.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// execOne runs an UPDATE that must touch exactly one admin row.
func (s *Store) execOne(ctx context.Context, what, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLoginState applies fn to the admin's lockout counters under a row
// lock and persists the result. Concurrent callers for the same admin are
// serialised, so read-modify-write sequences never lose an increment.
func (s *Store) UpdateLoginState(ctx context.Context, id int64, fn func(model.LoginState) model.LoginState) (model.LoginState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.LoginState{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var row struct {
		FailedLoginAttempts int        `db:"failed_login_attempts"`
		LockoutUntil        *time.Time `db:"lockout_until"`
		LastLoginAt         *time.Time `db:"last_login_at"`
	}
	q := tx.Rebind("SELECT failed_login_attempts, lockout_until, last_login_at FROM admins WHERE id = ?" + s.dialect.forUpdate)
	if err := tx.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LoginState{}, ErrNotFound
		}
		return model.LoginState{}, fmt.Errorf("lock admin row: %w", err)
	}

	next := fn(model.LoginState{
		FailedLoginAttempts: row.FailedLoginAttempts,
		LockoutUntil:        utcPtr(row.LockoutUntil),
		LastLoginAt:         utcPtr(row.LastLoginAt),
	})

	_, err = tx.ExecContext(ctx,
		tx.Rebind("UPDATE admins SET failed_login_attempts = ?, lockout_until = ?, last_login_at = ?, updated_at = ? WHERE id = ?"),
		next.FailedLoginAttempts, next.LockoutUntil, next.LastLoginAt, time.Now().UTC(), id)
	if err != nil {
		return model.LoginState{}, fmt.Errorf("update login state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.LoginState{}, fmt.Errorf("commit login state: %w", err)
	}
	return next, nil
}

// UpdateAdminProfile applies the non-nil fields of upd.
func (s *Store) UpdateAdminProfile(ctx context.Context, id int64, upd model.ProfileUpdate) error {
	sets := []string{}
	args := []interface{}{}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, NormalizeEmail(*upd.Email))
	}
	if upd.PhoneNumber != nil {
		sets = append(sets, "phone_number = ?")
		args = append(args, *upd.PhoneNumber)
	}
	if upd.Department != nil {
		sets = append(sets, "department = ?")
		args = append(args, *upd.Department)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	return s.execOne(ctx, "update admin profile",
		"UPDATE admins SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
}

// UpdateAdminPassword replaces the stored password hash.
func (s *Store) UpdateAdminPassword(ctx context.Context, id int64, hash string) error {
	return s.execOne(ctx, "update admin password",
		"UPDATE admins SET password_hash = ?, updated_at = ? WHERE id = ?", hash, time.Now().UTC(), id)
}

// SetAdminActive activates or deactivates an admin.
func (s *Store) SetAdminActive(ctx context.Context, id int64, active bool) error {
	return s.execOne(ctx, "set admin active",
		"UPDATE admins SET is_active = ?, updated_at = ? WHERE id = ?", active, time.Now().UTC(), id)
}

// SetAdminRole assigns a different role to an admin.
func (s *Store) SetAdminRole(ctx context.Context, id, roleID int64) error {
	return s.execOne(ctx, "set admin role",
		"UPDATE admins SET role_id = ?, updated_at = ? WHERE id = ?", roleID, time.Now().UTC(), id)
}

// ---------------------------------------------------------------------------
// MFA
// ---------------------------------------------------------------------------

// EnableMFA stores the TOTP secret, flags MFA on and replaces the admin's
// backup-code set with codeHashes, atomically.
func (s *Store) EnableMFA(ctx context.Context, id int64, secret string, codeHashes []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE admins SET mfa_enabled = ?, mfa_secret = ?, updated_at = ? WHERE id = ?"),
		true, secret, now, id)
	if err != nil {
		return fmt.Errorf("enable mfa: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM admin_backup_codes WHERE admin_id = ?"), id); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}
	for _, h := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind("INSERT INTO admin_backup_codes (admin_id, code_hash, created_at) VALUES (?, ?, ?)"),
			id, h, now); err != nil {
			return fmt.Errorf("insert backup code: %w", err)
		}
	}

	return tx.Commit()
}

// DisableMFA clears the MFA flag, the secret and every backup code.
func (s *Store) DisableMFA(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE admins SET mfa_enabled = ?, mfa_secret = '', updated_at = ? WHERE id = ?"),
		false, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("disable mfa: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM admin_backup_codes WHERE admin_id = ?"), id); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}
	return tx.Commit()
}

// ConsumeBackupCode deletes the backup code with the given hash. It reports
// true only for the caller whose delete removed the row, so a code can be
// spent at most once even under concurrent use.
func (s *Store) ConsumeBackupCode(ctx context.Context, adminID int64, codeHash string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM admin_backup_codes WHERE admin_id = ? AND code_hash = ?"), adminID, codeHash)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume backup code rows affected: %w", err)
	}
	return n == 1, nil
}

// CountBackupCodes returns how many unused backup codes an admin has left.
func (s *Store) CountBackupCodes(ctx context.Context, adminID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM admin_backup_codes WHERE admin_id = ?"), adminID); err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

type loginLogRow struct {
	ID           int64     `db:"id"`
	AdminID      int64     `db:"admin_id"`
	Action       string    `db:"action"`
	IPAddress    string    `db:"ip_address"`
	UserAgent    string    `db:"user_agent"`
	Endpoint     string    `db:"endpoint"`
	Method       string    `db:"method"`
	SessionID    *string   `db:"session_id"`
	ErrorMessage *string   `db:"error_message"`
	RequestData  *string   `db:"request_data"`
	DeviceJSON   string    `db:"device_json"`
	OccurredAt   time.Time `db:"occurred_at"`
}

func (r loginLogRow) toModel() model.AdminLoginLog {
	entry := model.AdminLoginLog{
		ID:           r.ID,
		AdminID:      r.AdminID,
		Action:       model.LoginAction(r.Action),
		IPAddress:    r.IPAddress,
		UserAgent:    r.UserAgent,
		Endpoint:     r.Endpoint,
		Method:       r.Method,
		SessionID:    r.SessionID,
		ErrorMessage: r.ErrorMessage,
		Timestamp:    r.OccurredAt.UTC(),
	}
	if r.RequestData != nil && *r.RequestData != "" {
		entry.RequestData = json.RawMessage(*r.RequestData)
	}
	if r.DeviceJSON != "" {
		_ = json.Unmarshal([]byte(r.DeviceJSON), &entry.DeviceInfo)
	}
	return entry
}

// AppendLoginLog inserts one audit row. There is no update or delete
// counterpart: the log is append-only.
func (s *Store) AppendLoginLog(ctx context.Context, entry *model.AdminLoginLog) error {
	if entry.AdminID == 0 {
		return fmt.Errorf("append login log: admin id is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	device, err := json.Marshal(entry.DeviceInfo)
	if err != nil {
		return fmt.Errorf("marshal device info: %w", err)
	}
	row := loginLogRow{
		AdminID:      entry.AdminID,
		Action:       string(entry.Action),
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Endpoint:     entry.Endpoint,
		Method:       entry.Method,
		SessionID:    entry.SessionID,
		ErrorMessage: entry.ErrorMessage,
		DeviceJSON:   string(device),
		OccurredAt:   entry.Timestamp.UTC(),
	}
	if len(entry.RequestData) > 0 {
		data := string(entry.RequestData)
		row.RequestData = &data
	}

	const q = `INSERT INTO admin_login_logs
		(admin_id, action, ip_address, user_agent, endpoint, method, session_id,
		 error_message, request_data, device_json, occurred_at)
		VALUES
		(:admin_id, :action, :ip_address, :user_agent, :endpoint, :method, :session_id,
		 :error_message, :request_data, :device_json, :occurred_at)`

	id, err := s.insert(ctx, s.db, q, row)
	if err != nil {
		return fmt.Errorf("insert login log: %w", err)
	}
	entry.ID = id
	return nil
}

// ListLoginLogs returns one page of an admin's audit rows, newest first,
// together with the total number of rows matching the filter.
func (s *Store) ListLoginLogs(ctx context.Context, adminID int64, f model.LogFilter) ([]model.AdminLoginLog, int64, error) {
	where := []string{"admin_id = ?"}
	args := []interface{}{adminID}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.Start != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.Start.UTC())
	}
	if f.End != nil {
		where = append(where, "occurred_at <= ?")
		args = append(args, f.End.UTC())
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM admin_login_logs"+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count login logs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	pageArgs := append(append([]interface{}{}, args...), limit, f.Offset)
	var rows []loginLogRow
	q := s.db.Rebind("SELECT * FROM admin_login_logs" + clause + " ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?")
	if err := s.db.SelectContext(ctx, &rows, q, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("list login logs: %w", err)
	}

	logs := make([]model.AdminLoginLog, len(rows))
	for i, r := range rows {
		logs[i] = r.toModel()
	}
	return logs, total, nil
}
