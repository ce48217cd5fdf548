package config

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	d := s.dialect
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS roles (
			id %[1]s,
			name %[2]s NOT NULL UNIQUE,
			description TEXT NOT NULL,
			rank_order INTEGER NOT NULL DEFAULT 0,
			includes_json TEXT NOT NULL,
			permissions_json TEXT NOT NULL,
			created_at %[3]s NOT NULL,
			updated_at %[3]s NOT NULL
		)`, d.id, d.varchar, d.timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS admins (
			id %[1]s,
			email %[2]s NOT NULL UNIQUE,
			password_hash %[2]s NOT NULL,
			name %[2]s NOT NULL DEFAULT '',
			phone_number %[2]s NOT NULL DEFAULT '',
			department %[2]s NOT NULL DEFAULT '',
			role_id %[3]s NOT NULL REFERENCES roles(id),
			is_active %[4]s NOT NULL DEFAULT %[5]s,
			mfa_enabled %[4]s NOT NULL DEFAULT %[6]s,
			mfa_secret %[2]s NOT NULL DEFAULT '',
			failed_login_attempts INTEGER NOT NULL DEFAULT 0,
			lockout_until %[7]s NULL,
			last_login_at %[7]s NULL,
			permissions_json TEXT NOT NULL,
			created_at %[7]s NOT NULL,
			updated_at %[7]s NOT NULL
		)`, d.id, d.varchar, d.ref, d.boolean, d.boolTrue, d.boolFalse, d.timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS admin_backup_codes (
			admin_id %[1]s NOT NULL REFERENCES admins(id) ON DELETE CASCADE,
			code_hash %[2]s NOT NULL,
			created_at %[3]s NOT NULL,
			PRIMARY KEY (admin_id, code_hash)
		)`, d.ref, d.varchar, d.timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS admin_login_logs (
			id %[1]s,
			admin_id %[2]s NOT NULL REFERENCES admins(id),
			action %[3]s NOT NULL,
			ip_address %[3]s NOT NULL,
			user_agent TEXT NOT NULL,
			endpoint %[3]s NOT NULL DEFAULT '',
			method %[3]s NOT NULL DEFAULT '',
			session_id %[3]s NULL,
			error_message TEXT NULL,
			request_data TEXT NULL,
			device_json TEXT NOT NULL,
			occurred_at %[4]s NOT NULL
		)`, d.id, d.ref, d.varchar, d.timestamp),

		d.index("idx_admins_role_id", "admins", "role_id"),
		d.index("idx_login_logs_admin", "admin_login_logs", "admin_id, occurred_at"),
		d.index("idx_login_logs_action", "admin_login_logs", "action"),
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; an existing index is a
			// no-op for idempotent migrations, as is a re-added column.
			lower := strings.ToLower(err.Error())
			if strings.Contains(lower, "duplicate column") || strings.Contains(lower, "duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
