package config

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect captures the handful of DDL and locking differences between the
// supported backends. Queries are written with ? placeholders and rebound by
// sqlx for the active driver.
type dialect struct {
	name             string // sqlite, postgres, mysql
	driver           string // database/sql driver name
	id               string // primary key column definition
	ref              string // column type for foreign keys to id
	varchar          string
	timestamp        string
	boolean          string
	boolTrue         string
	boolFalse        string
	forUpdate        string // row lock suffix for SELECT, empty when writers are serialised
	returning        bool   // use RETURNING id instead of LastInsertId
	ifNotExistsIndex bool
}

var dialects = map[string]dialect{
	"sqlite": {
		name:             "sqlite",
		driver:           "sqlite",
		id:               "INTEGER PRIMARY KEY AUTOINCREMENT",
		ref:              "INTEGER",
		varchar:          "TEXT",
		timestamp:        "DATETIME",
		boolean:          "INTEGER",
		boolTrue:         "1",
		boolFalse:        "0",
		ifNotExistsIndex: true,
	},
	"postgres": {
		name:             "postgres",
		driver:           "pgx",
		id:               "BIGSERIAL PRIMARY KEY",
		ref:              "BIGINT",
		varchar:          "VARCHAR(255)",
		timestamp:        "TIMESTAMPTZ",
		boolean:          "BOOLEAN",
		boolTrue:         "TRUE",
		boolFalse:        "FALSE",
		forUpdate:        " FOR UPDATE",
		returning:        true,
		ifNotExistsIndex: true,
	},
	"mysql": {
		name:      "mysql",
		driver:    "mysql",
		id:        "BIGINT AUTO_INCREMENT PRIMARY KEY",
		ref:       "BIGINT",
		varchar:   "VARCHAR(255)",
		timestamp: "DATETIME(6)",
		boolean:   "BOOLEAN",
		boolTrue:  "TRUE",
		boolFalse: "FALSE",
		forUpdate: " FOR UPDATE",
	},
}

// lookupDialect resolves a configured driver name. "pgx" and "postgresql"
// are accepted as aliases for postgres, "sqlite3" for sqlite.
func lookupDialect(name string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return dialects["sqlite"], nil
	case "postgres", "postgresql", "pgx":
		return dialects["postgres"], nil
	case "mysql", "mariadb":
		return dialects["mysql"], nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q (supported: sqlite, postgres, mysql)", name)
}

// index renders a CREATE INDEX statement for the dialect.
func (d dialect) index(name, table, columns string) string {
	if d.ifNotExistsIndex {
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, columns)
	}
	return fmt.Sprintf("CREATE INDEX %s ON %s(%s)", name, table, columns)
}
