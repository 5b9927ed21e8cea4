package utils

import (
	"context"
	"database/sql"
	"errors"
)

// SQLiteDriver is the database/sql name registered by modernc.org/sqlite.
const SQLiteDriver = "sqlite"

// sqlitePool keeps a single connection that never expires. SQLite serializes writers, and
// each :memory: connection is its own database.
var sqlitePool = PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: -1, ConnMaxIdleTime: -1}

// OpenSQLite opens the agent's local call history. WAL and a busy timeout let record
// writes and history reads share one file. The caller blank-imports the driver.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	return openPool(ctx, SQLiteDriver, dsn, sqlitePool)
}
