package utils

import (
	"context"
	"database/sql"
)

// PostgresDriver is the database/sql name registered by github.com/jackc/pgx/v5/stdlib.
const PostgresDriver = "pgx"

// OpenPostgres opens the records, billing and audit database. The caller blank-imports
// the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	return openPool(ctx, PostgresDriver, dsn, pool)
}
