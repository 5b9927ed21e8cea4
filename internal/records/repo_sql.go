package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Dialect selects placeholder syntax and column types. Queries are written with $n
// placeholders and rebound for SQLite.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

var placeholder = regexp.MustCompile(`\$\d+`)

func (d Dialect) rebind(q string) string {
	if d == SQLite {
		return placeholder.ReplaceAllString(q, "?")
	}
	return q
}

func (d Dialect) timestampType() string {
	if d == SQLite {
		return "TIMESTAMP"
	}
	return "TIMESTAMPTZ"
}

// SQLRepo stores records in Postgres (pgx stdlib) or SQLite (modernc).
type SQLRepo struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLRepo(db *sql.DB, d Dialect) *SQLRepo { return &SQLRepo{db: db, dialect: d} }

// Migrate creates the call_records table if it does not exist.
func (r *SQLRepo) Migrate(ctx context.Context) error {
	ts := r.dialect.timestampType()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_records (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  owner_user_id TEXT NOT NULL,
  peer_user_id TEXT NOT NULL,
  call_id TEXT NOT NULL,
  call_type TEXT NOT NULL,
  status TEXT NOT NULL,
  direction TEXT NOT NULL,
  duration_seconds INTEGER NOT NULL DEFAULT 0,
  ended_at ` + ts + ` NOT NULL,
  created_at ` + ts + ` NOT NULL,
  UNIQUE (tenant_id, owner_user_id, call_id)
)`,
		`CREATE INDEX IF NOT EXISTS call_records_tenant_ended ON call_records (tenant_id, ended_at)`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("records: migrate: %w", err)
		}
	}
	return nil
}

const entryColumns = `id, tenant_id, owner_user_id, peer_user_id, call_id, call_type, status, direction,
       duration_seconds, ended_at, created_at`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.OwnerUserID,
		&e.PeerUserID,
		&e.CallID,
		&e.CallType,
		&e.Status,
		&e.Direction,
		&e.DurationSeconds,
		&e.EndedAt,
		&e.CreatedAt,
	)
	return e, err
}

func (r *SQLRepo) Insert(ctx context.Context, e Entry) (Entry, bool, error) {
	if e.TenantID == "" || e.OwnerUserID == "" || e.CallID == "" {
		return Entry{}, false, ErrInvalidArgument
	}
	const q = `
INSERT INTO call_records (
  id, tenant_id, owner_user_id, peer_user_id, call_id, call_type, status, direction,
  duration_seconds, ended_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (tenant_id, owner_user_id, call_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(q),
		e.ID,
		e.TenantID,
		e.OwnerUserID,
		e.PeerUserID,
		e.CallID,
		e.CallType,
		e.Status,
		e.Direction,
		e.DurationSeconds,
		e.EndedAt.UTC(),
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return Entry{}, false, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return e, true, nil
	}

	existing, err := r.findByCall(ctx, e.TenantID, e.OwnerUserID, e.CallID)
	if err != nil {
		return Entry{}, false, err
	}
	return existing, false, nil
}

func (r *SQLRepo) findByCall(ctx context.Context, tenantID, ownerID, callID string) (Entry, error) {
	q := `SELECT ` + entryColumns + `
FROM call_records
WHERE tenant_id = $1 AND owner_user_id = $2 AND call_id = $3
LIMIT 1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, r.dialect.rebind(q), tenantID, ownerID, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *SQLRepo) ListByOwner(ctx context.Context, owner Owner, f ListFilter) ([]Entry, error) {
	if !owner.valid() {
		return nil, ErrInvalidArgument
	}
	var b strings.Builder
	b.WriteString(`SELECT ` + entryColumns + `
FROM call_records
WHERE tenant_id = $1 AND owner_user_id = $2`)
	args := []any{owner.TenantID, owner.UserID}
	if f.PeerUserID != "" {
		args = append(args, f.PeerUserID)
		fmt.Fprintf(&b, " AND peer_user_id = $%d", len(args))
	}
	b.WriteString(" ORDER BY ended_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return r.query(ctx, b.String(), args...)
}

func (r *SQLRepo) ListRange(ctx context.Context, tenantID string, from, to time.Time) ([]Entry, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	q := `SELECT ` + entryColumns + `
FROM call_records
WHERE tenant_id = $1 AND ended_at >= $2 AND ended_at < $3
ORDER BY ended_at`
	return r.query(ctx, q, tenantID, from.UTC(), to.UTC())
}

func (r *SQLRepo) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
