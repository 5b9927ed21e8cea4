package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-calls/pkg/utils"
)

// SQLRepo is the Postgres ledger. It assumes:
// - billing_ledger (immutable append-only), UNIQUE (tenant_id, account_id, idempotency_key)
// - billing_balances (projection), PRIMARY KEY (tenant_id, account_id)
//
// Migrate creates both.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS billing_ledger (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  account_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount_minor BIGINT NOT NULL,
  currency TEXT NOT NULL,
  external_ref TEXT NOT NULL DEFAULT '',
  idempotency_key TEXT NOT NULL,
  metadata TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (tenant_id, account_id, idempotency_key)
)`,
		`CREATE INDEX IF NOT EXISTS billing_ledger_tenant_created ON billing_ledger (tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS billing_balances (
  tenant_id TEXT NOT NULL,
  account_id TEXT NOT NULL,
  currency TEXT NOT NULL,
  balance_minor BIGINT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (tenant_id, account_id)
)`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("billing: migrate: %w", err)
		}
	}
	return nil
}

func (r *SQLRepo) Post(ctx context.Context, e LedgerEntry) (LedgerEntry, Balance, bool, error) {
	var (
		out     LedgerEntry
		outBal  Balance
		created bool
	)
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// The balance row may not exist yet, so serialize on the account key instead of a row lock.
		if err := lockAccount(ctx, tx, e.TenantID, e.AccountID); err != nil {
			return err
		}

		if existing, ok, err := findLedgerByIdempotency(ctx, tx, e.TenantID, e.AccountID, e.IdempotencyKey); err != nil {
			return err
		} else if ok {
			b, err := getBalanceTx(ctx, tx, e.TenantID, e.AccountID)
			if err != nil {
				return err
			}
			out, outBal = existing, b
			return nil
		}

		b, err := getBalanceTx(ctx, tx, e.TenantID, e.AccountID)
		switch {
		case err == nil && b.Currency != e.Currency:
			return ErrCurrencyMismatch
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}

		if err := insertLedger(ctx, tx, e); err != nil {
			return err
		}
		b, err = applyBalanceDelta(ctx, tx, e.TenantID, e.AccountID, e.Currency, e.AmountMinor, e.CreatedAt)
		if err != nil {
			return err
		}
		out, outBal, created = e, b, true
		return nil
	})
	if err != nil {
		return LedgerEntry{}, Balance{}, false, err
	}
	return out, outBal, created, nil
}

func lockAccount(ctx context.Context, tx *sql.Tx, tenantID, accountID string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, tenantID, accountID)
	return err
}

const balanceQuery = `
SELECT tenant_id, account_id, currency, balance_minor, updated_at
FROM billing_balances
WHERE tenant_id = $1 AND account_id = $2
`

func scanBalance(row *sql.Row) (Balance, error) {
	var b Balance
	if err := row.Scan(&b.TenantID, &b.AccountID, &b.Currency, &b.BalanceMinor, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *SQLRepo) Balance(ctx context.Context, tenantID, accountID string) (Balance, error) {
	return scanBalance(r.db.QueryRowContext(ctx, balanceQuery, tenantID, accountID))
}

func getBalanceTx(ctx context.Context, tx *sql.Tx, tenantID, accountID string) (Balance, error) {
	return scanBalance(tx.QueryRowContext(ctx, balanceQuery, tenantID, accountID))
}

const ledgerColumns = `id, tenant_id, account_id, type, amount_minor, currency, external_ref, idempotency_key, metadata, created_at`

func scanLedger(row interface{ Scan(...any) error }) (LedgerEntry, error) {
	var e LedgerEntry
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.AccountID,
		&e.Type,
		&e.AmountMinor,
		&e.Currency,
		&e.ExternalRef,
		&e.IdempotencyKey,
		&e.Metadata,
		&e.CreatedAt,
	)
	return e, err
}

func findLedgerByIdempotency(ctx context.Context, tx *sql.Tx, tenantID, accountID, key string) (LedgerEntry, bool, error) {
	q := `SELECT ` + ledgerColumns + `
FROM billing_ledger
WHERE tenant_id = $1 AND account_id = $2 AND idempotency_key = $3
LIMIT 1`
	e, err := scanLedger(tx.QueryRowContext(ctx, q, tenantID, accountID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LedgerEntry{}, false, nil
		}
		return LedgerEntry{}, false, err
	}
	return e, true, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	const q = `
INSERT INTO billing_ledger (
  id, tenant_id, account_id, type, amount_minor, currency, external_ref, idempotency_key, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		e.AccountID,
		e.Type,
		e.AmountMinor,
		e.Currency,
		e.ExternalRef,
		e.IdempotencyKey,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, tenantID, accountID, currency string, deltaMinor int64, now time.Time) (Balance, error) {
	const q = `
INSERT INTO billing_balances (tenant_id, account_id, currency, balance_minor, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (tenant_id, account_id)
DO UPDATE SET balance_minor = billing_balances.balance_minor + EXCLUDED.balance_minor,
              updated_at = EXCLUDED.updated_at
RETURNING tenant_id, account_id, currency, balance_minor, updated_at
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, tenantID, accountID, currency, deltaMinor, now).Scan(
		&b.TenantID,
		&b.AccountID,
		&b.Currency,
		&b.BalanceMinor,
		&b.UpdatedAt,
	); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func (r *SQLRepo) ListLedger(ctx context.Context, tenantID string, from, to time.Time, accountID string) ([]LedgerEntry, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + ledgerColumns + `
FROM billing_ledger
WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`)
	args := []any{tenantID, from.UTC(), to.UTC()}
	if accountID != "" {
		args = append(args, accountID)
		fmt.Fprintf(&b, " AND account_id = $%d", len(args))
	}
	b.WriteString(" ORDER BY created_at")

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LedgerEntry, 0)
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
