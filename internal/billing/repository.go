package billing

import (
	"context"
	"time"
)

// Repository persists ledger postings and their balance projection.
//
// Post must be atomic and idempotent per (tenant, account, idempotency key): a repeated
// key returns the original entry with created=false and leaves the balance untouched.
type Repository interface {
	Post(ctx context.Context, e LedgerEntry) (entry LedgerEntry, bal Balance, created bool, err error)
	Balance(ctx context.Context, tenantID, accountID string) (Balance, error)
	ListLedger(ctx context.Context, tenantID string, from, to time.Time, accountID string) ([]LedgerEntry, error)
}
