package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"commerce-calls/internal/billing"
	"commerce-calls/internal/records"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.
// It enforces tenant isolation on reads.
type MemoryRepo struct {
	mu sync.Mutex

	Records []records.Entry
	Ledgers []billing.LedgerEntry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r *MemoryRepo) ListRecords(ctx context.Context, tenantID string, from, to time.Time) ([]records.Entry, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]records.Entry, 0)
	for _, e := range r.Records {
		if e.TenantID != tenantID || !inRange(e.EndedAt, from, to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *MemoryRepo) ListLedger(ctx context.Context, tenantID string, from, to time.Time, accountID string) ([]billing.LedgerEntry, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]billing.LedgerEntry, 0)
	for _, l := range r.Ledgers {
		if l.TenantID != tenantID || !inRange(l.CreatedAt, from, to) {
			continue
		}
		if accountID != "" && l.AccountID != accountID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
