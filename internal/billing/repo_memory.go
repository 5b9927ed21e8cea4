package billing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory ledger for tests and single-node development.
type MemoryRepo struct {
	mu       sync.Mutex
	ledger   []LedgerEntry
	byKey    map[string]int
	balances map[string]Balance
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byKey: make(map[string]int), balances: make(map[string]Balance)}
}

func accountKey(tenantID, accountID string) string { return tenantID + "\x00" + accountID }

func (r *MemoryRepo) Post(ctx context.Context, e LedgerEntry) (LedgerEntry, Balance, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct := accountKey(e.TenantID, e.AccountID)
	idem := acct + "\x00" + e.IdempotencyKey
	if i, ok := r.byKey[idem]; ok {
		return r.ledger[i], r.balances[acct], false, nil
	}

	b, ok := r.balances[acct]
	if ok && b.Currency != e.Currency {
		return LedgerEntry{}, Balance{}, false, ErrCurrencyMismatch
	}
	if !ok {
		b = Balance{TenantID: e.TenantID, AccountID: e.AccountID, Currency: e.Currency}
	}
	b.BalanceMinor += e.AmountMinor
	b.UpdatedAt = e.CreatedAt
	r.balances[acct] = b

	r.byKey[idem] = len(r.ledger)
	r.ledger = append(r.ledger, e)
	return e, b, true, nil
}

func (r *MemoryRepo) Balance(ctx context.Context, tenantID, accountID string) (Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[accountKey(tenantID, accountID)]
	if !ok {
		return Balance{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepo) ListLedger(ctx context.Context, tenantID string, from, to time.Time, accountID string) ([]LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LedgerEntry, 0)
	for _, e := range r.ledger {
		if e.TenantID != tenantID {
			continue
		}
		if accountID != "" && e.AccountID != accountID {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
