package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []Entry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(_ context.Context, e Entry) (Entry, bool, error) {
	if e.TenantID == "" || e.OwnerUserID == "" || e.CallID == "" {
		return Entry{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TenantID == e.TenantID && row.OwnerUserID == e.OwnerUserID && row.CallID == e.CallID {
			return row, false, nil
		}
	}
	r.rows = append(r.rows, e)
	return e, true, nil
}

func (r *MemoryRepo) ListByOwner(_ context.Context, owner Owner, f ListFilter) ([]Entry, error) {
	if !owner.valid() {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0)
	for _, row := range r.rows {
		if row.TenantID != owner.TenantID || row.OwnerUserID != owner.UserID {
			continue
		}
		if f.PeerUserID != "" && row.PeerUserID != f.PeerUserID {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListRange(_ context.Context, tenantID string, from, to time.Time) ([]Entry, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0)
	for _, row := range r.rows {
		if row.TenantID != tenantID {
			continue
		}
		if row.EndedAt.Before(from) || !row.EndedAt.Before(to) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}
