package records

import (
	"context"
	"time"
)

// Repository stores call records.
//
// Implementations must:
// - enforce tenant filtering on every read
// - treat (owner_user_id, call_id) as unique; Insert of a duplicate returns the stored
//   row with created=false
type Repository interface {
	Insert(ctx context.Context, e Entry) (stored Entry, created bool, err error)
	ListByOwner(ctx context.Context, owner Owner, f ListFilter) ([]Entry, error)
	ListRange(ctx context.Context, tenantID string, from, to time.Time) ([]Entry, error)
}
