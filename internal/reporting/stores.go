package reporting

import (
	"context"
	"time"

	"commerce-calls/internal/billing"
	"commerce-calls/internal/records"
)

// Stores reads reports straight from the record and billing repositories.
type Stores struct {
	Records records.Repository
	Billing billing.Repository
}

func (s Stores) ListRecords(ctx context.Context, tenantID string, from, to time.Time) ([]records.Entry, error) {
	return s.Records.ListRange(ctx, tenantID, from, to)
}

func (s Stores) ListLedger(ctx context.Context, tenantID string, from, to time.Time, accountID string) ([]billing.LedgerEntry, error) {
	if s.Billing == nil {
		return nil, nil
	}
	return s.Billing.ListLedger(ctx, tenantID, from, to, accountID)
}
