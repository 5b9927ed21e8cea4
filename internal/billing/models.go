package billing

import "time"

// LedgerEntry is an immutable append-only posting against one user's call account.
//
// Multi-tenant invariant: tenant_id required.
// Money invariant: any balance change MUST have a corresponding ledger entry.
type LedgerEntry struct {
	ID        string `json:"id" db:"id"`
	TenantID  string `json:"tenant_id" db:"tenant_id"`
	AccountID string `json:"account_id" db:"account_id"`

	Type EntryType `json:"type" db:"type"`

	// AmountMinor is signed: credits are positive, call charges negative.
	AmountMinor int64  `json:"amount_minor" db:"amount_minor"`
	Currency    string `json:"currency" db:"currency"`

	// ExternalRef is the call id for charges, free text for credits.
	ExternalRef    string `json:"external_ref,omitempty" db:"external_ref"`
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeCredit     EntryType = "credit"
	EntryTypeCallCharge EntryType = "call_charge"
)

// Balance is the projection of an account's ledger. Calls are post-paid, so it can go
// negative.
type Balance struct {
	TenantID     string    `json:"tenant_id"`
	AccountID    string    `json:"account_id"`
	Currency     string    `json:"currency"`
	BalanceMinor int64     `json:"balance_minor"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Rate prices connected call time. Every started minute is charged.
type Rate struct {
	PerMinuteMinor int64  `json:"per_minute_minor"`
	Currency       string `json:"currency"`
}

// Charge returns the amount owed for a call of the given length.
func (r Rate) Charge(durationSeconds int) int64 {
	if durationSeconds <= 0 || r.PerMinuteMinor <= 0 {
		return 0
	}
	minutes := int64((durationSeconds + 59) / 60)
	return minutes * r.PerMinuteMinor
}

type CreditRequest struct {
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	ExternalRef    string `json:"external_ref,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty"`
}
