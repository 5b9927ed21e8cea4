package pricing

import (
	"time"

	"commerce-calls/internal/calls"
)

// Plans are tenant-scoped (tenant_id required everywhere).
// Amounts are expressed in minor units (e.g., cents) using int64.

// Plan prices connected call time for one call type.
type Plan struct {
	ID       string         `json:"id" yaml:"id"`
	TenantID string         `json:"tenant_id" yaml:"tenant_id"`
	CallType calls.CallType `json:"call_type" yaml:"call_type"`

	Currency string `json:"currency" yaml:"currency"`

	// RatePerMinuteMinor is the price of one minute of billable time.
	RatePerMinuteMinor int64 `json:"rate_per_minute_minor" yaml:"rate_per_minute_minor"`

	// BillingIncrementSeconds (e.g., 60 for per-minute, 1 for per-second billing).
	BillingIncrementSeconds int `json:"billing_increment_seconds" yaml:"billing_increment_seconds"`

	// MinimumBillableSeconds enforces a minimum charge duration.
	MinimumBillableSeconds int `json:"minimum_billable_seconds" yaml:"minimum_billable_seconds"`

	EffectiveFrom time.Time  `json:"effective_from" yaml:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`

	Status Status `json:"status" yaml:"status"`
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// effectiveAt reports whether p applies at t.
func (p Plan) effectiveAt(t time.Time) bool {
	if p.Status != StatusActive || t.Before(p.EffectiveFrom) {
		return false
	}
	return p.EffectiveTo == nil || t.Before(*p.EffectiveTo)
}
