package pricing

import (
	"context"
	"errors"
	"time"

	"commerce-calls/internal/calls"
)

// Service prices answered calls from tenant-scoped plans.
//
// Contract:
// - Lookup by (tenant, call type) at the time the call ended
// - Pure calculation + repository lookups
type Service struct {
	repo  PlanRepository
	clock func() time.Time
}

func NewService(repo PlanRepository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type QuoteRequest struct {
	TenantID string
	CallType calls.CallType

	// DurationSeconds is the connected time in seconds (billable seconds are derived).
	DurationSeconds int

	// At determines which effective plan to use. If zero, service clock is used.
	At time.Time
}

type Quote struct {
	TenantID string
	CallType calls.CallType
	PlanID   string

	Currency string

	BillableSeconds    int
	RatePerMinuteMinor int64
	TotalMinor         int64
}

var (
	ErrPlanNotFound   = errors.New("pricing: plan not found")
	ErrInvalidRequest = errors.New("pricing: invalid request")
)

// QuoteCall computes the price of a call of the given duration.
func (s *Service) QuoteCall(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.TenantID == "" || !req.CallType.Valid() || req.DurationSeconds <= 0 {
		return Quote{}, ErrInvalidRequest
	}

	at := req.At
	if at.IsZero() {
		at = s.clock().UTC()
	}

	p, ok, err := s.repo.FindPlan(ctx, req.TenantID, req.CallType, at)
	if err != nil {
		return Quote{}, err
	}
	if !ok {
		return Quote{}, ErrPlanNotFound
	}

	sec := billableSeconds(req.DurationSeconds, p.MinimumBillableSeconds, p.BillingIncrementSeconds)
	return Quote{
		TenantID:           req.TenantID,
		CallType:           req.CallType,
		PlanID:             p.ID,
		Currency:           p.Currency,
		BillableSeconds:    sec,
		RatePerMinuteMinor: p.RatePerMinuteMinor,
		TotalMinor:         costMinor(sec, p.RatePerMinuteMinor),
	}, nil
}

// PlanRepository abstracts plan persistence.
type PlanRepository interface {
	FindPlan(ctx context.Context, tenantID string, callType calls.CallType, at time.Time) (Plan, bool, error)
}

func billableSeconds(actualSec int, minSec int, incrementSec int) int {
	if actualSec < 0 {
		return 0
	}
	if minSec <= 0 {
		minSec = 0
	}
	if incrementSec <= 0 {
		incrementSec = 60
	}

	sec := actualSec
	if sec < minSec {
		sec = minSec
	}

	// round up to nearest increment
	q := sec / incrementSec
	r := sec % incrementSec
	if r != 0 {
		q++
	}
	return q * incrementSec
}

// costMinor prices sec seconds at a per-minute rate, rounding a partial minor unit up.
func costMinor(sec int, ratePerMinute int64) int64 {
	if sec <= 0 || ratePerMinute <= 0 {
		return 0
	}
	n := int64(sec) * ratePerMinute
	total := n / 60
	if n%60 != 0 {
		total++
	}
	return total
}
