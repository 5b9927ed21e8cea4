package reporting

import (
	"context"
	"errors"
	"time"

	"commerce-calls/internal/billing"
	"commerce-calls/internal/calls"
	"commerce-calls/internal/records"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce tenant filtering.
// - Sources are immutable: stored call records and the billing ledger.
type Repository interface {
	ListRecords(ctx context.Context, tenantID string, from, to time.Time) ([]records.Entry, error)
	ListLedger(ctx context.Context, tenantID string, from, to time.Time, accountID string) ([]billing.LedgerEntry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.TenantID == "" || !req.Range.valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListRecords(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}
	if req.UserID != "" {
		rows = ownedBy(rows, req.UserID)
	} else {
		rows = oncePerCall(rows)
	}

	out := CallsSummary{TenantID: req.TenantID, UserID: req.UserID}
	for _, e := range rows {
		out.TotalCalls++
		switch e.CallType {
		case calls.CallTypeVoice:
			out.VoiceCalls++
		case calls.CallTypeVideo:
			out.VideoCalls++
		}
		switch e.Status {
		case calls.StatusAnswered:
			out.AnsweredCalls++
			out.TotalDurationSeconds += e.DurationSeconds
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusRejected:
			out.RejectedCalls++
		case calls.StatusCancelled:
			out.CancelledCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		}
	}
	if out.AnsweredCalls > 0 {
		out.AverageAnsweredDurationSeconds = out.TotalDurationSeconds / out.AnsweredCalls
	}
	if out.TotalCalls > 0 {
		out.AnswerRate = float64(out.AnsweredCalls) / float64(out.TotalCalls)
	}
	return out, nil
}

func ownedBy(rows []records.Entry, userID string) []records.Entry {
	out := rows[:0:0]
	for _, e := range rows {
		if e.OwnerUserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// oncePerCall keeps one row per call id, preferring the caller's view. The callee's row
// stands in when the caller never reported.
func oncePerCall(rows []records.Entry) []records.Entry {
	idx := make(map[string]int, len(rows))
	out := make([]records.Entry, 0, len(rows))
	for _, e := range rows {
		i, seen := idx[e.CallID]
		if !seen {
			idx[e.CallID] = len(out)
			out = append(out, e)
			continue
		}
		if e.Direction == calls.DirectionOutgoing && out[i].Direction != calls.DirectionOutgoing {
			out[i] = e
		}
	}
	return out
}

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if req.TenantID == "" || !req.Range.valid() {
		return SpendSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SpendSummary{}, errors.New("reporting: repository not configured")
	}

	ledgers, err := s.repo.ListLedger(ctx, req.TenantID, req.Range.From, req.Range.To, req.AccountID)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{TenantID: req.TenantID, AccountID: req.AccountID, Currency: req.Currency}
	for _, l := range ledgers {
		// With no requested currency, summarize in the currency of the first row.
		if out.Currency == "" {
			out.Currency = l.Currency
		}
		if l.Currency != out.Currency {
			continue
		}

		if l.AmountMinor > 0 {
			out.TotalCreditMinor += l.AmountMinor
		} else {
			out.TotalDebitMinor += -l.AmountMinor
		}

		switch {
		case l.Type == billing.EntryTypeCallCharge:
			out.CallChargeMinor += -l.AmountMinor
			out.ChargedCalls++
		case l.ExternalRef == "admin_manual_credit":
			out.AdminAdjustMinor += l.AmountMinor
		}
	}
	out.NetDeltaMinor = out.TotalCreditMinor - out.TotalDebitMinor
	if out.Currency == "" {
		out.Currency = "UNKNOWN"
	}
	return out, nil
}
