package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"commerce-calls/internal/calls"
	"commerce-calls/internal/pricing"
	"commerce-calls/internal/records"
)

var (
	ErrNotFound         = errors.New("billing: not found")
	ErrInvalidArgument  = errors.New("billing: invalid argument")
	ErrCurrencyMismatch = errors.New("billing: currency mismatch")
)

// Auditor receives privileged money actions. Failures never undo the posting.
type Auditor interface {
	LogAdminAction(ctx context.Context, tenantID, actorUserID, actorRole, ip, message, accountID, metadata string) error
}

// Pricer quotes calls from tenant plans. Calls with no plan fall back to the flat Rate.
type Pricer interface {
	QuoteCall(ctx context.Context, req pricing.QuoteRequest) (pricing.Quote, error)
}

// Actor identifies who performed an admin credit.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// Service posts call charges and credits to per-user accounts.
//
// Money invariants:
// - No balance updates without a ledger entry
// - Ledger is append-only
// - Each call is charged at most once (idempotency key "call:<callId>")
type Service struct {
	repo    Repository
	rate    Rate
	auditor Auditor
	pricer  Pricer
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository, rate Rate) *Service {
	return &Service{repo: repo, rate: rate, clock: time.Now}
}

func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

func (s *Service) WithPricer(p Pricer) *Service {
	s.pricer = p
	return s
}

func (s *Service) Rate() Rate { return s.rate }

// CallChargeKey is the idempotency key of the charge for callID.
func CallChargeKey(callID string) string { return "call:" + callID }

// ChargeCall debits the caller for an answered outgoing call. Other records are ignored,
// and charging the same call twice is a no-op.
func (s *Service) ChargeCall(ctx context.Context, e records.Entry) error {
	if e.Status != calls.StatusAnswered || e.Direction != calls.DirectionOutgoing {
		return nil
	}
	if e.TenantID == "" || e.OwnerUserID == "" || e.CallID == "" {
		return ErrInvalidArgument
	}
	q, err := s.quote(ctx, e)
	if err != nil {
		return err
	}
	if q.TotalMinor == 0 {
		return nil
	}

	meta, _ := json.Marshal(struct {
		PeerUserID      string `json:"peer_user_id"`
		DurationSeconds int    `json:"duration_seconds"`
		BillableSeconds int    `json:"billable_seconds"`
		PerMinuteMinor  int64  `json:"per_minute_minor"`
		PlanID          string `json:"plan_id,omitempty"`
	}{e.PeerUserID, e.DurationSeconds, q.BillableSeconds, q.RatePerMinuteMinor, q.PlanID})

	_, _, _, err = s.repo.Post(ctx, LedgerEntry{
		ID:             uuid.NewString(),
		TenantID:       e.TenantID,
		AccountID:      e.OwnerUserID,
		Type:           EntryTypeCallCharge,
		AmountMinor:    -q.TotalMinor,
		Currency:       q.Currency,
		ExternalRef:    e.CallID,
		IdempotencyKey: CallChargeKey(e.CallID),
		Metadata:       string(meta),
		CreatedAt:      s.clock().UTC(),
	})
	return err
}

// quote prices e from its tenant plan, or from the flat rate when no plan applies.
func (s *Service) quote(ctx context.Context, e records.Entry) (pricing.Quote, error) {
	if s.pricer != nil {
		q, err := s.pricer.QuoteCall(ctx, pricing.QuoteRequest{
			TenantID:        e.TenantID,
			CallType:        e.CallType,
			DurationSeconds: e.DurationSeconds,
			At:              e.EndedAt,
		})
		switch {
		case err == nil:
			return q, nil
		case errors.Is(err, pricing.ErrPlanNotFound), errors.Is(err, pricing.ErrInvalidRequest):
		default:
			return pricing.Quote{}, err
		}
	}
	return pricing.Quote{
		TenantID:           e.TenantID,
		CallType:           e.CallType,
		Currency:           s.rate.Currency,
		BillableSeconds:    e.DurationSeconds,
		RatePerMinuteMinor: s.rate.PerMinuteMinor,
		TotalMinor:         s.rate.Charge(e.DurationSeconds),
	}, nil
}

func (s *Service) Credit(ctx context.Context, tenantID, accountID string, req CreditRequest) (LedgerEntry, Balance, error) {
	if err := validateMoneyReq(tenantID, accountID, req.AmountMinor, req.Currency, req.IdempotencyKey); err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	if req.AmountMinor <= 0 {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	e, b, _, err := s.repo.Post(ctx, LedgerEntry{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		AccountID:      accountID,
		Type:           EntryTypeCredit,
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		ExternalRef:    req.ExternalRef,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
		CreatedAt:      s.clock().UTC(),
	})
	return e, b, err
}

// AdminCredit credits an account on behalf of an admin and audits the action once.
func (s *Service) AdminCredit(ctx context.Context, tenantID, accountID string, actor Actor, req CreditRequest) (LedgerEntry, Balance, error) {
	if actor.UserID == "" || actor.Role == "" {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	if err := validateMoneyReq(tenantID, accountID, req.AmountMinor, req.Currency, req.IdempotencyKey); err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	if req.AmountMinor <= 0 {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	if req.ExternalRef == "" {
		req.ExternalRef = "admin_manual_credit"
	}
	e, b, created, err := s.repo.Post(ctx, LedgerEntry{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		AccountID:      accountID,
		Type:           EntryTypeCredit,
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		ExternalRef:    req.ExternalRef,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
		CreatedAt:      s.clock().UTC(),
	})
	if err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	if created && s.auditor != nil {
		// Best effort: the credit is already committed.
		_ = s.auditor.LogAdminAction(ctx, tenantID, actor.UserID, actor.Role, actor.IP, "manual credit", accountID, e.ID)
	}
	return e, b, nil
}

// GetBalance returns the account balance. Accounts with no postings have a zero balance
// in the configured currency.
func (s *Service) GetBalance(ctx context.Context, tenantID, accountID string) (Balance, error) {
	if tenantID == "" || accountID == "" {
		return Balance{}, ErrInvalidArgument
	}
	b, err := s.repo.Balance(ctx, tenantID, accountID)
	if errors.Is(err, ErrNotFound) {
		return Balance{TenantID: tenantID, AccountID: accountID, Currency: s.rate.Currency}, nil
	}
	return b, err
}

func (s *Service) Ledger(ctx context.Context, tenantID string, from, to time.Time, accountID string) ([]LedgerEntry, error) {
	if tenantID == "" || !to.After(from) {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListLedger(ctx, tenantID, from, to, accountID)
}

func validateMoneyReq(tenantID, accountID string, amountMinor int64, currency, idempotencyKey string) error {
	if tenantID == "" || accountID == "" {
		return ErrInvalidArgument
	}
	if currency == "" {
		return ErrInvalidArgument
	}
	if idempotencyKey == "" {
		return ErrInvalidArgument
	}
	if amountMinor == 0 {
		return ErrInvalidArgument
	}
	return nil
}
