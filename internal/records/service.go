package records

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"commerce-calls/internal/calls"
)

var (
	ErrInvalidArgument = errors.New("records: invalid argument")
	ErrNotFound        = errors.New("records: not found")
)

// Charger bills an answered outgoing call. Implementations must be idempotent per call:
// a record may be reported more than once.
type Charger interface {
	ChargeCall(ctx context.Context, e Entry) error
}

type Service struct {
	repo    Repository
	charger Charger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithCharger enables billing of answered outgoing calls.
func (s *Service) WithCharger(c Charger) *Service {
	s.charger = c
	return s
}

// Record stores one finalized call for owner. Reporting the same call twice keeps the
// first row and returns created=false.
func (s *Service) Record(ctx context.Context, owner Owner, peerID string, rec calls.Record) (Entry, bool, error) {
	if !owner.valid() || peerID == "" || peerID == owner.UserID {
		return Entry{}, false, ErrInvalidArgument
	}
	if rec.CallID == "" || !rec.CallType.Valid() || !rec.Status.Valid() || !rec.Direction.Valid() || rec.DurationSeconds < 0 {
		return Entry{}, false, ErrInvalidArgument
	}

	now := s.clock().UTC()
	e := FromCall(owner, peerID, rec)
	e.ID = uuid.NewString()
	e.CreatedAt = now
	if e.EndedAt.IsZero() {
		e.EndedAt = now
	}
	if e.Status != calls.StatusAnswered {
		e.DurationSeconds = 0
	}

	stored, created, err := s.repo.Insert(ctx, e)
	if err != nil {
		return Entry{}, false, err
	}
	if s.charger != nil && billable(stored) {
		if err := s.charger.ChargeCall(ctx, stored); err != nil {
			return stored, created, err
		}
	}
	return stored, created, nil
}

func billable(e Entry) bool {
	return e.Status == calls.StatusAnswered && e.Direction == calls.DirectionOutgoing && e.DurationSeconds > 0
}

func (s *Service) List(ctx context.Context, owner Owner, f ListFilter) ([]Entry, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.repo.ListByOwner(ctx, owner, f)
}
