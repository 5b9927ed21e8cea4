package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"commerce-calls/internal/calls"
)

type stubCharger struct {
	charged []Entry
	err     error
}

func (s *stubCharger) ChargeCall(_ context.Context, e Entry) error {
	s.charged = append(s.charged, e)
	return s.err
}

func answered(callID string, dur int) calls.Record {
	return calls.Record{
		CallID:          callID,
		CallType:        calls.CallTypeVoice,
		Status:          calls.StatusAnswered,
		Direction:       calls.DirectionOutgoing,
		DurationSeconds: dur,
		Timestamp:       time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestService_RecordValidates(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	owner := Owner{TenantID: "t1", UserID: "u1"}

	bad := []struct {
		owner Owner
		peer  string
		rec   calls.Record
	}{
		{Owner{UserID: "u1"}, "42", answered("c1", 5)},
		{owner, "", answered("c1", 5)},
		{owner, "u1", answered("c1", 5)},
		{owner, "42", calls.Record{CallType: calls.CallTypeVoice, Status: calls.StatusMissed, Direction: calls.DirectionIncoming}},
		{owner, "42", calls.Record{CallID: "c1", CallType: "fax", Status: calls.StatusMissed, Direction: calls.DirectionIncoming}},
		{owner, "42", calls.Record{CallID: "c1", CallType: calls.CallTypeVoice, Status: "ok", Direction: calls.DirectionIncoming}},
		{owner, "42", answered("c1", -1)},
	}
	for i, tc := range bad {
		if _, _, err := svc.Record(context.Background(), tc.owner, tc.peer, tc.rec); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}

func TestService_RecordIsIdempotentPerCall(t *testing.T) {
	repo := NewMemoryRepo()
	charger := &stubCharger{}
	svc := NewService(repo).WithCharger(charger)
	owner := Owner{TenantID: "t1", UserID: "u1"}

	first, created, err := svc.Record(context.Background(), owner, "42", answered("c1", 61))
	if err != nil || !created {
		t.Fatalf("expected created, got %v %v", created, err)
	}
	again, created, err := svc.Record(context.Background(), owner, "42", answered("c1", 99))
	if err != nil || created {
		t.Fatalf("expected duplicate, got %v %v", created, err)
	}
	if again.ID != first.ID || again.DurationSeconds != 61 {
		t.Fatalf("expected first row kept, got %+v", again)
	}

	rows, _ := svc.List(context.Background(), owner, ListFilter{})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	// Billing is asked both times and deduplicates on its own key.
	if len(charger.charged) != 2 || charger.charged[1].ID != first.ID {
		t.Fatalf("expected charge with stored row, got %+v", charger.charged)
	}
}

func TestService_OnlyAnsweredOutgoingIsCharged(t *testing.T) {
	charger := &stubCharger{}
	svc := NewService(NewMemoryRepo()).WithCharger(charger)
	owner := Owner{TenantID: "t1", UserID: "u1"}

	in := answered("c1", 30)
	in.Direction = calls.DirectionIncoming
	missed := calls.Record{CallID: "c2", CallType: calls.CallTypeVideo, Status: calls.StatusMissed, Direction: calls.DirectionOutgoing, DurationSeconds: 12}

	if _, _, err := svc.Record(context.Background(), owner, "42", in); err != nil {
		t.Fatalf("record: %v", err)
	}
	e, _, err := svc.Record(context.Background(), owner, "42", missed)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if e.DurationSeconds != 0 {
		t.Fatalf("expected unanswered duration cleared, got %d", e.DurationSeconds)
	}
	if len(charger.charged) != 0 {
		t.Fatalf("expected no charges, got %d", len(charger.charged))
	}
}

func TestService_ListFiltersByPeerAndTenant(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	u1 := Owner{TenantID: "t1", UserID: "u1"}

	_, _, _ = svc.Record(ctx, u1, "42", answered("c1", 5))
	_, _, _ = svc.Record(ctx, u1, "43", answered("c2", 5))
	_, _, _ = svc.Record(ctx, Owner{TenantID: "t2", UserID: "u1"}, "42", answered("c3", 5))

	rows, err := svc.List(ctx, u1, ListFilter{PeerUserID: "42"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].CallID != "c1" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestSink_SavesThroughService(t *testing.T) {
	repo := NewMemoryRepo()
	sink := NewSink(NewService(repo), Owner{TenantID: "t1", UserID: "u1"})
	var _ calls.RecordSink = sink

	if err := sink.Save(context.Background(), "42", answered("c1", 3)); err != nil {
		t.Fatalf("save: %v", err)
	}
	rows, _ := repo.ListByOwner(context.Background(), Owner{TenantID: "t1", UserID: "u1"}, ListFilter{})
	if len(rows) != 1 || rows[0].PeerUserID != "42" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

type failingSink struct{}

func (failingSink) Save(context.Context, string, calls.Record) error { return errors.New("down") }

func TestMultiSink_SavesEverywhere(t *testing.T) {
	repo := NewMemoryRepo()
	ok := NewSink(NewService(repo), Owner{TenantID: "t1", UserID: "u1"})
	m := MultiSink{failingSink{}, ok}

	if err := m.Save(context.Background(), "42", answered("c1", 3)); err == nil {
		t.Fatalf("expected joined error")
	}
	rows, _ := repo.ListByOwner(context.Background(), Owner{TenantID: "t1", UserID: "u1"}, ListFilter{})
	if len(rows) != 1 {
		t.Fatalf("expected later sink still saved")
	}
}
