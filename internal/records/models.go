package records

import (
	"time"

	"commerce-calls/internal/calls"
)

// Entry is a stored call record. One row per (owner, call): each participant keeps
// their own view of the same call.
//
// Multi-tenant invariant: tenant_id required.
type Entry struct {
	ID          string `json:"id" db:"id"`
	TenantID    string `json:"tenant_id" db:"tenant_id"`
	OwnerUserID string `json:"owner_user_id" db:"owner_user_id"`
	PeerUserID  string `json:"peer_user_id" db:"peer_user_id"`

	CallID          string          `json:"call_id" db:"call_id"`
	CallType        calls.CallType  `json:"call_type" db:"call_type"`
	Status          calls.Status    `json:"status" db:"status"`
	Direction       calls.Direction `json:"direction" db:"direction"`
	DurationSeconds int             `json:"duration_seconds" db:"duration_seconds"`

	// EndedAt is the record timestamp reported by the client.
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Owner identifies whose history a record belongs to.
type Owner struct {
	TenantID string
	UserID   string
}

func (o Owner) valid() bool { return o.TenantID != "" && o.UserID != "" }

// FromCall builds an Entry from a finalized calls.Record.
func FromCall(owner Owner, peerID string, rec calls.Record) Entry {
	return Entry{
		TenantID:        owner.TenantID,
		OwnerUserID:     owner.UserID,
		PeerUserID:      peerID,
		CallID:          rec.CallID,
		CallType:        rec.CallType,
		Status:          rec.Status,
		Direction:       rec.Direction,
		DurationSeconds: rec.DurationSeconds,
		EndedAt:         rec.Timestamp,
	}
}

// Record converts back to the manager's shape.
func (e Entry) Record() calls.Record {
	return calls.Record{
		CallID:          e.CallID,
		CallType:        e.CallType,
		Status:          e.Status,
		Direction:       e.Direction,
		DurationSeconds: e.DurationSeconds,
		Timestamp:       e.EndedAt,
	}
}

// ListFilter narrows ListByOwner. Zero fields match everything.
type ListFilter struct {
	PeerUserID string
	Limit      int
}
