package calls

import "time"

// Phase is the lifecycle state of the one call session a Manager owns.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseRequestingPermission Phase = "requesting-permission"
	PhaseDialing              Phase = "dialing"
	PhaseRinging              Phase = "ringing"
	PhaseConnecting           Phase = "connecting"
	PhaseInCall               Phase = "in-call"
	PhaseReconnecting         Phase = "reconnecting"
)

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool { return t == CallTypeVoice || t == CallTypeVideo }

// Status is the outcome stored on a Record. Keep values stable; they are persisted.
type Status string

const (
	StatusMissed    Status = "missed"
	StatusAnswered  Status = "answered"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusMissed, StatusAnswered, StatusRejected, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Reason explains why a session ended. Remote peers send it on call-end and call-reject.
type Reason string

const (
	ReasonHungup      Reason = "hungup"
	ReasonTimeout     Reason = "timeout"
	ReasonRejected    Reason = "rejected"
	ReasonFailed      Reason = "failed"
	ReasonBusy        Reason = "busy"
	ReasonUnavailable Reason = "unavailable"
)

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

func (d Direction) Valid() bool { return d == DirectionOutgoing || d == DirectionIncoming }

// Session is the state of the active call. The zero value (with Phase set to idle)
// is the idle session; Manager resets to it on cleanup.
type Session struct {
	CallID     string   `json:"call_id,omitempty"`
	Phase      Phase    `json:"phase"`
	CallType   CallType `json:"call_type,omitempty"`
	PeerUserID string   `json:"peer_user_id,omitempty"`
	PeerName   string   `json:"peer_name,omitempty"`
	PeerAvatar string   `json:"peer_avatar,omitempty"`
	IsCaller   bool     `json:"is_caller"`

	// StartedAt is set the first time the session reaches in-call.
	StartedAt *time.Time `json:"started_at,omitempty"`

	Muted         bool `json:"muted"`
	VideoEnabled  bool `json:"video_enabled"`
	SpeakerOn     bool `json:"speaker_on"`
	BeautyEnabled bool `json:"beauty_enabled"`

	Error string `json:"error,omitempty"`
}

func idleSession() Session { return Session{Phase: PhaseIdle} }

// Active reports whether the session holds a call.
func (s Session) Active() bool { return s.Phase != PhaseIdle && s.Phase != "" }

// PendingOffer is an incoming offer that has not been accepted or rejected yet.
type PendingOffer struct {
	CallID     string    `json:"call_id"`
	CallType   CallType  `json:"call_type"`
	FromUserID string    `json:"from_user_id"`
	PeerName   string    `json:"peer_name,omitempty"`
	PeerAvatar string    `json:"peer_avatar,omitempty"`
	SDP        string    `json:"sdp"`
	CreatedAt  time.Time `json:"created_at"`
}

// Record is the finalized outcome of one session, handed to the RecordSink keyed by peer id.
type Record struct {
	CallID          string    `json:"call_id"`
	CallType        CallType  `json:"call_type"`
	Status          Status    `json:"status"`
	Direction       Direction `json:"direction"`
	DurationSeconds int       `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}
