package calls

import (
	"context"
	"time"
)

// ConnectionState is the media connection state reported by an Engine.
type ConnectionState string

const (
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

// StreamHandle identifies a local or remote media stream owned by an Engine.
type StreamHandle struct {
	ID     string   `json:"id"`
	Kinds  []string `json:"kinds"`
	Remote bool     `json:"remote"`
}

// InitOptions configures one Engine for one call.
type InitOptions struct {
	IsCaller bool
	CallType CallType
}

// Engine negotiates media for a single call. A Manager creates one per session through
// its EngineFactory and closes it on cleanup; engines are never reused.
//
// Init returns the local offer SDP when IsCaller is set, and "" otherwise.
type Engine interface {
	Init(ctx context.Context, opts InitOptions) (offer string, err error)
	HandleRemoteOffer(ctx context.Context, sdp string) (answer string, err error)
	HandleRemoteAnswer(ctx context.Context, sdp string) error
	AddICECandidate(c ICECandidate) error
	ToggleMute(muted bool)
	ToggleVideo(enabled bool)
	SwitchCamera() error
	Close() error
}

// EngineCallbacks are invoked by an Engine from its own goroutines. The Manager binds each
// set to a single callId so late callbacks from a torn-down engine are fenced off.
type EngineCallbacks struct {
	OnLocalStream           func(StreamHandle)
	OnRemoteStream          func(StreamHandle)
	OnICECandidate          func(ICECandidate)
	OnConnectionStateChange func(ConnectionState)
	OnError                 func(error)
}

// EngineFactory builds a fresh Engine wired to cb.
type EngineFactory func(cb EngineCallbacks) (Engine, error)

// Transport delivers signaling messages to the peer. Send is best effort and must not block.
type Transport interface {
	Send(msg Message) bool
}

// RecordSink persists the outcome of a finished call, keyed by the peer's user id.
type RecordSink interface {
	Save(ctx context.Context, peerID string, rec Record) error
}

// Clock abstracts time for the dial and ring timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
func SystemClock() Clock { return systemClock{} }

// Hooks lets the surrounding UI observe the manager. All fields are optional and are
// called without the manager lock held.
type Hooks struct {
	// OnRing fires once when an incoming offer starts ringing.
	OnRing func(PendingOffer)
	// OnStateChange fires after every transition with a copy of the session.
	OnStateChange func(Session)
	// OnCallEnded fires once per terminated session.
	OnCallEnded func(callID string, reason Reason, rec *Record)
	// OnStream fires when the engine exposes a local or remote stream.
	OnStream func(callID string, stream StreamHandle)
}
