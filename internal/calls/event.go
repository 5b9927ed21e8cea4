package calls

// Event is anything that can move the state machine: user actions, inbound signaling,
// engine callbacks and timer fires. Manager.Handle applies one Event at a time.
type Event interface {
	event()
}

// StartCall places an outgoing call.
type StartCall struct {
	PeerID     string
	PeerName   string
	PeerAvatar string
	CallType   CallType

	callID string
}

// AcceptCall answers the ringing call.
type AcceptCall struct{}

// RejectCall declines the ringing call.
type RejectCall struct{}

// EndCall hangs up locally.
type EndCall struct {
	Reason Reason
}

// SignalReceived carries one inbound signaling message.
type SignalReceived struct {
	Msg Message
}

// ConnectionChanged is an engine connection-state report for CallID.
type ConnectionChanged struct {
	CallID string
	State  ConnectionState
}

// LocalCandidate is an ICE candidate gathered by the engine for CallID.
type LocalCandidate struct {
	CallID    string
	Candidate ICECandidate
}

// StreamAvailable reports a local or remote stream for CallID.
type StreamAvailable struct {
	CallID string
	Stream StreamHandle
}

// EngineFailed is an asynchronous engine error for CallID.
type EngineFailed struct {
	CallID string
	Err    error
}

type timerKind string

const (
	timerDial timerKind = "dial"
	timerRing timerKind = "ring"
)

// TimerFired is delivered by the dial or ring timer armed for CallID.
type TimerFired struct {
	CallID string
	Kind   timerKind
}

// Local media toggles.
type (
	ToggleMute    struct{}
	ToggleVideo   struct{}
	ToggleSpeaker struct{}
	ToggleBeauty  struct{}
	SwitchCamera  struct{}
)

// Continuations posted back after engine work done outside the lock.
type (
	offerCreated struct {
		callID string
		engine Engine
		sdp    string
		err    error
	}
	answerCreated struct {
		callID string
		engine Engine
		sdp    string
		err    error
	}
	remoteAnswerApplied struct {
		callID string
		err    error
	}
)

func (StartCall) event()           {}
func (AcceptCall) event()          {}
func (RejectCall) event()          {}
func (EndCall) event()             {}
func (SignalReceived) event()      {}
func (ConnectionChanged) event()   {}
func (LocalCandidate) event()      {}
func (StreamAvailable) event()     {}
func (EngineFailed) event()        {}
func (TimerFired) event()          {}
func (ToggleMute) event()          {}
func (ToggleVideo) event()         {}
func (ToggleSpeaker) event()       {}
func (ToggleBeauty) event()        {}
func (SwitchCamera) event()        {}
func (offerCreated) event()        {}
func (answerCreated) event()       {}
func (remoteAnswerApplied) event() {}
