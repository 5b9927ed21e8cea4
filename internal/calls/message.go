package calls

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType names a signaling message. The values are the wire "type" field.
type MessageType string

const (
	MessageOffer        MessageType = "call-offer"
	MessageAnswer       MessageType = "call-answer"
	MessageICECandidate MessageType = "call-ice-candidate"
	MessageReject       MessageType = "call-reject"
	MessageBusy         MessageType = "call-busy"
	MessageEnd          MessageType = "call-end"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageOffer, MessageAnswer, MessageICECandidate, MessageReject, MessageBusy, MessageEnd:
		return true
	default:
		return false
	}
}

var ErrInvalidMessage = errors.New("calls: invalid signaling message")

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Message is the signaling envelope exchanged between two clients through the relay.
// Every message carries the callId of the call it belongs to.
type Message struct {
	Type       MessageType `json:"type"`
	CallID     string      `json:"callId"`
	FromUserID string      `json:"fromUserId"`
	ToUserID   string      `json:"toUserId"`

	CallType CallType `json:"callType,omitempty"`
	// CreatedAt is unix milliseconds, set on offers.
	CreatedAt int64         `json:"createdAt,omitempty"`
	SDP       string        `json:"sdp,omitempty"`
	Candidate *ICECandidate `json:"candidate,omitempty"`
	Reason    Reason        `json:"reason,omitempty"`

	// Display metadata for the callee's ring screen. Optional.
	FromName   string `json:"fromName,omitempty"`
	FromAvatar string `json:"fromAvatar,omitempty"`
}

// Validate checks the fields each message type requires.
func (m Message) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if m.CallID == "" {
		return fmt.Errorf("%w: callId required", ErrInvalidMessage)
	}
	if m.FromUserID == "" || m.ToUserID == "" {
		return fmt.Errorf("%w: fromUserId and toUserId required", ErrInvalidMessage)
	}
	switch m.Type {
	case MessageOffer:
		if m.SDP == "" {
			return fmt.Errorf("%w: offer without sdp", ErrInvalidMessage)
		}
		if !m.CallType.Valid() {
			return fmt.Errorf("%w: offer callType %q", ErrInvalidMessage, m.CallType)
		}
	case MessageAnswer:
		if m.SDP == "" {
			return fmt.Errorf("%w: answer without sdp", ErrInvalidMessage)
		}
	case MessageICECandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%w: ice message without candidate", ErrInvalidMessage)
		}
	}
	return nil
}

// OfferTime returns CreatedAt as a time, or the zero time when unset.
func (m Message) OfferTime() time.Time {
	if m.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.CreatedAt)
}

// Encode marshals a validated message.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode unmarshals and validates one signaling message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
