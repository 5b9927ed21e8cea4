package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"commerce-calls/internal/calls"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewFactory(Config{IncludeLoopback: true})(calls.EngineCallbacks{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	e := eng.(*Engine)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOfferAnswerNegotiation(t *testing.T) {
	ctx := context.Background()
	caller, callee := newEngine(t), newEngine(t)

	offer, err := caller.Init(ctx, calls.InitOptions{IsCaller: true, CallType: calls.CallTypeVideo})
	if err != nil {
		t.Fatalf("caller init: %v", err)
	}
	if !strings.Contains(offer, "m=audio") || !strings.Contains(offer, "m=video") {
		t.Fatalf("offer lacks media sections:\n%s", offer)
	}

	if got, err := callee.Init(ctx, calls.InitOptions{CallType: calls.CallTypeVideo}); err != nil || got != "" {
		t.Fatalf("callee init: %q %v", got, err)
	}
	answer, err := callee.HandleRemoteOffer(ctx, offer)
	if err != nil {
		t.Fatalf("remote offer: %v", err)
	}
	d, err := Inspect(answer)
	if err != nil || !d.Audio || !d.Video {
		t.Fatalf("unexpected answer %+v %v", d, err)
	}
	if err := caller.HandleRemoteAnswer(ctx, answer); err != nil {
		t.Fatalf("remote answer: %v", err)
	}

	callee.ToggleMute(true)
	callee.ToggleVideo(false)
	if err := callee.SwitchCamera(); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera, got %v", err)
	}
}

func TestEngineRejectsUseBeforeInitAndAfterClose(t *testing.T) {
	e := newEngine(t)
	if _, err := e.HandleRemoteOffer(context.Background(), videoOffer); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := e.Init(context.Background(), calls.InitOptions{IsCaller: true, CallType: calls.CallTypeVoice}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := e.AddICECandidate(calls.ICECandidate{Candidate: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCalleeRejectsBadOffer(t *testing.T) {
	e := newEngine(t)
	if _, err := e.Init(context.Background(), calls.InitOptions{CallType: calls.CallTypeVoice}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := e.HandleRemoteOffer(context.Background(), "garbage"); !errors.Is(err, ErrBadDescription) {
		t.Fatalf("expected ErrBadDescription, got %v", err)
	}
}

func TestConnectionStateMapping(t *testing.T) {
	cases := map[webrtc.PeerConnectionState]calls.ConnectionState{
		webrtc.PeerConnectionStateConnecting:   calls.ConnectionConnecting,
		webrtc.PeerConnectionStateConnected:    calls.ConnectionConnected,
		webrtc.PeerConnectionStateDisconnected: calls.ConnectionDisconnected,
		webrtc.PeerConnectionStateFailed:       calls.ConnectionFailed,
		webrtc.PeerConnectionStateClosed:       calls.ConnectionClosed,
	}
	for in, want := range cases {
		if got, ok := connectionState(in); !ok || got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
	if _, ok := connectionState(webrtc.PeerConnectionStateNew); ok {
		t.Fatalf("new should not be reported")
	}
}
