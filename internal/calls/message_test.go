package calls

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeOffer(t *testing.T) {
	raw := `{"type":"call-offer","callId":"c1","fromUserId":"1","toUserId":"2","callType":"video","createdAt":1700000000000,"sdp":"v=0"}`
	m, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != MessageOffer || m.CallType != CallTypeVideo || m.OfferTime().UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := []string{
		`not json`,
		`{"type":"call-ring","callId":"c1","fromUserId":"1","toUserId":"2"}`,
		`{"type":"call-end","fromUserId":"1","toUserId":"2"}`,
		`{"type":"call-offer","callId":"c1","fromUserId":"1","toUserId":"2","callType":"voice"}`,
		`{"type":"call-offer","callId":"c1","fromUserId":"1","toUserId":"2","sdp":"v=0"}`,
		`{"type":"call-answer","callId":"c1","fromUserId":"1","toUserId":"2"}`,
		`{"type":"call-ice-candidate","callId":"c1","fromUserId":"1","toUserId":"2"}`,
		`{"type":"call-end","callId":"c1","toUserId":"2"}`,
	}
	for _, raw := range cases {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("%s: expected ErrInvalidMessage, got %v", raw, err)
		}
	}
}

func TestEncodeUsesWireNames(t *testing.T) {
	mid := "0"
	b, err := Encode(Message{
		Type:       MessageICECandidate,
		CallID:     "c1",
		FromUserID: "1",
		ToUserID:   "2",
		Candidate:  &ICECandidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, want := range []string{`"type":"call-ice-candidate"`, `"callId":"c1"`, `"fromUserId":"1"`, `"sdpMid":"0"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("expected %s in %s", want, b)
		}
	}
	if strings.Contains(string(b), `"sdp"`) {
		t.Fatalf("empty sdp should be omitted: %s", b)
	}
}
