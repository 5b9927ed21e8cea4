package media

import (
	"errors"
	"strings"
	"testing"

	"commerce-calls/internal/calls"
)

func sdpLines(lines ...string) string { return strings.Join(lines, "\r\n") + "\r\n" }

var videoOffer = sdpLines(
	"v=0",
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
	"s=-",
	"t=0 0",
	"a=group:BUNDLE 0 1",
	"m=audio 9 UDP/TLS/RTP/SAVPF 111",
	"c=IN IP4 0.0.0.0",
	"a=ice-ufrag:abcd",
	"a=ice-pwd:0123456789abcdef0123456789",
	"a=mid:0",
	"a=sendrecv",
	"a=rtpmap:111 opus/48000/2",
	"m=video 9 UDP/TLS/RTP/SAVPF 96",
	"c=IN IP4 0.0.0.0",
	"a=mid:1",
	"a=sendrecv",
	"a=rtpmap:96 VP8/90000",
)

func TestInspectVideoOffer(t *testing.T) {
	d, err := Inspect(videoOffer)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !d.Audio || !d.Video || d.ICEUfrag != "abcd" {
		t.Fatalf("unexpected description %+v", d)
	}
	if d.CallType() != calls.CallTypeVideo {
		t.Fatalf("expected video")
	}
	if k := d.Kinds(); len(k) != 2 || k[0] != "audio" || k[1] != "video" {
		t.Fatalf("unexpected kinds %v", k)
	}
}

func TestInspectIgnoresRejectedSections(t *testing.T) {
	raw := strings.Replace(videoOffer, "m=video 9", "m=video 0", 1)
	d, err := Inspect(raw)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if d.Video || d.CallType() != calls.CallTypeVoice {
		t.Fatalf("expected rejected video ignored, got %+v", d)
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	if _, err := Inspect("hello"); !errors.Is(err, ErrBadDescription) {
		t.Fatalf("expected ErrBadDescription, got %v", err)
	}
	dataOnly := sdpLines("v=0", "o=- 1 2 IN IP4 127.0.0.1", "s=-", "t=0 0", "m=application 9 UDP/DTLS/SCTP webrtc-datachannel", "c=IN IP4 0.0.0.0")
	if _, err := Inspect(dataOnly); !errors.Is(err, ErrBadDescription) {
		t.Fatalf("expected ErrBadDescription for data-only sdp, got %v", err)
	}
}

func TestCheckRequiresAudio(t *testing.T) {
	videoOnly := sdpLines("v=0", "o=- 1 2 IN IP4 127.0.0.1", "s=-", "t=0 0", "m=video 9 UDP/TLS/RTP/SAVPF 96", "c=IN IP4 0.0.0.0", "a=rtpmap:96 VP8/90000")
	if _, err := Check(videoOnly, calls.CallTypeVideo); !errors.Is(err, ErrBadDescription) {
		t.Fatalf("expected ErrBadDescription, got %v", err)
	}
	if _, err := Check(videoOffer, calls.CallTypeVoice); err != nil {
		t.Fatalf("expected video offer usable for voice, got %v", err)
	}
}
