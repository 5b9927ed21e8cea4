package media

import (
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"

	"commerce-calls/internal/calls"
)

var ErrBadDescription = errors.New("media: unusable session description")

// Description is what the engine needs to know about a remote SDP before applying it.
type Description struct {
	Audio bool
	Video bool
	// ICEUfrag is the session or first media level ice-ufrag, empty for ICE-lite peers
	// that omit it.
	ICEUfrag string
}

// Kinds lists the media kinds in the order audio, video.
func (d Description) Kinds() []string {
	var out []string
	if d.Audio {
		out = append(out, "audio")
	}
	if d.Video {
		out = append(out, "video")
	}
	return out
}

// CallType is video when the description carries an active video section.
func (d Description) CallType() calls.CallType {
	if d.Video {
		return calls.CallTypeVideo
	}
	return calls.CallTypeVoice
}

// Inspect parses raw and reports its media sections. Sections with port 0 are rejected
// by the peer and do not count.
func Inspect(raw string) (Description, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return Description{}, fmt.Errorf("%w: %v", ErrBadDescription, err)
	}
	var d Description
	if v, ok := sd.Attribute("ice-ufrag"); ok {
		d.ICEUfrag = v
	}
	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Port.Value == 0 {
			continue
		}
		switch md.MediaName.Media {
		case "audio":
			d.Audio = true
		case "video":
			d.Video = true
		}
		if d.ICEUfrag == "" {
			if v, ok := md.Attribute("ice-ufrag"); ok {
				d.ICEUfrag = v
			}
		}
	}
	if !d.Audio && !d.Video {
		return Description{}, fmt.Errorf("%w: no audio or video section", ErrBadDescription)
	}
	return d, nil
}

// Check verifies a remote description can carry a call of type ct. Every call needs
// audio; video calls may be answered audio-only.
func Check(raw string, ct calls.CallType) (Description, error) {
	d, err := Inspect(raw)
	if err != nil {
		return d, err
	}
	if !d.Audio {
		return d, fmt.Errorf("%w: %s call without audio", ErrBadDescription, ct)
	}
	return d, nil
}
