package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"commerce-calls/internal/calls"
)

var (
	ErrClosed         = errors.New("media: engine closed")
	ErrNotInitialized = errors.New("media: engine not initialized")
	ErrNoCamera       = errors.New("media: no alternate camera")
)

// Engine is a pion PeerConnection negotiating one call. It sends silent local tracks so
// both sides get sendrecv sections; capture is left to the embedding client.
type Engine struct {
	cfg Config
	cb  calls.EngineCallbacks
	log *slog.Logger

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	callType calls.CallType
	audio    *webrtc.TrackLocalStaticSample
	video    *webrtc.TrackLocalStaticSample
	audioTx  *webrtc.RTPSender
	videoTx  *webrtc.RTPSender
	closed   bool
}

// NewFactory returns a calls.EngineFactory producing pion engines configured by cfg.
func NewFactory(cfg Config) calls.EngineFactory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(cb calls.EngineCallbacks) (calls.Engine, error) {
		return &Engine{cfg: cfg, cb: cb, log: cfg.Logger}, nil
	}
}

func (e *Engine) newPeerConnection() (*webrtc.PeerConnection, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, registry); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(e.cfg.IncludeLoopback)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: e.cfg.pionServers()})
}

// Init builds the peer connection and local tracks. Callers get their offer SDP back;
// callees get "" and wait for HandleRemoteOffer.
func (e *Engine) Init(ctx context.Context, opts calls.InitOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	if e.pc != nil {
		return "", fmt.Errorf("media: engine already initialized")
	}

	pc, err := e.newPeerConnection()
	if err != nil {
		return "", fmt.Errorf("media: peer connection: %w", err)
	}
	e.pc = pc
	e.callType = opts.CallType
	e.wire(pc)

	streamID := "local-" + uuid.NewString()
	kinds := []string{"audio"}
	if e.audio, e.audioTx, err = e.addTrack(pc, webrtc.MimeTypeOpus, "audio", streamID); err != nil {
		return "", err
	}
	if opts.CallType == calls.CallTypeVideo {
		if e.video, e.videoTx, err = e.addTrack(pc, webrtc.MimeTypeVP8, "video", streamID); err != nil {
			return "", err
		}
		kinds = append(kinds, "video")
	}
	if cb := e.cb.OnLocalStream; cb != nil {
		go cb(calls.StreamHandle{ID: streamID, Kinds: kinds})
	}

	if !opts.IsCaller {
		return "", nil
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("media: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("media: set local offer: %w", err)
	}
	return offer.SDP, nil
}

func (e *Engine) addTrack(pc *webrtc.PeerConnection, mime, kind, streamID string) (*webrtc.TrackLocalStaticSample, *webrtc.RTPSender, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, kind, streamID)
	if err != nil {
		return nil, nil, fmt.Errorf("media: %s track: %w", kind, err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return nil, nil, fmt.Errorf("media: add %s track: %w", kind, err)
	}
	// RTCP must be read for the interceptors to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return track, sender, nil
}

// wire forwards pion callbacks to the manager.
func (e *Engine) wire(pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || e.cb.OnICECandidate == nil {
			return
		}
		init := c.ToJSON()
		e.cb.OnICECandidate(calls.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		st, ok := connectionState(s)
		if !ok || e.cb.OnConnectionStateChange == nil {
			return
		}
		e.cb.OnConnectionStateChange(st)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.log.Debug("media: remote track", "kind", track.Kind().String(), "stream_id", track.StreamID())
		if cb := e.cb.OnRemoteStream; cb != nil {
			cb(calls.StreamHandle{ID: track.StreamID(), Kinds: []string{track.Kind().String()}, Remote: true})
		}
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	})
}

func connectionState(s webrtc.PeerConnectionState) (calls.ConnectionState, bool) {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return calls.ConnectionConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return calls.ConnectionConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return calls.ConnectionDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return calls.ConnectionFailed, true
	case webrtc.PeerConnectionStateClosed:
		return calls.ConnectionClosed, true
	default:
		return "", false
	}
}

func (e *Engine) peer() (*webrtc.PeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.pc == nil {
		return nil, ErrNotInitialized
	}
	return e.pc, nil
}

func (e *Engine) HandleRemoteOffer(ctx context.Context, raw string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pc, err := e.peer()
	if err != nil {
		return "", err
	}
	if _, err := Check(raw, e.callType); err != nil {
		return "", err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: raw}); err != nil {
		return "", fmt.Errorf("media: set remote offer: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("media: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("media: set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (e *Engine) HandleRemoteAnswer(ctx context.Context, raw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pc, err := e.peer()
	if err != nil {
		return err
	}
	if _, err := Check(raw, e.callType); err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: raw}); err != nil {
		return fmt.Errorf("media: set remote answer: %w", err)
	}
	return nil
}

func (e *Engine) AddICECandidate(c calls.ICECandidate) error {
	pc, err := e.peer()
	if err != nil {
		return err
	}
	return pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

// ToggleMute detaches the audio track from its sender while muted.
func (e *Engine) ToggleMute(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replace(e.audioTx, e.audio, !muted)
}

func (e *Engine) ToggleVideo(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replace(e.videoTx, e.video, enabled)
}

func (e *Engine) replace(tx *webrtc.RTPSender, track *webrtc.TrackLocalStaticSample, on bool) {
	if tx == nil || e.closed {
		return
	}
	var next webrtc.TrackLocal
	if on {
		next = track
	}
	if err := tx.ReplaceTrack(next); err != nil {
		e.log.Warn("media: replace track", "err", err)
	}
}

// SwitchCamera has nothing to switch to: the engine owns a single synthetic video track.
func (e *Engine) SwitchCamera() error {
	return ErrNoCamera
}

// Close tears down the peer connection. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return nil
	}
	return pc.Close()
}
