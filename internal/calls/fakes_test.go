package calls

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires due timers outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type fakeEngine struct {
	cb        EngineCallbacks
	opts      InitOptions
	initErr   error
	offerErr  error
	answerErr error
	iceErr    error
	onInit    func()

	remoteOffer  string
	remoteAnswer string
	candidates   []ICECandidate
	muted        []bool
	video        []bool
	switched     int
	closed       int
}

func (e *fakeEngine) Init(_ context.Context, opts InitOptions) (string, error) {
	e.opts = opts
	if e.onInit != nil {
		e.onInit()
	}
	if e.initErr != nil {
		return "", e.initErr
	}
	if opts.IsCaller {
		return "v=0 offer", nil
	}
	return "", nil
}

func (e *fakeEngine) HandleRemoteOffer(_ context.Context, sdp string) (string, error) {
	if e.offerErr != nil {
		return "", e.offerErr
	}
	e.remoteOffer = sdp
	return "v=0 answer", nil
}

func (e *fakeEngine) HandleRemoteAnswer(_ context.Context, sdp string) error {
	if e.answerErr != nil {
		return e.answerErr
	}
	e.remoteAnswer = sdp
	return nil
}

func (e *fakeEngine) AddICECandidate(c ICECandidate) error {
	e.candidates = append(e.candidates, c)
	return e.iceErr
}

func (e *fakeEngine) ToggleMute(m bool)   { e.muted = append(e.muted, m) }
func (e *fakeEngine) ToggleVideo(v bool)  { e.video = append(e.video, v) }
func (e *fakeEngine) SwitchCamera() error { e.switched++; return nil }
func (e *fakeEngine) Close() error        { e.closed++; return nil }

// report delivers a connection state through the engine's callback, as pion would.
func (e *fakeEngine) report(s ConnectionState) { e.cb.OnConnectionStateChange(s) }

type fakeEngines struct {
	made       []*fakeEngine
	factoryErr error
	// prepare customizes each engine before it is handed out.
	prepare func(*fakeEngine)
}

func (f *fakeEngines) New(cb EngineCallbacks) (Engine, error) {
	if f.factoryErr != nil {
		return nil, f.factoryErr
	}
	e := &fakeEngine{cb: cb}
	if f.prepare != nil {
		f.prepare(e)
	}
	f.made = append(f.made, e)
	return e, nil
}

func (f *fakeEngines) last(t *testing.T) *fakeEngine {
	t.Helper()
	if len(f.made) == 0 {
		t.Fatalf("expected an engine")
	}
	return f.made[len(f.made)-1]
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []Message
	fail bool
}

func (f *fakeTransport) Send(msg Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return !f.fail
}

func (f *fakeTransport) ofType(mt MessageType) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.sent {
		if m.Type == mt {
			out = append(out, m)
		}
	}
	return out
}

type savedRecord struct {
	peerID string
	rec    Record
}

type fakeSink struct {
	mu    sync.Mutex
	saved []savedRecord
}

func (f *fakeSink) Save(_ context.Context, peerID string, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedRecord{peerID: peerID, rec: rec})
	return nil
}

func (f *fakeSink) records() []savedRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedRecord(nil), f.saved...)
}

type harness struct {
	m         *Manager
	clock     *fakeClock
	engines   *fakeEngines
	transport *fakeTransport
	sink      *fakeSink

	rings []PendingOffer
	ended []Reason
}

func newHarness(t *testing.T, selfID string) *harness {
	t.Helper()
	h := &harness{
		clock:     newFakeClock(),
		engines:   &fakeEngines{},
		transport: &fakeTransport{},
		sink:      &fakeSink{},
	}
	n := 0
	m, err := NewManager(Config{
		SelfID:    selfID,
		Transport: h.transport,
		Engines:   h.engines.New,
		Sink:      h.sink,
		Clock:     h.clock,
		NewID: func() string {
			n++
			return selfID + "-call-" + string(rune('a'+n-1))
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Hooks: Hooks{
			OnRing:      func(p PendingOffer) { h.rings = append(h.rings, p) },
			OnCallEnded: func(_ string, r Reason, _ *Record) { h.ended = append(h.ended, r) },
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	h.m = m
	return h
}

func (h *harness) offer(callID, from, to string, ct CallType) Message {
	return Message{
		Type:       MessageOffer,
		CallID:     callID,
		FromUserID: from,
		ToUserID:   to,
		CallType:   ct,
		CreatedAt:  h.clock.Now().UnixMilli(),
		SDP:        "v=0 remote-offer",
	}
}

func candidate(s string) *ICECandidate { return &ICECandidate{Candidate: s} }

var errBoom = errors.New("boom")
