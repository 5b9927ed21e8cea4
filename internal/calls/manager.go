package calls

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBusy         = errors.New("calls: a call is already active")
	ErrNotRinging   = errors.New("calls: no incoming call to answer")
	ErrInvalidCall  = errors.New("calls: invalid call request")
	ErrNegotiation  = errors.New("calls: media negotiation failed")
	ErrMissingField = errors.New("calls: manager config incomplete")
)

const (
	DefaultDialTimeout = 60 * time.Second
	DefaultRingTimeout = 30 * time.Second

	maxBufferedCandidates = 64
	recentCallIDs         = 16
)

type Config struct {
	// SelfID is the local user id, stamped as fromUserId on every outbound message.
	SelfID     string
	// SelfName and SelfAvatar ride on outgoing offers for the callee's ring screen.
	SelfName   string
	SelfAvatar string

	Transport Transport
	Engines   EngineFactory
	// Sink receives one Record per terminated session. Optional.
	Sink      RecordSink
	Hooks     Hooks

	Clock  Clock
	NewID  func() string
	Logger *slog.Logger

	DialTimeout time.Duration
	RingTimeout time.Duration
}

// Manager owns the single call session of one client. All methods are safe for
// concurrent use; events are applied one at a time under mu and their side effects run
// afterwards, in order, without the lock.
type Manager struct {
	cfg   Config
	clock Clock
	log   *slog.Logger

	mu      sync.Mutex
	session Session
	lastErr string
	pending *PendingOffer
	engine  Engine

	// remoteSet is true once the engine holds the peer's description.
	remoteSet bool
	remoteICE []ICECandidate
	// localSent is true once our offer or answer went out; candidates gathered before
	// that are held in localICE.
	localSent bool
	localICE  []ICECandidate

	localStream  *StreamHandle
	remoteStream *StreamHandle

	timer     Timer
	timerKind timerKind

	recent []string

	queue    []func()
	draining bool
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.SelfID == "" || cfg.Transport == nil || cfg.Engines == nil {
		return nil, ErrMissingField
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = DefaultRingTimeout
	}
	return &Manager{
		cfg:     cfg,
		clock:   cfg.Clock,
		log:     cfg.Logger.With("user_id", cfg.SelfID),
		session: idleSession(),
	}, nil
}

// Snapshot returns a copy of the current session. Error survives cleanup so the UI can
// show why the last call ended.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Session {
	s := m.session
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	s.Error = m.lastErr
	return s
}

// Pending returns the offer currently ringing, if any.
func (m *Manager) Pending() (PendingOffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return PendingOffer{}, false
	}
	return *m.pending, true
}

// txn collects what one event wants done outside the lock.
type txn struct {
	ctx     context.Context
	fx      []func()
	work    []func(context.Context)
	changed bool
}

func (t *txn) effect(f func()) { t.fx = append(t.fx, f) }

// Handle applies ev to the session. The returned error only reports a rejected user
// action; the session is never disturbed by one.
func (m *Manager) Handle(ctx context.Context, ev Event) error {
	t := &txn{ctx: ctx}

	m.mu.Lock()
	err := m.apply(t, ev)
	if t.changed && m.cfg.Hooks.OnStateChange != nil {
		snap, hook := m.snapshotLocked(), m.cfg.Hooks.OnStateChange
		t.effect(func() { hook(snap) })
	}
	m.queue = append(m.queue, t.fx...)
	drain := !m.draining && len(m.queue) > 0
	if drain {
		m.draining = true
	}
	m.mu.Unlock()

	if drain {
		m.drain()
	}
	for _, w := range t.work {
		w(ctx)
	}
	return err
}

// drain runs queued effects until the queue is empty. Only one goroutine drains at a
// time so sends leave in the order their events were applied.
func (m *Manager) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		f := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()
		f()
	}
}

func (m *Manager) apply(t *txn, ev Event) error {
	switch ev := ev.(type) {
	case StartCall:
		return m.startCall(t, ev)
	case offerCreated:
		m.onOfferCreated(t, ev)
	case AcceptCall:
		return m.acceptCall(t)
	case answerCreated:
		m.onAnswerCreated(t, ev)
	case RejectCall:
		return m.rejectCall(t)
	case EndCall:
		reason := ev.Reason
		if reason == "" {
			reason = ReasonHungup
		}
		m.finish(t, reason, MessageEnd, true)
	case SignalReceived:
		m.receive(t, ev.Msg)
	case remoteAnswerApplied:
		m.onRemoteAnswerApplied(t, ev)
	case TimerFired:
		m.onTimer(t, ev)
	case ConnectionChanged:
		m.onConnectionChanged(t, ev)
	case LocalCandidate:
		m.onLocalCandidate(t, ev)
	case StreamAvailable:
		m.onStream(t, ev)
	case EngineFailed:
		m.onEngineError(t, ev)
	case ToggleMute, ToggleVideo, ToggleSpeaker, ToggleBeauty, SwitchCamera:
		m.control(t, ev)
	default:
		m.log.Warn("calls: unknown event", "event", ev)
	}
	return nil
}

// current reports whether callID names the live session.
func (m *Manager) current(callID string) bool {
	return m.session.Active() && callID != "" && callID == m.session.CallID
}

// setPhase moves the session along a legal edge of the transition table.
func (m *Manager) setPhase(t *txn, to Phase) bool {
	from := m.session.Phase
	if from == to {
		return true
	}
	if !CanTransition(from, to) {
		m.log.Warn("calls: illegal transition", "call_id", m.session.CallID, "from", from, "to", to)
		return false
	}
	m.session.Phase = to
	t.changed = true
	m.log.Debug("calls: phase", "call_id", m.session.CallID, "from", from, "to", to)
	return true
}

func (m *Manager) send(t *txn, msg Message) {
	msg.FromUserID = m.cfg.SelfID
	tr, log := m.cfg.Transport, m.log
	t.effect(func() {
		if !tr.Send(msg) {
			log.Warn("calls: signaling send failed", "type", msg.Type, "call_id", msg.CallID, "to", msg.ToUserID)
		}
	})
}

func (m *Manager) armTimer(kind timerKind, d time.Duration) {
	m.stopTimer()
	callID := m.session.CallID
	m.timerKind = kind
	m.timer = m.clock.AfterFunc(d, func() {
		_ = m.Handle(context.Background(), TimerFired{CallID: callID, Kind: kind})
	})
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
		m.timerKind = ""
	}
}

func (m *Manager) onTimer(t *txn, ev TimerFired) {
	if !m.current(ev.CallID) || ev.Kind != m.timerKind {
		return
	}
	switch ev.Kind {
	case timerDial:
		if p := m.session.Phase; p == PhaseDialing || p == PhaseRinging {
			m.log.Info("calls: dial timeout", "call_id", ev.CallID)
			m.finish(t, ReasonTimeout, MessageEnd, true)
		}
	case timerRing:
		if m.session.Phase == PhaseRinging {
			m.log.Info("calls: ring timeout", "call_id", ev.CallID)
			m.finish(t, ReasonTimeout, MessageReject, true)
		}
	}
}

// finish is the single teardown path. It reads everything it needs before resetting the
// session, and does nothing once the session is idle, so a call ends at most once.
// notify is the message sent to the peer, or "" for none.
func (m *Manager) finish(t *txn, reason Reason, notify MessageType, record bool) {
	s := m.session
	if !s.Active() {
		return
	}
	now := m.clock.Now()
	m.stopTimer()

	if notify != "" && s.PeerUserID != "" && s.CallID != "" {
		m.send(t, Message{Type: notify, CallID: s.CallID, ToUserID: s.PeerUserID, Reason: reason})
	}

	var rec *Record
	if record {
		out := Outcome{Phase: s.Phase, IsCaller: s.IsCaller, Reason: reason, StartedAt: s.StartedAt, EndedAt: now}
		r := Record{
			CallID:          s.CallID,
			CallType:        s.CallType,
			Status:          Classify(out),
			Direction:       DirectionIncoming,
			DurationSeconds: out.Duration(),
			Timestamp:       now,
		}
		if s.IsCaller {
			r.Direction = DirectionOutgoing
		}
		rec = &r
		if sink := m.cfg.Sink; sink != nil {
			ctx, log := context.WithoutCancel(t.ctx), m.log
			t.effect(func() {
				if err := sink.Save(ctx, s.PeerUserID, r); err != nil {
					log.Error("calls: save record", "call_id", r.CallID, "err", err)
				}
			})
		}
	}

	if eng := m.engine; eng != nil {
		log := m.log
		t.effect(func() {
			if err := eng.Close(); err != nil {
				log.Warn("calls: close engine", "call_id", s.CallID, "err", err)
			}
		})
	}
	m.cleanup(t)
	m.remember(s.CallID)

	m.log.Info("calls: ended", "call_id", s.CallID, "peer_id", s.PeerUserID, "phase", s.Phase, "reason", reason)
	if hook := m.cfg.Hooks.OnCallEnded; hook != nil {
		t.effect(func() { hook(s.CallID, reason, rec) })
	}
}

// cleanup resets every per-call field. Only finish calls it.
func (m *Manager) cleanup(t *txn) {
	m.session = idleSession()
	m.pending = nil
	m.engine = nil
	m.remoteSet = false
	m.remoteICE = nil
	m.localSent = false
	m.localICE = nil
	m.localStream = nil
	m.remoteStream = nil
	t.changed = true
}

func (m *Manager) remember(callID string) {
	if len(m.recent) == recentCallIDs {
		copy(m.recent, m.recent[1:])
		m.recent = m.recent[:recentCallIDs-1]
	}
	m.recent = append(m.recent, callID)
}

func (m *Manager) ended(callID string) bool {
	for _, id := range m.recent {
		if id == callID {
			return true
		}
	}
	return false
}

// bind returns engine callbacks fenced to callID.
func (m *Manager) bind(callID string) EngineCallbacks {
	post := func(ev Event) { _ = m.Handle(context.Background(), ev) }
	return EngineCallbacks{
		OnLocalStream: func(s StreamHandle) {
			s.Remote = false
			post(StreamAvailable{CallID: callID, Stream: s})
		},
		OnRemoteStream: func(s StreamHandle) {
			s.Remote = true
			post(StreamAvailable{CallID: callID, Stream: s})
		},
		OnICECandidate: func(c ICECandidate) { post(LocalCandidate{CallID: callID, Candidate: c}) },
		OnConnectionStateChange: func(st ConnectionState) {
			post(ConnectionChanged{CallID: callID, State: st})
		},
		OnError: func(err error) { post(EngineFailed{CallID: callID, Err: err}) },
	}
}

func (m *Manager) fail(err error) {
	m.lastErr = err.Error()
	m.session.Error = m.lastErr
}

func closeEngine(log *slog.Logger, eng Engine) {
	if eng == nil {
		return
	}
	if err := eng.Close(); err != nil {
		log.Warn("calls: close stale engine", "err", err)
	}
}
