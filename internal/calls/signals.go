package calls

import (
	"context"
	"time"
)

// Receive feeds one inbound signaling message to the manager.
func (m *Manager) Receive(ctx context.Context, msg Message) {
	_ = m.Handle(ctx, SignalReceived{Msg: msg})
}

func (m *Manager) receive(t *txn, msg Message) {
	if err := msg.Validate(); err != nil {
		m.log.Debug("calls: dropped message", "err", err)
		return
	}
	if msg.ToUserID != m.cfg.SelfID {
		m.log.Debug("calls: message for another user", "type", msg.Type, "to", msg.ToUserID)
		return
	}
	if msg.Type == MessageOffer {
		m.onOffer(t, msg)
		return
	}
	if !m.current(msg.CallID) || msg.FromUserID != m.session.PeerUserID {
		m.log.Debug("calls: stale message", "type", msg.Type, "call_id", msg.CallID)
		return
	}

	switch msg.Type {
	case MessageAnswer:
		m.onAnswer(t, msg)
	case MessageICECandidate:
		m.onRemoteCandidate(t, *msg.Candidate)
	case MessageReject:
		reason := msg.Reason
		if reason == "" {
			reason = ReasonRejected
		}
		m.finish(t, reason, "", true)
	case MessageBusy:
		m.finish(t, ReasonBusy, "", true)
	case MessageEnd:
		reason := msg.Reason
		if reason == "" {
			reason = ReasonHungup
		}
		m.finish(t, reason, "", true)
	}
}

func (m *Manager) onRemoteCandidate(t *txn, c ICECandidate) {
	if m.engine == nil || !m.remoteSet {
		if len(m.remoteICE) >= maxBufferedCandidates {
			m.log.Warn("calls: remote candidate buffer full", "call_id", m.session.CallID)
			return
		}
		m.remoteICE = append(m.remoteICE, c)
		return
	}
	m.addCandidates(t, []ICECandidate{c})
}

func (m *Manager) flushRemoteICE(t *txn) {
	if len(m.remoteICE) == 0 {
		return
	}
	m.addCandidates(t, m.remoteICE)
	m.remoteICE = nil
}

// addCandidates applies remote candidates. Failures are expected for late or duplicate
// candidates and never end the call.
func (m *Manager) addCandidates(t *txn, cs []ICECandidate) {
	eng, callID, log := m.engine, m.session.CallID, m.log
	t.effect(func() {
		for _, c := range cs {
			if err := eng.AddICECandidate(c); err != nil {
				log.Debug("calls: add candidate", "call_id", callID, "err", err)
			}
		}
	})
}

func (m *Manager) onLocalCandidate(t *txn, ev LocalCandidate) {
	if !m.current(ev.CallID) {
		return
	}
	if !m.localSent {
		if len(m.localICE) < maxBufferedCandidates {
			m.localICE = append(m.localICE, ev.Candidate)
		}
		return
	}
	m.sendCandidate(t, ev.Candidate)
}

// flushLocalICE marks our description as sent and forwards candidates gathered before it.
func (m *Manager) flushLocalICE(t *txn) {
	m.localSent = true
	for _, c := range m.localICE {
		m.sendCandidate(t, c)
	}
	m.localICE = nil
}

func (m *Manager) sendCandidate(t *txn, c ICECandidate) {
	m.send(t, Message{
		Type:      MessageICECandidate,
		CallID:    m.session.CallID,
		ToUserID:  m.session.PeerUserID,
		Candidate: &c,
	})
}

func (m *Manager) onConnectionChanged(t *txn, ev ConnectionChanged) {
	if !m.current(ev.CallID) {
		return
	}
	switch ev.State {
	case ConnectionConnected:
		if !m.setPhase(t, PhaseInCall) {
			return
		}
		if m.session.StartedAt == nil {
			now := m.clock.Now()
			m.session.StartedAt = &now
			t.changed = true
			m.log.Info("calls: connected", "call_id", ev.CallID)
		}
	case ConnectionDisconnected:
		if m.session.Phase == PhaseInCall {
			m.setPhase(t, PhaseReconnecting)
		}
	case ConnectionFailed:
		m.finish(t, ReasonFailed, MessageEnd, true)
	}
}

func (m *Manager) onStream(t *txn, ev StreamAvailable) {
	if !m.current(ev.CallID) {
		return
	}
	s := ev.Stream
	if s.Remote {
		m.remoteStream = &s
	} else {
		m.localStream = &s
	}
	if hook := m.cfg.Hooks.OnStream; hook != nil {
		callID := ev.CallID
		t.effect(func() { hook(callID, s) })
	}
}

// Streams returns the stream handles of the live call.
func (m *Manager) Streams() (local, remote *StreamHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localStream, m.remoteStream
}

func (m *Manager) onEngineError(t *txn, ev EngineFailed) {
	if !m.current(ev.CallID) || ev.Err == nil {
		return
	}
	m.log.Warn("calls: engine error", "call_id", ev.CallID, "err", ev.Err)
	m.fail(ev.Err)
	t.changed = true
}

// Duration is how long the live call has been connected.
func (m *Manager) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.StartedAt == nil {
		return 0
	}
	return m.clock.Now().Sub(*m.session.StartedAt)
}
