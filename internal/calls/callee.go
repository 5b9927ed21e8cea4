package calls

import (
	"context"
	"fmt"
)

// AcceptCall answers the ringing call. It returns ErrNotRinging when there is nothing to answer.
func (m *Manager) AcceptCall(ctx context.Context) error {
	return m.Handle(ctx, AcceptCall{})
}

// RejectCall declines the ringing call.
func (m *Manager) RejectCall(ctx context.Context) error {
	return m.Handle(ctx, RejectCall{})
}

// EndCall hangs up. Ending an idle manager is a no-op, so it is safe to call twice.
func (m *Manager) EndCall(ctx context.Context, reason Reason) error {
	return m.Handle(ctx, EndCall{Reason: reason})
}

// onOffer starts ringing for an offer, or answers call-busy when a call is already active.
func (m *Manager) onOffer(t *txn, msg Message) {
	if m.ended(msg.CallID) {
		m.log.Debug("calls: offer for ended call dropped", "call_id", msg.CallID)
		return
	}
	if m.session.Active() {
		if msg.CallID == m.session.CallID {
			return
		}
		m.log.Info("calls: busy", "call_id", msg.CallID, "from", msg.FromUserID, "active_call_id", m.session.CallID)
		m.send(t, Message{Type: MessageBusy, CallID: msg.CallID, ToUserID: msg.FromUserID, Reason: ReasonBusy})
		return
	}

	video := msg.CallType == CallTypeVideo
	created := msg.OfferTime()
	if created.IsZero() {
		created = m.clock.Now()
	}
	m.lastErr = ""
	m.session = Session{
		CallID:        msg.CallID,
		Phase:         PhaseIdle,
		CallType:      msg.CallType,
		PeerUserID:    msg.FromUserID,
		PeerName:      msg.FromName,
		PeerAvatar:    msg.FromAvatar,
		VideoEnabled:  video,
		SpeakerOn:     video,
		BeautyEnabled: video,
	}
	offer := PendingOffer{
		CallID:     msg.CallID,
		CallType:   msg.CallType,
		FromUserID: msg.FromUserID,
		PeerName:   msg.FromName,
		PeerAvatar: msg.FromAvatar,
		SDP:        msg.SDP,
		CreatedAt:  created,
	}
	m.pending = &offer
	m.setPhase(t, PhaseRinging)
	m.armTimer(timerRing, m.cfg.RingTimeout)
	m.log.Info("calls: ringing", "call_id", msg.CallID, "peer_id", msg.FromUserID, "call_type", msg.CallType)

	if ring := m.cfg.Hooks.OnRing; ring != nil {
		t.effect(func() { ring(offer) })
	}
}

func (m *Manager) acceptCall(t *txn) error {
	if m.session.Phase != PhaseRinging || m.pending == nil {
		m.log.Info("calls: accept ignored", "phase", m.session.Phase)
		return ErrNotRinging
	}
	m.stopTimer()
	offer := *m.pending
	m.pending = nil
	m.setPhase(t, PhaseConnecting)

	opts, factory, cb := InitOptions{CallType: offer.CallType}, m.cfg.Engines, m.bind(offer.CallID)
	t.work = append(t.work, func(ctx context.Context) {
		eng, err := factory(cb)
		var answer string
		if err == nil {
			_, err = eng.Init(ctx, opts)
		}
		if err == nil {
			answer, err = eng.HandleRemoteOffer(ctx, offer.SDP)
			if err == nil && answer == "" {
				err = fmt.Errorf("%w: engine produced no answer", ErrNegotiation)
			}
		}
		_ = m.Handle(ctx, answerCreated{callID: offer.CallID, engine: eng, sdp: answer, err: err})
	})
	return nil
}

func (m *Manager) onAnswerCreated(t *txn, ev answerCreated) {
	if !m.current(ev.callID) || m.session.Phase != PhaseConnecting || m.engine != nil {
		log := m.log
		t.effect(func() { closeEngine(log, ev.engine) })
		return
	}
	m.engine = ev.engine
	if ev.err != nil {
		m.log.Error("calls: answer", "call_id", ev.callID, "err", ev.err)
		m.fail(ev.err)
		// No media ever flowed, so no call-end; the record still marks the attempt failed.
		m.finish(t, ReasonFailed, "", true)
		return
	}

	m.send(t, Message{
		Type:     MessageAnswer,
		CallID:   m.session.CallID,
		ToUserID: m.session.PeerUserID,
		CallType: m.session.CallType,
		SDP:      ev.sdp,
	})
	m.flushLocalICE(t)
	m.remoteSet = true
	m.flushRemoteICE(t)
}

func (m *Manager) rejectCall(t *txn) error {
	if m.session.Phase != PhaseRinging {
		m.log.Info("calls: reject ignored", "phase", m.session.Phase)
		return ErrNotRinging
	}
	m.finish(t, ReasonRejected, MessageReject, true)
	return nil
}
