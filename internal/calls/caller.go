package calls

import (
	"context"
	"fmt"
)

// StartCall places an outgoing call to peerID and returns its callId once the offer has
// been handed to the transport. A second call while one is active returns ErrBusy.
func (m *Manager) StartCall(ctx context.Context, peerID, peerName, peerAvatar string, callType CallType) (string, error) {
	ev := StartCall{PeerID: peerID, PeerName: peerName, PeerAvatar: peerAvatar, CallType: callType, callID: m.cfg.NewID()}
	if err := m.Handle(ctx, ev); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.CallID != ev.callID && m.lastErr != "" {
		return ev.callID, fmt.Errorf("%w: %s", ErrNegotiation, m.lastErr)
	}
	return ev.callID, nil
}

func (m *Manager) startCall(t *txn, ev StartCall) error {
	if m.session.Active() {
		m.log.Info("calls: start ignored, call active", "call_id", m.session.CallID, "phase", m.session.Phase)
		return ErrBusy
	}
	if ev.PeerID == "" || ev.PeerID == m.cfg.SelfID || !ev.CallType.Valid() {
		return fmt.Errorf("%w: peer %q type %q", ErrInvalidCall, ev.PeerID, ev.CallType)
	}

	id := ev.callID
	if id == "" {
		id = m.cfg.NewID()
	}
	video := ev.CallType == CallTypeVideo
	m.lastErr = ""
	m.session = Session{
		CallID:        id,
		Phase:         PhaseIdle,
		CallType:      ev.CallType,
		PeerUserID:    ev.PeerID,
		PeerName:      ev.PeerName,
		PeerAvatar:    ev.PeerAvatar,
		IsCaller:      true,
		VideoEnabled:  video,
		SpeakerOn:     video,
		BeautyEnabled: video,
	}
	m.setPhase(t, PhaseRequestingPermission)
	m.log.Info("calls: dialing", "call_id", m.session.CallID, "peer_id", ev.PeerID, "call_type", ev.CallType)

	callID, opts, factory, cb := m.session.CallID, InitOptions{IsCaller: true, CallType: ev.CallType}, m.cfg.Engines, m.bind(m.session.CallID)
	t.work = append(t.work, func(ctx context.Context) {
		eng, err := factory(cb)
		var offer string
		if err == nil {
			offer, err = eng.Init(ctx, opts)
			if err == nil && offer == "" {
				err = fmt.Errorf("%w: engine produced no offer", ErrNegotiation)
			}
		}
		_ = m.Handle(ctx, offerCreated{callID: callID, engine: eng, sdp: offer, err: err})
	})
	return nil
}

func (m *Manager) onOfferCreated(t *txn, ev offerCreated) {
	if !m.current(ev.callID) || m.session.Phase != PhaseRequestingPermission {
		log := m.log
		t.effect(func() { closeEngine(log, ev.engine) })
		return
	}
	m.engine = ev.engine
	if ev.err != nil {
		m.log.Error("calls: engine init", "call_id", ev.callID, "err", ev.err)
		m.fail(ev.err)
		// The peer never saw an offer, so it is not told; the attempt is still recorded.
		m.finish(t, ReasonFailed, "", true)
		return
	}

	m.setPhase(t, PhaseDialing)
	m.send(t, Message{
		Type:       MessageOffer,
		CallID:     m.session.CallID,
		ToUserID:   m.session.PeerUserID,
		CallType:   m.session.CallType,
		CreatedAt:  m.clock.Now().UnixMilli(),
		SDP:        ev.sdp,
		FromName:   m.cfg.SelfName,
		FromAvatar: m.cfg.SelfAvatar,
	})
	m.flushLocalICE(t)
	m.armTimer(timerDial, m.cfg.DialTimeout)
}

// onAnswer applies the callee's answer. The dial timer stops here: the call is no
// longer waiting on the peer.
func (m *Manager) onAnswer(t *txn, msg Message) {
	if !m.session.IsCaller || m.session.Phase != PhaseDialing {
		m.log.Debug("calls: answer ignored", "call_id", msg.CallID, "phase", m.session.Phase)
		return
	}
	eng := m.engine
	if eng == nil {
		m.log.Warn("calls: answer without engine", "call_id", msg.CallID)
		return
	}
	m.stopTimer()
	m.setPhase(t, PhaseConnecting)

	callID, sdp := msg.CallID, msg.SDP
	t.work = append(t.work, func(ctx context.Context) {
		err := eng.HandleRemoteAnswer(ctx, sdp)
		_ = m.Handle(ctx, remoteAnswerApplied{callID: callID, err: err})
	})
}

func (m *Manager) onRemoteAnswerApplied(t *txn, ev remoteAnswerApplied) {
	if !m.current(ev.callID) {
		return
	}
	if ev.err != nil {
		m.log.Error("calls: apply answer", "call_id", ev.callID, "err", ev.err)
		m.fail(ev.err)
		m.finish(t, ReasonFailed, MessageEnd, true)
		return
	}
	m.remoteSet = true
	m.flushRemoteICE(t)
}
