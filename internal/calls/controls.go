package calls

import "context"

func (m *Manager) ToggleMute(ctx context.Context)    { _ = m.Handle(ctx, ToggleMute{}) }
func (m *Manager) ToggleVideo(ctx context.Context)   { _ = m.Handle(ctx, ToggleVideo{}) }
func (m *Manager) ToggleSpeaker(ctx context.Context) { _ = m.Handle(ctx, ToggleSpeaker{}) }
func (m *Manager) ToggleBeauty(ctx context.Context)  { _ = m.Handle(ctx, ToggleBeauty{}) }
func (m *Manager) SwitchCamera(ctx context.Context)  { _ = m.Handle(ctx, SwitchCamera{}) }

// control applies a local toggle. Toggles never move the phase and are ignored while idle.
func (m *Manager) control(t *txn, ev Event) {
	if !m.session.Active() {
		return
	}
	eng, log, callID := m.engine, m.log, m.session.CallID
	switch ev.(type) {
	case ToggleMute:
		m.session.Muted = !m.session.Muted
		if eng != nil {
			muted := m.session.Muted
			t.effect(func() { eng.ToggleMute(muted) })
		}
	case ToggleVideo:
		m.session.VideoEnabled = !m.session.VideoEnabled
		if eng != nil {
			enabled := m.session.VideoEnabled
			t.effect(func() { eng.ToggleVideo(enabled) })
		}
	case ToggleSpeaker:
		m.session.SpeakerOn = !m.session.SpeakerOn
	case ToggleBeauty:
		m.session.BeautyEnabled = !m.session.BeautyEnabled
	case SwitchCamera:
		if eng == nil {
			return
		}
		t.effect(func() {
			if err := eng.SwitchCamera(); err != nil {
				log.Warn("calls: switch camera", "call_id", callID, "err", err)
			}
		})
		return
	}
	t.changed = true
}
