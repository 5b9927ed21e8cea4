package calls

// transitions lists the legal phase changes. Every non-idle phase can fall back to idle
// through cleanup.
var transitions = map[Phase][]Phase{
	PhaseIdle:                 {PhaseRequestingPermission, PhaseRinging},
	PhaseRequestingPermission: {PhaseDialing, PhaseIdle},
	PhaseDialing:              {PhaseConnecting, PhaseIdle},
	PhaseRinging:              {PhaseConnecting, PhaseIdle},
	PhaseConnecting:           {PhaseInCall, PhaseIdle},
	PhaseInCall:               {PhaseReconnecting, PhaseIdle},
	PhaseReconnecting:         {PhaseInCall, PhaseIdle},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// connected reports whether media was flowing in p.
func (p Phase) connected() bool { return p == PhaseInCall || p == PhaseReconnecting }
