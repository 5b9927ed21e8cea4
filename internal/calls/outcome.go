package calls

import "time"

// Outcome is the input to Classify: everything read from the session before teardown.
type Outcome struct {
	Phase     Phase
	IsCaller  bool
	Reason    Reason
	StartedAt *time.Time
	EndedAt   time.Time
}

// Duration is whole seconds between StartedAt and EndedAt, or 0 if in-call was never reached.
func (o Outcome) Duration() int {
	if o.StartedAt == nil || o.EndedAt.Before(*o.StartedAt) {
		return 0
	}
	return int(o.EndedAt.Sub(*o.StartedAt) / time.Second)
}

// Classify maps a terminated session to a record status. First match wins:
//
//  1. connected for > 0s            -> answered
//  2. reason rejected               -> rejected
//  3. reason timeout on callee side -> missed
//  4. reason failed                 -> failed
//  5. caller hung up or timed out   -> cancelled
//  6. anything else                 -> missed
//
// Rule 1 deliberately widens "ended in-call" to include reconnecting: media had flowed,
// so a call that drops into reconnecting and is then hung up was still answered.
func Classify(o Outcome) Status {
	switch {
	case o.Duration() > 0 && o.Phase.connected():
		return StatusAnswered
	case o.Reason == ReasonRejected:
		return StatusRejected
	case o.Reason == ReasonTimeout && !o.IsCaller:
		return StatusMissed
	case o.Reason == ReasonFailed:
		return StatusFailed
	case o.IsCaller && (o.Reason == ReasonHungup || o.Reason == ReasonTimeout):
		return StatusCancelled
	default:
		return StatusMissed
	}
}
