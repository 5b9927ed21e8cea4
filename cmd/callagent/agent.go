package main

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"commerce-calls/internal/calls"
	"commerce-calls/internal/signaling"
)

// agent drives one calls.Manager from the relay connection and the answer policy.
type agent struct {
	cfg     agentConfig
	log     *slog.Logger
	manager *calls.Manager
	client  *signaling.Client

	rings     chan calls.PendingOffer
	connected chan string
}

func newAgent(cfg agentConfig, log *slog.Logger) *agent {
	return &agent{
		cfg:       cfg,
		log:       log,
		rings:     make(chan calls.PendingOffer, 1),
		connected: make(chan string, 1),
	}
}

// hooks are invoked from the manager's effect queue; they only hand work to run's loop.
func (a *agent) hooks() calls.Hooks {
	return calls.Hooks{
		OnRing: func(p calls.PendingOffer) {
			a.log.Info("incoming call", "call_id", p.CallID, "from", p.FromUserID, "call_type", p.CallType)
			select {
			case a.rings <- p:
			default:
			}
		},
		OnStateChange: func(s calls.Session) {
			a.log.Debug("call state", "call_id", s.CallID, "phase", s.Phase, "peer", s.PeerUserID)
			if s.Phase == calls.PhaseInCall {
				select {
				case a.connected <- s.CallID:
				default:
				}
			}
		},
		OnCallEnded: func(callID string, reason calls.Reason, rec *calls.Record) {
			attrs := []any{"call_id", callID, "reason", reason}
			if rec != nil {
				attrs = append(attrs, "status", rec.Status, "duration_seconds", rec.DurationSeconds)
			}
			a.log.Info("call ended", attrs...)
		},
		OnStream: func(callID string, s calls.StreamHandle) {
			a.log.Debug("stream", "call_id", callID, "stream_id", s.ID, "remote", s.Remote, "kinds", s.Kinds)
		},
	}
}

func (a *agent) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.client.Run(gctx, a.manager.Receive)
	})
	g.Go(func() error {
		a.loop(gctx)
		return nil
	})
	if a.cfg.Call != "" {
		g.Go(func() error {
			return a.placeCall(gctx)
		})
	}
	err := g.Wait()

	// Hang up whatever is live so the peer is told and the record is saved.
	_ = a.manager.EndCall(context.WithoutCancel(ctx), calls.ReasonHungup)
	return err
}

func (a *agent) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-a.rings:
			a.answer(ctx, p)
		case callID := <-a.connected:
			a.scheduleHangup(ctx, callID)
		}
	}
}

func (a *agent) answer(ctx context.Context, p calls.PendingOffer) {
	if !a.cfg.shouldAnswer(p.FromUserID) {
		a.log.Debug("not auto-answering", "call_id", p.CallID, "from", p.FromUserID)
		return
	}
	if a.cfg.AnswerDelay > 0 {
		t := time.NewTimer(a.cfg.AnswerDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	// The call may have been cancelled while we waited.
	if cur, ok := a.manager.Pending(); !ok || cur.CallID != p.CallID {
		return
	}
	if err := a.manager.AcceptCall(ctx); err != nil {
		a.log.Warn("accept failed", "call_id", p.CallID, "err", err)
	}
}

func (a *agent) scheduleHangup(ctx context.Context, callID string) {
	if a.cfg.HangupAfter <= 0 {
		return
	}
	time.AfterFunc(a.cfg.HangupAfter, func() {
		if ctx.Err() != nil || a.manager.Snapshot().CallID != callID {
			return
		}
		a.log.Info("hanging up", "call_id", callID)
		_ = a.manager.EndCall(ctx, calls.ReasonHungup)
	})
}

// placeCall waits for the relay and dials cfg.Call once.
func (a *agent) placeCall(ctx context.Context) error {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for !a.client.Connected() {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
	callID, err := a.manager.StartCall(ctx, a.cfg.Call, "", "", calls.CallType(a.cfg.CallType))
	if err != nil {
		a.log.Error("start call failed", "peer", a.cfg.Call, "err", err)
		return nil
	}
	a.log.Info("calling", "call_id", callID, "peer", a.cfg.Call)
	return nil
}
