package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
	"github.com/swingmate-app/challenge-engine/internal/protocol"
	"github.com/swingmate-app/challenge-engine/internal/ranking"
	"github.com/swingmate-app/challenge-engine/pkg/arenadto"
)

// pending is the optimistic overlay for one session: what the viewer has
// asked for but the event stream has not confirmed yet. Kept strictly apart
// from confirmed state so a failed durable call reverts cleanly and the
// eventual event overwrites rather than merges.
type pending struct {
	join    bool
	leave   bool
	score   *float64
	scoreAt time.Time
}

func (p *pending) empty() bool {
	return p == nil || (!p.join && !p.leave && p.score == nil)
}

func (e *Engine) setPending(id string, mut func(*pending)) {
	e.overlayMu.Lock()
	p := e.overlay[id]
	if p == nil {
		p = &pending{}
		e.overlay[id] = p
	}
	mut(p)
	if p.empty() {
		delete(e.overlay, id)
	}
	e.overlayMu.Unlock()
}

func (e *Engine) clearPending(id string, mut func(*pending)) {
	e.overlayMu.Lock()
	if p := e.overlay[id]; p != nil {
		mut(p)
		if p.empty() {
			delete(e.overlay, id)
		}
	}
	e.overlayMu.Unlock()
}

// confirmPending drops overlay entries once the event stream confirms them.
// The confirmed event is authoritative; the overlay never survives it.
func (e *Engine) confirmPending(ev protocol.Event) {
	switch m := ev.(type) {
	case protocol.ParticipantJoined:
		if m.Participant.ID == e.cfg.ViewerID {
			e.clearPending(m.SessionID(), func(p *pending) { p.join = false })
		}
	case protocol.ParticipantLeft:
		if m.Participant.ID == e.cfg.ViewerID {
			e.clearPending(m.SessionID(), func(p *pending) { p.leave = false })
		}
	case protocol.ScoreUpdated:
		if m.Entry.ParticipantID == e.cfg.ViewerID {
			e.clearPending(m.SessionID(), func(p *pending) { p.score = nil })
		}
	case protocol.ChallengeUpdated:
		// full snapshot: confirmed roster and scores supersede the overlay
		if snap := e.st.Snapshot(m.SessionID()); snap != nil {
			if _, ok := snap.Participants[e.cfg.ViewerID]; ok {
				e.clearPending(m.SessionID(), func(p *pending) { p.join = false })
			}
		}
	}
}

// applyOverlay layers the viewer's unconfirmed commands over a confirmed
// snapshot. Read-only view; the store itself is never touched.
func (e *Engine) applyOverlay(snap *challenge.Session) *challenge.Session {
	if snap == nil {
		return nil
	}
	e.overlayMu.Lock()
	p := e.overlay[snap.ID]
	var cp pending
	if p != nil {
		cp = *p
	}
	e.overlayMu.Unlock()
	if cp.empty() {
		return snap
	}

	changed := false
	if cp.join {
		if _, ok := snap.Participants[e.cfg.ViewerID]; !ok {
			snap.Participants[e.cfg.ViewerID] = &challenge.Participant{
				ID:          e.cfg.ViewerID,
				DisplayName: e.cfg.ViewerName,
				JoinedAt:    e.clock.Now(),
				Online:      true,
			}
			changed = true
		}
	}
	if cp.leave {
		if _, ok := snap.Participants[e.cfg.ViewerID]; ok {
			delete(snap.Participants, e.cfg.ViewerID)
			changed = true
		}
	}
	if cp.score != nil {
		if self, ok := snap.Participants[e.cfg.ViewerID]; ok {
			v := *cp.score
			self.Score = &v
			self.ScoredAt = cp.scoreAt
			changed = true
		}
	}
	if changed {
		snap.Leaderboard = ranking.Recompute(e.cfg.ViewerID, snap.Roster())
	}
	return snap
}

// CreateChallenge issues the durable create and optimistically seeds the
// local store with the returned session until the created event lands.
func (e *Engine) CreateChallenge(ctx context.Context, req arenadto.CreateChallengeRequest) (*challenge.Session, error) {
	sess, err := e.api.CreateChallenge(ctx, req)
	if err != nil {
		return nil, err
	}
	payload := protocol.FromSession(sess)
	e.post(eventTask{ev: protocol.ChallengeCreated{Session: payload}})
	e.pushCommand(ctx, protocol.CreateChallengeCommand{
		Type:      protocol.CommandCreateChallenge,
		CommandID: uuid.NewString(),
		Session:   payload,
	})
	return sess, nil
}

// JoinChallenge marks the join optimistically, issues the durable call and
// reverts on rejection. The roster only becomes truth when the
// participant_joined event comes back around.
func (e *Engine) JoinChallenge(ctx context.Context, id string) error {
	if e.st.Snapshot(id) == nil {
		return ErrChallengeGone
	}
	e.setPending(id, func(p *pending) { p.join = true; p.leave = false })
	if err := e.api.JoinChallenge(ctx, id); err != nil {
		e.post(commandDoneTask{sessionID: id, clear: func(p *pending) { p.join = false }})
		return err
	}
	e.pushCommand(ctx, protocol.JoinCommand{
		Type:      protocol.CommandJoinChallenge,
		CommandID: uuid.NewString(),
		SessionID: id,
	})
	return nil
}

func (e *Engine) LeaveChallenge(ctx context.Context, id string) error {
	if e.st.Snapshot(id) == nil {
		return ErrChallengeGone
	}
	e.setPending(id, func(p *pending) { p.leave = true; p.join = false })
	if err := e.api.LeaveChallenge(ctx, id); err != nil {
		e.post(commandDoneTask{sessionID: id, clear: func(p *pending) { p.leave = false }})
		return err
	}
	e.pushCommand(ctx, protocol.LeaveCommand{
		Type:      protocol.CommandLeaveChallenge,
		CommandID: uuid.NewString(),
		SessionID: id,
	})
	return nil
}

// SubmitScore rejects sessions that are not running before touching the
// network; the server would refuse anyway, this just fails fast.
func (e *Engine) SubmitScore(ctx context.Context, id string, score float64) error {
	snap := e.st.Snapshot(id)
	if snap == nil {
		return ErrChallengeGone
	}
	if snap.State != challenge.StateActive {
		return ErrChallengeInactive
	}

	at := e.clock.Now()
	e.setPending(id, func(p *pending) { v := score; p.score = &v; p.scoreAt = at })
	if err := e.api.SubmitScore(ctx, id, score, at); err != nil {
		e.post(commandDoneTask{sessionID: id, clear: func(p *pending) { p.score = nil }})
		return err
	}
	e.pushCommand(ctx, protocol.SubmitScoreCommand{
		Type:       protocol.CommandSubmitScore,
		CommandID:  uuid.NewString(),
		SessionID:  id,
		Score:      score,
		RecordedAt: at,
	})
	return nil
}

func (e *Engine) pushCommand(ctx context.Context, frame any) {
	if e.out != nil {
		e.out.Push(ctx, frame)
	}
}
