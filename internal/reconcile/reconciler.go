// Package reconcile applies inbound push events to the session store.
//
// The reconciler is the only writer of the store. It runs on the engine
// goroutine, so application is serialized in arrival order; delivery may be
// at-least-once, so every rule is idempotent. In-place edits go through
// Store.Mutate, under the store's write lock, so snapshot readers on other
// goroutines never observe a half-applied event.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
	"github.com/swingmate-app/challenge-engine/internal/obslog"
	"github.com/swingmate-app/challenge-engine/internal/protocol"
	"github.com/swingmate-app/challenge-engine/internal/ranking"
	"github.com/swingmate-app/challenge-engine/internal/store"
)

// Notifier observes every applied event together with a deep snapshot of
// the session after application.
type Notifier func(ev protocol.Event, snap *challenge.Session)

type Reconciler struct {
	store    *store.Store
	viewerID string
	notify   Notifier
}

func New(st *store.Store, viewerID string) *Reconciler {
	return &Reconciler{store: st, viewerID: viewerID}
}

// OnApplied registers a single observer. The reconciler calls it on the
// same goroutine that applied the event.
func (r *Reconciler) OnApplied(fn Notifier) { r.notify = fn }

// Apply merges one event into the store. Returns false when the event was
// dropped (unknown session, illegal transition); a drop is logged, never
// fatal — it usually means the challenge_created for that id has not
// arrived yet, and the next full resync will catch the engine up.
func (r *Reconciler) Apply(ev protocol.Event) bool {
	if ev == nil {
		return false
	}
	switch e := ev.(type) {
	case protocol.ChallengeCreated:
		return r.upsert(ev, e.Session)
	case protocol.ChallengeUpdated:
		return r.upsert(ev, e.Session)
	case protocol.ParticipantJoined:
		return r.applyJoin(e)
	case protocol.ParticipantLeft:
		return r.applyLeave(e)
	case protocol.ScoreUpdated:
		return r.applyScore(e)
	case protocol.ChallengeStarted:
		return r.transition(ev, challenge.StateActive)
	case protocol.ChallengeEnded:
		return r.transition(ev, challenge.StateCompleted)
	default:
		obslog.L().Warn("event_drop",
			zap.String("reason", "unhandled_kind"),
			zap.String("event", string(ev.Type())))
		return false
	}
}

// ReplaceAll swaps in a freshly fetched authoritative session set, used by
// the resync path after a reconnect. Leaderboards are derived locally, and
// terminal states survive here too.
func (r *Reconciler) ReplaceAll(sessions []*challenge.Session) {
	for _, s := range sessions {
		if s == nil || s.ID == "" {
			continue
		}
		if prev, ok := r.store.State(s.ID); ok {
			s.State = challenge.NextState(prev, s.State)
		}
		s.Leaderboard = ranking.Recompute(r.viewerID, s.Roster())
	}
	r.store.ReplaceAll(sessions)
}

// upsert replaces the whole session by id. The server always sends full
// snapshots for created/updated, so replace-not-merge is correct even when
// it clobbers local-only fields. A terminal session never leaves its
// terminal state, whatever the snapshot claims.
func (r *Reconciler) upsert(ev protocol.Event, payload protocol.SessionPayload) bool {
	if payload.ID == "" {
		r.drop(ev, "missing_session_id")
		return false
	}
	next := payload.ToSession()
	if prev, ok := r.store.State(payload.ID); ok {
		next.State = challenge.NextState(prev, next.State)
	}
	next.Leaderboard = ranking.Recompute(r.viewerID, next.Roster())
	r.store.Upsert(next)
	r.emit(ev, next.ID)
	return true
}

func (r *Reconciler) applyJoin(e protocol.ParticipantJoined) bool {
	ok := r.store.Mutate(e.Session, func(sess *challenge.Session) {
		// duplicate delivery of the same join is a no-op
		if _, exists := sess.Participants[e.Participant.ID]; exists {
			return
		}
		sess.Participants[e.Participant.ID] = e.Participant.ToParticipant()
		// a joining participant can already carry a score (rejoin after a
		// drop), so the leaderboard has to catch up immediately
		if e.Participant.Score != nil {
			sess.Leaderboard = ranking.Recompute(r.viewerID, sess.Roster())
		}
	})
	if !ok {
		r.drop(e, "unknown_session")
		return false
	}
	r.emit(e, e.Session)
	return true
}

func (r *Reconciler) applyLeave(e protocol.ParticipantLeft) bool {
	ok := r.store.Mutate(e.Session, func(sess *challenge.Session) {
		// already-removed is not a failure
		delete(sess.Participants, e.Participant.ID)
		sess.Leaderboard = ranking.Recompute(r.viewerID, sess.Roster())
	})
	if !ok {
		r.drop(e, "unknown_session")
		return false
	}
	r.emit(e, e.Session)
	return true
}

// applyScore upserts the score by participant id then rebuilds the whole
// leaderboard, so rank contiguity always holds. State is not checked: the
// command path is what rejects submissions to inactive sessions, whereas a
// server-confirmed score fact is always recorded.
func (r *Reconciler) applyScore(e protocol.ScoreUpdated) bool {
	ok := r.store.Mutate(e.Session, func(sess *challenge.Session) {
		p, exists := sess.Participants[e.Entry.ParticipantID]
		if !exists {
			p = &challenge.Participant{
				ID:          e.Entry.ParticipantID,
				DisplayName: e.Entry.ParticipantName,
			}
			sess.Participants[p.ID] = p
		}
		v := e.Entry.Score
		p.Score = &v
		p.ScoredAt = e.Entry.RecordedAt
		if e.Entry.ParticipantName != "" {
			p.DisplayName = e.Entry.ParticipantName
		}
		sess.Leaderboard = ranking.Recompute(r.viewerID, sess.Roster())
	})
	if !ok {
		r.drop(e, "unknown_session")
		return false
	}
	r.emit(e, e.Session)
	return true
}

func (r *Reconciler) transition(ev protocol.Event, to challenge.State) bool {
	legal := false
	ok := r.store.Mutate(ev.SessionID(), func(sess *challenge.Session) {
		next := challenge.NextState(sess.State, to)
		legal = next != sess.State || sess.State == to
		if legal {
			sess.State = next
		}
	})
	if !ok {
		r.drop(ev, "unknown_session")
		return false
	}
	if !legal {
		r.drop(ev, "illegal_transition")
		return false
	}
	r.emit(ev, ev.SessionID())
	return true
}

func (r *Reconciler) emit(ev protocol.Event, id string) {
	if r.notify == nil {
		return
	}
	r.notify(ev, r.store.Snapshot(id))
}

func (r *Reconciler) drop(ev protocol.Event, reason string) {
	obslog.L().Warn("event_drop",
		zap.String("event", string(ev.Type())),
		zap.String("session_id", ev.SessionID()),
		zap.String("reason", reason))
}
