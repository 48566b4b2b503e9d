// Package announce turns engine state changes into human-readable lines.
// It diffs successive snapshots instead of consuming raw events, so a full
// resync that changes nothing stays silent.
package announce

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/swingmate-app/challenge-engine/internal/arena"
	"github.com/swingmate-app/challenge-engine/internal/challenge"
	"github.com/swingmate-app/challenge-engine/internal/countdown"
	"github.com/swingmate-app/challenge-engine/internal/msgcat"
	"github.com/swingmate-app/challenge-engine/internal/obslog"
)

// Sink receives rendered lines. The daemon wires this to stdout or a push
// channel; tests capture it.
type Sink func(line string)

type seen struct {
	state  challenge.State
	count  int
	scores map[string]float64
}

type Announcer struct {
	cat  *msgcat.Catalog
	sink Sink

	mu   sync.Mutex
	prev map[string]seen

	// countdown thresholds in whole seconds, announced once each
	thresholds []int64
	fired      map[string]map[int64]bool
}

func New(cat *msgcat.Catalog, sink Sink) *Announcer {
	return &Announcer{
		cat:        cat,
		sink:       sink,
		prev:       make(map[string]seen),
		thresholds: []int64{60, 10},
		fired:      make(map[string]map[int64]bool),
	}
}

func (a *Announcer) say(key string, data map[string]any) {
	line, err := a.cat.Render(key, data)
	if err != nil {
		obslog.L().Warn("announce_render_failed", zap.String("key", key), zap.Error(err))
		return
	}
	a.sink(line)
}

// OnSession diffs the snapshot against the last one seen for this session
// and announces lifecycle transitions and roster changes.
func (a *Announcer) OnSession(snap *challenge.Session) {
	if snap == nil {
		return
	}
	scores := make(map[string]float64, len(snap.Leaderboard))
	for _, e := range snap.Leaderboard {
		scores[e.ParticipantID] = e.Score
	}

	a.mu.Lock()
	old, known := a.prev[snap.ID]
	a.prev[snap.ID] = seen{state: snap.State, count: snap.ParticipantCount(), scores: scores}
	a.mu.Unlock()

	if !known {
		a.say("challenge.created", map[string]any{
			"Title":   snap.Title,
			"Kind":    string(snap.Kind),
			"StartAt": snap.StartAt.Format("15:04"),
		})
		return
	}

	if snap.State != old.state {
		switch snap.State {
		case challenge.StateActive:
			a.say("challenge.started", map[string]any{"Title": snap.Title})
		case challenge.StateCompleted:
			a.announceResult(snap)
		case challenge.StateCancelled:
			a.say("challenge.cancelled", map[string]any{"Title": snap.Title})
		}
		return
	}

	if d := snap.ParticipantCount() - old.count; d != 0 {
		key := "participant.joined"
		if d < 0 {
			key = "participant.left"
		}
		a.say(key, map[string]any{
			"Name":  rosterDeltaName(snap, d),
			"Title": snap.Title,
			"Count": snap.ParticipantCount(),
		})
		return
	}

	for _, e := range snap.Leaderboard {
		if prev, ok := old.scores[e.ParticipantID]; ok && prev == e.Score {
			continue
		}
		a.say("score.updated", map[string]any{
			"Name":  e.ParticipantName,
			"Score": fmt.Sprintf("%g", e.Score),
			"Title": snap.Title,
			"Rank":  e.Rank,
		})
	}
}

func (a *Announcer) announceResult(snap *challenge.Session) {
	if len(snap.Leaderboard) == 0 {
		a.say("challenge.ended_no_scores", map[string]any{"Title": snap.Title})
		return
	}
	top := snap.Leaderboard[0]
	a.say("challenge.ended", map[string]any{
		"Title":  snap.Title,
		"Winner": top.ParticipantName,
		"Score":  fmt.Sprintf("%g", top.Score),
	})
}

// rosterDeltaName names the newest participant on a join. Leaves have no
// reliable single name once the entry is gone, so they render generically.
func rosterDeltaName(snap *challenge.Session, delta int) string {
	if delta <= 0 {
		return "Someone"
	}
	var latest *challenge.Participant
	for _, p := range snap.Participants {
		if latest == nil || p.JoinedAt.After(latest.JoinedAt) {
			latest = p
		}
	}
	if latest == nil || latest.DisplayName == "" {
		return "Someone"
	}
	return latest.DisplayName
}

// OnCountdown announces configured thresholds once per session.
func (a *Announcer) OnCountdown(snapTitle, sessionID string, r countdown.Remaining) {
	if r.Done {
		return
	}
	total := int64(r.Days)*86_400 + int64(r.Hours)*3_600 + int64(r.Minutes)*60 + int64(r.Seconds)
	hit := false
	a.mu.Lock()
	for _, th := range a.thresholds {
		if total > th || a.fired[sessionID][th] {
			continue
		}
		if a.fired[sessionID] == nil {
			a.fired[sessionID] = make(map[int64]bool)
		}
		a.fired[sessionID][th] = true
		hit = true
		break
	}
	a.mu.Unlock()
	if hit {
		a.say("challenge.starting_soon", map[string]any{
			"Title":     snapTitle,
			"Remaining": formatRemaining(r),
		})
	}
}

func formatRemaining(r countdown.Remaining) string {
	switch {
	case r.Days > 0:
		return fmt.Sprintf("%dd %dh", r.Days, r.Hours)
	case r.Hours > 0:
		return fmt.Sprintf("%dh %dm", r.Hours, r.Minutes)
	case r.Minutes > 0:
		return fmt.Sprintf("%dm %ds", r.Minutes, r.Seconds)
	default:
		return fmt.Sprintf("%ds", r.Seconds)
	}
}

// OnConnState announces the live-updates link coming and going.
func (a *Announcer) OnConnState(state arena.ConnState, attempt int) {
	switch state {
	case arena.ConnConnected:
		a.say("conn.online", nil)
	case arena.ConnDisconnected:
		if attempt == 1 {
			a.say("conn.offline", nil)
		}
	}
}

// Forget drops per-session announcement memory after eviction.
func (a *Announcer) Forget(sessionID string) {
	a.mu.Lock()
	delete(a.prev, sessionID)
	delete(a.fired, sessionID)
	a.mu.Unlock()
}
