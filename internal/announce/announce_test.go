package announce

import (
	"strings"
	"testing"
	"time"

	"github.com/swingmate-app/challenge-engine/internal/arena"
	"github.com/swingmate-app/challenge-engine/internal/challenge"
	"github.com/swingmate-app/challenge-engine/internal/countdown"
	"github.com/swingmate-app/challenge-engine/internal/msgcat"
)

func newTestAnnouncer(t *testing.T) (*Announcer, *[]string) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	var lines []string
	a := New(cat, func(line string) { lines = append(lines, line) })
	return a, &lines
}

func snapFixture(state challenge.State, names ...string) *challenge.Session {
	s := &challenge.Session{
		ID:           "c1",
		Title:        "Range duel",
		Kind:         challenge.KindDistance,
		State:        state,
		StartAt:      time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		Participants: make(map[string]*challenge.Participant),
	}
	for i, n := range names {
		s.Participants[n] = &challenge.Participant{
			ID:          n,
			DisplayName: n,
			JoinedAt:    s.StartAt.Add(time.Duration(i) * time.Minute),
		}
	}
	return s
}

func TestLifecycleAnnouncements(t *testing.T) {
	a, lines := newTestAnnouncer(t)

	a.OnSession(snapFixture(challenge.StateWaiting))
	a.OnSession(snapFixture(challenge.StateWaiting, "ann"))
	a.OnSession(snapFixture(challenge.StateActive, "ann"))
	a.OnSession(snapFixture(challenge.StateCompleted, "ann"))

	if len(*lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(*lines), *lines)
	}
	checks := []string{"New challenge", "ann joined", "is live", "No scores"}
	for i, want := range checks {
		if !strings.Contains((*lines)[i], want) {
			t.Fatalf("line %d = %q, want substring %q", i, (*lines)[i], want)
		}
	}
}

func TestUnchangedSnapshotStaysSilent(t *testing.T) {
	a, lines := newTestAnnouncer(t)
	a.OnSession(snapFixture(challenge.StateWaiting, "ann"))
	n := len(*lines)
	// a resync replays the same state; nothing new to say
	a.OnSession(snapFixture(challenge.StateWaiting, "ann"))
	a.OnSession(snapFixture(challenge.StateWaiting, "ann"))
	if len(*lines) != n {
		t.Fatalf("resync produced chatter: %v", (*lines)[n:])
	}
}

func TestWinnerAnnounced(t *testing.T) {
	a, lines := newTestAnnouncer(t)
	a.OnSession(snapFixture(challenge.StateActive, "ann"))

	done := snapFixture(challenge.StateCompleted, "ann")
	done.Leaderboard = []challenge.LeaderboardEntry{
		{Rank: 1, ParticipantID: "ann", ParticipantName: "ann", Score: 212.5},
	}
	a.OnSession(done)

	last := (*lines)[len(*lines)-1]
	if !strings.Contains(last, "ann takes it") || !strings.Contains(last, "212.5") {
		t.Fatalf("unexpected result line: %q", last)
	}
}

func TestScoreChangesAnnounced(t *testing.T) {
	a, lines := newTestAnnouncer(t)
	a.OnSession(snapFixture(challenge.StateActive, "ann", "bob"))
	n := len(*lines)

	scored := snapFixture(challenge.StateActive, "ann", "bob")
	scored.Leaderboard = []challenge.LeaderboardEntry{
		{Rank: 1, ParticipantID: "ann", ParticipantName: "ann", Score: 180},
	}
	a.OnSession(scored)

	if len(*lines) != n+1 {
		t.Fatalf("expected one score line, got %v", (*lines)[n:])
	}
	line := (*lines)[n]
	if !strings.Contains(line, "ann posted 180") || !strings.Contains(line, "#1") {
		t.Fatalf("unexpected score line: %q", line)
	}

	// a resync with the same scores stays silent
	a.OnSession(scored)
	if len(*lines) != n+1 {
		t.Fatalf("unchanged scores produced chatter: %v", (*lines)[n+1:])
	}

	// an improved score announces again
	better := snapFixture(challenge.StateActive, "ann", "bob")
	better.Leaderboard = []challenge.LeaderboardEntry{
		{Rank: 1, ParticipantID: "ann", ParticipantName: "ann", Score: 195.5},
	}
	a.OnSession(better)
	if len(*lines) != n+2 || !strings.Contains((*lines)[n+1], "195.5") {
		t.Fatalf("improved score not announced: %v", (*lines)[n:])
	}
}

func TestCountdownThresholdsFireOnce(t *testing.T) {
	a, lines := newTestAnnouncer(t)

	a.OnCountdown("Range duel", "c1", countdown.Remaining{Minutes: 5})
	if len(*lines) != 0 {
		t.Fatalf("fired above threshold: %v", *lines)
	}
	a.OnCountdown("Range duel", "c1", countdown.Remaining{Seconds: 59})
	a.OnCountdown("Range duel", "c1", countdown.Remaining{Seconds: 58})
	if len(*lines) != 1 {
		t.Fatalf("expected one 60s announcement, got %v", *lines)
	}
	a.OnCountdown("Range duel", "c1", countdown.Remaining{Seconds: 9})
	if len(*lines) != 2 {
		t.Fatalf("expected 10s announcement, got %v", *lines)
	}
	a.OnCountdown("Range duel", "c1", countdown.Remaining{Done: true})
	if len(*lines) != 2 {
		t.Fatalf("done tick should stay silent, got %v", *lines)
	}
}

func TestConnStateAnnouncements(t *testing.T) {
	a, lines := newTestAnnouncer(t)
	a.OnConnState(arena.ConnConnected, 0)
	a.OnConnState(arena.ConnDisconnected, 1)
	// further retries stay quiet
	a.OnConnState(arena.ConnDisconnected, 2)
	a.OnConnState(arena.ConnDisconnected, 3)
	if len(*lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", *lines)
	}
}
