package ranking

import (
	"reflect"
	"testing"
	"time"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
)

func scored(id, name string, score float64, at time.Time) *challenge.Participant {
	return &challenge.Participant{ID: id, DisplayName: name, Score: &score, ScoredAt: at}
}

func TestRecomputeOrdering(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	roster := []*challenge.Participant{
		scored("p1", "Ann", 40, t0.Add(2*time.Second)),
		scored("p2", "Bo", 55, t0),
		scored("p3", "Cy", 40, t0.Add(time.Second)),
		{ID: "p4", DisplayName: "Dee"}, // no score: unranked
	}

	got := Recompute("p1", roster)
	if len(got) != 3 {
		t.Fatalf("expected 3 ranked entries, got %d", len(got))
	}
	wantOrder := []string{"p2", "p3", "p1"}
	for i, id := range wantOrder {
		if got[i].ParticipantID != id {
			t.Fatalf("pos %d: expected %s, got %s", i, id, got[i].ParticipantID)
		}
		if got[i].Rank != i+1 {
			t.Fatalf("pos %d: expected rank %d, got %d", i, i+1, got[i].Rank)
		}
	}
	if !got[2].Self {
		t.Fatalf("expected p1 entry marked as self")
	}
	if got[0].Self || got[1].Self {
		t.Fatalf("unexpected self mark on non-viewer entries")
	}
}

func TestTieBreakEarlierScoreWins(t *testing.T) {
	t1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Second)
	got := Recompute("", []*challenge.Participant{
		scored("b", "B", 10, t2),
		scored("a", "A", 10, t1),
	})
	if got[0].ParticipantID != "a" || got[1].ParticipantID != "b" {
		t.Fatalf("expected earlier score to rank first, got %s then %s",
			got[0].ParticipantID, got[1].ParticipantID)
	}
}

func TestTieBreakTotalOrderOnEqualTimes(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := Recompute("", []*challenge.Participant{
		scored("z", "Z", 10, at),
		scored("a", "A", 10, at),
	})
	if got[0].ParticipantID != "a" {
		t.Fatalf("expected id tie-break, got %s first", got[0].ParticipantID)
	}
}

func TestRecomputeDeterministic(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	roster := []*challenge.Participant{
		scored("p1", "Ann", 12, t0),
		scored("p2", "Bo", 9, t0.Add(time.Second)),
		scored("p3", "Cy", 12, t0.Add(2*time.Second)),
	}
	first := Recompute("p2", roster)
	second := Recompute("p2", roster)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recompute not deterministic:\n%v\n%v", first, second)
	}
}

func TestRankContiguity(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var roster []*challenge.Participant
	for i := 0; i < 25; i++ {
		roster = append(roster, scored(
			string(rune('a'+i)), "P", float64(i%5), t0.Add(time.Duration(i)*time.Second)))
	}
	got := Recompute("", roster)
	if len(got) != 25 {
		t.Fatalf("expected 25 entries, got %d", len(got))
	}
	for i, e := range got {
		if e.Rank != i+1 {
			t.Fatalf("rank gap at pos %d: got %d", i, e.Rank)
		}
	}
}

func TestRecomputeEmpty(t *testing.T) {
	if got := Recompute("me", nil); len(got) != 0 {
		t.Fatalf("expected empty leaderboard, got %d entries", len(got))
	}
}
