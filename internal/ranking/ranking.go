package ranking

import (
	"sort"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
)

// Recompute builds the full leaderboard for a roster. Pure: the input is
// not modified and the result does not alias it.
//
// Order: score descending, then earlier recorded score first (first to
// achieve a score wins the tie), then participant id so the order is total.
// Ranks are dense 1..n. Participants without a score do not occupy a rank
// and are omitted; they stay visible through the roster.
func Recompute(viewerID string, roster []*challenge.Participant) []challenge.LeaderboardEntry {
	entries := make([]challenge.LeaderboardEntry, 0, len(roster))
	for _, p := range roster {
		if p == nil || p.Score == nil {
			continue
		}
		entries = append(entries, challenge.LeaderboardEntry{
			ParticipantID:   p.ID,
			ParticipantName: p.DisplayName,
			Score:           *p.Score,
			RecordedAt:      p.ScoredAt,
			Self:            p.ID == viewerID,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.RecordedAt.Equal(b.RecordedAt) {
			return a.RecordedAt.Before(b.RecordedAt)
		}
		return a.ParticipantID < b.ParticipantID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
