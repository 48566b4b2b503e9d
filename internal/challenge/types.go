package challenge

import (
	"strings"
	"time"
)

// Kind classifies what a challenge measures.
type Kind string

const (
	KindDistance Kind = "distance"
	KindAccuracy Kind = "accuracy"
	KindTime     Kind = "time"
	KindScore    Kind = "score"
)

func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "distance":
		return KindDistance
	case "accuracy":
		return KindAccuracy
	case "time":
		return KindTime
	default:
		return KindScore
	}
}

// State represents a session lifecycle state.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Participant is a user attached to a session. Exclusively owned by it.
type Participant struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	JoinedAt    time.Time  `json:"joined_at"`
	Ready       bool       `json:"ready"`
	Score       *float64   `json:"score,omitempty"`
	ScoredAt    time.Time  `json:"scored_at,omitempty"`
	Online      bool       `json:"online"`
}

// LeaderboardEntry is a derived ranked view; recomputed wholesale, never
// patched in place.
type LeaderboardEntry struct {
	Rank            int       `json:"rank"`
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	Score           float64   `json:"score"`
	RecordedAt      time.Time `json:"recorded_at"`
	Self            bool      `json:"self"`
}

// Session is a single live challenge room.
type Session struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Kind            Kind      `json:"kind"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	MaxParticipants int       `json:"max_participants"`
	Prize           string    `json:"prize,omitempty"`
	Rules           []string  `json:"rules,omitempty"`
	State           State     `json:"state"`

	Participants map[string]*Participant `json:"participants"`
	Leaderboard  []LeaderboardEntry      `json:"leaderboard,omitempty"`
}

// ParticipantCount derives the roster size; never stored separately so it
// cannot drift from the roster.
func (s *Session) ParticipantCount() int { return len(s.Participants) }

// Roster returns the participants as a slice, order unspecified.
func (s *Session) Roster() []*Participant {
	out := make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, p)
	}
	return out
}

// Clone deep-copies the session so readers can hold it without observing
// later reconciliation.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Rules != nil {
		cp.Rules = append([]string(nil), s.Rules...)
	}
	if s.Leaderboard != nil {
		cp.Leaderboard = append([]LeaderboardEntry(nil), s.Leaderboard...)
	}
	cp.Participants = make(map[string]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		pc := *p
		if p.Score != nil {
			v := *p.Score
			pc.Score = &v
		}
		cp.Participants[id] = &pc
	}
	return &cp
}
