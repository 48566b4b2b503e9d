// Package protocol defines the wire vocabulary spoken over the arena push
// channel. Inbound frames are a tagged union over a fixed set of event
// kinds; anything else is ignored for forward compatibility.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
)

type EventType string

const (
	EventChallengeCreated  EventType = "challenge_created"
	EventChallengeUpdated  EventType = "challenge_updated"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventScoreUpdated      EventType = "score_updated"
	EventChallengeStarted  EventType = "challenge_started"
	EventChallengeEnded    EventType = "challenge_ended"
)

// ErrUnknownType marks frames whose type is outside the fixed vocabulary.
// Callers drop these, they are not a failure.
var ErrUnknownType = errors.New("unknown event type")

// Event is the closed union of inbound push events. Adding a kind is a
// compile-time decision: the reconciler switches exhaustively over these.
type Event interface {
	Type() EventType
	SessionID() string
}

// SessionPayload is the full session snapshot the server sends for
// challenge_created and challenge_updated.
type SessionPayload struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Kind            string               `json:"kind"`
	StartAt         time.Time            `json:"start_at"`
	EndAt           time.Time            `json:"end_at"`
	MaxParticipants int                  `json:"max_participants"`
	Prize           string               `json:"prize,omitempty"`
	Rules           []string             `json:"rules,omitempty"`
	State           string               `json:"state"`
	Participants    []ParticipantPayload `json:"participants,omitempty"`
}

type ParticipantPayload struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
	Ready       bool      `json:"ready"`
	Score       *float64  `json:"score,omitempty"`
	ScoredAt    time.Time `json:"scored_at,omitempty"`
	Online      bool      `json:"online"`
}

// ScorePayload is a single score fact for one participant.
type ScorePayload struct {
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	Score           float64   `json:"score"`
	RecordedAt      time.Time `json:"recorded_at"`
}

func (p SessionPayload) ToSession() *challenge.Session {
	s := &challenge.Session{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		Kind:            challenge.ParseKind(p.Kind),
		StartAt:         p.StartAt,
		EndAt:           p.EndAt,
		MaxParticipants: p.MaxParticipants,
		Prize:           p.Prize,
		Rules:           append([]string(nil), p.Rules...),
		State:           parseState(p.State),
		Participants:    make(map[string]*challenge.Participant, len(p.Participants)),
	}
	for _, pp := range p.Participants {
		s.Participants[pp.ID] = pp.ToParticipant()
	}
	return s
}

func (p ParticipantPayload) ToParticipant() *challenge.Participant {
	out := &challenge.Participant{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
		Ready:       p.Ready,
		ScoredAt:    p.ScoredAt,
		Online:      p.Online,
	}
	if p.Score != nil {
		v := *p.Score
		out.Score = &v
	}
	return out
}

// FromSession converts a domain session back into its wire shape, used
// when seeding the store from a command response.
func FromSession(s *challenge.Session) SessionPayload {
	p := SessionPayload{
		ID:              s.ID,
		Title:           s.Title,
		Description:     s.Description,
		Kind:            string(s.Kind),
		StartAt:         s.StartAt,
		EndAt:           s.EndAt,
		MaxParticipants: s.MaxParticipants,
		Prize:           s.Prize,
		Rules:           append([]string(nil), s.Rules...),
		State:           string(s.State),
	}
	for _, part := range s.Roster() {
		pp := ParticipantPayload{
			ID:          part.ID,
			DisplayName: part.DisplayName,
			JoinedAt:    part.JoinedAt,
			Ready:       part.Ready,
			ScoredAt:    part.ScoredAt,
			Online:      part.Online,
		}
		if part.Score != nil {
			v := *part.Score
			pp.Score = &v
		}
		p.Participants = append(p.Participants, pp)
	}
	return p
}

func parseState(s string) challenge.State {
	switch challenge.State(s) {
	case challenge.StateActive, challenge.StateCompleted, challenge.StateCancelled:
		return challenge.State(s)
	default:
		return challenge.StateWaiting
	}
}

type ChallengeCreated struct {
	Session SessionPayload `json:"session"`
}

func (e ChallengeCreated) Type() EventType   { return EventChallengeCreated }
func (e ChallengeCreated) SessionID() string { return e.Session.ID }

type ChallengeUpdated struct {
	Session SessionPayload `json:"session"`
}

func (e ChallengeUpdated) Type() EventType   { return EventChallengeUpdated }
func (e ChallengeUpdated) SessionID() string { return e.Session.ID }

type ParticipantJoined struct {
	Session     string             `json:"session_id"`
	Participant ParticipantPayload `json:"participant"`
}

func (e ParticipantJoined) Type() EventType   { return EventParticipantJoined }
func (e ParticipantJoined) SessionID() string { return e.Session }

type ParticipantLeft struct {
	Session     string             `json:"session_id"`
	Participant ParticipantPayload `json:"participant"`
}

func (e ParticipantLeft) Type() EventType   { return EventParticipantLeft }
func (e ParticipantLeft) SessionID() string { return e.Session }

type ScoreUpdated struct {
	Session string       `json:"session_id"`
	Entry   ScorePayload `json:"entry"`
}

func (e ScoreUpdated) Type() EventType   { return EventScoreUpdated }
func (e ScoreUpdated) SessionID() string { return e.Session }

type ChallengeStarted struct {
	Session string `json:"session_id"`
}

func (e ChallengeStarted) Type() EventType   { return EventChallengeStarted }
func (e ChallengeStarted) SessionID() string { return e.Session }

type ChallengeEnded struct {
	Session string `json:"session_id"`
}

func (e ChallengeEnded) Type() EventType   { return EventChallengeEnded }
func (e ChallengeEnded) SessionID() string { return e.Session }

// Decode parses one inbound frame into its typed event. Unknown types
// return an error wrapping ErrUnknownType; the frame payload is not
// inspected in that case.
func Decode(data []byte) (Event, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case EventChallengeCreated:
		return unmarshalAs[ChallengeCreated](data)
	case EventChallengeUpdated:
		return unmarshalAs[ChallengeUpdated](data)
	case EventParticipantJoined:
		return unmarshalAs[ParticipantJoined](data)
	case EventParticipantLeft:
		return unmarshalAs[ParticipantLeft](data)
	case EventScoreUpdated:
		return unmarshalAs[ScoreUpdated](data)
	case EventChallengeStarted:
		return unmarshalAs[ChallengeStarted](data)
	case EventChallengeEnded:
		return unmarshalAs[ChallengeEnded](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalAs[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return e, nil
}
