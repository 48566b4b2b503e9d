package protocol

import "time"

// Outbound command frames. Commands always go through the durable REST
// path; these frames are the low-latency duplicate pushed over the socket
// when it happens to be connected. The server deduplicates on command_id.
type CommandType string

const (
	CommandCreateChallenge CommandType = "create_challenge"
	CommandJoinChallenge   CommandType = "join_challenge"
	CommandLeaveChallenge  CommandType = "leave_challenge"
	CommandSubmitScore     CommandType = "submit_score"
)

type JoinCommand struct {
	Type      CommandType `json:"type"`
	CommandID string      `json:"command_id"`
	SessionID string      `json:"session_id"`
}

type LeaveCommand struct {
	Type      CommandType `json:"type"`
	CommandID string      `json:"command_id"`
	SessionID string      `json:"session_id"`
}

type SubmitScoreCommand struct {
	Type       CommandType `json:"type"`
	CommandID  string      `json:"command_id"`
	SessionID  string      `json:"session_id"`
	Score      float64     `json:"score"`
	RecordedAt time.Time   `json:"recorded_at"`
}

type CreateChallengeCommand struct {
	Type      CommandType    `json:"type"`
	CommandID string         `json:"command_id"`
	Session   SessionPayload `json:"session"`
}
