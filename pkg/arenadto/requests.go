// Package arenadto carries the REST request/response shapes of the arena
// challenge API.
package arenadto

import "time"

type CreateChallengeRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Kind            string    `json:"kind"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	MaxParticipants int       `json:"max_participants"`
	Prize           string    `json:"prize,omitempty"`
	Rules           []string  `json:"rules,omitempty"`
}

type SubmitScoreRequest struct {
	Score      float64   `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
