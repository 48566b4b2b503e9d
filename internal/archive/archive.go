// Package archive persists finished challenges to Postgres. The engine only
// keeps live state in memory; once a session completes or is cancelled its
// final snapshot lands here for history screens and coach reports.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveFinal upserts a terminal session. Safe to call more than once for the
// same session; a repeated or replayed end event just rewrites the row.
func (r *Repository) SaveFinal(ctx context.Context, s *challenge.Session) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}
	if !s.State.Terminal() {
		return fmt.Errorf("archive: session %s is still %s", s.ID, s.State)
	}

	leaderboardRaw, _ := json.Marshal(s.Leaderboard)
	rosterRaw, _ := json.Marshal(s.Roster())

	var winnerID, winnerName string
	if len(s.Leaderboard) > 0 {
		winnerID = s.Leaderboard[0].ParticipantID
		winnerName = s.Leaderboard[0].ParticipantName
	}

	var endedAt sql.NullTime
	if !s.EndAt.IsZero() {
		endedAt = sql.NullTime{Time: s.EndAt, Valid: true}
	}

	q := `INSERT INTO challenge_results (
	    challenge_id, title, kind, state,
	    winner_id, winner_name, participant_count,
	    leaderboard, roster,
	    start_at, ended_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	  ) ON CONFLICT (challenge_id) DO UPDATE SET
	    title=EXCLUDED.title,
	    kind=EXCLUDED.kind,
	    state=EXCLUDED.state,
	    winner_id=EXCLUDED.winner_id,
	    winner_name=EXCLUDED.winner_name,
	    participant_count=EXCLUDED.participant_count,
	    leaderboard=EXCLUDED.leaderboard,
	    roster=EXCLUDED.roster,
	    start_at=EXCLUDED.start_at,
	    ended_at=EXCLUDED.ended_at`

	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.Title, string(s.Kind), string(s.State),
		winnerID, winnerName, s.ParticipantCount(),
		string(leaderboardRaw), string(rosterRaw),
		s.StartAt, endedAt,
	)
	return err
}
