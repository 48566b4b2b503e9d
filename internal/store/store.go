// Package store holds the in-memory collection of live challenge sessions.
//
// Writes go through the Reconciler only, on the engine goroutine; reads hand
// out deep copies so presentation code never observes a half-applied event.
package store

import (
	"sort"
	"sync"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*challenge.Session
}

func New() *Store {
	return &Store{sessions: make(map[string]*challenge.Session)}
}

// Upsert replaces the whole session keyed by id. The server always sends
// full snapshots, so replace-not-merge is the contract.
func (s *Store) Upsert(sess *challenge.Session) {
	if sess == nil || sess.ID == "" {
		return
	}
	if sess.Participants == nil {
		sess.Participants = make(map[string]*challenge.Participant)
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
}

// State reads one session's lifecycle state without exposing the live
// object.
func (s *Store) State(id string) (challenge.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return "", false
	}
	return sess.State, true
}

// Mutate runs fn on the live session under the write lock, so in-place
// edits never race a concurrent Snapshot or List. Returns false when the
// id is unknown; fn is not called then. The live object must not escape fn.
func (s *Store) Mutate(id string, fn func(*challenge.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	fn(sess)
	return true
}

// Snapshot returns a deep copy of one session, or nil when absent.
func (s *Store) Snapshot(id string) *challenge.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id].Clone()
}

// List returns deep copies of every session, ordered by start time then id
// so listings are stable.
func (s *Store) List() []*challenge.Session {
	s.mu.RLock()
	out := make([]*challenge.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Evict removes a session. The engine never garbage-collects on a timer;
// eviction is always an explicit caller decision (e.g. leaving the list
// view).
func (s *Store) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ReplaceAll swaps the full session set, used by the resync path after a
// reconnect or a periodic refetch.
func (s *Store) ReplaceAll(sessions []*challenge.Session) {
	next := make(map[string]*challenge.Session, len(sessions))
	for _, sess := range sessions {
		if sess == nil || sess.ID == "" {
			continue
		}
		if sess.Participants == nil {
			sess.Participants = make(map[string]*challenge.Participant)
		}
		next[sess.ID] = sess
	}
	s.mu.Lock()
	s.sessions = next
	s.mu.Unlock()
}
