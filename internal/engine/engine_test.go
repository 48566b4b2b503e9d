package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/swingmate-app/challenge-engine/internal/arena"
	"github.com/swingmate-app/challenge-engine/internal/challenge"
	"github.com/swingmate-app/challenge-engine/internal/countdown"
	"github.com/swingmate-app/challenge-engine/internal/store"
	"github.com/swingmate-app/challenge-engine/pkg/arenadto"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}

func newTestEngine(t *testing.T, apiURL string, opts ...Option) *Engine {
	t.Helper()
	cfg := Config{ViewerID: "viewer", ViewerName: "Viewer"}
	api := arena.NewClient(apiURL, arena.NewCredential("tok"))
	e := New(cfg, store.New(), api, nil, opts...)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func createdFrame(id, state string, startAt time.Time) []byte {
	frame := map[string]any{
		"type": "challenge_created",
		"session": map[string]any{
			"id":       id,
			"title":    "Range duel",
			"kind":     "distance",
			"state":    state,
			"start_at": startAt.Format(time.RFC3339),
		},
	}
	data, _ := json.Marshal(frame)
	return data
}

func seedSession(t *testing.T, e *Engine, id, state string) {
	t.Helper()
	e.post(frameTask{data: createdFrame(id, state, time.Now().Add(time.Hour))})
	waitFor(t, time.Second, func() bool { return e.Session(id) != nil })
	if state == "active" {
		e.post(frameTask{data: []byte(`{"type":"challenge_started","session_id":"` + id + `"}`)})
		waitFor(t, time.Second, func() bool { return e.Session(id).State == challenge.StateActive })
	}
}

func TestFrameAppliesInArrivalOrder(t *testing.T) {
	e := newTestEngine(t, "http://127.0.0.1:1")
	seedSession(t, e, "c1", "waiting")

	e.post(frameTask{data: []byte(`{"type":"participant_joined","session_id":"c1","participant":{"id":"p1","display_name":"Ann"}}`)})
	e.post(frameTask{data: []byte(`{"type":"participant_left","session_id":"c1","participant":{"id":"p1"}}`)})
	e.post(frameTask{data: []byte(`{"type":"participant_joined","session_id":"c1","participant":{"id":"p2","display_name":"Bo"}}`)})

	waitFor(t, time.Second, func() bool {
		s := e.Session("c1")
		_, hasP2 := s.Participants["p2"]
		return s.ParticipantCount() == 1 && hasP2
	})
}

func TestUnknownFrameIgnored(t *testing.T) {
	e := newTestEngine(t, "http://127.0.0.1:1")
	seedSession(t, e, "c1", "waiting")
	e.post(frameTask{data: []byte(`{"type":"coach_hint","session_id":"c1"}`)})
	e.post(frameTask{data: []byte(`{"type":"participant_joined","session_id":"c1","participant":{"id":"p1"}}`)})
	waitFor(t, time.Second, func() bool { return e.Session("c1").ParticipantCount() == 1 })
}

func TestSubmitScoreStateGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	e := newTestEngine(t, srv.URL)

	if err := e.SubmitScore(context.Background(), "ghost", 40); !errors.Is(err, ErrChallengeGone) {
		t.Fatalf("expected ErrChallengeGone, got %v", err)
	}

	seedSession(t, e, "c1", "waiting")
	if err := e.SubmitScore(context.Background(), "c1", 40); !errors.Is(err, ErrChallengeInactive) {
		t.Fatalf("expected ErrChallengeInactive, got %v", err)
	}

	seedSession(t, e, "c2", "active")
	if err := e.SubmitScore(context.Background(), "c2", 40); err != nil {
		t.Fatalf("submit to active session: %v", err)
	}
}

func TestJoinOptimisticThenConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	e := newTestEngine(t, srv.URL)
	seedSession(t, e, "c1", "waiting")

	if err := e.JoinChallenge(context.Background(), "c1"); err != nil {
		t.Fatalf("JoinChallenge: %v", err)
	}
	// optimistic overlay shows the viewer before any event arrives
	s := e.Session("c1")
	if _, ok := s.Participants["viewer"]; !ok {
		t.Fatalf("expected optimistic join in view")
	}
	// the confirmed store must not contain the viewer yet
	if got := e.st.Snapshot("c1").ParticipantCount(); got != 0 {
		t.Fatalf("optimistic join leaked into confirmed state: %d", got)
	}

	e.post(frameTask{data: []byte(`{"type":"participant_joined","session_id":"c1","participant":{"id":"viewer","display_name":"Viewer"}}`)})
	waitFor(t, time.Second, func() bool {
		return e.st.Snapshot("c1").ParticipantCount() == 1
	})
	if got := e.Session("c1").ParticipantCount(); got != 1 {
		t.Fatalf("overlay not cleared after confirmation: %d participants", got)
	}
}

func TestJoinRevertsOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"challenge_full","message":"full"}`))
	}))
	defer srv.Close()
	e := newTestEngine(t, srv.URL)
	seedSession(t, e, "c1", "waiting")

	err := e.JoinChallenge(context.Background(), "c1")
	var apiErr *arena.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return e.Session("c1").ParticipantCount() == 0
	})
}

func TestCreateChallengeSeedsStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"new1","title":"Bunker bets","kind":"accuracy","state":"waiting"}`))
	}))
	defer srv.Close()
	e := newTestEngine(t, srv.URL)

	sess, err := e.CreateChallenge(context.Background(), arenadto.CreateChallengeRequest{Title: "Bunker bets", Kind: "accuracy"})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if sess.ID != "new1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	waitFor(t, time.Second, func() bool { return e.Session("new1") != nil })
}

func TestResyncReplacesStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"fresh","title":"Fresh","kind":"score","state":"active"}]`))
	}))
	defer srv.Close()
	e := newTestEngine(t, srv.URL)
	seedSession(t, e, "stale", "waiting")

	if err := e.Resync(context.Background()); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return e.Session("fresh") != nil && e.Session("stale") == nil
	})
}

func TestCountdownFollowsLifecycle(t *testing.T) {
	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(start.Add(-10 * time.Second))
	readings := make(chan countdown.Remaining, 16)

	e := newTestEngine(t, "http://127.0.0.1:1", WithClock(fc))
	e.OnCountdown(func(id string, r countdown.Remaining) {
		if id == "c1" {
			readings <- r
		}
	})

	e.post(frameTask{data: createdFrame("c1", "waiting", start)})
	select {
	case r := <-readings:
		if r.Seconds != 10 || r.Done {
			t.Fatalf("unexpected first reading: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown never fired")
	}

	// the started event stops the countdown; ticks after it must not fire
	e.post(frameTask{data: []byte(`{"type":"challenge_started","session_id":"c1"}`)})
	waitFor(t, time.Second, func() bool {
		return e.Session("c1").State == challenge.StateActive
	})
	for len(readings) > 0 {
		<-readings
	}
	fc.Advance(time.Second)
	select {
	case r := <-readings:
		t.Fatalf("countdown fired after start: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEvictStopsTracking(t *testing.T) {
	e := newTestEngine(t, "http://127.0.0.1:1")
	seedSession(t, e, "c1", "waiting")
	if !e.Evict("c1") {
		t.Fatalf("expected eviction")
	}
	if e.Session("c1") != nil {
		t.Fatalf("session survived eviction")
	}
	if e.Evict("c1") {
		t.Fatalf("second eviction should report absence")
	}
}

func TestNoMutationAfterClose(t *testing.T) {
	e := newTestEngine(t, "http://127.0.0.1:1")
	seedSession(t, e, "c1", "waiting")

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e.post(frameTask{data: []byte(`{"type":"participant_joined","session_id":"c1","participant":{"id":"p1"}}`)})
	time.Sleep(50 * time.Millisecond)
	if got := e.st.Snapshot("c1").ParticipantCount(); got != 0 {
		t.Fatalf("mutation landed after teardown: %d participants", got)
	}
}

func TestCloseStopsCountdowns(t *testing.T) {
	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(start.Add(-time.Hour))
	readings := make(chan countdown.Remaining, 16)

	e := newTestEngine(t, "http://127.0.0.1:1", WithClock(fc))
	e.OnCountdown(func(id string, r countdown.Remaining) { readings <- r })
	e.post(frameTask{data: createdFrame("c1", "waiting", start)})

	select {
	case <-readings:
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown never fired")
	}

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for len(readings) > 0 {
		<-readings
	}
	fc.Advance(time.Second)
	select {
	case r := <-readings:
		t.Fatalf("countdown fired after engine teardown: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}
