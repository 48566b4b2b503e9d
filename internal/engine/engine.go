// Package engine runs the live challenge synchronization loop.
//
// All session mutation happens on one goroutine: socket frames, resync
// results, command completions and evictions are posted to a single inbox
// and handled in order. That serialization, not locking, is what keeps
// reconciliation race-free.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/swingmate-app/challenge-engine/internal/arena"
	"github.com/swingmate-app/challenge-engine/internal/challenge"
	"github.com/swingmate-app/challenge-engine/internal/countdown"
	"github.com/swingmate-app/challenge-engine/internal/obslog"
	"github.com/swingmate-app/challenge-engine/internal/protocol"
	"github.com/swingmate-app/challenge-engine/internal/reconcile"
	"github.com/swingmate-app/challenge-engine/internal/store"
)

var (
	// ErrChallengeGone marks operations against a session the engine does
	// not know about.
	ErrChallengeGone = errors.New("challenge not found")
	// ErrChallengeInactive marks a score submission to a session that is
	// not currently running. Not fatal; the caller tells the user.
	ErrChallengeInactive = errors.New("challenge is not active")
)

type Config struct {
	ViewerID   string
	ViewerName string
	// RefetchInterval drives the polling fallback used when the socket is
	// anonymous (no live updates). Zero disables polling.
	RefetchInterval time.Duration
}

// SessionListener observes a deep snapshot after every applied change.
type SessionListener func(snap *challenge.Session)

// CountdownListener observes advisory time-to-start readings.
type CountdownListener func(sessionID string, r countdown.Remaining)

type task interface{ isTask() }

type frameTask struct{ data []byte }
type eventTask struct{ ev protocol.Event }
type resyncTask struct{ sessions []*challenge.Session }
type connectedTask struct{}
type commandDoneTask struct {
	sessionID string
	clear     func(*pending)
}
type evictTask struct {
	id    string
	reply chan bool
}
type shutdownTask struct{}

func (frameTask) isTask()       {}
func (eventTask) isTask()       {}
func (resyncTask) isTask()      {}
func (connectedTask) isTask()   {}
func (commandDoneTask) isTask() {}
func (evictTask) isTask()       {}
func (shutdownTask) isTask()    {}

type Engine struct {
	cfg   Config
	st    *store.Store
	rec   *reconcile.Reconciler
	api   *arena.Client
	sock  *arena.Socket
	out   *arena.Egress
	clock clockwork.Clock

	inbox      chan task
	countdowns map[string]*countdown.Scheduler

	overlayMu sync.Mutex
	overlay   map[string]*pending

	onSession   SessionListener
	onCountdown CountdownListener
	onConn      arena.StateHandler

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopOnce sync.Once
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithEgress(out *arena.Egress) Option {
	return func(e *Engine) { e.out = out }
}

// New builds the engine and starts its loop. The socket may be nil when the
// caller runs in pure polling mode.
func New(cfg Config, st *store.Store, api *arena.Client, sock *arena.Socket, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		st:         st,
		rec:        reconcile.New(st, cfg.ViewerID),
		api:        api,
		sock:       sock,
		clock:      clockwork.NewRealClock(),
		inbox:      make(chan task, 256),
		countdowns: make(map[string]*countdown.Scheduler),
		overlay:    make(map[string]*pending),
		ctx:        ctx,
		cancel:     cancel,
		loopDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rec.OnApplied(e.afterApply)
	go e.loop()
	return e
}

func (e *Engine) OnSessionChange(fn SessionListener) { e.onSession = fn }
func (e *Engine) OnCountdown(fn CountdownListener)   { e.onCountdown = fn }
func (e *Engine) OnConnState(fn arena.StateHandler)  { e.onConn = fn }

// Connect wires the socket into the loop and opens it. With an anonymous
// credential the socket stays closed and the polling fallback (if
// configured) keeps the store fresh instead.
func (e *Engine) Connect(ctx context.Context) {
	if e.sock != nil {
		e.sock.OnFrame(func(data []byte) { e.post(frameTask{data: data}) })
		e.sock.OnState(func(state arena.ConnState, attempt int) {
			if state == arena.ConnConnected {
				e.post(connectedTask{})
			}
			if e.onConn != nil {
				e.onConn(state, attempt)
			}
		})
		e.sock.Connect(ctx)
	}
	if e.cfg.RefetchInterval > 0 && (e.sock == nil || e.sock.State() == arena.ConnDisconnected) {
		go e.pollLoop()
	}
}

// Resync fetches the authoritative session set and replaces the local one.
// Runs after every reconnect; the protocol has no sequence numbers, so a
// full refetch is the only way to cover the gap.
func (e *Engine) Resync(ctx context.Context) error {
	sessions, err := e.api.ListChallenges(ctx)
	if err != nil {
		return err
	}
	e.post(resyncTask{sessions: sessions})
	return nil
}

func (e *Engine) pollLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.clock.After(e.cfg.RefetchInterval):
		}
		rctx, cancel := context.WithTimeout(e.ctx, 15*time.Second)
		err := e.Resync(rctx)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			obslog.L().Warn("refetch_failed", zap.Error(err))
		}
	}
}

func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.ctx.Done():
			e.stopAllCountdowns()
			return
		case t := <-e.inbox:
			switch m := t.(type) {
			case frameTask:
				e.handleFrame(m.data)
			case eventTask:
				e.rec.Apply(m.ev)
			case resyncTask:
				e.handleResync(m.sessions)
			case connectedTask:
				go func() {
					rctx, cancel := context.WithTimeout(e.ctx, 15*time.Second)
					defer cancel()
					if err := e.Resync(rctx); err != nil && !errors.Is(err, context.Canceled) {
						obslog.L().Warn("resync_failed", zap.Error(err))
					}
				}()
			case commandDoneTask:
				e.clearPending(m.sessionID, m.clear)
			case evictTask:
				ok := e.st.Evict(m.id)
				e.stopCountdown(m.id)
				e.clearPending(m.id, func(p *pending) { *p = pending{} })
				m.reply <- ok
			case shutdownTask:
				e.stopAllCountdowns()
				return
			}
		}
	}
}

// post hands a task to the loop unless the engine is already closed; a
// closed engine drops everything, so no mutation can land after teardown.
func (e *Engine) post(t task) {
	select {
	case <-e.ctx.Done():
	case e.inbox <- t:
	}
}

func (e *Engine) handleFrame(data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			// forward compatible: newer servers may speak more kinds
			obslog.L().Debug("frame_ignored", zap.Error(err))
		} else {
			obslog.L().Warn("frame_invalid", zap.Error(err))
		}
		return
	}
	e.rec.Apply(ev)
}

func (e *Engine) handleResync(sessions []*challenge.Session) {
	e.rec.ReplaceAll(sessions)
	seen := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		seen[s.ID] = true
		e.syncCountdown(e.st.Snapshot(s.ID))
		if e.onSession != nil {
			e.onSession(e.st.Snapshot(s.ID))
		}
	}
	for id := range e.countdowns {
		if !seen[id] {
			e.stopCountdown(id)
		}
	}
}

// afterApply runs on the loop goroutine after every reconciled event:
// keeps countdown schedulers in step with session states, clears the
// optimistic overlay once the confirming event arrived, and fans the
// snapshot out to the listener.
func (e *Engine) afterApply(ev protocol.Event, snap *challenge.Session) {
	if snap == nil {
		return
	}
	e.syncCountdown(snap)
	e.confirmPending(ev)
	if e.onSession != nil {
		e.onSession(snap)
	}
}

func (e *Engine) syncCountdown(snap *challenge.Session) {
	if snap == nil {
		return
	}
	if snap.State != challenge.StateWaiting {
		e.stopCountdown(snap.ID)
		return
	}
	if _, ok := e.countdowns[snap.ID]; ok {
		return
	}
	id := snap.ID
	e.countdowns[id] = countdown.New(e.clock, snap.StartAt, func(r countdown.Remaining) {
		if e.onCountdown != nil {
			e.onCountdown(id, r)
		}
	})
}

func (e *Engine) stopCountdown(id string) {
	if s, ok := e.countdowns[id]; ok {
		s.Stop()
		delete(e.countdowns, id)
	}
}

func (e *Engine) stopAllCountdowns() {
	for id, s := range e.countdowns {
		s.Stop()
		delete(e.countdowns, id)
	}
}

// Sessions returns overlay-adjusted snapshots of every known session.
func (e *Engine) Sessions() []*challenge.Session {
	out := e.st.List()
	for i, s := range out {
		out[i] = e.applyOverlay(s)
	}
	return out
}

// Session returns one overlay-adjusted snapshot, or nil.
func (e *Engine) Session(id string) *challenge.Session {
	return e.applyOverlay(e.st.Snapshot(id))
}

// Evict removes a session from the local store, e.g. when the user leaves
// the list view. Blocks until the loop has processed it.
func (e *Engine) Evict(id string) bool {
	reply := make(chan bool, 1)
	select {
	case <-e.ctx.Done():
		return false
	case e.inbox <- evictTask{id: id, reply: reply}:
	}
	select {
	case <-e.ctx.Done():
		return false
	case ok := <-reply:
		return ok
	}
}

// Close tears the engine down: the loop drains, every countdown stops and
// the socket's retry loop is cancelled. Idempotent.
func (e *Engine) Close(ctx context.Context) error {
	e.stopOnce.Do(func() {
		select {
		case e.inbox <- shutdownTask{}:
		case <-time.After(time.Second):
		}
		e.cancel()
	})

	if e.sock != nil {
		if err := e.sock.Close(ctx); err != nil {
			return err
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.loopDone:
		return nil
	}
}
