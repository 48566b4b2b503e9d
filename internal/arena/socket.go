package arena

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/swingmate-app/challenge-engine/internal/obslog"
)

// ConnState is the channel lifecycle. There is no separate "reconnecting"
// state: between attempts the channel simply is disconnected.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
)

// FrameHandler receives every inbound frame, synchronously and in arrival
// order, on the socket's single read goroutine.
type FrameHandler func(data []byte)

// StateHandler observes channel state changes together with the current
// retry attempt counter (0 right after a successful connect).
type StateHandler func(state ConnState, attempt int)

const (
	dialTimeout  = 10 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 3 * time.Second
)

// Socket maintains at most one logical duplex channel to the arena push
// endpoint. A transient failure never stops it: after every close or dial
// error it waits out the reconnect policy and tries again, forever, until
// Close is called.
type Socket struct {
	wsURL  string
	scope  string
	cred   Credential
	policy ReconnectPolicy
	clock  clockwork.Clock

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCancel context.CancelFunc
	state      ConnState
	attempt    int

	writeMu sync.Mutex

	onFrame FrameHandler
	onState StateHandler

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type SocketOption func(*Socket)

func WithReconnectPolicy(p ReconnectPolicy) SocketOption {
	return func(s *Socket) { s.policy = p }
}

func WithClock(c clockwork.Clock) SocketOption {
	return func(s *Socket) { s.clock = c }
}

// NewSocket binds a socket to one viewing scope and one credential. It does
// not dial until Connect.
func NewSocket(wsURL, scope string, cred Credential, opts ...SocketOption) *Socket {
	s := &Socket{
		wsURL:  wsURL,
		scope:  scope,
		cred:   cred,
		policy: FixedDelay(5 * time.Second),
		clock:  clockwork.NewRealClock(),
		state:  ConnDisconnected,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnFrame registers the single inbound frame handler.
func (s *Socket) OnFrame(fn FrameHandler) { s.onFrame = fn }

// OnState registers the single state observer.
func (s *Socket) OnState(fn StateHandler) { s.onState = fn }

// State returns the current channel state.
func (s *Socket) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Attempt returns the current retry counter; 0 while connected.
func (s *Socket) Attempt() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempt
}

// Connect opens the channel. With an anonymous credential it is a silent
// no-op: live updates are simply unavailable and the engine falls back to
// periodic refetch. Dial failures are not surfaced either; they enter the
// reconnect loop exactly like a mid-stream close.
func (s *Socket) Connect(ctx context.Context) {
	if s.cred.Anonymous() {
		obslog.L().Info("ws_skip", zap.String("reason", "anonymous_credential"))
		return
	}

	s.mu.Lock()
	if s.state != ConnDisconnected || s.rootCtx != nil {
		s.mu.Unlock()
		return
	}
	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.setState(ConnConnecting)
	if !s.dialAndStart(ctx) {
		s.setState(ConnDisconnected)
		s.scheduleReconnect()
	}
}

func (s *Socket) endpoint() string {
	u := s.wsURL
	q := url.Values{}
	if s.scope != "" {
		q.Set("scope", s.scope)
	}
	q.Set("token", s.cred.Token())
	return u + "?" + q.Encode()
}

func (s *Socket) dialAndStart(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.endpoint(), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_dial_error", zap.Error(err), zap.Int("attempt", s.Attempt()))
		return false
	}

	connCtx, connCancel := context.WithCancel(s.rootCtx)
	s.mu.Lock()
	s.conn = conn
	s.connCancel = connCancel
	s.attempt = 0
	s.mu.Unlock()
	s.setState(ConnConnected)

	s.wg.Add(2)
	go s.readLoop(conn, connCtx)
	go s.pingLoop(conn, connCtx)
	return true
}

// readLoop serves exactly one connection. When the connection dies it hands
// off to the reconnect loop, but only if this connection is still the one
// the socket owns; a loop left over from a previous connection must not
// tear down its successor.
func (s *Socket) readLoop(conn *websocket.Conn, ctx context.Context) {
	defer s.wg.Done()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if s.stopping() || ctx.Err() != nil {
				return
			}
			obslog.L().Warn("ws_closed", zap.Error(err))
			if s.teardownConn(conn, websocket.StatusGoingAway, "reconnect") {
				s.setState(ConnDisconnected)
				s.scheduleReconnect()
			}
			return
		}

		if s.onFrame != nil {
			s.onFrame(data)
		}
	}
}

func (s *Socket) pingLoop(conn *websocket.Conn, ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures < 2 {
				continue
			}
			if s.stopping() || ctx.Err() != nil {
				return
			}
			if s.teardownConn(conn, websocket.StatusGoingAway, "ping failure") {
				s.setState(ConnDisconnected)
				s.scheduleReconnect()
			}
			return
		}
	}
}

// teardownConn closes conn and clears it from the socket, but only while it
// is still the owned connection. The pointer check makes a stale read or
// ping loop a no-op against a fresh connection.
func (s *Socket) teardownConn(conn *websocket.Conn, code websocket.StatusCode, reason string) bool {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return false
	}
	cancel := s.connCancel
	s.conn = nil
	s.connCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = conn.Close(code, reason)
	return true
}

// scheduleReconnect runs the unconditional retry loop. Only Close stops it.
// The goroutine is registered with the WaitGroup under the mutex, so Close
// either waits for it or the loop sees stopCh already closed and never
// starts.
func (s *Socket) scheduleReconnect() {
	s.mu.Lock()
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		return
	default:
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		for {
			s.mu.Lock()
			s.attempt++
			attempt := s.attempt
			s.mu.Unlock()

			delay := s.policy.Delay(attempt)
			obslog.L().Info("ws_retry_wait",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			select {
			case <-s.stopCh:
				return
			case <-s.clock.After(delay):
			}

			s.setState(ConnConnecting)
			if s.dialAndStart(s.rootCtx) {
				// Close may have raced the dial; it already ran dropConn,
				// so take the fresh connection down ourselves
				if s.stopping() {
					s.dropConn(websocket.StatusNormalClosure, "close")
					s.setState(ConnDisconnected)
				}
				return
			}
			s.setState(ConnDisconnected)
			if s.stopping() {
				return
			}
		}
	}()
}

// SendJSON pushes one frame over the channel, best effort. Used for the
// low-latency duplicate of commands; the durable REST call is what actually
// guarantees the command.
func (s *Socket) SendJSON(ctx context.Context, v any) error {
	s.mu.RLock()
	conn := s.conn
	state := s.state
	s.mu.RUnlock()
	if conn == nil || state != ConnConnected {
		return ErrNotConnected
	}

	dctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsjson.Write(dctx, conn, v)
}

// Close tears the channel down and cancels any pending reconnect wait. It
// is the only path that stops the retry loop, and it returns only after
// every socket goroutine, in-flight dial included, has finished.
func (s *Socket) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.stopCh)
		s.mu.Unlock()
	})
	s.dropConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.mu.Lock()
		if s.rootCancel != nil {
			s.rootCancel()
		}
		s.mu.Unlock()
		s.setState(ConnDisconnected)
		return nil
	}
}

func (s *Socket) dropConn(code websocket.StatusCode, reason string) {
	s.mu.Lock()
	conn := s.conn
	cancel := s.connCancel
	s.conn = nil
	s.connCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(code, reason)
	}
}

func (s *Socket) setState(state ConnState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	attempt := s.attempt
	s.mu.Unlock()
	if changed && s.onState != nil {
		s.onState(state, attempt)
	}
}

func (s *Socket) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
	}
	return false
}
