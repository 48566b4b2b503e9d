package arena

import (
	"math/rand"
	"time"
)

// ReconnectPolicy decides how long to wait before reconnect attempt n
// (1-based). The socket retries unconditionally; only an explicit Close
// stops the loop, so the policy never caps attempts, only spacing.
type ReconnectPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay retries on a constant interval, for deployments that want
// predictable spacing. Backoff is the default.
type FixedDelay time.Duration

func (d FixedDelay) Delay(int) time.Duration { return time.Duration(d) }

// Backoff grows the delay exponentially from Base up to Cap and spreads
// retries with up to Jitter of random extra, so a fleet of clients does not
// stampede the server after an outage.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Cap > 0 && d >= b.Cap {
			d = b.Cap
			break
		}
	}
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	if b.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return d
}

// DefaultBackoff spaces retries 1s, 2s, 4s ... capped at 30s with up to 1s
// of jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 30 * time.Second, Jitter: time.Second}
}
