// Package countdown computes the advisory time-to-start display for
// sessions that have not started yet. It never drives the lifecycle: the
// authoritative waiting -> active transition is the server's started event,
// so clock skew can not cause a false start.
package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	msPerDay    = 86_400_000
	msPerHour   = 3_600_000
	msPerMinute = 60_000
	msPerSecond = 1_000
)

// Remaining is one countdown reading. Done marks the terminal zeroed value
// after which the scheduler stops firing.
type Remaining struct {
	Days    int
	Hours   int
	Minutes int
	Seconds int
	Done    bool
}

// Split decomposes a duration into calendar-ish components by integer
// division over milliseconds, each stage on the remainder of the previous.
func Split(d time.Duration) Remaining {
	ms := d.Milliseconds()
	if ms <= 0 {
		return Remaining{Done: true}
	}
	r := Remaining{}
	r.Days = int(ms / msPerDay)
	ms %= msPerDay
	r.Hours = int(ms / msPerHour)
	ms %= msPerHour
	r.Minutes = int(ms / msPerMinute)
	ms %= msPerMinute
	r.Seconds = int(ms / msPerSecond)
	return r
}

// Scheduler ticks at 1 Hz toward one session's start instant. Each waiting
// session gets its own instance; stopping one never affects another.
type Scheduler struct {
	clock   clockwork.Clock
	startAt time.Time
	emit    func(Remaining)

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New starts ticking immediately (the first reading fires without waiting a
// second). When remaining reaches zero the scheduler emits the terminal
// value and stops on its own.
func New(clock clockwork.Clock, startAt time.Time, emit func(Remaining)) *Scheduler {
	s := &Scheduler{
		clock:   clock,
		startAt: startAt,
		emit:    emit,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) run() {
	defer close(s.done)
	if s.fire() {
		return
	}
	t := s.clock.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.Chan():
			// a tick racing Stop must not fire into torn-down listeners
			select {
			case <-s.stopCh:
				return
			default:
			}
			if s.fire() {
				return
			}
		}
	}
}

func (s *Scheduler) fire() bool {
	r := Split(s.startAt.Sub(s.clock.Now()))
	s.emit(r)
	return r.Done
}

// Stop cancels the ticker. Idempotent; required on teardown so no reading
// fires into a discarded context.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done closes once the scheduler has stopped firing, whether by reaching
// zero or by Stop.
func (s *Scheduler) Done() <-chan struct{} { return s.done }
