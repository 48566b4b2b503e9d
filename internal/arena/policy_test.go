package arena

import (
	"testing"
	"time"
)

func TestFixedDelay(t *testing.T) {
	p := FixedDelay(5 * time.Second)
	for _, attempt := range []int{1, 2, 10, 100} {
		if got := p.Delay(attempt); got != 5*time.Second {
			t.Fatalf("attempt %d: expected 5s, got %v", attempt, got)
		}
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	p := Backoff{Base: time.Second, Cap: 8 * time.Second}
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 8 * time.Second, 8 * time.Second,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
	// attempt below 1 behaves like the first attempt
	if got := p.Delay(0); got != time.Second {
		t.Fatalf("attempt 0: expected 1s, got %v", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	p := Backoff{Base: time.Second, Cap: 4 * time.Second, Jitter: 500 * time.Millisecond}
	for i := 0; i < 50; i++ {
		got := p.Delay(3)
		if got < 4*time.Second || got >= 4*time.Second+500*time.Millisecond {
			t.Fatalf("jittered delay out of bounds: %v", got)
		}
	}
}

func TestBackoffZeroBaseDefaults(t *testing.T) {
	p := Backoff{}
	if got := p.Delay(1); got != time.Second {
		t.Fatalf("expected 1s default base, got %v", got)
	}
}
