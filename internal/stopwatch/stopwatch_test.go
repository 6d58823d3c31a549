package stopwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPauseExcludesPausedTime(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	sw := New(WithClock(clk.Now))
	if sw.Running() || sw.Elapsed() != 0 {
		t.Fatalf("expected a stopped zero stopwatch")
	}
	sw.Start()
	clk.Advance(90 * time.Second)
	sw.Pause()
	sw.Pause()
	clk.Advance(10 * time.Minute)
	if got := sw.Elapsed(); got != 90*time.Second {
		t.Fatalf("elapsed while paused = %v", got)
	}
	sw.Resume()
	sw.Resume()
	clk.Advance(30 * time.Second)
	if got := sw.Elapsed(); got != 2*time.Minute {
		t.Fatalf("elapsed after resume = %v", got)
	}
	if Format(sw.Elapsed()) != "02:00" {
		t.Fatalf("format = %s", Format(sw.Elapsed()))
	}
	sw.Reset()
	if sw.Running() || sw.Elapsed() != 0 {
		t.Fatalf("expected reset stopwatch")
	}
}

func TestStateRestore(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	sw := New(WithClock(clk.Now))
	sw.Start()
	clk.Advance(time.Minute)
	st := sw.State()

	restored := New(WithClock(clk.Now), WithState(st))
	clk.Advance(time.Minute)
	if got := restored.Elapsed(); got != 2*time.Minute {
		t.Fatalf("restored elapsed = %v", got)
	}
	if !restored.Running() {
		t.Fatalf("expected restored stopwatch to keep running")
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{59 * time.Second, "00:59"},
		{61*time.Second + 900*time.Millisecond, "01:01"},
		{75 * time.Minute, "75:00"},
		{-time.Second, "00:00"},
	}
	for _, tc := range cases {
		if got := Format(tc.d); got != tc.want {
			t.Errorf("Format(%v) = %s, want %s", tc.d, got, tc.want)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sw := New()
	sw.Start()
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Duration, 16)
	done := make(chan error, 1)
	go func() {
		done <- sw.Run(ctx, time.Millisecond, func(d time.Duration) {
			select {
			case ticks <- d:
			default:
			}
		})
	}()
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected at least one tick")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
