// Package stopwatch implements the pausable elapsed-time display that runs
// alongside an active event. It never affects recorded timestamps.
package stopwatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the persistable form of a Stopwatch.
type State struct {
	Accumulated  time.Duration `json:"accumulated"`
	RunningSince *time.Time    `json:"runningSince,omitempty"`
}

// Running reports whether the state is counting.
func (s State) Running() bool { return s.RunningSince != nil }

// Elapsed returns the total counted time as of now.
func (s State) Elapsed(now time.Time) time.Duration {
	d := s.Accumulated
	if s.RunningSince != nil && now.After(*s.RunningSince) {
		d += now.Sub(*s.RunningSince)
	}
	return d
}

// Started returns a running state beginning at now.
func Started(now time.Time) State {
	return State{RunningSince: &now}
}

// Paused folds the running interval into Accumulated. Pausing a paused
// state returns it unchanged.
func (s State) Paused(now time.Time) State {
	if s.RunningSince == nil {
		return s
	}
	return State{Accumulated: s.Elapsed(now)}
}

// Resumed restarts counting from now. Resuming a running state returns it unchanged.
func (s State) Resumed(now time.Time) State {
	if s.RunningSince != nil {
		return s
	}
	return State{Accumulated: s.Accumulated, RunningSince: &now}
}

// Stopwatch is a concurrency-safe wrapper around State with an injectable clock.
type Stopwatch struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

// Option configures a Stopwatch.
type Option func(*Stopwatch)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Stopwatch) {
		if now != nil {
			s.now = now
		}
	}
}

// WithState restores a previously persisted state.
func WithState(st State) Option {
	return func(s *Stopwatch) { s.state = st }
}

// New returns a stopped stopwatch.
func New(opts ...Option) *Stopwatch {
	s := &Stopwatch{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resets the stopwatch and begins counting.
func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Started(s.now())
}

// Pause stops counting without losing the accumulated time.
func (s *Stopwatch) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.Paused(s.now())
}

// Resume continues counting.
func (s *Stopwatch) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.Resumed(s.now())
}

// Reset stops the stopwatch and clears accumulated time.
func (s *Stopwatch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
}

// Running reports whether the stopwatch is counting.
func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Running()
}

// Elapsed returns the counted time.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Elapsed(s.now())
}

// State returns a snapshot suitable for persistence.
func (s *Stopwatch) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.RunningSince != nil {
		t := *st.RunningSince
		st.RunningSince = &t
	}
	return st
}

// Run calls fn with the elapsed time every interval until ctx is cancelled.
// It returns ctx.Err() and leaves no goroutine behind.
func (s *Stopwatch) Run(ctx context.Context, interval time.Duration, fn func(time.Duration)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(s.Elapsed())
		}
	}
}

// Format renders d as MM:SS, letting minutes grow past 59.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
