package runner

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrStopped     = errors.New("runner stopped")
	ErrQueueFull   = errors.New("runner queue full")
	ErrOverlapSkip = errors.New("job skipped: previous run still in flight")
)

// Config controls the per-user job pool.
type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	RetryMax       int
	RetryBase      time.Duration
	RetryMaxDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	return c
}

// Job is one unit of per-user work. Key gates overlap: while a job with the
// same key is queued or running, enqueueing another is skipped. This keeps a
// slow user from piling up duplicate sweeps under a fast trigger.
type Job struct {
	Key     string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobEvent is published on the event bus for job lifecycle transitions.
type JobEvent struct {
	Key      string        `json:"key"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
}

// runState tracks whether a keyed job is already queued or in flight.
type runState struct {
	mu       sync.Mutex
	inflight int
}

func (s *runState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *runState) release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}
