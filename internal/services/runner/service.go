// Package runner executes per-user jobs on a bounded worker pool.
//
// The periodic jobs fan out one job per user; each user's work is
// independent and failure-isolated, so the pool is the only shared
// resource. Workers are panic-safe and cooperate with Start/Stop.
package runner

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"routined/internal/eventbus"
	"routined/pkg/logx"
)

type queuedJob struct {
	job   Job
	state *runState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config

	queue     chan queuedJob
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	stateMu sync.Mutex
	states  map[string]*runState

	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{cfg: cfg.withDefaults(), log: log, bus: bus, states: map[string]*runState{}}
}

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents double
	// worker pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	cfg := s.cfg
	// Fresh queue per run to avoid executing stale items after a stop/start
	// toggle.
	s.queue = make(chan queuedJob, cfg.QueueSize)

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in runner worker",
						logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}

	s.log.Info("runner started", logx.Int("workers", cfg.Workers), logx.Int("queue_size", cfg.QueueSize))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("runner stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

func (s *Service) stateFor(key string) *runState {
	s.stateMu.Lock()
	st := s.states[key]
	if st == nil {
		st = &runState{}
		s.states[key] = st
	}
	s.stateMu.Unlock()
	return st
}

// Submit enqueues a job for execution.
//
// It is non-blocking: a full queue returns ErrQueueFull, an in-flight job
// with the same key returns ErrOverlapSkip.
func (s *Service) Submit(j Job) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()

	if q == nil {
		return ErrStopped
	}
	if j.Run == nil {
		return nil
	}

	key := strings.TrimSpace(j.Key)
	if key == "" {
		key = j.Name
	}
	st := s.stateFor(key)
	if !st.tryAcquire() {
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TopicJobSkipped, Data: JobEvent{Key: key, Name: j.Name, Error: "overlap_skip"}})
		}
		return ErrOverlapSkip
	}

	if j.Timeout <= 0 {
		j.Timeout = s.cfg.DefaultTimeout
	}

	select {
	case q <- queuedJob{job: j, state: st}:
		return nil
	default:
		st.release()
		s.dropped.Add(1)
		s.log.Warn("runner queue full; dropping job", logx.String("job", j.Name), logx.Int("queue_cap", cap(q)))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TopicJobDropped, Data: JobEvent{Key: key, Name: j.Name, Error: "queue_full"}})
		}
		return ErrQueueFull
	}
}

// Dropped reports how many jobs were discarded on a full queue (lifetime).
func (s *Service) Dropped() uint64 { return s.dropped.Load() }
