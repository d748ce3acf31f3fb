// Package trigger drives the periodic sweeps. It owns a single cron
// schedule; all timezone logic lives downstream, where each user's stored
// next-run instant decides whether a tick actually does anything. The
// trigger can therefore fire as often as it likes (every minute by
// default) without any risk of double-serving or double-closing a day.
package trigger

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"routined/internal/routine"
	"routined/pkg/logx"
)

type Config struct {
	// Cron specs for the two sweeps. Both default to every minute;
	// SecondOptional allows 5-field and 6-field (with seconds) specs.
	MaterializeSpec string
	CloseOutSpec    string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.MaterializeSpec) == "" {
		c.MaterializeSpec = "* * * * *"
	}
	if strings.TrimSpace(c.CloseOutSpec) == "" {
		c.CloseOutSpec = "* * * * *"
	}
	return c
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	parser cron.Parser
	jobs   []job

	c         *cron.Cron
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		log:    log,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// MaterializeSpec and CloseOutSpec expose the effective specs for Register
// call sites.
func (s *Service) MaterializeSpec() string { return s.cfg.MaterializeSpec }
func (s *Service) CloseOutSpec() string    { return s.cfg.CloseOutSpec }

// Register adds a named periodic job. It must be called before Start; the
// spec is validated immediately so a config typo fails at boot, not at the
// first missed tick.
func (s *Service) Register(name, spec string, run func(ctx context.Context) error) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("trigger %q: bad spec %q: %w", name, spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return fmt.Errorf("trigger %q: registered after start", name)
	}
	s.jobs = append(s.jobs, job{name: name, spec: spec, run: run})
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx

	// Cron runs in UTC; local-time semantics are downstream concerns.
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(time.UTC))
	for _, j := range s.jobs {
		j := j
		if _, err := c.AddFunc(j.spec, func() { s.fire(runCtx, j) }); err != nil {
			s.runCancel()
			s.runCtx, s.runCancel = nil, nil
			return fmt.Errorf("trigger %q: %w", j.name, err)
		}
	}
	c.Start()
	s.c = c
	s.log.Info("trigger started", logx.Int("jobs", len(s.jobs)))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c, s.runCtx, s.runCancel = nil, nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopped := c.Stop()
	if cancel != nil {
		cancel()
	}
	select {
	case <-stopped.Done():
		s.log.Info("trigger stopped")
	case <-ctx.Done():
		s.log.Warn("trigger stop timed out; ticks may still be draining")
	}
}

// RunNow executes one registered job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *job
	for i := range s.jobs {
		if s.jobs[i].name == name {
			found = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return fmt.Errorf("trigger %q: %w", name, routine.ErrNotFound)
	}
	return found.run(ctx)
}

func (s *Service) fire(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in trigger job",
				logx.String("job", j.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	start := time.Now()
	if err := j.run(ctx); err != nil {
		s.log.Warn("trigger job failed", logx.String("job", j.name), logx.Err(err), logx.Duration("dur", time.Since(start)))
		return
	}
	s.log.Debug("trigger job done", logx.String("job", j.name), logx.Duration("dur", time.Since(start)))
}
