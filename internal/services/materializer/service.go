// Package materializer creates today's task instances from each active
// routine's current-stage templates.
//
// Scheduling is comparison-based: every routine stores the UTC instant of
// its next serving (next_materialize_at), computed from the stage task
// set's local hour/minute in the owner's timezone. The periodic trigger
// only has to ask "is it due yet", which stays correct under trigger
// jitter and missed invocations.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"routined/internal/eventbus"
	"routined/internal/localtime"
	"routined/internal/routine"
	"routined/internal/services/runner"
	"routined/internal/storage"
	"routined/pkg/logx"
)

type Config struct {
	// Local serving time used when a stage has no task set of its own.
	// Used as given: 0/0 is a real midnight slot, and the config layer
	// supplies 05:00 when the file leaves the time unset.
	DefaultHour   int
	DefaultMinute int

	PageSize    int           // user-cursor page size
	UserTimeout time.Duration // per-user job timeout on the pool
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	return c
}

// Served is published on the bus after a routine's tasks are created.
type Served struct {
	UserID    string `json:"user_id"`
	RoutineID string `json:"routine_id"`
	Count     int    `json:"count"`
}

type Service struct {
	log  logx.Logger
	st   storage.Store
	tz   *localtime.Resolver
	pool *runner.Service
	bus  eventbus.Bus
	cfg  Config

	sweeping atomic.Bool
	now      func() time.Time
}

func New(cfg Config, log logx.Logger, st storage.Store, tz *localtime.Resolver, pool *runner.Service, bus eventbus.Bus) *Service {
	return &Service{cfg: cfg.withDefaults(), log: log, st: st, tz: tz, pool: pool, bus: bus, now: time.Now}
}

// RunAll pages through all users and dispatches one serving job per user
// onto the pool. It does not wait for the jobs; the per-user overlap key
// prevents pile-ups when the trigger outpaces execution.
func (s *Service) RunAll(ctx context.Context) error {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.log.Debug("materialize sweep already dispatching; skipped")
		return nil
	}
	defer s.sweeping.Store(false)

	after := ""
	for {
		ids, err := s.st.ListUserIDs(ctx, after, s.cfg.PageSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			uid := id
			err := s.pool.Submit(runner.Job{
				Key:     "materialize:" + uid,
				Name:    "materialize",
				Timeout: s.cfg.UserTimeout,
				Run: func(ctx context.Context) error {
					return s.ServeUser(ctx, uid)
				},
			})
			if err != nil && !errors.Is(err, runner.ErrOverlapSkip) {
				s.log.Warn("dispatch failed", logx.String("user", uid), logx.Err(err))
			}
		}
		after = ids[len(ids)-1]
		if len(ids) < s.cfg.PageSize {
			return nil
		}
	}
}

// ServeUser materializes every due routine of one user. A failure on one
// routine (or one template) is logged and never aborts the rest.
func (s *Service) ServeUser(ctx context.Context, userID string) error {
	user, err := s.st.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	loc := s.tz.Location(user.Timezone)
	now := s.now()

	routines, err := s.st.ListRoutines(ctx, userID)
	if err != nil {
		return err
	}
	for i := range routines {
		r := routines[i]
		if r.Status != routine.StatusActive {
			continue
		}
		if r.NextMaterializeAt.IsZero() {
			// First sighting: schedule the next serving without creating
			// tasks for a day that is already underway.
			next := s.nextServing(ctx, &r, now, loc)
			if err := s.st.SetNextMaterialize(ctx, r.ID, next); err != nil {
				s.log.Error("schedule routine failed", logx.String("routine", r.ID), logx.Err(err))
			}
			continue
		}
		if now.Before(r.NextMaterializeAt) {
			continue
		}

		// Serve at the stored instant, even if the trigger arrives late:
		// the instances still belong to that serving slot.
		n, err := s.serveRoutine(ctx, &r, r.NextMaterializeAt, now)
		if err != nil {
			// Leave next_materialize_at untouched so the next tick retries.
			s.log.Error("serve routine failed", logx.String("routine", r.ID), logx.Err(err))
			continue
		}
		next := s.nextServing(ctx, &r, now, loc)
		if err := s.st.SetNextMaterialize(ctx, r.ID, next); err != nil {
			s.log.Error("reschedule routine failed", logx.String("routine", r.ID), logx.Err(err))
			continue
		}
		if n > 0 {
			s.log.Info("tasks materialized",
				logx.String("user", userID), logx.String("routine", r.ID), logx.Int("count", n), logx.Time("next", next))
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TopicTasksMaterialized, Data: Served{UserID: userID, RoutineID: r.ID, Count: n}})
		}
	}
	return nil
}

// ServeNow performs one routine's serving immediately, ignoring the time
// gate and scheduling the instances at the current moment. Used by the
// resume and reset flows.
func (s *Service) ServeNow(ctx context.Context, userID, routineID string) (int, error) {
	user, err := s.st.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	r, err := s.st.GetRoutine(ctx, routineID)
	if err != nil {
		return 0, err
	}
	if r.OwnerID != userID {
		return 0, fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}
	if r.Status != routine.StatusActive {
		return 0, fmt.Errorf("%w: routine %s is %s", routine.ErrInvalidState, routineID, r.Status)
	}

	now := s.now()
	n, err := s.serveRoutine(ctx, &r, now, now)
	if err != nil {
		return 0, err
	}
	if r.NextMaterializeAt.IsZero() {
		loc := s.tz.Location(user.Timezone)
		_ = s.st.SetNextMaterialize(ctx, routineID, s.nextServing(ctx, &r, now, loc))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicTasksMaterialized, Data: Served{UserID: userID, RoutineID: r.ID, Count: n}})
	}
	return n, nil
}

// serveRoutine inserts one instance per current-stage template, scheduled
// at the given instant. The (user, template, scheduledFor) key makes the
// whole call idempotent: re-running creates nothing new.
func (s *Service) serveRoutine(ctx context.Context, r *routine.Routine, at, now time.Time) (int, error) {
	ts, err := s.st.TaskSetForStage(ctx, r.ID, r.CurrentStage)
	if errors.Is(err, routine.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	tmpls, err := s.st.ListTemplates(ctx, ts.ID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, tp := range tmpls {
		inst := routine.TaskInstance{
			ID:           uuid.NewString(),
			UserID:       r.OwnerID,
			RoutineID:    r.ID,
			TemplateID:   tp.ID,
			Title:        tp.Title,
			Optional:     tp.Optional,
			Status:       routine.TaskTodo,
			ScheduledFor: at.UTC(),
			CreatedAt:    now,
		}
		inserted, err := s.st.InsertInstance(ctx, inst)
		if err != nil {
			s.log.Error("create task failed",
				logx.String("routine", r.ID), logx.String("template", tp.ID), logx.Err(err))
			continue
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// nextServing computes the next serving instant for a routine's current
// stage: the stage task set's local hour/minute (or the configured default)
// strictly after now, in the user's zone.
func (s *Service) nextServing(ctx context.Context, r *routine.Routine, now time.Time, loc *time.Location) time.Time {
	hour, minute := s.cfg.DefaultHour, s.cfg.DefaultMinute
	if ts, err := s.st.TaskSetForStage(ctx, r.ID, r.CurrentStage); err == nil {
		hour, minute = ts.Hour, ts.Minute
	}
	return localtime.NextAt(now, hour, minute, loc)
}
