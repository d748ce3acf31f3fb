// Package archiver closes out finished local days: it moves every task
// instance of the previous day into terminal history or the unmarked pool,
// updates template streaks, and rewinds progress earned by a late stage
// advance.
//
// Like the materializer, it is gated by a stored instant rather than a
// wall-clock window: each user carries next_close_out_at, the UTC instant
// of their next local midnight. A trigger tick that arrives late (or a
// daemon that was down over midnight) still closes the day exactly once.
package archiver

import (
	"context"
	"errors"
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
	PageSize    int
	UserTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	return c
}

// DayClosed is published on the bus after a user's day is archived.
type DayClosed struct {
	UserID   string    `json:"user_id"`
	Day      time.Time `json:"day"` // local midnight opening the closed day, UTC instant
	Archived int       `json:"archived"`
	Unmarked int       `json:"unmarked"`
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

// RunAll pages through all users and dispatches one close-out job per user
// onto the pool.
func (s *Service) RunAll(ctx context.Context) error {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.log.Debug("close-out sweep already dispatching; skipped")
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
				Key:     "closeout:" + uid,
				Name:    "close-out",
				Timeout: s.cfg.UserTimeout,
				Run: func(ctx context.Context) error {
					return s.CloseOutUser(ctx, uid)
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

// CloseOutUser archives one user's previous local day if their midnight has
// passed. Each instance moves in its own transaction, so one bad row never
// blocks the rest of the day.
func (s *Service) CloseOutUser(ctx context.Context, userID string) error {
	user, err := s.st.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	loc := s.tz.Location(user.Timezone)
	now := s.now()

	if user.NextCloseOutAt.IsZero() {
		// First sighting: schedule the upcoming midnight, nothing to close.
		return s.st.SetNextCloseOut(ctx, userID, localtime.NextMidnight(now, loc))
	}
	if now.Before(user.NextCloseOutAt) {
		return nil
	}

	// The day being closed is the local day ending at the most recent
	// midnight. Using the current boundary (rather than the stored one)
	// collapses multiple missed midnights into one close-out of the last
	// full day; older open instances are swept into the same pass below
	// because the range is bounded only on the right for them.
	boundary := localtime.StartOfDay(now, loc)
	dayStart := boundary.AddDate(0, 0, -1)

	archived, unmarked := 0, 0
	routines, err := s.st.ListRoutines(ctx, userID)
	if err != nil {
		return err
	}
	for i := range routines {
		if err := s.rewindLateAdvance(ctx, &routines[i], dayStart, boundary); err != nil {
			s.log.Error("late-advance rewind failed", logx.String("routine", routines[i].ID), logx.Err(err))
		}
	}

	// Left bound at the epoch: instances stranded by downtime across
	// several midnights are archived too, not just yesterday's.
	instances, err := s.st.ListInstancesInRange(ctx, userID, time.Unix(0, 0).UTC(), boundary.UTC())
	if err != nil {
		return err
	}
	for _, inst := range instances {
		a, u, err := s.archiveInstance(ctx, inst, now)
		if err != nil {
			s.log.Error("archive task failed", logx.String("instance", inst.ID), logx.Err(err))
			continue
		}
		archived += a
		unmarked += u
	}

	if err := s.st.SetNextCloseOut(ctx, userID, localtime.NextMidnight(now, loc)); err != nil {
		return err
	}

	s.log.Info("day closed",
		logx.String("user", userID), logx.Time("day", dayStart),
		logx.Int("archived", archived), logx.Int("unmarked", unmarked))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicDayClosed, Data: DayClosed{
			UserID: userID, Day: dayStart.UTC(), Archived: archived, Unmarked: unmarked,
		}})
	}
	return nil
}

// rewindLateAdvance zeroes stage progress that was carried over by an
// advance performed during the day now being closed. The stage_advanced
// timestamp on the timeline is the source of truth, so a close-out that
// runs hours after midnight still detects it.
func (s *Service) rewindLateAdvance(ctx context.Context, r *routine.Routine, dayStart, boundary time.Time) error {
	if r.Status != routine.StatusActive || r.CurrentStageProgress == 0 {
		return nil
	}
	if _, ok := r.Timeline.LatestInWindow(routine.EventStageAdvanced, dayStart.UTC(), boundary.UTC()); !ok {
		return nil
	}
	s.log.Info("resetting progress after same-day stage advance",
		logx.String("routine", r.ID), logx.Int("stage", r.CurrentStage))
	return s.st.SetProgress(ctx, r.ID, 0)
}

// archiveInstance moves one instance out of the live table atomically:
// marked tasks become history records, open ones become unmarked records,
// and the template streak is bumped or reset in the same transaction.
func (s *Service) archiveInstance(ctx context.Context, inst routine.TaskInstance, now time.Time) (archived, unmarked int, err error) {
	err = s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		switch inst.Status {
		case routine.TaskCompleted, routine.TaskMissed:
			st := routine.HistoryCompleted
			if inst.Status == routine.TaskMissed {
				st = routine.HistoryMissed
			}
			if err := tx.InsertHistory(ctx, routine.HistoryRecord{
				ID:           uuid.NewString(),
				UserID:       inst.UserID,
				RoutineID:    inst.RoutineID,
				TemplateID:   inst.TemplateID,
				Title:        inst.Title,
				Status:       st,
				ScheduledFor: inst.ScheduledFor,
				CompletedAt:  inst.CompletedAt,
				MissedAt:     inst.MissedAt,
				ArchivedAt:   now,
			}); err != nil {
				return err
			}
			archived = 1
		default:
			// todo or in_progress: the user never marked it, park it for
			// manual resolution.
			if err := tx.InsertUnmarked(ctx, routine.UnmarkedRecord{
				ID:           uuid.NewString(),
				UserID:       inst.UserID,
				RoutineID:    inst.RoutineID,
				TemplateID:   inst.TemplateID,
				Title:        inst.Title,
				Optional:     inst.Optional,
				ScheduledFor: inst.ScheduledFor,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
			unmarked = 1
		}

		if inst.TemplateID != "" {
			if err := tx.BumpStreak(ctx, inst.TemplateID, inst.Status == routine.TaskCompleted); err != nil {
				return err
			}
		}
		return tx.DeleteInstance(ctx, inst.ID)
	})
	if err != nil {
		return 0, 0, err
	}
	return archived, unmarked, nil
}
