package control

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"routined/internal/routine"
	"routined/internal/storage"
	"routined/pkg/logx"
)

// Every lifecycle operation validates ownership and status against the
// transaction's own read of the routine, not a read taken before WithTx.
// Two concurrent calls therefore serialize at the store and the loser
// fails its precondition instead of committing on a stale snapshot.

// Pause suspends an active routine. Today's task instances are discarded
// and any progress they contributed is rewound, so a later resume starts
// the day clean.
func (s *Service) Pause(ctx context.Context, userID, routineID string) error {
	loc, err := s.userLocation(ctx, userID)
	if err != nil {
		return err
	}
	now := s.now()

	return s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		r, err := s.ownedRoutine(ctx, tx, userID, routineID)
		if err != nil {
			return err
		}
		if r.Status != routine.StatusActive {
			return fmt.Errorf("%w: cannot pause %s routine", routine.ErrInvalidState, r.Status)
		}
		stageOf := s.stageOf(ctx, tx)
		today, err := s.todayInstances(ctx, tx, &r, loc, now)
		if err != nil {
			return err
		}

		rewind := 0
		for _, inst := range today {
			if inst.Status == routine.TaskCompleted &&
				routine.TransitionDelta(&r, inst, routine.TaskTodo, routine.TaskCompleted, stageOf) > 0 {
				rewind++
			}
			if err := tx.DeleteInstance(ctx, inst.ID); err != nil {
				return err
			}
		}
		// Rewind while the row is still active; the conditional increment
		// no-ops once the status flips.
		if rewind > 0 {
			if _, err := tx.IncrementProgress(ctx, r.ID, r.CurrentStage, -rewind); err != nil {
				return err
			}
		}

		rr, err := tx.GetRoutine(ctx, r.ID)
		if err != nil {
			return err
		}
		rr.Status = routine.StatusPaused
		if err := tx.PutRoutine(ctx, rr); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, r.ID, routine.Event{Type: routine.EventPaused, At: now}); err != nil {
			return err
		}
		s.log.Info("routine paused",
			logx.String("routine", r.ID), logx.Int("discarded", len(today)), logx.Int("rewound", rewind))
		return nil
	})
}

// Resume reactivates a paused routine and serves today's tasks immediately.
// It returns the number of freshly created task instances.
func (s *Service) Resume(ctx context.Context, userID, routineID string) (int, error) {
	now := s.now()

	err := s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		r, err := s.ownedRoutine(ctx, tx, userID, routineID)
		if err != nil {
			return err
		}
		if r.Status != routine.StatusPaused {
			return fmt.Errorf("%w: cannot resume %s routine", routine.ErrInvalidState, r.Status)
		}
		r.Status = routine.StatusActive
		if err := tx.PutRoutine(ctx, r); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, r.ID, routine.Event{Type: routine.EventResumed, At: now})
	})
	if err != nil {
		return 0, err
	}

	n, err := s.mat.ServeNow(ctx, userID, routineID)
	if err != nil {
		// The routine is resumed either way; the daily serving will pick it
		// up if the immediate one failed.
		s.log.Warn("serve after resume failed", logx.String("routine", routineID), logx.Err(err))
		return 0, nil
	}
	s.log.Info("routine resumed", logx.String("routine", routineID), logx.Int("served", n))
	return n, nil
}

// Abandon permanently retires an active or paused routine. Its history and
// timeline are kept; only a reset brings it back.
func (s *Service) Abandon(ctx context.Context, userID, routineID string) error {
	now := s.now()

	return s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		r, err := s.ownedRoutine(ctx, tx, userID, routineID)
		if err != nil {
			return err
		}
		if r.Status != routine.StatusActive && r.Status != routine.StatusPaused {
			return fmt.Errorf("%w: cannot abandon %s routine", routine.ErrInvalidState, r.Status)
		}
		r.Status = routine.StatusAbandoned
		if err := tx.PutRoutine(ctx, r); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, r.ID, routine.Event{Type: routine.EventAbandoned, At: now}); err != nil {
			return err
		}
		s.log.Info("routine abandoned", logx.String("routine", r.ID))
		return nil
	})
}

// Reset wipes a routine back to stage one: all live instances, unmarked
// records, and history are deleted, progress zeroes, and an abandoned
// routine becomes active again. Finished routines stay finished.
func (s *Service) Reset(ctx context.Context, userID, routineID string) error {
	now := s.now()

	var active bool
	err := s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		r, err := s.ownedRoutine(ctx, tx, userID, routineID)
		if err != nil {
			return err
		}
		if r.Status == routine.StatusFinished {
			return fmt.Errorf("%w: finished routines cannot be reset", routine.ErrInvalidState)
		}
		if _, err := tx.DeleteInstancesByRoutine(ctx, r.ID); err != nil {
			return err
		}
		if _, err := tx.DeleteUnmarkedByRoutine(ctx, r.ID); err != nil {
			return err
		}
		if _, err := tx.DeleteHistoryByRoutine(ctx, r.ID); err != nil {
			return err
		}
		r.CurrentStage = 1
		r.CurrentStageProgress = 0
		if r.Status == routine.StatusAbandoned {
			r.Status = routine.StatusActive
		}
		// Cleared so the materializer recomputes the slot for stage one.
		r.NextMaterializeAt = zeroTime
		active = r.Status == routine.StatusActive
		if err := tx.PutRoutine(ctx, r); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, r.ID, routine.Event{Type: routine.EventReset, At: now})
	})
	if err != nil {
		return err
	}

	s.log.Info("routine reset", logx.String("routine", routineID))
	if active {
		if _, err := s.mat.ServeNow(ctx, userID, routineID); err != nil {
			s.log.Warn("serve after reset failed", logx.String("routine", routineID), logx.Err(err))
		}
	}
	return nil
}

// SkipToday archives all of today's instances as skipped without touching
// progress or streaks, and returns how many were skipped.
func (s *Service) SkipToday(ctx context.Context, userID, routineID string) (int, error) {
	loc, err := s.userLocation(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := s.now()

	skipped := 0
	err = s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		r, err := s.ownedRoutine(ctx, tx, userID, routineID)
		if err != nil {
			return err
		}
		if r.Status != routine.StatusActive {
			return fmt.Errorf("%w: cannot skip on %s routine", routine.ErrInvalidState, r.Status)
		}
		today, err := s.todayInstances(ctx, tx, &r, loc, now)
		if err != nil {
			return err
		}
		if len(today) == 0 {
			return fmt.Errorf("%w: no tasks to skip today", routine.ErrInvalidState)
		}

		for _, inst := range today {
			if err := tx.InsertHistory(ctx, routine.HistoryRecord{
				ID:           uuid.NewString(),
				UserID:       inst.UserID,
				RoutineID:    inst.RoutineID,
				TemplateID:   inst.TemplateID,
				Title:        inst.Title,
				Status:       routine.HistorySkipped,
				ScheduledFor: inst.ScheduledFor,
				CompletedAt:  inst.CompletedAt,
				MissedAt:     inst.MissedAt,
				ArchivedAt:   now,
			}); err != nil {
				return err
			}
			if err := tx.DeleteInstance(ctx, inst.ID); err != nil {
				return err
			}
		}
		skipped = len(today)
		return tx.AppendEvent(ctx, r.ID, routine.Event{Type: routine.EventSkipped, At: now})
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("day skipped", logx.String("routine", routineID), logx.Int("count", skipped))
	return skipped, nil
}

// AdvanceStage moves an active routine to the given stage, which must be
// exactly the next one and whose threshold must be met. Advancing past the
// final stage finishes the routine. The caller names the target stage so a
// stale client cannot advance twice by accident; for the same reason the
// target and threshold are checked against the routine as the transaction
// sees it, so of two racing calls only one can move the stage.
func (s *Service) AdvanceStage(ctx context.Context, userID, routineID string, target int) (routine.Routine, error) {
	now := s.now()

	err := s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		r, err := s.ownedRoutine(ctx, tx, userID, routineID)
		if err != nil {
			return err
		}
		if r.Status != routine.StatusActive {
			return fmt.Errorf("%w: cannot advance %s routine", routine.ErrInvalidState, r.Status)
		}
		if target != r.CurrentStage+1 {
			return fmt.Errorf("%w: routine is on stage %d, requested %d",
				routine.ErrSequentialStageViolation, r.CurrentStage, target)
		}
		ev := routine.Evaluate(&r)
		if !ev.CanAdvance {
			return fmt.Errorf("%w: %d of %d tasks completed",
				routine.ErrThresholdNotMet, r.CurrentStageProgress, ev.Threshold)
		}

		if ev.IsFinalStage {
			r.Status = routine.StatusFinished
			r.CurrentStageProgress = 0
			if err := tx.PutRoutine(ctx, r); err != nil {
				return err
			}
			return tx.AppendEvent(ctx, r.ID, routine.Event{Type: routine.EventFinished, At: now})
		}
		r.CurrentStage++
		r.CurrentStageProgress = 0
		// Recomputed by the materializer from the new stage's slot.
		r.NextMaterializeAt = zeroTime
		if err := tx.PutRoutine(ctx, r); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, r.ID, routine.Event{
			Type: routine.EventStageAdvanced, At: now, StageNumber: r.CurrentStage,
		})
	})
	if err != nil {
		return routine.Routine{}, err
	}

	out, err := s.st.GetRoutine(ctx, routineID)
	if err != nil {
		return routine.Routine{}, err
	}
	if out.Status == routine.StatusFinished {
		s.log.Info("routine finished", logx.String("routine", routineID))
	} else {
		s.log.Info("stage advanced", logx.String("routine", routineID), logx.Int("stage", out.CurrentStage))
	}
	return out, nil
}
