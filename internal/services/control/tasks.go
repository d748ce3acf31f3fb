package control

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"routined/internal/routine"
	"routined/internal/storage"
	"routined/pkg/logx"
)

// UpdateTaskStatus moves a live task instance to a new status and applies
// the resulting progress delta to its routine. Immutable tasks (originating
// from an already-superseded stage) are rejected.
//
// The instance's old status is read inside the transaction: of two racing
// updates to the same task, the second sees the first one's write and its
// delta is computed from that, never from a shared stale read.
func (s *Service) UpdateTaskStatus(ctx context.Context, userID, taskID string, newStatus routine.TaskStatus) (routine.TaskInstance, error) {
	switch newStatus {
	case routine.TaskTodo, routine.TaskInProgress, routine.TaskCompleted, routine.TaskMissed:
	default:
		return routine.TaskInstance{}, fmt.Errorf("%w: unknown task status %q", routine.ErrInvalidState, newStatus)
	}
	now := s.now()

	var out routine.TaskInstance
	var old routine.TaskStatus
	err := s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		inst, err := tx.GetInstance(ctx, taskID)
		if err != nil {
			return err
		}
		if inst.UserID != userID {
			return fmt.Errorf("task %s: %w", taskID, routine.ErrNotFound)
		}
		r, err := tx.GetRoutine(ctx, inst.RoutineID)
		if err != nil {
			return err
		}
		stageOf := s.stageOf(ctx, tx)
		if routine.IsImmutable(inst, r.CurrentStage, stageOf) {
			return fmt.Errorf("task %s: %w", taskID, routine.ErrImmutableTask)
		}

		old = inst.Status
		if old == newStatus {
			out = inst
			return nil
		}
		if err := tx.SetInstanceStatus(ctx, taskID, newStatus, now); err != nil {
			return err
		}
		if delta := routine.TransitionDelta(&r, inst, old, newStatus, stageOf); delta != 0 {
			if _, err := tx.IncrementProgress(ctx, r.ID, r.CurrentStage, delta); err != nil {
				return err
			}
		}
		out, err = tx.GetInstance(ctx, taskID)
		return err
	})
	if err != nil {
		return routine.TaskInstance{}, err
	}

	if old != newStatus {
		s.log.Debug("task status updated",
			logx.String("task", taskID), logx.String("from", string(old)), logx.String("to", string(newStatus)))
	}
	return out, nil
}

// CreateCustomTask adds an ad-hoc task for today. Custom tasks have no
// originating template: they never count toward stage progress and never
// become immutable.
func (s *Service) CreateCustomTask(ctx context.Context, userID, routineID, title string, optional bool) (routine.TaskInstance, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return routine.TaskInstance{}, fmt.Errorf("%w: task title is required", routine.ErrInvalidState)
	}
	r, err := s.ownedRoutine(ctx, s.st, userID, routineID)
	if err != nil {
		return routine.TaskInstance{}, err
	}
	if r.Status != routine.StatusActive {
		return routine.TaskInstance{}, fmt.Errorf("%w: cannot add tasks to %s routine", routine.ErrInvalidState, r.Status)
	}

	now := s.now()
	inst := routine.TaskInstance{
		ID:           uuid.NewString(),
		UserID:       userID,
		RoutineID:    routineID,
		Title:        title,
		Optional:     optional,
		Status:       routine.TaskTodo,
		ScheduledFor: now.UTC(),
		CreatedAt:    now,
	}
	if _, err := s.st.InsertInstance(ctx, inst); err != nil {
		return routine.TaskInstance{}, err
	}
	return inst, nil
}

// ResolveUnmarked turns a parked end-of-day record into a terminal history
// record. Only completed and missed are valid outcomes; the resolution does
// not retroactively adjust template streaks.
func (s *Service) ResolveUnmarked(ctx context.Context, userID, recordID string, outcome routine.HistoryStatus) error {
	if outcome != routine.HistoryCompleted && outcome != routine.HistoryMissed {
		return fmt.Errorf("%w: unmarked tasks resolve to completed or missed, got %q", routine.ErrInvalidState, outcome)
	}
	rec, err := s.st.GetUnmarked(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return fmt.Errorf("unmarked record %s: %w", recordID, routine.ErrNotFound)
	}
	now := s.now()

	hist := routine.HistoryRecord{
		ID:           uuid.NewString(),
		UserID:       rec.UserID,
		RoutineID:    rec.RoutineID,
		TemplateID:   rec.TemplateID,
		Title:        rec.Title,
		Status:       outcome,
		ScheduledFor: rec.ScheduledFor,
		ArchivedAt:   now,
	}
	if outcome == routine.HistoryCompleted {
		hist.CompletedAt = now
	} else {
		hist.MissedAt = now
	}

	return s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		if err := tx.InsertHistory(ctx, hist); err != nil {
			return err
		}
		return tx.DeleteUnmarked(ctx, recordID)
	})
}

// Report is a snapshot of a routine's advance-eligibility for display.
type Report struct {
	CurrentStage          int    `json:"currentStage"`
	TotalStages           int    `json:"totalStages"`
	CurrentStageProgress  int    `json:"currentStageProgress"`
	CurrentStageThreshold int    `json:"currentStageThreshold"`
	CanAdvance            bool   `json:"canAdvance"`
	IsOnFinalStage        bool   `json:"isOnFinalStage"`
	TasksNeededToAdvance  int    `json:"tasksNeededToAdvance"`
	Reason                string `json:"reason,omitempty"`
}

// Progress reports where a routine stands within its stage program.
func (s *Service) Progress(ctx context.Context, userID, routineID string) (Report, error) {
	r, err := s.ownedRoutine(ctx, s.st, userID, routineID)
	if err != nil {
		return Report{}, err
	}
	ev := routine.Evaluate(&r)
	return Report{
		CurrentStage:          r.CurrentStage,
		TotalStages:           r.Stages,
		CurrentStageProgress:  r.CurrentStageProgress,
		CurrentStageThreshold: ev.Threshold,
		CanAdvance:            ev.CanAdvance,
		IsOnFinalStage:        ev.IsFinalStage,
		TasksNeededToAdvance:  ev.TasksNeeded,
		Reason:                ev.Reason,
	}, nil
}

// ImmutabilityPreview reports which live tasks would lock if the routine
// advanced to the proposed stage, so the caller can warn before committing.
func (s *Service) ImmutabilityPreview(ctx context.Context, userID, routineID string, proposedStage int) (routine.Preview, error) {
	r, err := s.ownedRoutine(ctx, s.st, userID, routineID)
	if err != nil {
		return routine.Preview{}, err
	}
	instances, err := s.st.ListInstancesByRoutine(ctx, r.ID)
	if err != nil {
		return routine.Preview{}, err
	}
	return routine.PreviewAtStage(instances, proposedStage, s.stageOf(ctx, s.st)), nil
}
