package control

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"routined/internal/localtime"
	"routined/internal/routine"
	"routined/internal/storage"
	"routined/pkg/logx"
)

// EnrollUser registers (or re-registers) a user with their IANA timezone.
// An unknown zone is normalized to UTC up front instead of being stored and
// warned about on every trigger tick.
func (s *Service) EnrollUser(ctx context.Context, userID, timezone string) (routine.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return routine.User{}, fmt.Errorf("%w: user id is required", routine.ErrInvalidState)
	}
	timezone = strings.TrimSpace(timezone)
	if timezone == "" || !localtime.Valid(timezone) {
		if timezone != "" {
			s.log.Warn("unknown timezone at enrollment; using UTC",
				logx.String("user", userID), logx.String("tz", timezone))
		}
		timezone = "UTC"
	}

	u := routine.User{ID: userID, Timezone: timezone, CreatedAt: s.now()}
	if existing, err := s.st.GetUser(ctx, userID); err == nil {
		// Re-enrollment only updates the timezone; the close-out schedule
		// resets so the next sweep recomputes it in the new zone.
		u.CreatedAt = existing.CreatedAt
	}
	if err := s.st.PutUser(ctx, u); err != nil {
		return routine.User{}, err
	}
	s.log.Info("user enrolled", logx.String("user", userID), logx.String("tz", timezone))
	return u, nil
}

// TaskSpec describes one template within a stage.
type TaskSpec struct {
	Title    string
	Optional bool
}

// StageSpec describes one stage of a new routine. Hour and Minute set the
// local serving slot; nil means the 05:00 default, while an explicit zero
// is a real midnight slot.
type StageSpec struct {
	Threshold int
	Hour      *int
	Minute    *int
	Tasks     []TaskSpec
}

func (st StageSpec) slot() (hour, minute int) {
	hour, minute = 5, 0
	if st.Hour != nil {
		hour = *st.Hour
	}
	if st.Minute != nil {
		minute = *st.Minute
	}
	return hour, minute
}

// RoutineSpec is the creation payload for CreateRoutine.
type RoutineSpec struct {
	Title  string
	Stages []StageSpec
}

// CreateRoutine builds a routine with its stage task sets and templates in
// one transaction and starts it on stage one.
func (s *Service) CreateRoutine(ctx context.Context, userID string, spec RoutineSpec) (routine.Routine, error) {
	if _, err := s.st.GetUser(ctx, userID); err != nil {
		return routine.Routine{}, err
	}
	spec.Title = strings.TrimSpace(spec.Title)
	if spec.Title == "" {
		return routine.Routine{}, fmt.Errorf("%w: routine title is required", routine.ErrInvalidState)
	}
	if len(spec.Stages) == 0 {
		return routine.Routine{}, fmt.Errorf("%w: a routine needs at least one stage", routine.ErrInvalidState)
	}

	now := s.now()
	r := routine.Routine{
		ID:           uuid.NewString(),
		OwnerID:      userID,
		Title:        spec.Title,
		Stages:       len(spec.Stages),
		Thresholds:   make([]int, len(spec.Stages)),
		CurrentStage: 1,
		Status:       routine.StatusActive,
		CreatedAt:    now,
	}
	for i, st := range spec.Stages {
		if st.Threshold < 0 {
			return routine.Routine{}, fmt.Errorf("%w: stage %d has a negative threshold", routine.ErrInvalidState, i+1)
		}
		if hour, minute := st.slot(); hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return routine.Routine{}, fmt.Errorf("%w: stage %d serving time %02d:%02d is out of range",
				routine.ErrInvalidState, i+1, hour, minute)
		}
		r.Thresholds[i] = st.Threshold
	}
	if err := r.Validate(); err != nil {
		return routine.Routine{}, err
	}

	err := s.st.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		if err := tx.PutRoutine(ctx, r); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, r.ID, routine.Event{Type: routine.EventCreated, At: now}); err != nil {
			return err
		}
		for i, st := range spec.Stages {
			hour, minute := st.slot()
			ts := routine.StageTaskSet{
				ID:          uuid.NewString(),
				RoutineID:   r.ID,
				StageNumber: i + 1,
				Hour:        hour,
				Minute:      minute,
			}
			if err := tx.PutTaskSet(ctx, ts); err != nil {
				return err
			}
			for j, task := range st.Tasks {
				title := strings.TrimSpace(task.Title)
				if title == "" {
					return fmt.Errorf("%w: stage %d task %d has no title", routine.ErrInvalidState, i+1, j+1)
				}
				if err := tx.PutTemplate(ctx, routine.TaskTemplate{
					ID:          uuid.NewString(),
					TaskSetID:   ts.ID,
					RoutineID:   r.ID,
					StageNumber: i + 1,
					Title:       title,
					Optional:    task.Optional,
					Order:       j,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return routine.Routine{}, err
	}

	out, err := s.st.GetRoutine(ctx, r.ID)
	if err != nil {
		return routine.Routine{}, err
	}
	s.log.Info("routine created",
		logx.String("routine", r.ID), logx.String("user", userID), logx.Int("stages", r.Stages))
	return out, nil
}
