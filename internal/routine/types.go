package routine

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a routine.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusFinished  Status = "finished"
	StatusAbandoned Status = "abandoned"
)

// TaskStatus is the state of a live task instance.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskMissed     TaskStatus = "missed"
)

// HistoryStatus is the terminal outcome recorded for an archived task.
type HistoryStatus string

const (
	HistoryCompleted HistoryStatus = "completed"
	HistoryMissed    HistoryStatus = "missed"
	HistorySkipped   HistoryStatus = "skipped"
)

// User is an enrolled account. Timezone holds an IANA zone name; invalid
// values fall back to UTC at resolution time.
type User struct {
	ID       string
	Timezone string

	// NextCloseOutAt is the UTC instant of the user's next local midnight,
	// maintained by the archiver. Zero means "not yet scheduled".
	NextCloseOutAt time.Time

	CreatedAt time.Time
}

// Routine is a multi-stage program one user progresses through.
//
// Thresholds is indexed by stageNumber-1: Thresholds[i] is the number of
// non-optional completions required to leave stage i+1.
type Routine struct {
	ID      string
	OwnerID string
	Title   string

	Stages               int
	Thresholds           []int
	CurrentStage         int // 1-based
	CurrentStageProgress int

	Status   Status
	Timeline Timeline

	// NextMaterializeAt is the UTC instant of the next daily serving,
	// maintained by the materializer. Zero means "not yet scheduled".
	NextMaterializeAt time.Time

	CreatedAt time.Time
}

// Validate checks the structural invariants of a routine.
func (r *Routine) Validate() error {
	if r.Stages < 1 {
		return fmt.Errorf("routine %s: stages must be >= 1, got %d", r.ID, r.Stages)
	}
	if len(r.Thresholds) != r.Stages {
		return fmt.Errorf("routine %s: %d thresholds for %d stages", r.ID, len(r.Thresholds), r.Stages)
	}
	for i, th := range r.Thresholds {
		if th < 0 {
			return fmt.Errorf("routine %s: threshold[%d] is negative", r.ID, i)
		}
	}
	if r.CurrentStage < 1 || r.CurrentStage > r.Stages {
		return fmt.Errorf("routine %s: current stage %d out of range [1,%d]", r.ID, r.CurrentStage, r.Stages)
	}
	if r.CurrentStageProgress < 0 {
		return fmt.Errorf("routine %s: negative stage progress", r.ID)
	}
	return nil
}

// CurrentThreshold returns the completion threshold of the current stage.
func (r *Routine) CurrentThreshold() int {
	return r.Thresholds[r.CurrentStage-1]
}

// StageTaskSet groups the task templates of one stage and carries the
// local-time serving slot for that stage.
type StageTaskSet struct {
	ID          string
	RoutineID   string
	StageNumber int
	Hour        int // local serving hour, default 5
	Minute      int
}

// TaskTemplate is the reusable definition of a task within a stage.
// StageNumber is fixed at creation (templates never move between stages).
type TaskTemplate struct {
	ID          string
	TaskSetID   string
	RoutineID   string
	StageNumber int
	Title       string
	Optional    bool
	Order       int

	// Streak counts consecutive days the template was completed.
	// Any archived non-completion resets it to zero.
	Streak int
}

// TaskInstance is a concrete, datable occurrence of a template (or an
// ad-hoc task, in which case TemplateID is empty) for one user on one day.
type TaskInstance struct {
	ID         string
	UserID     string
	RoutineID  string
	TemplateID string // empty for custom tasks
	Title      string
	Optional   bool
	Status     TaskStatus

	// ScheduledFor is stored UTC and represents the local serving instant.
	ScheduledFor time.Time

	CompletedAt time.Time // zero unless status reached completed
	MissedAt    time.Time // zero unless status reached missed
	CreatedAt   time.Time
}

// HistoryRecord is the immutable terminal record of an archived task.
// Once inserted it is never updated.
type HistoryRecord struct {
	ID         string
	UserID     string
	RoutineID  string
	TemplateID string
	Title      string
	Status     HistoryStatus

	ScheduledFor time.Time
	CompletedAt  time.Time
	MissedAt     time.Time
	ArchivedAt   time.Time
}

// UnmarkedRecord holds a task that was still open when its day closed,
// pending manual resolution into a HistoryRecord.
type UnmarkedRecord struct {
	ID         string
	UserID     string
	RoutineID  string
	TemplateID string
	Title      string
	Optional   bool

	ScheduledFor time.Time
	CreatedAt    time.Time
}
