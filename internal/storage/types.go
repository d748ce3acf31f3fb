package storage

import (
	"context"
	"time"

	"routined/internal/routine"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, used by tests and ad-hoc runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the transactional source of truth for all lifecycle state.
//
// Semantics the engine relies on:
//
//   - Lookups of absent rows return routine.ErrNotFound (wrapped).
//   - InsertInstance enforces the (user, template, scheduledFor) idempotency
//     key: a duplicate insert is not an error, it reports inserted=false.
//   - IncrementProgress is a single conditional floor-clamped update:
//     progress = max(0, progress+delta), applied only while the routine is
//     active AND still on the given stage. It returns the routine as stored
//     afterwards, unchanged when the condition did not hold.
//   - WithTx runs fn atomically; all writes through the passed Store commit
//     or roll back together.
type Store interface {
	// Users.
	PutUser(ctx context.Context, u routine.User) error
	GetUser(ctx context.Context, id string) (routine.User, error)
	// ListUserIDs pages through all user IDs ordered by ID; pass the last
	// ID of the previous page (or "" for the first page) as afterID.
	ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	SetNextCloseOut(ctx context.Context, userID string, at time.Time) error

	// Routines. GetRoutine and ListRoutines load the timeline.
	PutRoutine(ctx context.Context, r routine.Routine) error
	GetRoutine(ctx context.Context, id string) (routine.Routine, error)
	ListRoutines(ctx context.Context, userID string) ([]routine.Routine, error)
	SetNextMaterialize(ctx context.Context, routineID string, at time.Time) error
	SetProgress(ctx context.Context, routineID string, progress int) error
	IncrementProgress(ctx context.Context, routineID string, stage, delta int) (routine.Routine, error)
	AppendEvent(ctx context.Context, routineID string, ev routine.Event) error

	// Stage task sets and templates.
	PutTaskSet(ctx context.Context, ts routine.StageTaskSet) error
	TaskSetForStage(ctx context.Context, routineID string, stage int) (routine.StageTaskSet, error)
	PutTemplate(ctx context.Context, t routine.TaskTemplate) error
	GetTemplate(ctx context.Context, id string) (routine.TaskTemplate, error)
	ListTemplates(ctx context.Context, taskSetID string) ([]routine.TaskTemplate, error)
	// BumpStreak increments the template streak on a completed archive and
	// resets it to zero otherwise.
	BumpStreak(ctx context.Context, templateID string, completed bool) error

	// Live task instances.
	InsertInstance(ctx context.Context, inst routine.TaskInstance) (inserted bool, err error)
	GetInstance(ctx context.Context, id string) (routine.TaskInstance, error)
	SetInstanceStatus(ctx context.Context, id string, st routine.TaskStatus, at time.Time) error
	ListInstancesByRoutine(ctx context.Context, routineID string) ([]routine.TaskInstance, error)
	// ListInstancesInRange selects a user's instances with
	// from <= scheduledFor < to (UTC instants).
	ListInstancesInRange(ctx context.Context, userID string, from, to time.Time) ([]routine.TaskInstance, error)
	DeleteInstance(ctx context.Context, id string) error
	DeleteInstancesByRoutine(ctx context.Context, routineID string) (int, error)

	// Terminal history and the pending "unmarked" pool.
	InsertHistory(ctx context.Context, rec routine.HistoryRecord) error
	ListHistory(ctx context.Context, userID, routineID string) ([]routine.HistoryRecord, error)
	DeleteHistoryByRoutine(ctx context.Context, routineID string) (int, error)
	InsertUnmarked(ctx context.Context, rec routine.UnmarkedRecord) error
	GetUnmarked(ctx context.Context, id string) (routine.UnmarkedRecord, error)
	ListUnmarked(ctx context.Context, userID string) ([]routine.UnmarkedRecord, error)
	DeleteUnmarked(ctx context.Context, id string) error
	DeleteUnmarkedByRoutine(ctx context.Context, routineID string) (int, error)

	// WithTx runs fn in one transaction. Nested calls reuse the outer
	// transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	Close() error
}
