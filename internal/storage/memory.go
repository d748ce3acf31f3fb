package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"routined/internal/routine"
)

// Memory is an in-process Store with the same transactional semantics as
// the sqlite backend: WithTx snapshots state up front and restores it when
// fn fails, so partial writes are never observed.
//
// It exists for tests and ad-hoc runs; it is safe for concurrent use.
type Memory struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	users     map[string]routine.User
	routines  map[string]routine.Routine
	taskSets  map[string]routine.StageTaskSet
	templates map[string]routine.TaskTemplate
	instances map[string]routine.TaskInstance
	history   map[string]routine.HistoryRecord
	unmarked  map[string]routine.UnmarkedRecord
}

func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

func newMemState() *memState {
	return &memState{
		users:     map[string]routine.User{},
		routines:  map[string]routine.Routine{},
		taskSets:  map[string]routine.StageTaskSet{},
		templates: map[string]routine.TaskTemplate{},
		instances: map[string]routine.TaskInstance{},
		history:   map[string]routine.HistoryRecord{},
		unmarked:  map[string]routine.UnmarkedRecord{},
	}
}

func (s *memState) clone() *memState {
	cp := newMemState()
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.routines {
		cp.routines[k] = copyRoutine(v)
	}
	for k, v := range s.taskSets {
		cp.taskSets[k] = v
	}
	for k, v := range s.templates {
		cp.templates[k] = v
	}
	for k, v := range s.instances {
		cp.instances[k] = v
	}
	for k, v := range s.history {
		cp.history[k] = v
	}
	for k, v := range s.unmarked {
		cp.unmarked[k] = v
	}
	return cp
}

func copyRoutine(r routine.Routine) routine.Routine {
	r.Thresholds = append([]int(nil), r.Thresholds...)
	r.Timeline = append(routine.Timeline(nil), r.Timeline...)
	return r
}

func (m *Memory) Close() error { return nil }

func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	if err := fn(ctx, &memTx{st: m.st}); err != nil {
		m.st = snap
		return err
	}
	return nil
}

// memTx operates on the state without locking; the owning Memory holds the
// lock for the whole transaction. Nested WithTx reuses the same view.
type memTx struct{ st *memState }

func (t *memTx) Close() error { return nil }

func (t *memTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

// Locked wrappers: every Memory method takes the lock and delegates to the
// unlocked memState operation shared with memTx.

func (m *Memory) do(fn func(st *memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

// ---- users ----

func (s *memState) putUser(u routine.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
	return nil
}

func (s *memState) getUser(id string) (routine.User, error) {
	u, ok := s.users[id]
	if !ok {
		return routine.User{}, fmt.Errorf("user %s: %w", id, routine.ErrNotFound)
	}
	return u, nil
}

func (s *memState) listUserIDs(afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *memState) setNextCloseOut(userID string, at time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, routine.ErrNotFound)
	}
	u.NextCloseOutAt = at
	s.users[userID] = u
	return nil
}

func (m *Memory) PutUser(ctx context.Context, u routine.User) error {
	return m.do(func(st *memState) error { return st.putUser(u) })
}
func (t *memTx) PutUser(ctx context.Context, u routine.User) error { return t.st.putUser(u) }

func (m *Memory) GetUser(ctx context.Context, id string) (u routine.User, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getUser(id)
}
func (t *memTx) GetUser(ctx context.Context, id string) (routine.User, error) {
	return t.st.getUser(id)
}

func (m *Memory) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listUserIDs(afterID, limit)
}
func (t *memTx) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	return t.st.listUserIDs(afterID, limit)
}

func (m *Memory) SetNextCloseOut(ctx context.Context, userID string, at time.Time) error {
	return m.do(func(st *memState) error { return st.setNextCloseOut(userID, at) })
}
func (t *memTx) SetNextCloseOut(ctx context.Context, userID string, at time.Time) error {
	return t.st.setNextCloseOut(userID, at)
}

// ---- routines ----

func (s *memState) putRoutine(r routine.Routine) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	// Preserve the stored timeline: PutRoutine never rewrites history.
	if cur, ok := s.routines[r.ID]; ok {
		r.Timeline = cur.Timeline
	}
	s.routines[r.ID] = copyRoutine(r)
	return nil
}

func (s *memState) getRoutine(id string) (routine.Routine, error) {
	r, ok := s.routines[id]
	if !ok {
		return routine.Routine{}, fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}
	return copyRoutine(r), nil
}

func (s *memState) listRoutines(userID string) ([]routine.Routine, error) {
	var out []routine.Routine
	for _, r := range s.routines {
		if r.OwnerID == userID {
			out = append(out, copyRoutine(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memState) setNextMaterialize(routineID string, at time.Time) error {
	r, ok := s.routines[routineID]
	if !ok {
		return fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}
	r.NextMaterializeAt = at
	s.routines[routineID] = r
	return nil
}

func (s *memState) setProgress(routineID string, progress int) error {
	r, ok := s.routines[routineID]
	if !ok {
		return fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}
	if progress < 0 {
		progress = 0
	}
	r.CurrentStageProgress = progress
	s.routines[routineID] = r
	return nil
}

func (s *memState) incrementProgress(routineID string, stage, delta int) (routine.Routine, error) {
	r, ok := s.routines[routineID]
	if !ok {
		return routine.Routine{}, fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}
	if r.Status == routine.StatusActive && r.CurrentStage == stage {
		p := r.CurrentStageProgress + delta
		if p < 0 {
			p = 0
		}
		r.CurrentStageProgress = p
		s.routines[routineID] = r
	}
	return copyRoutine(s.routines[routineID]), nil
}

func (s *memState) appendEvent(routineID string, ev routine.Event) error {
	r, ok := s.routines[routineID]
	if !ok {
		return fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	r.Timeline = r.Timeline.Append(ev.Type, ev.At, ev.StageNumber)
	s.routines[routineID] = r
	return nil
}

func (m *Memory) PutRoutine(ctx context.Context, r routine.Routine) error {
	return m.do(func(st *memState) error { return st.putRoutine(r) })
}
func (t *memTx) PutRoutine(ctx context.Context, r routine.Routine) error { return t.st.putRoutine(r) }

func (m *Memory) GetRoutine(ctx context.Context, id string) (routine.Routine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getRoutine(id)
}
func (t *memTx) GetRoutine(ctx context.Context, id string) (routine.Routine, error) {
	return t.st.getRoutine(id)
}

func (m *Memory) ListRoutines(ctx context.Context, userID string) ([]routine.Routine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listRoutines(userID)
}
func (t *memTx) ListRoutines(ctx context.Context, userID string) ([]routine.Routine, error) {
	return t.st.listRoutines(userID)
}

func (m *Memory) SetNextMaterialize(ctx context.Context, routineID string, at time.Time) error {
	return m.do(func(st *memState) error { return st.setNextMaterialize(routineID, at) })
}
func (t *memTx) SetNextMaterialize(ctx context.Context, routineID string, at time.Time) error {
	return t.st.setNextMaterialize(routineID, at)
}

func (m *Memory) SetProgress(ctx context.Context, routineID string, progress int) error {
	return m.do(func(st *memState) error { return st.setProgress(routineID, progress) })
}
func (t *memTx) SetProgress(ctx context.Context, routineID string, progress int) error {
	return t.st.setProgress(routineID, progress)
}

func (m *Memory) IncrementProgress(ctx context.Context, routineID string, stage, delta int) (routine.Routine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.incrementProgress(routineID, stage, delta)
}
func (t *memTx) IncrementProgress(ctx context.Context, routineID string, stage, delta int) (routine.Routine, error) {
	return t.st.incrementProgress(routineID, stage, delta)
}

func (m *Memory) AppendEvent(ctx context.Context, routineID string, ev routine.Event) error {
	return m.do(func(st *memState) error { return st.appendEvent(routineID, ev) })
}
func (t *memTx) AppendEvent(ctx context.Context, routineID string, ev routine.Event) error {
	return t.st.appendEvent(routineID, ev)
}

// ---- stage task sets and templates ----

func (s *memState) putTaskSet(ts routine.StageTaskSet) error {
	s.taskSets[ts.ID] = ts
	return nil
}

func (s *memState) taskSetForStage(routineID string, stage int) (routine.StageTaskSet, error) {
	for _, ts := range s.taskSets {
		if ts.RoutineID == routineID && ts.StageNumber == stage {
			return ts, nil
		}
	}
	return routine.StageTaskSet{}, fmt.Errorf("task set for routine %s stage %d: %w", routineID, stage, routine.ErrNotFound)
}

func (s *memState) putTemplate(t routine.TaskTemplate) error {
	s.templates[t.ID] = t
	return nil
}

func (s *memState) getTemplate(id string) (routine.TaskTemplate, error) {
	t, ok := s.templates[id]
	if !ok {
		return routine.TaskTemplate{}, fmt.Errorf("template %s: %w", id, routine.ErrNotFound)
	}
	return t, nil
}

func (s *memState) listTemplates(taskSetID string) ([]routine.TaskTemplate, error) {
	var out []routine.TaskTemplate
	for _, t := range s.templates {
		if t.TaskSetID == taskSetID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memState) bumpStreak(templateID string, completed bool) error {
	t, ok := s.templates[templateID]
	if !ok {
		return nil // orphaned reference; archiver tolerates it
	}
	if completed {
		t.Streak++
	} else {
		t.Streak = 0
	}
	s.templates[templateID] = t
	return nil
}

func (m *Memory) PutTaskSet(ctx context.Context, ts routine.StageTaskSet) error {
	return m.do(func(st *memState) error { return st.putTaskSet(ts) })
}
func (t *memTx) PutTaskSet(ctx context.Context, ts routine.StageTaskSet) error {
	return t.st.putTaskSet(ts)
}

func (m *Memory) TaskSetForStage(ctx context.Context, routineID string, stage int) (routine.StageTaskSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.taskSetForStage(routineID, stage)
}
func (t *memTx) TaskSetForStage(ctx context.Context, routineID string, stage int) (routine.StageTaskSet, error) {
	return t.st.taskSetForStage(routineID, stage)
}

func (m *Memory) PutTemplate(ctx context.Context, tp routine.TaskTemplate) error {
	return m.do(func(st *memState) error { return st.putTemplate(tp) })
}
func (t *memTx) PutTemplate(ctx context.Context, tp routine.TaskTemplate) error {
	return t.st.putTemplate(tp)
}

func (m *Memory) GetTemplate(ctx context.Context, id string) (routine.TaskTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getTemplate(id)
}
func (t *memTx) GetTemplate(ctx context.Context, id string) (routine.TaskTemplate, error) {
	return t.st.getTemplate(id)
}

func (m *Memory) ListTemplates(ctx context.Context, taskSetID string) ([]routine.TaskTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listTemplates(taskSetID)
}
func (t *memTx) ListTemplates(ctx context.Context, taskSetID string) ([]routine.TaskTemplate, error) {
	return t.st.listTemplates(taskSetID)
}

func (m *Memory) BumpStreak(ctx context.Context, templateID string, completed bool) error {
	return m.do(func(st *memState) error { return st.bumpStreak(templateID, completed) })
}
func (t *memTx) BumpStreak(ctx context.Context, templateID string, completed bool) error {
	return t.st.bumpStreak(templateID, completed)
}

// ---- task instances ----

func (s *memState) insertInstance(inst routine.TaskInstance) (bool, error) {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}
	if _, ok := s.instances[inst.ID]; ok {
		return false, nil
	}
	if inst.TemplateID != "" {
		for _, cur := range s.instances {
			if cur.UserID == inst.UserID && cur.TemplateID == inst.TemplateID &&
				cur.ScheduledFor.Equal(inst.ScheduledFor) {
				return false, nil
			}
		}
	}
	s.instances[inst.ID] = inst
	return true, nil
}

func (s *memState) getInstance(id string) (routine.TaskInstance, error) {
	inst, ok := s.instances[id]
	if !ok {
		return routine.TaskInstance{}, fmt.Errorf("task %s: %w", id, routine.ErrNotFound)
	}
	return inst, nil
}

func (s *memState) setInstanceStatus(id string, st routine.TaskStatus, at time.Time) error {
	inst, ok := s.instances[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, routine.ErrNotFound)
	}
	inst.Status = st
	switch st {
	case routine.TaskCompleted:
		inst.CompletedAt = at
		inst.MissedAt = time.Time{}
	case routine.TaskMissed:
		inst.MissedAt = at
		inst.CompletedAt = time.Time{}
	default:
		inst.CompletedAt = time.Time{}
		inst.MissedAt = time.Time{}
	}
	s.instances[id] = inst
	return nil
}

func (s *memState) listInstancesByRoutine(routineID string) ([]routine.TaskInstance, error) {
	var out []routine.TaskInstance
	for _, inst := range s.instances {
		if inst.RoutineID == routineID {
			out = append(out, inst)
		}
	}
	sortInstances(out)
	return out, nil
}

func (s *memState) listInstancesInRange(userID string, from, to time.Time) ([]routine.TaskInstance, error) {
	var out []routine.TaskInstance
	for _, inst := range s.instances {
		if inst.UserID != userID {
			continue
		}
		if inst.ScheduledFor.Before(from) || !inst.ScheduledFor.Before(to) {
			continue
		}
		out = append(out, inst)
	}
	sortInstances(out)
	return out, nil
}

func sortInstances(out []routine.TaskInstance) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})
}

func (s *memState) deleteInstance(id string) error {
	delete(s.instances, id)
	return nil
}

func (s *memState) deleteInstancesByRoutine(routineID string) (int, error) {
	n := 0
	for id, inst := range s.instances {
		if inst.RoutineID == routineID {
			delete(s.instances, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertInstance(ctx context.Context, inst routine.TaskInstance) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertInstance(inst)
}
func (t *memTx) InsertInstance(ctx context.Context, inst routine.TaskInstance) (bool, error) {
	return t.st.insertInstance(inst)
}

func (m *Memory) GetInstance(ctx context.Context, id string) (routine.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getInstance(id)
}
func (t *memTx) GetInstance(ctx context.Context, id string) (routine.TaskInstance, error) {
	return t.st.getInstance(id)
}

func (m *Memory) SetInstanceStatus(ctx context.Context, id string, st routine.TaskStatus, at time.Time) error {
	return m.do(func(ms *memState) error { return ms.setInstanceStatus(id, st, at) })
}
func (t *memTx) SetInstanceStatus(ctx context.Context, id string, st routine.TaskStatus, at time.Time) error {
	return t.st.setInstanceStatus(id, st, at)
}

func (m *Memory) ListInstancesByRoutine(ctx context.Context, routineID string) ([]routine.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listInstancesByRoutine(routineID)
}
func (t *memTx) ListInstancesByRoutine(ctx context.Context, routineID string) ([]routine.TaskInstance, error) {
	return t.st.listInstancesByRoutine(routineID)
}

func (m *Memory) ListInstancesInRange(ctx context.Context, userID string, from, to time.Time) ([]routine.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listInstancesInRange(userID, from, to)
}
func (t *memTx) ListInstancesInRange(ctx context.Context, userID string, from, to time.Time) ([]routine.TaskInstance, error) {
	return t.st.listInstancesInRange(userID, from, to)
}

func (m *Memory) DeleteInstance(ctx context.Context, id string) error {
	return m.do(func(st *memState) error { return st.deleteInstance(id) })
}
func (t *memTx) DeleteInstance(ctx context.Context, id string) error {
	return t.st.deleteInstance(id)
}

func (m *Memory) DeleteInstancesByRoutine(ctx context.Context, routineID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteInstancesByRoutine(routineID)
}
func (t *memTx) DeleteInstancesByRoutine(ctx context.Context, routineID string) (int, error) {
	return t.st.deleteInstancesByRoutine(routineID)
}

// ---- history and unmarked ----

func (s *memState) insertHistory(rec routine.HistoryRecord) error {
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}
	if _, ok := s.history[rec.ID]; ok {
		return fmt.Errorf("history record %s already exists", rec.ID)
	}
	s.history[rec.ID] = rec
	return nil
}

func (s *memState) listHistory(userID, routineID string) ([]routine.HistoryRecord, error) {
	var out []routine.HistoryRecord
	for _, rec := range s.history {
		if rec.UserID == userID && rec.RoutineID == routineID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ArchivedAt.Equal(out[j].ArchivedAt) {
			return out[i].ArchivedAt.Before(out[j].ArchivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memState) deleteHistoryByRoutine(routineID string) (int, error) {
	n := 0
	for id, rec := range s.history {
		if rec.RoutineID == routineID {
			delete(s.history, id)
			n++
		}
	}
	return n, nil
}

func (s *memState) insertUnmarked(rec routine.UnmarkedRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.unmarked[rec.ID] = rec
	return nil
}

func (s *memState) getUnmarked(id string) (routine.UnmarkedRecord, error) {
	rec, ok := s.unmarked[id]
	if !ok {
		return routine.UnmarkedRecord{}, fmt.Errorf("unmarked record %s: %w", id, routine.ErrNotFound)
	}
	return rec, nil
}

func (s *memState) listUnmarked(userID string) ([]routine.UnmarkedRecord, error) {
	var out []routine.UnmarkedRecord
	for _, rec := range s.unmarked {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memState) deleteUnmarked(id string) error {
	delete(s.unmarked, id)
	return nil
}

func (s *memState) deleteUnmarkedByRoutine(routineID string) (int, error) {
	n := 0
	for id, rec := range s.unmarked {
		if rec.RoutineID == routineID {
			delete(s.unmarked, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertHistory(ctx context.Context, rec routine.HistoryRecord) error {
	return m.do(func(st *memState) error { return st.insertHistory(rec) })
}
func (t *memTx) InsertHistory(ctx context.Context, rec routine.HistoryRecord) error {
	return t.st.insertHistory(rec)
}

func (m *Memory) ListHistory(ctx context.Context, userID, routineID string) ([]routine.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listHistory(userID, routineID)
}
func (t *memTx) ListHistory(ctx context.Context, userID, routineID string) ([]routine.HistoryRecord, error) {
	return t.st.listHistory(userID, routineID)
}

func (m *Memory) DeleteHistoryByRoutine(ctx context.Context, routineID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteHistoryByRoutine(routineID)
}
func (t *memTx) DeleteHistoryByRoutine(ctx context.Context, routineID string) (int, error) {
	return t.st.deleteHistoryByRoutine(routineID)
}

func (m *Memory) InsertUnmarked(ctx context.Context, rec routine.UnmarkedRecord) error {
	return m.do(func(st *memState) error { return st.insertUnmarked(rec) })
}
func (t *memTx) InsertUnmarked(ctx context.Context, rec routine.UnmarkedRecord) error {
	return t.st.insertUnmarked(rec)
}

func (m *Memory) GetUnmarked(ctx context.Context, id string) (routine.UnmarkedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getUnmarked(id)
}
func (t *memTx) GetUnmarked(ctx context.Context, id string) (routine.UnmarkedRecord, error) {
	return t.st.getUnmarked(id)
}

func (m *Memory) ListUnmarked(ctx context.Context, userID string) ([]routine.UnmarkedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listUnmarked(userID)
}
func (t *memTx) ListUnmarked(ctx context.Context, userID string) ([]routine.UnmarkedRecord, error) {
	return t.st.listUnmarked(userID)
}

func (m *Memory) DeleteUnmarked(ctx context.Context, id string) error {
	return m.do(func(st *memState) error { return st.deleteUnmarked(id) })
}
func (t *memTx) DeleteUnmarked(ctx context.Context, id string) error {
	return t.st.deleteUnmarked(id)
}

func (m *Memory) DeleteUnmarkedByRoutine(ctx context.Context, routineID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteUnmarkedByRoutine(routineID)
}
func (t *memTx) DeleteUnmarkedByRoutine(ctx context.Context, routineID string) (int, error) {
	return t.st.deleteUnmarkedByRoutine(routineID)
}
