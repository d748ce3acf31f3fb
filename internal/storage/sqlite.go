package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"routined/internal/routine"
	"routined/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// dbtx is the subset of *sql.DB / *sql.Tx the store runs on, so every query
// method works both inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteStore struct {
	db   *sql.DB
	q    dbtx
	log  logx.Logger
	inTx bool
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, q: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil || s.inTx {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	ts := &sqliteStore{db: s.db, q: tx, log: s.log, inTx: true}
	if err := fn(ctx, ts); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ---- users ----

func (s *sqliteStore) PutUser(ctx context.Context, u routine.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users(id, timezone, next_close_out_at, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET timezone=excluded.timezone,
		   next_close_out_at=excluded.next_close_out_at`,
		u.ID, u.Timezone, fmtTime(u.NextCloseOutAt), fmtTime(u.CreatedAt))
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, id string) (routine.User, error) {
	var u routine.User
	var closeOut, created sql.NullString
	err := s.q.QueryRowContext(ctx,
		`SELECT id, timezone, next_close_out_at, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Timezone, &closeOut, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return routine.User{}, fmt.Errorf("user %s: %w", id, routine.ErrNotFound)
	}
	if err != nil {
		return routine.User{}, err
	}
	u.NextCloseOutAt = parseTime(closeOut)
	u.CreatedAt = parseTime(created)
	return u, nil
}

func (s *sqliteStore) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT id FROM users WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) SetNextCloseOut(ctx context.Context, userID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE users SET next_close_out_at = ? WHERE id = ?`, fmtTime(at), userID)
	return err
}

// ---- routines ----

func (s *sqliteStore) PutRoutine(ctx context.Context, r routine.Routine) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	th, err := json.Marshal(r.Thresholds)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO routines(id, owner_id, title, stages, thresholds, current_stage,
		   current_progress, status, next_materialize_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   title=excluded.title, stages=excluded.stages, thresholds=excluded.thresholds,
		   current_stage=excluded.current_stage, current_progress=excluded.current_progress,
		   status=excluded.status, next_materialize_at=excluded.next_materialize_at`,
		r.ID, r.OwnerID, r.Title, r.Stages, string(th), r.CurrentStage,
		r.CurrentStageProgress, string(r.Status), fmtTime(r.NextMaterializeAt), fmtTime(r.CreatedAt))
	return err
}

const routineCols = `id, owner_id, title, stages, thresholds, current_stage,
  current_progress, status, next_materialize_at, created_at`

func (s *sqliteStore) scanRoutine(row interface{ Scan(dest ...any) error }) (routine.Routine, error) {
	var r routine.Routine
	var th string
	var status string
	var nextMat, created sql.NullString
	err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Stages, &th, &r.CurrentStage,
		&r.CurrentStageProgress, &status, &nextMat, &created)
	if err != nil {
		return routine.Routine{}, err
	}
	if err := json.Unmarshal([]byte(th), &r.Thresholds); err != nil {
		return routine.Routine{}, fmt.Errorf("routine %s: thresholds: %w", r.ID, err)
	}
	r.Status = routine.Status(status)
	r.NextMaterializeAt = parseTime(nextMat)
	r.CreatedAt = parseTime(created)
	return r, nil
}

func (s *sqliteStore) GetRoutine(ctx context.Context, id string) (routine.Routine, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+routineCols+` FROM routines WHERE id = ?`, id)
	r, err := s.scanRoutine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return routine.Routine{}, fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}
	if err != nil {
		return routine.Routine{}, err
	}
	if r.Timeline, err = s.loadTimeline(ctx, id); err != nil {
		return routine.Routine{}, err
	}
	return r, nil
}

func (s *sqliteStore) ListRoutines(ctx context.Context, userID string) ([]routine.Routine, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+routineCols+` FROM routines WHERE owner_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []routine.Routine
	for rows.Next() {
		r, err := s.scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Timeline, err = s.loadTimeline(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *sqliteStore) SetNextMaterialize(ctx context.Context, routineID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE routines SET next_materialize_at = ? WHERE id = ?`, fmtTime(at), routineID)
	return err
}

func (s *sqliteStore) SetProgress(ctx context.Context, routineID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	_, err := s.q.ExecContext(ctx,
		`UPDATE routines SET current_progress = ? WHERE id = ?`, progress, routineID)
	return err
}

func (s *sqliteStore) IncrementProgress(ctx context.Context, routineID string, stage, delta int) (routine.Routine, error) {
	// Single conditional clamped update: lost updates from concurrent
	// completions on the same routine are impossible at this level.
	_, err := s.q.ExecContext(ctx,
		`UPDATE routines SET current_progress = MAX(0, current_progress + ?)
		 WHERE id = ? AND status = 'active' AND current_stage = ?`,
		delta, routineID, stage)
	if err != nil {
		return routine.Routine{}, err
	}
	return s.GetRoutine(ctx, routineID)
}

// ---- timeline ----

func (s *sqliteStore) AppendEvent(ctx context.Context, routineID string, ev routine.Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO routine_events(routine_id, seq, type, at, stage_number)
		 VALUES(?, (SELECT COALESCE(MAX(seq),0)+1 FROM routine_events WHERE routine_id = ?), ?, ?, ?)`,
		routineID, routineID, string(ev.Type), fmtTime(ev.At), ev.StageNumber)
	return err
}

func (s *sqliteStore) loadTimeline(ctx context.Context, routineID string) (routine.Timeline, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT type, at, stage_number FROM routine_events WHERE routine_id = ? ORDER BY seq`, routineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tl routine.Timeline
	for rows.Next() {
		var typ string
		var at sql.NullString
		var stage int
		if err := rows.Scan(&typ, &at, &stage); err != nil {
			return nil, err
		}
		tl = append(tl, routine.Event{Type: routine.EventType(typ), At: parseTime(at), StageNumber: stage})
	}
	return tl, rows.Err()
}

// ---- stage task sets and templates ----

func (s *sqliteStore) PutTaskSet(ctx context.Context, ts routine.StageTaskSet) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO stage_task_sets(id, routine_id, stage_number, hour, minute)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET hour=excluded.hour, minute=excluded.minute`,
		ts.ID, ts.RoutineID, ts.StageNumber, ts.Hour, ts.Minute)
	return err
}

func (s *sqliteStore) TaskSetForStage(ctx context.Context, routineID string, stage int) (routine.StageTaskSet, error) {
	var ts routine.StageTaskSet
	err := s.q.QueryRowContext(ctx,
		`SELECT id, routine_id, stage_number, hour, minute FROM stage_task_sets
		 WHERE routine_id = ? AND stage_number = ?`, routineID, stage).
		Scan(&ts.ID, &ts.RoutineID, &ts.StageNumber, &ts.Hour, &ts.Minute)
	if errors.Is(err, sql.ErrNoRows) {
		return routine.StageTaskSet{}, fmt.Errorf("task set for routine %s stage %d: %w", routineID, stage, routine.ErrNotFound)
	}
	if err != nil {
		return routine.StageTaskSet{}, err
	}
	return ts, nil
}

func (s *sqliteStore) PutTemplate(ctx context.Context, t routine.TaskTemplate) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO task_templates(id, task_set_id, routine_id, stage_number, title, optional, ord, streak)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, optional=excluded.optional,
		   ord=excluded.ord, streak=excluded.streak`,
		t.ID, t.TaskSetID, t.RoutineID, t.StageNumber, t.Title, boolInt(t.Optional), t.Order, t.Streak)
	return err
}

func (s *sqliteStore) GetTemplate(ctx context.Context, id string) (routine.TaskTemplate, error) {
	var t routine.TaskTemplate
	var optional int
	err := s.q.QueryRowContext(ctx,
		`SELECT id, task_set_id, routine_id, stage_number, title, optional, ord, streak
		 FROM task_templates WHERE id = ?`, id).
		Scan(&t.ID, &t.TaskSetID, &t.RoutineID, &t.StageNumber, &t.Title, &optional, &t.Order, &t.Streak)
	if errors.Is(err, sql.ErrNoRows) {
		return routine.TaskTemplate{}, fmt.Errorf("template %s: %w", id, routine.ErrNotFound)
	}
	if err != nil {
		return routine.TaskTemplate{}, err
	}
	t.Optional = optional != 0
	return t, nil
}

func (s *sqliteStore) ListTemplates(ctx context.Context, taskSetID string) ([]routine.TaskTemplate, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, task_set_id, routine_id, stage_number, title, optional, ord, streak
		 FROM task_templates WHERE task_set_id = ? ORDER BY ord, id`, taskSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []routine.TaskTemplate
	for rows.Next() {
		var t routine.TaskTemplate
		var optional int
		if err := rows.Scan(&t.ID, &t.TaskSetID, &t.RoutineID, &t.StageNumber, &t.Title, &optional, &t.Order, &t.Streak); err != nil {
			return nil, err
		}
		t.Optional = optional != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) BumpStreak(ctx context.Context, templateID string, completed bool) error {
	var err error
	if completed {
		_, err = s.q.ExecContext(ctx,
			`UPDATE task_templates SET streak = streak + 1 WHERE id = ?`, templateID)
	} else {
		_, err = s.q.ExecContext(ctx,
			`UPDATE task_templates SET streak = 0 WHERE id = ?`, templateID)
	}
	return err
}

// ---- task instances ----

func (s *sqliteStore) InsertInstance(ctx context.Context, inst routine.TaskInstance) (bool, error) {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}
	// OR IGNORE rides on the partial unique index over
	// (user_id, template_id, scheduled_for): re-materializing is a no-op.
	res, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_instances(id, user_id, routine_id, template_id, title,
		   optional, status, scheduled_for, completed_at, missed_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		inst.ID, inst.UserID, inst.RoutineID, nullStr(inst.TemplateID), inst.Title,
		boolInt(inst.Optional), string(inst.Status), fmtTime(inst.ScheduledFor),
		fmtTime(inst.CompletedAt), fmtTime(inst.MissedAt), fmtTime(inst.CreatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const instanceCols = `id, user_id, routine_id, template_id, title, optional,
  status, scheduled_for, completed_at, missed_at, created_at`

func scanInstance(row interface{ Scan(dest ...any) error }) (routine.TaskInstance, error) {
	var inst routine.TaskInstance
	var tmpl sql.NullString
	var optional int
	var status string
	var sched, completed, missed, created sql.NullString
	err := row.Scan(&inst.ID, &inst.UserID, &inst.RoutineID, &tmpl, &inst.Title,
		&optional, &status, &sched, &completed, &missed, &created)
	if err != nil {
		return routine.TaskInstance{}, err
	}
	inst.TemplateID = tmpl.String
	inst.Optional = optional != 0
	inst.Status = routine.TaskStatus(status)
	inst.ScheduledFor = parseTime(sched)
	inst.CompletedAt = parseTime(completed)
	inst.MissedAt = parseTime(missed)
	inst.CreatedAt = parseTime(created)
	return inst, nil
}

func (s *sqliteStore) GetInstance(ctx context.Context, id string) (routine.TaskInstance, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM task_instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return routine.TaskInstance{}, fmt.Errorf("task %s: %w", id, routine.ErrNotFound)
	}
	return inst, err
}

func (s *sqliteStore) SetInstanceStatus(ctx context.Context, id string, st routine.TaskStatus, at time.Time) error {
	var res sql.Result
	var err error
	switch st {
	case routine.TaskCompleted:
		res, err = s.q.ExecContext(ctx,
			`UPDATE task_instances SET status = ?, completed_at = ?, missed_at = NULL WHERE id = ?`,
			string(st), fmtTime(at), id)
	case routine.TaskMissed:
		res, err = s.q.ExecContext(ctx,
			`UPDATE task_instances SET status = ?, missed_at = ?, completed_at = NULL WHERE id = ?`,
			string(st), fmtTime(at), id)
	default:
		res, err = s.q.ExecContext(ctx,
			`UPDATE task_instances SET status = ?, completed_at = NULL, missed_at = NULL WHERE id = ?`,
			string(st), id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, routine.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) ListInstancesByRoutine(ctx context.Context, routineID string) ([]routine.TaskInstance, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+instanceCols+` FROM task_instances WHERE routine_id = ? ORDER BY scheduled_for, id`, routineID)
	if err != nil {
		return nil, err
	}
	return collectInstances(rows)
}

func (s *sqliteStore) ListInstancesInRange(ctx context.Context, userID string, from, to time.Time) ([]routine.TaskInstance, error) {
	// Stored times are fixed-width UTC strings (see timeFormat), so the
	// range comparison and ORDER BY work byte-wise.
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+instanceCols+` FROM task_instances
		 WHERE user_id = ? AND scheduled_for >= ? AND scheduled_for < ?
		 ORDER BY scheduled_for, id`,
		userID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	return collectInstances(rows)
}

func collectInstances(rows *sql.Rows) ([]routine.TaskInstance, error) {
	defer rows.Close()
	var out []routine.TaskInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteInstance(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM task_instances WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) DeleteInstancesByRoutine(ctx context.Context, routineID string) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM task_instances WHERE routine_id = ?`, routineID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- history and unmarked ----

func (s *sqliteStore) InsertHistory(ctx context.Context, rec routine.HistoryRecord) error {
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO history_records(id, user_id, routine_id, template_id, title, status,
		   scheduled_for, completed_at, missed_at, archived_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.RoutineID, nullStr(rec.TemplateID), rec.Title, string(rec.Status),
		fmtTime(rec.ScheduledFor), fmtTime(rec.CompletedAt), fmtTime(rec.MissedAt), fmtTime(rec.ArchivedAt))
	return err
}

func (s *sqliteStore) ListHistory(ctx context.Context, userID, routineID string) ([]routine.HistoryRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, routine_id, template_id, title, status, scheduled_for,
		   completed_at, missed_at, archived_at
		 FROM history_records WHERE user_id = ? AND routine_id = ?
		 ORDER BY archived_at, id`, userID, routineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []routine.HistoryRecord
	for rows.Next() {
		var rec routine.HistoryRecord
		var tmpl sql.NullString
		var status string
		var sched, completed, missed, archived sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RoutineID, &tmpl, &rec.Title, &status,
			&sched, &completed, &missed, &archived); err != nil {
			return nil, err
		}
		rec.TemplateID = tmpl.String
		rec.Status = routine.HistoryStatus(status)
		rec.ScheduledFor = parseTime(sched)
		rec.CompletedAt = parseTime(completed)
		rec.MissedAt = parseTime(missed)
		rec.ArchivedAt = parseTime(archived)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteHistoryByRoutine(ctx context.Context, routineID string) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM history_records WHERE routine_id = ?`, routineID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) InsertUnmarked(ctx context.Context, rec routine.UnmarkedRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO unmarked_records(id, user_id, routine_id, template_id, title, optional,
		   scheduled_for, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.RoutineID, nullStr(rec.TemplateID), rec.Title,
		boolInt(rec.Optional), fmtTime(rec.ScheduledFor), fmtTime(rec.CreatedAt))
	return err
}

func (s *sqliteStore) GetUnmarked(ctx context.Context, id string) (routine.UnmarkedRecord, error) {
	var rec routine.UnmarkedRecord
	var tmpl sql.NullString
	var optional int
	var sched, created sql.NullString
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, routine_id, template_id, title, optional, scheduled_for, created_at
		 FROM unmarked_records WHERE id = ?`, id).
		Scan(&rec.ID, &rec.UserID, &rec.RoutineID, &tmpl, &rec.Title, &optional, &sched, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return routine.UnmarkedRecord{}, fmt.Errorf("unmarked record %s: %w", id, routine.ErrNotFound)
	}
	if err != nil {
		return routine.UnmarkedRecord{}, err
	}
	rec.TemplateID = tmpl.String
	rec.Optional = optional != 0
	rec.ScheduledFor = parseTime(sched)
	rec.CreatedAt = parseTime(created)
	return rec, nil
}

func (s *sqliteStore) ListUnmarked(ctx context.Context, userID string) ([]routine.UnmarkedRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, routine_id, template_id, title, optional, scheduled_for, created_at
		 FROM unmarked_records WHERE user_id = ? ORDER BY scheduled_for, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []routine.UnmarkedRecord
	for rows.Next() {
		var rec routine.UnmarkedRecord
		var tmpl sql.NullString
		var optional int
		var sched, created sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RoutineID, &tmpl, &rec.Title, &optional, &sched, &created); err != nil {
			return nil, err
		}
		rec.TemplateID = tmpl.String
		rec.Optional = optional != 0
		rec.ScheduledFor = parseTime(sched)
		rec.CreatedAt = parseTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteUnmarked(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM unmarked_records WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) DeleteUnmarkedByRoutine(ctx context.Context, routineID string) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM unmarked_records WHERE routine_id = ?`, routineID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- helpers ----

// timeFormat is RFC 3339 with a fixed nine-digit fraction. RFC3339Nano
// trims trailing zeros, which breaks lexicographic ordering ("00:00:00Z"
// sorts after "00:00:00.5Z"); the fixed width keeps string order equal to
// time order for the stored UTC values.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
