package control

import (
	"context"
	"errors"
	"sync"
	"testing"

	"routined/internal/eventbus"
	"routined/internal/localtime"
	"routined/internal/routine"
	"routined/internal/services/materializer"
	"routined/internal/storage"
	"routined/pkg/logx"
)

type fixture struct {
	ctl *Service
	mat *materializer.Service
	st  storage.Store
	r   routine.Routine
}

func intp(v int) *int { return &v }

// threeStageSpec has thresholds 1/1/1 so single completions unlock advances.
func threeStageSpec() RoutineSpec {
	return RoutineSpec{
		Title: "morning",
		Stages: []StageSpec{
			{Threshold: 1, Hour: intp(5), Tasks: []TaskSpec{{Title: "stretch"}, {Title: "journal", Optional: true}}},
			{Threshold: 1, Hour: intp(6), Tasks: []TaskSpec{{Title: "run"}}},
			{Threshold: 1, Hour: intp(7), Tasks: []TaskSpec{{Title: "meditate"}}},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory()
	tz := localtime.NewResolver(logx.Nop())
	bus := eventbus.New()
	mat := materializer.New(materializer.Config{}, logx.Nop(), st, tz, nil, bus)
	ctl := New(logx.Nop(), st, tz, mat, bus)

	if _, err := ctl.EnrollUser(ctx, "u1", "UTC"); err != nil {
		t.Fatal(err)
	}
	r, err := ctl.CreateRoutine(ctx, "u1", threeStageSpec())
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{ctl: ctl, mat: mat, st: st, r: r}
}

// serveToday materializes the current stage's tasks at the current moment
// and returns them keyed by title.
func (f *fixture) serveToday(t *testing.T) map[string]routine.TaskInstance {
	t.Helper()
	ctx := context.Background()
	if _, err := f.mat.ServeNow(ctx, "u1", f.r.ID); err != nil {
		t.Fatal(err)
	}
	insts, err := f.st.ListInstancesByRoutine(ctx, f.r.ID)
	if err != nil {
		t.Fatal(err)
	}
	byTitle := map[string]routine.TaskInstance{}
	for _, inst := range insts {
		byTitle[inst.Title] = inst
	}
	return byTitle
}

func TestEnrollUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.ctl.EnrollUser(ctx, "u2", "Asia/Jakarta")
	if err != nil {
		t.Fatal(err)
	}
	if u.Timezone != "Asia/Jakarta" {
		t.Fatalf("timezone = %s", u.Timezone)
	}

	u, err = f.ctl.EnrollUser(ctx, "u3", "Nowhere/Invalid")
	if err != nil {
		t.Fatal(err)
	}
	if u.Timezone != "UTC" {
		t.Fatalf("invalid timezone stored as %s, want UTC", u.Timezone)
	}

	if _, err := f.ctl.EnrollUser(ctx, "  ", "UTC"); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("blank user id error = %v, want ErrInvalidState", err)
	}
}

func TestCreateRoutine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if f.r.Stages != 3 || f.r.CurrentStage != 1 || f.r.Status != routine.StatusActive {
		t.Fatalf("unexpected routine: %+v", f.r)
	}
	if _, ok := f.r.Timeline.Latest(routine.EventCreated); !ok {
		t.Fatal("created event missing from timeline")
	}

	ts, err := f.st.TaskSetForStage(ctx, f.r.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ts.Hour != 5 {
		t.Fatalf("stage 1 hour = %d, want 5", ts.Hour)
	}
	tmpls, err := f.st.ListTemplates(ctx, ts.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tmpls) != 2 {
		t.Fatalf("stage 1 templates = %d, want 2", len(tmpls))
	}

	// Unknown user and malformed specs are rejected.
	if _, err := f.ctl.CreateRoutine(ctx, "ghost", threeStageSpec()); !errors.Is(err, routine.ErrNotFound) {
		t.Fatalf("unknown user error = %v, want ErrNotFound", err)
	}
	if _, err := f.ctl.CreateRoutine(ctx, "u1", RoutineSpec{Title: "x"}); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("stage-less spec error = %v, want ErrInvalidState", err)
	}
	bad := threeStageSpec()
	bad.Stages[0].Threshold = -1
	if _, err := f.ctl.CreateRoutine(ctx, "u1", bad); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("negative threshold error = %v, want ErrInvalidState", err)
	}
	bad = threeStageSpec()
	bad.Stages[0].Hour = intp(24)
	if _, err := f.ctl.CreateRoutine(ctx, "u1", bad); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("out-of-range hour error = %v, want ErrInvalidState", err)
	}
}

func TestCreateRoutineServingSlots(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.ctl.CreateRoutine(ctx, "u1", RoutineSpec{
		Title: "night owl",
		Stages: []StageSpec{
			{Threshold: 1, Hour: intp(0), Minute: intp(0), Tasks: []TaskSpec{{Title: "wind down"}}},
			{Threshold: 1, Tasks: []TaskSpec{{Title: "sleep in"}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// An explicit 00:00 stays midnight.
	ts, err := f.st.TaskSetForStage(ctx, r.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ts.Hour != 0 || ts.Minute != 0 {
		t.Fatalf("stage 1 slot = %02d:%02d, want 00:00", ts.Hour, ts.Minute)
	}
	// An unset slot gets the 05:00 default.
	ts, err = f.st.TaskSetForStage(ctx, r.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ts.Hour != 5 || ts.Minute != 0 {
		t.Fatalf("stage 2 slot = %02d:%02d, want 05:00", ts.Hour, ts.Minute)
	}
}

func TestUpdateTaskStatusProgress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	// Completing the required task counts.
	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}
	rep, err := f.ctl.Progress(ctx, "u1", f.r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.CurrentStageProgress != 1 || !rep.CanAdvance {
		t.Fatalf("report after completion = %+v", rep)
	}

	// Completing the optional task does not count.
	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["journal"].ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}
	rep, _ = f.ctl.Progress(ctx, "u1", f.r.ID)
	if rep.CurrentStageProgress != 1 {
		t.Fatalf("optional completion counted: %d", rep.CurrentStageProgress)
	}

	// Un-completing rewinds.
	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskTodo); err != nil {
		t.Fatal(err)
	}
	rep, _ = f.ctl.Progress(ctx, "u1", f.r.ID)
	if rep.CurrentStageProgress != 0 || rep.CanAdvance {
		t.Fatalf("report after rewind = %+v", rep)
	}

	// Timestamps follow the status.
	inst, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskMissed)
	if err != nil {
		t.Fatal(err)
	}
	if inst.MissedAt.IsZero() || !inst.CompletedAt.IsZero() {
		t.Fatalf("missed instance timestamps: %+v", inst)
	}
}

func TestUpdateTaskStatusGuards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, "sideways"); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("bogus status error = %v, want ErrInvalidState", err)
	}

	if _, err := f.ctl.EnrollUser(ctx, "intruder", "UTC"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctl.UpdateTaskStatus(ctx, "intruder", tasks["stretch"].ID, routine.TaskCompleted); !errors.Is(err, routine.ErrNotFound) {
		t.Fatalf("foreign task error = %v, want ErrNotFound", err)
	}
}

func TestImmutabilityAfterAdvance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}

	// Preview warns about the stage-1 tasks before the advance.
	p, err := f.ctl.ImmutabilityPreview(ctx, "u1", f.r.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Count != 2 || len(p.AffectedStages) != 1 || p.AffectedStages[0] != 1 {
		t.Fatalf("preview = %+v", p)
	}

	if _, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 2); err != nil {
		t.Fatal(err)
	}

	// The stage-1 instance is now locked, even to un-complete.
	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskTodo); !errors.Is(err, routine.ErrImmutableTask) {
		t.Fatalf("superseded task update error = %v, want ErrImmutableTask", err)
	}

	// Custom tasks never lock.
	custom, err := f.ctl.CreateCustomTask(ctx, "u1", f.r.ID, "water plants", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", custom.ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}
	// And never count toward progress.
	rep, _ := f.ctl.Progress(ctx, "u1", f.r.ID)
	if rep.CurrentStageProgress != 0 {
		t.Fatalf("custom completion counted: %d", rep.CurrentStageProgress)
	}
}

func TestAdvanceStage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	// Threshold not met yet.
	if _, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 2); !errors.Is(err, routine.ErrThresholdNotMet) {
		t.Fatalf("early advance error = %v, want ErrThresholdNotMet", err)
	}

	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}

	// Only the next stage is a valid target.
	if _, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 3); !errors.Is(err, routine.ErrSequentialStageViolation) {
		t.Fatalf("skip-ahead error = %v, want ErrSequentialStageViolation", err)
	}
	if _, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 1); !errors.Is(err, routine.ErrSequentialStageViolation) {
		t.Fatalf("backward error = %v, want ErrSequentialStageViolation", err)
	}

	r, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if r.CurrentStage != 2 || r.CurrentStageProgress != 0 {
		t.Fatalf("after advance: stage %d progress %d", r.CurrentStage, r.CurrentStageProgress)
	}
	ev, ok := r.Timeline.Latest(routine.EventStageAdvanced)
	if !ok || ev.StageNumber != 2 {
		t.Fatalf("stage_advanced event = %+v ok=%v", ev, ok)
	}
}

func TestAdvanceStageConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}

	// Two clients race the same advance from the same stage-1 snapshot.
	// Exactly one may move the stage; the other must fail its target check
	// against the committed state instead of stacking a second advance.
	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 2)
		}(i)
	}
	close(start)
	wg.Wait()

	r, err := f.st.GetRoutine(ctx, f.r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r.CurrentStage != 2 {
		t.Fatalf("stage = %d after racing advances, want 2", r.CurrentStage)
	}
	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, routine.ErrSequentialStageViolation):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("winners = %d, losers = %d, want 1 and 1 (%v)", won, lost, errs)
	}
}

func TestUpdateTaskStatusConcurrentCompletes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	// Two racing completions of one required task: whichever applies second
	// sees the task already completed and must not add a second +1.
	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskCompleted)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	rep, err := f.ctl.Progress(ctx, "u1", f.r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.CurrentStageProgress != 1 {
		t.Fatalf("progress = %d after racing completions, want 1", rep.CurrentStageProgress)
	}
}

func TestAdvanceFinalStageFinishes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// Walk to the final stage by meeting each threshold directly.
	for stage := 1; stage <= 2; stage++ {
		if err := f.st.SetProgress(ctx, f.r.ID, 1); err != nil {
			t.Fatal(err)
		}
		if _, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, stage+1); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.st.SetProgress(ctx, f.r.ID, 1); err != nil {
		t.Fatal(err)
	}
	r, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 4)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != routine.StatusFinished {
		t.Fatalf("status = %s, want finished", r.Status)
	}
	if _, ok := r.Timeline.Latest(routine.EventFinished); !ok {
		t.Fatal("finished event missing")
	}

	// Finished routines accept no further control operations.
	if _, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 5); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("advance after finish error = %v, want ErrInvalidState", err)
	}
	if err := f.ctl.Reset(ctx, "u1", f.r.ID); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("reset after finish error = %v, want ErrInvalidState", err)
	}
}

func TestPauseDiscardsTodayAndRewinds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}
	if err := f.ctl.Pause(ctx, "u1", f.r.ID); err != nil {
		t.Fatal(err)
	}

	r, _ := f.st.GetRoutine(ctx, f.r.ID)
	if r.Status != routine.StatusPaused {
		t.Fatalf("status = %s, want paused", r.Status)
	}
	if r.CurrentStageProgress != 0 {
		t.Fatalf("progress = %d, want 0 after rewind", r.CurrentStageProgress)
	}
	insts, _ := f.st.ListInstancesByRoutine(ctx, f.r.ID)
	if len(insts) != 0 {
		t.Fatalf("today's instances survived the pause: %d", len(insts))
	}
	if _, ok := r.Timeline.Latest(routine.EventPaused); !ok {
		t.Fatal("paused event missing")
	}

	// Pausing twice is invalid.
	if err := f.ctl.Pause(ctx, "u1", f.r.ID); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("double pause error = %v, want ErrInvalidState", err)
	}
}

func TestResumeServesImmediately(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.serveToday(t)

	if err := f.ctl.Pause(ctx, "u1", f.r.ID); err != nil {
		t.Fatal(err)
	}
	n, err := f.ctl.Resume(ctx, "u1", f.r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("resume served %d tasks, want 2", n)
	}

	r, _ := f.st.GetRoutine(ctx, f.r.ID)
	if r.Status != routine.StatusActive {
		t.Fatalf("status = %s, want active", r.Status)
	}
	if _, ok := r.Timeline.Latest(routine.EventResumed); !ok {
		t.Fatal("resumed event missing")
	}

	if _, err := f.ctl.Resume(ctx, "u1", f.r.ID); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("resume of active routine error = %v, want ErrInvalidState", err)
	}
}

func TestAbandonAndReset(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctl.AdvanceStage(ctx, "u1", f.r.ID, 2); err != nil {
		t.Fatal(err)
	}
	if err := f.ctl.Abandon(ctx, "u1", f.r.ID); err != nil {
		t.Fatal(err)
	}
	r, _ := f.st.GetRoutine(ctx, f.r.ID)
	if r.Status != routine.StatusAbandoned {
		t.Fatalf("status = %s, want abandoned", r.Status)
	}
	if err := f.ctl.Abandon(ctx, "u1", f.r.ID); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("double abandon error = %v, want ErrInvalidState", err)
	}

	if err := f.ctl.Reset(ctx, "u1", f.r.ID); err != nil {
		t.Fatal(err)
	}
	r, _ = f.st.GetRoutine(ctx, f.r.ID)
	if r.Status != routine.StatusActive || r.CurrentStage != 1 || r.CurrentStageProgress != 0 {
		t.Fatalf("after reset: %+v", r)
	}
	if _, ok := r.Timeline.Latest(routine.EventReset); !ok {
		t.Fatal("reset event missing")
	}
	hist, _ := f.st.ListHistory(ctx, "u1", f.r.ID)
	if len(hist) != 0 {
		t.Fatalf("history survived reset: %d", len(hist))
	}
	// Reset on an active routine re-serves stage one immediately.
	insts, _ := f.st.ListInstancesByRoutine(ctx, f.r.ID)
	if len(insts) != 2 {
		t.Fatalf("reset served %d stage-one tasks, want 2", len(insts))
	}
}

func TestSkipToday(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tasks := f.serveToday(t)

	if _, err := f.ctl.UpdateTaskStatus(ctx, "u1", tasks["stretch"].ID, routine.TaskCompleted); err != nil {
		t.Fatal(err)
	}

	n, err := f.ctl.SkipToday(ctx, "u1", f.r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("skipped %d tasks, want 2", n)
	}

	hist, _ := f.st.ListHistory(ctx, "u1", f.r.ID)
	if len(hist) != 2 {
		t.Fatalf("history records = %d, want 2", len(hist))
	}
	for _, h := range hist {
		if h.Status != routine.HistorySkipped {
			t.Fatalf("history status = %s, want skipped", h.Status)
		}
	}
	// Skip does not touch progress.
	rep, _ := f.ctl.Progress(ctx, "u1", f.r.ID)
	if rep.CurrentStageProgress != 1 {
		t.Fatalf("progress after skip = %d, want 1", rep.CurrentStageProgress)
	}
	r, _ := f.st.GetRoutine(ctx, f.r.ID)
	if _, ok := r.Timeline.Latest(routine.EventSkipped); !ok {
		t.Fatal("skipped event missing")
	}

	// Nothing left to skip.
	if _, err := f.ctl.SkipToday(ctx, "u1", f.r.ID); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("empty skip error = %v, want ErrInvalidState", err)
	}
}

func TestResolveUnmarked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	rec := routine.UnmarkedRecord{
		ID: "um1", UserID: "u1", RoutineID: f.r.ID, Title: "stretch",
	}
	if err := f.st.InsertUnmarked(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if err := f.ctl.ResolveUnmarked(ctx, "u1", "um1", routine.HistorySkipped); !errors.Is(err, routine.ErrInvalidState) {
		t.Fatalf("skipped outcome error = %v, want ErrInvalidState", err)
	}
	if err := f.ctl.ResolveUnmarked(ctx, "someone", "um1", routine.HistoryCompleted); !errors.Is(err, routine.ErrNotFound) {
		t.Fatalf("foreign resolve error = %v, want ErrNotFound", err)
	}

	if err := f.ctl.ResolveUnmarked(ctx, "u1", "um1", routine.HistoryCompleted); err != nil {
		t.Fatal(err)
	}
	hist, _ := f.st.ListHistory(ctx, "u1", f.r.ID)
	if len(hist) != 1 || hist[0].Status != routine.HistoryCompleted || hist[0].CompletedAt.IsZero() {
		t.Fatalf("resolved history = %+v", hist)
	}
	if _, err := f.st.GetUnmarked(ctx, "um1"); !errors.Is(err, routine.ErrNotFound) {
		t.Fatal("unmarked record survived resolution")
	}

	// A record can only be resolved once.
	if err := f.ctl.ResolveUnmarked(ctx, "u1", "um1", routine.HistoryMissed); !errors.Is(err, routine.ErrNotFound) {
		t.Fatalf("double resolve error = %v, want ErrNotFound", err)
	}
}

func TestOwnershipHidesRoutines(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.ctl.EnrollUser(ctx, "u2", "UTC"); err != nil {
		t.Fatal(err)
	}

	if err := f.ctl.Pause(ctx, "u2", f.r.ID); !errors.Is(err, routine.ErrNotFound) {
		t.Fatalf("foreign pause error = %v, want ErrNotFound", err)
	}
	if _, err := f.ctl.Progress(ctx, "u2", f.r.ID); !errors.Is(err, routine.ErrNotFound) {
		t.Fatalf("foreign progress error = %v, want ErrNotFound", err)
	}
	if _, err := f.ctl.AdvanceStage(ctx, "u2", f.r.ID, 2); !errors.Is(err, routine.ErrNotFound) {
		t.Fatalf("foreign advance error = %v, want ErrNotFound", err)
	}
}
