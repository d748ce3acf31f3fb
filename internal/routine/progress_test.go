package routine

import "testing"

func TestDelta(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		from, to TaskStatus
		want     int
	}{
		{name: "todo to completed", from: TaskTodo, to: TaskCompleted, want: 1},
		{name: "in_progress to completed", from: TaskInProgress, to: TaskCompleted, want: 1},
		{name: "missed to completed", from: TaskMissed, to: TaskCompleted, want: 1},
		{name: "completed to todo", from: TaskCompleted, to: TaskTodo, want: -1},
		{name: "completed to missed", from: TaskCompleted, to: TaskMissed, want: -1},
		{name: "todo to in_progress", from: TaskTodo, to: TaskInProgress, want: 0},
		{name: "todo to missed", from: TaskTodo, to: TaskMissed, want: 0},
		{name: "completed to completed", from: TaskCompleted, to: TaskCompleted, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Delta(tt.from, tt.to); got != tt.want {
				t.Fatalf("Delta(%s, %s) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTransitionDelta(t *testing.T) {
	t.Parallel()
	stageOf := stagesByTemplate(map[string]int{"cur": 2, "old": 1, "next": 3})
	active := &Routine{ID: "r", Stages: 3, Thresholds: []int{1, 2, 3}, CurrentStage: 2, Status: StatusActive}
	paused := &Routine{ID: "r", Stages: 3, Thresholds: []int{1, 2, 3}, CurrentStage: 2, Status: StatusPaused}

	tests := []struct {
		name string
		r    *Routine
		inst TaskInstance
		want int
	}{
		{name: "current stage counts", r: active, inst: TaskInstance{TemplateID: "cur"}, want: 1},
		{name: "optional ignored", r: active, inst: TaskInstance{TemplateID: "cur", Optional: true}, want: 0},
		{name: "custom ignored", r: active, inst: TaskInstance{}, want: 0},
		{name: "stale stage ignored", r: active, inst: TaskInstance{TemplateID: "old"}, want: 0},
		{name: "future stage ignored", r: active, inst: TaskInstance{TemplateID: "next"}, want: 0},
		{name: "paused routine ignored", r: paused, inst: TaskInstance{TemplateID: "cur"}, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := TransitionDelta(tt.r, tt.inst, TaskTodo, TaskCompleted, stageOf)
			if got != tt.want {
				t.Fatalf("TransitionDelta = %d, want %d", got, tt.want)
			}
		})
	}
}
