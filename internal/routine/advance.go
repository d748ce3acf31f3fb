package routine

// Evaluation is the derived advance-eligibility of a routine.
type Evaluation struct {
	CanAdvance   bool
	IsFinalStage bool
	Threshold    int
	TasksNeeded  int
	Reason       string
}

// Evaluate derives advance-eligibility from the routine's thresholds,
// current progress, and status. It does not mutate anything.
func Evaluate(r *Routine) Evaluation {
	ev := Evaluation{
		IsFinalStage: r.CurrentStage == r.Stages,
		Threshold:    r.CurrentThreshold(),
	}
	ev.TasksNeeded = ev.Threshold - r.CurrentStageProgress
	if ev.TasksNeeded < 0 {
		ev.TasksNeeded = 0
	}

	switch {
	case r.Status != StatusActive:
		ev.Reason = "routine is not active"
	case r.CurrentStageProgress < ev.Threshold:
		ev.Reason = "threshold not met"
	default:
		ev.CanAdvance = true
	}
	return ev
}
