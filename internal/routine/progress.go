package routine

// Delta returns the raw progress adjustment for a status transition:
// +1 entering completed, -1 leaving completed, 0 otherwise.
func Delta(oldStatus, newStatus TaskStatus) int {
	switch {
	case oldStatus != TaskCompleted && newStatus == TaskCompleted:
		return 1
	case oldStatus == TaskCompleted && newStatus != TaskCompleted:
		return -1
	default:
		return 0
	}
}

// TransitionDelta applies the eligibility rules on top of Delta:
//
//   - only active routines accrue progress
//   - optional tasks never affect progress
//   - custom tasks (no originating stage) never affect progress
//   - the instance's originating stage must equal the routine's current
//     stage at the moment of the transition; stale or future-stage
//     completions are silently ignored
//
// The returned delta still has to be applied as the store's atomic
// floor-clamped increment; this function only decides eligibility.
func TransitionDelta(r *Routine, inst TaskInstance, oldStatus, newStatus TaskStatus, stageOf StageLookup) int {
	if r.Status != StatusActive {
		return 0
	}
	if inst.Optional || inst.TemplateID == "" {
		return 0
	}
	stage, ok := stageOf(inst.TemplateID)
	if !ok || stage != r.CurrentStage {
		return 0
	}
	return Delta(oldStatus, newStatus)
}
