package routine

import "sort"

// StageLookup reports the originating stage number for a template ID.
// The second return is false when the template (or its stage set) is gone.
type StageLookup func(templateID string) (int, bool)

// IsImmutable reports whether a task instance may no longer be mutated:
// its originating template belongs to a stage the routine has already left.
//
// Custom tasks (no originating template) are never immutable. Orphaned
// template data is treated as "not immutable" (fail-open): a dangling
// reference should not lock a user out of their own task.
func IsImmutable(inst TaskInstance, currentStage int, stageOf StageLookup) bool {
	if inst.TemplateID == "" {
		return false
	}
	stage, ok := stageOf(inst.TemplateID)
	if !ok {
		return false
	}
	return stage < currentStage
}

// Preview summarizes the lock effect of a proposed stage advance.
type Preview struct {
	Count          int
	AffectedStages []int
}

// PreviewAtStage reports how many of the given instances would become
// immutable if the routine stood at proposedStage, and which stages they
// originate from. Used to warn the user before an irreversible advance.
func PreviewAtStage(instances []TaskInstance, proposedStage int, stageOf StageLookup) Preview {
	var p Preview
	seen := map[int]bool{}
	for _, inst := range instances {
		if !IsImmutable(inst, proposedStage, stageOf) {
			continue
		}
		p.Count++
		stage, _ := stageOf(inst.TemplateID)
		if !seen[stage] {
			seen[stage] = true
			p.AffectedStages = append(p.AffectedStages, stage)
		}
	}
	sort.Ints(p.AffectedStages)
	return p
}
