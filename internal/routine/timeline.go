package routine

import "time"

// EventType is a milestone kind recorded on a routine's timeline.
type EventType string

const (
	EventCreated       EventType = "created"
	EventStageAdvanced EventType = "stage_advanced"
	EventPaused        EventType = "paused"
	EventResumed       EventType = "resumed"
	EventReset         EventType = "reset"
	EventSkipped       EventType = "skipped"
	EventFinished      EventType = "finished"
	EventAbandoned     EventType = "abandoned"
)

// Event is one timeline entry. StageNumber is only set for stage_advanced.
type Event struct {
	Type        EventType `json:"type"`
	At          time.Time `json:"date"`
	StageNumber int       `json:"stageNumber,omitempty"`
}

// Timeline is an append-only milestone log, ordered oldest first.
// Entries are never mutated or removed once appended.
type Timeline []Event

// Append returns the timeline with a new entry at the end.
func (t Timeline) Append(typ EventType, at time.Time, stage int) Timeline {
	return append(t, Event{Type: typ, At: at.UTC(), StageNumber: stage})
}

// Latest returns the most recent event of the given type.
func (t Timeline) Latest(typ EventType) (Event, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Type == typ {
			return t[i], true
		}
	}
	return Event{}, false
}

// LatestInWindow returns the most recent event of the given type with
// from <= At < to.
func (t Timeline) LatestInWindow(typ EventType, from, to time.Time) (Event, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Type != typ {
			continue
		}
		at := t[i].At
		if at.Before(from) || !at.Before(to) {
			continue
		}
		return t[i], true
	}
	return Event{}, false
}
