// Package control implements the user-facing operations of the lifecycle
// engine: enrollment, routine creation, the pause/resume/reset/abandon and
// skip/advance controls, task status updates, and unmarked-task resolution.
//
// Every operation takes the acting user's ID and verifies ownership before
// touching anything; a routine owned by someone else is indistinguishable
// from one that does not exist.
package control

import (
	"context"
	"fmt"
	"time"

	"routined/internal/eventbus"
	"routined/internal/localtime"
	"routined/internal/routine"
	"routined/internal/services/materializer"
	"routined/internal/storage"
	"routined/pkg/logx"
)

var zeroTime time.Time

type Service struct {
	log logx.Logger
	st  storage.Store
	tz  *localtime.Resolver
	mat *materializer.Service
	bus eventbus.Bus

	now func() time.Time
}

func New(log logx.Logger, st storage.Store, tz *localtime.Resolver, mat *materializer.Service, bus eventbus.Bus) *Service {
	return &Service{log: log, st: st, tz: tz, mat: mat, bus: bus, now: time.Now}
}

// ownedRoutine loads a routine and enforces ownership. A mismatched owner
// gets ErrNotFound, not a permission error, so routine IDs cannot be probed.
func (s *Service) ownedRoutine(ctx context.Context, st storage.Store, userID, routineID string) (routine.Routine, error) {
	r, err := st.GetRoutine(ctx, routineID)
	if err != nil {
		return routine.Routine{}, err
	}
	if r.OwnerID != userID {
		return routine.Routine{}, fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}
	return r, nil
}

// stageOf builds a memoizing StageLookup over the given store view.
func (s *Service) stageOf(ctx context.Context, st storage.Store) routine.StageLookup {
	type entry struct {
		stage int
		ok    bool
	}
	memo := map[string]entry{}
	return func(templateID string) (int, bool) {
		if e, hit := memo[templateID]; hit {
			return e.stage, e.ok
		}
		t, err := st.GetTemplate(ctx, templateID)
		e := entry{stage: t.StageNumber, ok: err == nil}
		memo[templateID] = e
		return e.stage, e.ok
	}
}

// todayInstances returns the routine's instances scheduled on the user's
// current local day.
func (s *Service) todayInstances(ctx context.Context, st storage.Store, r *routine.Routine, loc *time.Location, now time.Time) ([]routine.TaskInstance, error) {
	all, err := st.ListInstancesByRoutine(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	var out []routine.TaskInstance
	for _, inst := range all {
		if localtime.SameLocalDay(inst.ScheduledFor, now, loc) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *Service) userLocation(ctx context.Context, userID string) (*time.Location, error) {
	u, err := s.st.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.tz.Location(u.Timezone), nil
}
