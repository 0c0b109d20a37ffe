package datacache

import (
	"context"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/allaspectsdev/icarus/internal/dataset"
)

// DateBounds is the ReportingDate range of the whole master dataset.
// Valid is false when the dataset is empty.
type DateBounds struct {
	Min   civil.Date `json:"min_date"`
	Max   civil.Date `json:"max_date"`
	Valid bool       `json:"valid"`
}

// PlanGroup is one distinct (app, plan) pair.
type PlanGroup struct {
	AppName  string `json:"App_Name"`
	PlanName string `json:"Plan_Name"`
}

// Label renders the pair the way plan pickers display it.
func (p PlanGroup) Label() string {
	return p.AppName + " - " + p.PlanName
}

// DateBounds returns the minimum and maximum ReportingDate across the full
// master dataset, ignoring every filter.
func (s *Service) DateBounds(ctx context.Context) (DateBounds, error) {
	if b, ok := s.bounds.Get(); ok {
		s.rec.CacheLookup("derived", "date_bounds", true)
		return b, nil
	}
	s.rec.CacheLookup("derived", "date_bounds", false)

	gen := s.bounds.Generation()
	t, err := s.MasterData(ctx)
	if err != nil {
		return DateBounds{}, err
	}

	var b DateBounds
	b.Min, b.Max, b.Valid = t.DateRange()
	s.bounds.SetIfGeneration(b, gen)
	return b, nil
}

// PlanGroups returns the distinct (app, plan) pairs among rows in the given
// active state, sorted by app then plan.
func (s *Service) PlanGroups(ctx context.Context, state dataset.ActiveState) ([]PlanGroup, error) {
	if groups, ok := s.plans.Get(state); ok {
		s.rec.CacheLookup("derived", "plan_groups", true)
		return groups, nil
	}
	s.rec.CacheLookup("derived", "plan_groups", false)

	gen := s.plans.Generation()
	t, err := s.MasterData(ctx)
	if err != nil {
		return nil, err
	}

	groups := planGroups(t, state)
	s.plans.SetIfGeneration(state, groups, gen)
	return groups, nil
}

func planGroups(t *dataset.Table, state dataset.ActiveState) []PlanGroup {
	seen := make(map[PlanGroup]struct{})
	groups := []PlanGroup{}
	for i := 0; i < t.Len(); i++ {
		if t.ActiveState[i] != state {
			continue
		}
		g := PlanGroup{AppName: t.AppName[i], PlanName: t.PlanName[i]}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(a, b int) bool {
		if groups[a].AppName != groups[b].AppName {
			return groups[a].AppName < groups[b].AppName
		}
		return groups[a].PlanName < groups[b].PlanName
	})
	return groups
}
