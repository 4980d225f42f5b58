package matching

import (
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Validate re-checks a matching. Returns false and a report for invalid
// matchings. When e is set, selectors it does not enumerate are not expected
// to be assigned.
func Validate(snap *model.MatchingSnapshot, e *enumerate.Enumeration, placements []model.Placement, opts Options) (bool, string) {
	if e != nil {
		scoped := *snap
		scoped.Selectors = lo.Filter(snap.Selectors, func(s *model.Selector, _ int) bool {
			_, ok := e.Units.Index(s.ID)
			return ok
		})
		snap = &scoped
	}
	var report string
	var all error
	for _, c := range []struct {
		name string
		err  error
	}{
		{"Selector assigned once check", checkSelectors(snap, placements)},
		{"Project capacity check", checkProjects(snap, placements)},
		{"Faculty workload check", checkWorkload(snap, placements, opts)},
	} {
		if c.err == nil {
			report += "[  OK]: " + c.name + ".\n"
			continue
		}
		report += "[FAIL]: " + c.name + ".\n"
		all = multierr.Append(all, c.err)
	}
	for _, e := range multierr.Errors(all) {
		report += "- " + e.Error() + "\n"
	}
	return all == nil, report
}

func checkSelectors(snap *model.MatchingSnapshot, placements []model.Placement) error {
	where := make(map[int64][]int64)
	for _, p := range placements {
		for _, s := range p.Units {
			where[s] = append(where[s], p.TargetID)
		}
	}
	var err error
	for _, s := range snap.Selectors {
		got := where[s.ID]
		if len(got) != 1 {
			err = multierr.Append(err, fmt.Errorf("selector %d assigned %d projects", s.ID, len(got)))
			continue
		}
		if _, ok := s.Rankings[got[0]]; !ok {
			err = multierr.Append(err, fmt.Errorf("selector %d assigned unranked project %d", s.ID, got[0]))
		}
	}
	return err
}

func checkProjects(snap *model.MatchingSnapshot, placements []model.Placement) error {
	projects := make(map[int64]*model.Project, len(snap.Projects))
	for _, p := range snap.Projects {
		projects[p.ID] = p
	}
	periods := make(map[int64]*model.Period, len(snap.Periods))
	for _, p := range snap.Periods {
		periods[p.ID] = p
	}
	var err error
	for _, pl := range placements {
		proj := projects[pl.TargetID]
		if proj == nil || periods[proj.PeriodID] == nil {
			continue
		}
		period := periods[proj.PeriodID]
		capacity := period.MaxOccupancy
		if proj.Capacity.Valid {
			capacity = proj.Capacity.Int
		}
		if len(pl.Units) > capacity {
			err = multierr.Append(err, fmt.Errorf("project %d has %d selectors, capacity %d", proj.ID, len(pl.Units), capacity))
		}
		if len(pl.Units) > 0 && len(pl.Resources) != period.RequiredResources {
			err = multierr.Append(err, fmt.Errorf("project %d has %d markers, needs %d", proj.ID, len(pl.Resources), period.RequiredResources))
		}
		eligible := make(map[int64]bool, len(proj.Markers))
		for _, f := range proj.Markers {
			eligible[f] = true
		}
		for _, f := range pl.Resources {
			if !eligible[f] || f == proj.OwnerID {
				err = multierr.Append(err, fmt.Errorf("faculty %d may not mark project %d", f, proj.ID))
			}
		}
	}
	return err
}

func checkWorkload(snap *model.MatchingSnapshot, placements []model.Placement, opts Options) error {
	projects := make(map[int64]*model.Project, len(snap.Projects))
	for _, p := range snap.Projects {
		projects[p.ID] = p
	}
	periods := make(map[int64]*model.Period, len(snap.Periods))
	for _, p := range snap.Periods {
		periods[p.ID] = p
	}
	cats := make(map[int64]int)
	for _, pl := range placements {
		proj := projects[pl.TargetID]
		if proj == nil || periods[proj.PeriodID] == nil {
			continue
		}
		period := periods[proj.PeriodID]
		cats[proj.OwnerID] += period.SupervisingCATS * len(pl.Units)
		for _, f := range pl.Resources {
			cats[f] += period.MarkingCATS
		}
	}
	var err error
	for _, f := range snap.Faculty {
		if c := f.Cap(opts.CATSLimit); cats[f.ID] > c {
			err = multierr.Append(err, fmt.Errorf("faculty %d carries %d CATS, cap %d", f.ID, cats[f.ID], c))
		}
	}
	return err
}
