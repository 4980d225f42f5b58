// Package matching builds the student to project matching model.
package matching

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/rhyrak/go-allocate/internal/availability"
	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/lp"
	"github.com/rhyrak/go-allocate/internal/objective"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Options shape the matching model.
type Options struct {
	// CATSLimit is the workload cap of faculty without an override.
	CATSLimit int
}

func DefaultOptions() Options {
	return Options{CATSLimit: 100}
}

// Built is a matching model ready for a solver.
type Built struct {
	Model *lp.Model
	Vars  *objective.Variables
	Enum  *enumerate.Enumeration
}

func Enumerate(snap *model.MatchingSnapshot) *enumerate.Enumeration {
	return enumerate.Fresh(snap.SelectorIDs(), snap.FacultyIDs(), snap.ProjectIDs(), snap.PeriodIDs())
}

func ordered(snap *model.MatchingSnapshot, e *enumerate.Enumeration) ([]*model.Selector, []*model.Faculty, []*model.Project) {
	selectors := lo.KeyBy(snap.Selectors, func(s *model.Selector) int64 { return s.ID })
	faculty := lo.KeyBy(snap.Faculty, func(f *model.Faculty) int64 { return f.ID })
	projects := lo.KeyBy(snap.Projects, func(p *model.Project) int64 { return p.ID })
	return lo.Map(e.Units.IDs(), func(id int64, _ int) *model.Selector { return selectors[id] }),
		lo.Map(e.Resources.IDs(), func(id int64, _ int) *model.Faculty { return faculty[id] }),
		lo.Map(e.Targets.IDs(), func(id int64, _ int) *model.Project { return projects[id] })
}

// Matrices marks the projects each selector ranked and the faculty eligible to
// mark each project. Project owners never mark their own project.
func Matrices(snap *model.MatchingSnapshot, e *enumerate.Enumeration) *availability.Matrices {
	selectors, faculty, projects := ordered(snap, e)
	markers := lo.Map(projects, func(p *model.Project, _ int) map[int64]bool {
		return lo.Associate(p.Markers, func(id int64) (int64, bool) { return id, true })
	})
	return availability.Build(e.Units.Len(), e.Resources.Len(), e.Targets.Len(),
		func(s, p int) model.Availability {
			if _, ok := selectors[s].Rankings[projects[p].ID]; ok {
				return model.Available
			}
			return model.Unavailable
		},
		func(f, p int) model.Availability {
			id := faculty[f].ID
			if markers[p][id] && projects[p].OwnerID != id {
				return model.Available
			}
			return model.Unavailable
		},
	)
}

// Build constructs the matching model for snap in the index space of e.
func Build(snap *model.MatchingSnapshot, en *enumerate.Enumeration, opts Options, cost objective.CostModel) (*Built, error) {
	if err := en.Check(snap.SelectorIDs(), snap.FacultyIDs(), snap.ProjectIDs(), snap.PeriodIDs()); err != nil {
		return nil, err
	}
	selectors, faculty, projects := ordered(snap, en)
	periods := lo.KeyBy(snap.Periods, func(p *model.Period) int64 { return p.ID })
	mx := Matrices(snap, en)

	ns, nf, np := en.Units.Len(), en.Resources.Len(), en.Targets.Len()
	m := lp.NewModel("match")
	v := &objective.Variables{Units: ns, Resources: nf, Targets: np}

	projectPeriod := make([]*model.Period, np)
	for p, proj := range projects {
		if _, ok := en.Periods.Index(proj.PeriodID); !ok {
			return nil, errors.Wrapf(enumerate.ErrMismatch, "project %d references class %d", proj.ID, proj.PeriodID)
		}
		projectPeriod[p] = periods[proj.PeriodID]
	}

	for s := 0; s < ns; s++ {
		for p := 0; p < np; p++ {
			v.X = append(v.X, m.AddBinary(fmt.Sprintf("X_%d_%d", s, p)))
		}
	}
	for f := 0; f < nf; f++ {
		for p := 0; p < np; p++ {
			v.Y = append(v.Y, m.AddBinary(fmt.Sprintf("Y_%d_%d", f, p)))
		}
	}
	for p := 0; p < np; p++ {
		v.Occupancy = append(v.Occupancy, m.AddBinary(fmt.Sprintf("Z_%d", p)))
	}
	maxCap := 0
	for _, f := range faculty {
		maxCap = lo.Max([]int{maxCap, f.Cap(opts.CATSLimit)})
	}
	v.AMax = m.AddVar("amax", lp.Continuous, 0, float64(maxCap))
	v.AMin = m.AddVar("amin", lp.Continuous, 0, float64(maxCap))
	v.HasSpread = true

	v.UnitCost = make([]float64, ns*np)
	for s, sel := range selectors {
		for p, proj := range projects {
			v.UnitCost[s*np+p] = float64(sel.Rankings[proj.ID])
		}
	}

	// M1 one project per selector, M2 only ranked projects
	for s := 0; s < ns; s++ {
		var e lp.Expr
		for p := 0; p < np; p++ {
			e.Add(v.XAt(s, p), 1)
			if mx.Unit.At(s, p) == 0 {
				m.AddConstraint(fmt.Sprintf("unranked_%d_%d", s, p), lp.Sum(v.XAt(s, p)), lp.Equal, 0)
			}
		}
		m.AddConstraint(fmt.Sprintf("assign_%d", s), e, lp.Equal, 1)
	}

	for p, proj := range projects {
		z := v.Occupancy[p]
		period := projectPeriod[p]

		// M3 project in use exactly when it has a selector
		var members lp.Expr
		for s := 0; s < ns; s++ {
			members.Add(v.XAt(s, p), 1)
			e := lp.Sum(v.XAt(s, p))
			e.Add(z, -1)
			m.AddConstraint(fmt.Sprintf("open_%d_%d", s, p), e, lp.LessEqual, 0)
		}
		used := lp.Sum(z)
		used.AddExpr(members, -1)
		m.AddConstraint(fmt.Sprintf("used_%d", p), used, lp.LessEqual, 0)

		// M4 capacity
		capacity := period.MaxOccupancy
		if proj.Capacity.Valid {
			capacity = proj.Capacity.Int
		}
		var occ lp.Expr
		occ.AddExpr(members, 1).Add(z, -float64(capacity))
		m.AddConstraint(fmt.Sprintf("capacity_%d", p), occ, lp.LessEqual, 0)

		// M5 marker count, M6 marker eligibility
		var staff lp.Expr
		for f := 0; f < nf; f++ {
			staff.Add(v.YAt(f, p), 1)
			if mx.Resource.At(f, p) == 0 {
				m.AddConstraint(fmt.Sprintf("marker_%d_%d", f, p), lp.Sum(v.YAt(f, p)), lp.Equal, 0)
			}
		}
		staff.Add(z, -float64(period.RequiredResources))
		m.AddConstraint(fmt.Sprintf("markers_%d", p), staff, lp.Equal, 0)
	}

	// M7 workload cap, M8 workload bracketing
	for f, fac := range faculty {
		var cats lp.Expr
		for p, proj := range projects {
			period := projectPeriod[p]
			if proj.OwnerID == fac.ID && period.SupervisingCATS != 0 {
				for s := 0; s < ns; s++ {
					cats.Add(v.XAt(s, p), float64(period.SupervisingCATS))
				}
			}
			if period.MarkingCATS != 0 {
				cats.Add(v.YAt(f, p), float64(period.MarkingCATS))
			}
		}
		m.AddConstraint(fmt.Sprintf("cats_%d", f), cats, lp.LessEqual, float64(fac.Cap(opts.CATSLimit)))
		var ceil, floor lp.Expr
		ceil.AddExpr(cats, 1).Add(v.AMax, -1)
		m.AddConstraint(fmt.Sprintf("amax_%d", f), ceil, lp.LessEqual, 0)
		floor.AddExpr(cats, 1).Add(v.AMin, -1)
		m.AddConstraint(fmt.Sprintf("amin_%d", f), floor, lp.GreaterEqual, 0)
	}

	if err := cost.Apply(m, v); err != nil {
		return nil, errors.Wrap(err, "applying objective")
	}
	return &Built{Model: m, Vars: v, Enum: en}, nil
}
