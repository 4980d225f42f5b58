// Package scheduler builds the presentation scheduling model: talks and
// assessors jointly placed into session x room slots.
package scheduler

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rhyrak/go-allocate/internal/availability"
	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/lp"
	"github.com/rhyrak/go-allocate/internal/objective"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Built is a scheduling model ready for a solver.
type Built struct {
	Model *lp.Model
	Vars  *objective.Variables
	Enum  *enumerate.Enumeration
	// Z is the periods x targets occupancy grid, row-major.
	Z []lp.Var
	// Warnings lists inputs that force parts of the model to be infeasible.
	Warnings []string
}

// Enumerate indexes a snapshot in its canonical order.
func Enumerate(snap *model.ScheduleSnapshot) *enumerate.Enumeration {
	return enumerate.Fresh(snap.TalkIDs(), snap.AssessorIDs(), snap.SlotIDs(), snap.PeriodIDs())
}

// Matrices evaluates talk and assessor availability against the session of each slot.
func Matrices(snap *model.ScheduleSnapshot, e *enumerate.Enumeration) *availability.Matrices {
	_, _, slots, _ := ordered(snap, e)
	session := func(t int) int64 { return slots[t].SessionID }
	return availability.Build(e.Units.Len(), e.Resources.Len(), e.Targets.Len(),
		availability.SessionLookup(snap.TalkAvailability, e.Units.ID, session),
		availability.SessionLookup(snap.AssessorAvailability, e.Resources.ID, session),
	)
}

// Build constructs the scheduling model for snap in the index space of e and
// prices it with cost.
func Build(snap *model.ScheduleSnapshot, en *enumerate.Enumeration, opts Options, cost objective.CostModel) (*Built, error) {
	if err := en.Check(snap.TalkIDs(), snap.AssessorIDs(), snap.SlotIDs(), snap.PeriodIDs()); err != nil {
		return nil, err
	}
	talks, assessors, slots, periods := ordered(snap, en)
	mx := Matrices(snap, en)

	nu, nr, nt, np := en.Units.Len(), en.Resources.Len(), en.Targets.Len(), en.Periods.Len()
	m := lp.NewModel("schedule")
	v := &objective.Variables{Units: nu, Resources: nr, Targets: nt, IfNeeded: mx.IfNeeded}
	b := &Built{Model: m, Vars: v, Enum: en}

	for u := 0; u < nu; u++ {
		for t := 0; t < nt; t++ {
			v.X = append(v.X, m.AddBinary(fmt.Sprintf("X_%d_%d", u, t)))
		}
	}
	for r := 0; r < nr; r++ {
		for t := 0; t < nt; t++ {
			v.Y = append(v.Y, m.AddBinary(fmt.Sprintf("Y_%d_%d", r, t)))
		}
	}
	for p := 0; p < np; p++ {
		for t := 0; t < nt; t++ {
			b.Z = append(b.Z, m.AddBinary(fmt.Sprintf("Z_%d_%d", p, t)))
		}
	}
	v.Occupancy = b.Z
	for r := 0; r < nr; r++ {
		v.Used = append(v.Used, m.AddBinary(fmt.Sprintf("U_%d", r)))
	}
	v.AMax = m.AddVar("amax", lp.Continuous, 0, float64(nt))
	v.AMin = m.AddVar("amin", lp.Continuous, 0, float64(nt))
	v.HasSpread = true
	z := func(p, t int) lp.Var { return b.Z[p*nt+t] }

	unitPeriod := make([]int, nu)
	for u, talk := range talks {
		p, ok := en.Periods.Index(talk.PeriodID)
		if !ok {
			return nil, errors.Wrapf(enumerate.ErrMismatch, "talk %d references period %d", talk.ID, talk.PeriodID)
		}
		unitPeriod[u] = p
	}

	// 1. at most one period per slot
	for t := 0; t < nt; t++ {
		var e lp.Expr
		for p := 0; p < np; p++ {
			e.Add(z(p, t), 1)
		}
		m.AddConstraint(fmt.Sprintf("one_period_%d", t), e, lp.LessEqual, 1)
	}

	// 2. a placed talk marks its slot as occupied by its period
	for u := 0; u < nu; u++ {
		for t := 0; t < nt; t++ {
			e := lp.Sum(v.XAt(u, t))
			e.Add(z(unitPeriod[u], t), -1)
			m.AddConstraint(fmt.Sprintf("period_%d_%d", u, t), e, lp.LessEqual, 0)
		}
	}

	// 3. assessor availability
	for r := 0; r < nr; r++ {
		for t := 0; t < nt; t++ {
			if mx.Resource.At(r, t) == 0 {
				m.AddConstraint(fmt.Sprintf("assessor_busy_%d_%d", r, t), lp.Sum(v.YAt(r, t)), lp.Equal, 0)
			}
		}
	}

	// 4. one slot per assessor and session
	order, groups := sessionGroups(slots, en)
	for r := 0; r < nr; r++ {
		for _, session := range order {
			targets := groups[session]
			if len(targets) < 2 {
				continue
			}
			var e lp.Expr
			for _, t := range targets {
				e.Add(v.YAt(r, t), 1)
			}
			m.AddConstraint(fmt.Sprintf("session_%d_%d", r, session), e, lp.LessEqual, 1)
		}
	}

	load := func(r int) lp.Expr {
		var e lp.Expr
		for t := 0; t < nt; t++ {
			e.Add(v.YAt(r, t), 1)
		}
		return e
	}

	for r, a := range assessors {
		// 5. placement cap
		m.AddConstraint(fmt.Sprintf("cap_%d", r), load(r), lp.LessEqual, float64(a.Cap(opts.DefaultCap)))

		// 6. used flag needs at least one placement
		e := load(r)
		e.Add(v.Used[r], -1)
		m.AddConstraint(fmt.Sprintf("used_%d", r), e, lp.GreaterEqual, 0)

		// 15. workload bracketing
		hi := load(r)
		hi.Add(v.AMax, -1)
		m.AddConstraint(fmt.Sprintf("amax_%d", r), hi, lp.LessEqual, 0)
		lo := load(r)
		lo.Add(v.AMin, -1)
		m.AddConstraint(fmt.Sprintf("amin_%d", r), lo, lp.GreaterEqual, 0)
	}

	// 7. talk availability
	for u := 0; u < nu; u++ {
		for t := 0; t < nt; t++ {
			if mx.Unit.At(u, t) == 0 {
				m.AddConstraint(fmt.Sprintf("talk_busy_%d_%d", u, t), lp.Sum(v.XAt(u, t)), lp.Equal, 0)
			}
		}
	}

	// 8. every talk placed exactly once
	for u := 0; u < nu; u++ {
		var e lp.Expr
		for t := 0; t < nt; t++ {
			e.Add(v.XAt(u, t), 1)
		}
		m.AddConstraint(fmt.Sprintf("assign_%d", u), e, lp.Equal, 1)
	}

	for t := 0; t < nt; t++ {
		// 9. assessor count matches the active period
		var staff lp.Expr
		for r := 0; r < nr; r++ {
			staff.Add(v.YAt(r, t), 1)
		}
		for p, period := range periods {
			staff.Add(z(p, t), -float64(period.RequiredResources))
		}
		m.AddConstraint(fmt.Sprintf("staff_%d", t), staff, lp.Equal, 0)

		// 10. occupancy limit of the active period
		var occ lp.Expr
		for u := 0; u < nu; u++ {
			occ.Add(v.XAt(u, t), 1)
		}
		for p, period := range periods {
			occ.Add(z(p, t), -float64(period.MaxOccupancy))
		}
		m.AddConstraint(fmt.Sprintf("occupancy_%d", t), occ, lp.LessEqual, 0)
	}

	// 11. flagged talks of one group never share a slot
	for u1 := 0; u1 < nu; u1++ {
		if !talks[u1].DontClash {
			continue
		}
		for u2 := u1 + 1; u2 < nu; u2++ {
			if !talks[u2].DontClash || talks[u2].GroupID != talks[u1].GroupID {
				continue
			}
			for t := 0; t < nt; t++ {
				m.AddConstraint(fmt.Sprintf("clash_%d_%d_%d", u1, u2, t), lp.Sum(v.XAt(u1, t), v.XAt(u2, t)), lp.LessEqual, 1)
			}
		}
	}

	// 12. assessor pools
	for u, talk := range talks {
		pool := poolIndices(talk.Pool, en)
		if opts.Compatibility == CompatRelaxed {
			if len(pool) == 0 {
				msg := fmt.Sprintf("talk %d has no eligible assessor", talk.ID)
				b.Warnings = append(b.Warnings, msg)
				log.WithField("talk_id", talk.ID).Warn("relaxed compatibility with empty pool, talk cannot be placed")
			}
			for t := 0; t < nt; t++ {
				var e lp.Expr
				for r := range pool {
					e.Add(v.YAt(r, t), 1)
				}
				e.Add(v.XAt(u, t), -1)
				m.AddConstraint(fmt.Sprintf("pool_%d_%d", u, t), e, lp.GreaterEqual, 0)
			}
		}
		for r, a := range assessors {
			if pool[r] || (opts.Compatibility == CompatRelaxed && a.Enrolled) {
				continue
			}
			for t := 0; t < nt; t++ {
				m.AddConstraint(fmt.Sprintf("compat_%d_%d_%d", u, r, t), lp.Sum(v.XAt(u, t), v.YAt(r, t)), lp.LessEqual, 1)
			}
		}
	}

	// 13. supervisors never assess their own talk
	for u, talk := range talks {
		if talk.SupervisorID == 0 {
			continue
		}
		r, ok := en.Resources.Index(talk.SupervisorID)
		if !ok {
			continue
		}
		for t := 0; t < nt; t++ {
			m.AddConstraint(fmt.Sprintf("supervisor_%d_%d", u, t), lp.Sum(v.XAt(u, t), v.YAt(r, t)), lp.LessEqual, 1)
		}
	}

	// 14. slots must offer the facilities of the talk's period
	for u := 0; u < nu; u++ {
		need := periods[unitPeriod[u]].Facilities
		for t, slot := range slots {
			if !slot.Facilities.Has(need) {
				m.AddConstraint(fmt.Sprintf("facility_%d_%d", u, t), lp.Sum(v.XAt(u, t)), lp.Equal, 0)
			}
		}
	}

	if err := cost.Apply(m, v); err != nil {
		return nil, errors.Wrap(err, "applying objective")
	}
	return b, nil
}
