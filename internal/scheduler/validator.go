package scheduler

import (
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/pkg/model"
)

type check struct {
	name string
	run  func(*model.ScheduleSnapshot, []model.Placement, Options) error
}

var checks = []check{
	{"Talk placed once check", checkTotality},
	{"Slot occupancy check", checkOccupancy},
	{"Assessor cap check", checkCaps},
	{"Assessor session collision check", checkExclusivity},
	{"Co-scheduled talk check", checkClash},
	{"Supervisor conflict check", checkSupervisor},
	{"Room facility check", checkFacilities},
	{"Availability check", checkAvailability},
	{"Assessor pool check", checkPools},
}

// Validate re-checks placements against the scheduling rules.
// Returns false and a report for invalid schedules. When e is set, talks it
// does not enumerate are not expected to be placed.
func Validate(snap *model.ScheduleSnapshot, e *enumerate.Enumeration, placements []model.Placement, opts Options) (bool, string) {
	if e != nil {
		scoped := *snap
		scoped.Talks = lo.Filter(snap.Talks, func(t *model.Talk, _ int) bool {
			_, ok := e.Units.Index(t.ID)
			return ok
		})
		snap = &scoped
	}
	valid := true
	var report, details string
	for _, c := range checks {
		err := c.run(snap, placements, opts)
		if err == nil {
			report += "[  OK]: " + c.name + ".\n"
			continue
		}
		valid = false
		report += "[FAIL]: " + c.name + ".\n"
		for _, e := range multierr.Errors(err) {
			details += "- " + e.Error() + "\n"
		}
	}
	return valid, report + details
}

func checkTotality(snap *model.ScheduleSnapshot, placements []model.Placement, _ Options) error {
	seen := make(map[int64]int)
	for _, p := range placements {
		for _, u := range p.Units {
			seen[u]++
		}
	}
	var err error
	for _, t := range snap.Talks {
		if n := seen[t.ID]; n != 1 {
			err = multierr.Append(err, fmt.Errorf("talk %d placed %d times", t.ID, n))
		}
	}
	return err
}

func checkOccupancy(snap *model.ScheduleSnapshot, placements []model.Placement, _ Options) error {
	talks := talksByID(snap)
	periods := make(map[int64]*model.Period, len(snap.Periods))
	for _, p := range snap.Periods {
		periods[p.ID] = p
	}
	var err error
	for _, p := range placements {
		if len(p.Units) == 0 {
			if len(p.Resources) > 0 {
				err = multierr.Append(err, fmt.Errorf("slot %d has assessors but no talks", p.TargetID))
			}
			continue
		}
		var period *model.Period
		for _, u := range p.Units {
			t, ok := talks[u]
			if !ok {
				continue
			}
			if period != nil && period.ID != t.PeriodID {
				err = multierr.Append(err, fmt.Errorf("slot %d mixes periods %d and %d", p.TargetID, period.ID, t.PeriodID))
				continue
			}
			period = periods[t.PeriodID]
		}
		if period == nil {
			continue
		}
		if len(p.Units) > period.MaxOccupancy {
			err = multierr.Append(err, fmt.Errorf("slot %d holds %d talks, limit %d", p.TargetID, len(p.Units), period.MaxOccupancy))
		}
		if len(p.Resources) != period.RequiredResources {
			err = multierr.Append(err, fmt.Errorf("slot %d has %d assessors, needs %d", p.TargetID, len(p.Resources), period.RequiredResources))
		}
	}
	return err
}

func checkCaps(snap *model.ScheduleSnapshot, placements []model.Placement, opts Options) error {
	load := make(map[int64]int)
	for _, p := range placements {
		for _, r := range p.Resources {
			load[r]++
		}
	}
	var err error
	for _, a := range snap.Assessors {
		if c := a.Cap(opts.DefaultCap); load[a.ID] > c {
			err = multierr.Append(err, fmt.Errorf("assessor %d placed %d times, cap %d", a.ID, load[a.ID], c))
		}
	}
	return err
}

func checkExclusivity(snap *model.ScheduleSnapshot, placements []model.Placement, _ Options) error {
	slots := slotsByID(snap)
	type key struct{ assessor, session int64 }
	seen := make(map[key]int64)
	var err error
	for _, p := range placements {
		s, ok := slots[p.TargetID]
		if !ok {
			continue
		}
		for _, r := range p.Resources {
			k := key{r, s.SessionID}
			if other, dup := seen[k]; dup {
				err = multierr.Append(err, fmt.Errorf("assessor %d in slots %d and %d of session %d", r, other, p.TargetID, s.SessionID))
				continue
			}
			seen[k] = p.TargetID
		}
	}
	return err
}

func checkClash(snap *model.ScheduleSnapshot, placements []model.Placement, _ Options) error {
	talks := talksByID(snap)
	var err error
	for _, p := range placements {
		for i, u1 := range p.Units {
			for _, u2 := range p.Units[i+1:] {
				t1, t2 := talks[u1], talks[u2]
				if t1 == nil || t2 == nil {
					continue
				}
				if t1.DontClash && t2.DontClash && t1.GroupID == t2.GroupID {
					err = multierr.Append(err, fmt.Errorf("talks %d and %d share slot %d", u1, u2, p.TargetID))
				}
			}
		}
	}
	return err
}

func checkSupervisor(snap *model.ScheduleSnapshot, placements []model.Placement, _ Options) error {
	talks := talksByID(snap)
	var err error
	for _, p := range placements {
		assessors := make(map[int64]bool, len(p.Resources))
		for _, r := range p.Resources {
			assessors[r] = true
		}
		for _, u := range p.Units {
			if t := talks[u]; t != nil && t.SupervisorID != 0 && assessors[t.SupervisorID] {
				err = multierr.Append(err, fmt.Errorf("supervisor %d assesses talk %d", t.SupervisorID, u))
			}
		}
	}
	return err
}

func checkFacilities(snap *model.ScheduleSnapshot, placements []model.Placement, _ Options) error {
	talks := talksByID(snap)
	slots := slotsByID(snap)
	periods := make(map[int64]*model.Period, len(snap.Periods))
	for _, p := range snap.Periods {
		periods[p.ID] = p
	}
	var err error
	for _, p := range placements {
		s, ok := slots[p.TargetID]
		if !ok {
			continue
		}
		for _, u := range p.Units {
			t := talks[u]
			if t == nil || periods[t.PeriodID] == nil {
				continue
			}
			if !s.Facilities.Has(periods[t.PeriodID].Facilities) {
				err = multierr.Append(err, fmt.Errorf("talk %d placed in slot %d lacking facilities", u, p.TargetID))
			}
		}
	}
	return err
}

func checkAvailability(snap *model.ScheduleSnapshot, placements []model.Placement, _ Options) error {
	slots := slotsByID(snap)
	var err error
	for _, p := range placements {
		s, ok := slots[p.TargetID]
		if !ok {
			continue
		}
		for _, u := range p.Units {
			if snap.TalkAvailability.Status(u, s.SessionID) == model.Unavailable {
				err = multierr.Append(err, fmt.Errorf("talk %d placed in unavailable session %d", u, s.SessionID))
			}
		}
		for _, r := range p.Resources {
			if snap.AssessorAvailability.Status(r, s.SessionID) == model.Unavailable {
				err = multierr.Append(err, fmt.Errorf("assessor %d placed in unavailable session %d", r, s.SessionID))
			}
		}
	}
	return err
}

func checkPools(snap *model.ScheduleSnapshot, placements []model.Placement, opts Options) error {
	talks := talksByID(snap)
	assessors := lo.KeyBy(snap.Assessors, func(a *model.Assessor) int64 { return a.ID })
	relaxed := opts.Compatibility == CompatRelaxed
	var err error
	for _, p := range placements {
		for _, u := range p.Units {
			t := talks[u]
			if t == nil {
				continue
			}
			pool := lo.Intersect(t.Pool, p.Resources)
			if relaxed && len(pool) == 0 {
				err = multierr.Append(err, fmt.Errorf("talk %d in slot %d has no pool assessor", u, p.TargetID))
			}
			for _, r := range p.Resources {
				if lo.Contains(t.Pool, r) {
					continue
				}
				if a := assessors[r]; relaxed && a != nil && a.Enrolled {
					continue
				}
				err = multierr.Append(err, fmt.Errorf("assessor %d not eligible for talk %d", r, u))
			}
		}
	}
	return err
}

func talksByID(snap *model.ScheduleSnapshot) map[int64]*model.Talk {
	out := make(map[int64]*model.Talk, len(snap.Talks))
	for _, t := range snap.Talks {
		out[t.ID] = t
	}
	return out
}

func slotsByID(snap *model.ScheduleSnapshot) map[int64]*model.Slot {
	out := make(map[int64]*model.Slot, len(snap.Slots))
	for _, s := range snap.Slots {
		out[s.ID] = s
	}
	return out
}
