package scheduler

import (
	"github.com/samber/lo"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Compatibility selects how assessors are matched to talk pools.
type Compatibility string

const (
	// CompatStrict requires every assessor of a talk to be in its pool.
	CompatStrict Compatibility = "strict"
	// CompatRelaxed requires one pool assessor per talk, the others must be enrolled.
	CompatRelaxed Compatibility = "relaxed"
)

// Options are the scheduling parameters that shape the model.
type Options struct {
	// DefaultCap is the placement cap of assessors without an override.
	DefaultCap    int
	Compatibility Compatibility
}

func DefaultOptions() Options {
	return Options{DefaultCap: 4, Compatibility: CompatStrict}
}

// sessionGroups lists target indices per session, in order of first appearance.
func sessionGroups(slots []*model.Slot, e *enumerate.Enumeration) (order []int64, groups map[int64][]int) {
	byID := lo.KeyBy(slots, func(s *model.Slot) int64 { return s.ID })
	groups = make(map[int64][]int)
	for t, id := range e.Targets.IDs() {
		s := byID[id]
		if _, ok := groups[s.SessionID]; !ok {
			order = append(order, s.SessionID)
		}
		groups[s.SessionID] = append(groups[s.SessionID], t)
	}
	return order, groups
}

// poolIndices maps a talk pool to resource indices, skipping assessors that are
// no longer enumerated.
func poolIndices(pool []int64, e *enumerate.Enumeration) map[int]bool {
	out := make(map[int]bool, len(pool))
	for _, id := range pool {
		if r, ok := e.Resources.Index(id); ok {
			out[r] = true
		}
	}
	return out
}

// ordered returns the entities of snap in enumeration order.
func ordered(snap *model.ScheduleSnapshot, e *enumerate.Enumeration) ([]*model.Talk, []*model.Assessor, []*model.Slot, []*model.Period) {
	talks := lo.KeyBy(snap.Talks, func(t *model.Talk) int64 { return t.ID })
	assessors := lo.KeyBy(snap.Assessors, func(a *model.Assessor) int64 { return a.ID })
	slots := lo.KeyBy(snap.Slots, func(s *model.Slot) int64 { return s.ID })
	periods := lo.KeyBy(snap.Periods, func(p *model.Period) int64 { return p.ID })

	return lo.Map(e.Units.IDs(), func(id int64, _ int) *model.Talk { return talks[id] }),
		lo.Map(e.Resources.IDs(), func(id int64, _ int) *model.Assessor { return assessors[id] }),
		lo.Map(e.Targets.IDs(), func(id int64, _ int) *model.Slot { return slots[id] }),
		lo.Map(e.Periods.IDs(), func(id int64, _ int) *model.Period { return periods[id] })
}
