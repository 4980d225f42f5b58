package model

// ScheduleSnapshot is the read-only input of one scheduling attempt.
// Collections are in canonical order: the order the enumerator indexes them in.
type ScheduleSnapshot struct {
	Talks     []*Talk
	Assessors []*Assessor
	Slots     []*Slot
	Periods   []*Period

	AssessorAvailability AvailabilityTable
	TalkAvailability     AvailabilityTable
}

func (s *ScheduleSnapshot) TalkIDs() []int64 {
	ids := make([]int64, len(s.Talks))
	for i, t := range s.Talks {
		ids[i] = t.ID
	}
	return ids
}

func (s *ScheduleSnapshot) AssessorIDs() []int64 {
	ids := make([]int64, len(s.Assessors))
	for i, a := range s.Assessors {
		ids[i] = a.ID
	}
	return ids
}

func (s *ScheduleSnapshot) SlotIDs() []int64 {
	ids := make([]int64, len(s.Slots))
	for i, sl := range s.Slots {
		ids[i] = sl.ID
	}
	return ids
}

func (s *ScheduleSnapshot) PeriodIDs() []int64 {
	ids := make([]int64, len(s.Periods))
	for i, p := range s.Periods {
		ids[i] = p.ID
	}
	return ids
}
