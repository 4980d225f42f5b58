package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/pkg/model"
)

func TestValidateReportsEveryFailure(t *testing.T) {
	snap := snapshot(3, 2, 2, 1, 1, 1)
	for _, s := range snap.Slots {
		s.SessionID = 1
	}
	snap.Talks[0].GroupID, snap.Talks[1].GroupID = 5, 5
	snap.Talks[0].DontClash, snap.Talks[1].DontClash = true, true
	snap.Talks[0].SupervisorID = 100
	snap.Periods[0].Facilities = model.FacilityProjector

	placements := []model.Placement{
		{TargetID: 1000, Units: []int64{10, 11}, Resources: []int64{100}},
		{TargetID: 1001, Units: []int64{11}, Resources: []int64{100, 101}},
	}
	valid, report := Validate(snap, nil, placements, DefaultOptions())
	assert.False(t, valid)
	for _, line := range []string{
		"[FAIL]: Talk placed once check.",
		"[FAIL]: Slot occupancy check.",
		"[FAIL]: Assessor cap check.",
		"[FAIL]: Assessor session collision check.",
		"[FAIL]: Co-scheduled talk check.",
		"[FAIL]: Supervisor conflict check.",
		"[FAIL]: Room facility check.",
		"- talk 12 placed 0 times",
		"- talk 11 placed 2 times",
	} {
		assert.Contains(t, report, line)
	}
}

func TestValidateAcceptsEmptyProblem(t *testing.T) {
	valid, report := Validate(&model.ScheduleSnapshot{}, nil, nil, DefaultOptions())
	assert.True(t, valid)
	assert.Contains(t, report, "[  OK]: Talk placed once check.")
}

func TestValidateAvailability(t *testing.T) {
	snap := snapshot(1, 1, 1, 1, 1, 1)
	snap.TalkAvailability.Set(10, 1, model.Unavailable)
	snap.AssessorAvailability.Set(100, 1, model.Unavailable)

	placements := []model.Placement{{TargetID: 1000, Units: []int64{10}, Resources: []int64{100}}}
	valid, report := Validate(snap, nil, placements, DefaultOptions())
	assert.False(t, valid)
	assert.Contains(t, report, "[FAIL]: Availability check.")
	assert.Contains(t, report, "- talk 10 placed in unavailable session 1")
	assert.Contains(t, report, "- assessor 100 placed in unavailable session 1")

	snap.AssessorAvailability.Set(100, 1, model.IfNeeded)
	snap.TalkAvailability.Set(10, 1, model.Available)
	_, report = Validate(snap, nil, placements, DefaultOptions())
	assert.Contains(t, report, "[  OK]: Availability check.")
}

func TestValidatePools(t *testing.T) {
	snap := snapshot(1, 2, 1, 2, 1, 1)
	snap.Talks[0].Pool = []int64{100}
	snap.Assessors[1].Enrolled = true
	placements := []model.Placement{{TargetID: 1000, Units: []int64{10}, Resources: []int64{100, 101}}}

	valid, report := Validate(snap, nil, placements, DefaultOptions())
	assert.False(t, valid)
	assert.Contains(t, report, "[FAIL]: Assessor pool check.")
	assert.Contains(t, report, "- assessor 101 not eligible for talk 10")

	relaxed := Options{DefaultCap: 1, Compatibility: CompatRelaxed}
	_, report = Validate(snap, nil, placements, relaxed)
	assert.Contains(t, report, "[  OK]: Assessor pool check.")

	snap.Talks[0].Pool = []int64{102}
	_, report = Validate(snap, nil, placements, relaxed)
	assert.Contains(t, report, "- talk 10 in slot 1000 has no pool assessor")
}

func TestValidateIgnoresTalksOutsideEnumeration(t *testing.T) {
	snap := snapshot(2, 1, 1, 1, 1, 1)
	e := enumerate.Fresh([]int64{10}, snap.AssessorIDs(), snap.SlotIDs(), snap.PeriodIDs())
	placements := []model.Placement{{TargetID: 1000, Units: []int64{10}, Resources: []int64{100}}}

	valid, report := Validate(snap, e, placements, DefaultOptions())
	assert.True(t, valid, report)
	assert.NotContains(t, report, "talk 11")

	valid, report = Validate(snap, nil, placements, DefaultOptions())
	assert.False(t, valid)
	assert.Contains(t, report, "- talk 11 placed 0 times")
}
