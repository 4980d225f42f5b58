package model

import "github.com/volatiletech/null/v8"

// Talk is the assignable unit of the scheduling problem.
type Talk struct {
	ID       int64 `csv:"talk_id"`
	PeriodID int64 `csv:"period_id"`
	// GroupID is the parent grouping, e.g. the project the talk belongs to.
	GroupID int64 `csv:"group_id"`
	// DontClash forbids sharing a slot with other flagged talks of the same group.
	DontClash bool `csv:"dont_clash"`
	// SupervisorID may never assess this talk. Zero means none.
	SupervisorID int64   `csv:"supervisor_id"`
	Pool         []int64 `csv:"-"`
}

// PoolCSV lists the assessors eligible for a talk.
type PoolCSV struct {
	TalkID     int64 `csv:"talk_id"`
	AssessorID int64 `csv:"assessor_id"`
}

// Assessor is the resource unit of the scheduling problem.
type Assessor struct {
	ID int64 `csv:"assessor_id"`
	// AssignedLimit overrides the global cap when set. A zero value is a hard zero cap.
	AssignedLimit null.Int `csv:"assigned_limit"`
	Enrolled      bool     `csv:"enrolled"`
}

// Cap returns the effective placement cap.
func (a *Assessor) Cap(def int) int {
	if a.AssignedLimit.Valid {
		return a.AssignedLimit.Int
	}
	return def
}

// Period is the policy attached to a kind of assignable unit.
type Period struct {
	ID                int64    `csv:"period_id"`
	RequiredResources int      `csv:"required_resources"`
	MaxOccupancy      int      `csv:"max_occupancy"`
	Facilities        Facility `csv:"facilities"`
	SupervisingCATS   int      `csv:"supervising_cats"`
	MarkingCATS       int      `csv:"marking_cats"`
}
