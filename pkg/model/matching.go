package model

import "github.com/volatiletech/null/v8"

// Selector is a student submitting project preferences.
type Selector struct {
	ID int64 `csv:"selector_id"`
	// Rankings maps project id to rank, 1 being the first choice.
	Rankings map[int64]int `csv:"-"`
}

// RankingCSV is one preference of one selector.
type RankingCSV struct {
	SelectorID int64 `csv:"selector_id"`
	ProjectID  int64 `csv:"project_id"`
	Rank       int   `csv:"rank"`
}

// Faculty supervises and marks projects.
type Faculty struct {
	ID int64 `csv:"faculty_id"`
	// CATSLimit overrides the global workload cap when set.
	CATSLimit null.Int `csv:"cats_limit"`
}

// Cap returns the effective CATS cap.
func (f *Faculty) Cap(def int) int {
	if f.CATSLimit.Valid {
		return f.CATSLimit.Int
	}
	return def
}

// Project is a placement target of the matching problem.
type Project struct {
	ID       int64 `csv:"project_id"`
	OwnerID  int64 `csv:"owner_id"`
	PeriodID int64 `csv:"period_id"`
	// Capacity overrides the period's MaxOccupancy when set.
	Capacity null.Int `csv:"capacity"`
	Markers  []int64  `csv:"-"`
}

// MarkerCSV lists the faculty eligible to mark a project.
type MarkerCSV struct {
	ProjectID int64 `csv:"project_id"`
	FacultyID int64 `csv:"faculty_id"`
}

// MatchingSnapshot is the read-only input of one matching attempt.
type MatchingSnapshot struct {
	Selectors []*Selector
	Faculty   []*Faculty
	Projects  []*Project
	Periods   []*Period
}

func (s *MatchingSnapshot) SelectorIDs() []int64 {
	ids := make([]int64, len(s.Selectors))
	for i, sel := range s.Selectors {
		ids[i] = sel.ID
	}
	return ids
}

func (s *MatchingSnapshot) FacultyIDs() []int64 {
	ids := make([]int64, len(s.Faculty))
	for i, f := range s.Faculty {
		ids[i] = f.ID
	}
	return ids
}

func (s *MatchingSnapshot) ProjectIDs() []int64 {
	ids := make([]int64, len(s.Projects))
	for i, p := range s.Projects {
		ids[i] = p.ID
	}
	return ids
}

func (s *MatchingSnapshot) PeriodIDs() []int64 {
	ids := make([]int64, len(s.Periods))
	for i, p := range s.Periods {
		ids[i] = p.ID
	}
	return ids
}
