package attempt

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/lp"
	"github.com/rhyrak/go-allocate/internal/matching"
	"github.com/rhyrak/go-allocate/internal/objective"
	"github.com/rhyrak/go-allocate/internal/scheduler"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// built is the kind independent view of a constructed model.
type built struct {
	model    *lp.Model
	vars     *objective.Variables
	enum     *enumerate.Enumeration
	warnings []string
}

// problem binds a loaded snapshot to the builder and validator of its kind.
type problem struct {
	weights   objective.Weights
	enumerate func() *enumerate.Enumeration
	// ids lists units, resources, targets and periods of the snapshot.
	ids      func() (units, resources, targets, periods []int64)
	build    func(e *enumerate.Enumeration, cost objective.CostModel) (*built, error)
	validate func(e *enumerate.Enumeration, placements []model.Placement) (bool, string)
	sizes    func() (units, resources, targets int)
}

func (r *Runner) problem(ctx context.Context, a *model.Attempt) (*problem, error) {
	switch a.Kind {
	case model.KindScheduling:
		snap, err := r.source.Schedule(ctx, a.Input)
		if err != nil {
			return nil, err
		}
		return scheduling(snap, r.opts.Scheduling, r.opts.SchedulingWeights), nil
	case model.KindMatching:
		snap, err := r.source.Matching(ctx, a.Input)
		if err != nil {
			return nil, err
		}
		return matchingProblem(snap, r.opts.Matching, r.opts.MatchingWeights), nil
	}
	return nil, errors.Errorf("unknown attempt kind %q", a.Kind)
}

func scheduling(snap *model.ScheduleSnapshot, opts scheduler.Options, w objective.Weights) *problem {
	return &problem{
		weights:   w,
		enumerate: func() *enumerate.Enumeration { return scheduler.Enumerate(snap) },
		ids: func() ([]int64, []int64, []int64, []int64) {
			return snap.TalkIDs(), snap.AssessorIDs(), snap.SlotIDs(), snap.PeriodIDs()
		},
		build: func(e *enumerate.Enumeration, cost objective.CostModel) (*built, error) {
			b, err := scheduler.Build(snap, e, opts, cost)
			if err != nil {
				return nil, err
			}
			return &built{model: b.Model, vars: b.Vars, enum: b.Enum, warnings: b.Warnings}, nil
		},
		validate: func(e *enumerate.Enumeration, placements []model.Placement) (bool, string) {
			return scheduler.Validate(snap, e, placements, opts)
		},
		sizes: func() (int, int, int) {
			return len(snap.Talks), len(snap.Assessors), len(snap.Slots)
		},
	}
}

func matchingProblem(snap *model.MatchingSnapshot, opts matching.Options, w objective.Weights) *problem {
	return &problem{
		weights:   w,
		enumerate: func() *enumerate.Enumeration { return matching.Enumerate(snap) },
		ids: func() ([]int64, []int64, []int64, []int64) {
			return snap.SelectorIDs(), snap.FacultyIDs(), snap.ProjectIDs(), snap.PeriodIDs()
		},
		build: func(e *enumerate.Enumeration, cost objective.CostModel) (*built, error) {
			b, err := matching.Build(snap, e, opts, cost)
			if err != nil {
				return nil, err
			}
			return &built{model: b.Model, vars: b.Vars, enum: b.Enum}, nil
		},
		validate: func(e *enumerate.Enumeration, placements []model.Placement) (bool, string) {
			return matching.Validate(snap, e, placements, opts)
		},
		sizes: func() (int, int, int) {
			return len(snap.Selectors), len(snap.Faculty), len(snap.Projects)
		},
	}
}
