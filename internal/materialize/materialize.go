// Package materialize turns solved decision variables into persisted placements.
package materialize

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/lp"
	"github.com/rhyrak/go-allocate/internal/objective"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Sink stores the placements of an attempt. StorePlacements replaces both the
// current and the original placements of the attempt.
type Sink interface {
	StorePlacements(ctx context.Context, attemptID string, placements []model.Placement) error
}

// Report carries the diagnostics of a finished attempt.
type Report struct {
	Outcome       model.Outcome
	Score         float64
	ConstructTime time.Duration
	ComputeTime   time.Duration
	Message       string
}

// Apply finishes a with the report.
func (r Report) Apply(a *model.Attempt) error {
	if err := a.Finish(r.Outcome, r.Message); err != nil {
		return err
	}
	a.Score = r.Score
	a.ConstructTime = r.ConstructTime
	a.ComputeTime = r.ComputeTime
	return nil
}

// Placements collects, for every target, the units and resources whose
// variables round to one. Targets without members are omitted.
func Placements(v *objective.Variables, e *enumerate.Enumeration, sol lp.Solution) []model.Placement {
	var out []model.Placement
	for t := 0; t < v.Targets; t++ {
		p := model.Placement{TargetID: e.Targets.ID(t)}
		for u := 0; u < v.Units; u++ {
			if sol.IsSet(v.XAt(u, t)) {
				p.Units = append(p.Units, e.Units.ID(u))
			}
		}
		for r := 0; r < v.Resources; r++ {
			if sol.IsSet(v.YAt(r, t)) {
				p.Resources = append(p.Resources, e.Resources.ID(r))
			}
		}
		if len(p.Units) > 0 || len(p.Resources) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Materialize stores the placements of sol for attemptID and returns them
// with the objective score of sol.
func Materialize(ctx context.Context, sink Sink, attemptID string, m *lp.Model, v *objective.Variables, e *enumerate.Enumeration, sol lp.Solution) ([]model.Placement, float64, error) {
	placements := Placements(v, e, sol)
	if err := sink.StorePlacements(ctx, attemptID, placements); err != nil {
		return nil, 0, errors.Wrap(err, "storing placements")
	}
	return placements, m.Objective().Eval(sol.Values), nil
}
