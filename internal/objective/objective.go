// Package objective holds the interchangeable cost models shared by the
// scheduling and matching builders.
package objective

import (
	"fmt"

	"github.com/rhyrak/go-allocate/internal/availability"
	"github.com/rhyrak/go-allocate/internal/lp"
)

// Variables is the view of a built model that cost models price.
type Variables struct {
	Units, Resources, Targets int

	// X is the units x targets placement grid, row-major.
	X []lp.Var
	// Y is the resources x targets placement grid, row-major.
	Y []lp.Var
	// Occupancy holds the target-occupied-by-period indicators.
	Occupancy []lp.Var
	// Used holds one is-used flag per resource. May be empty.
	Used []lp.Var

	AMax, AMin lp.Var
	HasSpread  bool

	// UnitCost is an optional units x targets cost, e.g. preference rank.
	UnitCost []float64
	// IfNeeded marks the resource/target pairs that carry the if-needed penalty.
	IfNeeded *availability.Matrix
}

func (v *Variables) XAt(u, t int) lp.Var { return v.X[u*v.Targets+t] }

func (v *Variables) YAt(r, t int) lp.Var { return v.Y[r*v.Targets+t] }

// Weights scales the terms of an objective.
type Weights struct {
	Occupancy  float64 `mapstructure:"occupancy"`
	IfNeeded   float64 `mapstructure:"if_needed"`
	Tension    float64 `mapstructure:"tension"`
	Idle       float64 `mapstructure:"idle"`
	Preference float64 `mapstructure:"preference"`
}

// CostModel sets the objective of a model, adding any constraints it needs.
type CostModel interface {
	Name() string
	Apply(m *lp.Model, v *Variables) error
}

// shared adds the if-needed, workload spread and unit cost terms.
func shared(e *lp.Expr, w Weights, v *Variables) {
	if w.IfNeeded != 0 && v.IfNeeded != nil {
		for r := 0; r < v.Resources; r++ {
			row := v.IfNeeded.Row(r)
			for t, flag := range row {
				if flag != 0 {
					e.Add(v.YAt(r, t), w.IfNeeded)
				}
			}
		}
	}
	if w.Tension != 0 && v.HasSpread {
		e.Add(v.AMax, w.Tension).Add(v.AMin, -w.Tension)
	}
	if w.Preference != 0 && len(v.UnitCost) > 0 {
		for i, c := range v.UnitCost {
			if c != 0 {
				e.Add(v.X[i], w.Preference*c)
			}
		}
	}
}

// Fresh minimises occupied targets, if-needed use, workload spread and idle
// resources with no reference to earlier solutions.
type Fresh struct {
	Weights Weights
}

func (f *Fresh) Name() string { return "fresh" }

func (f *Fresh) Apply(m *lp.Model, v *Variables) error {
	var e lp.Expr
	for _, o := range v.Occupancy {
		e.Add(o, f.Weights.Occupancy)
	}
	shared(&e, f.Weights, v)
	// idle resources: sum(1 - used)
	for _, u := range v.Used {
		e.Add(u, -f.Weights.Idle)
	}
	e.AddConstant(float64(len(v.Used)) * f.Weights.Idle)
	m.SetObjective(e)
	return nil
}

// Deviation minimises the number of placement bits that differ from Prior.
type Deviation struct {
	Weights Weights
	Prior   *Prior
	// Pin forbids placements on targets the prior solution left empty.
	Pin bool
}

func (d *Deviation) Name() string { return "deviation" }

func (d *Deviation) Apply(m *lp.Model, v *Variables) error {
	p := d.Prior
	if p == nil {
		return fmt.Errorf("deviation objective needs a prior solution")
	}
	if p.Units != v.Units || p.Resources != v.Resources || p.Targets != v.Targets {
		return fmt.Errorf("prior solution is %dx%dx%d, model is %dx%dx%d",
			p.Units, p.Resources, p.Targets, v.Units, v.Resources, v.Targets)
	}

	var e lp.Expr
	flip := func(x lp.Var, was uint8) {
		if was != 0 {
			e.Add(x, -1).AddConstant(1)
		} else {
			e.Add(x, 1)
		}
	}
	for i, x := range v.X {
		flip(x, p.X[i])
	}
	for i, y := range v.Y {
		flip(y, p.Y[i])
	}
	shared(&e, d.Weights, v)
	m.SetObjective(e)

	if d.Pin {
		for t := 0; t < v.Targets; t++ {
			if p.Used(t) {
				continue
			}
			var pin lp.Expr
			for u := 0; u < v.Units; u++ {
				pin.Add(v.XAt(u, t), 1)
			}
			for r := 0; r < v.Resources; r++ {
				pin.Add(v.YAt(r, t), 1)
			}
			m.AddConstraint(fmt.Sprintf("pin_%d", t), pin, lp.LessEqual, 0)
		}
	}
	return nil
}
