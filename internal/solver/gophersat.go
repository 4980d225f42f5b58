package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/crillab/gophersat/solver"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rhyrak/go-allocate/internal/lp"
)

const BackendGophersat = "gophersat"

// Gophersat solves models in process as pseudo-boolean optimisation problems.
// Integer and continuous variables must have finite bounds; they are encoded
// in binary. Continuous variables only take integral values, which is exact
// for models whose constraint coefficients are integral.
type Gophersat struct {
	// ObjectiveScale multiplies objective coefficients before rounding them.
	ObjectiveScale float64
}

func NewGophersat(scale float64) *Gophersat {
	if scale <= 0 {
		scale = 1
	}
	return &Gophersat{ObjectiveScale: scale}
}

func (g *Gophersat) Name() string { return BackendGophersat }

func (g *Gophersat) Solve(ctx context.Context, m *lp.Model) (*Result, error) {
	enc, err := encodePB(m, g.ObjectiveScale)
	if err != nil {
		return nil, errors.Wrap(ErrBackend, err.Error())
	}
	if enc.infeasible != "" {
		return &Result{Status: lp.StatusInfeasible, Message: enc.infeasible}, nil
	}
	if enc.nbConstrs == 0 && len(enc.objective) == 0 {
		return &Result{Status: lp.StatusOptimal, Solution: enc.decode(nil)}, nil
	}
	if err := ctx.Err(); err != nil {
		return &Result{Status: lp.StatusStopped, Message: err.Error()}, nil
	}
	pb := solver.ParsePBConstrs(enc.constrs)
	if pb.Status == solver.Unsat {
		return &Result{Status: lp.StatusInfeasible}, nil
	}
	log.WithFields(log.Fields{
		"variables":   enc.nbVars,
		"constraints": enc.nbConstrs,
	}).Debug("Pseudo-boolean model encoded")

	type outcome struct {
		status lp.Status
		bits   []bool
		err    error
	}
	stop := make(chan struct{})
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%v", r)}
			}
		}()
		status, bits := minimize(solver.New(pb), enc.objective, stop)
		done <- outcome{status: status, bits: bits}
	}()

	select {
	case <-ctx.Done():
		close(stop)
		return &Result{Status: lp.StatusStopped, Message: ctx.Err().Error()}, nil
	case o := <-done:
		if o.err != nil {
			return nil, errors.Wrapf(ErrBackend, "gophersat: %v", o.err)
		}
		res := &Result{Status: o.status}
		if o.status == lp.StatusOptimal {
			res.Solution = enc.decode(o.bits)
		}
		return res, nil
	}
}

// minimize searches for a model and tightens the objective bound until no
// cheaper model exists. A closed stop ends the search before the next
// tightening step; a satisfiability call in progress runs to completion.
func minimize(s *solver.Solver, obj []pbTerm, stop <-chan struct{}) (lp.Status, []bool) {
	if s.Solve() != solver.Sat {
		return lp.StatusInfeasible, nil
	}
	best := s.Model()
	var total int64
	for _, t := range obj {
		total += t.coef
	}
	for {
		cost := objectiveCost(obj, best)
		if cost == 0 {
			break
		}
		select {
		case <-stop:
			return lp.StatusStopped, nil
		default:
		}
		// the negated objective literals must carry more than total-cost weight
		lits := make([]solver.Lit, len(obj))
		weights := make([]int, len(obj))
		for i, t := range obj {
			lits[i] = solver.IntToLit(int32(-t.lit))
			weights[i] = int(t.coef)
		}
		s.AppendClause(solver.NewPBClause(lits, weights, int(total-cost+1)))
		if s.Solve() != solver.Sat {
			break
		}
		best = s.Model()
	}
	return lp.StatusOptimal, best
}

func objectiveCost(obj []pbTerm, bits []bool) int64 {
	var cost int64
	for _, t := range obj {
		if litValue(t.lit, bits) {
			cost += t.coef
		}
	}
	return cost
}

// litValue reads a signed literal; variables the solver never saw are false.
func litValue(lit int, bits []bool) bool {
	if lit < 0 {
		return !litValue(-lit, bits)
	}
	return lit-1 < len(bits) && bits[lit-1]
}

// pbEncoding is a model translated to pseudo-boolean constraints. Every model
// variable is represented by one or more literals.
type pbEncoding struct {
	constrs    []solver.PBConstr
	objective  []pbTerm
	nbVars     int
	nbConstrs  int
	infeasible string

	// per model variable: base value plus weighted literal bits
	lower []float64
	bits  [][]int
}

// pbTerm is a weighted literal; negative literals are negated variables.
type pbTerm struct {
	coef int64
	lit  int
}

func encodePB(m *lp.Model, scale float64) (*pbEncoding, error) {
	enc := &pbEncoding{}
	vars := m.Variables()
	enc.lower = make([]float64, len(vars))
	enc.bits = make([][]int, len(vars))

	type capRow struct {
		name  string
		terms []pbTerm
		span  int64
	}
	var caps []capRow
	for i, v := range vars {
		if v.Kind == lp.Binary {
			enc.nbVars++
			enc.bits[i] = []int{enc.nbVars}
			continue
		}
		if math.IsInf(v.Lower, 0) || math.IsInf(v.Upper, 0) {
			return nil, fmt.Errorf("variable %s has an infinite bound", v.Name)
		}
		lo, up := math.Ceil(v.Lower), math.Floor(v.Upper)
		if up < lo {
			enc.infeasible = fmt.Sprintf("variable %s has an empty domain", v.Name)
			return enc, nil
		}
		enc.lower[i] = lo
		span := int64(up - lo)
		var terms []pbTerm
		for w := int64(1); w <= span; w <<= 1 {
			enc.nbVars++
			enc.bits[i] = append(enc.bits[i], enc.nbVars)
			terms = append(terms, pbTerm{coef: -w, lit: enc.nbVars})
		}
		if span > 0 && span&(span+1) != 0 {
			// span is not 2^k-1, cap the encoded value
			caps = append(caps, capRow{name: v.Name, terms: terms, span: span})
		}
	}

	// expand rewrites a linear expression over model variables as integer
	// pseudo-boolean terms plus a constant.
	expand := func(e lp.Expr) ([]pbTerm, float64, error) {
		var out []pbTerm
		constant := 0.0
		for _, t := range e.Terms {
			ic := math.Round(t.Coef)
			if math.Abs(t.Coef-ic) > 1e-9 {
				return nil, 0, fmt.Errorf("variable %s has fractional coefficient %g", vars[t.Var].Name, t.Coef)
			}
			constant += ic * enc.lower[t.Var]
			for k, lit := range enc.bits[t.Var] {
				out = append(out, pbTerm{coef: int64(ic) << uint(k), lit: lit})
			}
		}
		return out, constant, nil
	}

	for _, c := range m.Constraints() {
		terms, constant, err := expand(c.Expr)
		if err != nil {
			return nil, errors.Wrap(err, c.Name)
		}
		if math.Abs(c.RHS-math.Round(c.RHS)) > 1e-9 {
			return nil, fmt.Errorf("constraint %s has fractional right hand side %g", c.Name, c.RHS)
		}
		b := c.RHS - constant
		if c.Sense == lp.GreaterEqual || c.Sense == lp.Equal {
			enc.addGE(c.Name, terms, b)
		}
		if c.Sense == lp.LessEqual || c.Sense == lp.Equal {
			enc.addGE(c.Name, negate(terms), -b)
		}
		if enc.infeasible != "" {
			return enc, nil
		}
	}
	for _, c := range caps {
		enc.addGE(c.name, c.terms, float64(-c.span))
	}
	if enc.infeasible != "" {
		return enc, nil
	}

	// objective, scaled to integers; a negative weight moves onto the negated literal
	for _, t := range expandObjective(m.Objective(), scale, enc.bits) {
		if t.coef < 0 {
			t = pbTerm{coef: -t.coef, lit: -t.lit}
		}
		enc.objective = append(enc.objective, t)
	}
	enc.nbConstrs = len(enc.constrs)

	// an always satisfied row over every literal sizes the solver to all variables
	all := make([]int, enc.nbVars)
	ones := make([]int, enc.nbVars)
	for i := range all {
		all[i] = i + 1
		ones[i] = 1
	}
	enc.constrs = append(enc.constrs, solver.GtEq(all, ones, 0))
	return enc, nil
}

// addGE adds sum(terms) >= bound in the normal form the solver expects:
// literals merged, weights positive. Rows that always hold are dropped and
// rows that never hold mark the encoding infeasible.
func (enc *pbEncoding) addGE(name string, terms []pbTerm, bound float64) {
	if enc.infeasible != "" {
		return
	}
	card := int64(math.Ceil(bound - 1e-9))
	merged := make(map[int]int64, len(terms))
	var order []int
	for _, t := range terms {
		if _, ok := merged[t.lit]; !ok {
			order = append(order, t.lit)
		}
		merged[t.lit] += t.coef
	}

	var lits, weights []int
	var sum int64
	for _, lit := range order {
		w := merged[lit]
		switch {
		case w == 0:
			continue
		case w < 0:
			w, lit = -w, -lit
			card += w
		}
		lits = append(lits, lit)
		weights = append(weights, int(w))
		sum += w
	}
	if card <= 0 {
		return
	}
	if sum < card {
		enc.infeasible = fmt.Sprintf("constraint %s cannot be satisfied", name)
		return
	}
	enc.constrs = append(enc.constrs, solver.GtEq(lits, weights, int(card)))
}

// expandObjective drops the constant part, which does not move the optimum.
func expandObjective(e lp.Expr, scale float64, bits [][]int) []pbTerm {
	merged := make(map[int]int64)
	var order []int
	for _, t := range e.Terms {
		c := math.Round(t.Coef * scale)
		for k, lit := range bits[t.Var] {
			if _, ok := merged[lit]; !ok {
				order = append(order, lit)
			}
			merged[lit] += int64(c) << uint(k)
		}
	}
	out := make([]pbTerm, 0, len(order))
	for _, lit := range order {
		if merged[lit] != 0 {
			out = append(out, pbTerm{coef: merged[lit], lit: lit})
		}
	}
	return out
}

func negate(terms []pbTerm) []pbTerm {
	out := make([]pbTerm, len(terms))
	for i, t := range terms {
		out[i] = pbTerm{coef: -t.coef, lit: t.lit}
	}
	return out
}

// decode maps a pseudo-boolean model back onto the model variables.
func (enc *pbEncoding) decode(bits []bool) lp.Solution {
	sol := lp.NewSolution(len(enc.bits))
	for i, lits := range enc.bits {
		v := enc.lower[i]
		for k, lit := range lits {
			if litValue(lit, bits) {
				v += float64(int64(1) << uint(k))
			}
		}
		sol.Values[i] = v
	}
	return sol
}
