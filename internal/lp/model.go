// Package lp holds a solver-neutral linear model and its text interchange formats.
package lp

import (
	"fmt"
	"math"
	"sort"
)

// Kind is the domain of a variable.
type Kind uint8

const (
	Binary Kind = iota
	Integer
	Continuous
)

func (k Kind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Integer:
		return "integer"
	case Continuous:
		return "continuous"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Var is the index of a variable in its Model.
type Var int

type Variable struct {
	Name  string
	Kind  Kind
	Lower float64
	Upper float64
}

type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression. The zero value is the constant 0.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Sum returns the expression v1 + v2 + ... + vn.
func Sum(vars ...Var) Expr {
	e := Expr{Terms: make([]Term, 0, len(vars))}
	for _, v := range vars {
		e.Terms = append(e.Terms, Term{Var: v, Coef: 1})
	}
	return e
}

func (e *Expr) Add(v Var, coef float64) *Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

func (e *Expr) AddConstant(c float64) *Expr {
	e.Constant += c
	return e
}

// AddExpr adds scale*o to e.
func (e *Expr) AddExpr(o Expr, scale float64) *Expr {
	for _, t := range o.Terms {
		e.Terms = append(e.Terms, Term{Var: t.Var, Coef: t.Coef * scale})
	}
	e.Constant += o.Constant * scale
	return e
}

// Eval evaluates the expression for the given variable values.
func (e Expr) Eval(values []float64) float64 {
	total := e.Constant
	for _, t := range e.Terms {
		total += t.Coef * values[t.Var]
	}
	return total
}

// Compact merges repeated variables, drops zero coefficients and orders terms by variable.
func (e Expr) Compact() Expr {
	if len(e.Terms) == 0 {
		return Expr{Constant: e.Constant}
	}
	coefs := make(map[Var]float64, len(e.Terms))
	for _, t := range e.Terms {
		coefs[t.Var] += t.Coef
	}
	out := Expr{Terms: make([]Term, 0, len(coefs)), Constant: e.Constant}
	for v, c := range coefs {
		if c != 0 {
			out.Terms = append(out.Terms, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool {
		return out.Terms[i].Var < out.Terms[j].Var
	})
	return out
}

type Sense uint8

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	}
	return fmt.Sprintf("Sense(%d)", uint8(s))
}

// Constraint is Expr Sense RHS. Expr carries no constant.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Satisfied reports whether values satisfy c within tol.
func (c Constraint) Satisfied(values []float64, tol float64) bool {
	lhs := c.Expr.Eval(values)
	switch c.Sense {
	case LessEqual:
		return lhs <= c.RHS+tol
	case GreaterEqual:
		return lhs >= c.RHS-tol
	default:
		return math.Abs(lhs-c.RHS) <= tol
	}
}

// Model is a minimisation problem over named variables.
type Model struct {
	Name string

	vars        []Variable
	names       map[string]Var
	constraints []Constraint
	objective   Expr
}

func NewModel(name string) *Model {
	return &Model{Name: name, names: make(map[string]Var)}
}

// AddVar declares a variable. Names must be unique within the model.
func (m *Model) AddVar(name string, kind Kind, lower, upper float64) Var {
	if _, dup := m.names[name]; dup {
		panic(fmt.Sprintf("lp: duplicate variable %q", name))
	}
	if kind == Binary {
		lower, upper = 0, 1
	}
	v := Var(len(m.vars))
	m.vars = append(m.vars, Variable{Name: name, Kind: kind, Lower: lower, Upper: upper})
	m.names[name] = v
	return v
}

func (m *Model) AddBinary(name string) Var {
	return m.AddVar(name, Binary, 0, 1)
}

// AddConstraint adds e sense rhs. The constant part of e is moved to the right
// hand side. An empty name is replaced by a generated one.
func (m *Model) AddConstraint(name string, e Expr, sense Sense, rhs float64) {
	if name == "" {
		name = fmt.Sprintf("_C%d", len(m.constraints)+1)
	}
	e = e.Compact()
	rhs -= e.Constant
	e.Constant = 0
	m.constraints = append(m.constraints, Constraint{Name: name, Expr: e, Sense: sense, RHS: rhs})
}

func (m *Model) SetObjective(e Expr) {
	m.objective = e.Compact()
}

func (m *Model) Objective() Expr { return m.objective }

func (m *Model) NumVars() int { return len(m.vars) }

func (m *Model) NumConstraints() int { return len(m.constraints) }

func (m *Model) Variable(v Var) Variable { return m.vars[v] }

// Variables returns the declared variables in declaration order. The slice must not be modified.
func (m *Model) Variables() []Variable { return m.vars }

// Constraints returns the constraints in insertion order. The slice must not be modified.
func (m *Model) Constraints() []Constraint { return m.constraints }

func (m *Model) Lookup(name string) (Var, bool) {
	v, ok := m.names[name]
	return v, ok
}

// Violations lists the constraints and bounds that values break.
func (m *Model) Violations(values []float64, tol float64) []string {
	var out []string
	for i, v := range m.vars {
		x := values[i]
		if x < v.Lower-tol || x > v.Upper+tol {
			out = append(out, fmt.Sprintf("bound %s: %g not in [%g, %g]", v.Name, x, v.Lower, v.Upper))
		}
	}
	for _, c := range m.constraints {
		if !c.Satisfied(values, tol) {
			out = append(out, fmt.Sprintf("constraint %s: %g %s %g", c.Name, c.Expr.Eval(values), c.Sense, c.RHS))
		}
	}
	return out
}

// Solution holds one value per model variable.
type Solution struct {
	Values []float64
}

func NewSolution(n int) Solution {
	return Solution{Values: make([]float64, n)}
}

func (s Solution) Value(v Var) float64 {
	return s.Values[v]
}

// IsSet reports whether a binary variable rounds to 1.
func (s Solution) IsSet(v Var) bool {
	return math.Round(s.Values[v]) == 1
}
