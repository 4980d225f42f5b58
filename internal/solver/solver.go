// Package solver runs linear models on interchangeable backends and
// classifies what they report.
package solver

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks github.com/rhyrak/go-allocate/internal/solver Adapter

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/rhyrak/go-allocate/internal/lp"
	"github.com/rhyrak/go-allocate/pkg/model"
)

var (
	// ErrBackend is returned when a backend cannot be run at all. It is an
	// environment fault and may be retried.
	ErrBackend = errors.New("solver backend failed")
	// ErrUnknownBackend is returned for backend names missing from the registry.
	ErrUnknownBackend = errors.New("unknown solver backend")
)

// Result is what a backend reports for one model.
type Result struct {
	Status lp.Status
	// Solution is set for optimal results.
	Solution lp.Solution
	Message  string
}

// Adapter solves a model. An error means the backend could not run. A model
// that has no solution is a Result, not an error.
type Adapter interface {
	Name() string
	Solve(ctx context.Context, m *lp.Model) (*Result, error)
}

// Classify maps a backend status onto an attempt outcome.
func Classify(s lp.Status) model.Outcome {
	switch s {
	case lp.StatusOptimal:
		return model.Optimal
	case lp.StatusInfeasible:
		return model.Infeasible
	case lp.StatusUnbounded:
		return model.Unbounded
	case lp.StatusStopped:
		return model.NotSolved
	}
	return model.Undefined
}

// Import reads an externally produced solution file for m. Files that cannot
// be parsed or bound to m produce an unknown status and a diagnostic message.
func Import(r io.Reader, m *lp.Model) *Result {
	f, err := lp.ReadSolution(r)
	if err != nil {
		return &Result{Status: lp.StatusUnknown, Message: err.Error()}
	}
	res := &Result{Status: f.Status, Message: f.StatusText}
	if f.Status != lp.StatusOptimal {
		return res
	}
	sol, err := f.Bind(m)
	if err != nil {
		return &Result{Status: lp.StatusUnknown, Message: err.Error()}
	}
	if v := m.Violations(sol.Values, 1e-6); len(v) > 0 {
		return &Result{Status: lp.StatusUnknown, Message: "solution violates the model: " + v[0]}
	}
	res.Solution = sol
	return res
}

// Registry maps backend names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[strings.ToLower(a.Name())] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrap(ErrUnknownBackend, name)
	}
	return a, nil
}

// Names lists the registered backends.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
