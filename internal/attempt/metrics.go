package attempt

import (
	"github.com/uber-go/tally/v4"

	"github.com/rhyrak/go-allocate/pkg/model"
)

// Metrics contains all the metrics of the attempt runner.
type Metrics struct {
	// Running is the number of attempts currently being constructed or solved.
	Running tally.Gauge

	Created  tally.Counter
	Prepared tally.Counter
	Imported tally.Counter
	// Retries counts reruns of attempts that failed with a retryable error.
	Retries tally.Counter
	// Abandoned counts attempts given up on after an error.
	Abandoned tally.Counter

	ConstructTime tally.Timer
	ComputeTime   tally.Timer

	outcomes map[model.Outcome]tally.Counter
}

// NewMetrics returns metrics rooted below scope.
func NewMetrics(scope tally.Scope) *Metrics {
	attemptScope := scope.SubScope("attempt")
	outcomeScope := attemptScope.SubScope("outcome")

	m := &Metrics{
		Running:       attemptScope.Gauge("running"),
		Created:       attemptScope.Counter("created"),
		Prepared:      attemptScope.Counter("prepared"),
		Imported:      attemptScope.Counter("imported"),
		Retries:       attemptScope.Counter("retries"),
		Abandoned:     attemptScope.Counter("abandoned"),
		ConstructTime: attemptScope.Timer("construct_time"),
		ComputeTime:   attemptScope.Timer("compute_time"),
		outcomes:      make(map[model.Outcome]tally.Counter),
	}
	for _, o := range []model.Outcome{model.NotSolved, model.Optimal, model.Infeasible, model.Unbounded, model.Undefined} {
		m.outcomes[o] = outcomeScope.Tagged(map[string]string{"outcome": o.String()}).Counter("finished")
	}
	return m
}

// Outcome returns the counter of attempts finished with o.
func (m *Metrics) Outcome(o model.Outcome) tally.Counter {
	if c, ok := m.outcomes[o]; ok {
		return c
	}
	return m.outcomes[model.Undefined]
}
