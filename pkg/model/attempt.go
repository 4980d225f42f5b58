package model

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the classified result of a solve. Values match the integer codes
// stored by earlier releases.
type Outcome int

const (
	NotSolved  Outcome = 0
	Optimal    Outcome = 1
	Infeasible Outcome = -1
	Unbounded  Outcome = -2
	Undefined  Outcome = -3
)

func (o Outcome) String() string {
	switch o {
	case NotSolved:
		return "not_solved"
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case Undefined:
		return "undefined"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

type State string

const (
	StateCreated  State = "created"
	StateSolving  State = "solving"
	StateFinished State = "finished"
)

type Kind string

const (
	KindScheduling Kind = "scheduling"
	KindMatching   Kind = "matching"
)

type Mode string

const (
	ModeLive    Mode = "live"
	ModeOffline Mode = "offline"
)

type ObjectiveKind string

const (
	ObjectiveFresh     ObjectiveKind = "fresh"
	ObjectiveDeviation ObjectiveKind = "deviation"
)

var (
	ErrAttemptFinished = errors.New("attempt already finished")
	ErrAttemptNotBegun = errors.New("attempt is not solving")
)

// Attempt is one solve attempt and its diagnostics.
type Attempt struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	Mode      Mode          `json:"mode"`
	Backend   string        `json:"backend"`
	Objective ObjectiveKind `json:"objective"`
	// PriorAttemptID names the attempt whose placements a deviation solve stays close to.
	PriorAttemptID string `json:"prior_attempt_id,omitempty"`
	// NoNewTargets pins a deviation solve to the targets the prior solution used.
	NoNewTargets bool `json:"no_new_targets"`
	// Input locates the snapshot the attempt solves, e.g. a data directory.
	Input string `json:"input"`

	State         State         `json:"state"`
	Outcome       Outcome       `json:"outcome"`
	Score         float64       `json:"score"`
	ConstructTime time.Duration `json:"construct_time"`
	ComputeTime   time.Duration `json:"compute_time"`
	Finished      bool          `json:"finished"`
	Message       string        `json:"message"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Begin moves the attempt to SOLVING. Re-entering SOLVING is allowed so that
// retried tasks can start over.
func (a *Attempt) Begin() error {
	if a.Finished {
		return ErrAttemptFinished
	}
	a.State = StateSolving
	return nil
}

// Finish records a terminal outcome. Terminal states are final.
func (a *Attempt) Finish(outcome Outcome, message string) error {
	if a.Finished {
		return ErrAttemptFinished
	}
	if a.State != StateSolving {
		return ErrAttemptNotBegun
	}
	a.State = StateFinished
	a.Outcome = outcome
	a.Message = message
	a.Finished = true
	return nil
}
