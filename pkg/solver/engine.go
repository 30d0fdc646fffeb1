package solver

import (
	"context"
	"time"

	"github.com/limaJavier/coursetable/pkg/config"
)

type Status int

const (
	Feasible Status = iota + 1
	Infeasible
	// TimedOut means the budget ran out before a verdict; it is not a proof of infeasibility.
	TimedOut
)

var statusNames = map[Status]string{
	Feasible:   "feasible",
	Infeasible: "infeasible",
	TimedOut:   "timed_out",
}

func (status Status) String() string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "unknown"
}

type Stats struct {
	Backend     string
	Variables   int
	Constraints int
	Nodes       int64
	Worker      int
	Elapsed     time.Duration
}

// Result never carries a partial model: Model is set only when Status is Feasible.
type Result struct {
	Status Status
	Model  []bool
	Stats  Stats
}

// Infeasible reports whether no solution was produced, either proven or for lack of time.
func (result Result) Infeasible() bool {
	return result.Status != Feasible
}

// Engine searches a compiled problem. Implementations must honour tuning.Budget().
type Engine interface {
	Solve(ctx context.Context, problem *Problem, tuning config.SolverTuning) (Result, error)
}
