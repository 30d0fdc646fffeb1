package sat

import (
	"context"
	"fmt"

	"github.com/crillab/gophersat/solver"
	"github.com/samber/lo"
)

type gophersatSolver struct{}

// NewGophersatSolver returns an in-process backend built on gophersat.
func NewGophersatSolver() SATSolver {
	return &gophersatSolver{}
}

func (s *gophersatSolver) Name() string {
	return "gophersat"
}

type gophersatOutcome struct {
	status solver.Status
	model  []bool
	err    error
}

func (s *gophersatSolver) Solve(ctx context.Context, sat SAT) (SATSolution, error) {
	// gophersat's learning breaks on repeated literals and tautological clauses
	simplified, satisfiable := sat.Simplified()
	if !satisfiable {
		return nil, nil
	}
	if len(simplified.Clauses) == 0 {
		return lo.Map(lo.RangeFrom(int64(1), int(sat.Variables)), func(variable int64, _ int) int64 { return -variable }), nil
	}
	clauses := lo.Map(simplified.Clauses, func(clause []int64, _ int) []int {
		return lo.Map(clause, func(literal int64, _ int) int { return int(literal) })
	})

	// gophersat cannot be interrupted, so an expired deadline abandons the search goroutine
	outcomes := make(chan gophersatOutcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				outcomes <- gophersatOutcome{err: fmt.Errorf("gophersat crashed: %v", recovered)}
			}
		}()
		problem := solver.ParseSlice(clauses)
		instance := solver.New(problem)
		status := instance.Solve()
		outcome := gophersatOutcome{status: status}
		if status == solver.Sat {
			outcome.model = instance.Model()
		}
		outcomes <- outcome
	}()

	var outcome gophersatOutcome
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("gophersat interrupted: %w", ctx.Err())
	case outcome = <-outcomes:
	}
	if outcome.err != nil {
		return nil, outcome.err
	}

	switch outcome.status {
	case solver.Sat:
	case solver.Unsat:
		return nil, nil
	default:
		return nil, fmt.Errorf("gophersat finished without a verdict")
	}

	solution := make(SATSolution, 0, sat.Variables)
	for variable := uint64(1); variable <= sat.Variables; variable++ {
		// Variables absent from every clause are not part of the model
		index := int(variable) - 1
		if index < len(outcome.model) && outcome.model[index] {
			solution = append(solution, int64(variable))
		} else {
			solution = append(solution, -int64(variable))
		}
	}
	return solution, nil
}
