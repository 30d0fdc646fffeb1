package sat

import (
	"context"
	"fmt"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

const giniPollInterval = 5 * time.Millisecond

type giniSolver struct{}

// NewGiniSolver returns an in-process CDCL backend.
func NewGiniSolver() SATSolver {
	return &giniSolver{}
}

func (solver *giniSolver) Name() string {
	return "gini"
}

func (solver *giniSolver) Solve(ctx context.Context, sat SAT) (SATSolution, error) {
	g := gini.New()
	known := uint64(0) // Highest variable gini has seen
	for _, clause := range sat.Clauses {
		for _, literal := range clause {
			g.Add(giniLiteral(literal))
			known = max(known, uint64(max(literal, -literal)))
		}
		g.Add(0)
	}

	// Run in the background so the deadline can interrupt the search
	solve := g.GoSolve()
	var result int
	for {
		current, done := solve.Test()
		if done {
			result = current
			break
		}
		select {
		case <-ctx.Done():
			solve.Stop()
			return nil, fmt.Errorf("gini interrupted: %w", ctx.Err())
		case <-time.After(giniPollInterval):
		}
	}

	switch result {
	case 1:
	case -1:
		return nil, nil
	default:
		return nil, fmt.Errorf("gini finished without a verdict (%d)", result)
	}

	solution := make(SATSolution, 0, sat.Variables)
	for variable := uint64(1); variable <= sat.Variables; variable++ {
		if variable <= known && g.Value(giniLiteral(int64(variable))) {
			solution = append(solution, int64(variable))
		} else {
			solution = append(solution, -int64(variable))
		}
	}
	return solution, nil
}

func giniLiteral(literal int64) z.Lit {
	if literal < 0 {
		return z.Var(-literal).Neg()
	}
	return z.Var(literal).Pos()
}
