package sat

import (
	"context"
	"fmt"
	"strings"
)

// SATSolution lists the literals of a model; nil means the instance is unsatisfiable.
type SATSolution []int64

type SAT struct {
	Variables uint64
	Clauses   [][]int64
}

// SATSolver is implemented by every backend. A backend that runs out of time returns an error wrapping ctx.Err().
type SATSolver interface {
	Solve(ctx context.Context, sat SAT) (SATSolution, error)
	Name() string
}

func (s SAT) ToDIMACS() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "p cnf %d %d\n", s.Variables, len(s.Clauses))
	for _, clause := range s.Clauses {
		for _, literal := range clause {
			fmt.Fprintf(&builder, "%d ", literal)
		}
		builder.WriteString("0\n")
	}
	return builder.String()
}

// Simplified drops repeated literals inside a clause and every clause holding both x and -x.
// The second result is false when a clause is empty, which makes the instance unsatisfiable.
func (s SAT) Simplified() (SAT, bool) {
	simplified := SAT{Variables: s.Variables, Clauses: make([][]int64, 0, len(s.Clauses))}
	for _, clause := range s.Clauses {
		seen := make(map[int64]bool, len(clause))
		kept := make([]int64, 0, len(clause))
		tautology := false
		for _, literal := range clause {
			if seen[-literal] {
				tautology = true
				break
			}
			if !seen[literal] {
				seen[literal] = true
				kept = append(kept, literal)
			}
		}
		if tautology {
			continue
		}
		if len(kept) == 0 {
			return SAT{}, false
		}
		simplified.Clauses = append(simplified.Clauses, kept)
	}
	return simplified, true
}

// Value reports the truth value a solution gives to variable.
func (solution SATSolution) Value(variable uint64) bool {
	for _, literal := range solution {
		if literal == int64(variable) {
			return true
		}
	}
	return false
}

// Assignment expands the solution into a dense slice indexed by variable.
func (solution SATSolution) Assignment(variables uint64) []bool {
	assignment := make([]bool, variables+1)
	for _, literal := range solution {
		if literal > 0 && uint64(literal) <= variables {
			assignment[literal] = true
		}
	}
	return assignment
}
