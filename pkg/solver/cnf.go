package solver

import (
	"github.com/samber/lo"

	"github.com/limaJavier/coursetable/pkg/sat"
)

// Largest at-most-one still encoded pairwise; wider ones go through a sequential counter.
const pairwiseLimit = 6

type cnfBuilder struct {
	variables int
	clauses   [][]int64
}

// Encode translates every cardinality constraint into clauses. Variables 1..problem.Variables keep
// their meaning; auxiliary variables are appended after them.
func Encode(problem *Problem) sat.SAT {
	builder := &cnfBuilder{variables: problem.Variables}
	for _, constraint := range problem.Constraints {
		builder.atLeast(constraint.Lits, constraint.Min)
		builder.atMost(constraint.Lits, constraint.Max)
	}
	return sat.SAT{Variables: uint64(builder.variables), Clauses: builder.clauses}
}

func (builder *cnfBuilder) fresh() int {
	builder.variables++
	return builder.variables
}

func (builder *cnfBuilder) clause(lits ...int) {
	builder.clauses = append(builder.clauses, lo.Map(lits, func(literal int, _ int) int64 { return int64(literal) }))
}

func (builder *cnfBuilder) contradiction() {
	variable := builder.fresh()
	builder.clause(variable)
	builder.clause(-variable)
}

func (builder *cnfBuilder) atLeast(lits []int, bound int) {
	switch {
	case bound <= 0:
	case bound > len(lits):
		builder.contradiction()
	case bound == 1:
		builder.clause(lits...)
	default:
		// At least k of n is at most n-k of the negations
		negated := lo.Map(lits, func(literal int, _ int) int { return -literal })
		builder.atMost(negated, len(lits)-bound)
	}
}

func (builder *cnfBuilder) atMost(lits []int, bound int) {
	n := len(lits)
	switch {
	case bound < 0:
		builder.contradiction()
	case bound >= n:
	case bound == 0:
		for _, literal := range lits {
			builder.clause(-literal)
		}
	case bound == 1 && n <= pairwiseLimit:
		for i := range n {
			for j := i + 1; j < n; j++ {
				builder.clause(-lits[i], -lits[j])
			}
		}
	default:
		builder.sequentialCounter(lits, bound)
	}
}

// sequentialCounter is Sinz's encoding: counter[i][j] holds when at least j+1 of lits[0..i] are true.
func (builder *cnfBuilder) sequentialCounter(lits []int, bound int) {
	n := len(lits)
	counter := make([][]int, n-1)
	for i := range counter {
		counter[i] = make([]int, bound)
		for j := range counter[i] {
			counter[i][j] = builder.fresh()
		}
	}

	builder.clause(-lits[0], counter[0][0])
	for j := 1; j < bound; j++ {
		builder.clause(-counter[0][j])
	}
	for i := 1; i < n-1; i++ {
		builder.clause(-lits[i], counter[i][0])
		builder.clause(-counter[i-1][0], counter[i][0])
		for j := 1; j < bound; j++ {
			builder.clause(-lits[i], -counter[i-1][j-1], counter[i][j])
			builder.clause(-counter[i-1][j], counter[i][j])
		}
		builder.clause(-lits[i], -counter[i-1][bound-1])
	}
	builder.clause(-lits[n-1], -counter[n-2][bound-1])
}
