package solver

import (
	"fmt"
	"slices"
)

// Cardinality requires between Min and Max of its literals to be true.
// Literals follow the DIMACS convention: v is the variable, -v its negation.
type Cardinality struct {
	Lits []int
	Min  int
	Max  int
}

// Problem is a boolean satisfaction instance over cardinality constraints.
type Problem struct {
	Variables   int
	Constraints []Cardinality
}

func NewProblem(variables int) *Problem {
	return &Problem{Variables: variables}
}

// NewVariable allocates one more variable and returns it.
func (problem *Problem) NewVariable() int {
	problem.Variables++
	return problem.Variables
}

func (problem *Problem) Add(constraint Cardinality) {
	problem.Constraints = append(problem.Constraints, constraint)
}

func (problem *Problem) ExactlyOne(lits ...int) {
	problem.Add(Cardinality{Lits: lits, Min: 1, Max: 1})
}

func (problem *Problem) AtMost(bound int, lits ...int) {
	if bound >= len(lits) {
		return
	}
	problem.Add(Cardinality{Lits: lits, Min: 0, Max: bound})
}

func (problem *Problem) AtLeast(bound int, lits ...int) {
	if bound <= 0 {
		return
	}
	problem.Add(Cardinality{Lits: lits, Min: bound, Max: len(lits)})
}

// Conflict forbids both literals from holding together.
func (problem *Problem) Conflict(a, b int) {
	problem.Add(Cardinality{Lits: []int{a, b}, Min: 0, Max: 1})
}

// Clause requires at least one of the literals.
func (problem *Problem) Clause(lits ...int) {
	problem.Add(Cardinality{Lits: lits, Min: 1, Max: len(lits)})
}

// Validate rejects literals outside the variable range and repeated variables inside a constraint.
func (problem *Problem) Validate() error {
	for i, constraint := range problem.Constraints {
		seen := make(map[int]bool, len(constraint.Lits))
		for _, literal := range constraint.Lits {
			variable := abs(literal)
			if literal == 0 || variable > problem.Variables {
				return fmt.Errorf("constraint %d: literal %d out of range", i, literal)
			}
			if seen[variable] {
				return fmt.Errorf("constraint %d: variable %d repeated", i, variable)
			}
			seen[variable] = true
		}
	}
	return nil
}

// Check verifies a model indexed by variable (index 0 unused).
func (problem *Problem) Check(model []bool) error {
	if len(model) != problem.Variables+1 {
		return fmt.Errorf("model has %d values for %d variables", len(model)-1, problem.Variables)
	}
	for i, constraint := range problem.Constraints {
		count := 0
		for _, literal := range constraint.Lits {
			if holds(model, literal) {
				count++
			}
		}
		if count < constraint.Min || count > constraint.Max {
			return fmt.Errorf("constraint %d holds %d literals, want [%d, %d]", i, count, constraint.Min, constraint.Max)
		}
	}
	return nil
}

// Clone returns a deep copy, so callers may extend it without touching the original.
func (problem *Problem) Clone() *Problem {
	clone := &Problem{Variables: problem.Variables, Constraints: make([]Cardinality, len(problem.Constraints))}
	for i, constraint := range problem.Constraints {
		clone.Constraints[i] = Cardinality{Lits: slices.Clone(constraint.Lits), Min: constraint.Min, Max: constraint.Max}
	}
	return clone
}

func holds(model []bool, literal int) bool {
	if literal > 0 {
		return model[literal]
	}
	return !model[-literal]
}

func abs(value int) int {
	if value < 0 {
		return -value
	}
	return value
}
