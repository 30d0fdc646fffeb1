package compiler

import "math"

// Marks an attribute the generator has not fixed yet
const unset = math.MaxUint64

// Attribute positions inside a permutation
const (
	requirementAttribute = iota
	dayAttribute
	slotAttribute
	roomAttribute
)

type permutationGenerator interface {
	// Attributes' order in the permutation parameter is the following: Requirement, Day, Slot, Room.
	// Every predicate must accept a permutation whose relevant attributes are still unset (math.MaxUint64),
	// since predicates are evaluated after each attribute is fixed to prune the enumeration early.
	//
	// Example:
	//
	//	permutations := generator.ConstrainedPermutations([]func(permutation []uint64) bool{
	//		func(permutation []uint64) bool {
	//			// permutation[1] might not be fixed yet
	//			return permutation[1] == math.MaxUint64 || permutation[1] == 1
	//		},
	//	})
	ConstrainedPermutations(predicates []func(permutation []uint64) bool) [][]uint64
}

type permutationGeneratorImplementation struct {
	domains []uint64
}

func newPermutationGenerator(requirements, days, slots, rooms uint64) permutationGenerator {
	return &permutationGeneratorImplementation{domains: []uint64{requirements, days, slots, rooms}}
}

func (generator *permutationGeneratorImplementation) ConstrainedPermutations(predicates []func(permutation []uint64) bool) [][]uint64 {
	permutation := make([]uint64, len(generator.domains))
	for i := range permutation {
		permutation[i] = unset
	}
	permutations := make([][]uint64, 0)
	generator.constrainedPermutations(predicates, 0, permutation, &permutations)
	return permutations
}

func (generator *permutationGeneratorImplementation) constrainedPermutations(
	predicates []func(permutation []uint64) bool,
	currentDomain int,
	permutation []uint64,
	permutations *[][]uint64) {

	if currentDomain >= len(generator.domains) {
		permutationCopy := make([]uint64, len(permutation))
		copy(permutationCopy, permutation)
		*permutations = append(*permutations, permutationCopy)
		return
	}

	for i := uint64(0); i < generator.domains[currentDomain]; i++ {
		permutation[currentDomain] = i
		violated := false
		for _, predicate := range predicates {
			if !predicate(permutation) {
				violated = true
				break
			}
		}
		if violated {
			continue
		}
		generator.constrainedPermutations(predicates, currentDomain+1, permutation, permutations)
	}

	permutation[currentDomain] = unset
}
