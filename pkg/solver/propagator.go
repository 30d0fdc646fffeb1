package solver

type occurrence struct {
	constraint int
	positive   bool // Polarity of the variable inside the constraint
}

// propagator keeps per-constraint counters of true and false literals and undoes assignments through a trail.
type propagator struct {
	problem     *Problem
	occurrences [][]occurrence // Shared, read-only

	values  []int8 // +1 true, -1 false, 0 unassigned
	trues   []int
	falses  []int
	trail   []int
	pending []int
	queued  []bool
}

func buildOccurrences(problem *Problem) [][]occurrence {
	occurrences := make([][]occurrence, problem.Variables+1)
	for index, constraint := range problem.Constraints {
		for _, literal := range constraint.Lits {
			variable := abs(literal)
			occurrences[variable] = append(occurrences[variable], occurrence{constraint: index, positive: literal > 0})
		}
	}
	return occurrences
}

func newPropagator(problem *Problem, occurrences [][]occurrence) *propagator {
	return &propagator{
		problem:     problem,
		occurrences: occurrences,
		values:      make([]int8, problem.Variables+1),
		trues:       make([]int, len(problem.Constraints)),
		falses:      make([]int, len(problem.Constraints)),
		trail:       make([]int, 0, problem.Variables),
		queued:      make([]bool, len(problem.Constraints)),
	}
}

func (p *propagator) literalValue(literal int) int8 {
	if literal < 0 {
		return -p.values[-literal]
	}
	return p.values[literal]
}

func (p *propagator) free(constraint int) int {
	return len(p.problem.Constraints[constraint].Lits) - p.trues[constraint] - p.falses[constraint]
}

func (p *propagator) enqueue(constraint int) {
	if !p.queued[constraint] {
		p.queued[constraint] = true
		p.pending = append(p.pending, constraint)
	}
}

func (p *propagator) enqueueAll() {
	for constraint := range p.problem.Constraints {
		p.enqueue(constraint)
	}
}

func (p *propagator) clearPending() {
	for _, constraint := range p.pending {
		p.queued[constraint] = false
	}
	p.pending = p.pending[:0]
}

// assign makes literal true. It fails only when the literal is already false.
func (p *propagator) assign(literal int) bool {
	switch p.literalValue(literal) {
	case 1:
		return true
	case -1:
		return false
	}

	variable, value := literal, int8(1)
	if literal < 0 {
		variable, value = -literal, -1
	}
	p.values[variable] = value
	p.trail = append(p.trail, variable)
	for _, occurrence := range p.occurrences[variable] {
		if occurrence.positive == (value == 1) {
			p.trues[occurrence.constraint]++
		} else {
			p.falses[occurrence.constraint]++
		}
		p.enqueue(occurrence.constraint)
	}
	return true
}

// propagate drains the queue, forcing literals of saturated constraints. It returns false on conflict.
func (p *propagator) propagate() bool {
	for len(p.pending) > 0 {
		index := p.pending[len(p.pending)-1]
		p.pending = p.pending[:len(p.pending)-1]
		p.queued[index] = false

		constraint := p.problem.Constraints[index]
		trues, free := p.trues[index], p.free(index)
		if trues > constraint.Max || trues+free < constraint.Min {
			p.clearPending()
			return false
		}
		if free == 0 {
			continue
		}

		var forceTrue bool
		switch {
		case trues == constraint.Max:
			forceTrue = false
		case trues+free == constraint.Min:
			forceTrue = true
		default:
			continue
		}

		for _, literal := range constraint.Lits {
			if p.literalValue(literal) != 0 {
				continue
			}
			target := literal
			if !forceTrue {
				target = -literal
			}
			p.assign(target)
		}
	}
	return true
}

// undo rolls the trail back to mark.
func (p *propagator) undo(mark int) {
	for len(p.trail) > mark {
		variable := p.trail[len(p.trail)-1]
		p.trail = p.trail[:len(p.trail)-1]
		value := p.values[variable]
		for _, occurrence := range p.occurrences[variable] {
			if occurrence.positive == (value == 1) {
				p.trues[occurrence.constraint]--
			} else {
				p.falses[occurrence.constraint]--
			}
		}
		p.values[variable] = 0
	}
	p.clearPending()
}

// model completes the assignment with false for every untouched variable.
func (p *propagator) model() []bool {
	model := make([]bool, len(p.values))
	for variable, value := range p.values {
		model[variable] = value == 1
	}
	return model
}
