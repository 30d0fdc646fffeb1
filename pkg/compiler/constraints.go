package compiler

import (
	"cmp"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/limaJavier/coursetable/pkg/config"
	"github.com/limaJavier/coursetable/pkg/model"
	"github.com/limaJavier/coursetable/pkg/solver"
)

type sectionDay struct {
	section string
	day     model.Day
}

type subjectDay struct {
	section string
	subject string
	day     model.Day
}

type sectionSubject struct {
	section string
	subject string
}

type cell struct {
	room string
	day  model.Day
	slot int
}

type poolKey struct {
	day  model.Day
	kind model.Kind
	slot int
}

// constraintState is shared read-only by the constraint builders.
type constraintState struct {
	config       config.Configuration
	grid         model.Grid
	strategy     string
	requirements []model.Requirement
	placements   []Placement
	roomChoices  []RoomChoice
	cohorts      []model.CohortOffering

	byRequirement [][]int
	bySectionDay  map[sectionDay][]int
	bySubjectDay  map[subjectDay][]int
	sectionDays   []sectionDay           // Sorted keys of bySectionDay
	subjectDays   []subjectDay           // Sorted keys of bySubjectDay
	spread        map[subjectDay]int     // Indicator variable: the subject meets the section that day
	choices       map[sectionSubject]int // True when the section holds the lab family of an alternative subject
}

func newConstraintState(compilation *Compilation, grid model.Grid, configuration config.Configuration, problem *solver.Problem, spreadDays bool) constraintState {
	state := constraintState{
		config:        configuration,
		grid:          grid,
		strategy:      compilation.Strategy,
		requirements:  compilation.Requirements,
		placements:    compilation.Placements,
		roomChoices:   compilation.RoomChoices,
		cohorts:       compilation.cohorts,
		byRequirement: make([][]int, len(compilation.Requirements)),
		bySectionDay:  make(map[sectionDay][]int),
		bySubjectDay:  make(map[subjectDay][]int),
		spread:        make(map[subjectDay]int),
		choices:       make(map[sectionSubject]int),
	}

	for index, placement := range compilation.Placements {
		requirement := compilation.Requirements[placement.Requirement]
		state.byRequirement[placement.Requirement] = append(state.byRequirement[placement.Requirement], index)

		key := sectionDay{section: requirement.Section, day: placement.Day}
		if _, ok := state.bySectionDay[key]; !ok {
			state.sectionDays = append(state.sectionDays, key)
		}
		state.bySectionDay[key] = append(state.bySectionDay[key], index)

		subjectKey := subjectDay{section: requirement.Section, subject: requirement.Subject, day: placement.Day}
		if _, ok := state.bySubjectDay[subjectKey]; !ok {
			state.subjectDays = append(state.subjectDays, subjectKey)
		}
		state.bySubjectDay[subjectKey] = append(state.bySubjectDay[subjectKey], index)
	}
	slices.SortFunc(state.sectionDays, func(a, b sectionDay) int {
		if a.section != b.section {
			return cmp.Compare(a.section, b.section)
		}
		return int(a.day) - int(b.day)
	})
	slices.SortFunc(state.subjectDays, func(a, b subjectDay) int {
		switch {
		case a.section != b.section:
			return cmp.Compare(a.section, b.section)
		case a.subject != b.subject:
			return cmp.Compare(a.subject, b.subject)
		}
		return int(a.day) - int(b.day)
	})

	// Indicators are allocated up front since builders run concurrently and must not touch the problem
	for _, requirement := range compilation.Requirements {
		key := sectionSubject{section: requirement.Section, subject: requirement.Subject}
		if _, ok := state.choices[key]; requirement.Alternative && !ok {
			state.choices[key] = problem.NewVariable()
		}
	}
	if spreadDays {
		for _, key := range state.subjectDays {
			if state.spreads(key) {
				state.spread[key] = problem.NewVariable()
			}
		}
	}
	return state
}

// spreads reports whether a (section, subject) must be kept off adjacent days: multi-session theory only.
func (state constraintState) spreads(key subjectDay) bool {
	theory := state.theoryOf(key)
	if len(theory) == 0 {
		return false
	}
	requirement := state.requirements[state.placements[theory[0]].Requirement]
	if requirement.Cohort {
		return false
	}
	sessions := lo.CountBy(state.requirements, func(other model.Requirement) bool {
		return other.Section == requirement.Section && other.Subject == requirement.Subject && other.Kind == requirement.Kind
	})
	return sessions > 1
}

// theoryOf keeps the theory placements of a (section, subject, day); alternative subjects mix both kinds.
func (state constraintState) theoryOf(key subjectDay) []int {
	return lo.Filter(state.bySubjectDay[key], func(index int, _ int) bool { return state.placements[index].Kind == model.Theory })
}

func (state constraintState) variables(indices []int) []int {
	return lo.Map(indices, func(index int, _ int) int { return state.placements[index].Variable })
}

// buildProblem runs every builder on its own goroutine and appends their constraints in builder order.
func buildProblem(problem *solver.Problem, builders []func(state constraintState) []solver.Cardinality, state constraintState) {
	type built struct {
		index       int
		constraints []solver.Cardinality
	}

	constraintsChannel := make(chan built)
	for index, builder := range builders {
		go func() {
			constraintsChannel <- built{index: index, constraints: builder(state)}
		}()
	}

	collected := make([][]solver.Cardinality, len(builders))
	for range builders {
		result := <-constraintsChannel
		collected[result.index] = result.constraints
	}
	close(constraintsChannel)

	for _, constraints := range collected {
		for _, constraint := range constraints {
			problem.Add(constraint)
		}
	}
}

// gate returns the literal that is true when an alternative requirement's family is the one held.
func (state constraintState) gate(requirement model.Requirement) int {
	choice := state.choices[sectionSubject{section: requirement.Section, subject: requirement.Subject}]
	if requirement.Kind == model.Lab {
		return choice
	}
	return -choice
}

// Each requirement is held exactly once; an alternative one only when its family is chosen, never otherwise
func requirementConstraints(state constraintState) []solver.Cardinality {
	constraints := make([]solver.Cardinality, 0, len(state.byRequirement))
	for index, indices := range state.byRequirement {
		lits := state.variables(indices)
		if requirement := state.requirements[index]; requirement.Alternative {
			lits = append(lits, -state.gate(requirement))
		}
		constraints = append(constraints, exactly(1, lits...))
	}
	return constraints
}

// A scheduled placement takes exactly one of its rooms; an unscheduled one takes none
func roomLinkConstraints(state constraintState) []solver.Cardinality {
	if state.strategy != config.RoomStrategyEmbedded {
		return nil
	}
	constraints := make([]solver.Cardinality, 0, len(state.placements))
	for _, placement := range state.placements {
		if placement.Offering >= 0 {
			continue
		}
		lits := lo.Map(placement.Choices, func(choice int, _ int) int { return state.roomChoices[choice].Variable })
		constraints = append(constraints, exactly(1, append(lits, -placement.Variable)...))
	}
	return constraints
}

// A room holds at most one session per slot
func roomConstraints(state constraintState) []solver.Cardinality {
	if state.strategy != config.RoomStrategyEmbedded {
		return nil
	}
	byCell := lo.GroupBy(state.roomChoices, func(choice RoomChoice) cell {
		placement := state.placements[choice.Placement]
		return cell{room: choice.Room, day: placement.Day, slot: placement.Slot}
	})
	keys := lo.Keys(byCell)
	slices.SortFunc(keys, func(a, b cell) int {
		switch {
		case a.room != b.room:
			return cmp.Compare(a.room, b.room)
		case a.day != b.day:
			return int(a.day) - int(b.day)
		}
		return a.slot - b.slot
	})

	constraints := make([]solver.Cardinality, 0, len(keys))
	for _, key := range keys {
		lits := lo.Map(byCell[key], func(choice RoomChoice, _ int) int { return choice.Variable })
		if len(lits) > 1 {
			constraints = append(constraints, atMost(1, lits...))
		}
	}
	return constraints
}

// Without room variables, sessions at one (day, slot) may not outnumber the rooms that can take them.
// One bound per distinct room set approximates Hall's condition; matching settles the rest.
func roomPoolConstraints(state constraintState) []solver.Cardinality {
	if state.strategy != config.RoomStrategyPostponed {
		return nil
	}
	ordinary := lo.Filter(lo.Range(len(state.placements)), func(index int, _ int) bool {
		return state.placements[index].Offering < 0
	})
	pools := lo.GroupBy(ordinary, func(index int) poolKey {
		placement := state.placements[index]
		return poolKey{day: placement.Day, kind: placement.Kind, slot: placement.Slot}
	})
	keys := lo.Keys(pools)
	slices.SortFunc(keys, func(a, b poolKey) int {
		switch {
		case a.day != b.day:
			return int(a.day) - int(b.day)
		case a.kind != b.kind:
			return int(a.kind) - int(b.kind)
		}
		return a.slot - b.slot
	})

	constraints := make([]solver.Cardinality, 0)
	for _, key := range keys {
		indices := pools[key]
		union := lo.Uniq(lo.FlatMap(indices, func(index int, _ int) []string { return state.placements[index].Rooms }))
		constraints = append(constraints, atMost(len(union), state.variables(indices)...))

		seen := make(map[string]bool)
		for _, index := range indices {
			rooms := slices.Sorted(slices.Values(state.placements[index].Rooms))
			signature := joinRooms(rooms)
			if seen[signature] || len(rooms) == len(union) {
				continue
			}
			seen[signature] = true
			within := lo.Filter(indices, func(other int, _ int) bool {
				return lo.Every(rooms, state.placements[other].Rooms)
			})
			constraints = append(constraints, atMost(len(rooms), state.variables(within)...))
		}
	}
	return lo.Filter(constraints, func(constraint solver.Cardinality, _ int) bool { return constraint.Max < len(constraint.Lits) })
}

// A section attends one session at a time: every window start is covered by at most one placement.
// Two windows overlap exactly when one of them contains the other's start.
func sectionTimeConstraints(state constraintState) []solver.Cardinality {
	constraints := make([]solver.Cardinality, 0)
	for _, key := range state.sectionDays {
		indices := state.bySectionDay[key]
		points := lo.Uniq(lo.Map(indices, func(index int, _ int) int { return state.placements[index].Window.Start }))
		slices.Sort(points)
		for _, point := range points {
			covering := lo.Filter(indices, func(index int, _ int) bool { return state.placements[index].Window.Contains(point) })
			if distinctRequirements(state, covering) > 1 {
				constraints = append(constraints, atMost(1, state.variables(covering)...))
			}
		}
	}
	return constraints
}

// Per section and day: theory hours within maxHoursPerDay and at most maxLabsPerDay labs
func dailyLoadConstraints(state constraintState) []solver.Cardinality {
	theoryCap := state.config.MaxHoursPerDay * 60 / max(1, state.grid.LongestMinutes(model.Theory))
	constraints := make([]solver.Cardinality, 0)
	for _, key := range state.sectionDays {
		indices := state.bySectionDay[key]
		theory := lo.Filter(indices, func(index int, _ int) bool { return state.placements[index].Kind == model.Theory })
		labs := lo.Filter(indices, func(index int, _ int) bool { return state.placements[index].Kind == model.Lab })
		if theoryCap < len(theory) {
			constraints = append(constraints, atMost(theoryCap, state.variables(theory)...))
		}
		if state.config.MaxLabsPerDay < len(labs) {
			constraints = append(constraints, atMost(state.config.MaxLabsPerDay, state.variables(labs)...))
		}
	}
	return constraints
}

func consecutiveLabConstraints(state constraintState) []solver.Cardinality {
	if state.config.AllowConsecutiveLabs {
		return nil
	}
	return pairConflicts(state, func(a, b Placement) bool {
		return a.Kind == model.Lab && b.Kind == model.Lab && (a.Slot-b.Slot == 1 || b.Slot-a.Slot == 1)
	})
}

func sameSubjectConstraints(state constraintState) []solver.Cardinality {
	if state.config.AllowSameSubjectTwicePerDay {
		return nil
	}
	return oncePerDayConstraints(state)
}

// At most one session of a subject per section and day
func oncePerDayConstraints(state constraintState) []solver.Cardinality {
	constraints := make([]solver.Cardinality, 0)
	for _, key := range state.subjectDays {
		indices := state.bySubjectDay[key]
		if distinctRequirements(state, indices) > 1 {
			constraints = append(constraints, atMost(1, state.variables(indices)...))
		}
	}
	return constraints
}

// Sessions of a section on the same day keep at least minGapMinutes between them
func gapConstraints(state constraintState) []solver.Cardinality {
	if state.config.MinGapMinutes <= 0 {
		return nil
	}
	return pairConflicts(state, func(a, b Placement) bool {
		if a.Window.Overlaps(b.Window) {
			return false
		}
		gap := max(a.Window.Start, b.Window.Start) - min(a.Window.End, b.Window.End)
		return gap < state.config.MinGapMinutes
	})
}

// A section's day never stretches beyond the allowed span
func daySpanConstraints(state constraintState) []solver.Cardinality {
	span := state.config.DaySpanMinutes()
	return pairConflicts(state, func(a, b Placement) bool {
		return max(a.Window.End, b.Window.End)-min(a.Window.Start, b.Window.Start) > span
	})
}

// A multi-session theory subject never meets a section on two adjacent days
func spreadConstraints(state constraintState) []solver.Cardinality {
	if len(state.spread) == 0 {
		return nil
	}
	constraints := make([]solver.Cardinality, 0)
	for _, key := range state.subjectDays {
		indicator, ok := state.spread[key]
		if !ok {
			continue
		}
		// Holding any theory session that day raises the indicator
		for _, variable := range state.variables(state.theoryOf(key)) {
			constraints = append(constraints, atLeast(1, -variable, indicator))
		}
		next := subjectDay{section: key.section, subject: key.subject, day: key.day + 1}
		if following, ok := state.spread[next]; ok {
			constraints = append(constraints, atMost(1, indicator, following))
		}
	}
	return constraints
}

// An offering seats at most capacity / sectionSeats sections
func cohortCapacityConstraints(state constraintState) []solver.Cardinality {
	constraints := make([]solver.Cardinality, 0)
	for offering := range state.cohorts {
		indices := lo.Filter(lo.Range(len(state.placements)), func(index int, _ int) bool {
			return state.placements[index].Offering == offering
		})
		bound := state.cohorts[offering].Capacity / state.config.SectionSeats
		if bound < len(indices) {
			constraints = append(constraints, atMost(bound, state.variables(indices)...))
		}
	}
	return constraints
}

// pairConflicts forbids every pair of same-section, same-day placements of distinct requirements that clash.
func pairConflicts(state constraintState, clash func(a, b Placement) bool) []solver.Cardinality {
	constraints := make([]solver.Cardinality, 0)
	for _, key := range state.sectionDays {
		indices := state.bySectionDay[key]
		for i, first := range indices {
			for _, second := range indices[i+1:] {
				a, b := state.placements[first], state.placements[second]
				if a.Requirement != b.Requirement && clash(a, b) {
					constraints = append(constraints, atMost(1, a.Variable, b.Variable))
				}
			}
		}
	}
	return constraints
}

func distinctRequirements(state constraintState, indices []int) int {
	return len(lo.Uniq(lo.Map(indices, func(index int, _ int) int { return state.placements[index].Requirement })))
}

func exactly(bound int, lits ...int) solver.Cardinality {
	return solver.Cardinality{Lits: lits, Min: bound, Max: bound}
}

func atMost(bound int, lits ...int) solver.Cardinality {
	return solver.Cardinality{Lits: lits, Min: 0, Max: bound}
}

func atLeast(bound int, lits ...int) solver.Cardinality {
	return solver.Cardinality{Lits: lits, Min: bound, Max: len(lits)}
}

func joinRooms(rooms []string) string {
	return strings.Join(rooms, "\x1f")
}
