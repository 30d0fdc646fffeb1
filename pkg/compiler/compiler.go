package compiler

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/limaJavier/coursetable/pkg/config"
	"github.com/limaJavier/coursetable/pkg/model"
	"github.com/limaJavier/coursetable/pkg/solver"
)

// Occupancy reports (room, timeslot) cells committed by earlier runs.
type Occupancy interface {
	Occupied(usage model.Usage) bool
}

type Request struct {
	Input     model.Input
	Config    config.Configuration
	Semesters []int     // Empty selects every semester
	Occupancy Occupancy // Consulted only when Config.UseUsageLedger is set
}

// Placement holds a requirement at one (day, slot). Its variable is true when the requirement is scheduled there.
type Placement struct {
	Variable    int
	Requirement int
	Day         model.Day
	Kind        model.Kind
	Slot        int
	Window      model.Window
	Offering    int      // Index into the cohort offerings, -1 for ordinary sessions
	Rooms       []string // Free eligible rooms
	Choices     []int    // Indices into RoomChoices (embedded strategy only)
}

// RoomChoice puts a placement into a concrete room.
type RoomChoice struct {
	Variable  int
	Placement int
	Room      string
}

type Compilation struct {
	Problem      *solver.Problem
	Strategy     string
	Requirements []model.Requirement
	Placements   []Placement
	RoomChoices  []RoomChoice
	// Shortage explains why the instance cannot be satisfied before any search; Problem is nil then
	Shortage string

	cohorts []model.CohortOffering
}

func (compilation *Compilation) Infeasible() bool {
	return compilation.Shortage != ""
}

// Compile turns the selected semesters into a constraint problem.
func Compile(request Request) (*Compilation, error) {
	if err := request.Config.Validate(); err != nil {
		return nil, err
	}
	if err := request.Input.Validate(); err != nil {
		return nil, err
	}

	subjects := lo.KeyBy(request.Input.Subjects, func(subject model.Subject) string { return subject.Code })
	requirements := request.Input.Requirements(request.Semesters, request.Config.EnableCohort)

	builders := []func(state constraintState) []solver.Cardinality{
		requirementConstraints,
		roomLinkConstraints,
		roomConstraints,
		roomPoolConstraints,
		sectionTimeConstraints,
		dailyLoadConstraints,
		consecutiveLabConstraints,
		sameSubjectConstraints,
		gapConstraints,
		daySpanConstraints,
		spreadConstraints,
		cohortCapacityConstraints,
	}
	return compile(request, requirements, subjects, builders, !request.Config.AllowSubjectOnConsecutiveDays)
}

// CompileElectives builds the elective variant: demand comes from the elective records and the
// section-level daily limits give way to one session per synthetic section per day. A section of an
// elective allowing both kinds gets a choice variable picking its theory or its lab family.
func CompileElectives(request Request) (*Compilation, error) {
	if err := request.Config.Validate(); err != nil {
		return nil, err
	}
	if err := request.Input.ValidateElectives(); err != nil {
		return nil, err
	}

	subjects := make(map[string]model.Subject, len(request.Input.Electives))
	for _, elective := range request.Input.Electives {
		subjects[elective.Code] = model.Subject{Code: elective.Code, Name: elective.Name}
	}
	builders := []func(state constraintState) []solver.Cardinality{
		requirementConstraints,
		roomLinkConstraints,
		roomConstraints,
		roomPoolConstraints,
		sectionTimeConstraints,
		oncePerDayConstraints,
		spreadConstraints,
	}
	request.Input.Cohorts = nil
	return compile(request, request.Input.ElectiveRequirements(), subjects, builders, true)
}

func compile(
	request Request,
	requirements []model.Requirement,
	subjects map[string]model.Subject,
	builders []func(state constraintState) []solver.Cardinality,
	spreadDays bool,
) (*Compilation, error) {
	configuration := request.Config
	grid := request.Input.Grid
	if grid.IsZero() {
		grid = model.DefaultGrid()
	}
	rooms := request.Input.Rooms

	compilation := &Compilation{
		Strategy:     configuration.RoomStrategy,
		Requirements: requirements,
		cohorts:      request.Input.Cohorts,
	}
	problem := solver.NewProblem(0)

	//** Enumerate ordinary placements
	evaluator := newPredicateEvaluator(grid, configuration, requirements, subjects, reservedRooms(request.Input.Subjects), rooms, request.Occupancy)
	slots := max(len(grid.Theory), len(grid.Lab))
	generator := newPermutationGenerator(uint64(len(requirements)), uint64(configuration.WorkingDaysPerWeek), uint64(slots), uint64(len(rooms)))

	permutations := generator.ConstrainedPermutations([]func(permutation []uint64) bool{
		// Cohort requirements are placed through their offerings
		func(permutation []uint64) bool {
			requirement := permutation[requirementAttribute]
			return requirement == unset || !requirements[requirement].Cohort
		},
		// Allowed(r, d, s) = 1
		func(permutation []uint64) bool {
			requirement, day, slot := permutation[requirementAttribute], permutation[dayAttribute], permutation[slotAttribute]
			return requirement == unset ||
				day == unset ||
				slot == unset ||

				// Actual predicate
				evaluator.Allowed(requirement, day, slot)
		},
		// Eligible(r, k) = 1
		func(permutation []uint64) bool {
			requirement, room := permutation[requirementAttribute], permutation[roomAttribute]
			return requirement == unset ||
				room == unset ||

				// Actual predicate
				evaluator.Eligible(requirement, room)
		},
		// Free(k, d, s) = 1
		func(permutation []uint64) bool {
			day, slot, room := permutation[dayAttribute], permutation[slotAttribute], permutation[roomAttribute]
			return day == unset ||
				slot == unset ||
				room == unset ||

				// Actual predicate
				evaluator.Free(room, day, slot)
		},
	})

	// Permutations arrive sorted by (requirement, day, slot), so each placement's rooms are contiguous
	last := [3]uint64{unset, unset, unset}
	for _, permutation := range permutations {
		requirement, day, slot, room := permutation[requirementAttribute], permutation[dayAttribute], permutation[slotAttribute], permutation[roomAttribute]
		if key := [3]uint64{requirement, day, slot}; key != last {
			last = key
			kind := requirements[requirement].Kind
			compilation.Placements = append(compilation.Placements, Placement{
				Variable:    problem.NewVariable(),
				Requirement: int(requirement),
				Day:         model.Day(day),
				Kind:        kind,
				Slot:        int(slot),
				Window:      grid.Window(kind, int(slot)),
				Offering:    -1,
			})
		}

		index := len(compilation.Placements) - 1
		placement := &compilation.Placements[index]
		placement.Rooms = append(placement.Rooms, rooms[room].ID)
		if configuration.RoomStrategy == config.RoomStrategyEmbedded {
			placement.Choices = append(placement.Choices, len(compilation.RoomChoices))
			compilation.RoomChoices = append(compilation.RoomChoices, RoomChoice{
				Variable:  problem.NewVariable(),
				Placement: index,
				Room:      rooms[room].ID,
			})
		}
	}

	//** Enumerate cohort placements
	for index, requirement := range requirements {
		if !requirement.Cohort {
			continue
		}
		for offeringIndex, offering := range request.Input.Cohorts {
			if offering.Subject != requirement.Subject || !slotAllowed(grid, configuration, offering.Day, offering.Kind, offering.Slot) {
				continue
			}
			compilation.Placements = append(compilation.Placements, Placement{
				Variable:    problem.NewVariable(),
				Requirement: index,
				Day:         offering.Day,
				Kind:        offering.Kind,
				Slot:        offering.Slot,
				Window:      grid.Window(offering.Kind, offering.Slot),
				Offering:    offeringIndex,
				Rooms:       []string{offering.Room},
			})
		}
	}

	//** Capacity pre-check
	if shortage := capacityShortage(compilation, grid, configuration, rooms, evaluator); shortage != "" {
		compilation.Shortage = shortage
		return compilation, nil
	}

	//** Build constraints
	state := newConstraintState(compilation, grid, configuration, problem, spreadDays)
	buildProblem(problem, builders, state)
	compilation.Problem = problem
	return compilation, nil
}

// capacityShortage compares the sessions each kind needs with the free (room, slot) cells left for it.
func capacityShortage(compilation *Compilation, grid model.Grid, configuration config.Configuration, rooms []model.Room, evaluator predicateEvaluator) string {
	for _, kind := range model.Kinds {
		// Alternatives may land on either kind, so only fixed demand counts here
		need := lo.CountBy(compilation.Requirements, func(requirement model.Requirement) bool {
			return requirement.Kind == kind && !requirement.Cohort && !requirement.Alternative
		})
		if need == 0 {
			continue
		}
		have := 0
		for room := range rooms {
			if rooms[room].Kind != kind {
				continue
			}
			for day := range configuration.WorkingDaysPerWeek {
				for slot := range grid.Windows(kind) {
					if slotAllowed(grid, configuration, model.Day(day), kind, slot) && evaluator.Free(uint64(room), uint64(day), uint64(slot)) {
						have++
					}
				}
			}
		}
		if need > have {
			return fmt.Sprintf("not enough free %v slots: need %d, have %d", kind, need, have)
		}
	}

	placed := make([]bool, len(compilation.Requirements))
	for _, placement := range compilation.Placements {
		placed[placement.Requirement] = true
	}
	for index, ok := range placed {
		if !ok && !compilation.Requirements[index].Alternative {
			return fmt.Sprintf("no eligible room and slot for %v", compilation.Requirements[index])
		}
	}
	return ""
}

// Selected returns the indices of the placements a model schedules.
func (compilation *Compilation) Selected(values []bool) []int {
	selected := make([]int, 0, len(compilation.Requirements))
	for index, placement := range compilation.Placements {
		if values[placement.Variable] {
			selected = append(selected, index)
		}
	}
	return selected
}

// Decode reads the scheduled placements out of a model, in the order of Selected. Under the postponed
// strategy rooms are left empty for ordinary sessions, to be matched afterwards.
func (compilation *Compilation) Decode(values []bool) []model.Assignment {
	assignments := make([]model.Assignment, 0, len(compilation.Requirements))
	for _, index := range compilation.Selected(values) {
		placement := compilation.Placements[index]
		requirement := compilation.Requirements[placement.Requirement]
		assignment := model.Assignment{
			Section:    requirement.Section,
			Semester:   requirement.Semester,
			Subject:    requirement.Subject,
			Kind:       placement.Kind,
			Occurrence: requirement.Occurrence,
			Day:        placement.Day,
			Slot:       placement.Slot,
			Start:      placement.Window.Start,
			End:        placement.Window.End,
		}
		if placement.Offering >= 0 {
			offering := compilation.cohorts[placement.Offering]
			assignment.Room = offering.Room
			assignment.Cohort = offering.Label
		}
		for _, choice := range placement.Choices {
			if values[compilation.RoomChoices[choice].Variable] {
				assignment.Room = compilation.RoomChoices[choice].Room
				break
			}
		}
		assignments = append(assignments, assignment)
	}
	return assignments
}
