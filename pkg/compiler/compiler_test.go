package compiler

import (
	"context"
	"slices"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/model"
	"github.com/limaJavier/coursetable/pkg/solver"
)

type occupied map[model.Usage]bool

func (cells occupied) Occupied(usage model.Usage) bool {
	return cells[usage]
}

func sampleInput() model.Input {
	return model.Input{
		Grid:      model.DefaultGrid(),
		Semesters: []model.Semester{{Number: 1, Courses: []string{"CS101", "MATH201", "CS101L", "PHY101L"}}},
		Sections: []model.Section{
			{Name: "S1CS1", Semester: 1, Capacity: 40},
			{Name: "S1CS2", Semester: 1, Capacity: 45},
		},
		Subjects: []model.Subject{
			{Code: "CS101", Kind: model.Theory, WeeklySessions: 2},
			{Code: "MATH201", Kind: model.Theory, WeeklySessions: 1},
			{Code: "CS101L", Kind: model.Lab, WeeklySessions: 1, Special: true, Rooms: []string{"LAB-1"}},
			{Code: "PHY101L", Kind: model.Lab, WeeklySessions: 1},
		},
		Rooms: []model.Room{
			{ID: "R1", Kind: model.Theory, Capacity: 50},
			{ID: "R2", Kind: model.Theory, Capacity: 50},
			{ID: "LAB-1", Kind: model.Lab, Capacity: 50},
			{ID: "LAB-2", Kind: model.Lab, Capacity: 50},
		},
	}
}

func solve(t *testing.T, compilation *Compilation) (solver.Result, []model.Assignment) {
	t.Helper()
	require.False(t, compilation.Infeasible(), compilation.Shortage)
	result, err := solver.NewBacktrackingEngine(nil).Solve(context.Background(), compilation.Problem, config.Default().Solver)
	require.NoError(t, err)
	if result.Status != solver.Feasible {
		return result, nil
	}
	return result, compilation.Decode(result.Model)
}

// assertTimetable checks the properties every produced timetable must have.
func assertTimetable(t *testing.T, input model.Input, assignments []model.Assignment) {
	t.Helper()
	cells := make(map[model.Usage]bool)
	for i, assignment := range assignments {
		assert.False(t, assignment.Day == model.Friday && assignment.Slot == model.FridayBreakSlot, "friday break used by %v", assignment)
		if assignment.Cohort == "" {
			assert.False(t, cells[assignment.Usage()], "double booked %v", assignment.Usage())
			cells[assignment.Usage()] = true
		}
		for _, other := range assignments[i+1:] {
			if assignment.Section == other.Section {
				assert.False(t, assignment.Clashes(other), "%v clashes with %v", assignment, other)
			}
		}
		for _, subject := range input.Subjects {
			if subject.Code == assignment.Subject && subject.Special {
				assert.Contains(t, subject.Rooms, assignment.Room)
			}
		}
	}
}

func TestPermutationGenerator(t *testing.T) {
	//** Arrange
	generator := newPermutationGenerator(2, 2, 2, 2)

	//** Act
	permutations := generator.ConstrainedPermutations([]func(permutation []uint64) bool{
		func(permutation []uint64) bool {
			day, slot := permutation[dayAttribute], permutation[slotAttribute]
			return day == unset || slot == unset || day == slot
		},
	})

	//** Assert
	assert.Len(t, permutations, 8)
	assert.Equal(t, []uint64{0, 0, 0, 0}, permutations[0])
	assert.Equal(t, []uint64{0, 0, 0, 1}, permutations[1])
	assert.Equal(t, []uint64{1, 1, 1, 1}, permutations[7])
}

func TestPlacementFiltering(t *testing.T) {
	//** Arrange
	configuration := config.Default()
	configuration.EarliestStartHour = 9

	//** Act
	compilation, err := Compile(Request{Input: sampleInput(), Config: configuration})

	//** Assert
	require.NoError(t, err)
	require.False(t, compilation.Infeasible())
	assert.NotEmpty(t, compilation.Placements)
	for _, placement := range compilation.Placements {
		requirement := compilation.Requirements[placement.Requirement]
		assert.False(t, placement.Day == model.Friday && placement.Slot == model.FridayBreakSlot)
		assert.Less(t, int(placement.Day), configuration.WorkingDaysPerWeek)
		assert.GreaterOrEqual(t, placement.Window.Start, 9*60)
		assert.LessOrEqual(t, placement.Window.End, 20*60)
		switch requirement.Subject {
		case "CS101L":
			assert.Equal(t, []string{"LAB-1"}, placement.Rooms)
		case "PHY101L":
			assert.Equal(t, []string{"LAB-2"}, placement.Rooms)
		default:
			assert.Equal(t, []string{"R1", "R2"}, placement.Rooms)
		}
		assert.Len(t, placement.Choices, len(placement.Rooms))
	}
}

func TestOccupiedCellsAreExcluded(t *testing.T) {
	//** Arrange
	ledger := occupied{
		{Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 0}: true,
		{Kind: model.Lab, Room: "LAB-1", Day: model.Tuesday, Slot: 1}: true,
	}

	//** Act
	compilation, err := Compile(Request{Input: sampleInput(), Config: config.Default(), Occupancy: ledger})

	//** Assert
	require.NoError(t, err)
	for _, choice := range compilation.RoomChoices {
		placement := compilation.Placements[choice.Placement]
		usage := model.Usage{Kind: placement.Kind, Room: choice.Room, Day: placement.Day, Slot: placement.Slot}
		assert.False(t, ledger[usage], "occupied cell %v offered", usage)
	}
	_, assignments := solve(t, compilation)
	for _, assignment := range assignments {
		assert.False(t, ledger[assignment.Usage()])
	}

	// Ignored when the ledger is switched off
	configuration := config.Default()
	configuration.UseUsageLedger = false
	compilation, err = Compile(Request{Input: sampleInput(), Config: configuration, Occupancy: ledger})
	require.NoError(t, err)
	assert.True(t, slices.ContainsFunc(compilation.RoomChoices, func(choice RoomChoice) bool {
		placement := compilation.Placements[choice.Placement]
		return choice.Room == "R1" && placement.Day == model.Monday && placement.Slot == 0
	}))
}

func TestCapacityShortage(t *testing.T) {
	//** Arrange
	input := sampleInput()
	input.Semesters[0].Courses = []string{"MATH201"}
	input.Subjects = input.Subjects[1:2]
	input.Rooms = input.Rooms[:1]
	configuration := config.Default()
	configuration.WorkingDaysPerWeek = 1
	configuration.NoClassesAfterHour = 10

	//** Act
	compilation, err := Compile(Request{Input: input, Config: configuration})

	//** Assert
	require.NoError(t, err)
	assert.True(t, compilation.Infeasible())
	assert.Equal(t, "not enough free theory slots: need 2, have 1", compilation.Shortage)
	assert.Nil(t, compilation.Problem)
}

func TestCompileAndSolve(t *testing.T) {
	for _, strategy := range []string{config.RoomStrategyEmbedded, config.RoomStrategyPostponed} {
		t.Run(strategy, func(t *testing.T) {
			//** Arrange
			input := sampleInput()
			configuration := config.Default()
			configuration.RoomStrategy = strategy

			//** Act
			compilation, err := Compile(Request{Input: input, Config: configuration})
			require.NoError(t, err)
			result, assignments := solve(t, compilation)

			//** Assert
			require.Equal(t, solver.Feasible, result.Status)
			assert.Len(t, assignments, len(compilation.Requirements))
			if strategy == config.RoomStrategyPostponed {
				assert.Empty(t, compilation.RoomChoices)
				for _, assignment := range assignments {
					assert.Empty(t, assignment.Room)
				}
				return
			}
			assertTimetable(t, input, assignments)

			// CS101 meets each section twice, never on adjacent days
			for _, section := range input.Sections {
				days := make([]model.Day, 0, 2)
				for _, assignment := range assignments {
					if assignment.Section == section.Name && assignment.Subject == "CS101" {
						days = append(days, assignment.Day)
					}
				}
				require.Len(t, days, 2)
				assert.Greater(t, max(days[0], days[1])-min(days[0], days[1]), model.Day(1))
			}
		})
	}
}

func TestSolverProvesInfeasibility(t *testing.T) {
	//** Arrange
	input := sampleInput()
	input.Semesters[0].Courses = []string{"CS101"}
	input.Sections = input.Sections[:1]
	configuration := config.Default()
	configuration.WorkingDaysPerWeek = 1

	//** Act
	compilation, err := Compile(Request{Input: input, Config: configuration})
	require.NoError(t, err)
	result, _ := solve(t, compilation)

	//** Assert
	assert.Equal(t, solver.Infeasible, result.Status)

	// The same instance passes once a subject may meet twice a day
	configuration.AllowSameSubjectTwicePerDay = true
	compilation, err = Compile(Request{Input: input, Config: configuration})
	require.NoError(t, err)
	result, assignments := solve(t, compilation)
	assert.Equal(t, solver.Feasible, result.Status)
	assertTimetable(t, input, assignments)
}

func TestDailyLimits(t *testing.T) {
	//** Arrange
	input := sampleInput()
	configuration := config.Default()
	configuration.WorkingDaysPerWeek = 1
	configuration.AllowSameSubjectTwicePerDay = true
	input.Semesters[0].Courses = []string{"CS101L", "PHY101L"}

	//** Act
	compilation, err := Compile(Request{Input: input, Config: configuration})
	require.NoError(t, err)
	limited, _ := solve(t, compilation)

	configuration.MaxLabsPerDay = 2
	configuration.MaxDaySpanMinutes = 12 * 60
	compilation, err = Compile(Request{Input: input, Config: configuration})
	require.NoError(t, err)
	relaxed, assignments := solve(t, compilation)

	//** Assert
	assert.Equal(t, solver.Infeasible, limited.Status)
	require.Equal(t, solver.Feasible, relaxed.Status)
	assertTimetable(t, input, assignments)
	for i, assignment := range assignments {
		for _, other := range assignments[i+1:] {
			if assignment.Section == other.Section {
				gap := max(assignment.Slot, other.Slot) - min(assignment.Slot, other.Slot)
				assert.Greater(t, gap, 1, "consecutive labs for %v", assignment.Section)
			}
		}
	}
}

func TestMinimumGap(t *testing.T) {
	input := sampleInput()
	input.Sections = input.Sections[:1]
	input.Semesters[0].Courses = []string{"CS101", "MATH201"}
	configuration := config.Default()
	configuration.WorkingDaysPerWeek = 1
	configuration.AllowSameSubjectTwicePerDay = true
	configuration.MinGapMinutes = 60

	compilation, err := Compile(Request{Input: input, Config: configuration})
	require.NoError(t, err)
	result, assignments := solve(t, compilation)

	require.Equal(t, solver.Feasible, result.Status)
	for i, assignment := range assignments {
		for _, other := range assignments[i+1:] {
			gap := max(assignment.Start, other.Start) - min(assignment.End, other.End)
			assert.GreaterOrEqual(t, gap, 60)
		}
	}
	first := slices.MinFunc(assignments, func(a, b model.Assignment) int { return a.Start - b.Start })
	last := slices.MaxFunc(assignments, func(a, b model.Assignment) int { return a.End - b.End })
	assert.LessOrEqual(t, last.End-first.Start, configuration.DaySpanMinutes())
}

func TestCohortOfferings(t *testing.T) {
	//** Arrange
	input := sampleInput()
	input.Semesters[0].Courses = []string{"MATH201"}
	input.Cohorts = []model.CohortOffering{
		{Subject: "MATH201", Label: "MATH201-A", Day: model.Monday, Kind: model.Theory, Slot: 0, Room: "AUD", Capacity: 60},
		{Subject: "MATH201", Label: "MATH201-B", Day: model.Tuesday, Kind: model.Theory, Slot: 0, Room: "AUD", Capacity: 60},
	}
	configuration := config.Default()
	configuration.EnableCohort = true

	//** Act
	compilation, err := Compile(Request{Input: input, Config: configuration})
	require.NoError(t, err)
	result, assignments := solve(t, compilation)

	//** Assert
	require.Equal(t, solver.Feasible, result.Status)
	require.Len(t, assignments, 2)
	assert.NotEqual(t, assignments[0].Cohort, assignments[1].Cohort)
	assert.Equal(t, "AUD", assignments[0].Room)

	// A single offering seats only one 50-seat section
	input.Cohorts = input.Cohorts[:1]
	compilation, err = Compile(Request{Input: input, Config: configuration})
	require.NoError(t, err)
	result, _ = solve(t, compilation)
	assert.Equal(t, solver.Infeasible, result.Status)
}

func TestCompileElectives(t *testing.T) {
	//** Arrange
	input := model.Input{
		Grid: model.DefaultGrid(),
		Electives: []model.ElectiveCourse{
			{Code: "ART", Sections: 2, CanTheory: true, TheoryNeeded: 2, Capacity: 30},
			{Code: "ROB", Sections: 1, CanLab: true, LabNeeded: 1, Capacity: 20},
		},
		Subjects: []model.Subject{{Code: "CHEM", Kind: model.Lab, WeeklySessions: 1, Special: true, Rooms: []string{"LAB-1"}}},
		Rooms: []model.Room{
			{ID: "R1", Kind: model.Theory, Capacity: 30},
			{ID: "LAB-1", Kind: model.Lab, Capacity: 30},
			{ID: "LAB-2", Kind: model.Lab, Capacity: 30},
		},
	}

	//** Act
	compilation, err := CompileElectives(Request{Input: input, Config: config.Default()})
	require.NoError(t, err)
	result, assignments := solve(t, compilation)

	//** Assert
	require.Equal(t, solver.Feasible, result.Status)
	assert.Len(t, assignments, 5)
	assertTimetable(t, input, assignments)
	for _, assignment := range assignments {
		if assignment.Subject == "ROB" {
			assert.Equal(t, "LAB-2", assignment.Room, "reserved special room used by an elective")
		}
	}
	for i, assignment := range assignments {
		for _, other := range assignments[i+1:] {
			if assignment.Section == other.Section {
				assert.Greater(t, max(assignment.Day, other.Day)-min(assignment.Day, other.Day), model.Day(1))
			}
		}
	}
}

func TestCompileElectivesLetsSectionsPickAKind(t *testing.T) {
	electives := []model.ElectiveCourse{{Code: "AI", Sections: 2, CanTheory: true, CanLab: true, TheoryNeeded: 2, LabNeeded: 1, Capacity: 20}}
	cases := map[string]struct {
		rooms []model.Room
		kinds []model.Kind // Kinds a section may end up with
	}{
		"both room kinds": {
			rooms: []model.Room{{ID: "R1", Kind: model.Theory, Capacity: 30}, {ID: "LAB-1", Kind: model.Lab, Capacity: 30}},
			kinds: model.Kinds,
		},
		"theory rooms only": {
			rooms: []model.Room{{ID: "R1", Kind: model.Theory, Capacity: 30}},
			kinds: []model.Kind{model.Theory},
		},
		"lab rooms only": {
			rooms: []model.Room{{ID: "LAB-1", Kind: model.Lab, Capacity: 30}},
			kinds: []model.Kind{model.Lab},
		},
	}

	for name, testCase := range cases {
		t.Run(name, func(t *testing.T) {
			//** Arrange
			input := model.Input{Grid: model.DefaultGrid(), Electives: electives, Rooms: testCase.rooms}

			//** Act
			compilation, err := CompileElectives(Request{Input: input, Config: config.Default()})
			require.NoError(t, err)
			result, assignments := solve(t, compilation)

			//** Assert
			require.Equal(t, solver.Feasible, result.Status)
			assert.Len(t, compilation.Requirements, 6)
			assertTimetable(t, input, assignments)
			for section, held := range lo.GroupBy(assignments, func(assignment model.Assignment) string { return assignment.Section }) {
				kinds := lo.Uniq(lo.Map(held, func(assignment model.Assignment, _ int) model.Kind { return assignment.Kind }))
				require.Len(t, kinds, 1, "section %v mixes theory and lab", section)
				assert.Contains(t, testCase.kinds, kinds[0])
				assert.Len(t, held, electives[0].Needed(kinds[0]), "section %v", section)
			}
			assert.Len(t, lo.Uniq(lo.Map(assignments, func(assignment model.Assignment, _ int) string { return assignment.Section })), 2)
		})
	}
}

func TestValidationErrors(t *testing.T) {
	configuration := config.Default()
	configuration.WorkingDaysPerWeek = 8
	_, err := Compile(Request{Input: sampleInput(), Config: configuration})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	configuration = config.Default()
	configuration.EarliestStartHour = 20
	_, err = Compile(Request{Input: sampleInput(), Config: configuration})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	input := sampleInput()
	input.Subjects[2].Rooms = nil
	_, err = Compile(Request{Input: input, Config: config.Default()})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	input = model.Input{Grid: model.DefaultGrid(), Electives: []model.ElectiveCourse{{Code: "X", Sections: 1, TheoryNeeded: 1}}}
	_, err = CompileElectives(Request{Input: input, Config: config.Default()})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
