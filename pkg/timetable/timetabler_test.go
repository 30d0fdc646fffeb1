package timetable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/ledger"
	"github.com/limaJavier/coursetable/pkg/metrics"
	"github.com/limaJavier/coursetable/pkg/model"
	"github.com/limaJavier/coursetable/pkg/solver"
)

// twoSections is one semester with two sections needing one theory session each.
func twoSections(rooms ...string) model.Input {
	input := model.Input{
		Grid:      model.DefaultGrid(),
		Semesters: []model.Semester{{Number: 1, Courses: []string{"CS101"}}},
		Sections: []model.Section{
			{Name: "S1CS1", Semester: 1, Capacity: 40},
			{Name: "S1CS2", Semester: 1, Capacity: 40},
		},
		Subjects: []model.Subject{{Code: "CS101", Kind: model.Theory, WeeklySessions: 1}},
	}
	for _, room := range rooms {
		input.Rooms = append(input.Rooms, model.Room{ID: room, Kind: model.Theory, Capacity: 50})
	}
	return input
}

func fullInput() model.Input {
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

// singleCell leaves one theory slot a day: 08:00-09:15 is the only window inside [8, 10).
func singleCell() config.Configuration {
	configuration := config.Default()
	configuration.WorkingDaysPerWeek = 1
	configuration.NoClassesAfterHour = 10
	return configuration
}

func timetablers(store ledger.Store) map[string]Timetabler {
	engine := solver.NewBacktrackingEngine(nil)
	return map[string]Timetabler{
		config.RoomStrategyEmbedded:  NewEmbeddedRoomTimetabler(engine, store),
		config.RoomStrategyPostponed: NewPostponedRoomTimetabler(engine, store),
	}
}

func TestTwoSectionsTwoRooms(t *testing.T) {
	for name, timetabler := range timetablers(ledger.NewMemoryStore()) {
		t.Run(name, func(t *testing.T) {
			//** Arrange
			input := twoSections("R1", "R2")

			//** Act
			result, err := timetabler.Build(context.Background(), Request{Input: input, Config: config.Default()})

			//** Assert
			require.NoError(t, err)
			require.Equal(t, StatusFeasible, result.Status, result.Reason)
			require.Len(t, result.Assignments, 2)
			first, second := result.Assignments[0], result.Assignments[1]
			assert.Equal(t, "S1CS1", first.Section)
			assert.Equal(t, "S1CS2", second.Section)
			assert.NotEqual(t, first.Usage(), second.Usage())
			assert.NotEmpty(t, first.ID)
			assert.NotEqual(t, first.ID, second.ID)
			assert.NoError(t, timetabler.Verify(result.Assignments, input, config.Default()))
		})
	}
}

func TestFullTimetable(t *testing.T) {
	for name, timetabler := range timetablers(ledger.NewMemoryStore()) {
		t.Run(name, func(t *testing.T) {
			//** Arrange
			input := fullInput()

			//** Act
			result, err := timetabler.Build(context.Background(), Request{Input: input, Config: config.Default()})

			//** Assert
			require.NoError(t, err)
			require.Equal(t, StatusFeasible, result.Status, result.Reason)
			assert.Len(t, result.Assignments, 10)
			for _, assignment := range result.Assignments {
				assert.NotEmpty(t, assignment.Room)
				if assignment.Subject == "CS101L" {
					assert.Equal(t, "LAB-1", assignment.Room)
				}
				if assignment.Subject == "PHY101L" {
					assert.Equal(t, "LAB-2", assignment.Room)
				}
			}
			assert.NoError(t, timetabler.Verify(result.Assignments, input, config.Default()))
		})
	}
}

func TestOneRoomOneDayIsInfeasible(t *testing.T) {
	//** Arrange
	store := ledger.NewMemoryStore()
	timetabler := NewEmbeddedRoomTimetabler(solver.NewBacktrackingEngine(nil), store)

	//** Act
	result, err := timetabler.Build(context.Background(), Request{Input: twoSections("R1"), Config: singleCell()})

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, result.Status)
	assert.Contains(t, result.Reason, "not enough free theory slots")
	assert.Empty(t, result.Assignments)
	current, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, current.Version)
}

func TestLedgerResetRestoresFeasibility(t *testing.T) {
	//** Arrange
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	timetabler := NewEmbeddedRoomTimetabler(solver.NewBacktrackingEngine(nil), store)

	earlier := twoSections("R1")
	earlier.Sections = earlier.Sections[:1]
	committed, err := timetabler.Build(ctx, Request{Input: earlier, Config: singleCell()})
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, committed.Status, committed.Reason)

	later := twoSections("R1")
	later.Sections = later.Sections[1:]
	stale, err := timetabler.Build(ctx, Request{Input: later, Config: singleCell()})
	require.NoError(t, err)
	require.Equal(t, StatusInfeasible, stale.Status)

	//** Act
	require.NoError(t, store.Reset(ctx))
	result, err := timetabler.Build(ctx, Request{Input: later, Config: singleCell()})

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatusFeasible, result.Status, result.Reason)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "S1CS2", result.Assignments[0].Section)
}

func TestLedgerContinuity(t *testing.T) {
	//** Arrange
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	timetabler := NewPostponedRoomTimetabler(solver.NewBacktrackingEngine(nil), store)

	first, err := timetabler.Build(ctx, Request{Input: twoSections("R1", "R2"), Config: config.Default()})
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, first.Status)

	second := fullInput()
	second.Semesters[0].Number = 2
	for i := range second.Sections {
		second.Sections[i].Semester = 2
		second.Sections[i].Name = "S2CS" + string(rune('1'+i))
	}

	//** Act
	result, err := timetabler.Build(ctx, Request{Input: second, Config: config.Default()})

	//** Assert
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, result.Status, result.Reason)
	for _, earlier := range first.Assignments {
		for _, assignment := range result.Assignments {
			assert.NotEqual(t, earlier.Usage(), assignment.Usage())
		}
	}
	current, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, current.Count(ledger.ScopeMain))
}

func TestUnchangedRunIsSkipped(t *testing.T) {
	//** Arrange
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	recorder := metrics.NewRecorder()
	timetabler := NewEmbeddedRoomTimetabler(solver.NewBacktrackingEngine(nil), store, WithRecorder(recorder))
	request := Request{Input: twoSections("R1", "R2"), Config: config.Default()}

	first, err := timetabler.Build(ctx, request)
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, first.Status)

	//** Act
	request.Config.Solver.NumSearchWorkers = 2
	repeated, err := timetabler.Build(ctx, request)
	require.NoError(t, err)
	request.ClearExisting = true
	cleared, err := timetabler.Build(ctx, request)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatusNoChange, repeated.Status)
	assert.Equal(t, first.Fingerprint, repeated.Fingerprint)
	assert.Empty(t, repeated.Assignments)
	assert.Equal(t, StatusFeasible, cleared.Status, cleared.Reason)
	current, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Count(ledger.ScopeMain))
	assert.Equal(t, int64(2), current.Version)
}

func TestElectivesShareTheLedger(t *testing.T) {
	//** Arrange
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	timetabler := NewEmbeddedRoomTimetabler(solver.NewBacktrackingEngine(nil), store)

	main, err := timetabler.Build(ctx, Request{Input: fullInput(), Config: config.Default()})
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, main.Status)

	input := fullInput()
	input.Electives = []model.ElectiveCourse{
		{Code: "ELEC1", Sections: 2, CanTheory: true, TheoryNeeded: 2, Capacity: 30},
		{Code: "ELEC2", Sections: 1, CanLab: true, LabNeeded: 1, Capacity: 30},
	}

	//** Act
	result, err := timetabler.BuildElectives(ctx, Request{Input: input, Config: config.Default()})

	//** Assert
	require.NoError(t, err)
	require.Equal(t, StatusFeasible, result.Status, result.Reason)
	assert.Len(t, result.Assignments, 5)
	for _, elective := range result.Assignments {
		for _, assignment := range main.Assignments {
			assert.NotEqual(t, assignment.Usage(), elective.Usage())
		}
	}
	current, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, current.Count(ledger.ScopeMain))
	assert.Equal(t, 5, current.Count(ledger.ScopeElectives))
}

type stubEngine struct {
	status solver.Status
}

func (engine stubEngine) Solve(_ context.Context, problem *solver.Problem, _ config.SolverTuning) (solver.Result, error) {
	result := solver.Result{Status: engine.status, Stats: solver.Stats{Backend: "stub"}}
	if engine.status == solver.Feasible {
		// Every variable true: a model that breaks nearly every rule
		result.Model = make([]bool, problem.Variables+1)
		for i := 1; i <= problem.Variables; i++ {
			result.Model[i] = true
		}
	}
	return result, nil
}

func TestTimedOutRunIsNotCommitted(t *testing.T) {
	//** Arrange
	store := ledger.NewMemoryStore()
	timetabler := NewEmbeddedRoomTimetabler(stubEngine{status: solver.TimedOut}, store)

	//** Act
	result, err := timetabler.Build(context.Background(), Request{Input: twoSections("R1", "R2"), Config: config.Default()})

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, result.Status)
	assert.Contains(t, result.Reason, "30s")
	current, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, current.Entries)
}

func TestInvalidSolutionIsNeverCommitted(t *testing.T) {
	//** Arrange
	store := ledger.NewMemoryStore()
	timetabler := NewEmbeddedRoomTimetabler(stubEngine{status: solver.Feasible}, store)

	//** Act
	_, err := timetabler.Build(context.Background(), Request{Input: twoSections("R1", "R2"), Config: config.Default()})

	//** Assert
	assert.ErrorIs(t, err, appErrors.ErrVerification)
	current, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, current.Version)
}

// racingStore lets another writer commit between every load and save.
type racingStore struct {
	ledger.Store
}

func (store racingStore) Load(ctx context.Context) (ledger.Ledger, error) {
	loaded, err := store.Store.Load(ctx)
	if err != nil {
		return loaded, err
	}
	return loaded, store.Store.Reset(ctx)
}

func TestConcurrentCommitIsRejected(t *testing.T) {
	//** Arrange
	timetabler := NewEmbeddedRoomTimetabler(solver.NewBacktrackingEngine(nil), racingStore{ledger.NewMemoryStore()})

	//** Act
	_, err := timetabler.Build(context.Background(), Request{Input: twoSections("R1", "R2"), Config: config.Default()})

	//** Assert
	assert.ErrorIs(t, err, appErrors.ErrVersionConflict)
}

func TestInvalidConfigurationIsRejected(t *testing.T) {
	//** Arrange
	configuration := config.Default()
	configuration.EarliestStartHour = 20
	timetabler := NewEmbeddedRoomTimetabler(solver.NewBacktrackingEngine(nil), ledger.NewMemoryStore())

	//** Act
	_, err := timetabler.Build(context.Background(), Request{Input: twoSections("R1"), Config: configuration})

	//** Assert
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestNewByStrategy(t *testing.T) {
	//** Arrange
	engine := solver.NewBacktrackingEngine(nil)
	store := ledger.NewMemoryStore()

	//** Act
	embedded, embeddedErr := New(config.RoomStrategyEmbedded, engine, store)
	postponed, postponedErr := New(config.RoomStrategyPostponed, engine, store)
	_, unknownErr := New("hybrid", engine, store)

	//** Assert
	require.NoError(t, embeddedErr)
	require.NoError(t, postponedErr)
	assert.Equal(t, config.RoomStrategyEmbedded, embedded.(*timetabler).strategy)
	assert.Equal(t, config.RoomStrategyPostponed, postponed.(*timetabler).strategy)
	assert.ErrorIs(t, unknownErr, appErrors.ErrValidation)
}
