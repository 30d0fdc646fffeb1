package timetable

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limaJavier/coursetable/pkg/compiler"
	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/ledger"
	"github.com/limaJavier/coursetable/pkg/metrics"
	"github.com/limaJavier/coursetable/pkg/model"
	"github.com/limaJavier/coursetable/pkg/solver"
)

type Status string

const (
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusTimedOut   Status = "timed_out"
	StatusNoChange   Status = "no_change"
)

type Request struct {
	Input     model.Input
	Config    config.Configuration
	Semesters []int // Empty selects every semester
	// ClearExisting discards the scope's committed cells before solving
	ClearExisting bool
	// Force solves even when the scope already holds a run with the same fingerprint
	Force bool
}

// Result carries assignments only when Status is feasible; Reason explains any other status.
type Result struct {
	Status      Status             `json:"status"`
	Assignments []model.Assignment `json:"assignments"`
	Reason      string             `json:"reason,omitempty"`
	Stats       solver.Stats       `json:"stats"`
	Fingerprint string             `json:"fingerprint"`
}

type Timetabler interface {
	// Build schedules the main timetable under the main ledger scope.
	Build(ctx context.Context, request Request) (Result, error)

	// BuildElectives schedules the elective variant under the electives ledger scope.
	BuildElectives(ctx context.Context, request Request) (Result, error)

	// Verify checks a timetable against the hard rules of the main timetable.
	Verify(assignments []model.Assignment, input model.Input, configuration config.Configuration) error
}

type Option func(*timetabler)

func WithLogger(logger *zap.Logger) Option {
	return func(t *timetabler) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithRecorder(recorder *metrics.Recorder) Option {
	return func(t *timetabler) {
		t.recorder = recorder
	}
}

type timetabler struct {
	strategy string
	engine   solver.Engine
	store    ledger.Store
	logger   *zap.Logger
	recorder *metrics.Recorder
}

// NewEmbeddedRoomTimetabler solves rooms together with times.
func NewEmbeddedRoomTimetabler(engine solver.Engine, store ledger.Store, options ...Option) Timetabler {
	return newTimetabler(config.RoomStrategyEmbedded, engine, store, options)
}

// NewPostponedRoomTimetabler solves times against room pools and matches concrete rooms afterwards.
func NewPostponedRoomTimetabler(engine solver.Engine, store ledger.Store, options ...Option) Timetabler {
	return newTimetabler(config.RoomStrategyPostponed, engine, store, options)
}

// New picks the timetabler for a room strategy name.
func New(strategy string, engine solver.Engine, store ledger.Store, options ...Option) (Timetabler, error) {
	switch strategy {
	case config.RoomStrategyEmbedded, "":
		return NewEmbeddedRoomTimetabler(engine, store, options...), nil
	case config.RoomStrategyPostponed:
		return NewPostponedRoomTimetabler(engine, store, options...), nil
	}
	return nil, appErrors.Validation("roomStrategy", fmt.Sprintf("unknown strategy %q", strategy))
}

func newTimetabler(strategy string, engine solver.Engine, store ledger.Store, options []Option) *timetabler {
	t := &timetabler{
		strategy: strategy,
		engine:   engine,
		store:    store,
		logger:   zap.NewNop(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

func (t *timetabler) Build(ctx context.Context, request Request) (Result, error) {
	return t.run(ctx, ledger.ScopeMain, request, compiler.Compile, false)
}

func (t *timetabler) BuildElectives(ctx context.Context, request Request) (Result, error) {
	return t.run(ctx, ledger.ScopeElectives, request, compiler.CompileElectives, true)
}

func (t *timetabler) Verify(assignments []model.Assignment, input model.Input, configuration config.Configuration) error {
	return verification{input: input, config: configuration}.run(assignments)
}

func (t *timetabler) run(
	ctx context.Context,
	scope string,
	request Request,
	compile func(compiler.Request) (*compiler.Compilation, error),
	electives bool,
) (Result, error) {
	started := time.Now()
	request.Config.RoomStrategy = t.strategy
	configuration := request.Config
	if err := configuration.Validate(); err != nil {
		return Result{}, err
	}

	fingerprint, err := Fingerprint(scope, request)
	if err != nil {
		return Result{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, "cannot fingerprint run")
	}
	logger := t.logger.With(zap.String("scope", scope), zap.String("strategy", t.strategy), zap.String("fingerprint", fingerprint[:12]))

	//** Load ledger
	current, err := t.store.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load ledger: %w", err)
	}
	if request.ClearExisting {
		cleared := current.ClearScope(scope)
		logger.Info("cleared ledger scope", zap.Int("entries", cleared))
	} else if !request.Force && current.Count(scope) > 0 && current.Fingerprint(scope) == fingerprint {
		logger.Info("input and configuration unchanged since the last committed run")
		t.recorder.ObserveSolve(scope, "", string(StatusNoChange), 0)
		return Result{
			Status:      StatusNoChange,
			Reason:      "input and configuration unchanged since the last committed run",
			Fingerprint: fingerprint,
		}, nil
	}

	//** Compile
	compilation, err := compile(compiler.Request{
		Input:     request.Input,
		Config:    configuration,
		Semesters: request.Semesters,
		Occupancy: current,
	})
	if err != nil {
		return Result{}, err
	}
	if compilation.Infeasible() {
		logger.Warn("instance rejected before search", zap.String("reason", compilation.Shortage))
		t.recorder.ObserveSolve(scope, "", string(StatusInfeasible), 0)
		return Result{Status: StatusInfeasible, Reason: compilation.Shortage, Fingerprint: fingerprint}, nil
	}
	problem := compilation.Problem
	t.recorder.ObserveProblem(scope, problem.Variables, len(problem.Constraints))
	logger.Info("compiled timetable problem",
		zap.Int("requirements", len(compilation.Requirements)),
		zap.Int("placements", len(compilation.Placements)),
		zap.Int("variables", problem.Variables),
		zap.Int("constraints", len(problem.Constraints)),
	)

	//** Solve
	solved, err := t.engine.Solve(ctx, problem, configuration.Solver)
	if err != nil {
		return Result{}, err
	}
	result := Result{Stats: solved.Stats, Fingerprint: fingerprint}
	switch solved.Status {
	case solver.TimedOut:
		result.Status = StatusTimedOut
		result.Reason = fmt.Sprintf("no timetable found within %v", configuration.Solver.Budget())
	case solver.Infeasible:
		result.Status = StatusInfeasible
		result.Reason = "no feasible timetable under these constraints"
	}
	if solved.Status != solver.Feasible {
		logger.Warn("no timetable", zap.String("status", string(result.Status)), zap.Duration("elapsed", solved.Stats.Elapsed))
		t.recorder.ObserveSolve(scope, solved.Stats.Backend, string(result.Status), solved.Stats.Elapsed)
		return result, nil
	}

	//** Decode
	selected := compilation.Selected(solved.Model)
	assignments := compilation.Decode(solved.Model)
	if t.strategy == config.RoomStrategyPostponed {
		var unassignable unassignableError
		if err := roomAssignment(compilation, selected, assignments); errors.As(err, &unassignable) {
			logger.Warn("room matching failed", zap.Error(err))
			t.recorder.ObserveSolve(scope, solved.Stats.Backend, string(StatusInfeasible), solved.Stats.Elapsed)
			result.Status = StatusInfeasible
			result.Reason = err.Error()
			return result, nil
		} else if err != nil {
			return Result{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, "room matching")
		}
	}
	for i := range assignments {
		assignments[i].ID = uuid.NewString()
	}
	sortAssignments(assignments)

	//** Verify
	check := verification{
		input:        request.Input,
		config:       configuration,
		requirements: compilation.Requirements,
		electives:    electives,
	}
	if configuration.UseUsageLedger {
		check.occupancy = current
	}
	if err := check.run(assignments); err != nil {
		logger.Error("solution failed verification", zap.Error(err))
		return Result{}, err
	}

	//** Commit
	if displaced := current.Commit(scope, fingerprint, assignments); len(displaced) > 0 {
		logger.Warn("run took over cells held by earlier runs", zap.Int("cells", len(displaced)))
	}
	if err := t.store.Save(ctx, current); err != nil {
		return Result{}, fmt.Errorf("commit ledger: %w", err)
	}
	t.recorder.ObserveSolve(scope, solved.Stats.Backend, string(StatusFeasible), solved.Stats.Elapsed)
	t.recorder.ObserveLedger(scope, current.Count(scope))

	logger.Info("timetable committed",
		zap.Int("assignments", len(assignments)),
		zap.String("backend", solved.Stats.Backend),
		zap.Duration("search", solved.Stats.Elapsed),
		zap.Duration("elapsed", time.Since(started)),
	)
	result.Status = StatusFeasible
	result.Assignments = assignments
	return result, nil
}

func sortAssignments(assignments []model.Assignment) {
	slices.SortFunc(assignments, func(a, b model.Assignment) int {
		return cmp.Or(
			cmp.Compare(a.Section, b.Section),
			cmp.Compare(a.Day, b.Day),
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(a.Subject, b.Subject),
		)
	})
}
