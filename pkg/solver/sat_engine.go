package solver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/sat"
)

type satEngine struct {
	solver sat.SATSolver
	logger *zap.Logger
}

// NewSATEngine solves problems by encoding them to CNF and handing them to a SAT backend.
func NewSATEngine(solver sat.SATSolver, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &satEngine{solver: solver, logger: logger}
}

func (engine *satEngine) Solve(ctx context.Context, problem *Problem, tuning config.SolverTuning) (Result, error) {
	if err := problem.Validate(); err != nil {
		return Result{}, appErrors.Wrap(err, appErrors.ErrStructural.Code, "malformed constraint problem")
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, tuning.Budget())
	defer cancel()

	instance := Encode(problem)
	engine.logger.Debug("encoded problem",
		zap.String("backend", engine.solver.Name()),
		zap.Int("variables", problem.Variables),
		zap.Uint64("cnfVariables", instance.Variables),
		zap.Int("clauses", len(instance.Clauses)),
	)

	result := Result{Stats: Stats{
		Backend:     engine.solver.Name(),
		Variables:   problem.Variables,
		Constraints: len(problem.Constraints),
	}}

	solution, err := engine.solver.Solve(ctx, instance)
	result.Stats.Elapsed = time.Since(started)
	switch {
	case err != nil && ctx.Err() != nil:
		result.Status = TimedOut
	case err != nil:
		return Result{}, appErrors.Wrap(err, appErrors.ErrBackend.Code, "sat backend "+engine.solver.Name()+" failed")
	case solution == nil:
		result.Status = Infeasible
	default:
		result.Status = Feasible
		result.Model = solution.Assignment(instance.Variables)[:problem.Variables+1]
		if err := problem.Check(result.Model); err != nil {
			return Result{}, appErrors.Wrap(err, appErrors.ErrBackend.Code, "sat backend "+engine.solver.Name()+" returned an invalid model")
		}
	}

	engine.logger.Debug("sat backend finished",
		zap.String("backend", engine.solver.Name()),
		zap.Stringer("status", result.Status),
		zap.Duration("elapsed", result.Stats.Elapsed),
	)
	return result, nil
}

// NewEngine picks the engine configured by tuning.Backend.
func NewEngine(tuning config.SolverTuning, paths config.SolverPaths, logger *zap.Logger) (Engine, error) {
	switch tuning.Backend {
	case config.BackendNative, "":
		return NewBacktrackingEngine(logger), nil
	case config.BackendGini:
		return NewSATEngine(sat.NewGiniSolver(), logger), nil
	case config.BackendGophersat:
		return NewSATEngine(sat.NewGophersatSolver(), logger), nil
	case config.BackendKissat:
		return NewSATEngine(sat.NewKissatSolver(paths.KissatPath), logger), nil
	case config.BackendCadical:
		return NewSATEngine(sat.NewCadicalSolver(paths.CadicalPath), logger), nil
	}
	return nil, appErrors.Validation("solver.backend", "unknown backend "+tuning.Backend)
}
