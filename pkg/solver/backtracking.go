package solver

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
)

const (
	contextCheckMask = 1<<10 - 1
	progressMask     = 1<<16 - 1
)

type outcome int

const (
	exhausted outcome = iota
	found
	interrupted
)

type backtrackingEngine struct {
	logger *zap.Logger
}

// NewBacktrackingEngine returns the native propagation-guided search.
func NewBacktrackingEngine(logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backtrackingEngine{logger: logger}
}

func (engine *backtrackingEngine) Solve(ctx context.Context, problem *Problem, tuning config.SolverTuning) (Result, error) {
	if err := problem.Validate(); err != nil {
		return Result{}, appErrors.Wrap(err, appErrors.ErrStructural.Code, "malformed constraint problem")
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, tuning.Budget())
	defer cancel()

	occurrences := buildOccurrences(problem)
	branching := make([]int, 0, len(problem.Constraints))
	for index, constraint := range problem.Constraints {
		if constraint.Min > 0 {
			branching = append(branching, index)
		}
	}

	//** Race workers, first verdict wins
	var (
		once   sync.Once
		result Result
	)
	raceCtx, stop := context.WithCancel(ctx)
	defer stop()
	group, groupCtx := errgroup.WithContext(raceCtx)
	for worker := range max(1, tuning.NumSearchWorkers) {
		group.Go(func() error {
			search := newSearch(problem, occurrences, branching, worker, tuning, engine.logger)
			verdict := search.run(groupCtx)
			if verdict == interrupted {
				return nil
			}
			once.Do(func() {
				result = search.result(verdict)
				stop()
			})
			return nil
		})
	}
	_ = group.Wait()

	if result.Status == 0 {
		result.Status = TimedOut
	}
	result.Stats.Backend = config.BackendNative
	result.Stats.Variables = problem.Variables
	result.Stats.Constraints = len(problem.Constraints)
	result.Stats.Elapsed = time.Since(started)

	if result.Status == Feasible {
		if err := problem.Check(result.Model); err != nil {
			return Result{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, "search produced an invalid model")
		}
	}

	engine.logger.Debug("search finished",
		zap.Stringer("status", result.Status),
		zap.Int("worker", result.Stats.Worker),
		zap.Int64("nodes", result.Stats.Nodes),
		zap.Duration("elapsed", result.Stats.Elapsed),
	)
	return result, nil
}

type search struct {
	*propagator
	branching []int
	fixed     bool
	random    *rand.Rand // nil keeps the deterministic order
	worker    int
	progress  bool
	logger    *zap.Logger
	nodes     int64
	started   time.Time
	ctx       context.Context
}

func newSearch(problem *Problem, occurrences [][]occurrence, branching []int, worker int, tuning config.SolverTuning, logger *zap.Logger) *search {
	search := &search{
		propagator: newPropagator(problem, occurrences),
		branching:  branching,
		fixed:      tuning.UseFixedSearch,
		worker:     worker,
		progress:   tuning.LogSearchProgress,
		logger:     logger,
		started:    time.Now(),
	}
	if worker > 0 {
		search.random = rand.New(rand.NewPCG(tuning.Seed, uint64(worker)))
	}
	return search
}

func (search *search) run(ctx context.Context) outcome {
	search.ctx = ctx
	search.enqueueAll()
	if !search.propagate() {
		return exhausted
	}
	return search.branch(0)
}

func (search *search) result(verdict outcome) Result {
	result := Result{Status: Infeasible, Stats: Stats{Nodes: search.nodes, Worker: search.worker}}
	if verdict == found {
		result.Status = Feasible
		result.Model = search.model()
	}
	return result
}

// branch tries literal = true, then literal = false, on a literal of an unsatisfied constraint.
func (search *search) branch(depth int) outcome {
	search.nodes++
	if search.nodes&contextCheckMask == 0 {
		if search.ctx.Err() != nil {
			return interrupted
		}
		if search.progress && search.nodes&progressMask == 0 {
			search.logger.Info("search progress",
				zap.Int("worker", search.worker),
				zap.Int64("nodes", search.nodes),
				zap.Int("depth", depth),
				zap.Int("assigned", len(search.trail)),
				zap.Duration("elapsed", time.Since(search.started)),
			)
		}
	}

	constraint := search.selectConstraint()
	if constraint < 0 {
		return found
	}
	literal := search.selectLiteral(constraint)

	mark := len(search.trail)
	for _, decision := range []int{literal, -literal} {
		if search.assign(decision) && search.propagate() {
			if verdict := search.branch(depth + 1); verdict != exhausted {
				return verdict
			}
		}
		search.undo(mark)
	}
	return exhausted
}

// selectConstraint returns an unsatisfied at-least constraint, or -1 when all hold.
// Fixed search takes them in compile order; dynamic search takes the one with fewest free literals.
func (search *search) selectConstraint() int {
	selected, selectedFree, ties := -1, 0, 0
	for _, index := range search.branching {
		if search.trues[index] >= search.problem.Constraints[index].Min {
			continue
		}
		if search.fixed {
			return index
		}

		free := search.free(index)
		switch {
		case selected < 0 || free < selectedFree:
			selected, selectedFree, ties = index, free, 1
		case free == selectedFree && search.random != nil:
			// Reservoir sampling among ties
			ties++
			if search.random.IntN(ties) == 0 {
				selected = index
			}
		}
	}
	return selected
}

func (search *search) selectLiteral(index int) int {
	constraint := search.problem.Constraints[index]
	if search.random != nil {
		candidates := make([]int, 0, len(constraint.Lits))
		for _, literal := range constraint.Lits {
			if search.literalValue(literal) == 0 {
				candidates = append(candidates, literal)
			}
		}
		return candidates[search.random.IntN(len(candidates))]
	}
	for _, literal := range constraint.Lits {
		if search.literalValue(literal) == 0 {
			return literal
		}
	}
	panic(fmt.Sprintf("constraint %d is unsatisfied without free literals", index))
}
