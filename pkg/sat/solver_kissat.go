package sat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// externalSolver drives a competition-format executable through stdin/stdout.
type externalSolver struct {
	name string
	path string
	args []string
}

func NewKissatSolver(path string) SATSolver {
	if path == "" {
		path = "kissat"
	}
	return &externalSolver{name: "kissat", path: path, args: []string{"-q", "--relaxed"}}
}

func NewCadicalSolver(path string) SATSolver {
	if path == "" {
		path = "cadical"
	}
	return &externalSolver{name: "cadical", path: path, args: []string{"-q"}}
}

func (solver *externalSolver) Name() string {
	return solver.name
}

func (solver *externalSolver) Solve(ctx context.Context, sat SAT) (SATSolution, error) {
	dimacs := sat.ToDIMACS() // Transform SAT into DIMACS-CNF string format

	cmd := exec.CommandContext(ctx, solver.path, solver.args...)
	cmd.Stdin = strings.NewReader(dimacs) // Feed dimacs into the solver's standard input

	var stdOut bytes.Buffer
	cmd.Stdout = &stdOut
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%v interrupted: %w", solver.name, ctx.Err())
	}

	// Exit-code of 10 stands for satisfiable and exit-code 20 stands for unsatisfiable
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil, fmt.Errorf("%v exited without a verdict", solver.name)
	case !errors.As(err, &exitErr):
		return nil, fmt.Errorf("cannot run %v: %w", solver.name, err)
	case exitErr.ExitCode() == 20:
		return nil, nil
	case exitErr.ExitCode() != 10:
		return nil, fmt.Errorf("an error occurred during %v execution: %v : %v", solver.name, err, stderr.String())
	}

	return parseSolution(stdOut.String())
}
