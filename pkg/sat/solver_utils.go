package sat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// parseSolution reads the "v ..." lines of a competition-format solver output.
func parseSolution(solverOutput string) (SATSolution, error) {
	fields := lo.FlatMap(
		lo.Filter(strings.Split(solverOutput, "\n"), func(line string, _ int) bool {
			return len(line) > 0 && line[0] == 'v'
		}),
		func(line string, _ int) []string {
			return strings.Fields(line[1:])
		},
	)

	solution := make(SATSolution, 0, len(fields))
	for _, field := range fields {
		value, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal in solver output: %w", err)
		}
		if value == 0 { // Terminator
			break
		}
		solution = append(solution, value)
	}
	return solution, nil
}
