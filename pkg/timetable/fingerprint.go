package timetable

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/limaJavier/coursetable/pkg/config"
	"github.com/limaJavier/coursetable/pkg/model"
)

// Fingerprint hashes what determines a run's timetable: scope, records, configuration and selected semesters.
// Solver tuning is left out since it changes how fast an answer is found, not which answers are valid.
func Fingerprint(scope string, request Request) (string, error) {
	configuration := request.Config
	configuration.Solver = config.SolverTuning{}

	semesters := slices.Clone(request.Semesters)
	slices.Sort(semesters)

	payload, err := json.Marshal(struct {
		Scope     string               `json:"scope"`
		Input     model.Input          `json:"input"`
		Config    config.Configuration `json:"config"`
		Semesters []int                `json:"semesters"`
	}{scope, request.Input, configuration, slices.Compact(semesters)})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
