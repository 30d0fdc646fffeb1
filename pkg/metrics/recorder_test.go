package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSolve(t *testing.T) {
	//** Arrange
	recorder := NewRecorder()

	//** Act
	recorder.ObserveSolve("main", "native", "feasible", 120*time.Millisecond)
	recorder.ObserveSolve("main", "native", "feasible", 80*time.Millisecond)
	recorder.ObserveSolve("main", "", "infeasible", 0)

	//** Assert
	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.runsTotal.WithLabelValues("main", "feasible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.runsTotal.WithLabelValues("main", "infeasible")))
	assert.Equal(t, 1, testutil.CollectAndCount(recorder.solveDuration))
}

func TestObserveProblemAndLedger(t *testing.T) {
	//** Arrange
	recorder := NewRecorder()

	//** Act
	recorder.ObserveProblem("electives", 40, 120)
	recorder.ObserveLedger("electives", 12)

	//** Assert
	assert.Equal(t, 40.0, testutil.ToFloat64(recorder.problemSize.WithLabelValues("electives", "variables")))
	assert.Equal(t, 120.0, testutil.ToFloat64(recorder.problemSize.WithLabelValues("electives", "constraints")))
	assert.Equal(t, 12.0, testutil.ToFloat64(recorder.ledgerEntries.WithLabelValues("electives")))
}

func TestObserveAssignment(t *testing.T) {
	//** Arrange
	recorder := NewRecorder()

	//** Act
	recorder.ObserveAssignment("ok", 3, 1)
	recorder.ObserveAssignment("no_preferences", 0, 4)

	//** Assert
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.assignmentRuns.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(recorder.sessionsTotal.WithLabelValues("assigned")))
	assert.Equal(t, 5.0, testutil.ToFloat64(recorder.sessionsTotal.WithLabelValues("unassigned")))
}

func TestNilRecorder(t *testing.T) {
	//** Arrange
	var recorder *Recorder

	//** Act & Assert
	assert.NotPanics(t, func() {
		recorder.ObserveProblem("main", 1, 1)
		recorder.ObserveSolve("main", "native", "feasible", time.Second)
		recorder.ObserveLedger("main", 1)
		recorder.ObserveAssignment("ok", 1, 0)
	})
}

func TestWriteTextfile(t *testing.T) {
	//** Arrange
	recorder := NewRecorder()
	recorder.ObserveSolve("main", "gini", "feasible", time.Second)
	path := filepath.Join(t.TempDir(), "metrics.prom")

	//** Act
	err := recorder.WriteTextfile(path)

	//** Assert
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `coursetable_runs_total{scope="main",status="feasible"} 1`)
}
