package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the engine's Prometheus collectors on a private registry. A nil Recorder records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	solveDuration  *prometheus.HistogramVec
	runsTotal      *prometheus.CounterVec
	problemSize    *prometheus.GaugeVec
	ledgerEntries  *prometheus.GaugeVec
	assignmentRuns *prometheus.CounterVec
	sessionsTotal  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	solveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coursetable_solve_duration_seconds",
		Help:    "Duration of solver searches in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"scope", "backend", "status"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursetable_runs_total",
		Help: "Timetable runs by scope and outcome",
	}, []string{"scope", "status"})

	problemSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coursetable_problem_size",
		Help: "Variables and constraints of the last compiled problem",
	}, []string{"scope", "dimension"})

	ledgerEntries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coursetable_ledger_entries",
		Help: "Occupied cells held by each ledger scope after the last commit",
	}, []string{"scope"})

	assignmentRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursetable_teacher_runs_total",
		Help: "Teacher assignment runs by status",
	}, []string{"status"})

	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursetable_teacher_sessions_total",
		Help: "Sessions handled by teacher assignment runs",
	}, []string{"outcome"})

	registry.MustRegister(solveDuration, runsTotal, problemSize, ledgerEntries, assignmentRuns, sessionsTotal)

	return &Recorder{
		registry:       registry,
		solveDuration:  solveDuration,
		runsTotal:      runsTotal,
		problemSize:    problemSize,
		ledgerEntries:  ledgerEntries,
		assignmentRuns: assignmentRuns,
		sessionsTotal:  sessionsTotal,
	}
}

// Gatherer exposes the private registry.
func (recorder *Recorder) Gatherer() prometheus.Gatherer {
	if recorder == nil {
		return prometheus.NewRegistry()
	}
	return recorder.registry
}

// WriteTextfile dumps every collector in the text exposition format.
func (recorder *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, recorder.Gatherer())
}

// ObserveProblem records the size of a compiled problem.
func (recorder *Recorder) ObserveProblem(scope string, variables, constraints int) {
	if recorder == nil {
		return
	}
	recorder.problemSize.WithLabelValues(scope, "variables").Set(float64(variables))
	recorder.problemSize.WithLabelValues(scope, "constraints").Set(float64(constraints))
}

// ObserveSolve records one search. Runs that never reach the solver pass an empty backend.
func (recorder *Recorder) ObserveSolve(scope, backend, status string, elapsed time.Duration) {
	if recorder == nil {
		return
	}
	if backend != "" {
		recorder.solveDuration.WithLabelValues(scope, backend, status).Observe(elapsed.Seconds())
	}
	recorder.runsTotal.WithLabelValues(scope, status).Inc()
}

func (recorder *Recorder) ObserveLedger(scope string, entries int) {
	if recorder == nil {
		return
	}
	recorder.ledgerEntries.WithLabelValues(scope).Set(float64(entries))
}

// ObserveAssignment records a teacher assignment run.
func (recorder *Recorder) ObserveAssignment(status string, assigned, unassigned int) {
	if recorder == nil {
		return
	}
	recorder.assignmentRuns.WithLabelValues(status).Inc()
	recorder.sessionsTotal.WithLabelValues("assigned").Add(float64(assigned))
	recorder.sessionsTotal.WithLabelValues("unassigned").Add(float64(unassigned))
}
