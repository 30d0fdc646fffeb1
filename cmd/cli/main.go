package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/limaJavier/coursetable/pkg/assign"
	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/export"
	"github.com/limaJavier/coursetable/pkg/ledger"
	"github.com/limaJavier/coursetable/pkg/logger"
	"github.com/limaJavier/coursetable/pkg/metrics"
	"github.com/limaJavier/coursetable/pkg/model"
	"github.com/limaJavier/coursetable/pkg/solver"
	"github.com/limaJavier/coursetable/pkg/timetable"
)

const (
	exitNoChange     = 0
	exitFailure      = 1
	exitFeasible     = 10
	exitVerification = 15
	exitInfeasible   = 20
)

var (
	validModes      = []string{"timetable", "electives", "teachers", "reset-ledger"}
	validStrategies = []string{config.RoomStrategyEmbedded, config.RoomStrategyPostponed}
	validSolvers    = []string{config.BackendNative, config.BackendGini, config.BackendGophersat, config.BackendKissat, config.BackendCadical}
	validLedgers    = []string{config.LedgerMemory, config.LedgerFile, config.LedgerRedis, config.LedgerPostgres}
	validFormats    = []string{"json", "csv"}
)

type arguments struct {
	mode        string
	file        string
	config      string
	strategy    string
	solver      string
	ledger      string
	semesters   string
	preferences string
	clear       bool
	force       bool
	format      string
	out         string
	metricsOut  string
}

func main() {
	args := parseArguments()

	settings, err := config.Load(args.config)
	if err != nil {
		log.Fatalf("cannot load settings: %v", err)
	}
	applyOverrides(settings, args)

	zapLogger, err := logger.New(settings.Log, settings.Env)
	if err != nil {
		log.Fatalf("cannot build logger: %v", err)
	}

	var recorder *metrics.Recorder
	if settings.Metrics.Enabled || args.metricsOut != "" {
		recorder = metrics.NewRecorder()
	}

	code := run(context.Background(), args, settings, zapLogger, recorder)

	if recorder != nil && args.metricsOut != "" {
		if err := recorder.WriteTextfile(args.metricsOut); err != nil {
			zapLogger.Error("cannot write metrics", zap.Error(err))
		}
	}
	zapLogger.Sync() //nolint:errcheck
	os.Exit(code)
}

func parseArguments() arguments {
	var args arguments
	flag.StringVar(&args.mode, "mode", "timetable", `What to run. Allowed values are:
- "timetable" (build the main timetable),
- "electives" (build the elective timetable against the same ledger),
- "teachers" (assign teachers to an existing timetable) and
- "reset-ledger" (empty the usage ledger), where "timetable" is the default`)
	flag.StringVar(&args.file, "file", "", "Path to the input file")
	flag.StringVar(&args.config, "config", "", "Path to a settings file; when empty coursetable.{yaml,json} in the working directory is used if present")
	flag.StringVar(&args.strategy, "strategy", "", `Room strategy. Allowed values are "embedded" (rooms are chosen by the solver) and "postponed" (rooms are matched after solving); defaults to the settings value`)
	flag.StringVar(&args.solver, "solver", "", `Solver backend. Allowed values are "native", "gini", "gophersat", "kissat" and "cadical"; defaults to the settings value`)
	flag.StringVar(&args.ledger, "ledger", "", `Usage ledger backend. Allowed values are "memory", "file", "redis" and "postgres"; defaults to the settings value`)
	flag.StringVar(&args.semesters, "semesters", "", "Comma separated semester numbers to schedule; all semesters when empty")
	flag.StringVar(&args.preferences, "preferences", "", "Path to a teacher preferences CSV; overrides the preferences in the input file (teachers mode)")
	flag.BoolVar(&args.clear, "clear", false, "Discard the existing entries of the selected scope before solving")
	flag.BoolVar(&args.force, "force", false, "Solve even when the input did not change since the last run")
	flag.StringVar(&args.format, "format", "json", `Output format, "json" or "csv"`)
	flag.StringVar(&args.out, "out", "", "Path to the file where the output will be written; if empty, it'll be written into the Standard Output")
	flag.StringVar(&args.metricsOut, "metrics-out", "", "Path of a Prometheus textfile to write run metrics to")
	flag.Parse()

	args.mode = strings.ToLower(args.mode)
	args.strategy = strings.ToLower(args.strategy)
	args.solver = strings.ToLower(args.solver)
	args.ledger = strings.ToLower(args.ledger)
	args.format = strings.ToLower(args.format)

	// Validate arguments
	if !slices.Contains(validModes, args.mode) {
		log.Fatalf("%v is not a valid mode", args.mode)
	} else if args.strategy != "" && !slices.Contains(validStrategies, args.strategy) {
		log.Fatalf("%v is not a valid strategy", args.strategy)
	} else if args.solver != "" && !slices.Contains(validSolvers, args.solver) {
		log.Fatalf("%v is not a valid solver", args.solver)
	} else if args.ledger != "" && !slices.Contains(validLedgers, args.ledger) {
		log.Fatalf("%v is not a valid ledger backend", args.ledger)
	} else if !slices.Contains(validFormats, args.format) {
		log.Fatalf("%v is not a valid format", args.format)
	} else if args.file == "" && args.mode != "reset-ledger" {
		log.Fatal("an input file must be specified")
	}
	return args
}

func applyOverrides(settings *config.Settings, args arguments) {
	if args.strategy != "" {
		settings.Engine.RoomStrategy = args.strategy
	}
	if args.solver != "" {
		settings.Engine.Solver.Backend = args.solver
	}
	if args.ledger != "" {
		settings.Ledger.Backend = args.ledger
	}
}

func run(ctx context.Context, args arguments, settings *config.Settings, zapLogger *zap.Logger, recorder *metrics.Recorder) int {
	if args.mode == "teachers" {
		return assignTeachers(args, zapLogger, recorder)
	}

	store, closeStore, err := ledger.Open(ctx, settings.Ledger)
	if err != nil {
		return fail(zapLogger, "cannot open usage ledger", err)
	}
	defer closeStore() //nolint:errcheck

	if args.mode == "reset-ledger" {
		if err := store.Reset(ctx); err != nil {
			return fail(zapLogger, "cannot reset usage ledger", err)
		}
		zapLogger.Info("usage ledger reset", zap.String("backend", settings.Ledger.Backend))
		return exitNoChange
	}

	input, err := model.InputFromJson(args.file)
	if err != nil {
		return fail(zapLogger, "cannot parse input file", err)
	}
	semesters, err := parseSemesters(args.semesters)
	if err != nil {
		return fail(zapLogger, "cannot parse semesters", err)
	}

	engine, err := solver.NewEngine(settings.Engine.Solver, settings.Solvers, zapLogger)
	if err != nil {
		return fail(zapLogger, "cannot initialize solver", err)
	}
	timetabler, err := timetable.New(settings.Engine.RoomStrategy, engine, store,
		timetable.WithLogger(zapLogger),
		timetable.WithRecorder(recorder),
	)
	if err != nil {
		return fail(zapLogger, "cannot initialize timetabler", err)
	}

	request := timetable.Request{
		Input:         input,
		Config:        settings.Engine,
		Semesters:     semesters,
		ClearExisting: args.clear,
		Force:         args.force,
	}

	var result timetable.Result
	if args.mode == "electives" {
		result, err = timetabler.BuildElectives(ctx, request)
	} else {
		result, err = timetabler.Build(ctx, request)
	}
	if errors.Is(err, appErrors.ErrVerification) {
		zapLogger.Error("timetable failed verification", zap.Error(err))
		return exitVerification
	} else if err != nil {
		return fail(zapLogger, "an error occurred during timetable construction", err)
	}

	fmt.Fprintf(os.Stderr, "Variables: %v\n", result.Stats.Variables)
	fmt.Fprintf(os.Stderr, "Constraints: %v\n", result.Stats.Constraints)

	switch result.Status {
	case timetable.StatusNoChange:
		zapLogger.Info("input unchanged since the last run; use -force or -clear to rebuild")
		return exitNoChange
	case timetable.StatusInfeasible, timetable.StatusTimedOut:
		fmt.Fprintln(os.Stderr, result.Reason)
		return exitInfeasible
	}

	if err := writeOutput(args, result, func(out io.Writer) error {
		return export.WriteAssignments(out, result.Assignments)
	}); err != nil {
		return fail(zapLogger, "an error occurred while writing the output", err)
	}
	return exitFeasible
}

func assignTeachers(args arguments, zapLogger *zap.Logger, recorder *metrics.Recorder) int {
	input, err := model.AssignmentInputFromJson(args.file)
	if err != nil {
		return fail(zapLogger, "cannot parse input file", err)
	}
	raws := input.Preferences
	if args.preferences != "" {
		file, err := os.Open(args.preferences)
		if err != nil {
			return fail(zapLogger, "cannot open preferences file", err)
		}
		raws, err = export.ReadPreferences(file)
		file.Close()
		if err != nil {
			return fail(zapLogger, "cannot parse preferences file", err)
		}
	}

	preferences, err := assign.ParsePreferences(raws)
	if err != nil {
		return fail(zapLogger, "invalid preferences", err)
	}

	engine := assign.NewEngine(zapLogger, recorder)
	result, err := engine.Assign(input.Assignments, preferences, assign.Options{ClearExisting: args.clear})
	if err != nil {
		return fail(zapLogger, "an error occurred during teacher assignment", err)
	}

	if err := writeOutput(args, result, func(out io.Writer) error {
		return export.WriteTeacherAssignments(out, result.TeacherAssignments)
	}); err != nil {
		return fail(zapLogger, "an error occurred while writing the output", err)
	}
	fmt.Fprintf(os.Stderr, "Assigned: %v\n", result.AssignedCount)
	fmt.Fprintf(os.Stderr, "Unassigned: %v\n", result.UnassignedCount)
	return exitNoChange
}

// fail logs err and hands back the failure exit code, leaving deferred cleanup in run to happen.
func fail(zapLogger *zap.Logger, message string, err error) int {
	zapLogger.Error(message, zap.Error(err))
	return exitFailure
}

// writeOutput renders value as JSON, or through writeCSV, into -out or the Standard Output.
func writeOutput(args arguments, value any, writeCSV func(io.Writer) error) error {
	var buffer bytes.Buffer
	if args.format == "csv" {
		if err := writeCSV(&buffer); err != nil {
			return err
		}
	} else {
		encoded, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("build output json: %w", err)
		}
		buffer.Write(encoded)
		buffer.WriteByte('\n')
	}

	if args.out == "" {
		_, err := os.Stdout.Write(buffer.Bytes())
		return err
	}
	return os.WriteFile(args.out, buffer.Bytes(), 0666)
}

func parseSemesters(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	fields := lo.Filter(strings.Split(raw, ","), func(field string, _ int) bool { return strings.TrimSpace(field) != "" })
	semesters := make([]int, 0, len(fields))
	for _, field := range fields {
		semester, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("%q is not a semester number", field)
		}
		semesters = append(semesters, semester)
	}
	return semesters, nil
}
