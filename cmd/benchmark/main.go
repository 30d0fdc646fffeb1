package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"

	"github.com/limaJavier/coursetable/pkg/config"
	"github.com/limaJavier/coursetable/pkg/model"
)

const (
	satisfiableDirectory   = "satisfiable"
	unsatisfiableDirectory = "unsatisfiable"
	KB                     = 1024
)

type ResultType int

const (
	solved ResultType = iota
	unsatisfiable
	unverified
)

var (
	resultTypes = map[ResultType]string{
		solved:        "solved",
		unsatisfiable: "unsatisfiable",
		unverified:    "unverified",
	}
	strategies = []string{config.RoomStrategyEmbedded, config.RoomStrategyPostponed}
	backends   = []string{config.BackendNative, config.BackendGini, config.BackendGophersat, config.BackendKissat, config.BackendCadical}
)

type TestMetadata struct {
	Name        string
	Satisfiable bool
	Semesters   int
	Sections    int
	Subjects    int
	Rooms       int
}

// BenchmarkResult is one row of the report.
type BenchmarkResult struct {
	Backend       string  `csv:"Backend"`
	Strategy      string  `csv:"Strategy"`
	Test          string  `csv:"Test"`
	Satisfiable   bool    `csv:"Satisfiable"`
	Semesters     int     `csv:"Semesters"`
	Sections      int     `csv:"Sections"`
	Subjects      int     `csv:"Subjects"`
	Rooms         int     `csv:"Rooms"`
	Duration      int64   `csv:"Duration(ms)"`
	Memory        float32 `csv:"Memory(MB)"`
	CpuPercentage int64   `csv:"CPU(%)"`
	Result        string  `csv:"Result"`
}

func main() {
	executablePath := flag.String("cli", "../../bin/coursetable", "Path to the coursetable executable")
	testDirectory := flag.String("dir", "../../test/out", "Directory holding the satisfiable/ and unsatisfiable/ instance folders")
	selected := flag.String("backends", strings.Join(backends, ","), "Comma separated solver backends to benchmark")
	outFile := flag.String("out", "benchmark_results.csv", "Path of the CSV report")
	flag.Parse()

	tests := getTests(*testDirectory)
	solvers := lo.Intersect(backends, strings.Split(*selected, ","))
	results := make([]*BenchmarkResult, 0, len(tests)*len(strategies)*len(solvers))

	for _, test := range tests {
		for _, strategy := range strategies {
			for _, backend := range solvers {
				fmt.Printf("Benchmarking test \"%v\" with strategy \"%v\" and backend \"%v\"\n", test.Name, strategy, backend)

				duration, maxMemory, cpuPercentage, result := measure(*executablePath, strategy, backend, test.Name)

				results = append(results, &BenchmarkResult{
					Backend:       backend,
					Strategy:      strategy,
					Test:          test.Name,
					Satisfiable:   test.Satisfiable,
					Semesters:     test.Semesters,
					Sections:      test.Sections,
					Subjects:      test.Subjects,
					Rooms:         test.Rooms,
					Duration:      duration,
					Memory:        maxMemory,
					CpuPercentage: cpuPercentage,
					Result:        resultTypes[result],
				})
			}
		}
	}

	toCsv(results, *outFile)
}

func getTests(root string) []TestMetadata {
	tests := make([]TestMetadata, 0)
	for _, tuple := range lo.Zip2([]string{satisfiableDirectory, unsatisfiableDirectory}, []bool{true, false}) {
		directory, satisfiable := filepath.Join(root, tuple.A), tuple.B
		testFiles, err := os.ReadDir(directory)
		if err != nil {
			log.Fatalf("cannot read directory: %v", err)
		}

		for _, file := range testFiles {
			filename := filepath.Join(directory, file.Name())
			input, err := model.InputFromJson(filename)
			if err != nil {
				log.Fatalf("cannot parse input file: %v", err)
			}

			tests = append(tests, TestMetadata{
				Name:        filename,
				Satisfiable: satisfiable,
				Semesters:   len(input.Semesters),
				Sections:    len(input.Sections),
				Subjects:    len(input.Subjects),
				Rooms:       len(input.Rooms),
			})
		}
	}

	return tests
}

func measure(executablePath, strategy, backend, testFile string) (duration int64, maxMemory float32, cpuPercentage int64, result ResultType) {
	// Every run gets a fresh in-memory ledger so runs never see each other's rooms
	cmd := exec.Command("/usr/bin/time", "-v", executablePath,
		"-strategy", strategy,
		"-solver", backend,
		"-ledger", config.LedgerMemory,
		"-force",
		"-file", testFile,
	)

	var stdOut bytes.Buffer
	cmd.Stdout = &stdOut
	var stdErr bytes.Buffer
	cmd.Stderr = &stdErr

	cmd.Run() //nolint:errcheck
	switch cmd.ProcessState.ExitCode() {
	case 10:
		result = solved
	case 20:
		result = unsatisfiable
	case 15:
		result = unverified
	default:
		log.Fatalf("an error occurred during the execution of \"coursetable\" at test \"%v\" using strategy \"%v\", backend \"%v\": %v\n", testFile, strategy, backend, stdErr.String())
	}
	splits := strings.Split(stdErr.String(), "\n")
	getLine := func(substr string) string {
		line, ok := lo.Find(splits, func(line string) bool {
			return strings.Contains(strings.ToLower(line), substr)
		})
		if !ok {
			log.Fatalf("Substring \"%v\" could not be found", substr)
		}
		return line
	}

	duration = parseDurationLine(getLine("wall clock"))
	maxMemory = parseMemoryLine(getLine("maximum resident set size"))
	cpuPercentage = parseCpuPercentageLine(getLine("percent of cpu"))

	return duration, maxMemory, cpuPercentage, result
}

func toCsv(results []*BenchmarkResult, path string) {
	file, err := os.Create(path)
	if err != nil {
		log.Panicf("cannot create CSV file: %v", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&results, file); err != nil {
		log.Panicf("cannot write CSV report: %v", err)
	}
}

func parseDurationLine(line string) int64 {
	durationStr := strings.Split(line, "(h:mm:ss or m:ss):")[1][1:]
	return parseDuration(durationStr)
}

func parseDuration(durationStr string) int64 {
	parts := strings.Split(durationStr, ":")
	secondsStr := parts[len(parts)-1]
	secondsParts := strings.Split(secondsStr, ".")

	var duration int64
	if len(parts) == 3 { // h:mm:ss
		hours := lo.Must(strconv.Atoi(parts[0]))
		minutes := lo.Must(strconv.Atoi(parts[1]))
		seconds := lo.Must(strconv.Atoi(secondsParts[0]))
		hundredthOfSeconds := lo.Must(strconv.Atoi(secondsParts[1]))
		duration = int64(hours*3600+minutes*60+seconds)*1000 + int64(hundredthOfSeconds*10)
	} else if len(parts) == 2 { // m:ss
		minutes := lo.Must(strconv.Atoi(parts[0]))
		seconds := lo.Must(strconv.Atoi(secondsParts[0]))
		hundredthOfSeconds := lo.Must(strconv.Atoi(secondsParts[1]))
		duration = int64(minutes*60+seconds)*1000 + int64(hundredthOfSeconds*10)
	} else {
		log.Fatalf("unexpected duration format: %v", durationStr)
	}
	return duration
}

func parseMemoryLine(line string) float32 {
	memoryStr := strings.Split(line, ":")[1][1:]
	return float32(lo.Must(strconv.ParseFloat(memoryStr, 32))) / KB
}

func parseCpuPercentageLine(line string) int64 {
	percentageStr := strings.Split(line, ":")[1][1:]
	percentageStr = percentageStr[:len(percentageStr)-1]
	return int64(lo.Must(strconv.Atoi(percentageStr)))
}
