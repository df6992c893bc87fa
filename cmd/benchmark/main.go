// Command benchmark runs the ClubHeap throughput benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv          Output results in CSV format (default: human-readable)
//	-json         Output results in JSON format
//	-no-cache     Disable the per-level cache model
//	-no-validate  Skip the emulator cross-check
//	-core         Run only the core scenarios
//
// Example:
//
//	# Run all scenarios with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/clubheap/benchmarks"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results in JSON format")
	noCache := flag.Bool("no-cache", false, "Disable the per-level cache model")
	noValidate := flag.Bool("no-validate", false, "Skip the emulator cross-check")
	coreOnly := flag.Bool("core", false, "Run only the core scenarios")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.EnableCache = !*noCache
	config.Validate = !*noValidate
	config.Output = os.Stdout

	harness := benchmarks.NewHarness(config)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("ClubHeap Benchmark Harness")
		fmt.Println("==========================")
		fmt.Printf("Level cache: %v\n", config.EnableCache)
		fmt.Printf("Validation:  %v\n", config.Validate)
		fmt.Println("")
	}

	results, err := harness.RunAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}

	for _, r := range results {
		if r.Mismatches > 0 {
			fmt.Fprintf(os.Stderr, "%s: %d results disagree with the emulator\n", r.Name, r.Mismatches)
			os.Exit(1)
		}
	}
}
