// Package main provides the entry point for ClubHeap.
// ClubHeap is a cycle-accurate model of a pipelined, multi-partition
// cluster heap built on Akita.
//
// For the full CLI, use: go run ./cmd/clubheap
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("ClubHeap - pipelined cluster heap simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: clubheap [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config     Path to heap configuration JSON file")
	fmt.Println("  -workload   Workload mix: uniform, burst, steady or drain")
	fmt.Println("  -ops        Number of operators to issue")
	fmt.Println("  -validate   Check every result against the functional emulator")
	fmt.Println("  -trace      Record retired results to a SQLite file")
	fmt.Println("  -v          Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/clubheap' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/clubheap' instead.")
	}
}
