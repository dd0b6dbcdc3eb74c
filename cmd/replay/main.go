// Command replay runs a recorded scenario fixture through a live scheduler
// and proximity machine and prints the per-step outcomes. With --verify it
// checks the run against the fixture's expected_results block; with --record
// it writes the observed outcomes back as the new expectations.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/driftlog/proximity/go-scheduler/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to scenario fixture JSON")
	verify := flag.Bool("verify", false, "check the run against expected_results")
	record := flag.Bool("record", false, "write observed outcomes back into the fixture")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/scenario.json [--verify | --record]")
		os.Exit(2)
	}

	f, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	results, summary, err := replay.Run(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}

	printResults(f, results, summary)

	if *record {
		f.Expected = toExpected(results)
		if err := replay.SaveFixture(*fixturePath, f); err != nil {
			fmt.Fprintf(os.Stderr, "record: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nrecorded %d expected results into %s\n", len(f.Expected), *fixturePath)
		return
	}

	if *verify {
		if err := replay.Verify(f, results); err != nil {
			fmt.Fprintf(os.Stderr, "\nVERIFY FAILED: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nverify: OK")
	}
}

// #endregion main

// #region output

func printResults(f *replay.Fixture, results []replay.StepResult, summary replay.Summary) {
	if f.Description != "" {
		fmt.Printf("%s\n\n", f.Description)
	}
	fmt.Printf("%-5s  %-10s  %-9s  %-24s  %-24s  %s\n",
		"Step", "Kind", "Monitored", "Admitted", "Evicted", "Events")
	for _, r := range results {
		fmt.Printf("%-5d  %-10s  %-9d  %-24s  %-24s  %s\n",
			r.Step, r.Kind, r.Monitored,
			joinOrDash(r.Admitted), joinOrDash(r.Evicted), joinOrDash(r.Events))
	}
	fmt.Printf("\n%d steps, %d cycles (%d failed) | arrivals=%d departures=%d completions=%d | final monitored: %s\n",
		summary.Steps, summary.Cycles, summary.FailedCycles,
		summary.Arrivals, summary.Departures, summary.Completions,
		joinOrDash(summary.FinalMonitored))
}

func joinOrDash(vals []string) string {
	if len(vals) == 0 {
		return "-"
	}
	return strings.Join(vals, ",")
}

func toExpected(results []replay.StepResult) []replay.ExpectedStep {
	out := make([]replay.ExpectedStep, len(results))
	for i, r := range results {
		out[i] = replay.ExpectedStep{
			Step:      r.Step,
			Monitored: r.Monitored,
			Admitted:  r.Admitted,
			Evicted:   r.Evicted,
			Events:    r.Events,
		}
	}
	return out
}

// #endregion output
