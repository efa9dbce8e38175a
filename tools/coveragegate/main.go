package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/cover"
)

type coverage struct {
	covered int
	total   int
}

var pureFiles = []string{
	"pubengine/errors.go",
	"pubengine/wire.go",
	"pubengine/queue.go",
	"pubengine/retransmission.go",
	"pubengine/scheduler.go",
	"pubengine/subscription.go",
	"pubengine/internal/clock/clock.go",
	"pubengine/internal/seqnum/seqnum.go",
	"pubengine/internal/diag/diag.go",
}

var ioFiles = []string{
	"pubengine/engine.go",
	"pubengine/config.go",
	"transport/wsdemo/server.go",
}

func parseProfile(path string) (map[string]coverage, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return nil, err
	}

	result := map[string]coverage{}
	for _, profile := range profiles {
		entry := coverage{}
		for _, block := range profile.Blocks {
			entry.total += block.NumStmt
			if block.Count > 0 {
				entry.covered += block.NumStmt
			}
		}
		result[profile.FileName] = entry
	}
	return result, nil
}

func findCoverage(files map[string]coverage, suffix string) (coverage, bool) {
	for fileName, cov := range files {
		if strings.HasSuffix(fileName, suffix) {
			return cov, true
		}
	}
	return coverage{}, false
}

func pct(c coverage) float64 {
	if c.total == 0 {
		return 0
	}
	return (float64(c.covered) * 100.0) / float64(c.total)
}

func main() {
	profilePath := flag.String("profile", "coverage.out", "path to go coverage profile")
	overallThreshold := flag.Float64("overall", 90.0, "minimum aggregate coverage percentage")
	ioThreshold := flag.Float64("io", 80.0, "minimum io file coverage percentage")
	flag.Parse()

	files, err := parseProfile(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coverage gate failed reading profile: %v\n", err)
		os.Exit(1)
	}

	total := coverage{}
	for _, fileCov := range files {
		total.covered += fileCov.covered
		total.total += fileCov.total
	}
	overall := pct(total)

	failures := make([]string, 0)
	if overall+1e-9 < *overallThreshold {
		failures = append(failures, fmt.Sprintf("aggregate coverage %.1f%% is below %.1f%%", overall, *overallThreshold))
	}

	for _, fileName := range pureFiles {
		fileCov, ok := findCoverage(files, fileName)
		if !ok {
			failures = append(failures, fmt.Sprintf("pure file %s is missing from coverage profile", fileName))
			continue
		}
		if fileCov.covered != fileCov.total {
			failures = append(failures, fmt.Sprintf("pure file %s is %.1f%% (required 100.0%%)", fileName, pct(fileCov)))
		}
	}

	for _, fileName := range ioFiles {
		fileCov, ok := findCoverage(files, fileName)
		if !ok {
			failures = append(failures, fmt.Sprintf("io file %s is missing from coverage profile", fileName))
			continue
		}
		filePct := pct(fileCov)
		if filePct+1e-9 < *ioThreshold {
			failures = append(failures, fmt.Sprintf("io file %s is %.1f%% (required %.1f%%)", fileName, filePct, *ioThreshold))
		}
	}

	sort.Strings(failures)

	fmt.Printf("aggregate: %.1f%% (%d/%d)\n", overall, total.covered, total.total)
	if len(failures) == 0 {
		fmt.Println("coverage gate: PASS")
		return
	}

	fmt.Println("coverage gate: FAIL")
	for _, failure := range failures {
		fmt.Printf("- %s\n", failure)
	}
	os.Exit(2)
}
