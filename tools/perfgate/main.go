// Command perfgate runs a fixed set of engine benchmarks and fails if any
// regresses past a baseline beyond the allowed margin.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/oparthasarathy/opcua-publishengine/tools/internal/benchstat"
)

type baselineFile struct {
	Benchmarks map[string]benchstat.Sample `json:"benchmarks"`
}

// checkRegressions compares actual results against baseline expectations,
// returning one failure message per benchmark that regressed or is missing.
func checkRegressions(baseline, actual map[string]benchstat.Sample, maxRegressionPct float64) []string {
	var failures []string
	for name, expected := range baseline {
		got, ok := actual[name]
		if !ok {
			failures = append(failures, fmt.Sprintf("missing benchmark result: %s", name))
			continue
		}

		maxNS := expected.NSOp * (1.0 + maxRegressionPct/100.0)
		if got.NSOp > maxNS {
			failures = append(failures, fmt.Sprintf("%s ns/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.NSOp, got.NSOp, maxNS))
		}

		maxAllocs := expected.AllocsOp * (1.0 + maxRegressionPct/100.0)
		if expected.AllocsOp == 0 {
			maxAllocs = 0
		}
		if got.AllocsOp > maxAllocs {
			failures = append(failures, fmt.Sprintf("%s allocs/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.AllocsOp, got.AllocsOp, maxAllocs))
		}
	}
	return failures
}

func main() {
	baselinePath := flag.String("baseline", "tools/perf_baseline.json", "path to benchmark baseline JSON")
	packagePath := flag.String("package", "./pubengine", "package path for benchmarks")
	benchtime := flag.String("benchtime", "1s", "go test benchmark duration")
	maxRegression := flag.Float64("max-regression", 10.0, "max allowed regression percentage")
	flag.Parse()

	data, err := os.ReadFile(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perf baseline read failed: %v\n", err)
		os.Exit(1)
	}

	var baseline baselineFile
	if err := json.Unmarshal(data, &baseline); err != nil {
		fmt.Fprintf(os.Stderr, "perf baseline parse failed: %v\n", err)
		os.Exit(1)
	}
	if len(baseline.Benchmarks) == 0 {
		fmt.Fprintln(os.Stderr, "perf baseline is empty")
		os.Exit(1)
	}

	names := make([]string, 0, len(baseline.Benchmarks))
	for name := range baseline.Benchmarks {
		names = append(names, regexp.QuoteMeta(name))
	}
	benchPattern := "^(" + strings.Join(names, "|") + ")$"

	cmd := exec.Command("go", "test", *packagePath, "-run", "^$", "-bench", benchPattern, "-benchmem", "-count=1", "-benchtime="+*benchtime) // #nosec G204 -- arguments are passed without shell expansion
	outputBytes, err := cmd.CombinedOutput()
	output := string(outputBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "benchmark command failed: %v\n%s", err, output)
		os.Exit(1)
	}

	failures := checkRegressions(baseline.Benchmarks, benchstat.ParseSingleSample(output), *maxRegression)

	fmt.Print(output)
	if len(failures) == 0 {
		fmt.Println("perf gate: PASS")
		return
	}

	fmt.Println("perf gate: FAIL")
	for _, failure := range failures {
		fmt.Printf("- %s\n", failure)
	}
	os.Exit(2)
}
