// Command perfreport captures percentile latency tails for the engine's
// benchmarks across repeated runs and compares them against a prior capture.
//
// Unlike the AMPS client's original perfreport, which cross-referenced a
// C++ reference implementation via a parity manifest, the publish engine has
// no non-Go reference to compare against: this tool only tracks the Go side
// of the benchmark suite over time.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/oparthasarathy/opcua-publishengine/tools/internal/benchstat"
)

const (
	defaultCaptureTimeout   = 5 * time.Minute
	defaultProgressInterval = 20 * time.Second
)

type tailFile struct {
	GeneratedAtUTC   string                     `json:"generated_at_utc"`
	SourceCommand    string                     `json:"source_command"`
	PercentileMethod string                     `json:"percentile_method"`
	SamplesPerBench  int                        `json:"samples_per_benchmark"`
	Benchmarks       map[string]benchstat.Stats `json:"benchmarks"`
}

type comparisonEntry struct {
	P95Before   float64 `json:"p95_before"`
	P95After    float64 `json:"p95_after"`
	P95Delta    float64 `json:"p95_delta"`
	P95DeltaPct float64 `json:"p95_delta_pct"`
	P99Before   float64 `json:"p99_before"`
	P99After    float64 `json:"p99_after"`
	P99Delta    float64 `json:"p99_delta"`
	P99DeltaPct float64 `json:"p99_delta_pct"`
}

type comparisonFile struct {
	BaselineGeneratedAtUTC string                     `json:"baseline_generated_at_utc"`
	CurrentGeneratedAtUTC  string                     `json:"current_generated_at_utc"`
	Metric                 string                     `json:"metric"`
	PercentileMethod       string                     `json:"percentile_method"`
	Benchmarks             map[string]comparisonEntry `json:"benchmarks"`
}

// runCommand executes command with a timeout, logging a progress line to
// stderr every progressInterval so a multi-minute capture isn't silent.
func runCommand(command []string, timeout, progressInterval time.Duration, label string) (string, error) {
	if len(command) == 0 {
		return "", errors.New("empty command")
	}
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}
	if strings.TrimSpace(label) == "" {
		label = strings.Join(command, " ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command[0], command[1:]...) // #nosec G204 -- structured arguments only
	done := make(chan struct{}, 1)
	var outputBytes []byte
	var runErr error
	go func() {
		outputBytes, runErr = cmd.CombinedOutput()
		done <- struct{}{}
	}()

	startedAt := time.Now()
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			output := string(outputBytes)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return output, fmt.Errorf("command timed out after %s: %s\n%s", timeout, label, output)
			}
			if runErr != nil {
				return output, fmt.Errorf("command failed: %w\n%s", runErr, output)
			}
			return output, nil
		case <-ticker.C:
			elapsed := time.Since(startedAt).Round(time.Second)
			remaining := time.Until(startedAt.Add(timeout)).Round(time.Second)
			if remaining < 0 {
				remaining = 0
			}
			fmt.Fprintf(os.Stderr, "[perfreport] running: %s (elapsed=%s remaining=%s)\n", label, elapsed, remaining)
		}
	}
}

func writeJSON(path string, value any) error {
	bytes, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	bytes = append(bytes, '\n')
	return os.WriteFile(path, bytes, 0o644)
}

func readTail(path string) (tailFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tailFile{}, err
	}
	var file tailFile
	if err := json.Unmarshal(data, &file); err != nil {
		return tailFile{}, err
	}
	return file, nil
}

func lookupStats(file tailFile, name string) (benchstat.Stats, bool) {
	if name == "" {
		return benchstat.Stats{}, false
	}
	if stats, ok := file.Benchmarks[name]; ok {
		return stats, true
	}
	normalized := benchstat.NormalizeName(name)
	stats, ok := file.Benchmarks[normalized]
	return stats, ok
}

func commandCapture(arguments []string) error {
	flagSet := flag.NewFlagSet("capture", flag.ContinueOnError)
	packagePath := flagSet.String("package", "./pubengine", "package path to benchmark")
	benchPattern := flagSet.String("bench", ".", "go benchmark regex")
	benchtime := flagSet.String("benchtime", "1x", "go benchmark benchtime per sample")
	samples := flagSet.Int("samples", 20, "number of benchmark samples")
	timeout := flagSet.Duration("timeout", defaultCaptureTimeout, "maximum capture runtime")
	progressInterval := flagSet.Duration("progress-interval", defaultProgressInterval, "progress log interval")
	outPath := flagSet.String("out", "tools/perf_tail_current.json", "output JSON path")
	if err := flagSet.Parse(arguments); err != nil {
		return err
	}
	if *timeout <= 0 {
		*timeout = defaultCaptureTimeout
	}

	command := []string{"go", "test", *packagePath, "-run", "^$", "-bench", *benchPattern, "-benchmem", "-benchtime=" + *benchtime, "-count=" + strconv.Itoa(*samples)}
	output, err := runCommand(command, *timeout, *progressInterval, "capture engine benchmarks")
	if err != nil {
		return err
	}

	parsed := benchstat.ParseRepeatedSamples(output)
	if len(parsed) == 0 {
		return errors.New("no benchmark samples parsed")
	}

	file := tailFile{
		GeneratedAtUTC:   time.Now().UTC().Format(time.RFC3339),
		SourceCommand:    strings.Join(command, " "),
		PercentileMethod: "nearest-rank",
		SamplesPerBench:  *samples,
		Benchmarks:       map[string]benchstat.Stats{},
	}
	for name, values := range parsed {
		file.Benchmarks[name] = benchstat.Summarize(values)
	}

	return writeJSON(*outPath, file)
}

func commandCompare(arguments []string) error {
	flagSet := flag.NewFlagSet("compare", flag.ContinueOnError)
	baselinePath := flagSet.String("baseline", "tools/perf_tail_baseline.json", "baseline tail file")
	currentPath := flagSet.String("current", "tools/perf_tail_current.json", "current tail file")
	outPath := flagSet.String("out", "tools/perf_tail_comparison.json", "output comparison JSON")
	if err := flagSet.Parse(arguments); err != nil {
		return err
	}

	baseline, err := readTail(*baselinePath)
	if err != nil {
		return err
	}
	current, err := readTail(*currentPath)
	if err != nil {
		return err
	}

	file := comparisonFile{
		BaselineGeneratedAtUTC: baseline.GeneratedAtUTC,
		CurrentGeneratedAtUTC:  current.GeneratedAtUTC,
		Metric:                 "ns/op (lower is better)",
		PercentileMethod:       "nearest-rank",
		Benchmarks:             map[string]comparisonEntry{},
	}

	for name, base := range baseline.Benchmarks {
		stats, ok := lookupStats(current, name)
		if !ok {
			continue
		}
		p95Delta := stats.P95 - base.P95
		p99Delta := stats.P99 - base.P99
		var p95Pct, p99Pct float64
		if base.P95 != 0 {
			p95Pct = (p95Delta / base.P95) * 100.0
		}
		if base.P99 != 0 {
			p99Pct = (p99Delta / base.P99) * 100.0
		}
		file.Benchmarks[name] = comparisonEntry{
			P95Before: base.P95, P95After: stats.P95, P95Delta: p95Delta, P95DeltaPct: p95Pct,
			P99Before: base.P99, P99After: stats.P99, P99Delta: p99Delta, P99DeltaPct: p99Pct,
		}
	}

	return writeJSON(*outPath, file)
}

func usage() {
	fmt.Println("Usage: perfreport <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  capture   Capture engine benchmark percentile tails into JSON")
	fmt.Println("  compare   Compare baseline/current tail JSON")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "capture":
		err = commandCapture(os.Args[2:])
	case "compare":
		err = commandCompare(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
