package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"breeder/internal/model"
	"breeder/internal/platform"
)

// Runner executes one run to completion; *platform.Coordinator satisfies it.
type Runner interface {
	Run(ctx context.Context, req platform.RunRequest) (model.RunRecord, error)
}

type BenchmarkRun struct {
	RunID       string  `json:"run_id"`
	Seed        int64   `json:"seed"`
	Success     bool    `json:"success"`
	Generations int     `json:"generations"`
	FinalBest   float64 `json:"final_best"`
	Best        string  `json:"best"`
}

type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

type BenchmarkReport struct {
	Request     platform.RunRequest `json:"request"`
	TotalRuns   int                 `json:"total_runs"`
	SuccessRuns int                 `json:"success_runs"`
	SuccessRate float64             `json:"success_rate"`
	// Generations covers successful runs only.
	Generations Summary        `json:"generations"`
	FinalBest   Summary        `json:"final_best"`
	Elapsed     time.Duration  `json:"elapsed_ns"`
	Runs        []BenchmarkRun `json:"runs"`
}

// Benchmark runs req repeats times with seeds seed, seed+1, ... A zero seed
// starts from 1 so the whole benchmark is reproducible.
func Benchmark(ctx context.Context, runner Runner, req platform.RunRequest, repeats int) (BenchmarkReport, error) {
	if repeats <= 0 {
		return BenchmarkReport{}, fmt.Errorf("repeats must be > 0 (got %d)", repeats)
	}
	if req.Seed == 0 {
		req.Seed = 1
	}

	report := BenchmarkReport{
		Request: req,
		Runs:    make([]BenchmarkRun, 0, repeats),
	}
	started := time.Now()
	var successGenerations, finalBest []float64
	for i := 0; i < repeats; i++ {
		runReq := req
		runReq.Seed = req.Seed + int64(i)
		rec, err := runner.Run(ctx, runReq)
		if err != nil {
			return BenchmarkReport{}, fmt.Errorf("benchmark run %d (seed %d): %w", i, runReq.Seed, err)
		}
		run := BenchmarkRun{
			RunID:       rec.ID,
			Seed:        runReq.Seed,
			Success:     rec.Reached,
			Generations: rec.Generations,
			FinalBest:   rec.BestFitness,
			Best:        rec.Best,
		}
		report.Runs = append(report.Runs, run)
		finalBest = append(finalBest, run.FinalBest)
		if run.Success {
			report.SuccessRuns++
			successGenerations = append(successGenerations, float64(run.Generations))
		}
	}
	report.Elapsed = time.Since(started)
	report.TotalRuns = len(report.Runs)
	report.SuccessRate = float64(report.SuccessRuns) / float64(report.TotalRuns)
	report.Generations = summarize(successGenerations)
	report.FinalBest = summarize(finalBest)
	return report, nil
}

// WriteReport stores report as <dir>/<name>_Report.json and returns the path.
func WriteReport(dir, name string, report BenchmarkReport) (string, error) {
	if name == "" {
		name = "benchmark"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+"_Report.json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// summarize returns the population mean, std, min and max of values.
func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - s.Mean
		variance += d * d
	}
	s.Std = math.Sqrt(variance / float64(len(values)))
	return s
}
