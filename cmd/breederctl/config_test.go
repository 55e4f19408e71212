package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"breeder/internal/platform"
)

func writeConfig(t *testing.T, payload map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run_config.json")
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunRequestFromConfig(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"problem":         "phrase",
		"population_size": 300,
		"mutation_rate":   0,
		"workers":         3,
		"seed":            77,
		"max_generations": 500,
		"phrase":          "evolve",
		"ignored":         true,
	})

	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if req.Problem != "phrase" || req.PopulationSize != 300 || req.Workers != 3 || req.Seed != 77 {
		t.Fatalf("unexpected base fields: %+v", req)
	}
	if req.MutationRate == nil || *req.MutationRate != 0 {
		t.Fatalf("expected explicit zero mutation rate, got %v", req.MutationRate)
	}
	if req.MaxGenerations != 500 || req.Phrase != "evolve" {
		t.Fatalf("unexpected search fields: %+v", req)
	}
}

func TestLoadRunRequestFromConfigErrors(t *testing.T) {
	if _, err := loadOrDefaultRunRequest(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected missing file error")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadRunRequestFromConfig(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"problem":         "queens",
		"population_size": 300,
		"seed":            5,
		"size":            10,
	})

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	rf := addRunFlags(fs)
	if err := fs.Parse([]string{"-config", path, "-pop", "40", "-rate", "0.2"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	req, err := rf.request(fs)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.PopulationSize != 40 {
		t.Fatalf("expected flag to override population, got %d", req.PopulationSize)
	}
	if req.MutationRate == nil || *req.MutationRate != 0.2 {
		t.Fatalf("expected flag rate 0.2, got %v", req.MutationRate)
	}
	if req.Seed != 5 || req.Size != 10 || req.Problem != "queens" {
		t.Fatalf("expected config values to survive, got %+v", req)
	}
}

func TestOverrideFromFlagsRejectsUnknown(t *testing.T) {
	var req platform.RunRequest
	err := overrideFromFlags(&req, map[string]bool{"bogus": true}, map[string]any{"bogus": 1})
	if err == nil {
		t.Fatal("expected unsupported override error")
	}
}

func TestDefaultWorkersFromBuild(t *testing.T) {
	orig := defaultWorkers
	t.Cleanup(func() { defaultWorkers = orig })

	defaultWorkers = "6"
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	rf := addRunFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if *rf.workers != 6 {
		t.Fatalf("expected build default of 6 workers, got %d", *rf.workers)
	}

	defaultWorkers = "lots"
	fs = flag.NewFlagSet("run", flag.ContinueOnError)
	rf = addRunFlags(fs)
	if *rf.workers != 0 {
		t.Fatalf("expected invalid build default to fall back to 0, got %d", *rf.workers)
	}
}
