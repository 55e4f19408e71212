package breeding

import (
	"context"
	"testing"

	"breeder/internal/logging"
	"breeder/internal/platform"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Options{StoreKind: "memory", Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientRunAndHistory(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	first, err := c.Run(ctx, RunRequest{Problem: "queens", Size: 5, PopulationSize: 30, Seed: 1, MaxGenerations: 20})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := c.Run(ctx, RunRequest{Problem: "phrase", Phrase: "go", PopulationSize: 30, Seed: 1, MaxGenerations: 20}); err != nil {
		t.Fatalf("run: %v", err)
	}

	runs, err := c.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	history, err := c.History(ctx, HistoryRequest{RunID: first.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != first.Generations {
		t.Fatalf("expected %d records, got %d", first.Generations, len(history))
	}

	latest, err := c.History(ctx, HistoryRequest{Latest: true, Limit: 1})
	if err != nil {
		t.Fatalf("latest history: %v", err)
	}
	if len(latest) != 1 || latest[0].Index != runs[0].Generations-1 {
		t.Fatalf("expected last generation of the latest run, got %+v", latest)
	}
}

func TestClientHistoryValidation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	if _, err := c.History(ctx, HistoryRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected run id / latest conflict")
	}
	if _, err := c.History(ctx, HistoryRequest{}); err == nil {
		t.Fatal("expected missing run id error")
	}
	if _, err := c.History(ctx, HistoryRequest{Latest: true}); err == nil {
		t.Fatal("expected no runs error")
	}
	if _, err := c.History(ctx, HistoryRequest{RunID: "missing"}); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestClientBenchmark(t *testing.T) {
	c := newTestClient(t)
	report, err := c.Benchmark(context.Background(), RunRequest{
		Problem:        "queens",
		Size:           4,
		PopulationSize: 20,
		MutationRate:   platform.Rate(0.1),
		MaxGenerations: 200,
	}, 3)
	if err != nil {
		t.Fatalf("benchmark: %v", err)
	}
	if report.TotalRuns != 3 || len(report.Runs) != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestProblems(t *testing.T) {
	problems := Problems()
	if len(problems) < 2 {
		t.Fatalf("expected builtin problems, got %+v", problems)
	}
	for _, p := range problems {
		if p.Description == "" {
			t.Fatalf("problem %s lacks a description", p.Name)
		}
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	if _, err := New(Options{StoreKind: "cassandra"}); err == nil {
		t.Fatal("expected unsupported store error")
	}
}
