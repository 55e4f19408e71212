package platform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"breeder/internal/logging"
	"breeder/internal/model"
	"breeder/internal/problem"
	"breeder/internal/storage"
)

type recordingSink struct {
	mu          sync.Mutex
	started     []string
	generations map[string]int
	finished    []model.RunRecord
	first       chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{generations: make(map[string]int), first: make(chan string, 16)}
}

func (s *recordingSink) RunStarted(run model.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, run.ID)
}

func (s *recordingSink) Generation(run model.RunRecord, _ problem.GenerationEvent) {
	s.mu.Lock()
	s.generations[run.ID]++
	n := s.generations[run.ID]
	s.mu.Unlock()
	if n == 1 {
		s.first <- run.ID
	}
}

func (s *recordingSink) RunFinished(run model.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, run)
}

func newTestCoordinator(t *testing.T, sinks ...Sink) (*Coordinator, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	c := NewCoordinator(Config{Store: store, Sinks: sinks, Logger: logging.Discard()})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init coordinator: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c, store
}

func TestCoordinatorRunPersistsRunAndHistory(t *testing.T) {
	sink := newRecordingSink()
	c, store := newTestCoordinator(t, sink)

	run, err := c.Run(context.Background(), RunRequest{
		Problem:        "phrase",
		Phrase:         "abcdef",
		PopulationSize: 60,
		MutationRate:   Rate(0.2),
		Seed:           3,
		MaxGenerations: 40,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != model.RunCompleted || run.ID == "" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Generations < 1 || run.Generations > 40 {
		t.Fatalf("generations out of range: %d", run.Generations)
	}
	if run.Reached != (run.BestFitness >= 6) {
		t.Fatalf("reached flag inconsistent with fitness: %+v", run)
	}

	stored, ok, err := store.GetRun(context.Background(), run.ID)
	if err != nil || !ok {
		t.Fatalf("expected stored run, ok=%t err=%v", ok, err)
	}
	if stored.Status != model.RunCompleted || stored.Generations != run.Generations {
		t.Fatalf("stored run mismatch: %+v", stored)
	}

	history, ok, err := c.Generations(context.Background(), run.ID)
	if err != nil || !ok {
		t.Fatalf("expected history, ok=%t err=%v", ok, err)
	}
	if len(history) != run.Generations {
		t.Fatalf("expected %d generation records, got %d", run.Generations, len(history))
	}
	for i, rec := range history {
		if rec.Index != i || rec.Size != 60 {
			t.Fatalf("unexpected record %d: %+v", i, rec)
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.started) != 1 || len(sink.finished) != 1 || sink.generations[run.ID] != run.Generations {
		t.Fatalf("unexpected sink calls: started=%v finished=%d generations=%d", sink.started, len(sink.finished), sink.generations[run.ID])
	}
	if len(c.Active()) != 0 {
		t.Fatalf("expected no active runs, got %v", c.Active())
	}
}

func TestCoordinatorRejectsInvalidRequests(t *testing.T) {
	c, _ := newTestCoordinator(t)
	cases := []RunRequest{
		{},
		{Problem: "missing"},
		{Problem: "queens", MutationRate: Rate(1.5)},
		{Problem: "queens", PopulationSize: 1},
		{Problem: "queens", Workers: -1},
		{Problem: "queens", MaxGenerations: -1},
		{Problem: "queens", Size: 3},
		{Problem: "phrase", Phrase: "x"},
	}
	for _, req := range cases {
		if _, err := c.Run(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("request %+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}
}

func TestCoordinatorExplicitZeroRateKept(t *testing.T) {
	settings, err := RunRequest{Problem: "queens", MutationRate: Rate(0)}.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.MutationRate != 0 {
		t.Fatalf("expected explicit zero rate, got %v", settings.MutationRate)
	}
	defaults, err := RunRequest{Problem: "queens"}.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if defaults.MutationRate != 0.01 || defaults.PopulationSize != 1000 || defaults.MaxGenerations != DefaultMaxGenerations {
		t.Fatalf("unexpected defaults: %+v", defaults)
	}
}

func TestCoordinatorStartAndCancel(t *testing.T) {
	sink := newRecordingSink()
	c, store := newTestCoordinator(t, sink)

	run, err := c.Start(context.Background(), RunRequest{
		Problem:        "queens",
		PopulationSize: 100,
		Workers:        2,
		Seed:           11,
		Target:         1000,
		MaxGenerations: 10_000_000,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.Status != model.RunRunning {
		t.Fatalf("expected running record, got %s", run.Status)
	}
	if stored, ok, _ := store.GetRun(context.Background(), run.ID); !ok || stored.Status != model.RunRunning {
		t.Fatalf("expected running record to be stored immediately, ok=%t %+v", ok, stored)
	}

	select {
	case <-sink.first:
	case <-time.After(10 * time.Second):
		t.Fatal("run produced no generation")
	}
	if active := c.Active(); len(active) != 1 || active[0] != run.ID {
		t.Fatalf("unexpected active runs: %v", active)
	}
	if err := c.Cancel(run.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	final, ok, err := store.GetRun(context.Background(), run.ID)
	if err != nil || !ok {
		t.Fatalf("expected final record, ok=%t err=%v", ok, err)
	}
	if final.Status != model.RunCancelled || final.Reached || final.Generations < 1 {
		t.Fatalf("unexpected final record: %+v", final)
	}
	if final.FinishedAt.Before(final.StartedAt) {
		t.Fatalf("finished before start: %+v", final)
	}
	if err := c.Cancel(run.ID); !errors.Is(err, ErrRunNotActive) {
		t.Fatalf("expected ErrRunNotActive, got %v", err)
	}
}

func TestCoordinatorStopCancelsActiveRuns(t *testing.T) {
	sink := newRecordingSink()
	c, store := newTestCoordinator(t, sink)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := c.Start(context.Background(), RunRequest{
			Problem:        "queens",
			PopulationSize: 50,
			Seed:           int64(i + 1),
			Target:         1000,
			MaxGenerations: 10_000_000,
		})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		ids = append(ids, run.ID)
	}
	for range ids {
		select {
		case <-sink.first:
		case <-time.After(10 * time.Second):
			t.Fatal("run produced no generation")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	for _, id := range ids {
		run, _, _ := store.GetRun(context.Background(), id)
		if run.Status != model.RunCancelled {
			t.Fatalf("run %s: expected cancelled, got %s", id, run.Status)
		}
	}
	if _, err := c.Start(context.Background(), RunRequest{Problem: "queens"}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted after stop, got %v", err)
	}
}

func TestCoordinatorSameSeedSameResult(t *testing.T) {
	c, _ := newTestCoordinator(t)
	req := RunRequest{Problem: "queens", Size: 6, PopulationSize: 40, Seed: 21, MaxGenerations: 30}

	a, err := c.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	b, err := c.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct run ids")
	}
	if a.Best != b.Best || a.Generations != b.Generations || a.BestFitness != b.BestFitness {
		t.Fatalf("same seed diverged: %+v vs %+v", a, b)
	}
}

func TestCoordinatorRequiresStore(t *testing.T) {
	c := NewCoordinator(Config{})
	if err := c.Init(context.Background()); err == nil {
		t.Fatal("expected error without store")
	}
}
