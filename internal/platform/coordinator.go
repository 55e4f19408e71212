package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"breeder/internal/model"
	"breeder/internal/problem"
	"breeder/internal/storage"
)

var (
	ErrNotStarted   = errors.New("coordinator is not started")
	ErrRunNotActive = errors.New("run not active")
)

// Sink receives the lifecycle of every run. Calls for one run arrive in
// order from a single goroutine; calls for different runs may interleave.
type Sink interface {
	RunStarted(run model.RunRecord)
	Generation(run model.RunRecord, ev problem.GenerationEvent)
	RunFinished(run model.RunRecord)
}

type Config struct {
	Store  storage.Store
	Sinks  []Sink
	Logger *slog.Logger
	// ShutdownTimeout bounds each run's worker pool join.
	ShutdownTimeout time.Duration
}

type Coordinator struct {
	store           storage.Store
	logger          *slog.Logger
	shutdownTimeout time.Duration

	mu      sync.RWMutex
	sinks   []Sink
	started bool
	active  map[string]context.CancelFunc
	wg      sync.WaitGroup

	newID func() string
	now   func() time.Time
}

func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:           cfg.Store,
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
		sinks:           append([]Sink(nil), cfg.Sinks...),
		active:          make(map[string]context.CancelFunc),
		newID:           uuid.NewString,
		now:             time.Now,
	}
}

func (c *Coordinator) Init(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("store is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.started = true
	return nil
}

// AddSink attaches s to runs started after the call.
func (c *Coordinator) AddSink(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

// Run executes req to completion on the calling goroutine. The returned
// record is final; err is the search error, if any.
func (c *Coordinator) Run(ctx context.Context, req RunRequest) (model.RunRecord, error) {
	p, err := c.prepare(req)
	if err != nil {
		return model.RunRecord{}, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := c.register(p.record.ID, cancel); err != nil {
		return model.RunRecord{}, err
	}
	defer c.unregister(p.record.ID)
	return c.execute(runCtx, p)
}

// Start validates req and runs it in the background. It returns the record
// in running state; the run lives until it finishes, is cancelled or Stop
// is called, independent of ctx.
func (c *Coordinator) Start(ctx context.Context, req RunRequest) (model.RunRecord, error) {
	p, err := c.prepare(req)
	if err != nil {
		return model.RunRecord{}, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := c.register(p.record.ID, cancel); err != nil {
		cancel()
		return model.RunRecord{}, err
	}
	if err := c.store.SaveRun(ctx, p.record); err != nil {
		c.unregister(p.record.ID)
		cancel()
		return model.RunRecord{}, fmt.Errorf("save run %s: %w", p.record.ID, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.unregister(p.record.ID)
		_, _ = c.execute(runCtx, p)
	}()
	return p.record, nil
}

func (c *Coordinator) Cancel(runID string) error {
	c.mu.RLock()
	cancel, ok := c.active[runID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	cancel()
	return nil
}

// Active lists the ids of runs in progress.
func (c *Coordinator) Active() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	return c.store.GetRun(ctx, id)
}

func (c *Coordinator) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	return c.store.ListRuns(ctx, limit)
}

func (c *Coordinator) Generations(ctx context.Context, id string) ([]model.GenerationRecord, bool, error) {
	return c.store.GetGenerations(ctx, id)
}

// Stop cancels every active run and waits for them to persist their final
// state, or for ctx to end.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.started = false
	for _, cancel := range c.active {
		cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for active runs: %w", ctx.Err())
	}
}

type preparedRun struct {
	record model.RunRecord
	search problem.Search
}

func (c *Coordinator) prepare(req RunRequest) (preparedRun, error) {
	settings, err := req.Settings()
	if err != nil {
		return preparedRun{}, err
	}
	if settings.Seed == 0 {
		settings.Seed = c.now().UnixNano()
	}

	params := problemParams(settings)
	params.Config.ShutdownTimeout = c.shutdownTimeout
	search, err := problem.NewSearch(settings.Problem, params)
	if err != nil {
		return preparedRun{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return preparedRun{
		record: model.RunRecord{
			VersionedRecord: storage.Versioned(),
			ID:              c.newID(),
			Settings:        settings,
			Status:          model.RunRunning,
			StartedAt:       c.now().UTC(),
		},
		search: search,
	}, nil
}

func (c *Coordinator) register(runID string, cancel context.CancelFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	if _, exists := c.active[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	c.active[runID] = cancel
	return nil
}

func (c *Coordinator) unregister(runID string) {
	c.mu.Lock()
	delete(c.active, runID)
	c.mu.Unlock()
}

func (c *Coordinator) snapshotSinks() []Sink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Sink(nil), c.sinks...)
}

func (c *Coordinator) execute(ctx context.Context, p preparedRun) (model.RunRecord, error) {
	run := p.record
	sinks := c.snapshotSinks()
	logger := c.logger.With("run_id", run.ID, "problem", run.Settings.Problem)
	persistCtx := context.WithoutCancel(ctx)

	if err := c.store.SaveRun(persistCtx, run); err != nil {
		return run, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	logger.Info("run started",
		"population_size", run.Settings.PopulationSize,
		"mutation_rate", run.Settings.MutationRate,
		"workers", run.Settings.Workers,
		"seed", run.Settings.Seed,
		"max_generations", run.Settings.MaxGenerations,
	)
	for _, s := range sinks {
		s.RunStarted(run)
	}

	var history []model.GenerationRecord
	out, runErr := p.search.Run(ctx, run.Settings.MaxGenerations, func(ev problem.GenerationEvent) {
		history = append(history, model.GenerationRecord{
			VersionedRecord: storage.Versioned(),
			Index:           ev.Index,
			Best:            ev.Best,
			BestFitness:     ev.BestFitness,
			WorstFitness:    ev.WorstFitness,
			Size:            ev.Size,
		})
		logger.Debug("generation", "index", ev.Index, "best_fitness", ev.BestFitness, "worst_fitness", ev.WorstFitness)
		for _, s := range sinks {
			s.Generation(run, ev)
		}
	})

	run.Best = out.Best
	run.BestFitness = out.BestFitness
	run.Target = out.Target
	run.Generations = out.Generations
	run.Reached = out.Reached
	run.FinishedAt = c.now().UTC()
	switch {
	case runErr == nil:
		run.Status = model.RunCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		run.Status = model.RunCancelled
		run.Error = runErr.Error()
	default:
		run.Status = model.RunFailed
		run.Error = runErr.Error()
	}

	var persistErr error
	if err := c.store.SaveGenerations(persistCtx, run.ID, history); err != nil {
		persistErr = fmt.Errorf("save generations %s: %w", run.ID, err)
	}
	if err := c.store.SaveRun(persistCtx, run); err != nil {
		persistErr = errors.Join(persistErr, fmt.Errorf("save run %s: %w", run.ID, err))
	}
	for _, s := range sinks {
		s.RunFinished(run)
	}

	attrs := []any{
		"status", run.Status,
		"generations", run.Generations,
		"best_fitness", run.BestFitness,
		"reached", run.Reached,
		"elapsed", run.FinishedAt.Sub(run.StartedAt),
	}
	switch run.Status {
	case model.RunFailed:
		logger.Error("run failed", append(attrs, "error", runErr)...)
	case model.RunCancelled:
		logger.Warn("run cancelled", attrs...)
	default:
		logger.Info("run finished", attrs...)
	}

	return run, errors.Join(runErr, persistErr)
}
