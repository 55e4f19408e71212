package breeding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"breeder/internal/model"
	"breeder/internal/platform"
	"breeder/internal/problem"
	"breeder/internal/stats"
	"breeder/internal/storage"
)

const (
	DefaultSQLitePath = "breeder.db"
	stopTimeout       = 10 * time.Second
)

type (
	RunRequest      = platform.RunRequest
	Sink            = platform.Sink
	BenchmarkReport = stats.BenchmarkReport
)

type Options struct {
	StoreKind string
	// DSN is the sqlite path or postgres connection string.
	DSN             string
	Logger          *slog.Logger
	Sinks           []Sink
	ShutdownTimeout time.Duration
}

// Client owns a store and the coordinator running searches against it.
type Client struct {
	store       storage.Store
	coordinator *platform.Coordinator
}

type RunsRequest struct {
	Limit int
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ProblemInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func New(opts Options) (*Client, error) {
	kind := opts.StoreKind
	if kind == "" {
		kind = storage.DefaultStoreKind
	}
	dsn := opts.DSN
	if dsn == "" && kind == "sqlite" {
		dsn = DefaultSQLitePath
	}
	store, err := storage.NewStore(kind, dsn)
	if err != nil {
		return nil, err
	}
	return &Client{
		store: store,
		coordinator: platform.NewCoordinator(platform.Config{
			Store:           store,
			Sinks:           opts.Sinks,
			Logger:          opts.Logger,
			ShutdownTimeout: opts.ShutdownTimeout,
		}),
	}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.coordinator.Init(ctx)
}

// Close stops active runs and releases the store.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return errors.Join(c.coordinator.Stop(ctx), storage.CloseIfSupported(c.store))
}

func (c *Client) Coordinator() *platform.Coordinator {
	return c.coordinator
}

func (c *Client) Run(ctx context.Context, req RunRequest) (model.RunRecord, error) {
	return c.coordinator.Run(ctx, req)
}

func (c *Client) Benchmark(ctx context.Context, req RunRequest, repeats int) (BenchmarkReport, error) {
	return stats.Benchmark(ctx, c.coordinator, req, repeats)
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	return c.coordinator.ListRuns(ctx, req.Limit)
}

func (c *Client) History(ctx context.Context, req HistoryRequest) ([]model.GenerationRecord, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}

	runID := req.RunID
	if req.Latest {
		runs, err := c.coordinator.ListRuns(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, errors.New("no runs available")
		}
		runID = runs[0].ID
	}
	if runID == "" {
		return nil, errors.New("history requires run id or latest")
	}

	history, ok, err := c.coordinator.Generations(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("generation history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[len(history)-req.Limit:]
	}
	return history, nil
}

func Problems() []ProblemInfo {
	names := problem.Names()
	out := make([]ProblemInfo, 0, len(names))
	for _, name := range names {
		spec, err := problem.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, ProblemInfo{Name: spec.Name, Description: spec.Description})
	}
	return out
}
