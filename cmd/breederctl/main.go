package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"breeder/internal/httpapi"
	"breeder/internal/logging"
	"breeder/internal/metrics"
	"breeder/internal/model"
	"breeder/internal/notify"
	"breeder/internal/platform"
	"breeder/internal/problem"
	"breeder/internal/stats"
	"breeder/internal/storage"
	"breeder/pkg/breeding"
)

// defaultWorkers is the pooled evaluator size used when -workers is not
// given. Override at build time with -ldflags "-X main.defaultWorkers=N".
var defaultWorkers = "0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "bench":
		return runBench(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "problems":
		return runProblems(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind      *string
	dsn       *string
	logLevel  *string
	logFormat *string
}

func addStoreFlags(fs *flag.FlagSet, logLevel string) storeFlags {
	return storeFlags{
		kind:      fs.String("store", env("BREEDER_STORE", storage.DefaultStoreKind), "store backend: memory|sqlite|postgres"),
		dsn:       fs.String("dsn", env("BREEDER_DSN", ""), "sqlite path or postgres connection string"),
		logLevel:  fs.String("log-level", env("LOG_LEVEL", logLevel), "log level: debug|info|warn|error"),
		logFormat: fs.String("log-format", "text", "log format: text|json"),
	}
}

func (f storeFlags) open(ctx context.Context, sinks ...platform.Sink) (*breeding.Client, *slog.Logger, error) {
	logger, err := logging.New(logging.Options{Format: *f.logFormat, Level: *f.logLevel})
	if err != nil {
		return nil, nil, err
	}
	client, err := breeding.New(breeding.Options{
		StoreKind: *f.kind,
		DSN:       *f.dsn,
		Logger:    logger,
		Sinks:     sinks,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, logger, nil
}

type runFlags struct {
	config  *string
	problem *string
	pop     *int
	rate    *float64
	workers *int
	seed    *int64
	gens    *int
	target  *float64
	size    *int
	phrase  *string
}

func addRunFlags(fs *flag.FlagSet) runFlags {
	workers, err := strconv.Atoi(defaultWorkers)
	if err != nil || workers < 0 {
		workers = 0
	}
	return runFlags{
		config:  fs.String("config", "", "optional run config JSON path"),
		problem: fs.String("problem", "queens", "problem name (see breederctl problems)"),
		pop:     fs.Int("pop", 0, "population size (0 uses the default of 1000)"),
		rate:    fs.Float64("rate", 0.01, "mutation rate in [0,1]"),
		workers: fs.Int("workers", workers, "pooled evaluator workers (0 scores sequentially)"),
		seed:    fs.Int64("seed", 0, "rng seed (0 picks a time-based seed)"),
		gens:    fs.Int("gens", platform.DefaultMaxGenerations, "maximum generations"),
		target:  fs.Float64("target", 0, "target score (0 uses the problem maximum)"),
		size:    fs.Int("size", 0, "queens board size (0 uses 8)"),
		phrase:  fs.String("phrase", "", "phrase target (empty uses the default phrase)"),
	}
}

func (f runFlags) request(fs *flag.FlagSet) (platform.RunRequest, error) {
	setFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		setFlags[fl.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*f.config)
	if err != nil {
		return platform.RunRequest{}, err
	}
	if *f.config == "" {
		req = platform.RunRequest{
			Problem:        *f.problem,
			PopulationSize: *f.pop,
			MutationRate:   platform.Rate(*f.rate),
			Workers:        *f.workers,
			Seed:           *f.seed,
			MaxGenerations: *f.gens,
			Target:         *f.target,
			Size:           *f.size,
			Phrase:         *f.phrase,
		}
		return req, nil
	}
	if err := overrideFromFlags(&req, setFlags, map[string]any{
		"problem": *f.problem,
		"pop":     *f.pop,
		"rate":    *f.rate,
		"workers": *f.workers,
		"seed":    *f.seed,
		"gens":    *f.gens,
		"target":  *f.target,
		"size":    *f.size,
		"phrase":  *f.phrase,
	}); err != nil {
		return platform.RunRequest{}, err
	}
	if req.Problem == "" {
		req.Problem = *f.problem
	}
	if req.Workers == 0 && !setFlags["workers"] {
		req.Workers = *f.workers
	}
	return req, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	rf := addRunFlags(fs)
	sf := addStoreFlags(fs, "warn")
	verbose := fs.Bool("verbose", isatty.IsTerminal(os.Stdout.Fd()), "print one line per generation")
	jsonOut := fs.Bool("json", false, "emit the final run record as JSON")
	natsURL := fs.String("nats", env("NATS_URL", ""), "optional NATS url for run events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := rf.request(fs)
	if err != nil {
		return err
	}

	var sinks []platform.Sink
	if *verbose {
		sinks = append(sinks, progressSink{w: os.Stdout})
	}
	publisher, err := connectPublisher(*natsURL, nil)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer func() { _ = publisher.Close() }()
		sinks = append(sinks, publisher)
	}

	client, _, err := sf.open(ctx, sinks...)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	rec, err := client.Run(ctx, req)
	if err != nil && rec.ID == "" {
		return err
	}
	if *jsonOut {
		if encErr := writeJSON(os.Stdout, rec); encErr != nil {
			return encErr
		}
	} else {
		printRunSummary(os.Stdout, rec)
	}
	return err
}

func runBench(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	rf := addRunFlags(fs)
	sf := addStoreFlags(fs, "warn")
	repeats := fs.Int("repeats", 10, "number of runs, seeded seed, seed+1, ...")
	outDir := fs.String("out", "", "optional directory for the JSON report")
	jsonOut := fs.Bool("json", false, "emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *repeats <= 0 {
		return errors.New("repeats must be > 0")
	}
	req, err := rf.request(fs)
	if err != nil {
		return err
	}

	client, _, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	report, err := client.Benchmark(ctx, req, *repeats)
	if err != nil {
		return err
	}
	if *outDir != "" {
		path, err := stats.WriteReport(*outDir, req.Problem, report)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "report written to %s\n", path)
	}
	if *jsonOut {
		return writeJSON(os.Stdout, report)
	}
	fmt.Printf("problem=%s runs=%d solved=%d success_rate=%.2f elapsed=%s\n",
		req.Problem, report.TotalRuns, report.SuccessRuns, report.SuccessRate, report.Elapsed.Round(time.Millisecond))
	fmt.Printf("generations_to_target mean=%.2f std=%.2f min=%.0f max=%.0f\n",
		report.Generations.Mean, report.Generations.Std, report.Generations.Min, report.Generations.Max)
	fmt.Printf("final_best mean=%.4f std=%.4f min=%.4f max=%.4f\n",
		report.FinalBest.Mean, report.FinalBest.Std, report.FinalBest.Min, report.FinalBest.Max)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := addStoreFlags(fs, "warn")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, _, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, breeding.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, runs)
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s problem=%s status=%s generations=%s best_fitness=%g reached=%t started=%s\n",
			r.ID, r.Settings.Problem, r.Status, humanize.Comma(int64(r.Generations)), r.BestFitness, r.Reached, humanize.Time(r.StartedAt))
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	sf := addStoreFlags(fs, "warn")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "show only the last N generations (0 shows all)")
	jsonOut := fs.Bool("json", false, "emit generation records as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.History(ctx, breeding.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, history)
	}
	for _, g := range history {
		fmt.Printf("generation=%d best_fitness=%g worst_fitness=%g best=%s\n", g.Index, g.BestFitness, g.WorstFitness, g.Best)
	}
	return nil
}

func runProblems(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("problems", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit problems as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	problems := breeding.Problems()
	if *jsonOut {
		return writeJSON(os.Stdout, problems)
	}
	for _, p := range problems {
		fmt.Printf("%s\t%s\n", p.Name, p.Description)
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	sf := addStoreFlags(fs, "info")
	addr := fs.String("addr", env("BREEDER_ADDR", ":8080"), "listen address")
	natsURL := fs.String("nats", env("NATS_URL", ""), "optional NATS url for run events")
	rps := fs.Float64("runs-per-second", 5, "POST /v1/runs rate limit (<=0 disables)")
	burst := fs.Int("runs-burst", 10, "POST /v1/runs burst size")
	origins := fs.String("allowed-origins", env("ALLOWED_ORIGINS", ""), "comma-separated websocket origins (empty allows any)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	sinks := []platform.Sink{recorder}

	logger, err := logging.New(logging.Options{Format: *sf.logFormat, Level: *sf.logLevel})
	if err != nil {
		return err
	}
	publisher, err := connectPublisher(*natsURL, logger)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer func() { _ = publisher.Close() }()
		sinks = append(sinks, publisher)
	}

	client, logger, err := sf.open(ctx, sinks...)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	server := httpapi.New(httpapi.Options{
		Coordinator:    client.Coordinator(),
		Metrics:        recorder.Handler(),
		Logger:         logger,
		RunsPerSecond:  *rps,
		RunBurst:       *burst,
		AllowedOrigins: splitList(*origins),
	})
	return server.ListenAndServe(ctx, *addr)
}

// progressSink prints the classic per-generation line.
type progressSink struct {
	w io.Writer
}

func (progressSink) RunStarted(model.RunRecord) {}

func (p progressSink) Generation(_ model.RunRecord, ev problem.GenerationEvent) {
	fmt.Fprintf(p.w, "Generation %d, best=%s score=%g\n", ev.Index, ev.Best, ev.BestFitness)
}

func (progressSink) RunFinished(model.RunRecord) {}

func connectPublisher(url string, logger *slog.Logger) (*notify.Publisher, error) {
	if url == "" {
		return nil, nil
	}
	return notify.Connect(url, "breederctl", logger)
}

func printRunSummary(w io.Writer, r model.RunRecord) {
	elapsed := r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(w, "run_id=%s problem=%s status=%s\n", r.ID, r.Settings.Problem, r.Status)
	fmt.Fprintf(w, "best=%s best_fitness=%g target=%g reached=%t\n", r.Best, r.BestFitness, r.Target, r.Reached)
	fmt.Fprintf(w, "generations=%s evaluations=%s seed=%d elapsed=%s\n",
		humanize.Comma(int64(r.Generations)),
		humanize.Comma(int64(r.Generations)*int64(r.Settings.PopulationSize)),
		r.Settings.Seed, elapsed)
	if r.Error != "" {
		fmt.Fprintf(w, "error=%s\n", r.Error)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: breederctl <run|bench|runs|history|problems|serve> [flags]", msg)
}
