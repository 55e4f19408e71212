package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breeder/internal/model"
	"breeder/internal/problem"
)

// Recorder exports run and generation metrics. It owns its registry so
// several recorders can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	runs              *prometheus.CounterVec
	activeRuns        prometheus.Gauge
	generations       *prometheus.CounterVec
	evaluations       *prometheus.CounterVec
	bestFitness       *prometheus.GaugeVec
	generationSeconds *prometheus.HistogramVec

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breeder_runs_total",
			Help: "Finished runs by problem and status.",
		}, []string{"problem", "status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breeder_active_runs",
			Help: "Runs currently evolving.",
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breeder_generations_total",
			Help: "Generations evolved.",
		}, []string{"problem"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breeder_fitness_evaluations_total",
			Help: "Fitness evaluations performed by generation re-scoring.",
		}, []string{"problem"}),
		bestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "breeder_best_fitness",
			Help: "Best fitness of the most recent generation.",
		}, []string{"problem"}),
		generationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breeder_generation_seconds",
			Help:    "Wall time per generation.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"problem"}),
		last: make(map[string]time.Time),
		now:  time.Now,
	}
	r.registry.MustRegister(r.runs, r.activeRuns, r.generations, r.evaluations, r.bestFitness, r.generationSeconds)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RunStarted(run model.RunRecord) {
	r.activeRuns.Inc()
	r.mu.Lock()
	r.last[run.ID] = r.now()
	r.mu.Unlock()
}

func (r *Recorder) Generation(run model.RunRecord, ev problem.GenerationEvent) {
	name := run.Settings.Problem
	r.generations.WithLabelValues(name).Inc()
	r.evaluations.WithLabelValues(name).Add(float64(ev.Size))
	r.bestFitness.WithLabelValues(name).Set(ev.BestFitness)

	now := r.now()
	r.mu.Lock()
	prev, ok := r.last[run.ID]
	r.last[run.ID] = now
	r.mu.Unlock()
	if ok {
		r.generationSeconds.WithLabelValues(name).Observe(now.Sub(prev).Seconds())
	}
}

func (r *Recorder) RunFinished(run model.RunRecord) {
	r.activeRuns.Dec()
	r.runs.WithLabelValues(run.Settings.Problem, string(run.Status)).Inc()
	r.mu.Lock()
	delete(r.last, run.ID)
	r.mu.Unlock()
}
