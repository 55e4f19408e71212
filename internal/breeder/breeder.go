package breeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Generator returns a fresh random chromosome. Every call must yield the same
// length.
type Generator[G any] func() []G

// Scorer maps a chromosome to its fitness. It must be pure for pooled scoring
// to match sequential scoring.
type Scorer[G any, F constraints.Ordered] func([]G) F

// Result describes a finished search.
type Result[G any, F constraints.Ordered] struct {
	Best        Individual[G, F]
	Generations int
	Reached     bool
}

// Breeder runs a generational search over a fixed-size population. It is not
// safe for concurrent use.
type Breeder[G any, F constraints.Ordered] struct {
	generator Generator[G]
	scorer    Scorer[G, F]
	cfg       Config

	rng    *rand.Rand
	gate   mutationGate
	points indexPicker

	chromosomeLen int
	population    Population[G, F]
	eval          evaluator[G, F]
	generation    int
}

func New[G any, F constraints.Ordered](generator Generator[G], scorer Scorer[G, F], cfg Config) (*Breeder[G, F], error) {
	if generator == nil {
		return nil, ErrMissingGenerator
	}
	if scorer == nil {
		return nil, ErrMissingScorer
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	probe := generator()
	if len(probe) < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrChromosomeTooShort, len(probe))
	}

	b := &Breeder[G, F]{
		generator:     generator,
		scorer:        scorer,
		cfg:           cfg,
		rng:           rng,
		gate:          newMutationGate(rng, cfg.MutationRate),
		points:        newIndexPicker(rng, len(probe)),
		chromosomeLen: len(probe),
		population:    make(Population[G, F], cfg.PopulationSize),
	}

	if err := b.seed(probe); err != nil {
		return nil, err
	}
	b.population.rank(b.rng)
	return b, nil
}

// seed fills the initial population, reusing the length probe as the first
// chromosome.
func (b *Breeder[G, F]) seed(probe []G) error {
	b.population[0].Chromosome = probe
	for i := 1; i < len(b.population); i++ {
		b.population[i].Chromosome = b.generator()
	}
	return sequentialEvaluator[G, F]{population: b.population, scorer: b.scorer}.scoreAll()
}

// Population returns a deep copy of the current population.
func (b *Breeder[G, F]) Population() Population[G, F] {
	return b.population.Clone()
}

// Best returns a copy of the current best individual.
func (b *Breeder[G, F]) Best() Individual[G, F] {
	return b.population.Best().Clone()
}

// Generation is the number of completed Evolve calls.
func (b *Breeder[G, F]) Generation() int {
	return b.generation
}

func (b *Breeder[G, F]) ChromosomeLen() int {
	return b.chromosomeLen
}

// Evolve runs one generation: cross the top quarter pairwise, replace the
// bottom tenth, re-score everyone, re-rank. The best individual is not
// protected; its fitness can drop.
func (b *Breeder[G, F]) Evolve() error {
	n := len(b.population)

	for i := 0; i < n/4 && i+1 < n; i += 2 {
		b.cross(b.population[i].Chromosome, b.population[i+1].Chromosome)
	}

	// Replacements are scored by the full pass below, like everyone else.
	for i := n - n/10; i < n; i++ {
		b.population[i] = Individual[G, F]{Chromosome: b.generator()}
	}

	if err := b.evaluator().scoreAll(); err != nil {
		return err
	}
	b.population.rank(b.rng)
	b.generation++
	return nil
}

// cross swaps the prefixes [0, point) of both parents in place, then maybe
// overwrites one gene of parent1 with the first gene of a throwaway chromosome.
func (b *Breeder[G, F]) cross(parent1, parent2 []G) {
	point := b.points.Pick()
	for i := 0; i < point; i++ {
		parent1[i], parent2[i] = parent2[i], parent1[i]
	}

	if b.gate.Fire() {
		at := b.points.Pick()
		parent1[at] = b.generator()[0]
	}
}

// evaluator returns the scoring strategy, building the worker pool on first use.
func (b *Breeder[G, F]) evaluator() evaluator[G, F] {
	if b.eval != nil {
		return b.eval
	}
	if b.cfg.Workers <= 0 {
		b.eval = sequentialEvaluator[G, F]{population: b.population, scorer: b.scorer}
	} else {
		b.eval = newWorkerPool(b.population, b.scorer, b.cfg.Workers, b.cfg.ShutdownTimeout)
	}
	return b.eval
}

// stopWorkers tears the evaluator down. The next search builds a fresh one.
func (b *Breeder[G, F]) stopWorkers() error {
	if b.eval == nil {
		return nil
	}
	err := b.eval.close()
	b.eval = nil
	return err
}

// Search evolves until the best fitness reaches target or maxGenerations
// generations have run. Observers see every generation before the target
// check. The context is only consulted between generations.
func (b *Breeder[G, F]) Search(ctx context.Context, maxGenerations int, target F, observers ...Observer[G, F]) (Result[G, F], error) {
	res, err := b.search(ctx, maxGenerations, target, observers)
	if stopErr := b.stopWorkers(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	res.Best = b.population.Best().Clone()
	return res, err
}

func (b *Breeder[G, F]) search(ctx context.Context, maxGenerations int, target F, observers []Observer[G, F]) (Result[G, F], error) {
	var res Result[G, F]
	for gen := 0; gen < maxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := b.Evolve(); err != nil {
			return res, fmt.Errorf("generation %d: %w", gen, err)
		}
		res.Generations++

		if len(observers) > 0 {
			snapshot := Generation[G, F]{
				Index: gen,
				Best:  b.population.Best().Clone(),
				Worst: b.population.Worst().Fitness,
				Size:  len(b.population),
			}
			for _, o := range observers {
				o.ObserveGeneration(snapshot)
			}
		}

		if b.population.Best().Fitness >= target {
			res.Reached = true
			return res, nil
		}
	}
	return res, nil
}

// Pick runs Search and returns a copy of the best chromosome.
func (b *Breeder[G, F]) Pick(ctx context.Context, maxGenerations int, target F, observers ...Observer[G, F]) ([]G, error) {
	res, err := b.Search(ctx, maxGenerations, target, observers...)
	return res.Best.Chromosome, err
}
