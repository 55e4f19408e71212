package problem

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"

	"breeder/internal/breeder"
)

type number interface {
	constraints.Integer | constraints.Float
}

// search adapts a typed breeder to the Search interface.
type search[G any, F number] struct {
	b      *breeder.Breeder[G, F]
	target F
	render func([]G) string
}

func (s *search[G, F]) Run(ctx context.Context, maxGenerations int, observe func(GenerationEvent)) (Outcome, error) {
	var observers []breeder.Observer[G, F]
	if observe != nil {
		observers = append(observers, breeder.ObserverFunc[G, F](func(g breeder.Generation[G, F]) {
			observe(GenerationEvent{
				Index:        g.Index,
				Best:         s.render(g.Best.Chromosome),
				BestFitness:  float64(g.Best.Fitness),
				WorstFitness: float64(g.Worst),
				Size:         g.Size,
			})
		}))
	}

	res, err := s.b.Search(ctx, maxGenerations, s.target, observers...)
	return Outcome{
		Best:           s.render(res.Best.Chromosome),
		BestFitness:    float64(res.Best.Fitness),
		Target:         float64(s.target),
		Generations:    res.Generations,
		Reached:        res.Reached,
		ChromosomeSize: len(res.Best.Chromosome),
	}, err
}

// seeded pins cfg.Seed and returns a generator rng derived from it, so a
// given seed reproduces the whole search.
func seeded(cfg breeder.Config) (breeder.Config, *rand.Rand) {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return cfg, rand.New(rand.NewSource(cfg.Seed + 1))
}
