package breeder

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultPopulationSize = 1000
	DefaultMutationRate   = 0.01
)

var (
	ErrInvalidPopulationSize = errors.New("population size must be >= 2")
	ErrInvalidMutationRate   = errors.New("mutation rate must be in [0, 1]")
	ErrInvalidWorkerCount    = errors.New("worker count must be >= 0")
	ErrChromosomeTooShort    = errors.New("chromosome length must be >= 2")
	ErrMissingGenerator      = errors.New("generator is required")
	ErrMissingScorer         = errors.New("scorer is required")
	ErrShutdownTimeout       = errors.New("worker pool did not stop in time")
)

// Config holds the construction parameters of a Breeder.
type Config struct {
	// PopulationSize stays fixed for the lifetime of a search.
	PopulationSize int
	// MutationRate is the probability that a crossover also mutates one gene.
	MutationRate float64
	// Workers selects the pooled evaluator when > 0. Zero scores sequentially.
	Workers int
	// Seed for the search rng. Zero picks a time-based seed.
	Seed int64
	// ShutdownTimeout bounds the worker join at search end. Zero waits forever.
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PopulationSize: DefaultPopulationSize,
		MutationRate:   DefaultMutationRate,
	}
}

func (c Config) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPopulationSize, c.PopulationSize)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("%w (got %g)", ErrInvalidMutationRate, c.MutationRate)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidWorkerCount, c.Workers)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must be >= 0 (got %s)", c.ShutdownTimeout)
	}
	return nil
}
