package platform

import (
	"errors"
	"fmt"

	"breeder/internal/breeder"
	"breeder/internal/model"
	"breeder/internal/problem"
)

const DefaultMaxGenerations = 1000

var ErrInvalidRequest = errors.New("invalid run request")

// RunRequest describes one search. Zero values fall back to defaults;
// MutationRate is a pointer so an explicit 0 survives decoding.
type RunRequest struct {
	Problem        string   `json:"problem"`
	PopulationSize int      `json:"population_size,omitempty"`
	MutationRate   *float64 `json:"mutation_rate,omitempty"`
	Workers        int      `json:"workers,omitempty"`
	Seed           int64    `json:"seed,omitempty"`
	MaxGenerations int      `json:"max_generations,omitempty"`
	Target         float64  `json:"target,omitempty"`
	Size           int      `json:"size,omitempty"`
	Phrase         string   `json:"phrase,omitempty"`
}

// Rate is a helper for building requests with an explicit mutation rate.
func Rate(r float64) *float64 {
	return &r
}

// Settings applies defaults and validates the request.
func (r RunRequest) Settings() (model.RunSettings, error) {
	if r.Problem == "" {
		return model.RunSettings{}, fmt.Errorf("%w: problem is required", ErrInvalidRequest)
	}
	if _, err := problem.Lookup(r.Problem); err != nil {
		return model.RunSettings{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if r.MaxGenerations < 0 {
		return model.RunSettings{}, fmt.Errorf("%w: max generations must be >= 0 (got %d)", ErrInvalidRequest, r.MaxGenerations)
	}

	settings := model.RunSettings{
		Problem:        r.Problem,
		PopulationSize: r.PopulationSize,
		MutationRate:   breeder.DefaultMutationRate,
		Workers:        r.Workers,
		Seed:           r.Seed,
		MaxGenerations: r.MaxGenerations,
		Target:         r.Target,
		Size:           r.Size,
		Phrase:         r.Phrase,
	}
	if settings.PopulationSize == 0 {
		settings.PopulationSize = breeder.DefaultPopulationSize
	}
	if r.MutationRate != nil {
		settings.MutationRate = *r.MutationRate
	}
	if settings.MaxGenerations == 0 {
		settings.MaxGenerations = DefaultMaxGenerations
	}
	if err := breederConfig(settings).Validate(); err != nil {
		return model.RunSettings{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return settings, nil
}

func breederConfig(s model.RunSettings) breeder.Config {
	return breeder.Config{
		PopulationSize: s.PopulationSize,
		MutationRate:   s.MutationRate,
		Workers:        s.Workers,
		Seed:           s.Seed,
	}
}

func problemParams(s model.RunSettings) problem.Params {
	return problem.Params{
		Config: breederConfig(s),
		Size:   s.Size,
		Phrase: s.Phrase,
		Target: s.Target,
	}
}
