package problem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"breeder/internal/breeder"
)

var (
	ErrProblemExists   = errors.New("problem already registered")
	ErrProblemNotFound = errors.New("problem not found")
)

// Params configures one search of a registered problem.
type Params struct {
	Config breeder.Config
	// Size is the board size for queens. Zero uses the problem default.
	Size int
	// Phrase is the target for phrase. Empty uses the problem default.
	Phrase string
	// Target overrides the default target score when > 0.
	Target float64
}

// GenerationEvent is a problem-agnostic view of one finished generation.
type GenerationEvent struct {
	Index        int     `json:"index"`
	Best         string  `json:"best"`
	BestFitness  float64 `json:"best_fitness"`
	WorstFitness float64 `json:"worst_fitness"`
	Size         int     `json:"size"`
}

// Outcome summarises a finished search.
type Outcome struct {
	Best           string  `json:"best"`
	BestFitness    float64 `json:"best_fitness"`
	Target         float64 `json:"target"`
	Generations    int     `json:"generations"`
	Reached        bool    `json:"reached"`
	ChromosomeSize int     `json:"chromosome_size"`
}

// Search is a ready-to-run search. Run may be called once.
type Search interface {
	Run(ctx context.Context, maxGenerations int, observe func(GenerationEvent)) (Outcome, error)
}

type Spec struct {
	Name        string
	Description string
	New         func(Params) (Search, error)
}

var problemRegistry = struct {
	mu sync.RWMutex
	m  map[string]Spec
}{
	m: make(map[string]Spec),
}

func Register(spec Spec) error {
	if spec.Name == "" {
		return errors.New("problem name is required")
	}
	if spec.New == nil {
		return errors.New("problem constructor is required")
	}

	problemRegistry.mu.Lock()
	defer problemRegistry.mu.Unlock()

	if _, exists := problemRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrProblemExists, spec.Name)
	}
	problemRegistry.m[spec.Name] = spec
	return nil
}

func Lookup(name string) (Spec, error) {
	problemRegistry.mu.RLock()
	defer problemRegistry.mu.RUnlock()

	spec, ok := problemRegistry.m[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrProblemNotFound, name)
	}
	return spec, nil
}

// Names lists registered problems in lexical order.
func Names() []string {
	problemRegistry.mu.RLock()
	defer problemRegistry.mu.RUnlock()

	names := make([]string, 0, len(problemRegistry.m))
	for name := range problemRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSearch looks name up and builds a search from params.
func NewSearch(name string, params Params) (Search, error) {
	spec, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return spec.New(params)
}

func init() {
	for _, spec := range []Spec{queensSpec, phraseSpec} {
		if err := Register(spec); err != nil {
			panic(err)
		}
	}
}
