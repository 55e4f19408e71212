package breeder

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// ScoreError reports a scorer panic while scoring one individual.
type ScoreError struct {
	Index int
	Value any
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("scorer panicked on individual %d: %v", e.Index, e.Value)
}

// evaluator assigns scorer results to every individual in place. It must not
// reorder the population and must not return before all fitness values are set.
type evaluator[G any, F constraints.Ordered] interface {
	scoreAll() error
	close() error
}

type sequentialEvaluator[G any, F constraints.Ordered] struct {
	population Population[G, F]
	scorer     Scorer[G, F]
}

func (e sequentialEvaluator[G, F]) scoreAll() error {
	return scoreRange(e.population, e.scorer, 0, len(e.population))
}

func (sequentialEvaluator[G, F]) close() error { return nil }

// scoreRange scores population[lower:upper] in index order and converts a
// scorer panic into a *ScoreError.
func scoreRange[G any, F constraints.Ordered](population Population[G, F], scorer Scorer[G, F], lower, upper int) (err error) {
	idx := lower
	defer func() {
		if r := recover(); r != nil {
			err = &ScoreError{Index: idx, Value: r}
		}
	}()
	for ; idx < upper; idx++ {
		population[idx].Fitness = scorer(population[idx].Chromosome)
	}
	return nil
}
