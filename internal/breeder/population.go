package breeder

import (
	"math/rand"
	"sort"

	"golang.org/x/exp/constraints"
)

// Individual pairs a chromosome with its cached fitness.
type Individual[G any, F constraints.Ordered] struct {
	Chromosome []G
	Fitness    F
}

// Clone returns a copy that shares no genes with the receiver.
func (i Individual[G, F]) Clone() Individual[G, F] {
	return Individual[G, F]{
		Chromosome: append([]G(nil), i.Chromosome...),
		Fitness:    i.Fitness,
	}
}

// Population is kept sorted by descending fitness between generations.
type Population[G any, F constraints.Ordered] []Individual[G, F]

// Best is the first individual. The population must not be empty.
func (p Population[G, F]) Best() Individual[G, F] {
	return p[0]
}

// Worst is the last individual. The population must not be empty.
func (p Population[G, F]) Worst() Individual[G, F] {
	return p[len(p)-1]
}

// Sorted reports whether fitness is non-increasing along the population.
func (p Population[G, F]) Sorted() bool {
	for i := 1; i < len(p); i++ {
		if p[i].Fitness > p[i-1].Fitness {
			return false
		}
	}
	return true
}

// Clone deep-copies every individual.
func (p Population[G, F]) Clone() Population[G, F] {
	out := make(Population[G, F], len(p))
	for i := range p {
		out[i] = p[i].Clone()
	}
	return out
}

// rank shuffles in place and then stable-sorts by descending fitness. The
// shuffle randomises the order of equal-fitness individuals across generations.
func (p Population[G, F]) rank(rng *rand.Rand) {
	rng.Shuffle(len(p), func(i, j int) {
		p[i], p[j] = p[j], p[i]
	})
	sort.SliceStable(p, func(i, j int) bool {
		return p[i].Fitness > p[j].Fitness
	})
}
