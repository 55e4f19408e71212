package breeder

import "math/rand"

// mutationGate is a Bernoulli trial with a fixed success probability.
type mutationGate struct {
	rng  *rand.Rand
	rate float64
}

func newMutationGate(rng *rand.Rand, rate float64) mutationGate {
	return mutationGate{rng: rng, rate: rate}
}

// Fire reports whether a mutation happens. A zero rate never fires.
func (g mutationGate) Fire() bool {
	return g.rng.Float64() < g.rate
}

// indexPicker draws gene indices uniformly from [0, bound).
//
// A single picker serves both the crossover point and the mutation point, so
// the last gene is never a mutation target and never alone in a swapped prefix.
type indexPicker struct {
	rng   *rand.Rand
	bound int
}

// newIndexPicker expects a chromosome of at least two genes.
func newIndexPicker(rng *rand.Rand, chromosomeLen int) indexPicker {
	return indexPicker{rng: rng, bound: chromosomeLen - 1}
}

func (p indexPicker) Pick() int {
	return p.rng.Intn(p.bound)
}
