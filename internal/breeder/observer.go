package breeder

import (
	"fmt"
	"io"

	"golang.org/x/exp/constraints"
)

// Generation is the snapshot handed to observers after each generation.
type Generation[G any, F constraints.Ordered] struct {
	// Index counts from zero within one search.
	Index int
	// Best is a copy of the top individual; observers may keep it.
	Best  Individual[G, F]
	Worst F
	Size  int
}

// Observer is notified after every generation. It has no effect on the search.
type Observer[G any, F constraints.Ordered] interface {
	ObserveGeneration(Generation[G, F])
}

type ObserverFunc[G any, F constraints.Ordered] func(Generation[G, F])

func (f ObserverFunc[G, F]) ObserveGeneration(g Generation[G, F]) { f(g) }

// WriterObserver prints one progress line per generation to w.
func WriterObserver[G any, F constraints.Ordered](w io.Writer) Observer[G, F] {
	return ObserverFunc[G, F](func(g Generation[G, F]) {
		fmt.Fprintf(w, "Generation %d, best=%v score=%v\n", g.Index, g.Best.Chromosome, g.Best.Fitness)
	})
}
