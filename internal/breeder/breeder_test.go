package breeder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNewBuildsSortedPopulation(t *testing.T) {
	gen, calls := taggedGenerator(6)
	b, err := New(gen, tagScore, Config{PopulationSize: 40, MutationRate: 0.1, Seed: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if *calls != 40 {
		t.Fatalf("expected 40 generator calls, got %d", *calls)
	}
	pop := b.Population()
	if len(pop) != 40 {
		t.Fatalf("expected population 40, got %d", len(pop))
	}
	if !pop.Sorted() {
		t.Fatal("initial population not sorted")
	}
	for i, ind := range pop {
		if ind.Fitness != tagScore(ind.Chromosome) {
			t.Fatalf("individual %d has stale fitness", i)
		}
	}
	if b.ChromosomeLen() != 6 {
		t.Fatalf("expected chromosome length 6, got %d", b.ChromosomeLen())
	}
}

func TestEvolveKeepsSizeAndOrder(t *testing.T) {
	for _, workers := range []int{0, 3} {
		gen, _ := taggedGenerator(8)
		b, err := New(gen, tagScore, Config{PopulationSize: 50, MutationRate: 0.2, Workers: workers, Seed: 7})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		for g := 0; g < 30; g++ {
			if err := b.Evolve(); err != nil {
				t.Fatalf("workers=%d evolve %d: %v", workers, g, err)
			}
			pop := b.Population()
			if len(pop) != 50 {
				t.Fatalf("workers=%d generation %d: size %d", workers, g, len(pop))
			}
			if !pop.Sorted() {
				t.Fatalf("workers=%d generation %d: population not sorted", workers, g)
			}
			for i, ind := range pop {
				if ind.Fitness != tagScore(ind.Chromosome) {
					t.Fatalf("workers=%d generation %d: individual %d has stale fitness", workers, g, i)
				}
			}
		}
		if b.Generation() != 30 {
			t.Fatalf("expected generation counter 30, got %d", b.Generation())
		}
		if err := b.stopWorkers(); err != nil {
			t.Fatalf("stop workers: %v", err)
		}
	}
}

func TestEvolveWithZeroMutationReplacesWorstTenth(t *testing.T) {
	gen, calls := taggedGenerator(5)
	b, err := New(gen, tagScore, Config{PopulationSize: 10, MutationRate: 0, Seed: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	before := b.Population()
	known := make(map[int]bool)
	for _, ind := range before {
		known[ind.Chromosome[0].id] = true
	}

	if err := b.Evolve(); err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if *calls != 11 {
		t.Fatalf("expected exactly one generator call during evolve, got %d", *calls-10)
	}
	fresh := *calls
	if known[fresh] {
		t.Fatalf("generator id %d already present before evolve", fresh)
	}

	foundFresh := false
	for _, ind := range b.Population() {
		for pos, g := range ind.Chromosome {
			if g.pos != pos {
				t.Fatalf("gene moved positions: %+v at %d", g, pos)
			}
			if g.id != fresh && !known[g.id] {
				t.Fatalf("gene from unknown source %d, mutation must not fire at rate 0", g.id)
			}
		}
		if ind.Chromosome[0].id == fresh && ind.Chromosome[len(ind.Chromosome)-1].id == fresh {
			foundFresh = true
			if ind.Fitness != tagScore(ind.Chromosome) {
				t.Fatalf("replacement has stale fitness %d", ind.Fitness)
			}
		}
	}
	if !foundFresh {
		t.Fatal("replacement individual not found in population")
	}
}

func TestCrossSwapsPrefixes(t *testing.T) {
	b, err := New(func() []int { return make([]int, 6) }, countOnes, Config{PopulationSize: 4, MutationRate: 0, Seed: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for trial := 0; trial < 20; trial++ {
		p1 := []int{1, 1, 1, 1, 1, 1}
		p2 := []int{2, 2, 2, 2, 2, 2}
		b.cross(p1, p2)
		point := 0
		for point < len(p1) && p1[point] == 2 {
			point++
		}
		if point > len(p1)-2 {
			t.Fatalf("crossover point %d must stay below %d", point, len(p1)-1)
		}
		for i := range p1 {
			want1, want2 := 1, 2
			if i < point {
				want1, want2 = 2, 1
			}
			if p1[i] != want1 || p2[i] != want2 {
				t.Fatalf("unexpected crossover at %d: p1=%v p2=%v", i, p1, p2)
			}
		}
	}
}

func TestCrossMutatesFirstParentOnly(t *testing.T) {
	fresh := []int{9, 9, 9, 9}
	b, err := New(func() []int { return append([]int(nil), fresh...) }, countOnes, Config{PopulationSize: 4, MutationRate: 1, Seed: 5})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 50; i++ {
		p1 := []int{1, 1, 1, 1}
		p2 := []int{1, 1, 1, 1}
		b.cross(p1, p2)
		nines := 0
		for _, g := range p1 {
			if g == 9 {
				nines++
			}
		}
		if nines != 1 || p1[3] == 9 {
			t.Fatalf("expected exactly one mutated gene below the last index, got %v", p1)
		}
		for _, g := range p2 {
			if g != 1 {
				t.Fatalf("second parent mutated: %v", p2)
			}
		}
	}
}

func TestBestFitnessCanDecrease(t *testing.T) {
	decreased := false
	for seed := int64(1); seed <= 30 && !decreased; seed++ {
		first := true
		gen := func() []int {
			if first {
				first = false
				return []int{1, 1, 1, 1}
			}
			return []int{0, 0, 0, 0}
		}
		b, err := New(gen, countOnes, Config{PopulationSize: 10, MutationRate: 0, Seed: seed})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if b.Best().Fitness != 4 {
			t.Fatalf("seed %d: expected initial best 4, got %d", seed, b.Best().Fitness)
		}
		if err := b.Evolve(); err != nil {
			t.Fatalf("evolve: %v", err)
		}
		if b.Best().Fitness < 4 {
			decreased = true
		}
	}
	if !decreased {
		t.Fatal("expected crossover of the top pair to lower the best fitness for some seed")
	}
}

func TestSearchStopsWhenTargetReached(t *testing.T) {
	gen, _ := taggedGenerator(4)
	b, err := New(gen, func([]tag) int { return 5 }, Config{PopulationSize: 12, Seed: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	observed := 0
	res, err := b.Search(context.Background(), 100, 5, ObserverFunc[tag, int](func(Generation[tag, int]) { observed++ }))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !res.Reached || res.Generations != 1 || observed != 1 {
		t.Fatalf("expected stop after first generation, got %+v observed=%d", res, observed)
	}
}

func TestSearchRespectsGenerationBudget(t *testing.T) {
	for _, workers := range []int{0, 2} {
		gen, _ := taggedGenerator(4)
		b, err := New(gen, tagScore, Config{PopulationSize: 20, MutationRate: 0.5, Workers: workers, Seed: 1})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		var indices []int
		res, err := b.Search(context.Background(), 7, 1<<30, ObserverFunc[tag, int](func(g Generation[tag, int]) {
			indices = append(indices, g.Index)
			if g.Size != 20 {
				t.Fatalf("unexpected size %d", g.Size)
			}
			if g.Worst > g.Best.Fitness {
				t.Fatalf("worst %d above best %d", g.Worst, g.Best.Fitness)
			}
		}))
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if res.Reached || res.Generations != 7 || len(indices) != 7 {
			t.Fatalf("workers=%d: unexpected result %+v indices=%v", workers, res, indices)
		}
		for i, idx := range indices {
			if idx != i {
				t.Fatalf("observer indices out of order: %v", indices)
			}
		}
		if b.eval != nil {
			t.Fatal("evaluator should be torn down after search")
		}
	}
}

func TestSearchHonoursCancelledContext(t *testing.T) {
	gen, _ := taggedGenerator(4)
	b, err := New(gen, tagScore, Config{PopulationSize: 10, Workers: 2, Seed: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := b.Search(ctx, 10, 1<<30)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Generations != 0 || len(res.Best.Chromosome) != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSearchAbortsOnScorerPanic(t *testing.T) {
	for _, workers := range []int{0, 4} {
		var armed atomic.Bool
		gen, _ := taggedGenerator(4)
		scorer := func(c []tag) int {
			if armed.Load() {
				panic("scorer failure")
			}
			return tagScore(c)
		}
		b, err := New(gen, scorer, Config{PopulationSize: 16, Workers: workers, Seed: 1})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		armed.Store(true)
		_, err = b.Search(context.Background(), 5, 1<<30)
		var scoreErr *ScoreError
		if !errors.As(err, &scoreErr) {
			t.Fatalf("workers=%d: expected ScoreError, got %v", workers, err)
		}
		if b.eval != nil {
			t.Fatalf("workers=%d: evaluator not torn down after failure", workers)
		}
	}
}

func TestPickVerboseOutput(t *testing.T) {
	b, err := New(func() []int { return []int{1, 0, 1} }, countOnes, Config{PopulationSize: 4, Seed: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var buf bytes.Buffer
	best, err := b.Pick(context.Background(), 3, 2, WriterObserver[int, int](&buf))
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if countOnes(best) != 2 {
		t.Fatalf("unexpected best %v", best)
	}
	if got := buf.String(); got != "Generation 0, best=[1 0 1] score=2\n" {
		t.Fatalf("unexpected verbose output %q", got)
	}
}

func TestSearchCanBeRepeated(t *testing.T) {
	gen, _ := taggedGenerator(5)
	b, err := New(gen, tagScore, Config{PopulationSize: 30, MutationRate: 0.1, Workers: 3, Seed: 4})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var lines strings.Builder
	for i := 0; i < 2; i++ {
		if _, err := b.Pick(context.Background(), 4, 1<<30, WriterObserver[tag, int](&lines)); err != nil {
			t.Fatalf("pick %d: %v", i, err)
		}
	}
	if got := strings.Count(lines.String(), "\n"); got != 8 {
		t.Fatalf("expected 8 progress lines, got %d", got)
	}
	if b.Generation() != 8 {
		t.Fatalf("expected 8 generations, got %d", b.Generation())
	}
}
