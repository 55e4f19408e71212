package breeder

// tag records which generator call produced a gene and at which position.
type tag struct {
	id  int
	pos int
}

func taggedGenerator(length int) (Generator[tag], *int) {
	calls := 0
	return func() []tag {
		calls++
		c := make([]tag, length)
		for i := range c {
			c[i] = tag{id: calls, pos: i}
		}
		return c
	}, &calls
}

func tagScore(c []tag) int {
	total := 0
	for _, g := range c {
		total += (g.id*31 + g.pos*7) % 17
	}
	return total
}

func countOnes(c []int) int {
	total := 0
	for _, g := range c {
		total += g
	}
	return total
}
