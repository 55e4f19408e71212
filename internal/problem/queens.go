package problem

import (
	"fmt"
	"math"

	"breeder/internal/breeder"
)

const DefaultQueens = 8

// QueensMaxScore is the number of queen pairs on an n×n board; a placement
// with no attacking pair scores exactly this.
func QueensMaxScore(n int) int {
	return n * (n - 1) / 2
}

// QueensConflicts counts attacking pairs. rows[c] is the row of the queen in
// column c, so columns never clash; pairs clash on a shared row or diagonal.
// A pair can clash in at most one way, so the count never exceeds the number
// of pairs.
func QueensConflicts(rows []int) int {
	conflicts := 0
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			dr := rows[j] - rows[i]
			if dr == 0 || dr == j-i || dr == i-j {
				conflicts++
			}
		}
	}
	return conflicts
}

// ScoreQueens is pure: it depends only on the placement.
func ScoreQueens(rows []int) int {
	return QueensMaxScore(len(rows)) - QueensConflicts(rows)
}

// QueensGenerator places one queen per column on a random row in [1, n].
func QueensGenerator(n int, rng interface{ Intn(int) int }) breeder.Generator[int] {
	return func() []int {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = rng.Intn(n) + 1
		}
		return rows
	}
}

var queensSpec = Spec{
	Name:        "queens",
	Description: "place N non-attacking queens; score = N(N-1)/2 - attacking pairs",
	New:         newQueensSearch,
}

func newQueensSearch(params Params) (Search, error) {
	n := params.Size
	if n == 0 {
		n = DefaultQueens
	}
	if n < 4 {
		return nil, fmt.Errorf("queens board size must be >= 4 (got %d)", n)
	}
	target := QueensMaxScore(n)
	if params.Target > 0 {
		target = int(math.Ceil(params.Target))
	}

	cfg, rng := seeded(params.Config)
	b, err := breeder.New(QueensGenerator(n, rng), ScoreQueens, cfg)
	if err != nil {
		return nil, err
	}
	return &search[int, int]{
		b:      b,
		target: target,
		render: func(rows []int) string { return fmt.Sprint(rows) },
	}, nil
}
