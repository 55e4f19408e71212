package problem

import (
	"errors"
	"math"

	"breeder/internal/breeder"
)

const DefaultPhrase = "hello, breeder"

const (
	printableLow  = ' '
	printableHigh = '~'
)

// PhraseScorer counts positions that already hold the target byte.
func PhraseScorer(target string) breeder.Scorer[byte, int] {
	return func(c []byte) int {
		score := 0
		for i := 0; i < len(c) && i < len(target); i++ {
			if c[i] == target[i] {
				score++
			}
		}
		return score
	}
}

func PhraseGenerator(length int, rng interface{ Intn(int) int }) breeder.Generator[byte] {
	return func() []byte {
		c := make([]byte, length)
		for i := range c {
			c[i] = byte(printableLow + rng.Intn(printableHigh-printableLow+1))
		}
		return c
	}
}

var phraseSpec = Spec{
	Name:        "phrase",
	Description: "evolve printable ASCII towards a target phrase; score = matching positions",
	New:         newPhraseSearch,
}

func newPhraseSearch(params Params) (Search, error) {
	phrase := params.Phrase
	if phrase == "" {
		phrase = DefaultPhrase
	}
	for i := 0; i < len(phrase); i++ {
		if phrase[i] < printableLow || phrase[i] > printableHigh {
			return nil, errors.New("phrase must be printable ASCII")
		}
	}
	target := len(phrase)
	if params.Target > 0 {
		target = int(math.Ceil(params.Target))
	}

	cfg, rng := seeded(params.Config)
	b, err := breeder.New(PhraseGenerator(len(phrase), rng), PhraseScorer(phrase), cfg)
	if err != nil {
		return nil, err
	}
	return &search[byte, int]{
		b:      b,
		target: target,
		render: func(c []byte) string { return string(c) },
	}, nil
}
