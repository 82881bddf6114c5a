package markov_test

import (
	"errors"
	"testing"

	"github.com/PennyNeko/Soph/internal/markov"
)

func TestCombineSingletonIsIdentity(t *testing.T) {
	t.Parallel()

	m := mustText(t, catsAndDogs)
	got, err := markov.Combine([]*markov.Text{m}, nil)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if got == m {
		t.Fatal("Combine returned its input instead of a copy")
	}
	if !got.Equal(m) {
		t.Fatal("Combine of one model is not content-equal to the model")
	}
}

func TestCombineAssociative(t *testing.T) {
	t.Parallel()

	a := mustText(t, "The cat sat on the mat. A bird flew by.")
	b := mustText(t, "The dog sat on the rug. A bird sang.")
	c := mustText(t, "The cat ran away. A dog barked.")

	ab, err := markov.Combine([]*markov.Text{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	left, err := markov.Combine([]*markov.Text{ab, c}, nil)
	if err != nil {
		t.Fatal(err)
	}

	bc, err := markov.Combine([]*markov.Text{b, c}, nil)
	if err != nil {
		t.Fatal(err)
	}
	right, err := markov.Combine([]*markov.Text{a, bc}, nil)
	if err != nil {
		t.Fatal(err)
	}

	flat, err := markov.Combine([]*markov.Text{a, b, c}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !left.Equal(right) {
		t.Error("combine((a,b),c) != combine(a,(b,c))")
	}
	if !left.Equal(flat) {
		t.Error("combine((a,b),c) != combine(a,b,c)")
	}
}

func TestCombineWeights(t *testing.T) {
	t.Parallel()

	m := mustText(t, catsAndDogs)
	got, err := markov.Combine([]*markov.Text{m, m}, []float64{1, 2})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}

	start := got.Chain().Next(markov.Begin, markov.Begin)
	if start["The"] != 6 {
		t.Errorf("weighted count = %v, want 6", start["The"])
	}
	if orig := m.Chain().Next(markov.Begin, markov.Begin); orig["The"] != 2 {
		t.Errorf("input model mutated: count = %v, want 2", orig["The"])
	}
}

func TestCombineErrors(t *testing.T) {
	t.Parallel()

	two := mustText(t, catsAndDogs)
	three := mustText(t, catsAndDogs, markov.WithStateSize(3))

	tests := []struct {
		name    string
		models  []*markov.Text
		weights []float64
		want    error
	}{
		{"no models", nil, nil, markov.ErrNoModels},
		{"state size mismatch", []*markov.Text{two, three}, nil, markov.ErrStateSizeMismatch},
		{"weight count", []*markov.Text{two, two}, []float64{1}, markov.ErrInvalidWeights},
		{"negative weight", []*markov.Text{two}, []float64{-1}, markov.ErrInvalidWeights},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := markov.Combine(tt.models, tt.weights); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
