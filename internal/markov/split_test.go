package markov_test

import (
	"slices"
	"testing"

	"github.com/PennyNeko/Soph/internal/markov"
)

func TestSplitIntoSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "title abbreviation",
			in:   "Dr. Smith left. He returned soon.",
			want: []string{"Dr. Smith left.", "He returned soon."},
		},
		{
			name: "question and exclamation",
			in:   "Where are you? I am here!",
			want: []string{"Where are you?", "I am here!"},
		},
		{
			name: "several titles",
			in:   "Mr. Jones met Mrs. Smith. They talked.",
			want: []string{"Mr. Jones met Mrs. Smith.", "They talked."},
		},
		{
			name: "lowercase continuation",
			in:   "I went to the U.S. yesterday. It was fun.",
			want: []string{"I went to the U.S. yesterday.", "It was fun."},
		},
		{
			name: "dotted acronym before capital",
			in:   "The U.S. Army marched. Then it rested.",
			want: []string{"The U.S. Army marched.", "Then it rested."},
		},
		{
			name: "agency acronyms",
			in:   "The F.B.I. Director spoke. The C.I.A. Chief did not. Done.",
			want: []string{"The F.B.I. Director spoke.", "The C.I.A. Chief did not.", "Done."},
		},
		{
			name: "other capitals still end",
			in:   "I met the CEO. He waved.",
			want: []string{"I met the CEO.", "He waved."},
		},
		{
			name: "lowercase abbreviation",
			in:   "Apples, pears etc. And more.",
			want: []string{"Apples, pears etc. And more."},
		},
		{
			name: "closing quote stays with sentence",
			in:   `He said "Stop." Then he left.`,
			want: []string{`He said "Stop."`, "Then he left."},
		},
		{
			name: "dash continues",
			in:   "Wait. - no, go on.",
			want: []string{"Wait. - no, go on."},
		},
		{
			name: "no boundary",
			in:   "hello world",
			want: []string{"hello world"},
		},
		{
			name: "trailing whitespace",
			in:   "One. Two. ",
			want: []string{"One.", "Two."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := markov.SplitIntoSentences(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("SplitIntoSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitIntoSentencesEmpty(t *testing.T) {
	t.Parallel()

	got := markov.SplitIntoSentences("")
	if len(got) != 1 || got[0] != "" {
		t.Errorf("SplitIntoSentences(\"\") = %q, want [\"\"]", got)
	}
}
