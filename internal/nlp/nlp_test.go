package nlp_test

import (
	"slices"
	"testing"

	"github.com/PennyNeko/Soph/internal/nlp"
)

func TestNameMatcher(t *testing.T) {
	t.Parallel()

	m := nlp.NewNameMatcher()
	names := []string{"Penelope", "Maximilian", "Jerka"}

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"penelope", "Penelope", true},
		{"PENELOPE", "Penelope", true},
		{"Penelopy", "Penelope", true},
		{"maximillian", "Maximilian", true},
		{"tomato", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, score, ok := m.Match(tt.input, names)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Match(%q) = %q, %.2f, %v; want %q, %v", tt.input, got, score, ok, tt.want, tt.ok)
			}
		})
	}

	if _, _, ok := m.Match("penelope", nil); ok {
		t.Error("Match against no names should fail")
	}
}

func TestCheckVerb(t *testing.T) {
	t.Parallel()

	h := nlp.NewHeuristic(nil)

	tests := []struct {
		name     string
		doc      string
		subjects []string
		pred     string
		want     string
		ok       bool
	}{
		{
			name:     "first person",
			doc:      "Honestly I like cheese a lot.",
			subjects: []string{"I"},
			pred:     "like",
			want:     "I like cheese a lot.",
			ok:       true,
		},
		{
			name:     "inflected verb with name",
			doc:      "We know that Penny likes cheese, obviously.",
			subjects: []string{"Penny"},
			pred:     "like",
			want:     "Penny likes cheese",
			ok:       true,
		},
		{
			name:     "adverb between subject and verb",
			doc:      "Penny really hates mornings.",
			subjects: []string{"Penny"},
			pred:     "hate",
			want:     "Penny really hates mornings.",
			ok:       true,
		},
		{
			name:     "mention as subject",
			doc:      "<@!42> plays chess every day",
			subjects: []string{"42"},
			pred:     "play chess",
			want:     "<@!42> plays chess every day",
			ok:       true,
		},
		{
			name:     "object must follow",
			doc:      "I like tea.",
			subjects: []string{"I"},
			pred:     "like cheese",
			ok:       false,
		},
		{
			name:     "I not allowed",
			doc:      "I like cheese.",
			subjects: []string{"Penny"},
			pred:     "like",
			ok:       false,
		},
		{
			name:     "subject too far from verb",
			doc:      "Penny said that yesterday the dog likes cheese.",
			subjects: []string{"Penny"},
			pred:     "like",
			ok:       false,
		},
		{
			name:     "irregular",
			doc:      "Yesterday I went home early.",
			subjects: []string{"I"},
			pred:     "go",
			want:     "I went home early.",
			ok:       true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := h.CheckVerb(tt.doc, tt.subjects, tt.pred)
			if ok != tt.ok || got != tt.want {
				t.Errorf("CheckVerb(%q, %v, %q) = %q, %v; want %q, %v", tt.doc, tt.subjects, tt.pred, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	h := nlp.NewHeuristic(nil)
	docs := []string{
		"I saw a cat today.",
		"Cats are the best animals.",
		"my cat is so cute",
		"Dogs are great, cats sleep a lot.",
		"honestly the cat is overrated",
	}

	if got := h.Filter(docs, "cat", 5); !slices.Equal(got, []int{1, 2, 4}) {
		t.Errorf("Filter = %v, want [1 2 4]", got)
	}
	if got := h.Filter(docs, "cat", 2); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("Filter limit 2 = %v, want [1 2]", got)
	}
	if got := h.Filter(docs, "?", 5); got != nil {
		t.Errorf("Filter without subject = %v", got)
	}
}

func TestIsSame(t *testing.T) {
	t.Parallel()

	h := nlp.NewHeuristic(nil)
	tests := []struct {
		doc, query string
		want       bool
	}{
		{"Pizza!", "pizza", true},
		{"pizza pineapple", "pineapple on pizza", true},
		{"pineapple on pizza?", "Pineapple on pizza", true},
		{"pizza with pineapple is a crime", "pineapple pizza", false},
		{"", "anything", true},
	}
	for _, tt := range tests {
		if got := h.IsSame(tt.doc, tt.query); got != tt.want {
			t.Errorf("IsSame(%q, %q) = %v, want %v", tt.doc, tt.query, got, tt.want)
		}
	}
}

func TestNegated(t *testing.T) {
	t.Parallel()

	h := nlp.NewHeuristic(nil)
	tests := []struct {
		doc  string
		pred string
		want bool
	}{
		{"Penny likes cheese.", "like cheese", false},
		{"Penny doesn't like cheese.", "like cheese", true},
		{"Penny does not like cheese.", "like cheese", true},
		{"Penny never liked cheese", "like cheese", true},
		{"Penny likes cheese, not olives", "like cheese", false},
	}
	for _, tt := range tests {
		extract, ok := h.CheckVerb(tt.doc, []string{"Penny"}, tt.pred)
		if !ok {
			t.Errorf("CheckVerb(%q) found no clause", tt.doc)
			continue
		}
		if got := nlp.Negated(extract, tt.pred); got != tt.want {
			t.Errorf("Negated(%q, %q) = %v, want %v", extract, tt.pred, got, tt.want)
		}
	}
	if nlp.Negated("", "like") || nlp.Negated("Penny doesn't", "") {
		t.Error("empty input should not count as negated")
	}
}
