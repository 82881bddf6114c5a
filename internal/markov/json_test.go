package markov_test

import (
	"encoding/json"
	"testing"

	"github.com/PennyNeko/Soph/internal/markov"
)

// chainAsString is the layout markovify's Text.to_json writes.
const chainAsString = `{
  "state_size": 1,
  "chain": "[[[\"___BEGIN__\"], {\"hi\": 2}], [[\"hi\"], {\"there.\": 2}], [[\"there.\"], {\"___END__\": 2}]]",
  "parsed_sentences": [["hi", "there."], ["hi", "there."]]
}`

const chainAsList = `{
  "state_size": 1,
  "chain": [[["___BEGIN__"], {"hi": 2}], [["hi"], {"there.": 2}], [["there."], {"___END__": 2}]],
  "parsed_sentences": [["hi", "there."], ["hi", "there."]]
}`

const legacyInputText = `{
  "state_size": 1,
  "chain": [[["___BEGIN__"], {"hi": 2}], [["hi"], {"there.": 2}], [["there."], {"___END__": 2}]],
  "input_text": "hi there. hi there."
}`

func TestFromJSONLayouts(t *testing.T) {
	t.Parallel()

	for name, blob := range map[string]string{
		"chain string": chainAsString,
		"chain list":   chainAsList,
		"input text":   legacyInputText,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := markov.FromJSON([]byte(blob))
			if err != nil {
				t.Fatalf("FromJSON: %v", err)
			}
			if m.StateSize() != 1 {
				t.Errorf("StateSize = %d, want 1", m.StateSize())
			}
			if got := m.Chain().Next("hi")["there."]; got != 2 {
				t.Errorf("count(hi -> there.) = %v, want 2", got)
			}
			s, ok := m.MakeSentence(markov.WithoutNoveltyTest())
			if !ok || s != "hi there." {
				t.Errorf("MakeSentence = (%q, %v), want (\"hi there.\", true)", s, ok)
			}
		})
	}
}

func TestFromJSONLegacyNoveltyUsesInputText(t *testing.T) {
	t.Parallel()

	m, err := markov.FromJSON([]byte(legacyInputText))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if s, ok := m.MakeSentence(); ok {
		t.Errorf("MakeSentence = %q, want rejection of verbatim copy", s)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	m := mustText(t, catsAndDogs)
	blob, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["chain"].(string); !ok {
		t.Errorf("chain encoded as %T, want string", raw["chain"])
	}

	back, err := markov.FromJSON(blob)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !back.Equal(m) {
		t.Error("decoded model differs from the original")
	}
}

func TestFromJSONErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not json":        `{`,
		"missing chain":   `{"state_size": 2}`,
		"bad chain":       `{"state_size": 1, "chain": "nope"}`,
		"state size skew": `{"state_size": 2, "chain": [[["a"], {"b": 1}]]}`,
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := markov.FromJSON([]byte(blob)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
