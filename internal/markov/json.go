package markov

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// serialized mirrors markovify's Text.to_dict layout. Chain holds either a
// JSON string encoding the item list or the item list itself.
type serialized struct {
	StateSize       int             `json:"state_size"`
	Chain           json.RawMessage `json:"chain"`
	ParsedSentences [][]string      `json:"parsed_sentences,omitempty"`
	InputText       *string         `json:"input_text,omitempty"`
}

// FromJSON decodes a model serialized by markovify (or by [Text.MarshalJSON]).
// When parsed_sentences is absent, the legacy input_text field is split
// again to rebuild the training text.
func FromJSON(blob []byte, opts ...Option) (*Text, error) {
	cfg := newTextConfig(opts)

	var s serialized
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("markov: decode model: %w", err)
	}
	if len(s.Chain) == 0 {
		return nil, errors.New("markov: decode model: missing chain")
	}

	raw := []byte(s.Chain)
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("markov: decode chain string: %w", err)
		}
		raw = []byte(inner)
	}

	var items [][2]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("markov: decode chain: %w", err)
	}

	stateSize := s.StateSize
	c := make(counts, len(items))
	for i, item := range items {
		var state []string
		if err := json.Unmarshal(item[0], &state); err != nil {
			return nil, fmt.Errorf("markov: decode chain item %d state: %w", i, err)
		}
		if stateSize == 0 {
			stateSize = len(state)
		}
		if len(state) != stateSize {
			return nil, fmt.Errorf("markov: chain item %d has %d tokens, want %d", i, len(state), stateSize)
		}
		var next map[string]float64
		if err := json.Unmarshal(item[1], &next); err != nil {
			return nil, fmt.Errorf("markov: decode chain item %d followers: %w", i, err)
		}
		key := strings.Join(state, keySep)
		c[key] = next
	}
	if stateSize < 1 {
		return nil, ErrInvalidStateSize
	}

	sentences := s.ParsedSentences
	if sentences == nil && s.InputText != nil {
		sentences = parseSentences(*s.InputText, cfg.filter)
	}
	return newText(stateSize, freeze(c, stateSize), sentences, cfg.filter), nil
}

// MarshalJSON encodes the model in markovify's layout with the chain stored
// as a JSON string.
func (t *Text) MarshalJSON() ([]byte, error) {
	items := t.chain.items()
	list := make([][2]any, len(items))
	for i, it := range items {
		list[i] = [2]any{it.state, it.next}
	}
	chain, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("markov: encode chain: %w", err)
	}
	chainStr, err := json.Marshal(string(chain))
	if err != nil {
		return nil, fmt.Errorf("markov: encode chain: %w", err)
	}

	sentences := t.sentences
	if sentences == nil {
		sentences = [][]string{}
	}
	return json.Marshal(serialized{
		StateSize:       t.stateSize,
		Chain:           chainStr,
		ParsedSentences: sentences,
	})
}
