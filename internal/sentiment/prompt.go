package sentiment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Prompt is the system prompt for chat-model analyzers. The reply format is
// read back by [ParseReply].
const Prompt = `You rate the sentiment of chat messages.
For each numbered message give a number from -1 (very negative) to 1 (very positive), 0 being neutral.
Reply with a JSON object of the form {"scores": [..]} holding exactly one number per message, in order, and nothing else.`

// FormatBatch numbers texts one per line for a chat-model request.
func FormatBatch(texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(strings.ReplaceAll(t, "\n", " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseReply extracts want scores from a model reply, tolerating text or code
// fences around the JSON object.
func ParseReply(content string, want int) ([]Score, error) {
	start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in reply %q", content)
	}
	var reply struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if len(reply.Scores) != want {
		return nil, fmt.Errorf("got %d scores for %d texts", len(reply.Scores), want)
	}
	out := make([]Score, len(reply.Scores))
	for i, v := range reply.Scores {
		out[i] = NewScore(v)
	}
	return out, nil
}
