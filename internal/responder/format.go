package responder

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// mentionPattern also accepts a missing "<", which trimming upstream can
// leave behind.
var mentionPattern = regexp.MustCompile(`<?@[!&]*(\d+)>`)

// makeQuery trims text and drops one trailing question mark.
func makeQuery(text string) string {
	text = strings.TrimSpace(text)
	return strings.TrimSuffix(text, "?")
}

// stripMentions rewrites mentions as "@name".
func (e *Engine) stripMentions(ctx context.Context, guildID, text string) string {
	return mentionPattern.ReplaceAllStringFunc(text, func(m string) string {
		id := mentionPattern.FindStringSubmatch(m)[1]
		return "@" + e.resolveID(ctx, guildID, id, "?")
	})
}

// resolveID returns the display name of id, or fallback when nobody knows
// it.
func (e *Engine) resolveID(ctx context.Context, guildID, id, fallback string) string {
	if name, ok := e.authors.Name(id); ok {
		return name
	}
	if e.resolver != nil {
		if name, ok := e.resolver.ResolveName(ctx, guildID, id); ok {
			return name
		}
	}
	return fallback
}

// knownNames returns every name the author store maps, longest first so
// that "Max Power" wins over "Max".
func (e *Engine) knownNames() map[string]string {
	return e.authors.Snapshot()
}

func longestFirst(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if d := len(b) - len(a); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return names
}

// leadingName finds the known name text starts with, followed by a space or
// the end of text. It returns the name, its id and the trimmed remainder.
func (e *Engine) leadingName(text string) (name, id, rest string, ok bool) {
	known := e.knownNames()
	for _, n := range longestFirst(known) {
		if !strings.HasPrefix(text, n) {
			continue
		}
		after := text[len(n):]
		if after != "" && after[0] != ' ' {
			continue
		}
		return n, known[n], strings.TrimSpace(after), true
	}
	return "", "", "", false
}

// lookupUser resolves a name to an id, falling back to the closest known
// name when there is no exact entry.
func (e *Engine) lookupUser(name string) (string, bool) {
	if id, ok := e.authors.ID(name); ok {
		return id, true
	}
	known := e.knownNames()
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	slices.Sort(names)
	if match, _, ok := e.names.Match(name, names); ok {
		return known[match], true
	}
	return "", false
}

func shortEnough(text string, limit int) bool {
	return utf8.RuneCountInString(text) < limit
}
