package responder

import (
	"context"
	"regexp"
	"strings"
)

// MatchFunc reports where the payload of a request starts in text, or -1
// when the route does not apply.
type MatchFunc func(text string) int

// HandlerFunc answers a matched request. An empty reply lets the next
// matching route try.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

// Route pairs a matcher with its handler.
type Route struct {
	Match  MatchFunc
	Help   string
	Handle HandlerFunc
}

// Request is a message being answered by one route.
type Request struct {
	Message

	// Prefix is the matched command text and Suffix the trimmed rest.
	Prefix string
	Suffix string
}

// Always matches every text with an empty prefix.
func Always(help string, h HandlerFunc) Route {
	return Route{
		Match:  func(string) int { return 0 },
		Help:   "<always: " + help + ">",
		Handle: h,
	}
}

// Prefix matches texts starting with p, ignoring case.
func Prefix(p string, h HandlerFunc) Route {
	return Route{
		Match:  prefixMatcher(p),
		Help:   p + " <text>",
		Handle: h,
	}
}

// Split is Prefix for commands whose payload starts with a user name.
func Split(p string, h HandlerFunc) Route {
	return Route{
		Match:  prefixMatcher(p),
		Help:   p + " <user> <text>",
		Handle: h,
	}
}

// NameBetween matches "<prefix> <name> <suffix> ..." and places the payload
// at the start of the name.
func NameBetween(prefix, suffix string, h HandlerFunc) Route {
	pat := regexp.MustCompile(`(?i)^\s*` + regexp.QuoteMeta(prefix) + ` (.*) ` + regexp.QuoteMeta(suffix) + ` `)
	return Route{
		Match: func(text string) int {
			if m := pat.FindStringSubmatchIndex(text); m != nil {
				return m[2]
			}
			return -1
		},
		Help:   prefix + " <name> " + suffix + " <text>",
		Handle: h,
	}
}

func prefixMatcher(p string) MatchFunc {
	return func(text string) int {
		if len(text) >= len(p) && strings.EqualFold(text[:len(p)], p) {
			return len(p)
		}
		return -1
	}
}

// dispatch runs the first route whose matcher applies and whose handler
// replies.
func dispatch(ctx context.Context, routes []Route, msg Message, payload string) (string, error) {
	for _, r := range routes {
		off := r.Match(payload)
		if off < 0 {
			continue
		}
		req := &Request{
			Message: msg,
			Prefix:  payload[:off],
			Suffix:  strings.TrimSpace(payload[off:]),
		}
		reply, err := r.Handle(ctx, req)
		if err != nil {
			return "", err
		}
		if reply != "" {
			return reply, nil
		}
	}
	return "", nil
}
