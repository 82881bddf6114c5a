package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/PennyNeko/Soph/internal/index"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	maxSentences       = 20
)

// ErrUnknownAuthor is returned when a tool names an author Soph has no data
// for.
var ErrUnknownAuthor = errors.New("mcp: unknown author")

// StatsInput is the input schema for the query_stats tool.
type StatsInput struct {
	Community string `json:"community" jsonschema:"the guild id whose messages are searched"`
	Term      string `json:"term" jsonschema:"the word or phrase to count"`
	Exact     bool   `json:"exact,omitempty" jsonschema:"match the term exactly instead of related words too"`
}

// StatsOutput is the output schema for the query_stats tool.
type StatsOutput struct {
	Authors []AuthorStat `json:"authors"`
}

// AuthorStat is one row of [StatsOutput].
type AuthorStat struct {
	AuthorID      string  `json:"author_id"`
	Name          string  `json:"name,omitempty"`
	Count         int     `json:"count"`
	PerThousand   float64 `json:"per_thousand"`
	TotalMessages int     `json:"total_messages"`
}

// SearchInput is the input schema for the search_messages tool.
type SearchInput struct {
	Community string `json:"community" jsonschema:"the guild id whose messages are searched"`
	Term      string `json:"term" jsonschema:"the word or phrase to find"`
	Author    string `json:"author,omitempty" jsonschema:"only messages by this author name or id"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Long      bool   `json:"long,omitempty" jsonschema:"prefer long distinct messages over recent ones"`
}

// SearchOutput is the output schema for the search_messages tool.
type SearchOutput struct {
	Messages []MessageOutput `json:"messages"`
	Count    int             `json:"count"`
}

// MessageOutput is one archived message.
type MessageOutput struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ImpersonateInput is the input schema for the impersonate tool.
type ImpersonateInput struct {
	Community string   `json:"community" jsonschema:"the guild id whose models are used"`
	Authors   []string `json:"authors" jsonschema:"author names or ids whose style is blended"`
	Count     int      `json:"count,omitempty" jsonschema:"number of sentences (default 1)"`
}

// ImpersonateOutput is the output schema for the impersonate tool.
type ImpersonateOutput struct {
	Sentences []string `json:"sentences"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query_stats",
		Description: "Count how often each member of a Discord server uses a term",
	}, s.handleStats)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_messages",
		Description: "Search the archived messages of a Discord server",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "impersonate",
		Description: "Generate sentences in the style of one or more server members",
	}, s.handleImpersonate)
}

func (s *Server) handleStats(ctx context.Context, _ *mcp.CallToolRequest, in StatsInput) (_ *mcp.CallToolResult, out StatsOutput, err error) {
	defer func(start time.Time) { s.record(ctx, "query_stats", start, err) }(time.Now())

	term := strings.TrimSpace(in.Term)
	if term == "" {
		return nil, StatsOutput{}, fmt.Errorf("mcp: term is required")
	}
	ix, err := s.backend.Index(ctx, in.Community)
	if err != nil {
		return nil, StatsOutput{}, err
	}

	out.Authors = []AuthorStat{}
	for _, st := range ix.QueryStats(ctx, term, !in.Exact) {
		total := ix.Counts(st.AuthorID)
		name, _ := s.names.Name(st.AuthorID)
		out.Authors = append(out.Authors, AuthorStat{
			AuthorID:      st.AuthorID,
			Name:          name,
			Count:         st.Count,
			PerThousand:   1000 * float64(st.Count) / float64(max(total, 1)),
			TotalMessages: total,
		})
	}
	return nil, out, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (_ *mcp.CallToolResult, out SearchOutput, err error) {
	defer func(start time.Time) { s.record(ctx, "search_messages", start, err) }(time.Now())

	term := strings.TrimSpace(in.Term)
	if term == "" {
		return nil, SearchOutput{}, fmt.Errorf("mcp: term is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	var authorID string
	if in.Author != "" {
		if authorID, err = s.resolveAuthor(in.Author); err != nil {
			return nil, SearchOutput{}, err
		}
	}

	ix, err := s.backend.Index(ctx, in.Community)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	var results []index.Result
	if in.Long {
		results = ix.QueryLong(ctx, term, index.LongOptions{Limit: limit, AuthorID: authorID, Expand: true})
	} else {
		results = ix.Query(ctx, term, index.QueryOptions{Limit: limit, AuthorID: authorID, Dedupe: true})
	}

	out.Messages = make([]MessageOutput, len(results))
	for i, r := range results {
		name, _ := s.names.Name(r.AuthorID)
		out.Messages[i] = MessageOutput{
			ID:        r.ID,
			AuthorID:  r.AuthorID,
			Author:    name,
			Text:      r.Text,
			Timestamp: r.Timestamp,
		}
	}
	out.Count = len(results)
	return nil, out, nil
}

func (s *Server) handleImpersonate(ctx context.Context, _ *mcp.CallToolRequest, in ImpersonateInput) (_ *mcp.CallToolResult, out ImpersonateOutput, err error) {
	defer func(start time.Time) { s.record(ctx, "impersonate", start, err) }(time.Now())

	if len(in.Authors) == 0 {
		return nil, ImpersonateOutput{}, fmt.Errorf("mcp: at least one author is required")
	}
	count := in.Count
	if count <= 0 {
		count = 1
	}
	count = min(count, maxSentences)

	c, err := s.backend.Corpus(ctx, in.Community)
	if err != nil {
		return nil, ImpersonateOutput{}, err
	}
	names := make([]string, 0, len(in.Authors))
	for _, a := range in.Authors {
		a = strings.TrimSpace(a)
		if _, ok := c.Model(a); ok {
			names = append(names, a)
			continue
		}
		id, err := s.resolveAuthor(a)
		if err != nil {
			return nil, ImpersonateOutput{}, err
		}
		name, ok := c.NameForID(id)
		if !ok {
			return nil, ImpersonateOutput{}, fmt.Errorf("%w: %q", ErrUnknownAuthor, a)
		}
		names = append(names, name)
	}

	out.Sentences = c.Impersonate(ctx, names, count)
	if out.Sentences == nil {
		out.Sentences = []string{}
	}
	return nil, out, nil
}

// resolveAuthor maps a display name or raw id to an author id.
func (s *Server) resolveAuthor(author string) (string, error) {
	if id, ok := s.names.ID(author); ok {
		return id, nil
	}
	if _, ok := s.names.Name(author); ok {
		return author, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAuthor, author)
}
