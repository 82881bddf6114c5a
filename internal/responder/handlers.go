package responder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PennyNeko/Soph/internal/authors"
	"github.com/PennyNeko/Soph/internal/index"
	"github.com/PennyNeko/Soph/internal/nlp"
	"github.com/PennyNeko/Soph/internal/observe"
)

// Result limits.
const (
	maxStatsRows      = 10
	maxVerbLines      = 10
	maxSentimentLines = 10
	maxOpinions       = 5
	maxUserQuotes     = 5
	maxReplyChars     = 300
	conversationLines = 6

	sentimentThreshold = 0.4
)

var sayAboutPattern = regexp.MustCompile(`\s+say about\s`)

const notAllowed = "You aren't allowed to touch my buttons :shy:"

func (e *Engine) defaultRoutes() []Route {
	return []Route{
		Prefix("who talks about", e.queryStats),
		Prefix("who said", e.queryStats),
		Prefix("analyze", e.sentimentUser),
		Prefix("who mentions", e.mentions),
		Prefix("impersonate", e.impersonate),
		Prefix("converse", e.converse),
		Prefix("what did we say about", e.whatDidWeSay),
		Prefix("what do we think of", e.whatDoWeThink),
		Prefix("what do we think about", e.whatDoWeThink),
		NameBetween("what did", "say about", e.userSaidWhat),
		Split("what does", e.userVerb),
		Split("what did", e.userVerb),
		Split("does", e.userVerbBool),
		Split("did", e.userVerbBool),
		Prefix("who", e.whoVerb),
		Prefix("set alias", e.setAlias),
		Prefix("set", e.setOption),
		Prefix("help", e.help),
	}
}

// queryStats answers "who talks about X" with a per-author count table.
func (e *Engine) queryStats(ctx context.Context, req *Request) (string, error) {
	q := makeQuery(req.Suffix)
	if q == "" {
		return "", nil
	}
	ix, err := e.backend.Index(ctx, req.GuildID)
	if err != nil {
		return "", err
	}

	ctx, t := observe.Sub(ctx, "query-stats")
	defer t.Stop()

	stats := ix.QueryStats(ctx, q, true)
	if len(stats) == 0 {
		return "No one, apparently, " + req.AuthorName, nil
	}
	stats = stats[:min(len(stats), maxStatsRows)]

	lines := []string{fmt.Sprintf("%-18s: %-6s \t[%s]", "user", "count", "freq/1000 lines")}
	for _, s := range stats {
		name := e.resolveID(ctx, req.GuildID, s.AuthorID, "?")
		freq := 1000 * float64(s.Count) / float64(max(ix.Counts(s.AuthorID), 1))
		lines = append(lines, fmt.Sprintf("%-18s: %-6d \t[%.1f]", name, s.Count, freq))
	}
	return "```" + strings.Join(lines, "\n") + "```", nil
}

// mentions answers "who mentions X" by counting documents that mention X's
// id.
func (e *Engine) mentions(ctx context.Context, req *Request) (string, error) {
	q := req.Suffix
	known := e.knownNames()
	for _, name := range longestFirst(known) {
		q = strings.ReplaceAll(q, name, known[name])
	}
	q = makeQuery(q)
	if q == "" {
		return "", nil
	}
	ix, err := e.backend.Index(ctx, req.GuildID)
	if err != nil {
		return "", err
	}

	stats := ix.QueryStats(ctx, q, false)
	if len(stats) == 0 {
		return "No one, apparently, " + req.AuthorName, nil
	}
	stats = stats[:min(len(stats), maxStatsRows)]
	lines := make([]string, len(stats))
	for i, s := range stats {
		lines[i] = fmt.Sprintf("%s: %d", e.resolveID(ctx, req.GuildID, s.AuthorID, s.AuthorID), s.Count)
	}
	return strings.Join(lines, "\n"), nil
}

// sentimentUser answers "analyze <user> [on] <topic>" with the user's most
// strongly felt messages, or scores the text itself when no user is named.
func (e *Engine) sentimentUser(ctx context.Context, req *Request) (string, error) {
	if e.analyzer == nil {
		return "", nil
	}
	ctx, t := observe.Sub(ctx, "sentiment")
	defer t.Stop()

	suffix := req.Suffix
	type felt struct {
		text  string
		value float64
	}
	var strong []felt

	if _, id, rest, ok := e.leadingName(suffix); ok {
		suffix = strings.TrimPrefix(rest, "on ")
		ix, err := e.backend.Index(ctx, req.GuildID)
		if err != nil {
			return "", err
		}
		var results []index.Result
		if suffix != "" {
			results = ix.Query(ctx, suffix, index.QueryOptions{Limit: 50, AuthorID: id, Expand: true, Dedupe: true})
		} else {
			results = ix.Last(ctx, id, 50)
		}

		if len(results) > 0 {
			texts := make([]string, len(results))
			for i, r := range results {
				texts[i] = r.Text
			}
			scores, err := e.analyzer.Analyze(ctx, texts)
			if err != nil {
				return "", err
			}
			for i, s := range scores {
				if s.Value > sentimentThreshold || s.Value < -sentimentThreshold {
					strong = append(strong, felt{texts[i], s.Value})
				}
			}
		}
	}

	if len(strong) == 0 {
		if strings.TrimSpace(suffix) == "" {
			return "", nil
		}
		scores, err := e.analyzer.Analyze(ctx, []string{suffix})
		if err != nil {
			return "", err
		}
		if len(scores) == 0 {
			return "", nil
		}
		return fmt.Sprintf("Sounds %s (%.2f)", scores[0].Label, scores[0].Value), nil
	}

	lines := make([]string, 0, min(len(strong), maxSentimentLines))
	for _, f := range strong[:min(len(strong), maxSentimentLines)] {
		sign := ":slight_frown:"
		if f.value > 0 {
			sign = ":grinning:"
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%.2f)", f.text, sign, f.value))
	}
	return strings.Join(lines, "\n"), nil
}

// corpusNames maps requested names onto the corpus's own author names.
func (e *Engine) corpusNames(ctx context.Context, req *Request, raw []string) ([]string, string, error) {
	c, err := e.backend.Corpus(ctx, req.GuildID)
	if err != nil {
		return nil, "", err
	}
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := c.Model(n); ok {
			names = append(names, n)
			continue
		}
		id, ok := e.authors.ID(n)
		if !ok {
			return nil, n, nil
		}
		name, ok := c.NameForID(id)
		if !ok {
			return nil, n, nil
		}
		names = append(names, name)
	}
	return names, "", nil
}

// impersonate answers "impersonate A[, B...]" with one generated sentence.
func (e *Engine) impersonate(ctx context.Context, req *Request) (string, error) {
	shrug := e.settings.Load().Shrug
	names, missing, err := e.corpusNames(ctx, req, strings.Split(req.Suffix, ","))
	if err != nil {
		return "", err
	}
	if missing != "" {
		return fmt.Sprintf("Data for '%s' not found %s", missing, shrug), nil
	}
	if len(names) == 0 {
		return "", nil
	}

	c, err := e.backend.Corpus(ctx, req.GuildID)
	if err != nil {
		return "", err
	}
	lines := c.Impersonate(ctx, names, 1)
	if len(lines) == 0 {
		return "Hmm... I couldn't think of anything to say " + shrug, nil
	}
	reply := lines[0]
	if !req.Private {
		reply = e.stripMentions(ctx, req.GuildID, reply)
	}
	return reply, nil
}

var conversationSeparator = regexp.MustCompile(`\s*,\s*|\s+and\s+`)

// converse answers "converse A, B and C" with an invented conversation.
func (e *Engine) converse(ctx context.Context, req *Request) (string, error) {
	shrug := e.settings.Load().Shrug
	names, missing, err := e.corpusNames(ctx, req, conversationSeparator.Split(req.Suffix, -1))
	if err != nil {
		return "", err
	}
	if missing != "" {
		return fmt.Sprintf("Data for '%s' not found %s", missing, shrug), nil
	}
	if len(names) == 0 {
		return "", nil
	}

	c, err := e.backend.Corpus(ctx, req.GuildID)
	if err != nil {
		return "", err
	}
	lines := c.InventConversation(ctx, names, conversationLines)
	if len(lines) == 0 {
		return "Hmm... I couldn't think of anything to say " + shrug, nil
	}
	return e.stripMentions(ctx, req.GuildID, strings.Join(lines, "\n")), nil
}

// whatDidWeSay answers "what did we say about X" with the longest short
// messages on X.
func (e *Engine) whatDidWeSay(ctx context.Context, req *Request) (string, error) {
	q := makeQuery(req.Suffix)
	if q == "" {
		return "", nil
	}
	ix, err := e.backend.Index(ctx, req.GuildID)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, r := range ix.QueryLong(ctx, q, index.LongOptions{Limit: 10}) {
		if shortEnough(r.Text, maxReplyChars) {
			lines = append(lines, fmt.Sprintf("%s: %s", e.resolveID(ctx, req.GuildID, r.AuthorID, "?"), r.Text))
		}
	}
	if len(lines) == 0 {
		return "Apparently nothing, " + req.AuthorName, nil
	}
	return e.stripMentions(ctx, req.GuildID, strings.Join(lines, "\n")), nil
}

// whatDoWeThink answers "what do we think of X" with opinions on X.
func (e *Engine) whatDoWeThink(ctx context.Context, req *Request) (string, error) {
	q := makeQuery(req.Suffix)
	if q == "" {
		return "", nil
	}
	ix, err := e.backend.Index(ctx, req.GuildID)
	if err != nil {
		return "", err
	}

	results := ix.QueryLong(ctx, q, index.LongOptions{Limit: 300})
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}

	_, t := observe.Sub(ctx, "subject-filter")
	kept := e.extractor.Filter(texts, q, maxOpinions)
	t.Stop()

	lines := make([]string, len(kept))
	for i, k := range kept {
		r := results[k]
		lines[i] = fmt.Sprintf("%s: %s", e.resolveID(ctx, req.GuildID, r.AuthorID, "?"), e.stripMentions(ctx, req.GuildID, r.Text))
	}
	return "We think...\n" + strings.Join(lines, "\n"), nil
}

// userSaidWhat answers "what did <user> say about X" with the user's own
// messages on X.
func (e *Engine) userSaidWhat(ctx context.Context, req *Request) (string, error) {
	s := e.settings.Load()
	for _, m := range sayAboutPattern.FindAllStringIndex(req.Suffix, -1) {
		name := strings.TrimSpace(req.Suffix[:m[0]])
		id, ok := e.lookupUser(name)
		if !ok {
			if strings.EqualFold(name, s.Name) {
				return "I can't tell you that.", nil
			}
			return fmt.Sprintf("I don't know who %s is %s", name, s.Shrug), nil
		}
		payload := makeQuery(req.Suffix[m[1]:])
		if payload == "" {
			continue
		}
		ix, err := e.backend.Index(ctx, req.GuildID)
		if err != nil {
			return "", err
		}

		var quotes []string
		for _, r := range ix.QueryLong(ctx, payload, index.LongOptions{Limit: 20, AuthorID: id, Expand: true}) {
			if len(quotes) >= maxUserQuotes {
				break
			}
			if shortEnough(r.Text, maxReplyChars) && !e.extractor.IsSame(r.Text, payload) {
				quotes = append(quotes, r.Text)
			}
		}
		if len(quotes) == 0 {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "*%s on %s*:\n", name, strings.ReplaceAll(payload, "*", ""))
		for i, q := range quotes {
			fmt.Fprintf(&b, "%d) %s\n", i+1, e.stripMentions(ctx, req.GuildID, q))
		}
		return b.String(), nil
	}
	return "Nothing, apparently, " + req.AuthorName, nil
}

// userVerb answers "what does X <verb>" with the messages in which X does it.
func (e *Engine) userVerb(ctx context.Context, req *Request) (string, error) {
	subj, pred, hits, err := e.userVerbHits(ctx, req)
	if pred == "" || err != nil {
		return "", err
	}
	if len(hits) > 0 {
		return joinHits(hits), nil
	}
	return verbFallback(subj, pred), nil
}

// userVerbBool answers "does X <verb> ..." with Yes, No or Sort of, followed
// by the messages the answer rests on. A message counts against when a
// negation stands between X and the verb.
func (e *Engine) userVerbBool(ctx context.Context, req *Request) (string, error) {
	subj, pred, hits, err := e.userVerbHits(ctx, req)
	if pred == "" || err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return verbFallback(subj, pred), nil
	}
	no := 0
	for _, h := range hits {
		if nlp.Negated(h.extract, pred) {
			no++
		}
	}
	verdict := "Yes"
	switch {
	case no == len(hits):
		verdict = "No"
	case no > 0:
		verdict = "Sort of"
	}
	return verdict + "\n" + joinHits(hits), nil
}

// userVerbHits resolves the user leading req.Suffix and collects the
// clauses in which they perform the rest. pred is empty when the suffix
// names no known user or nothing follows the name.
func (e *Engine) userVerbHits(ctx context.Context, req *Request) (subj, pred string, hits []verbHit, err error) {
	subj, id, rest, ok := e.leadingName(req.Suffix)
	if !ok {
		return "", "", nil, nil
	}
	pred = makeQuery(rest)
	if pred == "" {
		return "", "", nil, nil
	}
	ix, err := e.backend.Index(ctx, req.GuildID)
	if err != nil {
		return "", "", nil, err
	}

	names := e.authors.Names(id)
	subjects := append([]string{id}, names...)

	ctx, t := observe.Sub(ctx, "combined-query")
	results := ix.Query(ctx, pred, index.QueryOptions{
		Limit:       index.DefaultLimit,
		AuthorID:    id,
		AuthorNames: names,
		Expand:      true,
		Dedupe:      true,
	})
	t.Stop()

	hits = e.verbHits(ctx, req.GuildID, results, pred, func(r index.Result) []string {
		if r.AuthorID == id {
			return []string{"I"}
		}
		return subjects
	})
	return subj, pred, hits, nil
}

func verbFallback(subj, pred string) string {
	if strings.Contains(pred, " ") {
		return "I don't know"
	}
	return fmt.Sprintf("I'm not sure what %s %ss", subj, pred)
}

// whoVerb answers "who <verb> X" over every author.
func (e *Engine) whoVerb(ctx context.Context, req *Request) (string, error) {
	pred := makeQuery(req.Suffix)
	if pred == "" {
		return "", nil
	}
	ix, err := e.backend.Index(ctx, req.GuildID)
	if err != nil {
		return "", err
	}

	subjects := []string{"I"}
	for name := range e.knownNames() {
		subjects = append(subjects, name)
	}

	ctx, t := observe.Sub(ctx, "combined-query")
	results := ix.Query(ctx, pred, index.QueryOptions{Limit: index.DefaultLimit, Expand: true, Dedupe: true})
	t.Stop()

	hits := e.verbHits(ctx, req.GuildID, results, pred, func(index.Result) []string { return subjects })
	if len(hits) > 0 {
		return joinHits(hits), nil
	}
	if strings.Contains(pred, " ") {
		return "I don't know", nil
	}
	return fmt.Sprintf("I'm not sure what who %ss", pred), nil
}

// verbHit is one clause in which a subject performs the queried verb.
type verbHit struct {
	author  string
	extract string
}

func joinHits(hits []verbHit) string {
	lines := make([]string, len(hits))
	for i, h := range hits {
		lines[i] = h.author + ": " + h.extract
	}
	return strings.Join(lines, "\n")
}

// verbHits keeps up to maxVerbLines results whose text has a subject from
// subjectsFor performing pred.
func (e *Engine) verbHits(ctx context.Context, guildID string, results []index.Result, pred string, subjectsFor func(index.Result) []string) []verbHit {
	_, t := observe.Sub(ctx, "subject-filter")
	defer t.Stop()

	var hits []verbHit
	for _, r := range results {
		if len(hits) >= maxVerbLines {
			break
		}
		if extract, ok := e.extractor.CheckVerb(r.Text, subjectsFor(r), pred); ok {
			hits = append(hits, verbHit{author: e.resolveID(ctx, guildID, r.AuthorID, r.AuthorID), extract: extract})
		}
	}
	return hits
}

// setAlias handles "set alias A = B".
func (e *Engine) setAlias(ctx context.Context, req *Request) (string, error) {
	s := e.settings.Load()
	if req.AuthorID != s.MasterID {
		return notAllowed, nil
	}
	left, right, ok := strings.Cut(req.Suffix, "=")
	if !ok {
		return "", nil
	}

	a, err := e.authors.SetAlias(strings.TrimSpace(left), strings.TrimSpace(right))
	var conflict *authors.ConflictError
	switch {
	case errors.Is(err, authors.ErrUnknownName):
		return s.Shrug, nil
	case errors.As(err, &conflict):
		return fmt.Sprintf("%s is already called %s :/", conflict.Canonical, conflict.Name), nil
	case err != nil:
		return "", err
	}
	observe.Logger(ctx).Info("alias set", "alias", a.NewName, "existing", a.ExistingName, "id", a.ID)
	return fmt.Sprintf("Done (%s -> %s)", a.NewName, a.ExistingName), nil
}

// setOption handles "set key = value" for the runtime settings.
func (e *Engine) setOption(ctx context.Context, req *Request) (string, error) {
	s := e.settings.Load()
	if req.AuthorID != s.MasterID {
		return notAllowed, nil
	}
	key, val, ok := strings.Cut(req.Suffix, "=")
	if !ok {
		return "", nil
	}
	key, val = strings.TrimSpace(key), strings.TrimSpace(val)

	next := s.Settings
	switch key {
	case "timing":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Sprintf("%q is not true or false", val), nil
		}
		next.Timing = b
	case "name":
		if val == "" {
			return "", nil
		}
		next.Name = val
	default:
		return fmt.Sprintf("I don't have an option called %s %s", key, s.Shrug), nil
	}
	e.SetSettings(next)
	observe.Logger(ctx).Info("option set", "key", key, "value", val)
	return "Done", nil
}

// help lists every route.
func (e *Engine) help(_ context.Context, req *Request) (string, error) {
	if req.Suffix != "" {
		return e.settings.Load().Shrug, nil
	}
	var b strings.Builder
	b.WriteString("I can parse requests of the following forms:\n")
	for _, r := range e.noPrefix {
		b.WriteString(r.Help)
		b.WriteByte('\n')
	}
	for i, r := range e.routes {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.Help)
	}
	return b.String(), nil
}
