// Package query translates tool arguments into Slack search expressions.
// Human references inside the query are resolved to IDs first, so a search
// never runs against a name that might have been renamed or misspelled.
package query

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"slackmcp/internal/domain"
	"slackmcp/internal/resolve"
)

// Resolver is the lookup surface the translator needs.
type Resolver interface {
	Channel(ctx context.Context, raw string) (domain.ChannelRef, error)
	User(ctx context.Context, raw string) (domain.UserRef, error)
}

// Scope narrows a message search to one user's conversations.
type Scope int

const (
	ScopeNone     Scope = iota
	ScopeDM             // direct messages with ScopeUser
	ScopeMentions       // messages mentioning ScopeUser
)

type Target string

const (
	TargetMessages Target = "messages"
	TargetFiles    Target = "files"
)

// operatorKeys is the set of recognized operators in output order.
var operatorKeys = []string{"is", "in", "from", "with", "before", "after", "on", "during", "has"}

// Request is what a search tool hands the translator. Structured fields
// combine with any operators embedded in Text.
type Request struct {
	Text      string
	After     string
	Before    string
	On        string
	During    string
	From      string
	In        string
	Scope     Scope
	ScopeUser string
	Target    Target
	Sort      string
	SortDir   string
}

// Query is a translated search. After and Before bound the result window
// (zero when unbounded) so callers can drop stragglers.
type Query struct {
	Expression string
	Target     Target
	Sort       string
	SortDir    string
	After      time.Time
	Before     time.Time
}

// Translator is safe for concurrent use.
type Translator struct {
	resolver Resolver
	now      func() time.Time
	loc      *time.Location
}

func NewTranslator(r Resolver, loc *time.Location) *Translator {
	if loc == nil {
		loc = time.UTC
	}
	return &Translator{resolver: r, now: time.Now, loc: loc}
}

// WithClock overrides the reference time used for relative dates.
func (t *Translator) WithClock(now func() time.Time) *Translator {
	cp := *t
	cp.now = now
	return &cp
}

type expression struct {
	terms []string
	ops   map[string][]string
}

func (e *expression) addTerm(term string) {
	if !slices.Contains(e.terms, term) {
		e.terms = append(e.terms, term)
	}
}

func (e *expression) addOp(key, val string) {
	if !slices.Contains(e.ops[key], val) {
		e.ops[key] = append(e.ops[key], val)
	}
}

func (e *expression) String() string {
	out := slices.Clone(e.terms)
	for _, key := range operatorKeys {
		for _, val := range e.ops[key] {
			out = append(out, key+":"+val)
		}
	}
	return strings.Join(out, " ")
}

// Translate builds the search expression for req. Every reference is
// resolved before returning; if any fails no search should be issued.
func (t *Translator) Translate(ctx context.Context, req Request) (Query, error) {
	expr := &expression{ops: map[string][]string{}}
	for _, tok := range tokenize(req.Text) {
		if key, val, ok := splitOperator(tok); ok {
			expr.addOp(key, val)
			continue
		}
		expr.addTerm(tok)
	}
	for key, val := range map[string]string{
		"after": req.After, "before": req.Before, "on": req.On, "during": req.During,
		"from": req.From, "in": req.In,
	} {
		if v := strings.TrimSpace(val); v != "" {
			expr.addOp(key, v)
		}
	}

	if err := t.resolveRefs(ctx, expr); err != nil {
		return Query{}, err
	}
	if err := t.resolveScope(ctx, expr, req); err != nil {
		return Query{}, err
	}
	q := Query{Target: req.Target, Sort: req.Sort, SortDir: req.SortDir}
	if q.Target == "" {
		q.Target = TargetMessages
	}
	if err := t.normalizeDates(expr, &q); err != nil {
		return Query{}, err
	}
	q.Expression = expr.String()
	if q.Expression == "" {
		return Query{}, domain.Errorf(domain.KindInvalidArgument, "search query is empty")
	}
	return q, nil
}

func (t *Translator) resolveRefs(ctx context.Context, expr *expression) error {
	for _, key := range []string{"from", "with", "in"} {
		vals := expr.ops[key]
		expr.ops[key] = nil
		for _, raw := range vals {
			ref, err := t.resolveOperand(ctx, key, raw)
			if err != nil {
				return domain.Wrap(domain.KindUnresolvedReference, err, fmt.Sprintf("cannot resolve %s:%s", key, raw))
			}
			expr.addOp(key, ref)
		}
	}
	return nil
}

func (t *Translator) resolveOperand(ctx context.Context, key, raw string) (string, error) {
	if key == "in" && !looksLikeUser(raw) {
		ch, err := t.resolver.Channel(ctx, raw)
		if err != nil {
			return "", err
		}
		return "<#" + ch.ID + ">", nil
	}
	u, err := t.resolver.User(ctx, raw)
	if err != nil {
		return "", err
	}
	return u.Mention(), nil
}

func (t *Translator) resolveScope(ctx context.Context, expr *expression, req Request) error {
	if req.Scope == ScopeNone {
		return nil
	}
	if strings.TrimSpace(req.ScopeUser) == "" {
		return domain.Errorf(domain.KindInvalidArgument, "a user is required for this search")
	}
	u, err := t.resolver.User(ctx, req.ScopeUser)
	if err != nil {
		return domain.Wrap(domain.KindUnresolvedReference, err, "cannot resolve user "+req.ScopeUser)
	}
	if req.Scope == ScopeDM {
		expr.addOp("in", u.Mention())
	} else {
		expr.addTerm(u.Mention())
	}
	return nil
}

func (t *Translator) normalizeDates(expr *expression, q *Query) error {
	now := t.now().In(t.loc)
	for _, key := range []string{"after", "before", "on", "during"} {
		if len(expr.ops[key]) > 1 {
			return domain.Errorf(domain.KindInvalidArgument, "conflicting %s: filters %q", key, expr.ops[key])
		}
	}
	single := func(key string) string {
		if v := expr.ops[key]; len(v) == 1 {
			return v[0]
		}
		return ""
	}
	on, during, after, before := single("on"), single("during"), single("after"), single("before")
	if on != "" && (during != "" || after != "" || before != "") {
		return domain.Errorf(domain.KindInvalidArgument, "on: cannot be combined with other date filters")
	}
	if during != "" && (after != "" || before != "") {
		return domain.Errorf(domain.KindInvalidArgument, "during: cannot be combined with before: or after:")
	}

	parse := func(key, raw string) (time.Time, error) {
		d, err := ParseDate(raw, now)
		if err != nil {
			return time.Time{}, domain.Wrap(domain.KindInvalidArgument, err, "invalid "+key+": date")
		}
		expr.ops[key] = []string{FormatDate(d)}
		return d, nil
	}
	switch {
	case on != "":
		d, err := parse("on", on)
		if err != nil {
			return err
		}
		q.After, q.Before = d, d.AddDate(0, 0, 1)
	case during != "":
		v, err := normalizeDuring(during, now)
		if err != nil {
			return domain.Wrap(domain.KindInvalidArgument, err, "invalid during: date")
		}
		expr.ops["during"] = []string{v}
	}
	var afterDay time.Time
	if after != "" {
		d, err := parse("after", after)
		if err != nil {
			return err
		}
		afterDay = d
		// after: is exclusive of the named day
		q.After = d.AddDate(0, 0, 1)
	}
	if before != "" {
		d, err := parse("before", before)
		if err != nil {
			return err
		}
		q.Before = d
	}
	if after != "" && before != "" && afterDay.After(q.Before) {
		return domain.Errorf(domain.KindInvalidArgument, "after: %s is later than before: %s",
			expr.ops["after"][0], expr.ops["before"][0])
	}
	return nil
}

// InWindow reports whether ts falls inside the query's date bounds.
func (q Query) InWindow(ts string) bool {
	at := domain.TSTime(ts)
	if at.IsZero() {
		return true
	}
	if !q.After.IsZero() && at.Before(q.After) {
		return false
	}
	if !q.Before.IsZero() && !at.Before(q.Before) {
		return false
	}
	return true
}

func looksLikeUser(s string) bool {
	return strings.HasPrefix(s, "@") || strings.HasPrefix(s, "<@") || resolve.IsUserID(s)
}

// tokenize splits on whitespace, keeping double-quoted runs together with
// their quotes.
func tokenize(s string) []string {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// splitOperator recognizes key:value tokens for known keys. Quotes around
// the value are dropped.
func splitOperator(tok string) (string, string, bool) {
	key, val, ok := strings.Cut(tok, ":")
	if !ok || val == "" {
		return "", "", false
	}
	key = strings.ToLower(key)
	if !slices.Contains(operatorKeys, key) {
		return "", "", false
	}
	return key, strings.Trim(val, `"`), true
}
