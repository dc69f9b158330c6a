// Package thread reconstructs a full reply chain from a single message,
// found either by a text fragment or by its permalink.
package thread

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"slackmcp/internal/domain"
	"slackmcp/internal/query"
	"slackmcp/internal/resolve"
	"slackmcp/internal/slackapi"
)

const (
	// MaxCandidates bounds how many search hits ByText inspects.
	MaxCandidates = 100
	DefaultLimit  = 200
)

type ChannelResolver interface {
	Channel(ctx context.Context, raw string) (domain.ChannelRef, error)
}

// IdentitySource supplies the workspace URL used to build missing permalinks.
type IdentitySource interface {
	Identity(ctx context.Context) (domain.Identity, error)
}

type Config struct {
	API        *slackapi.API
	Resolver   ChannelResolver
	Translator *query.Translator
	Identity   IdentitySource
	Logger     *zap.Logger
}

type Assembler struct {
	api        *slackapi.API
	resolver   ChannelResolver
	translator *query.Translator
	identity   IdentitySource
	logger     *zap.Logger
}

func NewAssembler(cfg Config) *Assembler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Assembler{
		api:        cfg.API,
		resolver:   cfg.Resolver,
		translator: cfg.Translator,
		identity:   cfg.Identity,
		logger:     cfg.Logger,
	}
}

// ByText finds the most recent message in channel containing fragment
// (case-insensitively) and returns the thread it belongs to. When several
// candidates share the newest timestamp the first in search order wins.
func (a *Assembler) ByText(ctx context.Context, channel, fragment string, limit int) (domain.ThreadReplyChain, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return domain.ThreadReplyChain{}, domain.Errorf(domain.KindInvalidArgument, "message text is empty")
	}
	ch, err := a.resolver.Channel(ctx, channel)
	if err != nil {
		return domain.ThreadReplyChain{}, err
	}

	q, err := a.translator.Translate(ctx, query.Request{
		Text:    phrase(fragment),
		In:      ch.ID,
		Sort:    "timestamp",
		SortDir: "desc",
	})
	if err != nil {
		return domain.ThreadReplyChain{}, err
	}
	hits, err := slackapi.NewPaginator(a.api.SearchMessages(slackapi.SearchParams{
		Query: q.Expression, Sort: q.Sort, SortDir: q.SortDir,
	}), MaxCandidates).Collect(ctx)
	if err != nil {
		return domain.ThreadReplyChain{}, err
	}

	needle := strings.ToLower(fragment)
	var (
		best    domain.Message
		found   bool
		matches int
	)
	for _, hit := range hits.Items {
		msg := slackapi.MatchToMessage(hit)
		if msg.ChannelID != ch.ID || !strings.Contains(strings.ToLower(msg.Text), needle) {
			continue
		}
		matches++
		if !found || domain.CompareTS(msg.Timestamp, best.Timestamp) > 0 {
			best, found = msg, true
		}
	}
	if !found {
		return domain.ThreadReplyChain{}, domain.Errorf(domain.KindNotFound,
			"no message in %s contains %q", ch.Label(), fragment)
	}

	rootTS := best.ThreadRootID
	if rootTS == "" {
		rootTS = best.Timestamp
	}
	a.logger.Debug("thread located by text",
		zap.String("channel", ch.ID), zap.String("root", rootTS), zap.Int("candidates", matches))

	chain, err := a.Replies(ctx, ch.ID, rootTS, limit)
	if err != nil {
		return domain.ThreadReplyChain{}, err
	}
	chain.ChannelName = ch.Name
	if chain.ChannelName == "" {
		chain.ChannelName = best.ChannelName
	}
	chain.MatchCount = matches
	return chain, nil
}

// ByLink returns the thread a permalink points into. A link without
// thread_ts names a single message; its replies are fetched only when
// expandParent is set.
func (a *Assembler) ByLink(ctx context.Context, link string, limit int, expandParent bool) (domain.ThreadReplyChain, error) {
	ref, err := resolve.ParsePermalink(link)
	if err != nil {
		return domain.ThreadReplyChain{}, err
	}
	if ref.InThread() {
		return a.Replies(ctx, ref.ChannelID, ref.ThreadTS, limit)
	}

	page, err := a.api.History(ref.ChannelID, slackapi.HistoryWindow{
		Oldest: ref.TS, Latest: ref.TS, Inclusive: true,
	})(ctx, "", 1)
	if err != nil {
		return domain.ThreadReplyChain{}, err
	}
	idx := slices.IndexFunc(page.Items, func(m slackapi.WireMessage) bool { return m.Timestamp == ref.TS })
	if idx < 0 {
		return domain.ThreadReplyChain{}, domain.Errorf(domain.KindNotFound,
			"message %s not found in %s", ref.TS, ref.ChannelID)
	}
	msg := slackapi.ToMessage(page.Items[idx], ref.ChannelID)
	if expandParent && msg.ReplyCount > 0 && msg.ThreadRootID == "" {
		return a.Replies(ctx, ref.ChannelID, ref.TS, limit)
	}

	msg.ThreadRootID = ""
	chain := domain.ThreadReplyChain{
		ChannelID: ref.ChannelID,
		ThreadTS:  msg.Timestamp,
		Root:      msg,
		Replies:   []domain.Message{},
	}
	a.fillPermalinks(ctx, &chain)
	return chain, nil
}

// Replies fetches the thread rooted at rootTS. Replies are strictly
// ascending by timestamp and at most limit long.
func (a *Assembler) Replies(ctx context.Context, channelID, rootTS string, limit int) (domain.ThreadReplyChain, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rootTS, err := domain.NormalizeTS(rootTS)
	if err != nil {
		return domain.ThreadReplyChain{}, err
	}

	var (
		root      *domain.Message
		replies   []domain.Message
		seen      = map[string]bool{}
		truncated bool
	)
walk:
	for page, err := range slackapi.NewPaginator(a.api.Replies(channelID, rootTS), 0).Pages(ctx) {
		if err != nil {
			return domain.ThreadReplyChain{}, err
		}
		for _, wm := range page.Items {
			if seen[wm.Timestamp] {
				continue
			}
			seen[wm.Timestamp] = true
			msg := slackapi.ToMessage(wm, channelID)
			if msg.Timestamp == rootTS {
				msg.ThreadRootID = ""
				root = &msg
				continue
			}
			if len(replies) == limit {
				truncated = true
				if root != nil {
					break walk
				}
				continue
			}
			msg.ThreadRootID = rootTS
			replies = append(replies, msg)
		}
	}
	if root == nil {
		return domain.ThreadReplyChain{}, domain.Errorf(domain.KindNotFound,
			"thread %s not found in %s", rootTS, channelID)
	}
	slices.SortFunc(replies, func(x, y domain.Message) int { return domain.CompareTS(x.Timestamp, y.Timestamp) })
	if replies == nil {
		replies = []domain.Message{}
	}

	chain := domain.ThreadReplyChain{
		ChannelID: channelID,
		ThreadTS:  rootTS,
		Root:      *root,
		Replies:   replies,
		Truncated: truncated,
	}
	a.fillPermalinks(ctx, &chain)
	return chain, nil
}

// fillPermalinks synthesizes links for messages Slack returned without one.
// Without a workspace URL messages are left as they are.
func (a *Assembler) fillPermalinks(ctx context.Context, chain *domain.ThreadReplyChain) {
	if chain.Root.Permalink != "" && !slices.ContainsFunc(chain.Replies, func(m domain.Message) bool { return m.Permalink == "" }) {
		return
	}
	if a.identity == nil {
		return
	}
	id, err := a.identity.Identity(ctx)
	if err != nil || id.URL == "" {
		a.logger.Debug("permalinks left empty", zap.Error(err))
		return
	}
	if chain.Root.Permalink == "" {
		chain.Root.Permalink = slackapi.Permalink(id.URL, chain.ChannelID, chain.Root.Timestamp, "")
	}
	for i := range chain.Replies {
		if chain.Replies[i].Permalink == "" {
			chain.Replies[i].Permalink = slackapi.Permalink(id.URL, chain.ChannelID, chain.Replies[i].Timestamp, chain.ThreadTS)
		}
	}
}

// phrase quotes a fragment for search, dropping quotes it already has.
func phrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}
