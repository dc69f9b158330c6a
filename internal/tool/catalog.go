package tool

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"slackmcp/internal/config"
	"slackmcp/internal/domain"
	"slackmcp/internal/policy"
	"slackmcp/internal/query"
	"slackmcp/internal/resolve"
	"slackmcp/internal/slackapi"
	"slackmcp/internal/thread"
)

// Deps is everything the Slack tools need. All fields except Guard and
// Logger are required.
type Deps struct {
	API        *slackapi.API
	Resolver   *resolve.Resolver
	Translator *query.Translator
	Threads    *thread.Assembler
	Session    *slackapi.Session
	Guard      *policy.Guard
	Search     config.SearchConfig
	Location   *time.Location // for date-valued history bounds
	Writes     bool
	Logger     *zap.Logger
}

// RegisterSlackTools adds the read tools, and the write tools when writes
// are enabled.
func RegisterSlackTools(reg *Registry, d Deps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	r := &reader{Deps: d}
	for _, t := range []Tool{
		r.history(),
		r.searchMessages(),
		r.searchScoped("search_dms", query.ScopeDM,
			"Search direct messages exchanged with a user"),
		r.searchScoped("search_user_mentions", query.ScopeMentions,
			"Search messages that mention a user"),
		r.searchFiles(),
		r.threadByText(),
		r.threadByLink(),
		r.whoami(),
	} {
		reg.Register(t)
	}
	if !d.Writes {
		d.Logger.Info("write tools disabled")
		return
	}
	w := &writer{Deps: d}
	for _, t := range []Tool{
		w.postMessage(),
		w.postCommand(),
		w.sendDM(),
		w.addReaction(),
		w.joinChannel(),
	} {
		reg.Register(t)
	}
}

// Common parameters.
var (
	formatParam = Param{
		Name:        "format",
		Type:        TypeString,
		Description: "Output format for message lists",
		Default:     "json",
		Enum:        []string{"json", "csv"},
	}
	cursorParam = Param{
		Name:        "cursor",
		Type:        TypeString,
		Description: "Continuation cursor from a previous call's next_cursor",
	}
	afterParam = Param{
		Name:        "after",
		Type:        TypeString,
		Description: "Only results after this date (YYYY-MM-DD or relative, e.g. \"last week\", \"30d\")",
	}
	beforeParam = Param{
		Name:        "before",
		Type:        TypeString,
		Description: "Only results before this date",
	}
)

func (d Deps) countParam() Param {
	return Param{
		Name:        "count",
		Type:        TypeNumber,
		Description: "Maximum number of results",
		Default:     d.Search.DefaultCount,
		Min:         bound(1),
		Max:         bound(float64(d.Search.MaxCount)),
	}
}

// channelRef resolves a channel argument and fills in its name when a
// write rule needs it.
func (d Deps) channelRef(ctx context.Context, raw string, needName bool) (domain.ChannelRef, error) {
	ch, err := d.Resolver.Channel(ctx, raw)
	if err != nil {
		return ch, err
	}
	if needName && ch.Name == "" && !strings.HasPrefix(ch.ID, "D") {
		name, err := d.Resolver.ChannelName(ctx, ch.ID)
		if err != nil && !domain.IsKind(err, domain.KindNotFound) {
			return ch, err
		}
		ch.Name = name
	}
	return ch, nil
}
