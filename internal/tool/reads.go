package tool

import (
	"context"
	"time"

	"slackmcp/internal/domain"
	"slackmcp/internal/query"
	"slackmcp/internal/slackapi"
	"slackmcp/internal/thread"
)

type reader struct {
	Deps
}

func (r *reader) history() Tool {
	return &funcTool{
		name:        "get_channel_history",
		description: "Get recent messages from a channel, newest first. Accepts a channel ID or name.",
		schema: Schema{
			{Name: "channel_id", Type: TypeString, Required: true, Description: "Channel ID or #name"},
			{Name: "limit", Type: TypeNumber, Description: "Maximum number of messages",
				Default: r.Search.HistoryLimit, Min: bound(1), Max: bound(1000)},
			cursorParam,
			{Name: "oldest", Type: TypeString, Description: "Only messages at or after this timestamp or date"},
			{Name: "latest", Type: TypeString, Description: "Only messages at or before this timestamp or date"},
			formatParam,
		},
		run: func(ctx context.Context, args Args) (any, error) {
			oldest, err := r.historyBound(args.String("oldest"), false)
			if err != nil {
				return nil, err
			}
			latest, err := r.historyBound(args.String("latest"), true)
			if err != nil {
				return nil, err
			}
			ch, err := r.Resolver.Channel(ctx, args.String("channel_id"))
			if err != nil {
				return nil, err
			}

			w := slackapi.HistoryWindow{Oldest: oldest, Latest: latest, Inclusive: oldest != "" || latest != ""}
			got, err := slackapi.NewPaginator(r.API.History(ch.ID, w), args.Int("limit")).
				From(args.String("cursor")).
				Collect(ctx)

			out := domain.History{ChannelID: ch.ID, ChannelName: ch.Name, Messages: make([]domain.Message, 0, len(got.Items)), NextCursor: got.Next}
			for _, m := range got.Items {
				msg := slackapi.ToMessage(m, ch.ID)
				msg.ChannelName = ch.Name
				out.Messages = append(out.Messages, msg)
			}
			if args.String("format") == "csv" {
				return csvTable{rows: out.Messages, next: out.NextCursor}, err
			}
			return out, err
		},
	}
}

// historyBound accepts a Slack timestamp or a date. A date used as the
// upper bound covers its whole day.
func (r *reader) historyBound(raw string, upper bool) (string, error) {
	if raw == "" {
		return "", nil
	}
	if ts, err := domain.NormalizeTS(raw); err == nil {
		return ts, nil
	}
	day, err := query.ParseDate(raw, time.Now().In(r.Location))
	if err != nil {
		return "", err
	}
	if upper {
		day = day.AddDate(0, 0, 1).Add(-time.Microsecond)
	}
	return domain.UnixTS(day), nil
}

func (r *reader) searchMessages() Tool {
	return &funcTool{
		name: "search_messages",
		description: "Search messages across the workspace. The query may embed Slack search operators " +
			"(in:, from:, before:, after:, on:, during:, has:, is:, with:).",
		schema: Schema{
			{Name: "query", Type: TypeString, Required: true, Description: "Search text, optionally with operators"},
			{Name: "sort", Type: TypeString, Default: "timestamp", Enum: []string{"timestamp", "score"},
				Description: "Order results by time or relevance"},
			{Name: "sort_dir", Type: TypeString, Default: "desc", Enum: []string{"asc", "desc"},
				Description: "Sort direction"},
			r.countParam(),
			cursorParam,
			afterParam,
			beforeParam,
			{Name: "from", Type: TypeString, Description: "Only messages from this user (ID, @handle or email)"},
			{Name: "in", Type: TypeString, Description: "Only messages in this channel (ID or #name) or DM (@user)"},
			formatParam,
		},
		run: func(ctx context.Context, args Args) (any, error) {
			return r.search(ctx, args, query.Request{
				Text:    args.String("query"),
				After:   args.String("after"),
				Before:  args.String("before"),
				From:    args.String("from"),
				In:      args.String("in"),
				Sort:    args.String("sort"),
				SortDir: args.String("sort_dir"),
			})
		},
	}
}

func (r *reader) searchScoped(name string, scope query.Scope, description string) Tool {
	return &funcTool{
		name:        name,
		description: description,
		schema: Schema{
			{Name: "user_id", Type: TypeString, Required: true, Description: "User ID, @handle or email"},
			{Name: "query", Type: TypeString, Description: "Optional search text"},
			r.countParam(),
			cursorParam,
			afterParam,
			beforeParam,
			formatParam,
		},
		run: func(ctx context.Context, args Args) (any, error) {
			return r.search(ctx, args, query.Request{
				Text:      args.String("query"),
				After:     args.String("after"),
				Before:    args.String("before"),
				Scope:     scope,
				ScopeUser: args.String("user_id"),
				Sort:      "timestamp",
				SortDir:   "desc",
			})
		},
	}
}

func (r *reader) search(ctx context.Context, args Args, req query.Request) (any, error) {
	req.Target = query.TargetMessages
	q, err := r.Translator.Translate(ctx, req)
	if err != nil {
		return nil, err
	}
	got, err := slackapi.NewPaginator(
		r.API.SearchMessages(slackapi.SearchParams{Query: q.Expression, Sort: q.Sort, SortDir: q.SortDir}),
		args.Int("count"),
	).From(args.String("cursor")).Collect(ctx)

	out := domain.SearchResult{
		Query:      q.Expression,
		Messages:   make([]domain.Message, 0, len(got.Items)),
		Total:      got.Total,
		NextCursor: got.Next,
	}
	for _, hit := range got.Items {
		m := slackapi.MatchToMessage(hit)
		if !q.InWindow(m.Timestamp) {
			continue
		}
		out.Messages = append(out.Messages, m)
	}
	if args.String("format") == "csv" {
		return csvTable{rows: out.Messages, next: out.NextCursor}, err
	}
	return out, err
}

func (r *reader) searchFiles() Tool {
	return &funcTool{
		name:        "search_files",
		description: "Search files shared in the workspace",
		schema: Schema{
			{Name: "query", Type: TypeString, Required: true, Description: "Search text"},
			{Name: "user", Type: TypeString, Description: "Only files shared by this user"},
			{Name: "channel", Type: TypeString, Description: "Only files shared in this channel"},
			afterParam,
			beforeParam,
			r.countParam(),
			cursorParam,
			formatParam,
		},
		run: func(ctx context.Context, args Args) (any, error) {
			q, err := r.Translator.Translate(ctx, query.Request{
				Text:    args.String("query"),
				From:    args.String("user"),
				In:      args.String("channel"),
				After:   args.String("after"),
				Before:  args.String("before"),
				Target:  query.TargetFiles,
				Sort:    "timestamp",
				SortDir: "desc",
			})
			if err != nil {
				return nil, err
			}
			got, err := slackapi.NewPaginator(
				r.API.SearchFiles(slackapi.SearchParams{Query: q.Expression, Sort: q.Sort, SortDir: q.SortDir}),
				args.Int("count"),
			).From(args.String("cursor")).Collect(ctx)

			out := domain.FileSearchResult{
				Query:      q.Expression,
				Files:      make([]domain.File, 0, len(got.Items)),
				Total:      got.Total,
				NextCursor: got.Next,
			}
			for _, f := range got.Items {
				out.Files = append(out.Files, slackapi.ToFile(f))
			}
			if args.String("format") == "csv" {
				return csvTable{rows: out.Files, next: out.NextCursor}, err
			}
			return out, err
		},
	}
}

func (r *reader) threadByText() Tool {
	return &funcTool{
		name: "get_thread_by_text",
		description: "Find the most recent message in a channel containing the given text and return " +
			"its whole thread. match_count reports how many messages matched.",
		schema: Schema{
			{Name: "channel_name", Type: TypeString, Required: true, Description: "Channel #name or ID"},
			{Name: "message_text", Type: TypeString, Required: true, Description: "Text the message contains"},
			{Name: "limit", Type: TypeNumber, Default: r.Search.ThreadLimit, Min: bound(1), Max: bound(1000),
				Description: "Maximum number of replies"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			return r.Threads.ByText(ctx, args.String("channel_name"), args.String("message_text"), args.Int("limit"))
		},
	}
}

func (r *reader) threadByLink() Tool {
	return &funcTool{
		name: "get_thread_by_link",
		description: "Get a thread from a message permalink. A link without thread_ts names a single " +
			"message; set expand_parent to also fetch its replies.",
		schema: Schema{
			{Name: "thread_link", Type: TypeString, Required: true, Description: "Slack message permalink"},
			{Name: "limit", Type: TypeNumber, Default: r.Search.ThreadLimit, Min: bound(1), Max: bound(1000),
				Description: "Maximum number of replies"},
			{Name: "expand_parent", Type: TypeBoolean, Default: false,
				Description: "Fetch replies when the linked message starts a thread"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			limit := args.Int("limit")
			if limit <= 0 {
				limit = thread.DefaultLimit
			}
			return r.Threads.ByLink(ctx, args.String("thread_link"), limit, args.Bool("expand_parent"))
		},
	}
}

func (r *reader) whoami() Tool {
	return &funcTool{
		name:        "whoami",
		description: "Show the Slack identity tool calls act as",
		schema:      Schema{},
		run: func(ctx context.Context, _ Args) (any, error) {
			return r.Session.Refresh(ctx)
		},
	}
}
