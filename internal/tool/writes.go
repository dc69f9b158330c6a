package tool

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"slackmcp/internal/domain"
	"slackmcp/internal/slackapi"
)

type writer struct {
	Deps
}

type postResult struct {
	OK        bool   `json:"ok"`
	Channel   string `json:"channel"`
	TS        string `json:"ts"`
	Permalink string `json:"permalink,omitempty"`
}

type ackResult struct {
	OK      bool   `json:"ok"`
	Channel string `json:"channel,omitempty"`
	Note    string `json:"note,omitempty"`
}

func (w *writer) postMessage() Tool {
	return &funcTool{
		name:        "post_message",
		description: "Post a message to a channel, optionally as a thread reply. Joins the channel first.",
		write:       true,
		schema: Schema{
			{Name: "channel_id", Type: TypeString, Required: true, Description: "Channel ID or #name"},
			{Name: "message", Type: TypeString, Required: true, Description: "Message text (Slack mrkdwn)"},
			{Name: "thread_ts", Type: TypeString, Description: "Reply in the thread rooted at this timestamp"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			threadTS, err := optionalTS(args.String("thread_ts"))
			if err != nil {
				return nil, err
			}
			ch, err := w.writable(ctx, "post_message", args.String("channel_id"))
			if err != nil {
				return nil, err
			}
			if err := w.join(ctx, ch); err != nil {
				return nil, err
			}
			channel, ts, err := w.API.PostMessage(ctx, ch.ID, args.String("message"), threadTS)
			if err != nil {
				return nil, err
			}
			return postResult{OK: true, Channel: channel, TS: ts, Permalink: w.permalink(ctx, channel, ts, threadTS)}, nil
		},
	}
}

func (w *writer) postCommand() Tool {
	return &funcTool{
		name:        "post_command",
		description: "Run a slash command in a channel, e.g. command \"remind\" with text \"me in 5m\"",
		write:       true,
		schema: Schema{
			{Name: "channel_id", Type: TypeString, Required: true, Description: "Channel ID or #name"},
			{Name: "command", Type: TypeString, Required: true, Description: "Command name, with or without the leading slash"},
			{Name: "text", Type: TypeString, Description: "Command arguments"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			ch, err := w.writable(ctx, "post_command", args.String("channel_id"))
			if err != nil {
				return nil, err
			}
			if err := w.join(ctx, ch); err != nil {
				return nil, err
			}
			if err := w.API.Command(ctx, ch.ID, args.String("command"), args.String("text")); err != nil {
				return nil, err
			}
			return ackResult{OK: true, Channel: ch.ID}, nil
		},
	}
}

func (w *writer) sendDM() Tool {
	return &funcTool{
		name:        "send_dm",
		description: "Send a direct message to a user",
		write:       true,
		schema: Schema{
			{Name: "user_id", Type: TypeString, Required: true, Description: "User ID, @handle or email"},
			{Name: "message", Type: TypeString, Required: true, Description: "Message text"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			u, err := w.Resolver.User(ctx, args.String("user_id"))
			if err != nil {
				return nil, err
			}
			if w.Guard.Active() {
				if u.Handle == "" {
					u.Handle, _ = w.Resolver.UserName(ctx, u.ID)
				}
				if err := w.Guard.Check("send_dm", u.ID, u.Handle); err != nil {
					return nil, err
				}
			}
			im, err := w.API.OpenIM(ctx, u.ID)
			if err != nil {
				return nil, err
			}
			channel, ts, err := w.API.PostMessage(ctx, im, args.String("message"), "")
			if err != nil {
				return nil, err
			}
			return postResult{OK: true, Channel: channel, TS: ts, Permalink: w.permalink(ctx, channel, ts, "")}, nil
		},
	}
}

func (w *writer) addReaction() Tool {
	return &funcTool{
		name:        "add_reaction",
		description: "Add an emoji reaction to a message",
		write:       true,
		schema: Schema{
			{Name: "channel_id", Type: TypeString, Required: true, Description: "Channel ID or #name"},
			{Name: "message_ts", Type: TypeString, Required: true, Description: "Timestamp of the message"},
			{Name: "reaction", Type: TypeString, Required: true, Description: "Emoji name, e.g. thumbsup"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			ts, err := domain.NormalizeTS(args.String("message_ts"))
			if err != nil {
				return nil, err
			}
			ch, err := w.writable(ctx, "add_reaction", args.String("channel_id"))
			if err != nil {
				return nil, err
			}
			err = w.API.AddReaction(ctx, ch.ID, ts, args.String("reaction"))
			if slackapi.ErrorCode(err) == "already_reacted" {
				return ackResult{OK: true, Channel: ch.ID, Note: "already reacted"}, nil
			}
			if err != nil {
				return nil, err
			}
			return ackResult{OK: true, Channel: ch.ID}, nil
		},
	}
}

func (w *writer) joinChannel() Tool {
	return &funcTool{
		name:        "join_channel",
		description: "Join a public channel",
		write:       true,
		schema: Schema{
			{Name: "channel_id", Type: TypeString, Required: true, Description: "Channel ID or #name"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			ch, err := w.writable(ctx, "join_channel", args.String("channel_id"))
			if err != nil {
				return nil, err
			}
			joined, err := w.API.Join(ctx, ch.ID)
			if err != nil {
				return nil, err
			}
			ref := domain.ChannelRef{ID: ch.ID, Name: joined.Name}
			if ref.Name == "" {
				ref.Name = ch.Name
			}
			return ref, nil
		},
	}
}

// writable resolves a channel and checks it against the write rules.
func (w *writer) writable(ctx context.Context, tool, raw string) (domain.ChannelRef, error) {
	ch, err := w.channelRef(ctx, raw, w.Guard.Active())
	if err != nil {
		return ch, err
	}
	return ch, w.Guard.Check(tool, ch.ID, ch.Name)
}

// join makes sure the session is a member before posting. Only failures
// that would doom the post abort it.
func (w *writer) join(ctx context.Context, ch domain.ChannelRef) error {
	if strings.HasPrefix(ch.ID, "D") {
		return nil
	}
	if _, err := w.API.Join(ctx, ch.ID); err != nil {
		switch domain.KindOf(err) {
		case domain.KindAuthExpired, domain.KindRateLimited, domain.KindIndeterminateOutcome:
			return err
		}
		w.Logger.Debug("join before post failed",
			zap.String("channel", ch.ID), zap.String("code", slackapi.ErrorCode(err)), zap.Error(err))
	}
	return nil
}

func (w *writer) permalink(ctx context.Context, channel, ts, threadTS string) string {
	id, err := w.Session.Identity(ctx)
	if err != nil {
		return ""
	}
	return slackapi.Permalink(id.URL, channel, ts, threadTS)
}

func optionalTS(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	return domain.NormalizeTS(raw)
}
