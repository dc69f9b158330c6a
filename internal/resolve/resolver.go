// Package resolve turns human identifiers (channel names, handles, emails,
// mention markup, permalinks) into Slack IDs. Resolution is exact: a name
// that matches nothing, or more than one thing, is an error.
package resolve

import (
	"context"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"slackmcp/internal/domain"
	"slackmcp/internal/slackapi"
)

var (
	channelIDRe      = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)
	userIDRe         = regexp.MustCompile(`^[UW][A-Z0-9]{6,}$`)
	channelMentionRe = regexp.MustCompile(`^<#([CGD][A-Z0-9]{6,})(?:\|([^>]*))?>$`)
	userMentionRe    = regexp.MustCompile(`^<@([UW][A-Z0-9]{6,})(?:\|([^>]*))?>$`)
)

// conversationTypes is what name lookups scan: everything the session can
// see by name. DMs have no name.
const conversationTypes = "public_channel,private_channel"

// maxCandidates bounds the names listed in an ambiguity error.
const maxCandidates = 5

// Resolver looks identifiers up live on every call.
type Resolver struct {
	api    *slackapi.API
	logger *zap.Logger
}

func New(api *slackapi.API, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{api: api, logger: logger}
}

// IsChannelID reports whether s has the shape of a conversation ID.
func IsChannelID(s string) bool { return channelIDRe.MatchString(s) }

// IsUserID reports whether s has the shape of a user ID.
func IsUserID(s string) bool { return userIDRe.MatchString(s) }

// Channel resolves "#name", "name", "<#C123|name>" or a conversation ID.
// IDs are passed through without a lookup.
func (r *Resolver) Channel(ctx context.Context, raw string) (domain.ChannelRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.ChannelRef{}, domain.Errorf(domain.KindInvalidArgument, "empty channel reference")
	}
	if m := channelMentionRe.FindStringSubmatch(s); m != nil {
		return domain.ChannelRef{ID: m[1], Name: m[2]}, nil
	}
	if IsChannelID(s) {
		return domain.ChannelRef{ID: s}, nil
	}
	name := strings.TrimPrefix(s, "#")
	if name == "" {
		return domain.ChannelRef{}, domain.Errorf(domain.KindInvalidArgument, "empty channel reference")
	}

	var found []slack.Channel
	for page, err := range slackapi.NewPaginator(r.api.Conversations(conversationTypes), 0).Pages(ctx) {
		if err != nil {
			return domain.ChannelRef{}, err
		}
		for _, ch := range page.Items {
			if ch.Name == name {
				found = append(found, ch)
			}
		}
	}
	switch len(found) {
	case 0:
		return domain.ChannelRef{}, domain.Errorf(domain.KindNotFound, "channel #%s not found", name)
	case 1:
		r.logger.Debug("channel resolved", zap.String("name", name), zap.String("id", found[0].ID))
		return domain.ChannelRef{Name: name, ID: found[0].ID}, nil
	}
	ids := make([]string, 0, len(found))
	for _, ch := range found {
		ids = append(ids, ch.ID)
	}
	return domain.ChannelRef{}, domain.Errorf(domain.KindNotFound,
		"channel #%s is ambiguous: %s", name, candidates(ids))
}

// User resolves "<@U123>", a user ID, an email address, "@handle" or
// "handle". Handles match the account name first, then the display name.
func (r *Resolver) User(ctx context.Context, raw string) (domain.UserRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.UserRef{}, domain.Errorf(domain.KindInvalidArgument, "empty user reference")
	}
	if m := userMentionRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if IsUserID(s) {
		u, err := r.api.UserInfo(ctx, s)
		if err != nil {
			return domain.UserRef{}, err
		}
		return domain.UserRef{ID: u.ID, Handle: u.Name}, nil
	}
	if strings.Contains(s, "@") && !strings.HasPrefix(s, "@") {
		u, err := r.api.UserByEmail(ctx, s)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return domain.UserRef{}, domain.Wrap(domain.KindNotFound, err, "no user with email "+s)
			}
			return domain.UserRef{}, err
		}
		return domain.UserRef{ID: u.ID, Handle: u.Name}, nil
	}

	handle := strings.TrimPrefix(s, "@")
	if handle == "" {
		return domain.UserRef{}, domain.Errorf(domain.KindInvalidArgument, "empty user reference")
	}
	var byName, byDisplay []slack.User
	for page, err := range slackapi.NewPaginator(r.api.Users(), 0).Pages(ctx) {
		if err != nil {
			return domain.UserRef{}, err
		}
		for _, u := range page.Items {
			if u.Deleted {
				continue
			}
			if u.Name == handle {
				byName = append(byName, u)
			} else if u.Profile.DisplayName == handle {
				byDisplay = append(byDisplay, u)
			}
		}
	}
	matches := byName
	if len(matches) == 0 {
		matches = byDisplay
	}
	switch len(matches) {
	case 0:
		return domain.UserRef{}, domain.Errorf(domain.KindNotFound, "user @%s not found", handle)
	case 1:
		return domain.UserRef{Handle: handle, ID: matches[0].ID}, nil
	}
	ids := make([]string, 0, len(matches))
	for _, u := range matches {
		ids = append(ids, u.ID)
	}
	return domain.UserRef{}, domain.Errorf(domain.KindNotFound,
		"user @%s is ambiguous: %s", handle, candidates(ids))
}

// ChannelName returns the name of a conversation ID. Direct messages have
// none and yield the empty string.
func (r *Resolver) ChannelName(ctx context.Context, id string) (string, error) {
	ch, err := r.api.ConversationInfo(ctx, id)
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (r *Resolver) UserName(ctx context.Context, id string) (string, error) {
	u, err := r.api.UserInfo(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func candidates(ids []string) string {
	if len(ids) > maxCandidates {
		return strings.Join(ids[:maxCandidates], ", ") + ", ..."
	}
	return strings.Join(ids, ", ")
}
