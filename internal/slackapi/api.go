package slackapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"slackmcp/internal/domain"
)

// Upper page sizes per method family.
const (
	historyPageMax = 200
	listPageMax    = 1000
	usersPageMax   = 200
	searchPageMax  = 100
)

// API is the typed surface over a Caller.
type API struct {
	c Caller
}

func NewAPI(c Caller) *API { return &API{c: c} }

func (a *API) AuthTest(ctx context.Context) (domain.Identity, error) {
	var resp authTestResponse
	if err := a.c.Call(ctx, "auth.test", nil, &resp); err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		UserID: resp.UserID,
		User:   resp.User,
		TeamID: resp.TeamID,
		Team:   resp.Team,
		URL:    resp.URL,
	}, nil
}

// HistoryWindow bounds a conversations.history walk. Oldest and Latest are
// Slack timestamps; empty means unbounded.
type HistoryWindow struct {
	Oldest    string
	Latest    string
	Inclusive bool
}

// History pages a channel's timeline, newest first.
func (a *API) History(channelID string, w HistoryWindow) PageFunc[WireMessage] {
	return func(ctx context.Context, cursor string, want int) (Page[WireMessage], error) {
		params := url.Values{
			"channel": {channelID},
			"limit":   {strconv.Itoa(pageSize(want, historyPageMax))},
		}
		setIf(params, "cursor", cursor)
		setIf(params, "oldest", w.Oldest)
		setIf(params, "latest", w.Latest)
		if w.Inclusive {
			params.Set("inclusive", "true")
		}
		var resp historyResponse
		if err := a.c.Call(ctx, "conversations.history", params, &resp); err != nil {
			return Page[WireMessage]{}, err
		}
		return Page[WireMessage]{Items: resp.Messages, Next: resp.ResponseMetadata.Cursor}, nil
	}
}

// Replies pages a thread. Slack repeats the parent at the top of every page.
func (a *API) Replies(channelID, threadTS string) PageFunc[WireMessage] {
	return func(ctx context.Context, cursor string, want int) (Page[WireMessage], error) {
		params := url.Values{
			"channel": {channelID},
			"ts":      {threadTS},
			"limit":   {strconv.Itoa(pageSize(want, historyPageMax))},
		}
		setIf(params, "cursor", cursor)
		var resp historyResponse
		if err := a.c.Call(ctx, "conversations.replies", params, &resp); err != nil {
			return Page[WireMessage]{}, err
		}
		return Page[WireMessage]{Items: resp.Messages, Next: resp.ResponseMetadata.Cursor}, nil
	}
}

// Conversations pages conversations.list for the given types.
func (a *API) Conversations(types string) PageFunc[slack.Channel] {
	return func(ctx context.Context, cursor string, want int) (Page[slack.Channel], error) {
		params := url.Values{
			"types":            {types},
			"exclude_archived": {"true"},
			"limit":            {strconv.Itoa(pageSize(want, listPageMax))},
		}
		setIf(params, "cursor", cursor)
		var resp conversationsListResponse
		if err := a.c.Call(ctx, "conversations.list", params, &resp); err != nil {
			return Page[slack.Channel]{}, err
		}
		return Page[slack.Channel]{Items: resp.Channels, Next: resp.ResponseMetadata.Cursor}, nil
	}
}

func (a *API) Users() PageFunc[slack.User] {
	return func(ctx context.Context, cursor string, want int) (Page[slack.User], error) {
		params := url.Values{"limit": {strconv.Itoa(pageSize(want, usersPageMax))}}
		setIf(params, "cursor", cursor)
		var resp usersListResponse
		if err := a.c.Call(ctx, "users.list", params, &resp); err != nil {
			return Page[slack.User]{}, err
		}
		return Page[slack.User]{Items: resp.Members, Next: resp.ResponseMetadata.Cursor}, nil
	}
}

// SearchParams is a translated search request.
type SearchParams struct {
	Query   string
	Sort    string // "timestamp" | "score"
	SortDir string // "asc" | "desc"
}

// SearchMessages pages search.messages. Cursors are absolute result offsets,
// so a walk can resume exactly regardless of the page size used before.
func (a *API) SearchMessages(p SearchParams) PageFunc[SearchMatch] {
	return func(ctx context.Context, cursor string, want int) (Page[SearchMatch], error) {
		offset, err := parseOffset(cursor)
		if err != nil {
			return Page[SearchMatch]{}, err
		}
		size := pageSize(want, searchPageMax)
		var resp searchMessagesResponse
		if err := a.c.Call(ctx, "search.messages", searchValues(p, offset, size), &resp); err != nil {
			return Page[SearchMatch]{}, err
		}
		total := resp.Messages.Total
		if resp.Messages.Paging.Total > total {
			total = resp.Messages.Paging.Total
		}
		items, next := window(resp.Messages.Matches, offset, size, want, total)
		return Page[SearchMatch]{Items: items, Next: next, Total: total}, nil
	}
}

func (a *API) SearchFiles(p SearchParams) PageFunc[slack.File] {
	return func(ctx context.Context, cursor string, want int) (Page[slack.File], error) {
		offset, err := parseOffset(cursor)
		if err != nil {
			return Page[slack.File]{}, err
		}
		size := pageSize(want, searchPageMax)
		var resp searchFilesResponse
		if err := a.c.Call(ctx, "search.files", searchValues(p, offset, size), &resp); err != nil {
			return Page[slack.File]{}, err
		}
		total := resp.Files.Total
		if resp.Files.Paging.Total > total {
			total = resp.Files.Paging.Total
		}
		items, next := window(resp.Files.Matches, offset, size, want, total)
		return Page[slack.File]{Items: items, Next: next, Total: total}, nil
	}
}

func searchValues(p SearchParams, offset, size int) url.Values {
	sort := p.Sort
	if sort == "" {
		sort = slack.DEFAULT_SEARCH_SORT
	}
	dir := p.SortDir
	if dir == "" {
		dir = slack.DEFAULT_SEARCH_SORT_DIR
	}
	return url.Values{
		"query":    {p.Query},
		"sort":     {sort},
		"sort_dir": {dir},
		"count":    {strconv.Itoa(size)},
		"page":     {strconv.Itoa(offset/size + 1)},
	}
}

// window cuts the page fetched for offset down to the requested items and
// computes the next offset cursor.
func window[T any](matches []T, offset, size, want, total int) ([]T, string) {
	skip := offset % size
	if skip >= len(matches) {
		return nil, ""
	}
	avail := matches[skip:]
	items := avail
	if want > 0 && len(items) > want {
		items = items[:want]
	}
	end := offset + len(items)
	// A short page that was fully consumed means the upstream ran dry even
	// if its total says otherwise.
	drained := len(items) == len(avail) && len(matches) < size
	if (total > 0 && end >= total) || drained {
		return items, ""
	}
	return items, strconv.Itoa(end)
}

func parseOffset(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, domain.Errorf(domain.KindInvalidArgument, "invalid search cursor %q", cursor)
	}
	return n, nil
}

func (a *API) ConversationInfo(ctx context.Context, channelID string) (slack.Channel, error) {
	var resp conversationResponse
	err := a.c.Call(ctx, "conversations.info", url.Values{"channel": {channelID}}, &resp)
	return resp.Channel, err
}

func (a *API) UserInfo(ctx context.Context, userID string) (slack.User, error) {
	var resp userResponse
	err := a.c.Call(ctx, "users.info", url.Values{"user": {userID}}, &resp)
	return resp.User, err
}

func (a *API) UserByEmail(ctx context.Context, email string) (slack.User, error) {
	var resp userResponse
	err := a.c.Call(ctx, "users.lookupByEmail", url.Values{"email": {email}}, &resp)
	return resp.User, err
}

// PostMessage posts text, optionally as a thread reply, and returns the
// channel and ts Slack assigned.
func (a *API) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, string, error) {
	params := url.Values{"channel": {channelID}, "text": {text}}
	setIf(params, "thread_ts", threadTS)
	var resp postMessageResponse
	if err := a.c.Call(ctx, "chat.postMessage", params, &resp); err != nil {
		return "", "", err
	}
	return resp.Channel, resp.Timestamp, nil
}

// Command runs a slash command in a channel. The command may be given with
// or without its leading slash.
func (a *API) Command(ctx context.Context, channelID, command, text string) error {
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	params := url.Values{"channel": {channelID}, "command": {command}}
	setIf(params, "text", text)
	return a.c.Call(ctx, "chat.command", params, nil)
}

func (a *API) AddReaction(ctx context.Context, channelID, ts, name string) error {
	params := url.Values{
		"channel":   {channelID},
		"timestamp": {ts},
		"name":      {strings.Trim(name, ":")},
	}
	return a.c.Call(ctx, "reactions.add", params, nil)
}

func (a *API) Join(ctx context.Context, channelID string) (slack.Channel, error) {
	var resp conversationResponse
	err := a.c.Call(ctx, "conversations.join", url.Values{"channel": {channelID}}, &resp)
	return resp.Channel, err
}

// OpenIM opens (or returns the existing) direct message channel with userID.
func (a *API) OpenIM(ctx context.Context, userID string) (string, error) {
	var resp conversationResponse
	if err := a.c.Call(ctx, "conversations.open", url.Values{"users": {userID}}, &resp); err != nil {
		return "", err
	}
	if resp.Channel.ID == "" {
		return "", fmt.Errorf("conversations.open: no channel returned for %s", userID)
	}
	return resp.Channel.ID, nil
}

func pageSize(want, max int) int {
	if want <= 0 || want > max {
		return max
	}
	return want
}

func setIf(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}
