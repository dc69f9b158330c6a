package slackapi

import (
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"slackmcp/internal/domain"
)

// WireMessage is a timeline message. Permalink is only set by some methods.
type WireMessage struct {
	slack.Msg
	Permalink string `json:"permalink,omitempty"`
}

// SearchMatch is a search.messages hit. Slack omits thread_ts on most
// matches; the permalink's query string carries it instead.
type SearchMatch struct {
	slack.SearchMessage
	ThreadTimestamp string `json:"thread_ts,omitempty"`
}

type historyResponse struct {
	slack.SlackResponse
	Messages []WireMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

type searchMessagesResponse struct {
	slack.SlackResponse
	Query    string `json:"query"`
	Messages struct {
		Matches []SearchMatch `json:"matches"`
		Paging  slack.Paging  `json:"paging"`
		Total   int           `json:"total"`
	} `json:"messages"`
}

type searchFilesResponse struct {
	slack.SlackResponse
	Files struct {
		Matches []slack.File `json:"matches"`
		Paging  slack.Paging `json:"paging"`
		Total   int          `json:"total"`
	} `json:"files"`
}

type conversationsListResponse struct {
	slack.SlackResponse
	Channels []slack.Channel `json:"channels"`
}

type conversationResponse struct {
	slack.SlackResponse
	Channel slack.Channel `json:"channel"`
}

type usersListResponse struct {
	slack.SlackResponse
	Members []slack.User `json:"members"`
}

type userResponse struct {
	slack.SlackResponse
	User slack.User `json:"user"`
}

type authTestResponse struct {
	slack.SlackResponse
	slack.AuthTestResponse
}

type postMessageResponse struct {
	slack.SlackResponse
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"`
}

// ToMessage converts a timeline message of channelID.
func ToMessage(m WireMessage, channelID string) domain.Message {
	if m.Channel != "" {
		channelID = m.Channel
	}
	author := m.User
	if author == "" {
		author = m.BotID
	}
	return newMessage(messageFields{
		ts:        m.Timestamp,
		threadTS:  m.ThreadTimestamp,
		channelID: channelID,
		authorID:  author,
		author:    m.Username,
		text:      m.Text,
		replies:   m.ReplyCount,
		permalink: m.Permalink,
	})
}

// MatchToMessage converts a search hit.
func MatchToMessage(m SearchMatch) domain.Message {
	threadTS := m.ThreadTimestamp
	if threadTS == "" {
		threadTS = threadTSFromPermalink(m.Permalink)
	}
	msg := newMessage(messageFields{
		ts:        m.Timestamp,
		threadTS:  threadTS,
		channelID: m.Channel.ID,
		authorID:  m.User,
		author:    m.Username,
		text:      m.Text,
		permalink: m.Permalink,
	})
	msg.ChannelName = m.Channel.Name
	return msg
}

// ToFile converts a search.files hit.
func ToFile(f slack.File) domain.File {
	out := domain.File{
		ID:        f.ID,
		Name:      f.Name,
		Title:     f.Title,
		FileType:  f.Filetype,
		AuthorID:  f.User,
		Permalink: f.Permalink,
		Channels:  append(f.Channels, f.Groups...),
	}
	if created := f.Created.Time(); created.Unix() > 0 {
		out.Created = created.UTC().Format(time.RFC3339)
	}
	return out
}

type messageFields struct {
	ts        string
	threadTS  string
	channelID string
	authorID  string
	author    string
	text      string
	permalink string
	replies   int
}

func newMessage(f messageFields) domain.Message {
	msg := domain.Message{
		ID:         f.ts,
		ChannelID:  f.channelID,
		AuthorID:   f.authorID,
		AuthorName: f.author,
		Timestamp:  f.ts,
		Text:       f.text,
		ReplyCount: f.replies,
		Permalink:  f.permalink,
	}
	if t := domain.TSTime(f.ts); !t.IsZero() {
		msg.Time = t.Format(time.RFC3339)
	}
	// A parent carries its own ts as thread_ts; only replies keep it.
	if f.threadTS != "" && f.threadTS != f.ts {
		msg.ThreadRootID = f.threadTS
	}
	return msg
}

func threadTSFromPermalink(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	ts, err := domain.NormalizeTS(u.Query().Get("thread_ts"))
	if err != nil {
		return ""
	}
	return ts
}

// Permalink builds a message link under a workspace URL such as
// "https://acme.slack.com/". Replies get thread_ts and cid like Slack's own.
func Permalink(workspaceURL, channelID, ts, threadTS string) string {
	if workspaceURL == "" || channelID == "" || ts == "" {
		return ""
	}
	link := strings.TrimRight(workspaceURL, "/") + "/archives/" + channelID + "/p" + domain.PackTS(ts)
	if threadTS != "" && threadTS != ts {
		link += "?thread_ts=" + threadTS + "&cid=" + channelID
	}
	return link
}
