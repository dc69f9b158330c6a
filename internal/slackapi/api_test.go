package slackapi

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackmcp/internal/domain"
	"slackmcp/internal/fakeslack"
)

func newTestAPI(t *testing.T) (*API, *fakeslack.Server) {
	t.Helper()
	srv := fakeslack.New(t)
	c, _ := newTestClient(t, srv.APIBase())
	return NewAPI(c), srv
}

// --- Reads ---

func TestHistory_Params(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("conversations.history", fakeslack.Cursor(map[string]any{
		"messages": []any{fakeslack.Msg("1700000002.000000", "U1", "b"), fakeslack.Msg("1700000001.000000", "U2", "a")},
	}, "abc"))

	page, err := api.History("C1", HistoryWindow{Oldest: "1.0", Latest: "2.0", Inclusive: true})(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "abc", page.Next)

	form := srv.Calls("conversations.history")[0].Form
	assert.Equal(t, "C1", form.Get("channel"))
	assert.Equal(t, "50", form.Get("limit"))
	assert.Equal(t, "1.0", form.Get("oldest"))
	assert.Equal(t, "2.0", form.Get("latest"))
	assert.Equal(t, "true", form.Get("inclusive"))
	assert.Empty(t, form.Get("cursor"))
}

func TestSearchMessages_OffsetPaging(t *testing.T) {
	api, srv := newTestAPI(t)
	const total = 23
	srv.On("search.messages", func(form url.Values) fakeslack.Response {
		count, _ := strconv.Atoi(form.Get("count"))
		page, _ := strconv.Atoi(form.Get("page"))
		var matches []map[string]any
		for i := (page - 1) * count; i < page*count && i < total; i++ {
			ts := strconv.Itoa(1700000000+i) + ".000000"
			matches = append(matches, fakeslack.Match("C1", "general", ts, "U1", "m"+strconv.Itoa(i), ""))
		}
		pages := (total + count - 1) / count
		return fakeslack.OK(fakeslack.SearchBody(total, page, pages, matches...))
	})

	var texts []string
	cursor := ""
	for {
		got, err := NewPaginator(api.SearchMessages(SearchParams{Query: "m"}), 7).From(cursor).Collect(context.Background())
		require.NoError(t, err)
		for _, m := range got.Items {
			texts = append(texts, m.Text)
		}
		assert.Equal(t, total, got.Total)
		if got.Next == "" {
			break
		}
		cursor = got.Next
	}
	require.Len(t, texts, total)
	for i, txt := range texts {
		assert.Equal(t, "m"+strconv.Itoa(i), txt)
	}

	form := srv.Calls("search.messages")[0].Form
	assert.Equal(t, "score", form.Get("sort"))
	assert.Equal(t, "desc", form.Get("sort_dir"))
}

func TestSearchMessages_BadCursor(t *testing.T) {
	api, _ := newTestAPI(t)
	_, err := api.SearchMessages(SearchParams{Query: "x"})(context.Background(), "page-two", 0)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
}

func TestSearchFiles(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("search.files", map[string]any{
		"files": map[string]any{
			"matches": []any{map[string]any{
				"id": "F1", "name": "report.pdf", "title": "Q3", "filetype": "pdf", "user": "U1",
				"created": 1700000000, "permalink": "https://acme.slack.com/files/U1/F1/report.pdf",
				"channels": []string{"C1"},
			}},
			"total":  1,
			"paging": map[string]any{"count": 20, "total": 1, "page": 1, "pages": 1},
		},
	})

	page, err := api.SearchFiles(SearchParams{Query: "report", Sort: "timestamp"})(context.Background(), "", 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	f := ToFile(page.Items[0])
	assert.Equal(t, "F1", f.ID)
	assert.Equal(t, "pdf", f.FileType)
	assert.Equal(t, "2023-11-14T22:13:20Z", f.Created)
	assert.Equal(t, []string{"C1"}, f.Channels)
	assert.Empty(t, page.Next)
	assert.Equal(t, "timestamp", srv.Calls("search.files")[0].Form.Get("sort"))
}

// --- Writes ---

func TestPostMessage(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("chat.postMessage", map[string]any{"channel": "C1", "ts": "1700000000.000100"})

	ch, ts, err := api.PostMessage(context.Background(), "C1", "hello", "1700000000.000001")
	require.NoError(t, err)
	assert.Equal(t, "C1", ch)
	assert.Equal(t, "1700000000.000100", ts)
	form := srv.Calls("chat.postMessage")[0].Form
	assert.Equal(t, "hello", form.Get("text"))
	assert.Equal(t, "1700000000.000001", form.Get("thread_ts"))
}

func TestCommand_AddsSlash(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("chat.command", nil)
	require.NoError(t, api.Command(context.Background(), "C1", "remind", "me in 5m"))
	assert.Equal(t, "/remind", srv.Calls("chat.command")[0].Form.Get("command"))
}

func TestAddReaction_TrimsColons(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("reactions.add", nil)
	require.NoError(t, api.AddReaction(context.Background(), "C1", "1.000001", ":thumbsup:"))
	form := srv.Calls("reactions.add")[0].Form
	assert.Equal(t, "thumbsup", form.Get("name"))
	assert.Equal(t, "1.000001", form.Get("timestamp"))
}

func TestOpenIM(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("conversations.open", map[string]any{"channel": map[string]any{"id": "D123"}})
	id, err := api.OpenIM(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "D123", id)
	assert.Equal(t, "U1", srv.Calls("conversations.open")[0].Form.Get("users"))
}

// --- Wire conversion ---

func TestToMessage_ParentDropsOwnThreadTS(t *testing.T) {
	var parent WireMessage
	parent.Timestamp = "1700000000.000100"
	parent.ThreadTimestamp = "1700000000.000100"
	parent.User = "U1"
	parent.ReplyCount = 3

	m := ToMessage(parent, "C1")
	assert.Empty(t, m.ThreadRootID)
	assert.Equal(t, "C1", m.ChannelID)
	assert.Equal(t, 3, m.ReplyCount)
	assert.Equal(t, "2023-11-14T22:13:20Z", m.Time)

	var reply WireMessage
	reply.Timestamp = "1700000000.000200"
	reply.ThreadTimestamp = "1700000000.000100"
	reply.BotID = "B1"
	m = ToMessage(reply, "C1")
	assert.Equal(t, "1700000000.000100", m.ThreadRootID)
	assert.Equal(t, "B1", m.AuthorID)
}

func TestMatchToMessage_ThreadFromPermalink(t *testing.T) {
	var hit SearchMatch
	hit.Timestamp = "1700000000.000200"
	hit.Channel = slack.CtxChannel{ID: "C1", Name: "general"}
	hit.Permalink = "https://acme.slack.com/archives/C1/p1700000000000200?thread_ts=1700000000.000100&cid=C1"

	m := MatchToMessage(hit)
	assert.Equal(t, "1700000000.000100", m.ThreadRootID)
	assert.Equal(t, "general", m.ChannelName)
	assert.Equal(t, hit.Permalink, m.Permalink)
}

func TestPermalink(t *testing.T) {
	assert.Equal(t, "https://acme.slack.com/archives/C1/p1700000000000100",
		Permalink("https://acme.slack.com/", "C1", "1700000000.000100", ""))
	assert.Equal(t, "https://acme.slack.com/archives/C1/p1700000000000200?thread_ts=1700000000.000100&cid=C1",
		Permalink("https://acme.slack.com", "C1", "1700000000.000200", "1700000000.000100"))
	assert.Empty(t, Permalink("", "C1", "1.0", ""))
}

// --- Session ---

func TestSession_InitOnce(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("auth.test", map[string]any{"user_id": "U1", "user": "alice", "url": "https://acme.slack.com/"})
	s := NewSession(api, nil)

	_, err := s.Identity(context.Background())
	assert.Error(t, err, "not initialized yet")

	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Init(context.Background()))
	id, err := s.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", id.User)
	assert.Equal(t, 1, srv.CallCount("auth.test"))
}

func TestSession_FailedInitIsSticky(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Sequence("auth.test", fakeslack.Fail("invalid_auth"), fakeslack.OK(map[string]any{"user_id": "U1"}))
	s := NewSession(api, nil)

	assert.True(t, domain.IsKind(s.Init(context.Background()), domain.KindAuthExpired))
	_, err := s.Identity(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindAuthExpired))
	assert.Equal(t, 1, srv.CallCount("auth.test"))
}

func TestSession_TransientInitFailureRecovers(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Sequence("auth.test", fakeslack.Fail("fatal_error"), fakeslack.OK(map[string]any{"user_id": "U1"}))
	s := NewSession(api, nil)

	assert.True(t, domain.IsKind(s.Init(context.Background()), domain.KindUpstreamError))
	id, err := s.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "U1", id.UserID)

	_, err = s.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, srv.CallCount("auth.test"), "recovered identity is cached")
}

func TestSession_RefreshIsLive(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("auth.test", map[string]any{"user_id": "U2", "user": "bob"})
	s := NewSession(api, nil)
	s.SetIdentity(domain.Identity{UserID: "U1", User: "alice"})

	id, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "U2", id.UserID)
	cached, _ := s.Identity(context.Background())
	assert.Equal(t, "U2", cached.UserID)

	srv.On("auth.test", func(url.Values) fakeslack.Response { return fakeslack.Fail("invalid_auth") })
	_, err = s.Refresh(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindAuthExpired))
	cached, err = s.Identity(context.Background())
	require.NoError(t, err, "an expired refresh keeps the last known identity")
	assert.Equal(t, "bob", cached.User)
	assert.Equal(t, 2, srv.CallCount("auth.test"))
}

func TestSession_PerRequestCredentialsNotCached(t *testing.T) {
	api, srv := newTestAPI(t)
	srv.Reply("auth.test", map[string]any{"user_id": "U9"})
	s := NewSession(api, nil)
	s.SetIdentity(domain.Identity{UserID: "U1"})

	ctx := WithCredentials(context.Background(), Credentials{WebToken: "xoxc-req", CookieToken: "xoxd-req"})
	for range 2 {
		id, err := s.Identity(ctx)
		require.NoError(t, err)
		assert.Equal(t, "U9", id.UserID)
	}
	assert.Equal(t, 2, srv.CallCount("auth.test"))

	id, err := s.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "U1", id.UserID)
}
