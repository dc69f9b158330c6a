package resolve

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackmcp/internal/domain"
	"slackmcp/internal/fakeslack"
	"slackmcp/internal/slackapi"
)

func newTestResolver(t *testing.T) (*Resolver, *fakeslack.Server) {
	t.Helper()
	srv := fakeslack.New(t)
	c := slackapi.NewClient(slackapi.ClientConfig{
		APIBase:     srv.APIBase(),
		Credentials: slackapi.Credentials{WebToken: "xoxc-test", CookieToken: "xoxd-test"},
		Budget:      slackapi.NewBudget(1000, 600000),
		MaxAttempts: 1,
		BaseBackoff: time.Millisecond,
	})
	return New(slackapi.NewAPI(c), nil), srv
}

func channel(id, name string) map[string]any { return map[string]any{"id": id, "name": name} }

func member(id, name, display string, deleted bool) map[string]any {
	return map[string]any{
		"id": id, "name": name, "deleted": deleted,
		"profile": map[string]any{"display_name": display},
	}
}

// --- Channels ---

func TestChannel_IDPassthrough(t *testing.T) {
	r, srv := newTestResolver(t)
	for _, raw := range []string{"C0123ABCD", "G0123ABCD", "D0123ABCD"} {
		ref, err := r.Channel(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, raw, ref.ID)
	}
	assert.Empty(t, srv.Methods(), "IDs need no lookup")
}

func TestChannel_MentionMarkup(t *testing.T) {
	r, _ := newTestResolver(t)
	ref, err := r.Channel(context.Background(), "<#C0123ABCD|general>")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelRef{ID: "C0123ABCD", Name: "general"}, ref)
}

func TestChannel_NameScansAllPages(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Sequence("conversations.list",
		fakeslack.OK(fakeslack.Cursor(map[string]any{"channels": []any{channel("C0000001", "random")}}, "next")),
		fakeslack.OK(fakeslack.Cursor(map[string]any{"channels": []any{channel("C0000002", "general")}}, "")),
	)

	ref, err := r.Channel(context.Background(), "#general")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelRef{Name: "general", ID: "C0000002"}, ref)

	calls := srv.Calls("conversations.list")
	require.Len(t, calls, 2)
	assert.Equal(t, "public_channel,private_channel", calls[0].Form.Get("types"))
	assert.Equal(t, "next", calls[1].Form.Get("cursor"))
}

func TestChannel_ExactMatchOnly(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("conversations.list", map[string]any{"channels": []any{
		channel("C0000001", "General"), channel("C0000002", "general-chat"),
	}})

	_, err := r.Channel(context.Background(), "general")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestChannel_Ambiguous(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("conversations.list", map[string]any{"channels": []any{
		channel("C0000001", "ops"), channel("G0000002", "ops"),
	}})

	_, err := r.Channel(context.Background(), "ops")
	require.True(t, domain.IsKind(err, domain.KindNotFound))
	assert.Contains(t, err.Error(), "C0000001")
	assert.Contains(t, err.Error(), "G0000002")
}

func TestChannel_Empty(t *testing.T) {
	r, _ := newTestResolver(t)
	for _, raw := range []string{"", "  ", "#"} {
		_, err := r.Channel(context.Background(), raw)
		assert.True(t, domain.IsKind(err, domain.KindInvalidArgument), raw)
	}
}

// --- Users ---

func TestUser_IDConfirmed(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("users.info", map[string]any{"user": member("U0123ABCD", "alice", "Alice", false)})

	for _, raw := range []string{"U0123ABCD", "<@U0123ABCD>", "<@U0123ABCD|alice>"} {
		ref, err := r.User(context.Background(), raw)
		require.NoError(t, err, raw)
		assert.Equal(t, domain.UserRef{ID: "U0123ABCD", Handle: "alice"}, ref)
	}
	assert.Equal(t, "U0123ABCD", srv.Calls("users.info")[0].Form.Get("user"))
}

func TestUser_UnknownID(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.On("users.info", func(_ url.Values) fakeslack.Response { return fakeslack.Fail("user_not_found") })

	_, err := r.User(context.Background(), "U0000000")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestUser_Email(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("users.lookupByEmail", map[string]any{"user": member("U0000009", "bob", "", false)})

	ref, err := r.User(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "U0000009", ref.ID)
	assert.Equal(t, "bob@example.com", srv.Calls("users.lookupByEmail")[0].Form.Get("email"))
}

func TestUser_EmailNotFound(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.On("users.lookupByEmail", func(_ url.Values) fakeslack.Response { return fakeslack.Fail("users_not_found") })

	_, err := r.User(context.Background(), "ghost@example.com")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestUser_HandlePrefersAccountName(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("users.list", map[string]any{"members": []any{
		member("U0000001", "carol.w", "alice", false),
		member("U0000002", "alice", "Alice W", false),
	}})

	ref, err := r.User(context.Background(), "@alice")
	require.NoError(t, err)
	assert.Equal(t, "U0000002", ref.ID)
}

func TestUser_HandleFallsBackToDisplayName(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("users.list", map[string]any{"members": []any{
		member("U0000001", "carol.w", "caz", false),
	}})

	ref, err := r.User(context.Background(), "caz")
	require.NoError(t, err)
	assert.Equal(t, domain.UserRef{Handle: "caz", ID: "U0000001"}, ref)
}

func TestUser_SkipsDeleted(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("users.list", map[string]any{"members": []any{
		member("U0000001", "dave", "", true),
	}})

	_, err := r.User(context.Background(), "dave")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestUser_AmbiguousDisplayName(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("users.list", map[string]any{"members": []any{
		member("U0000001", "sam.a", "sam", false),
		member("U0000002", "sam.b", "sam", false),
	}})

	_, err := r.User(context.Background(), "sam")
	require.True(t, domain.IsKind(err, domain.KindNotFound))
	assert.Contains(t, err.Error(), "ambiguous")
}

// --- Reverse lookups ---

func TestReverseLookups(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.Reply("conversations.info", map[string]any{"channel": channel("C0000001", "general")})
	srv.Reply("users.info", map[string]any{"user": member("U0000001", "alice", "", false)})

	name, err := r.ChannelName(context.Background(), "C0000001")
	require.NoError(t, err)
	assert.Equal(t, "general", name)

	name, err = r.UserName(context.Background(), "U0000001")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestReverseLookup_Unknown(t *testing.T) {
	r, srv := newTestResolver(t)
	srv.On("conversations.info", func(_ url.Values) fakeslack.Response { return fakeslack.Fail("channel_not_found") })

	_, err := r.ChannelName(context.Background(), "C9999999")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}
