package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Errors ---

func TestKindOf_Classified(t *testing.T) {
	err := Errorf(KindNotFound, "channel %q not found", "ops")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, `channel "ops" not found`, err.Error())
}

func TestKindOf_WrappedKeepsOuterKind(t *testing.T) {
	inner := Errorf(KindNotFound, "user not found")
	outer := Wrap(KindUnresolvedReference, inner, "resolve from:")
	assert.Equal(t, KindUnresolvedReference, KindOf(outer))
	assert.True(t, errors.Is(outer, inner))
	assert.Equal(t, "resolve from:: user not found", outer.Error())
}

func TestKindOf_FmtWrapped(t *testing.T) {
	err := fmt.Errorf("history: %w", Errorf(KindRateLimited, "slow down"))
	assert.True(t, IsKind(err, KindRateLimited))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindUpstreamError, KindOf(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(KindUpstreamError, nil, "x"))
}

// --- Timestamps ---

func TestNormalizeTS(t *testing.T) {
	got, err := NormalizeTS("1700000000000100")
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000100", got)

	got, err = NormalizeTS(" 1700000000.000100 ")
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000100", got)

	for _, bad := range []string{"", "abc", "170000000.000100", "17000000000001000", "1700000000.1"} {
		_, err := NormalizeTS(bad)
		assert.True(t, IsKind(err, KindInvalidArgument), bad)
	}
}

func TestPackTS(t *testing.T) {
	assert.Equal(t, "1700000000000100", PackTS("1700000000.000100"))
}

func TestCompareTS_Numeric(t *testing.T) {
	assert.Equal(t, -1, CompareTS("1700000000.000009", "1700000000.000010"))
	assert.Equal(t, 1, CompareTS("1700000001.000000", "1700000000.999999"))
	assert.Equal(t, 0, CompareTS("1700000000.5", "1700000000.500000"))
	// 999999999 < 1000000000 numerically but not lexically
	assert.Equal(t, -1, CompareTS("999999999.000000", "1000000000.000000"))
}

func TestCompareTS_Unparseable(t *testing.T) {
	assert.Equal(t, -1, CompareTS("bogus", "1700000000.000000"))
	assert.Equal(t, 1, CompareTS("1700000000.000000", "bogus"))
}

func TestTSTime(t *testing.T) {
	got := TSTime("1700000000.000100")
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 100000, time.UTC), got)
	assert.True(t, TSTime("nope").IsZero())
	assert.Equal(t, "1700000000.000100", UnixTS(got))
}

// --- Identifiers ---

func TestIdentifierValid(t *testing.T) {
	assert.False(t, ChannelRef{}.Valid())
	assert.True(t, ChannelRef{ID: "C123"}.Valid())
	assert.False(t, UserRef{}.Valid())
	assert.True(t, UserRef{Handle: "alice"}.Valid())
	assert.False(t, MessageRef{ChannelID: "C1"}.Valid())
	assert.True(t, MessageRef{ChannelID: "C1", TS: "1.2"}.Valid())

	var ids []Identifier = []Identifier{ChannelRef{}, UserRef{}, MessageRef{}}
	assert.Equal(t, "channel", ids[0].Kind())
	assert.Equal(t, "user", ids[1].Kind())
	assert.Equal(t, "message", ids[2].Kind())
}

func TestChannelRefLabel(t *testing.T) {
	assert.Equal(t, "#general", ChannelRef{Name: "general", ID: "C1"}.Label())
	assert.Equal(t, "C1", ChannelRef{ID: "C1"}.Label())
}

func TestMessageIsReply(t *testing.T) {
	assert.False(t, Message{Timestamp: "1.1"}.IsReply())
	assert.False(t, Message{Timestamp: "1.1", ThreadRootID: "1.1"}.IsReply())
	assert.True(t, Message{Timestamp: "1.2", ThreadRootID: "1.1"}.IsReply())
}

func TestIdentityLabel(t *testing.T) {
	assert.Equal(t, "alice (U1)", Identity{User: "alice", UserID: "U1"}.Label())
	assert.Equal(t, "U1", Identity{UserID: "U1"}.Label())
	assert.Equal(t, "unknown", Identity{}.Label())
}
