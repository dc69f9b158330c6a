package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackmcp/internal/domain"
)

func TestParsePermalink_Valid(t *testing.T) {
	tests := []struct {
		name string
		link string
		want domain.MessageRef
	}{
		{
			name: "top-level message",
			link: "https://acme.slack.com/archives/C0123ABCD/p1700000000000100",
			want: domain.MessageRef{ChannelID: "C0123ABCD", TS: "1700000000.000100"},
		},
		{
			name: "reply with packed thread_ts",
			link: "https://acme.slack.com/archives/C0123ABCD/p1700000000000200?thread_ts=1700000000000100&cid=C0123ABCD",
			want: domain.MessageRef{ChannelID: "C0123ABCD", TS: "1700000000.000200", ThreadTS: "1700000000.000100"},
		},
		{
			name: "reply with dotted thread_ts",
			link: "https://acme.slack.com/archives/C0123ABCD/p1700000000000200?thread_ts=1700000000.000100",
			want: domain.MessageRef{ChannelID: "C0123ABCD", TS: "1700000000.000200", ThreadTS: "1700000000.000100"},
		},
		{
			name: "enterprise subdomain and DM",
			link: "http://acme.enterprise.slack.com/archives/D0123ABCD/p1700000000000100",
			want: domain.MessageRef{ChannelID: "D0123ABCD", TS: "1700000000.000100"},
		},
		{
			name: "bare slack.com",
			link: "https://slack.com/archives/G0123ABCD/p1700000000000100",
			want: domain.MessageRef{ChannelID: "G0123ABCD", TS: "1700000000.000100"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePermalink(tt.link)
			require.NoError(t, err)
			tt.want.Link = tt.link
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePermalink_Rejects(t *testing.T) {
	for _, link := range []string{
		"",
		"not a link",
		"ftp://acme.slack.com/archives/C0123ABCD/p1700000000000100",
		"https://acme.slack.com.evil.io/archives/C0123ABCD/p1700000000000100",
		"https://evilslack.com/archives/C0123ABCD/p1700000000000100",
		"https://acme.slack.com/archives/C0123ABCD",
		"https://acme.slack.com/archives/C0123ABCD/p170000000000010",
		"https://acme.slack.com/archives/C0123ABCD/p1700000000000100/extra",
		"https://acme.slack.com/messages/C0123ABCD/p1700000000000100",
		"https://acme.slack.com/archives/general/p1700000000000100",
		"https://acme.slack.com/archives/C0123ABCD/p1700000000000100?foo=bar",
		"https://acme.slack.com/archives/C0123ABCD/p1700000000000100?thread_ts=yesterday",
		"https://acme.slack.com/archives/C0123ABCD/p1700000000000100?cid=C9999999",
		"https://acme.slack.com/archives/C0123ABCD/p1700000000000100?thread_ts=1700000000.000100&thread_ts=1700000000.000200",
		"https://user@acme.slack.com/archives/C0123ABCD/p1700000000000100",
		"https://acme.slack.com/archives/C0123ABCD/p1700000000000100#frag",
	} {
		_, err := ParsePermalink(link)
		assert.True(t, domain.IsKind(err, domain.KindInvalidReference), "link %q: %v", link, err)
	}
}
