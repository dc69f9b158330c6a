package resolve

import (
	"net/url"
	"regexp"
	"strings"

	"slackmcp/internal/domain"
)

var archivePathRe = regexp.MustCompile(`^/archives/([CGD][A-Z0-9]{6,})/p(\d{16})$`)

// ParsePermalink parses a message link of the form
//
//	https://<workspace>.slack.com/archives/<channel>/p<16 digits>[?thread_ts=<ts>&cid=<channel>]
//
// Anything that does not fit that shape exactly is rejected.
func ParsePermalink(link string) (domain.MessageRef, error) {
	raw := strings.TrimSpace(link)
	u, err := url.Parse(raw)
	if err != nil {
		return domain.MessageRef{}, invalidLink(link, "unparseable")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return domain.MessageRef{}, invalidLink(link, "scheme must be http or https")
	}
	host := strings.ToLower(u.Hostname())
	if host != "slack.com" && !strings.HasSuffix(host, ".slack.com") {
		return domain.MessageRef{}, invalidLink(link, "not a slack.com host")
	}
	if u.User != nil || u.Fragment != "" {
		return domain.MessageRef{}, invalidLink(link, "unexpected URL parts")
	}
	m := archivePathRe.FindStringSubmatch(u.EscapedPath())
	if m == nil {
		return domain.MessageRef{}, invalidLink(link, "path is not /archives/<channel>/p<timestamp>")
	}
	ts, err := domain.NormalizeTS(m[2])
	if err != nil {
		return domain.MessageRef{}, invalidLink(link, "bad message timestamp")
	}
	ref := domain.MessageRef{ChannelID: m[1], TS: ts, Link: raw}

	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return domain.MessageRef{}, invalidLink(link, "bad query string")
	}
	for key, vals := range q {
		if len(vals) != 1 {
			return domain.MessageRef{}, invalidLink(link, "repeated query parameter "+key)
		}
		switch key {
		case "thread_ts":
			threadTS, err := domain.NormalizeTS(vals[0])
			if err != nil {
				return domain.MessageRef{}, invalidLink(link, "bad thread_ts")
			}
			ref.ThreadTS = threadTS
		case "cid":
			if vals[0] != ref.ChannelID {
				return domain.MessageRef{}, invalidLink(link, "cid does not match the channel")
			}
		default:
			return domain.MessageRef{}, invalidLink(link, "unexpected query parameter "+key)
		}
	}
	return ref, nil
}

func invalidLink(link, why string) error {
	return domain.Errorf(domain.KindInvalidReference, "invalid message link %q: %s", link, why)
}
