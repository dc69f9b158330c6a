// Package policy decides which conversations write tools may touch.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"slackmcp/internal/config"
	"slackmcp/internal/domain"
)

// Guard applies the deny list first, then the allow list. An empty allow
// list allows everything not denied.
type Guard struct {
	logger *zap.Logger

	denyRe  []*regexp.Regexp
	allowRe []*regexp.Regexp
}

func NewGuard(cfg config.WritesConfig, logger *zap.Logger) (*Guard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{logger: logger}

	var err error
	g.denyRe, err = compilePatterns(cfg.DenyChannels)
	if err != nil {
		return nil, fmt.Errorf("invalid deny pattern: %w", err)
	}
	g.allowRe, err = compilePatterns(cfg.AllowChannels)
	if err != nil {
		return nil, fmt.Errorf("invalid allow pattern: %w", err)
	}
	return g, nil
}

// Active reports whether any rule is configured. Callers can skip name
// lookups when it is not.
func (g *Guard) Active() bool {
	return g != nil && (len(g.denyRe) > 0 || len(g.allowRe) > 0)
}

// Check decides whether tool may write to a conversation known by the given
// names (ID, channel name, user handle). Empty names are ignored.
func (g *Guard) Check(tool string, names ...string) error {
	if !g.Active() {
		return nil
	}
	var targets []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			targets = append(targets, n)
		}
	}

	for _, re := range g.denyRe {
		for _, t := range targets {
			if re.MatchString(t) {
				g.logger.Warn("write blocked by deny rule",
					zap.String("tool", tool), zap.String("target", t), zap.String("pattern", re.String()))
				return domain.Errorf(domain.KindInvalidArgument,
					"%s to %s is blocked by write rule %q", tool, t, re.String())
			}
		}
	}
	if len(g.allowRe) == 0 {
		return nil
	}
	for _, re := range g.allowRe {
		for _, t := range targets {
			if re.MatchString(t) {
				return nil
			}
		}
	}
	g.logger.Warn("write blocked: no allow rule matched",
		zap.String("tool", tool), zap.Strings("targets", targets))
	return domain.Errorf(domain.KindInvalidArgument,
		"%s to %s is not permitted by the write allow list", tool, strings.Join(targets, "/"))
}

// Simple strings become case-insensitive substring patterns.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		var (
			re  *regexp.Regexp
			err error
		)
		if isRegex(p) {
			re, err = regexp.Compile(p)
		} else {
			re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(p))
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func isRegex(s string) bool {
	return strings.ContainsAny(s, `()[]{}|^$.*+?\`)
}
