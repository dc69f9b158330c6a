// Package browser captures Slack session credentials from a real,
// interactively logged-in Chrome session.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Bridge drives a Chrome instance with a persistent profile.
type Bridge struct {
	profileDir string
	headless   bool
	logger     *zap.Logger
}

type BridgeConfig struct {
	ProfileDir string // Chrome user data directory (persists the Slack login)
	Headless   bool
	Logger     *zap.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".slackmcp", "browser")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		logger:     cfg.Logger,
	}
}

// NewContext creates a chromedp context on the bridge's profile.
// The caller MUST call cancel() when done.
func (b *Bridge) NewContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(b.profileDir, 0o700); err != nil {
		b.logger.Error("failed to create profile dir", zap.String("dir", b.profileDir), zap.Error(err))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(userAgent),
	)
	if b.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

// Captured is a usable browser session.
type Captured struct {
	WebToken    string // xoxc-
	CookieToken string // value of the "d" cookie, xoxd-
	TeamID      string
	TeamURL     string
}

// Capture opens workspaceURL and polls until the page has a signed-in
// session, then returns its tokens. The user logs in by hand if the profile
// has no session yet. It gives up when ctx ends.
func (b *Bridge) Capture(ctx context.Context, workspaceURL string, pollEvery time.Duration) (Captured, error) {
	if pollEvery <= 0 {
		pollEvery = 2 * time.Second
	}
	taskCtx, cancel := b.NewContext(ctx)
	defer cancel()

	b.logger.Info("opening browser for Slack login", zap.String("url", workspaceURL))
	if err := chromedp.Run(taskCtx, chromedp.Navigate(workspaceURL)); err != nil {
		return Captured{}, fmt.Errorf("navigate to workspace: %w", err)
	}

	cookieURLs := []string{"https://app.slack.com", workspaceURL}
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		var rawConfig string
		var cookies []*network.Cookie
		err := chromedp.Run(taskCtx,
			chromedp.Evaluate(`localStorage.getItem("localConfig_v2") || ""`, &rawConfig),
			chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				cookies, err = network.GetCookies().WithURLs(cookieURLs).Do(ctx)
				return err
			}),
		)
		if err != nil {
			// Navigation between Slack's login pages tears down the
			// execution context; try again on the next tick.
			b.logger.Debug("credential poll failed", zap.Error(err))
		} else if c, ok := assemble(rawConfig, cookies, workspaceURL); ok {
			b.logger.Info("captured Slack session", zap.String("team", c.TeamID), zap.String("url", c.TeamURL))
			return c, nil
		}

		select {
		case <-ctx.Done():
			return Captured{}, fmt.Errorf("waiting for Slack login: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func assemble(rawConfig string, cookies []*network.Cookie, workspaceURL string) (Captured, bool) {
	team, err := pickTeam(rawConfig, workspaceURL)
	if err != nil {
		return Captured{}, false
	}
	d := sessionCookie(cookies)
	if d == "" {
		return Captured{}, false
	}
	team.CookieToken = d
	return team, true
}

type localConfig struct {
	LastActiveTeamID string `json:"lastActiveTeamId"`
	Teams            map[string]struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	} `json:"teams"`
}

var errNoTeam = errors.New("no signed-in team in local config")

// pickTeam selects the team matching workspaceURL, else the last active
// one, else the first by ID.
func pickTeam(raw, workspaceURL string) (Captured, error) {
	if strings.TrimSpace(raw) == "" {
		return Captured{}, errNoTeam
	}
	var cfg localConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Captured{}, fmt.Errorf("parse local config: %w", err)
	}

	ids := make([]string, 0, len(cfg.Teams))
	for id, t := range cfg.Teams {
		if strings.HasPrefix(t.Token, "xoxc-") {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Captured{}, errNoTeam
	}
	sort.Strings(ids)

	pick := ids[0]
	if _, ok := cfg.Teams[cfg.LastActiveTeamID]; ok && strings.HasPrefix(cfg.Teams[cfg.LastActiveTeamID].Token, "xoxc-") {
		pick = cfg.LastActiveTeamID
	}
	if host := hostOf(workspaceURL); host != "" && host != "app.slack.com" {
		for _, id := range ids {
			if hostOf(cfg.Teams[id].URL) == host {
				pick = id
				break
			}
		}
	}
	t := cfg.Teams[pick]
	return Captured{WebToken: t.Token, TeamID: pick, TeamURL: t.URL}, nil
}

func sessionCookie(cookies []*network.Cookie) string {
	for _, c := range cookies {
		if c != nil && c.Name == "d" && strings.HasPrefix(c.Value, "xoxd-") {
			return c.Value
		}
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
