// Package slackapi talks to the Slack Web API with session credentials.
// It owns retry, throttling and pagination; callers see typed results and
// classified errors only.
package slackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"slackmcp/internal/domain"
)

const (
	DefaultAPIBase   = "https://slack.com/api"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	maxResponseBytes = 32 << 20
)

// Caller issues one logical Web API call. out receives the decoded JSON body
// when Slack reports ok=true.
type Caller interface {
	Call(ctx context.Context, method string, params url.Values, out any) error
}

// Credentials are a browser session: the xoxc- web token and the d cookie.
type Credentials struct {
	WebToken    string
	CookieToken string
}

func (c Credentials) Empty() bool { return c.WebToken == "" }

type credentialsKey struct{}

// WithCredentials scopes per-request credentials to ctx. They take
// precedence over the client's process-wide session.
func WithCredentials(ctx context.Context, c Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, c)
}

func CredentialsFrom(ctx context.Context) (Credentials, bool) {
	c, ok := ctx.Value(credentialsKey{}).(Credentials)
	return c, ok && !c.Empty()
}

// Observer receives per-request telemetry.
type Observer interface {
	ObserveRequest(method, outcome string, d time.Duration)
	ObserveRetry(method, reason string)
}

type ClientConfig struct {
	APIBase        string
	Credentials    Credentials
	UserAgent      string
	HTTPClient     *http.Client
	Budget         *Budget
	MaxAttempts    int // throttled responses tolerated per call
	NetworkRetries int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	Observer       Observer
	Logger         *zap.Logger
}

// Client is the rate-limited fetcher. It is safe for concurrent use.
type Client struct {
	base     string
	creds    Credentials
	ua       string
	http     *http.Client
	budget   *Budget
	cfg      ClientConfig
	observer Observer
	logger   *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(30 * time.Second)
	}
	if cfg.Budget == nil {
		cfg.Budget = NewBudget(0, 0)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.NetworkRetries < 0 {
		cfg.NetworkRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = 30 * cfg.BaseBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		base:     strings.TrimRight(cfg.APIBase, "/"),
		creds:    cfg.Credentials,
		ua:       cfg.UserAgent,
		http:     cfg.HTTPClient,
		budget:   cfg.Budget,
		cfg:      cfg,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// Budget exposes the shared request budget.
func (c *Client) Budget() *Budget { return c.budget }

// Call posts params to method and decodes the response into out.
func (c *Client) Call(ctx context.Context, method string, params url.Values, out any) error {
	creds := c.creds
	if rc, ok := CredentialsFrom(ctx); ok {
		creds = rc
	}
	if creds.Empty() {
		return domain.Errorf(domain.KindAuthExpired, "%s: no session credentials configured", method)
	}

	st := &retryState{
		method:       method,
		write:        IsWrite(method),
		maxThrottled: c.cfg.MaxAttempts,
		maxTransient: c.cfg.NetworkRetries,
		base:         c.cfg.BaseBackoff,
		max:          c.cfg.MaxBackoff,
	}

	for {
		if err := c.budget.Wait(ctx); err != nil {
			if st.throttled > 0 {
				return domain.Wrap(domain.KindRateLimited, err, method+": gave up waiting for the rate limit")
			}
			return fmt.Errorf("%s: %w", method, err)
		}

		start := c.now()
		res := c.attempt(ctx, method, params, creds, out)
		act, wait, err := st.next(res)
		c.observe(method, res, err, time.Since(start))

		switch act {
		case actionDone:
			if err != nil {
				c.logger.Debug("slack call failed",
					zap.String("method", method),
					zap.String("kind", string(domain.KindOf(err))),
					zap.Error(err))
			}
			return err
		case actionThrottle:
			c.logger.Warn("slack throttled request",
				zap.String("method", method),
				zap.Int("attempt", st.throttled),
				zap.Duration("wait", wait))
			c.retried(method, "throttled")
			c.budget.Pause(wait)
		case actionRetry:
			c.logger.Warn("retrying slack request",
				zap.String("method", method),
				zap.Int("attempt", st.transient),
				zap.Duration("backoff", wait))
			c.retried(method, "transient")
			if err := c.sleep(ctx, wait); err != nil {
				return fmt.Errorf("%s: %w", method, err)
			}
		}
	}
}

func (c *Client) attempt(ctx context.Context, method string, params url.Values, creds Credentials, out any) attemptResult {
	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				wrote.Store(true)
			}
		},
	}

	body := ""
	if params != nil {
		body = params.Encode()
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace),
		http.MethodPost, c.base+"/"+method, strings.NewReader(body))
	if err != nil {
		return attemptResult{decodeErr: fmt.Errorf("build request: %w", err), status: http.StatusOK}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+creds.WebToken)
	req.Header.Set("Cookie", "d="+creds.CookieToken)
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		r := attemptResult{netErr: err, wrote: wrote.Load()}
		if isCanceled(ctx, err) {
			r.ctxErr = ctx.Err()
		}
		return r
	}
	defer resp.Body.Close()

	r := attemptResult{
		status:     resp.StatusCode,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		wrote:      true,
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return r
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		r.netErr = err
		if isCanceled(ctx, err) {
			r.ctxErr = ctx.Err()
		}
		return r
	}

	var envelope slack.SlackResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		r.decodeErr = fmt.Errorf("decode envelope: %w", err)
		return r
	}
	if !envelope.Ok {
		r.code = envelope.Error
		if r.code == "" {
			r.code = "unknown_error"
		}
		return r
	}
	if out != nil {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(out); err != nil {
			r.decodeErr = fmt.Errorf("decode %s: %w", method, err)
		}
	}
	return r
}

func (c *Client) observe(method string, r attemptResult, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case r.netErr != nil:
		outcome = "network"
	case r.status == http.StatusTooManyRequests || r.code == "ratelimited":
		outcome = "throttled"
	case r.status >= 500:
		outcome = "server_error"
	case err != nil:
		outcome = strings.ToLower(string(domain.KindOf(err)))
	}
	c.observer.ObserveRequest(method, outcome, d)
}

func (c *Client) retried(method, reason string) {
	if c.observer != nil {
		c.observer.ObserveRetry(method, reason)
	}
}
