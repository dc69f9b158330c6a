package slackapi

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slackmcp/internal/domain"
)

// writeMethods are the calls whose effect is not idempotent. They are only
// retried when the request provably never reached Slack.
var writeMethods = map[string]bool{
	"chat.postMessage": true,
	"chat.command":     true,
	"reactions.add":    true,
}

// IsWrite reports whether method mutates workspace state non-idempotently.
func IsWrite(method string) bool { return writeMethods[method] }

var authCodes = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"token_revoked":    true,
	"token_expired":    true,
	"account_inactive": true,
	"invalid_cookie":   true,
}

var argumentCodes = map[string]bool{
	"invalid_arguments":    true,
	"invalid_arg_name":     true,
	"invalid_cursor":       true,
	"invalid_ts_latest":    true,
	"invalid_ts_oldest":    true,
	"invalid_name":         true,
	"invalid_limit":        true,
	"msg_too_long":         true,
	"no_text":              true,
	"too_many_attachments": true,
}

// APIError is a failure reported by Slack itself.
type APIError struct {
	Method string
	Code   string
	Status int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Method, e.Code)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Method, e.Status)
}

// ErrorCode extracts the Slack error code from err, if any.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// attemptResult is everything one HTTP round trip can tell the retry policy.
type attemptResult struct {
	status     int
	retryAfter time.Duration
	code       string // Slack "error" field when ok=false
	wrote      bool   // request bytes fully handed to the transport
	netErr     error
	decodeErr  error
	ctxErr     error
}

type action int

const (
	actionDone action = iota
	actionRetry
	actionThrottle
)

// retryState is the per-call retry machine. Throttled responses and
// transient failures are counted separately and both are bounded.
type retryState struct {
	method       string
	write        bool
	throttled    int
	transient    int
	maxThrottled int
	maxTransient int
	base         time.Duration
	max          time.Duration
}

// next decides what to do after an attempt: finish (with err possibly nil),
// retry after wait, or throttle (pause the shared budget for wait, then retry).
func (s *retryState) next(r attemptResult) (action, time.Duration, error) {
	switch {
	case r.netErr != nil:
		return s.onNetwork(r)

	case r.status == http.StatusTooManyRequests || r.code == "ratelimited":
		s.throttled++
		if s.throttled >= s.maxThrottled {
			return actionDone, 0, domain.Wrap(domain.KindRateLimited,
				&APIError{Method: s.method, Code: "ratelimited", Status: r.status},
				fmt.Sprintf("still throttled after %d attempts", s.throttled))
		}
		wait := r.retryAfter
		if wait <= 0 {
			wait = s.backoff(s.throttled)
		}
		return actionThrottle, wait, nil

	case r.status == http.StatusUnauthorized || r.status == http.StatusForbidden || authCodes[r.code]:
		return actionDone, 0, domain.Wrap(domain.KindAuthExpired,
			&APIError{Method: s.method, Code: r.code, Status: r.status},
			"session credentials rejected")

	case r.status >= 500:
		if s.write {
			return actionDone, 0, domain.Wrap(domain.KindIndeterminateOutcome,
				&APIError{Method: s.method, Status: r.status},
				"server error after the request was delivered")
		}
		return s.onTransient(&APIError{Method: s.method, Status: r.status})

	case r.status != http.StatusOK:
		return actionDone, 0, domain.Wrap(domain.KindUpstreamError,
			&APIError{Method: s.method, Status: r.status}, "unexpected status")

	case r.decodeErr != nil:
		kind := domain.KindUpstreamError
		if s.write {
			kind = domain.KindIndeterminateOutcome
		}
		return actionDone, 0, domain.Wrap(kind, r.decodeErr, s.method+": unreadable response")

	case r.code != "":
		return actionDone, 0, classifyCode(s.method, r.code)
	}
	return actionDone, 0, nil
}

func (s *retryState) onNetwork(r attemptResult) (action, time.Duration, error) {
	if s.write && r.wrote {
		return actionDone, 0, domain.Wrap(domain.KindIndeterminateOutcome, r.netErr,
			s.method+": connection lost after the request was sent")
	}
	if r.ctxErr != nil {
		return actionDone, 0, fmt.Errorf("%s: %w", s.method, r.ctxErr)
	}
	return s.onTransient(r.netErr)
}

func (s *retryState) onTransient(cause error) (action, time.Duration, error) {
	s.transient++
	if s.transient > s.maxTransient {
		return actionDone, 0, domain.Wrap(domain.KindUpstreamError, cause,
			fmt.Sprintf("%s: failed after %d retries", s.method, s.maxTransient))
	}
	return actionRetry, s.backoff(s.transient), nil
}

// backoff is exponential in n with up to 50% jitter, capped at max.
func (s *retryState) backoff(n int) time.Duration {
	d := s.base << (n - 1)
	if d <= 0 || d > s.max {
		d = s.max
	}
	jitter := time.Duration(rand.Int64N(int64(d/2 + 1)))
	if d+jitter > s.max {
		return s.max
	}
	return d + jitter
}

func classifyCode(method, code string) error {
	apiErr := &APIError{Method: method, Code: code, Status: http.StatusOK}
	switch {
	case strings.HasSuffix(code, "_not_found"):
		return domain.Wrap(domain.KindNotFound, apiErr, "")
	case argumentCodes[code]:
		return domain.Wrap(domain.KindInvalidArgument, apiErr, "")
	default:
		return domain.Wrap(domain.KindUpstreamError, apiErr, "")
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// isCanceled reports whether err stems from the caller giving up.
func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
