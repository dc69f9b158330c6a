// Package fakeslack is an in-process Slack Web API double for tests.
package fakeslack

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Call is one request the fake received.
type Call struct {
	Method string
	Form   url.Values
	Header http.Header
}

// Response is what a handler answers. Body is marshalled as JSON.
type Response struct {
	Status int
	Header map[string]string
	Body   any
}

type Handler func(form url.Values) Response

// Server routes /api/<method> to registered handlers and records every call.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
}

func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{handlers: map[string]Handler{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// APIBase is the value for the client's API base URL.
func (s *Server) APIBase() string { return s.URL + "/api" }

// On registers h for method, replacing any previous handler.
func (s *Server) On(method string, h Handler) {
	s.mu.Lock()
	s.handlers[method] = h
	s.mu.Unlock()
}

// Reply registers a static successful response.
func (s *Server) Reply(method string, fields map[string]any) {
	s.On(method, func(url.Values) Response { return OK(fields) })
}

// Sequence answers successive calls with the given responses; the last one
// repeats once the list is exhausted.
func (s *Server) Sequence(method string, responses ...Response) {
	var mu sync.Mutex
	i := 0
	s.On(method, func(url.Values) Response {
		mu.Lock()
		defer mu.Unlock()
		r := responses[i]
		if i < len(responses)-1 {
			i++
		}
		return r
	})
}

func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) CallCount(method string) int { return len(s.Calls(method)) }

// Methods lists every method called, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Method
	}
	return out
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/api/")
	_ = r.ParseForm()

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Form: r.PostForm, Header: r.Header.Clone()})
	h, ok := s.handlers[method]
	s.mu.Unlock()

	resp := Fail("unknown_method")
	if ok {
		resp = h(r.PostForm)
	}
	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != nil {
		_ = json.NewEncoder(w).Encode(resp.Body)
	}
}

// OK is a successful envelope carrying fields.
func OK(fields map[string]any) Response {
	body := map[string]any{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	return Response{Body: body}
}

// Fail is an ok=false envelope with a Slack error code.
func Fail(code string) Response {
	return Response{Body: map[string]any{"ok": false, "error": code}}
}

// Throttled is an HTTP 429 with Retry-After in seconds.
func Throttled(retryAfter string) Response {
	r := Response{Status: http.StatusTooManyRequests, Body: map[string]any{"ok": false, "error": "ratelimited"}}
	if retryAfter != "" {
		r.Header = map[string]string{"Retry-After": retryAfter}
	}
	return r
}

// Status answers with a bare HTTP status.
func Status(code int) Response {
	return Response{Status: code, Body: map[string]any{"ok": false}}
}

// Msg builds a timeline message payload.
func Msg(ts, user, text string, extra ...any) map[string]any {
	m := map[string]any{"type": "message", "ts": ts, "user": user, "text": text}
	for i := 0; i+1 < len(extra); i += 2 {
		m[extra[i].(string)] = extra[i+1]
	}
	return m
}

// Match builds a search.messages hit.
func Match(channelID, channelName, ts, user, text, permalink string) map[string]any {
	return map[string]any{
		"type":      "message",
		"ts":        ts,
		"user":      user,
		"text":      text,
		"permalink": permalink,
		"channel":   map[string]any{"id": channelID, "name": channelName},
	}
}

// SearchBody wraps matches in a search.messages payload.
func SearchBody(total, page, pages int, matches ...map[string]any) map[string]any {
	if matches == nil {
		matches = []map[string]any{}
	}
	return map[string]any{
		"messages": map[string]any{
			"matches": matches,
			"total":   total,
			"paging":  map[string]any{"count": len(matches), "total": total, "page": page, "pages": pages},
		},
	}
}

// Cursor sets response_metadata.next_cursor on a payload.
func Cursor(fields map[string]any, next string) map[string]any {
	fields["response_metadata"] = map[string]any{"next_cursor": next}
	return fields
}
