package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"

	"slackmcp/internal/domain"
)

// Texter is implemented by payloads that render themselves as plain text
// instead of JSON.
type Texter interface {
	Text() (string, error)
}

// csvTable renders a slice of csv-tagged structs, followed by a trailer
// line carrying the continuation cursor when there is one.
type csvTable struct {
	rows any
	next string
}

func (c csvTable) Text() (string, error) {
	out, err := gocsv.MarshalString(c.rows)
	if err != nil {
		return "", fmt.Errorf("render csv: %w", err)
	}
	if c.next != "" {
		out += "# next_cursor: " + c.next + "\n"
	}
	return out, nil
}

type errorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

type failure struct {
	Error    errorBody `json:"error"`
	Partial  any       `json:"partial,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
}

type withWarnings struct {
	Result   any      `json:"result"`
	Warnings []string `json:"warnings"`
}

// Render turns a result into the text returned to the caller and reports
// whether it is an error.
func Render(res Result) (string, bool) {
	if res.Err != nil {
		body := failure{
			Error:    errorBody{Kind: domain.KindOf(res.Err), Message: res.Err.Error()},
			Partial:  res.Data,
			Warnings: res.Warnings,
		}
		if t, ok := res.Data.(Texter); ok {
			if s, err := t.Text(); err == nil {
				body.Partial = s
			}
		}
		return mustJSON(body), true
	}

	if t, ok := res.Data.(Texter); ok {
		s, err := t.Text()
		if err != nil {
			return Render(Result{Tool: res.Tool, Err: err, Warnings: res.Warnings})
		}
		if len(res.Warnings) > 0 {
			s = "# warning: " + strings.Join(res.Warnings, "\n# warning: ") + "\n" + s
		}
		return s, false
	}
	if len(res.Warnings) > 0 {
		return mustJSON(withWarnings{Result: res.Data, Warnings: res.Warnings}), false
	}
	return mustJSON(res.Data), false
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b, _ = json.Marshal(failure{Error: errorBody{Kind: domain.KindUpstreamError, Message: "render: " + err.Error()}})
	}
	return string(b)
}
