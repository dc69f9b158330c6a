package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a tool invocation can surface.
type ErrorKind string

const (
	KindInvalidArgument      ErrorKind = "InvalidArgument"
	KindUnresolvedReference  ErrorKind = "UnresolvedReference"
	KindInvalidReference     ErrorKind = "InvalidReference"
	KindNotFound             ErrorKind = "NotFound"
	KindRateLimited          ErrorKind = "RateLimited"
	KindAuthExpired          ErrorKind = "AuthExpired"
	KindIndeterminateOutcome ErrorKind = "IndeterminateOutcome"
	KindUpstreamError        ErrorKind = "UpstreamError"
)

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it reachable through errors.Is/As.
// A nil err yields nil.
func Wrap(kind ErrorKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of the outermost classified error in err's chain.
// Unclassified errors are treated as upstream failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamError
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
