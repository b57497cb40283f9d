package types

import (
	"errors"
	"strings"
)

// Kind classifies a failure for callers that need to branch on it (the HTTP
// adapter maps kinds to status codes).
type Kind string

const (
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInvalid     Kind = "invalid"
	KindSynthesis   Kind = "synthesis"
	KindConnection  Kind = "connection"
	KindProtocol    Kind = "protocol"
	KindTimeout     Kind = "timeout"
	KindRecognition Kind = "recognition"
	KindInternal    Kind = "internal"
)

// Sentinels for use with [errors.Is]. An *Error matches a sentinel when the
// kinds are equal, regardless of Op, Detail, or the wrapped cause.
var (
	ErrForbidden   = &Error{Kind: KindForbidden}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrInvalid     = &Error{Kind: KindInvalid}
	ErrSynthesis   = &Error{Kind: KindSynthesis}
	ErrConnection  = &Error{Kind: KindConnection}
	ErrProtocol    = &Error{Kind: KindProtocol}
	ErrTimeout     = &Error{Kind: KindTimeout}
	ErrRecognition = &Error{Kind: KindRecognition}
)

// Error is a structured failure carrying a [Kind], the operation that failed,
// and a human-readable detail.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

// NewError builds an *Error. err may be nil.
func NewError(kind Kind, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Detail == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// [KindInternal] when err carries none. KindOf(nil) returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRecognitionStage reports whether k is one of the failure kinds raised by
// the recognition stream before the engine wraps them.
func IsRecognitionStage(k Kind) bool {
	switch k {
	case KindConnection, KindProtocol, KindTimeout, KindRecognition:
		return true
	}
	return false
}
