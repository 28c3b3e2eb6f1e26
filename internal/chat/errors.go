package chat

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindMalformedOutput Kind = "malformed_output"
	KindExecution       Kind = "execution"
	KindUpstream        Kind = "upstream"
)

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrSessionClosed   = errors.New("chat session is closed")
	ErrEmptyQuestion   = errors.New("question is required")
)

// Error is the tagged failure of one ask. Message is safe to show to the
// user; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a step running out of time.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func KindOf(err error) (Kind, bool) {
	var chatErr *Error
	if !errors.As(err, &chatErr) {
		return "", false
	}
	return chatErr.Kind, true
}

func UserMessage(kind Kind) string {
	switch kind {
	case KindMalformedOutput:
		return "The assistant did not produce a valid read-only query for that question. Try rephrasing it in terms of students or departments."
	case KindExecution:
		return "The generated query could not be run against the database. Try naming the columns or values you are interested in."
	case KindUpstream:
		return "The language model service is unavailable or took too long to answer. Please try again in a moment."
	default:
		return "The question could not be answered."
	}
}

func newError(kind Kind, stage string, err error) *Error {
	return &Error{
		Kind:    kind,
		Stage:   stage,
		Message: UserMessage(kind),
		Err:     err,
	}
}
