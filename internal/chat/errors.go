package chat

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyDraft = errors.New("draft is empty")
	ErrBusy       = errors.New("a reply is already pending")
	ErrNotPending = errors.New("submission is not pending")
)

type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindTimeout
	KindMalformedResponse
	KindServerError
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindMalformedResponse:
		return "malformed-response"
	case KindServerError:
		return "server-error"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ExchangeError is any failure that kept a submission from getting a reply.
type ExchangeError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Classify maps any error returned by a Backend to an ErrorKind.
func Classify(err error) ErrorKind {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

type ErrorRenderer func(kind ErrorKind, err error) string

func GenericErrorText(ErrorKind, error) string {
	return ErrorText
}

func DetailedErrorText(kind ErrorKind, _ error) string {
	return ErrorText + " (" + kind.String() + ")"
}
