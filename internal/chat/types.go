package chat

import (
	"context"
	"time"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

const (
	Greeting       = "Hi, how can I help you today?"
	NoResponseText = "No response"
	ErrorText      = "Error contacting backend."
	DefaultUserID  = "11"
)

// Message is one transcript entry. Position in the transcript is its identity.
type Message struct {
	Sender Sender
	Text   string
}

// Reply is what a backend returns for one message. An empty Response is
// rendered as NoResponseText.
type Reply struct {
	Response string
}

type Backend interface {
	Send(ctx context.Context, message, userID string) (Reply, error)
}

type BackendFunc func(ctx context.Context, message, userID string) (Reply, error)

func (f BackendFunc) Send(ctx context.Context, message, userID string) (Reply, error) {
	return f(ctx, message, userID)
}

// Pending is an accepted submission whose backend call has not resolved yet.
type Pending struct {
	Seq       int
	Text      string
	StartedAt time.Time
}

type Result struct {
	Reply    Reply
	Err      error
	Duration time.Duration
}

// Exchange is handed to a Recorder once a submission resolves.
type Exchange struct {
	SessionID string
	Seq       int
	UserID    string
	Prompt    string
	Reply     string
	ErrorKind string
	StartedAt time.Time
	Duration  time.Duration
}

type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

type Change uint8

const (
	ChangeTranscript Change = 1 << iota
	ChangeRequestState
	ChangePanel
	ChangeDraft
)

// NeedsScroll reports whether the view should re-sync its scroll position.
func (c Change) NeedsScroll() bool {
	return c&(ChangeTranscript|ChangeRequestState) != 0
}

func (c Change) Has(flag Change) bool {
	return c&flag != 0
}
