package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Controller owns one widget session: transcript, draft, request state and
// panel visibility. Methods are safe for concurrent use, but observers run on
// the goroutine that caused the change.
type Controller struct {
	backend   Backend
	userID    string
	sessionID string
	timeout   time.Duration
	recorder  Recorder
	renderErr ErrorRenderer
	logger    zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	transcript []Message
	draft      string
	awaiting   bool
	open       bool
	seq        int
	pending    *Pending

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int

	recording sync.WaitGroup
}

type Option func(*Controller)

func WithUserID(id string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(id) != "" {
			c.userID = id
		}
	}
}

// WithTimeout bounds each backend call. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithErrorRenderer(r ErrorRenderer) Option {
	return func(c *Controller) {
		if r != nil {
			c.renderErr = r
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithSessionID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.sessionID = id
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func NewController(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:    backend,
		userID:     DefaultUserID,
		sessionID:  uuid.NewString(),
		renderErr:  GenericErrorText,
		logger:     log.Logger,
		now:        time.Now,
		transcript: []Message{{Sender: SenderAI, Text: Greeting}},
		observers:  make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("session", c.sessionID).Logger()
	return c
}

func (c *Controller) SessionID() string { return c.sessionID }
func (c *Controller) UserID() string    { return c.userID }

func (c *Controller) OnChange(fn func(Change)) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()
	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Controller) notify(ch Change) {
	c.obsMu.Lock()
	fns := make([]func(Change), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
}

func (c *Controller) TogglePanel() bool {
	c.mu.Lock()
	c.open = !c.open
	open := c.open
	c.mu.Unlock()
	c.notify(ChangePanel)
	return open
}

func (c *Controller) PanelOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// SetDraft replaces the draft unconditionally, also while a reply is pending.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	changed := c.draft != text
	c.draft = text
	c.mu.Unlock()
	if changed {
		c.notify(ChangeDraft)
	}
}

func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Controller) AwaitingReply() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.awaiting && strings.TrimSpace(c.draft) != ""
}

func (c *Controller) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

func (c *Controller) LastReply() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.transcript) - 1; i >= 0; i-- {
		if c.transcript[i].Sender == SenderAI {
			return c.transcript[i].Text, true
		}
	}
	return "", false
}

// Begin accepts the current draft: the user message is appended, the session
// enters the Sending state and the draft is cleared. Nothing changes when the
// trimmed draft is empty or a reply is already pending.
func (c *Controller) Begin() (Pending, error) {
	c.mu.Lock()
	if c.awaiting {
		c.mu.Unlock()
		return Pending{}, ErrBusy
	}
	text := c.draft
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return Pending{}, ErrEmptyDraft
	}
	c.seq++
	p := Pending{Seq: c.seq, Text: text, StartedAt: c.now()}
	c.transcript = append(c.transcript, Message{Sender: SenderUser, Text: text})
	c.awaiting = true
	c.draft = ""
	c.pending = &p
	c.mu.Unlock()

	c.logger.Debug().Int("seq", p.Seq).Int("chars", len(text)).Msg("submission accepted")
	c.notify(ChangeTranscript | ChangeRequestState | ChangeDraft)
	return p, nil
}

// Call performs the single backend call for p. It does not touch session state
// and may run on any goroutine. A panicking backend is reported as an error.
func (c *Controller) Call(ctx context.Context, p Pending) (res Result) {
	start := c.now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &ExchangeError{Kind: KindInternal, Err: fmt.Errorf("backend panic: %v", r)}}
		}
		res.Duration = c.now().Sub(start)
	}()

	if c.backend == nil {
		return Result{Err: &ExchangeError{Kind: KindInternal, Err: fmt.Errorf("no backend configured")}}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	reply, err := c.backend.Send(ctx, p.Text, c.userID)
	return Result{Reply: reply, Err: err}
}

// Finish resolves p: exactly one ai message is appended and the session
// returns to Idle, whatever the result was.
func (c *Controller) Finish(p Pending, res Result) (Message, error) {
	var (
		msg  Message
		kind string
	)
	if res.Err != nil {
		k := Classify(res.Err)
		kind = k.String()
		msg = Message{Sender: SenderAI, Text: c.renderErr(k, res.Err)}
	} else {
		text := res.Reply.Response
		if text == "" {
			text = NoResponseText
		}
		msg = Message{Sender: SenderAI, Text: text}
	}

	c.mu.Lock()
	if c.pending == nil || c.pending.Seq != p.Seq {
		c.mu.Unlock()
		return Message{}, ErrNotPending
	}
	c.transcript = append(c.transcript, msg)
	c.awaiting = false
	c.pending = nil
	c.mu.Unlock()

	if res.Err != nil {
		c.logger.Warn().Err(res.Err).Int("seq", p.Seq).Str("kind", kind).Dur("took", res.Duration).Msg("exchange failed")
	} else {
		c.logger.Debug().Int("seq", p.Seq).Dur("took", res.Duration).Msg("exchange completed")
	}
	c.notify(ChangeTranscript | ChangeRequestState)
	c.record(p, res, msg, kind)
	return msg, nil
}

func (c *Controller) record(p Pending, res Result, msg Message, kind string) {
	if c.recorder == nil {
		return
	}
	ex := Exchange{
		SessionID: c.sessionID,
		Seq:       p.Seq,
		UserID:    c.userID,
		Prompt:    p.Text,
		Reply:     msg.Text,
		ErrorKind: kind,
		StartedAt: p.StartedAt,
		Duration:  res.Duration,
	}
	c.recording.Add(1)
	go func() {
		defer c.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.recorder.Record(ctx, ex); err != nil {
			c.logger.Error().Err(err).Int("seq", ex.Seq).Msg("record exchange")
		}
	}()
}

// Wait blocks until every pending Recorder call has returned.
func (c *Controller) Wait() {
	c.recording.Wait()
}

func (c *Controller) Submit(ctx context.Context) (Message, error) {
	p, err := c.Begin()
	if err != nil {
		return Message{}, err
	}
	return c.Finish(p, c.Call(ctx, p))
}
