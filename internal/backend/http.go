package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"chat-widget/internal/chat"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultEndpoint = "http://127.0.0.1:8000/chat"
	maxBodyBytes    = 1 << 20
)

// HTTPBackend posts one JSON request per message and never retries.
type HTTPBackend struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

type Option func(*HTTPBackend)

func WithHTTPClient(c *http.Client) Option {
	return func(b *HTTPBackend) {
		if c != nil {
			b.client = c
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *HTTPBackend) { b.logger = l }
}

func New(endpoint string, opts ...Option) *HTTPBackend {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	b := &HTTPBackend{
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *HTTPBackend) Endpoint() string { return b.endpoint }

func (b *HTTPBackend) Send(ctx context.Context, message, userID string) (chat.Reply, error) {
	body, err := encodeRequest(message, userID)
	if err != nil {
		return chat.Reply{}, &chat.ExchangeError{Kind: chat.KindInternal, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return chat.Reply{}, &chat.ExchangeError{Kind: chat.KindInternal, Err: pkgerrors.Wrap(err, "build request")}
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return chat.Reply{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return chat.Reply{}, transportError(ctx, pkgerrors.Wrap(err, "read response body"))
	}
	b.logger.Debug().
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Dur("took", time.Since(start)).
		Msg("backend responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return chat.Reply{}, &chat.ExchangeError{
			Kind:       chat.KindServerError,
			StatusCode: resp.StatusCode,
			Err:        errors.New(shortBody(raw)),
		}
	}
	return decodeReply(raw)
}

func encodeRequest(message, userID string) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "message", message)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode message")
	}
	body, err = sjson.SetBytes(body, "user_id", userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode user_id")
	}
	return body, nil
}

// decodeReply accepts any JSON object. A missing or null "response" is not an
// error; the controller turns it into the fallback text.
func decodeReply(raw []byte) (chat.Reply, error) {
	if !gjson.ValidBytes(raw) {
		return chat.Reply{}, malformed("response is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return chat.Reply{}, malformed("response is not a JSON object")
	}
	field := doc.Get("response")
	switch field.Type {
	case gjson.Null:
		return chat.Reply{}, nil
	case gjson.String:
		return chat.Reply{Response: field.String()}, nil
	default:
		return chat.Reply{}, malformed("response field is " + field.Type.String())
	}
}

func malformed(reason string) error {
	return &chat.ExchangeError{Kind: chat.KindMalformedResponse, Err: errors.New(reason)}
}

func transportError(ctx context.Context, err error) error {
	kind := chat.KindNetwork
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = chat.KindTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = chat.KindTimeout
	}
	return &chat.ExchangeError{Kind: kind, Err: err}
}

func shortBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "empty body"
	}
	if len(s) > 200 {
		return s[:197] + "..."
	}
	return s
}
