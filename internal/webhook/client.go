package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Resolver turns a stored endpoint (absolute or proxy-relative) into a URL
// that can be dialed.
type Resolver interface {
	Resolve(endpoint string) (string, error)
}

type Client struct {
	httpClient *http.Client
	resolver   Resolver
	recorder   Recorder
	logger     zerolog.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient builds a webhook client. No request timeout is set: callers
// bound requests through their context.
func NewClient(httpClient *http.Client, resolver Resolver, logger zerolog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{
		httpClient: httpClient,
		resolver:   resolver,
		logger:     logger.With().Str("component", "webhook").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts a client message to endpoint and decodes the agent's reply.
func (c *Client) Send(ctx context.Context, endpoint, text string, at time.Time) (Reply, error) {
	payload := messageRequest{ClientMessage: text, Timestamp: FormatTimestamp(at)}
	status, body, err := c.post(ctx, KindMessage, endpoint, payload)
	if err != nil {
		return Reply{}, err
	}
	reply, err := DecodeReply(status, body)
	if err != nil {
		return Reply{}, err
	}
	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", status).
		Bool("has_content", reply.HasContent).
		Bool("chat_ended", reply.ChatEnded).
		Msg("agent reply")
	return reply, nil
}

// NotifyReset tells endpoint that the client abandoned the conversation.
// The response body is ignored.
func (c *Client) NotifyReset(ctx context.Context, endpoint string) error {
	_, _, err := c.post(ctx, KindReset, endpoint, resetRequest{Reset: true})
	return err
}

func (c *Client) post(ctx context.Context, kind Kind, endpoint string, payload any) (int, []byte, error) {
	started := c.now()
	ex := Exchange{
		SessionID: SessionIDFromContext(ctx),
		Kind:      kind,
		Endpoint:  endpoint,
		At:        started,
	}

	status, body, err := c.do(ctx, endpoint, payload, &ex)
	ex.Status = status
	ex.ResponseBody = string(body)
	ex.Duration = c.now().Sub(started)
	if err != nil {
		ex.Err = err.Error()
	}
	c.record(ctx, ex)
	return status, body, err
}

func (c *Client) do(ctx context.Context, endpoint string, payload any, ex *Exchange) (int, []byte, error) {
	target := endpoint
	if c.resolver != nil {
		resolved, err := c.resolver.Resolve(endpoint)
		if err != nil {
			return 0, nil, err
		}
		target = resolved
	}
	ex.URL = target

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	ex.RequestBody = string(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, &StatusError{Status: resp.StatusCode, Body: snippet(bytes.TrimSpace(body))}
	}
	return resp.StatusCode, body, nil
}

func (c *Client) record(ctx context.Context, ex Exchange) {
	if c.recorder == nil {
		return
	}
	// Superseded turns are still recorded.
	if err := c.recorder.Record(context.WithoutCancel(ctx), ex); err != nil {
		c.logger.Warn().Err(err).Str("kind", string(ex.Kind)).Msg("record exchange")
	}
}
