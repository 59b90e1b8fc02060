package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"agent-widget/internal/webhook"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultGreeting        = "Seja bem-vindo! 🌟 Sou Aura, sua consultora virtual da Aura. Estamos prontos para desenhar seu projeto de alto padrão. Qual a sua visão ou ambiente de interesse?"
	DefaultConnectionError = "Erro ao conectar com o servidor."
	DefaultTypingDelay     = 2 * time.Second
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrEnded        = errors.New("conversation has ended")
)

// Transport carries one session's traffic to the agent.
type Transport interface {
	Send(ctx context.Context, endpoint, text string, at time.Time) (webhook.Reply, error)
	NotifyReset(ctx context.Context, endpoint string) error
}

// Options configure a Session. Zero values fall back to the defaults above,
// except TypingDelay where zero means no delay.
type Options struct {
	InitialEndpoint string
	Greeting        string
	ConnectionError string
	TypingDelay     time.Duration
	Normalize       func(resumeURL string) string
	Now             func() time.Time
	NewID           func() string
	Logger          *zerolog.Logger
}

// Turn is one client message in flight. The session tracks only its current
// turn; results carrying any other turn are stale and ignored.
type Turn struct {
	ctx       context.Context
	SessionID string
	Text      string
	Endpoint  string
	SentAt    time.Time
}

func (t *Turn) Context() context.Context {
	return t.ctx
}

type Result struct {
	Turn  *Turn
	Reply webhook.Reply
	Err   error
}

// Pending is agent text held back for the typing delay.
type Pending struct {
	turn  *Turn
	Text  string
	Ended bool
}

type Effect struct {
	Stale   bool
	Pending *Pending
}

// Notice names the endpoint a reset should notify, if any.
type Notice struct {
	SessionID string
	Endpoint  string
}

// Session owns the conversation state. Every mutation goes through Begin,
// Apply, Deliver and Reset; Exchange only reads the immutable Turn and may
// run on another goroutine.
type Session struct {
	transport Transport
	opts      Options
	logger    zerolog.Logger

	mu      sync.Mutex
	id      string
	state   State
	current *Turn
	cancel  context.CancelFunc
	lastID  int64
}

func New(transport Transport, opts Options) *Session {
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	if opts.ConnectionError == "" {
		opts.ConnectionError = DefaultConnectionError
	}
	if opts.Normalize == nil {
		opts.Normalize = func(s string) string { return s }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Session{
		transport: transport,
		opts:      opts,
		logger:    logger.With().Str("component", "session").Logger(),
	}
	s.id = opts.NewID()
	s.state = State{
		Transcript:     []Message{s.newMessageLocked(RoleAgent, opts.Greeting)},
		ActiveEndpoint: opts.InitialEndpoint,
	}
	return s
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) InitialEndpoint() string {
	return s.opts.InitialEndpoint
}

func (s *Session) TypingDelay() time.Duration {
	return s.opts.TypingDelay
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Transcript = append([]Message(nil), s.state.Transcript...)
	return out
}

func (s *Session) Phase() Phase {
	return s.State().Phase()
}

// Begin appends the client message, cancels whatever turn was in flight and
// starts a new one against the active endpoint.
func (s *Session) Begin(parent context.Context, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Ended {
		return nil, ErrEnded
	}
	if s.current != nil {
		s.logger.Debug().Str("session_id", s.id).Msg("superseding in-flight turn")
	}
	s.releaseLocked()

	s.state.Transcript = append(s.state.Transcript, s.newMessageLocked(RoleClient, text))

	ctx, cancel := context.WithCancel(parent)
	turn := &Turn{
		ctx:       ctx,
		SessionID: s.id,
		Text:      text,
		Endpoint:  s.state.ActiveEndpoint,
		SentAt:    s.opts.Now(),
	}
	s.current = turn
	s.cancel = cancel
	s.state.AwaitingReply = true
	return turn, nil
}

// Exchange performs the network call for t. It does not touch session state.
func (s *Session) Exchange(t *Turn) Result {
	ctx := webhook.WithSessionID(t.ctx, t.SessionID)
	reply, err := s.transport.Send(ctx, t.Endpoint, t.Text, t.SentAt)
	return Result{Turn: t, Reply: reply, Err: err}
}

// Apply folds an exchange result into the session. Agent text is returned as
// a Pending effect and only lands in the transcript through Deliver.
func (s *Session) Apply(res Result) Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Turn == nil || res.Turn != s.current {
		return Effect{Stale: true}
	}

	if res.Err != nil {
		if errors.Is(res.Err, context.Canceled) {
			s.releaseLocked()
			return Effect{}
		}
		evt := s.logger.Error()
		if errors.Is(res.Err, webhook.ErrMalformedReply) {
			evt = s.logger.Warn()
		}
		evt.Err(res.Err).
			Str("session_id", s.id).
			Str("endpoint", res.Turn.Endpoint).
			Msg("agent exchange failed")
		s.state.Transcript = append(s.state.Transcript, s.newMessageLocked(RoleAgent, s.opts.ConnectionError))
		s.releaseLocked()
		return Effect{}
	}

	reply := res.Reply
	if !reply.HasContent {
		s.releaseLocked()
		return Effect{}
	}
	if reply.ResumeURL != "" {
		s.state.ActiveEndpoint = s.opts.Normalize(reply.ResumeURL)
	}
	if reply.AgentMessage != "" {
		return Effect{Pending: &Pending{turn: res.Turn, Text: reply.AgentMessage, Ended: reply.ChatEnded}}
	}
	if reply.ChatEnded {
		s.state.Ended = true
	}
	s.releaseLocked()
	return Effect{}
}

// Deliver appends held-back agent text once the typing delay is over. It
// reports false when the turn was superseded or reset in the meantime.
func (s *Session) Deliver(p Pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.turn == nil || p.turn != s.current {
		return false
	}
	s.state.Transcript = append(s.state.Transcript, s.newMessageLocked(RoleAgent, p.Text))
	if p.Ended {
		s.state.Ended = true
	}
	s.releaseLocked()
	return true
}

// Send runs a whole turn synchronously, typing delay included. Superseded
// and cancelled turns return nil.
func (s *Session) Send(ctx context.Context, text string) error {
	turn, err := s.Begin(ctx, text)
	if err != nil {
		return err
	}
	eff := s.Apply(s.Exchange(turn))
	if eff.Pending == nil {
		return nil
	}
	if !sleep(turn.ctx, s.opts.TypingDelay) {
		s.Apply(Result{Turn: turn, Err: context.Canceled})
		return nil
	}
	s.Deliver(*eff.Pending)
	return nil
}

// Reset cancels any turn in flight and restores the greeting and the initial
// endpoint. The returned notice names the endpoint that was active, when a
// conversation was in progress.
func (s *Session) Reset() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	s.state.Ended = false

	prev := Notice{SessionID: s.id, Endpoint: s.state.ActiveEndpoint}
	s.id = s.opts.NewID()
	s.state.Transcript = []Message{s.newMessageLocked(RoleAgent, s.opts.Greeting)}
	s.state.ActiveEndpoint = s.opts.InitialEndpoint

	if prev.Endpoint == "" || prev.Endpoint == s.opts.InitialEndpoint {
		return Notice{}, false
	}
	return prev, true
}

// NotifyReset tells the previously active endpoint about the reset. Failures
// are logged and otherwise ignored.
func (s *Session) NotifyReset(ctx context.Context, n Notice) {
	if n.Endpoint == "" {
		return
	}
	ctx = webhook.WithSessionID(ctx, n.SessionID)
	if err := s.transport.NotifyReset(ctx, n.Endpoint); err != nil {
		s.logger.Warn().Err(err).
			Str("session_id", n.SessionID).
			Str("endpoint", n.Endpoint).
			Msg("reset notification failed")
		return
	}
	s.logger.Debug().Str("session_id", n.SessionID).Str("endpoint", n.Endpoint).Msg("reset notified")
}

func (s *Session) ResetAndNotify(ctx context.Context) {
	if n, ok := s.Reset(); ok {
		s.NotifyReset(ctx, n)
	}
}

// Close cancels the turn in flight, if any.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Session) releaseLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.current = nil
	s.state.AwaitingReply = false
}

func (s *Session) newMessageLocked(role Role, text string) Message {
	id := s.opts.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return Message{ID: id, Text: text, Role: role}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
