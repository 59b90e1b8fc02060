package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"agent-widget/internal/clipboard"
	"agent-widget/internal/config"
	"agent-widget/internal/export"
	"agent-widget/internal/proxy"
	"agent-widget/internal/session"
	"agent-widget/internal/webhook"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/rs/zerolog"
)

const initialEndpoint = "/n8n-proxy/webhook/sdr_agent_planejados"

type scriptedTransport struct {
	mu      sync.Mutex
	replies []webhook.Reply
	sent    []string
	resets  []string
}

func (f *scriptedTransport) Send(ctx context.Context, endpoint, text string, _ time.Time) (webhook.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, endpoint+" "+text)
	if len(f.replies) == 0 {
		return webhook.Reply{}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *scriptedTransport) NotifyReset(ctx context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, endpoint)
	return nil
}

func newTestModel(t *testing.T, tr *scriptedTransport) Model {
	t.Helper()
	rw := proxy.NewRewriter(proxy.DefaultPublicHost, proxy.DefaultPrefix, "")
	s := session.New(tr, session.Options{
		InitialEndpoint: initialEndpoint,
		Normalize:       rw.Normalize,
	})
	exp, err := export.New(t.TempDir())
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	return NewModel(config.AppConfig{GlamourStyle: "dark"}, s, exp, zerolog.Nop())
}

// collect runs cmd and any batched commands, returning the messages that
// arrive promptly. Blink and spinner timers are left behind.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		if batch, ok := msg.(tea.BatchMsg); ok {
			var out []tea.Msg
			for _, c := range batch {
				out = append(out, collect(c)...)
			}
			return out
		}
		if msg == nil {
			return nil
		}
		return []tea.Msg{msg}
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// pump feeds the results of cmd back into the model until no chat related
// messages remain.
func pump(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := collect(cmd)
	for i := 0; len(queue) > 0; i++ {
		if i > 50 {
			t.Fatal("message pump did not settle")
		}
		msg := queue[0]
		queue = queue[1:]
		switch msg.(type) {
		case replyMsg, typedMsg, exportMsg, copyMsg:
		default:
			continue
		}
		next, c := m.Update(msg)
		m = next.(Model)
		queue = append(queue, collect(c)...)
	}
	return m
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func transcriptTexts(m Model) []string {
	var out []string
	for _, msg := range m.session.State().Transcript {
		out = append(out, string(msg.Role)+":"+msg.Text)
	}
	return out
}

func TestEnterSendsAndDeliversReply(t *testing.T) {
	tr := &scriptedTransport{replies: []webhook.Reply{{
		HasContent:   true,
		AgentMessage: "Perfeito!",
		ResumeURL:    "https://weblinker.vya.digital/webhook-waiting/abc",
	}}}
	m := newTestModel(t, tr)

	m = typeText(t, m, "Quero uma cozinha")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if got := m.input.Value(); got != "" {
		t.Fatalf("expected input cleared, got %q", got)
	}
	if !m.session.State().AwaitingReply {
		t.Fatal("expected session awaiting reply after enter")
	}

	m = pump(t, m, cmd)

	got := transcriptTexts(m)
	if len(got) != 3 || got[1] != "client:Quero uma cozinha" || got[2] != "agent:Perfeito!" {
		t.Fatalf("unexpected transcript: %#v", got)
	}
	st := m.session.State()
	if st.ActiveEndpoint != "/n8n-proxy/webhook-waiting/abc" {
		t.Fatalf("unexpected endpoint: %q", st.ActiveEndpoint)
	}
	if st.AwaitingReply {
		t.Fatal("expected reply delivered")
	}
	if len(tr.sent) != 1 || tr.sent[0] != initialEndpoint+" Quero uma cozinha" {
		t.Fatalf("unexpected sends: %#v", tr.sent)
	}
	if !strings.Contains(ansi.Strip(m.viewport.View()), "Perfeito!") {
		t.Fatalf("expected agent reply in transcript view:\n%s", m.viewport.View())
	}
}

func TestBlankEnterIsNoop(t *testing.T) {
	tr := &scriptedTransport{}
	m := newTestModel(t, tr)

	m = typeText(t, m, "   ")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("did not expect a command for blank input")
	}
	if n := len(m.session.State().Transcript); n != 1 {
		t.Fatalf("expected greeting only, got %d messages", n)
	}
}

func TestEndedConversationBlocksInput(t *testing.T) {
	tr := &scriptedTransport{replies: []webhook.Reply{{
		HasContent:   true,
		AgentMessage: "Obrigado!",
		ChatEnded:    true,
	}}}
	m := newTestModel(t, tr)

	m = typeText(t, m, "tchau")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = pump(t, m, cmd)

	if !m.session.State().Ended {
		t.Fatal("expected conversation ended")
	}

	m = typeText(t, m, "mais uma")
	if m.input.Value() != "" {
		t.Fatalf("expected typing ignored after end, got %q", m.input.Value())
	}
	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("did not expect a command after end")
	}
	if !strings.Contains(m.status, "ctrl+r") {
		t.Fatalf("expected reset hint, got %q", m.status)
	}
	if !strings.Contains(ansi.Strip(m.View()), "Conversa encerrada") {
		t.Fatalf("expected ended marker in view:\n%s", m.View())
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(tr.sent))
	}
}

func TestResetKeyRestoresGreetingAndNotifies(t *testing.T) {
	tr := &scriptedTransport{replies: []webhook.Reply{{
		HasContent: true,
		ResumeURL:  "https://weblinker.vya.digital/webhook-waiting/r1",
	}}}
	m := newTestModel(t, tr)
	firstID := m.session.ID()

	m = typeText(t, m, "oi")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = pump(t, m, cmd)

	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	collect(cmd)

	st := m.session.State()
	if len(st.Transcript) != 1 || st.Transcript[0].Text != session.DefaultGreeting {
		t.Fatalf("expected greeting only after reset, got %#v", transcriptTexts(m))
	}
	if st.ActiveEndpoint != initialEndpoint {
		t.Fatalf("expected initial endpoint, got %q", st.ActiveEndpoint)
	}
	if m.session.ID() == firstID {
		t.Fatal("expected a new session id after reset")
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.resets) != 1 || tr.resets[0] != "/n8n-proxy/webhook-waiting/r1" {
		t.Fatalf("unexpected reset notifications: %#v", tr.resets)
	}
}

func TestStaleReplyIsDropped(t *testing.T) {
	tr := &scriptedTransport{}
	m := newTestModel(t, tr)

	old, err := m.session.Begin(context.Background(), "primeira")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	m = typeText(t, m, "segunda")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	next, _ := m.Update(replyMsg{res: session.Result{
		Turn:  old,
		Reply: webhook.Reply{HasContent: true, AgentMessage: "late"},
	}})
	m = next.(Model)

	for _, line := range transcriptTexts(m) {
		if strings.Contains(line, "late") {
			t.Fatalf("stale reply leaked into transcript: %#v", transcriptTexts(m))
		}
	}
	if !m.session.State().AwaitingReply {
		t.Fatal("expected second turn still awaiting")
	}
}

func TestCopyKey(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{name: "copied", wantStatus: "Copied transcript to clipboard"},
		{name: "tool missing", err: clipboard.ErrToolNotFound, wantStatus: "Could not copy: clipboard tool not found"},
		{name: "command failed", err: errors.New("exit status 1"), wantStatus: "Could not copy: exit status 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, &scriptedTransport{})
			var copied string
			m.copyText = func(_ context.Context, text string) error {
				copied = text
				return tt.err
			}

			m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
			m = pump(t, m, cmd)

			if m.status != tt.wantStatus {
				t.Fatalf("unexpected status %q, want %q", m.status, tt.wantStatus)
			}
			if !strings.HasPrefix(copied, "## Agent\n\nSeja bem-vindo!") {
				t.Fatalf("unexpected clipboard text: %q", copied)
			}
		})
	}
}

func TestExportKeyWritesMarkdown(t *testing.T) {
	m := newTestModel(t, &scriptedTransport{})

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlE})
	m = pump(t, m, cmd)

	if !strings.HasPrefix(m.status, "Exported: ") {
		t.Fatalf("unexpected status: %q (err=%v)", m.status, m.err)
	}
	path := strings.TrimPrefix(m.status, "Exported: ")
	if filepath.Base(path) != m.session.ID()+".md" {
		t.Fatalf("unexpected export path: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "endpoint: "+initialEndpoint) {
		t.Fatalf("unexpected export:\n%s", data)
	}
}

func TestQuitCancelsInFlightTurn(t *testing.T) {
	m := newTestModel(t, &scriptedTransport{})
	turn, err := m.session.Begin(context.Background(), "oi")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	if turn.Context().Err() == nil {
		t.Fatal("expected in-flight turn cancelled on quit")
	}
}

func TestViewPlacesPanelBottomRight(t *testing.T) {
	m := newTestModel(t, &scriptedTransport{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)

	view := m.View()
	lines := strings.Split(view, "\n")
	if len(lines) != 40 {
		t.Fatalf("expected view to fill terminal height, got %d lines", len(lines))
	}
	if w := lipgloss.Width(view); w != 120 {
		t.Fatalf("expected view to fill terminal width, got %d", w)
	}
	last := ansi.Strip(lines[len(lines)-1])
	if !strings.HasPrefix(last, strings.Repeat(" ", 120-maxPanelWidth)) {
		t.Fatalf("expected panel anchored right, got %q", last)
	}
	plain := ansi.Strip(view)
	for _, want := range []string{"Agente SDR", "vya.digital", "Seja bem-vindo!"} {
		if !strings.Contains(plain, want) {
			t.Fatalf("expected %q in view:\n%s", want, plain)
		}
	}
}
