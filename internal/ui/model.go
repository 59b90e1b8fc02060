package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agent-widget/internal/clipboard"
	"agent-widget/internal/config"
	"agent-widget/internal/export"
	"agent-widget/internal/session"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/rs/zerolog"
)

const (
	maxPanelWidth  = 64
	maxPanelHeight = 32
	minPanelWidth  = 28
	minPanelHeight = 12
)

type Model struct {
	cfg      config.AppConfig
	session  *session.Session
	exporter *export.Exporter
	logger   zerolog.Logger
	copyText func(ctx context.Context, text string) error

	viewport viewport.Model
	input    textinput.Model
	help     help.Model
	spinner  spinner.Model
	keys     keyMap

	width  int
	height int

	spinning    bool
	renderer    *glamour.TermRenderer
	renderWidth int
	rendered    map[int64]string

	status string
	err    error
}

type replyMsg struct {
	res session.Result
}
type typedMsg struct {
	pending session.Pending
}
type exportMsg struct {
	path string
	err  error
}
type copyMsg struct {
	err error
}

func NewModel(cfg config.AppConfig, s *session.Session, exp *export.Exporter, logger zerolog.Logger) Model {
	vp := viewport.New(maxPanelWidth-4, maxPanelHeight-6)

	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.Points

	ti := textinput.New()
	ti.Placeholder = "Digite sua mensagem..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	m := Model{
		cfg:      cfg,
		session:  s,
		exporter: exp,
		logger:   logger.With().Str("component", "ui").Logger(),
		copyText: clipboard.Copy,
		viewport: vp,
		input:    ti,
		help:     h,
		spinner:  sp,
		keys:     defaultKeys(),
		rendered: make(map[int64]string),
	}
	m.refreshTranscript()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) exchangeCmd(turn *session.Turn) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		return replyMsg{res: s.Exchange(turn)}
	}
}

// typingCmd holds agent text back for the configured delay before it is
// delivered to the transcript.
func (m Model) typingCmd(p session.Pending) tea.Cmd {
	delay := m.session.TypingDelay()
	if delay <= 0 {
		return func() tea.Msg { return typedMsg{pending: p} }
	}
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return typedMsg{pending: p}
	})
}

func (m Model) notifyResetCmd(n session.Notice) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		s.NotifyReset(context.Background(), n)
		return nil
	}
}

func (m Model) exportCmd() tea.Cmd {
	if m.exporter == nil {
		return nil
	}
	exp := m.exporter
	meta, msgs := m.snapshot()
	return func() tea.Msg {
		path, err := exp.Export(meta, msgs)
		return exportMsg{path: path, err: err}
	}
}

func (m Model) copyCmd() tea.Cmd {
	copyText := m.copyText
	_, msgs := m.snapshot()
	md := export.BuildTranscriptMarkdown(msgs)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{err: copyText(ctx, md)}
	}
}

func (m Model) snapshot() (export.Meta, []session.Message) {
	st := m.session.State()
	meta := export.Meta{
		SessionID: m.session.ID(),
		Endpoint:  st.ActiveEndpoint,
		Phase:     st.Phase(),
	}
	return meta, st.Transcript
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshTranscript()

	case replyMsg:
		eff := m.session.Apply(msg.res)
		if eff.Stale {
			m.logger.Debug().Msg("dropped stale reply")
			break
		}
		if eff.Pending != nil {
			cmds = append(cmds, m.typingCmd(*eff.Pending))
		}
		m.afterTurnChange()

	case typedMsg:
		if m.session.Deliver(msg.pending) {
			m.afterTurnChange()
		}

	case spinner.TickMsg:
		if !m.session.State().AwaitingReply {
			m.spinning = false
			break
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		m.refreshTranscript()

	case exportMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.err = nil
			m.status = "Exported: " + msg.path
		}

	case copyMsg:
		if msg.err != nil {
			m.err = msg.err
			if errors.Is(msg.err, clipboard.ErrToolNotFound) {
				m.status = "Could not copy: clipboard tool not found"
			} else {
				m.status = "Could not copy: " + msg.err.Error()
			}
		} else {
			m.err = nil
			m.status = "Copied transcript to clipboard"
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.session.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Reset):
			n, notify := m.session.Reset()
			m.input.Reset()
			m.input.Focus()
			m.rendered = make(map[int64]string)
			m.err = nil
			m.status = "Conversation reset"
			m.refreshTranscript()
			if notify {
				cmds = append(cmds, m.notifyResetCmd(n))
			}
			return m, tea.Batch(cmds...)
		case key.Matches(msg, m.keys.Export):
			return m, m.exportCmd()
		case key.Matches(msg, m.keys.Copy):
			return m, m.copyCmd()
		case key.Matches(msg, m.keys.PageUp):
			m.viewport.HalfViewUp()
			return m, nil
		case key.Matches(msg, m.keys.PageDown):
			m.viewport.HalfViewDown()
			return m, nil
		case key.Matches(msg, m.keys.Send):
			return m, m.send()
		}

		if m.session.State().Ended {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// send starts a turn for the input line. A turn already in flight is
// superseded.
func (m *Model) send() tea.Cmd {
	if m.session.State().Ended {
		m.status = "Conversation ended. Press ctrl+r to start over."
		return nil
	}
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	turn, err := m.session.Begin(context.Background(), text)
	if err != nil {
		m.err = err
		m.status = "Could not send: " + err.Error()
		return nil
	}
	m.input.Reset()
	m.err = nil
	m.status = ""
	m.refreshTranscript()

	cmds := []tea.Cmd{m.exchangeCmd(turn)}
	if !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func (m *Model) afterTurnChange() {
	if m.session.State().Ended {
		m.input.Blur()
		m.status = "Conversation ended"
	}
	m.refreshTranscript()
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	w, h := m.panelSize()
	inner := w - 4
	m.viewport.Width = inner
	// header, status, input and help take one line each.
	m.viewport.Height = h - 2 - 4
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.input.Width = inner - len(m.input.Prompt) - 1
	m.help.Width = inner
}

func (m Model) panelSize() (int, int) {
	w := min(m.width-2, maxPanelWidth)
	h := min(m.height-1, maxPanelHeight)
	return max(w, minPanelWidth), max(h, minPanelHeight)
}

func (m *Model) refreshTranscript() {
	st := m.session.State()
	m.viewport.SetContent(m.renderTranscript(st, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	w, h := m.panelSize()
	inner := w - 4

	header := m.headerView(inner)
	footer := m.footerView(inner)
	body := strings.Join([]string{
		header,
		m.viewport.View(),
		m.statusLine(inner),
		footer,
		m.help.View(m.keys),
	}, "\n")
	panel := panelStyle.Width(w - 2).Height(h - 2).Render(body)

	if m.width == 0 || m.height == 0 {
		return panel
	}
	return placeBottomRight(m.width, m.height, panel)
}

func (m Model) footerView(width int) string {
	if m.session.State().Ended {
		return endedStyle.Render(ansi.Truncate("Conversa encerrada · ctrl+r para recomeçar", width, "…"))
	}
	return m.input.View()
}

func (m Model) statusLine(width int) string {
	st := m.session.State()
	status := fmt.Sprintf("%s  %s  %s", st.Phase(), shortID(m.session.ID()), messageCountLabel(len(st.Transcript)))
	if strings.TrimSpace(m.status) != "" {
		status += "  " + strings.TrimSpace(m.status)
	}
	if m.err != nil && !strings.Contains(m.status, m.err.Error()) {
		status += "  err=" + m.err.Error()
	}
	return statusStyle.Render(ansi.Truncate(status, width-2, "…"))
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

type keyMap struct {
	Send     key.Binding
	Reset    key.Binding
	Export   key.Binding
	Copy     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Reset: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "reset"),
		),
		Export: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("ctrl+e", "export"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("ctrl+y", "copy"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Reset, k.Export, k.Copy, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Reset, k.Quit},
		{k.PageUp, k.PageDown, k.Export, k.Copy},
	}
}
