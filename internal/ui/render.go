package ui

import (
	"strconv"
	"strings"

	"agent-widget/internal/session"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// renderTranscript lays the conversation out as chat bubbles: client
// messages on the right, agent messages on the left rendered as Markdown.
func (m *Model) renderTranscript(st session.State, width int) string {
	if width < 10 {
		width = 10
	}
	bubbleWidth := width * 4 / 5

	blocks := make([]string, 0, len(st.Transcript)+1)
	for _, msg := range st.Transcript {
		switch msg.Role {
		case session.RoleClient:
			bubble := clientBubbleStyle.Width(min(bubbleWidth, lipgloss.Width(msg.Text)+2)).Render(msg.Text)
			blocks = append(blocks, lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble))
		default:
			text := m.renderAgentText(msg, bubbleWidth-2)
			bubble := agentBubbleStyle.MaxWidth(bubbleWidth).Render(text)
			blocks = append(blocks, lipgloss.PlaceHorizontal(width, lipgloss.Left, bubble))
		}
	}
	if st.AwaitingReply {
		blocks = append(blocks, typingStyle.Render(m.spinner.View()))
	}
	return strings.Join(blocks, "\n")
}

func (m *Model) renderAgentText(msg session.Message, wrap int) string {
	if wrap < 10 {
		wrap = 10
	}
	if m.renderer == nil || m.renderWidth != wrap {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.glamourStyle()),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			m.logger.Warn().Err(err).Msg("markdown renderer unavailable")
			return ansi.Wordwrap(msg.Text, wrap, "")
		}
		m.renderer = r
		m.renderWidth = wrap
		m.rendered = make(map[int64]string)
	}
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}

	out, err := m.renderer.Render(msg.Text)
	if err != nil {
		out = ansi.Wordwrap(msg.Text, wrap, "")
	} else {
		out = trimRendered(out)
	}
	m.rendered[msg.ID] = out
	return out
}

func (m *Model) glamourStyle() string {
	if strings.TrimSpace(m.cfg.GlamourStyle) == "" {
		return "dark"
	}
	return m.cfg.GlamourStyle
}

// trimRendered drops the blank lines glamour puts around a document and the
// padding it adds to the right of each line.
func trimRendered(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(ansi.Strip(line)) == "" {
			if len(out) == 0 {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimRight(line, " "))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func (m Model) headerView(width int) string {
	badge := badgeStyle.Render("vya.digital")
	title := titleStyle.Render("Agente SDR")
	gap := width - lipgloss.Width(badge) - lipgloss.Width(title)
	if gap < 1 {
		return ansi.Truncate(badge+" "+title, width, "…")
	}
	return badge + strings.Repeat(" ", gap) + title
}

func placeBottomRight(width, height int, panel string) string {
	return lipgloss.Place(width, height, lipgloss.Right, lipgloss.Bottom, panel)
}

func messageCountLabel(n int) string {
	if n == 1 {
		return "1 msg"
	}
	return strconv.Itoa(n) + " msgs"
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("160")).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("124")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().
			Bold(true)
	clientBubbleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("231")).
				Background(lipgloss.Color("25")).
				Padding(0, 1)
	agentBubbleStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(lipgloss.Color("240"))
	typingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			PaddingLeft(1)
	endedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)
