package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/edgard/cropwise/internal/assistant"
	"github.com/edgard/cropwise/internal/crop"
	"github.com/edgard/cropwise/internal/session"
)

var (
	brand = lipgloss.Color("34")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(brand)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(brand).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	focusStyle   = lipgloss.NewStyle().Bold(true).Foreground(brand)
	resultStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	userStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the screen.
func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.opts.Messages.Title),
		lipgloss.JoinHorizontal(lipgloss.Top, m.panelView(), m.chatView()),
		m.helpView(),
	)
}

func (m Model) panelView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Input Parameters"))
	b.WriteString("\n")

	for i, bound := range crop.Bounds {
		label := labelStyle.Render(bound.Label)
		if m.focus == i {
			label = focusStyle.Render("› " + bound.Label)
		}
		b.WriteString(label + "\n" + m.inputs[i].View() + "\n")
	}

	if m.result != "" {
		b.WriteString("\n" + resultStyle.Render(m.result) + "\n")
	}
	for _, n := range m.notices {
		b.WriteString(noticeStyle.Width(panelWidth-4).Render(n) + "\n")
	}

	return panelStyle.Width(panelWidth).Render(b.String())
}

func (m Model) chatView() string {
	status := ""
	if m.busy {
		status = m.spin.View() + " "
	}
	status += dimStyle.Render(m.status)

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Farmer Assistant"),
		m.view.View(),
		status,
		m.chat.View(),
	))
}

func (m Model) helpView() string {
	parts := make([]string, 0, len(m.keys.help()))
	for _, k := range m.keys.help() {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}

	return dimStyle.Render(strings.Join(parts, " • "))
}

func (m Model) renderTurn(t session.Turn) string {
	if t.Role == assistant.RoleUser {
		line := userStyle.Render("You: ") + t.Content
		if t.Failure != nil {
			line += "\n" + failureStyle.Render(t.Failure.Notice)
		}
		return line
	}

	if m.renderer != nil {
		if out, err := m.renderer.Render(t.Content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}

	return t.Content
}
