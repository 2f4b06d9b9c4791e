// Package tui is the full-screen terminal surface: the input panel, the
// recommend trigger and the assistant chat of one session.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/crop"
	"github.com/edgard/cropwise/internal/predictor"
	"github.com/edgard/cropwise/internal/session"
)

// Surface is the session surface name for the terminal UI.
const Surface = "tui"

const (
	chatFocus     = crop.NumFeatures
	panelWidth    = 34
	defaultWidth  = 100
	defaultHeight = 30
)

// Options configures the terminal UI.
type Options struct {
	Messages config.MessagesConfig
	// MarkdownStyle is a glamour standard style name. Empty picks one from
	// the terminal background.
	MarkdownStyle string
	Logger        *zap.Logger
}

type recommendDoneMsg struct {
	rec predictor.Recommendation
	err error
}

type chatDoneMsg struct {
	err error
}

// Model is the bubbletea model of the terminal surface.
type Model struct {
	ctx      context.Context
	sess     *session.Session
	opts     Options
	logger   *zap.Logger
	keys     keyMap
	inputs   []textinput.Model
	chat     textinput.Model
	view     viewport.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer
	focus    int
	busy     bool
	result   string
	notices  []string
	status   string
	width    int
	height   int
}

// New returns a model bound to sess. ctx bounds every action the model
// starts.
func New(ctx context.Context, sess *session.Session, opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	snap := sess.Snapshot()
	values := snap.Panel.Features()

	inputs := make([]textinput.Model, crop.NumFeatures)
	for i, b := range crop.Bounds {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 12
		in.Width = panelWidth - 4
		in.Placeholder = b.Format(b.Min) + " - " + b.Format(b.Max)
		in.SetValue(b.Format(values[i]))
		inputs[i] = in
	}
	inputs[0].Focus()

	chat := textinput.New()
	chat.Placeholder = opts.Messages.ChatPlaceholder
	chat.Prompt = "> "
	chat.CharLimit = 0

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	m := Model{
		ctx:    ctx,
		sess:   sess,
		opts:   opts,
		logger: log.Named("tui"),
		keys:   defaultKeys(),
		inputs: inputs,
		chat:   chat,
		view:   viewport.New(defaultWidth-panelWidth-4, defaultHeight-8),
		spin:   s,
		width:  defaultWidth,
		height: defaultHeight,
	}
	m.resize(defaultWidth, defaultHeight)

	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case recommendDoneMsg:
		m.busy = false
		snap := m.sess.Snapshot()
		m.notices = snap.Flash
		m.syncPanel(snap.Panel)
		m.result = ""
		if msg.err == nil {
			m.result = msg.rec.Headline()
		} else {
			m.logger.Error("prediction failed", zap.Error(msg.err))
		}
		m.status = ""
		return m, nil

	case chatDoneMsg:
		m.busy = false
		m.status = ""
		if msg.err != nil {
			m.logger.Warn("exchange failed", zap.Error(msg.err))
		}
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Next):
		m.setFocus((m.focus + 1) % (chatFocus + 1))
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.setFocus((m.focus + chatFocus) % (chatFocus + 1))
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDn):
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Recommend):
		if m.busy {
			m.status = "Still working on the previous request..."
			return m, nil
		}
		m.busy = true
		m.status = "Predicting..."
		return m, m.recommendCmd(m.entries())

	case key.Matches(msg, m.keys.Send):
		if m.focus != chatFocus {
			m.setFocus(m.focus + 1)
			return m, nil
		}
		text := strings.TrimSpace(m.chat.Value())
		if text == "" {
			return m, nil
		}
		if m.busy {
			m.status = "Still working on the previous request..."
			return m, nil
		}
		m.busy = true
		m.status = "Asking the assistant..."
		m.chat.SetValue("")
		m.refreshTranscriptWith(text)
		return m, m.sendCmd(text)
	}

	var cmd tea.Cmd
	if m.focus == chatFocus {
		m.chat, cmd = m.chat.Update(msg)
	} else {
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	}

	return m, cmd
}

func (m Model) recommendCmd(entries map[crop.Field]string) tea.Cmd {
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		rec, _, err := sess.Recommend(ctx, entries)
		return recommendDoneMsg{rec: rec, err: err}
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		_, err := sess.Send(ctx, text)
		return chatDoneMsg{err: err}
	}
}

func (m *Model) entries() map[crop.Field]string {
	entries := make(map[crop.Field]string, crop.NumFeatures)
	for i, b := range crop.Bounds {
		entries[b.Field] = m.inputs[i].Value()
	}

	return entries
}

// syncPanel shows the values the panel actually holds after clamping.
func (m *Model) syncPanel(v crop.InputVector) {
	values := v.Features()
	for i, b := range crop.Bounds {
		m.inputs[i].SetValue(b.Format(values[i]))
	}
}

func (m *Model) setFocus(i int) {
	m.focus = i
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	if i == chatFocus {
		m.chat.Focus()
	} else {
		m.chat.Blur()
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	chatWidth := max(width-panelWidth-6, 20)
	m.view.Width = chatWidth
	m.view.Height = max(height-8, 3)
	m.chat.Width = chatWidth - 4

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(chatWidth - 2)}
	if m.opts.MarkdownStyle != "" {
		opts = append(opts, glamour.WithStandardStyle(m.opts.MarkdownStyle))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", zap.Error(err))
		r = nil
	}
	m.renderer = r

	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	m.setTranscript(m.sess.Transcript(), "")
}

// refreshTranscriptWith shows pending as an unanswered user turn while the
// assistant is working.
func (m *Model) refreshTranscriptWith(pending string) {
	m.setTranscript(m.sess.Transcript(), pending)
}

func (m *Model) setTranscript(turns []session.Turn, pending string) {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(m.renderTurn(t))
		b.WriteString("\n")
	}
	if pending != "" {
		b.WriteString(userStyle.Render("You: ") + pending + "\n")
	}

	m.view.SetContent(b.String())
	m.view.GotoBottom()
}
