package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat-widget/internal/chat"
	"chat-widget/internal/clipboard"
	"chat-widget/internal/config"
	"chat-widget/internal/export"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/rs/zerolog/log"
)

const (
	maxPanelWidth  = 60
	minPanelWidth  = 30
	maxPanelHeight = 32
	minPanelHeight = 12
)

type Model struct {
	cfg      config.AppConfig
	ctrl     *chat.Controller
	exporter *export.Exporter

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	width  int
	height int

	sync   *viewSync
	render *markdownRenderer

	status string
}

type viewSync struct {
	scroll bool
}

type markdownRenderer struct {
	style string
	wrap  int
	r     *glamour.TermRenderer
}

type replyMsg struct {
	pending chat.Pending
	result  chat.Result
}
type exportMsg struct {
	path string
	err  error
}
type copyMsg struct {
	err error
}

func NewModel(cfg config.AppConfig, ctrl *chat.Controller, exp *export.Exporter) Model {
	vp := viewport.New(maxPanelWidth-4, 10)

	ti := textinput.New()
	ti.Placeholder = "Type your message"
	ti.Prompt = "> "
	ti.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Points

	h := help.New()
	h.ShowAll = false

	m := Model{
		cfg:      cfg,
		ctrl:     ctrl,
		exporter: exp,
		viewport: vp,
		input:    ti,
		spinner:  sp,
		help:     h,
		keys:     defaultKeys(),
		sync:     &viewSync{scroll: true},
		render:   &markdownRenderer{style: cfg.GlamourStyle},
	}
	sync := m.sync
	ctrl.OnChange(func(ch chat.Change) {
		if ch.NeedsScroll() {
			sync.scroll = true
		}
	})
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) sendCmd(p chat.Pending) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return replyMsg{pending: p, result: ctrl.Call(context.Background(), p)}
	}
}

func (m Model) exportCmd() tea.Cmd {
	if m.exporter == nil {
		return nil
	}
	sessionID := m.ctrl.SessionID()
	msgs := m.ctrl.Transcript()
	exp := m.exporter
	return func() tea.Msg {
		path, err := exp.Export(sessionID, msgs)
		return exportMsg{path: path, err: err}
	}
}

func (m Model) copyCmd() tea.Cmd {
	text, ok := m.ctrl.LastReply()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{err: clipboard.Copy(ctx, text)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.sync.scroll = true

	case replyMsg:
		if _, err := m.ctrl.Finish(msg.pending, msg.result); err != nil {
			log.Warn().Err(err).Int("seq", msg.pending.Seq).Msg("stale reply dropped")
		}
		if m.ctrl.PanelOpen() {
			m.input.Focus()
		}

	case spinner.TickMsg:
		if m.ctrl.AwaitingReply() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case exportMsg:
		if msg.err != nil {
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported: " + msg.path
		}

	case copyMsg:
		switch {
		case errors.Is(msg.err, clipboard.ErrUnavailable):
			m.status = "Could not copy: clipboard tool not found"
		case msg.err != nil:
			m.status = "Could not copy: " + msg.err.Error()
		default:
			m.status = "Copied last reply to clipboard"
		}

	case tea.KeyMsg:
		var quit bool
		m, cmds, quit = m.handleKey(msg, cmds)
		if quit {
			return m, tea.Quit
		}

	default:
		if m.ctrl.PanelOpen() && !m.ctrl.AwaitingReply() {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if m.sync.scroll {
		m.sync.scroll = false
		m.refreshTranscript()
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg, cmds []tea.Cmd) (Model, []tea.Cmd, bool) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, cmds, true
	}
	if key.Matches(msg, m.keys.Toggle) {
		m.setPanel(m.ctrl.TogglePanel())
		return m, cmds, false
	}

	if !m.ctrl.PanelOpen() {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, cmds, true
		case key.Matches(msg, m.keys.Open):
			m.setPanel(m.ctrl.TogglePanel())
		}
		return m, cmds, false
	}

	switch {
	case key.Matches(msg, m.keys.Close):
		m.setPanel(m.ctrl.TogglePanel())
		return m, cmds, false
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, cmds, false
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, cmds, false
	case key.Matches(msg, m.keys.Export):
		return m, append(cmds, m.exportCmd()), false
	case key.Matches(msg, m.keys.Copy):
		return m, append(cmds, m.copyCmd()), false
	case key.Matches(msg, m.keys.Send):
		return m.submit(cmds)
	}

	// The input is disabled while a reply is pending.
	if m.ctrl.AwaitingReply() {
		return m, cmds, false
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.ctrl.SetDraft(m.input.Value())
	return m, append(cmds, cmd), false
}

func (m Model) submit(cmds []tea.Cmd) (Model, []tea.Cmd, bool) {
	p, err := m.ctrl.Begin()
	switch {
	case errors.Is(err, chat.ErrEmptyDraft):
		return m, cmds, false
	case errors.Is(err, chat.ErrBusy):
		m.status = "Still waiting for the last reply"
		return m, cmds, false
	case err != nil:
		m.status = "Send failed: " + err.Error()
		return m, cmds, false
	}
	m.status = ""
	m.input.SetValue("")
	m.input.Blur()
	return m, append(cmds, m.sendCmd(p), m.spinner.Tick), false
}

func (m *Model) setPanel(open bool) {
	if open {
		if !m.ctrl.AwaitingReply() {
			m.input.Focus()
		}
		m.sync.scroll = true
		return
	}
	m.input.Blur()
}

func (m *Model) refreshTranscript() {
	md := export.BuildTranscriptMarkdown(m.ctrl.Transcript(), m.ctrl.AwaitingReply())
	m.viewport.SetContent(m.render.Render(md, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (r *markdownRenderer) Render(md string, width int) string {
	wrap := width - 2
	if wrap < 20 {
		wrap = 20
	}
	if r.r == nil || r.wrap != wrap {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			log.Debug().Err(err).Msg("glamour renderer unavailable")
			return md
		}
		r.r, r.wrap = tr, wrap
	}
	out, err := r.r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func (m *Model) panelSize() (int, int) {
	w := m.width - 2
	if w > maxPanelWidth {
		w = maxPanelWidth
	}
	if w < minPanelWidth {
		w = minPanelWidth
	}
	h := m.height - 1
	if h > maxPanelHeight {
		h = maxPanelHeight
	}
	if h < minPanelHeight {
		h = minPanelHeight
	}
	return w, h
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	w, h := m.panelSize()
	inner := w - 4
	// heading (2) + status (1) + input (1) + help (1), inside a border.
	vpHeight := h - 2 - 5
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = inner
	m.viewport.Height = vpHeight
	m.input.Width = inner - lipgloss.Width(sendLabel) - 4
	m.help.Width = inner
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}
	if !m.ctrl.PanelOpen() {
		button := launcherStyle.Render("💬 Chat")
		hint := hintStyle.Render("ctrl+o open · q quit")
		return lipgloss.Place(m.width, m.height, lipgloss.Right, lipgloss.Bottom,
			lipgloss.JoinVertical(lipgloss.Right, button, hint))
	}

	w, h := m.panelSize()
	inner := w - 4

	heading := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Width(inner-3).Render(m.cfg.Title),
		hintStyle.Render("esc"),
	)
	sub := subtitleStyle.Render(ansi.Truncate(m.cfg.Subtitle, inner, "…"))

	inputRow := lipgloss.JoinHorizontal(lipgloss.Center,
		m.input.View(),
		" ",
		sendButton(m.ctrl.CanSubmit()),
	)

	body := lipgloss.JoinVertical(lipgloss.Left,
		heading,
		sub,
		m.viewport.View(),
		m.statusLine(inner),
		inputRow,
		m.help.View(m.keys),
	)
	panel := panelStyle.Width(w - 2).MaxHeight(h).Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Right, lipgloss.Bottom, panel)
}

func (m Model) statusLine(width int) string {
	var s string
	switch {
	case m.ctrl.AwaitingReply():
		s = m.spinner.View() + " AI is typing..."
	case strings.TrimSpace(m.status) != "":
		s = strings.TrimSpace(m.status)
	}
	return statusStyle.Render(ansi.Truncate(s, width, "…"))
}

const sendLabel = "[ Send ]"

func sendButton(enabled bool) string {
	if enabled {
		return sendEnabledStyle.Render(sendLabel)
	}
	return sendDisabledStyle.Render(sendLabel)
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("220")).
			Padding(0, 1)
	launcherStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("220")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))
	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)
	sendEnabledStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("220"))
	sendDisabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)
