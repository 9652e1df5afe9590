package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chat-widget/internal/chat"
	"chat-widget/internal/config"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

func newTestModel(t *testing.T, b chat.Backend) (Model, *chat.Controller) {
	t.Helper()
	ctrl := chat.NewController(b, chat.WithLogger(zerolog.Nop()))
	cfg := config.AppConfig{Title: "Chatbot", Subtitle: "test", GlamourStyle: config.DefaultGlamourStyle}
	m := NewModel(cfg, ctrl, nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model), ctrl
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

// collect runs cmd and flattens batches into the produced messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		out = append(out, collect(c)...)
	}
	return out
}

func findReply(t *testing.T, cmd tea.Cmd) replyMsg {
	t.Helper()
	for _, msg := range collect(cmd) {
		if r, ok := msg.(replyMsg); ok {
			return r
		}
	}
	t.Fatalf("expected a reply message from submit command")
	return replyMsg{}
}

func echoBackend(reply string) chat.Backend {
	return chat.BackendFunc(func(context.Context, string, string) (chat.Reply, error) {
		return chat.Reply{Response: reply}, nil
	})
}

func TestToggleOpensAndClosesPanel(t *testing.T) {
	m, ctrl := newTestModel(t, echoBackend("x"))
	if ctrl.PanelOpen() {
		t.Fatalf("panel should start closed")
	}
	if !strings.Contains(m.View(), "Chat") {
		t.Fatalf("closed view should show the launcher")
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	if !ctrl.PanelOpen() {
		t.Fatalf("expected panel open after ctrl+o")
	}
	if !strings.Contains(m.View(), "Chatbot") {
		t.Fatalf("open view should show the heading")
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if ctrl.PanelOpen() {
		t.Fatalf("expected panel closed after esc")
	}
	if len(ctrl.Transcript()) != 1 {
		t.Fatalf("toggling must not change the transcript")
	}
}

func TestSubmitFlow(t *testing.T) {
	m, ctrl := newTestModel(t, echoBackend("Hi there"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	m = typeText(t, m, "Hello")
	if ctrl.Draft() != "Hello" {
		t.Fatalf("expected draft to follow input, got %q", ctrl.Draft())
	}

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !ctrl.AwaitingReply() {
		t.Fatalf("expected awaiting reply after enter")
	}
	if ctrl.Draft() != "" || m.input.Value() != "" {
		t.Fatalf("expected draft cleared on dispatch")
	}
	if m.input.Focused() {
		t.Fatalf("input should be disabled while sending")
	}
	if !strings.Contains(m.viewport.View(), "Typing") {
		t.Fatalf("expected typing indicator in transcript view")
	}

	// Keystrokes are ignored while the reply is pending.
	m = typeText(t, m, "ignored")
	if m.input.Value() != "" {
		t.Fatalf("input accepted text while disabled: %q", m.input.Value())
	}

	reply := findReply(t, cmd)
	updated, _ := m.Update(reply)
	m = updated.(Model)

	if ctrl.AwaitingReply() {
		t.Fatalf("expected idle after reply")
	}
	got := ctrl.Transcript()
	want := []chat.Message{
		{Sender: chat.SenderAI, Text: chat.Greeting},
		{Sender: chat.SenderUser, Text: "Hello"},
		{Sender: chat.SenderAI, Text: "Hi there"},
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected transcript: %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: got %#v want %#v", i, got[i], want[i])
		}
	}
	if !m.input.Focused() {
		t.Fatalf("input should be enabled again")
	}
	if !m.viewport.AtBottom() {
		t.Fatalf("viewport should be scrolled to the end")
	}
}

func TestEnterWithBlankDraftDoesNothing(t *testing.T) {
	m, ctrl := newTestModel(t, echoBackend("x"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	m = typeText(t, m, "   ")

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if ctrl.AwaitingReply() || len(ctrl.Transcript()) != 1 {
		t.Fatalf("blank submit must not change state")
	}
	for _, msg := range collect(cmd) {
		if _, ok := msg.(replyMsg); ok {
			t.Fatalf("blank submit must not call the backend")
		}
	}
}

func TestFailedReplyShowsGenericError(t *testing.T) {
	m, ctrl := newTestModel(t, chat.BackendFunc(func(context.Context, string, string) (chat.Reply, error) {
		return chat.Reply{}, errors.New("offline")
	}))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	m = typeText(t, m, "test")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	updated, _ := m.Update(findReply(t, cmd))
	_ = updated.(Model)

	msgs := ctrl.Transcript()
	if msgs[len(msgs)-1].Text != "Error contacting backend." {
		t.Fatalf("unexpected last message: %#v", msgs[len(msgs)-1])
	}
	if ctrl.AwaitingReply() {
		t.Fatalf("awaiting must reset after failure")
	}
}

func TestClosedPanelQuitKey(t *testing.T) {
	m, _ := newTestModel(t, echoBackend("x"))
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}
