package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"chat-widget/internal/backend"
	"chat-widget/internal/chat"
	"chat-widget/internal/devserver"
	"chat-widget/internal/journal"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSendOncePrintsReply(t *testing.T) {
	srv := httptest.NewServer(devserver.New(0, zerolog.Nop()).Router())
	defer srv.Close()

	ctrl := chat.NewController(backend.New(srv.URL+"/chat", backend.WithLogger(zerolog.Nop())), chat.WithLogger(zerolog.Nop()))
	var out bytes.Buffer
	require.NoError(t, sendOnce(context.Background(), ctrl, "Hello", &out))
	require.Equal(t, devserver.EchoPrefix+"Hello\n", out.String())
}

func TestSendOnceRejectsBlank(t *testing.T) {
	ctrl := chat.NewController(nil, chat.WithLogger(zerolog.Nop()))
	var out bytes.Buffer
	err := sendOnce(context.Background(), ctrl, "   ", &out)
	require.EqualError(t, err, "message is empty")
	require.Empty(t, out.String())
}

func TestPrintEntries(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printEntries(&out, nil))
	require.Contains(t, out.String(), "No exchanges recorded.")

	out.Reset()
	require.NoError(t, printEntries(&out, []journal.Entry{
		{SessionID: "0123456789abcdef", Seq: 3, Prompt: "multi\nline   prompt", Reply: chat.ErrorText, ErrorKind: "timeout", DurationMS: 1200},
	}))
	text := out.String()
	require.Contains(t, text, "01234567 #3")
	require.Contains(t, text, "[timeout 1200ms]")
	require.Contains(t, text, "you: multi line prompt")
	require.True(t, strings.Contains(text, "ai:  "+chat.ErrorText))
}

func TestJournalCommandRequiresPath(t *testing.T) {
	root := NewRootCommand("test")
	root.SetArgs([]string{"journal"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "no journal configured")
}

func TestRootRejectsBadEndpoint(t *testing.T) {
	root := NewRootCommand("test")
	root.SetArgs([]string{"--endpoint", "ftp://nowhere", "journal"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "scheme must be http or https")
}
