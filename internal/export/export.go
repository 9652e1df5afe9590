package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chat-widget/internal/chat"
)

const DefaultDir = "chat-exports"

const TypingLine = "_Typing..._"

type Exporter struct {
	overrideDir string
	cwd         string
	endpoint    string
	now         func() time.Time
}

func New(overrideDir, endpoint string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	return &Exporter{
		overrideDir: strings.TrimSpace(overrideDir),
		cwd:         cwd,
		endpoint:    endpoint,
		now:         time.Now,
	}, nil
}

func (e *Exporter) Export(sessionID string, messages []chat.Message) (string, error) {
	path := e.outputPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	body := BuildTranscriptMarkdown(messages, false)
	md := BuildSessionMarkdown(sessionID, e.endpoint, len(messages), body, e.now().UTC())
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

// BuildTranscriptMarkdown renders messages in display order. User text goes in
// a blockquote so it reads apart from ai replies.
func BuildTranscriptMarkdown(messages []chat.Message, typing bool) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Sender {
		case chat.SenderUser:
			b.WriteString("## You\n\n")
			b.WriteString(quoteUserText(m.Text) + "\n\n")
		default:
			b.WriteString("## AI\n\n")
			b.WriteString(strings.TrimSpace(m.Text) + "\n\n")
		}
	}
	if typing {
		b.WriteString("## AI\n\n" + TypingLine + "\n\n")
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func quoteUserText(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

func BuildSessionMarkdown(sessionID, endpoint string, count int, transcript string, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Chat session " + safeValue(sessionID) + "\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString("```text\n")
	b.WriteString("endpoint: " + safeValue(endpoint) + "\n")
	b.WriteString(fmt.Sprintf("message_count: %d\n", count))
	b.WriteString("```\n\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (e *Exporter) outputPath(sessionID string) string {
	dir := e.overrideDir
	if dir == "" {
		dir = DefaultDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(e.cwd, dir)
	}
	return filepath.Join(dir, safeFileName(sessionID)+".md")
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "session"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}

func safeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}
