package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agent-widget/internal/session"
)

// Meta describes the conversation an export belongs to.
type Meta struct {
	SessionID string
	Endpoint  string
	Phase     session.Phase
}

type Exporter struct {
	dir string
	cwd string
	now func() time.Time
}

func New(dir string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	return &Exporter{dir: strings.TrimSpace(dir), cwd: cwd, now: time.Now}, nil
}

func (e *Exporter) Export(meta Meta, messages []session.Message) (string, error) {
	path := e.outputPath(meta.SessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	body := BuildTranscriptMarkdown(messages)
	md := BuildSessionMarkdown(meta, len(messages), body, e.now().UTC())
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

func BuildTranscriptMarkdown(messages []session.Message) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Text)
		if content == "" {
			continue
		}
		switch m.Role {
		case session.RoleClient:
			b.WriteString("## You\n\n")
		default:
			b.WriteString("## Agent\n\n")
		}
		b.WriteString(content + "\n\n")
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func BuildSessionMarkdown(meta Meta, messageCount int, transcript string, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Chat session " + safeValue(meta.SessionID) + "\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString("```text\n")
	b.WriteString("endpoint: " + safeValue(meta.Endpoint) + "\n")
	b.WriteString("phase: " + safeValue(string(meta.Phase)) + "\n")
	b.WriteString(fmt.Sprintf("message_count: %d\n", messageCount))
	b.WriteString("```\n\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (e *Exporter) outputPath(sessionID string) string {
	dir := e.dir
	if dir == "" {
		dir = "exports"
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
