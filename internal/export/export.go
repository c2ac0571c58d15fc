// Package export serializes selected conversations to JSON, Markdown,
// or plain text files on disk, grounded on the
// teacher's internal/memory/store.go atomic-write helpers.
package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// Format is one of the supported export formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatMD   Format = "md"
	FormatTXT  Format = "txt"
)

// ValidFormat reports whether f is a recognized format value.
func ValidFormat(f string) bool {
	switch Format(f) {
	case FormatJSON, FormatMD, FormatTXT:
		return true
	default:
		return false
	}
}

// extensionFor maps a Format to its file extension.
func extensionFor(f Format) string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMD:
		return "md"
	default:
		return "txt"
	}
}

// ShortID is the first 8 hex characters of sha256(source:id), used in
// the exported filename.
func ShortID(c gandalf.Conversation) string {
	sum := sha256.Sum256([]byte(string(c.Source) + ":" + c.ID))
	return hex.EncodeToString(sum[:])[:8]
}

// sanitizeTitle keeps project.SanitizeName's allowed characters
// ([A-Za-z0-9._-]), but maps spaces to '-' and other characters to '_',
// and truncates the result to 60 bytes, so exported filenames are
// filesystem-safe on every platform.
func sanitizeTitle(title string) string {
	if title == "" {
		title = "untitled"
	}
	var b strings.Builder
	for _, r := range title {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}

// Export writes one file per conversation into outputDir, returning
// the written paths in input order. Name collisions get a numeric
// suffix; the exporter never overwrites without it.
func Export(conversations []gandalf.Conversation, format Format, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating export dir %s: %w", outputDir, err)
	}

	var written []string
	for _, c := range conversations {
		path, err := writeOne(c, format, outputDir)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeOne(c gandalf.Conversation, format Format, outputDir string) (string, error) {
	base := fmt.Sprintf("%s-%s.%s", sanitizeTitle(c.Title), ShortID(c), extensionFor(format))
	path := filepath.Join(outputDir, base)
	path = resolveCollision(path)

	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(c, "", "  ")
	case FormatMD:
		data = []byte(renderMarkdown(c))
	default:
		data = []byte(stripMarkdown(renderMarkdown(c)))
	}
	if err != nil {
		return "", err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

// resolveCollision appends a numeric suffix (name-1.ext, name-2.ext,
// ...) until it finds a path that doesn't exist yet.
func resolveCollision(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

func renderMarkdown(c gandalf.Conversation) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", c.Title)
	fmt.Fprintf(&b, "source: %s\n", c.Source)
	fmt.Fprintf(&b, "created_at: %s\n", c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "updated_at: %s\n", c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "prompt_count: %d\n", c.PromptCount)
	fmt.Fprintf(&b, "generation_count: %d\n", c.GenerationCount)
	b.WriteString("---\n\n")
	b.WriteString("## Messages\n\n")
	for _, m := range c.Messages {
		fmt.Fprintf(&b, "[%s] %s\n\n", m.Role, m.Content)
	}
	return b.String()
}

// stripMarkdown removes the front-matter fencing and heading markup,
// leaving plain text content.
func stripMarkdown(md string) string {
	md = strings.ReplaceAll(md, "---\n", "")
	md = strings.ReplaceAll(md, "## Messages\n\n", "")
	return md
}
