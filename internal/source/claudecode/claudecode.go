// Package claudecode implements the Claude Code conversation source:
// a directory tree of per-session JSONL files, one file per session,
// one message per line.
package claudecode

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gandalf-mcp/gandalf/internal/source"
	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// scannerBufPool reuses 64KB initial scan buffers across session files
// to keep per-file parsing allocation-light; the scanner may grow a
// buffer up to 1MB for a long line.
var scannerBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 64*1024)
		return &buf
	},
}

// Adapter walks rootDir (default ~/.claude/projects) for per-project,
// per-session JSONL files.
type Adapter struct {
	rootDir string
}

// New resolves the Claude Code projects directory.
func New() *Adapter {
	home, _ := os.UserHomeDir()
	return &Adapter{rootDir: filepath.Join(home, ".claude", "projects")}
}

// NewWithRoot overrides the root directory, used by tests and by a
// caller that knows the workspace's slugged project directory already.
func NewWithRoot(root string) *Adapter {
	return &Adapter{rootDir: root}
}

func (a *Adapter) Name() gandalf.Source { return gandalf.SourceClaudeCode }

func (a *Adapter) Detect(ctx context.Context) bool {
	info, err := os.Stat(a.rootDir)
	return err == nil && info.IsDir()
}

// ListWorkspaces treats each immediate subdirectory of rootDir (one
// per project, named by the sidecar's slug convention
// "-Users-foo-code-project") as a workspace.
func (a *Adapter) ListWorkspaces(ctx context.Context) ([]gandalf.Workspace, error) {
	entries, err := os.ReadDir(a.rootDir)
	if err != nil {
		return nil, nil
	}

	var workspaces []gandalf.Workspace
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(a.rootDir, e.Name())
		sessions, _ := os.ReadDir(dir)
		totals := gandalf.Totals{}
		for _, s := range sessions {
			if strings.HasSuffix(s.Name(), ".jsonl") {
				totals.Conversations++
			}
		}
		workspaces = append(workspaces, gandalf.Workspace{
			WorkspaceID: e.Name(),
			Path:        dir,
			Source:      gandalf.SourceClaudeCode,
			Totals:      totals,
		})
	}
	return workspaces, nil
}

// rawMessage mirrors the subset of Claude Code's JSONL line shape this
// adapter reads: a role-tagged content entry with optional timestamp.
type rawMessage struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type rawInnerMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Extract walks every session JSONL file under every workspace
// directory and parses it into a Conversation.
func (a *Adapter) Extract(ctx context.Context, filter source.Filter) ([]gandalf.Conversation, []source.StoreStat, error) {
	workspaces, err := a.ListWorkspaces(ctx)
	if err != nil || len(workspaces) == 0 {
		return nil, nil, nil
	}

	var convos []gandalf.Conversation
	var stats []source.StoreStat

	for _, ws := range workspaces {
		select {
		case <-ctx.Done():
			return convos, stats, ctx.Err()
		default:
		}

		files, err := os.ReadDir(ws.Path)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			path := filepath.Join(ws.Path, f.Name())
			info, err := f.Info()
			if err != nil {
				continue
			}
			stats = append(stats, source.StoreStat{Path: path, Size: info.Size(), ModTime: info.ModTime().UnixNano()})

			convo, err := parseSessionFile(path, ws.WorkspaceID, filter.FastMode)
			if err != nil {
				continue // corrupt session file: skip with no hard failure
			}
			convos = append(convos, convo)
		}
	}

	sort.Slice(convos, func(i, j int) bool { return convos[i].UpdatedAt.After(convos[j].UpdatedAt) })
	return convos, stats, nil
}

// StatStores walks the same session files Extract would, statting each
// one without opening or parsing it.
func (a *Adapter) StatStores(ctx context.Context) ([]source.StoreStat, error) {
	workspaces, err := a.ListWorkspaces(ctx)
	if err != nil || len(workspaces) == 0 {
		return nil, nil
	}

	var stats []source.StoreStat
	for _, ws := range workspaces {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		files, err := os.ReadDir(ws.Path)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			stats = append(stats, source.StoreStat{
				Path:    filepath.Join(ws.Path, f.Name()),
				Size:    info.Size(),
				ModTime: info.ModTime().UnixNano(),
			})
		}
	}
	return stats, nil
}

// parseSessionFile reads one session JSONL file into a Conversation.
// The file's UUID-derived name is the conversation id; created_at and
// updated_at come from the first and last message timestamps.
func parseSessionFile(path, workspaceID string, fastMode bool) (gandalf.Conversation, error) {
	id := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	f, err := os.Open(path)
	if err != nil {
		return gandalf.Conversation{}, err
	}
	defer f.Close()

	bufPtr := scannerBufPool.Get().(*[]byte)
	defer scannerBufPool.Put(bufPtr)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(*bufPtr, 1024*1024)

	var messages []gandalf.Message
	var firstTS, lastTS time.Time
	var firstUserMsg string
	var promptCount, genCount int

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw rawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}

		var ts *time.Time
		if t, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			ts = &t
			if firstTS.IsZero() {
				firstTS = t
			}
			lastTS = t
		}

		var inner rawInnerMessage
		role := raw.Role
		content := ""
		if len(raw.Message) > 0 {
			if err := json.Unmarshal(raw.Message, &inner); err == nil {
				if role == "" {
					role = inner.Role
				}
				content = flattenContent(inner.Content)
			}
		}

		if role == "user" && firstUserMsg == "" && content != "" {
			firstUserMsg = content
		}

		switch normalizeRole(role) {
		case "user":
			promptCount++
		case "assistant":
			genCount++
		}

		if !fastMode {
			messages = append(messages, gandalf.Message{
				Role:      gandalf.Role(normalizeRole(role)),
				Content:   content,
				Timestamp: ts,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return gandalf.Conversation{}, err
	}

	if firstTS.IsZero() {
		info, statErr := os.Stat(path)
		if statErr == nil {
			firstTS = info.ModTime()
			lastTS = info.ModTime()
		}
	}

	title := firstUserMsg
	if len(title) > 80 {
		title = title[:80]
	}

	return gandalf.Conversation{
		ID:              id,
		Source:          gandalf.SourceClaudeCode,
		WorkspaceID:     workspaceID,
		Title:           title,
		CreatedAt:       firstTS,
		UpdatedAt:       lastTS,
		PromptCount:     promptCount,
		GenerationCount: genCount,
		TotalExchanges:  promptCount + genCount,
		Messages:        messages,
		ActivityScore:   activityScore(lastTS, promptCount+genCount),
	}, nil
}

func normalizeRole(role string) string {
	switch role {
	case "user", "assistant", "tool", "system":
		return role
	default:
		return "system"
	}
}

// flattenContent handles both the plain-string and structured
// content-block shapes Claude Code's transcript format uses.
func flattenContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, block := range v {
			m, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(text)
			}
		}
		return b.String()
	default:
		return ""
	}
}

// activityScore is a recency+volume composite; recency dominates via exponential-ish decay,
// volume contributes a bounded bonus.
func activityScore(updatedAt time.Time, exchanges int) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	ageHours := time.Since(updatedAt).Hours()
	recency := 1.0 / (1.0 + ageHours/24.0)
	volume := float64(exchanges) / 50.0
	if volume > 1.0 {
		volume = 1.0
	}
	return recency*0.7 + volume*0.3
}
