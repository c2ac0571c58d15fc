// Package windsurf implements the Windsurf conversation source.
// Windsurf's on-disk conversation format is undocumented, so this
// adapter reports workspace metadata and participates in aggregation
// totals, but never produces conversations.
package windsurf

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gandalf-mcp/gandalf/internal/source"
	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// Adapter is grounded on the sidecar's Adapter interface shape
// (internal/adapter/adapter.go), narrowed to the source.Adapter
// capability set every conversation source implements.
type Adapter struct {
	configDir string // per-OS Windsurf config/workspace-storage directory
}

// New resolves the default Windsurf config directory for the host OS.
func New() *Adapter {
	home, _ := os.UserHomeDir()
	var dir string
	switch {
	case os.Getenv("APPDATA") != "":
		dir = filepath.Join(os.Getenv("APPDATA"), "Windsurf", "User", "workspaceStorage")
	default:
		dir = filepath.Join(home, ".config", "Windsurf", "User", "workspaceStorage")
	}
	return &Adapter{configDir: dir}
}

func (a *Adapter) Name() gandalf.Source { return gandalf.SourceWindsurf }

func (a *Adapter) Detect(ctx context.Context) bool {
	info, err := os.Stat(a.configDir)
	return err == nil && info.IsDir()
}

// ListWorkspaces enumerates workspaceStorage subdirectories as
// metadata-only workspaces; totals are always zero since this adapter
// never parses conversation content.
func (a *Adapter) ListWorkspaces(ctx context.Context) ([]gandalf.Workspace, error) {
	entries, err := os.ReadDir(a.configDir)
	if err != nil {
		return nil, nil // absent store contributes zero workspaces, no error
	}

	workspaces := make([]gandalf.Workspace, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		workspaces = append(workspaces, gandalf.Workspace{
			WorkspaceID: e.Name(),
			Path:        filepath.Join(a.configDir, e.Name()),
			Source:      gandalf.SourceWindsurf,
		})
	}
	return workspaces, nil
}

// Extract always returns an empty conversation slice. This is a
// documented design limitation, not a bug: the adapter still
// participates in aggregation by returning a clean empty result
// rather than an error.
func (a *Adapter) Extract(ctx context.Context, filter source.Filter) ([]gandalf.Conversation, []source.StoreStat, error) {
	return nil, nil, nil
}

// StatStores always returns no stores: this adapter never reads
// conversation content, so it has nothing to fingerprint.
func (a *Adapter) StatStores(ctx context.Context) ([]source.StoreStat, error) {
	return nil, nil
}
