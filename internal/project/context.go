// Package project resolves the workspace root, collects git metadata,
// and enumerates project files under a layered ignore policy.
package project

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// defaultGitTimeout bounds every git subprocess invocation.
const defaultGitTimeout = 5 * time.Second

// builtinExcludeDirs lists directories never worth walking: VCS
// internals, dependency/vendor trees, build output, and editor/OS
// metadata directories.
var builtinExcludeDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, "target": true, "bin": true, "obj": true,
	"__pycache__": true, ".venv": true, "venv": true,
	".idea": true, ".vscode": true, ".DS_Store": true,
}

// ResolveRoot implements the workspace-root precedence chain: explicit
// flag, then editor-provided workspace folder, then git top-level,
// then PWD, then cwd. explicitRoot is the --project-root flag value,
// empty if unset.
func ResolveRoot(explicitRoot, cwd string) (string, error) {
	candidates := make([]string, 0, 5)

	if explicitRoot != "" {
		candidates = append(candidates, explicitRoot)
	}
	if wf := os.Getenv("WORKSPACE_FOLDER_PATHS"); wf != "" {
		for _, p := range strings.Split(wf, ":") {
			if p != "" {
				candidates = append(candidates, p)
			}
		}
	}
	if top := gitTopLevel(cwd); top != "" {
		candidates = append(candidates, top)
	}
	if pwd := os.Getenv("PWD"); pwd != "" {
		candidates = append(candidates, pwd)
	}
	candidates = append(candidates, cwd)

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			real, err := filepath.EvalSymlinks(c)
			if err != nil {
				real = c
			}
			abs, err := filepath.Abs(real)
			if err != nil {
				abs = real
			}
			return abs, nil
		}
	}
	return "", gandalf.NewError(gandalf.KindIO, "", "no usable project root candidate found", nil)
}

// SanitizeName replaces characters outside [A-Za-z0-9._-] with '_'.
// It reports whether sanitization changed the name.
func SanitizeName(raw string) (sanitized string, changed bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	sanitized = b.String()
	return sanitized, sanitized != raw
}

// runGit runs a git subcommand in dir with the bounded timeout,
// returning "" on any failure.
func runGit(dir string, timeout time.Duration, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func gitTopLevel(dir string) string {
	return runGit(dir, defaultGitTimeout, "rev-parse", "--show-toplevel")
}

// Load builds the full ProjectContext for root.
func Load(root string) *gandalf.ProjectContext {
	name := filepath.Base(root)
	sanitized, changed := SanitizeName(name)

	ctx := &gandalf.ProjectContext{
		RootAbsolutePath: root,
		ProjectName:      name,
	}
	if changed {
		ctx.SanitizedName = sanitized
	}

	if info, err := os.Stat(filepath.Join(root, ".git")); err == nil && info.IsDir() {
		ctx.IsGitRepo = true
		ctx.CurrentBranch = runGit(root, defaultGitTimeout, "rev-parse", "--abbrev-ref", "HEAD")
		ctx.GitHead = runGit(root, defaultGitTimeout, "rev-parse", "HEAD")
		ctx.RecentlyModifiedPaths = recentlyModifiedPaths(root)
		ctx.RecentCommitFileSet = recentCommitFileSet(root, 30)
	}

	return ctx
}

// recentlyModifiedPaths lists files with uncommitted changes, bounded
// by git's own porcelain output (no extra cap needed: working trees
// rarely have more than a few hundred dirty files).
func recentlyModifiedPaths(root string) []string {
	out := runGit(root, defaultGitTimeout, "status", "--porcelain")
	if out == "" {
		return nil
	}
	lines := strings.Split(out, "\n")
	paths := make([]string, 0, len(lines))
	for _, line := range lines {
		// runGit trims the whole output, so the first line may have lost
		// the leading space of its two-character status field; skipping
		// two characters and trimming handles both shapes.
		if len(line) > 2 {
			paths = append(paths, strings.TrimSpace(line[2:]))
		}
	}
	return paths
}

// recentCommitFileSet lists files touched by commits within the last
// lookbackDays days. A path appears once per commit that touched it,
// so the caller can derive per-file commit counts rather than just
// set membership.
func recentCommitFileSet(root string, lookbackDays int) []string {
	since := "--since=" + time.Now().AddDate(0, 0, -lookbackDays).Format("2006-01-02")
	out := runGit(root, defaultGitTimeout, "log", since, "--name-only", "--pretty=format:")
	if out == "" {
		return nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	return files
}
