package project

import (
	"io/fs"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// IgnorePolicy implements three-layer ignore rule:
// built-in excludes, .gitignore rules rooted at the project, and
// hidden-file exclusion (toggleable).
type IgnorePolicy struct {
	includeHidden bool
	gitignore     *ignore.GitIgnore // nil if the project has no .gitignore
}

// NewIgnorePolicy loads <root>/.gitignore if present.
func NewIgnorePolicy(root string, includeHidden bool) *IgnorePolicy {
	p := &IgnorePolicy{includeHidden: includeHidden}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		p.gitignore = gi
	}
	return p
}

// ShouldSkipDir reports whether a directory (given its relative path
// and base name) should not be descended into.
func (p *IgnorePolicy) ShouldSkipDir(relPath, name string) bool {
	if builtinExcludeDirs[name] {
		return true
	}
	if !p.includeHidden && strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	if p.gitignore != nil && p.gitignore.MatchesPath(relPath+"/") {
		return true
	}
	return false
}

// ShouldSkipFile reports whether a file should be excluded from
// enumeration.
func (p *IgnorePolicy) ShouldSkipFile(relPath, name string) bool {
	if !p.includeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	if p.gitignore != nil && p.gitignore.MatchesPath(relPath) {
		return true
	}
	return false
}

// EnumerateFiles walks root honoring policy, returning FileEntry
// values with Score/PriorityTier left at their zero value; the scorer
// fills those in separately as a pure function of the collected
// signals.
func EnumerateFiles(root string, policy *IgnorePolicy) ([]gandalf.FileEntry, error) {
	var out []gandalf.FileEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, do not abort the walk
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if policy.ShouldSkipDir(rel, name) {
				return filepath.SkipDir
			}
			return nil
		}

		if policy.ShouldSkipFile(rel, name) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		out = append(out, gandalf.FileEntry{
			RelativePath: rel,
			SizeBytes:    info.Size(),
			ModifiedAt:   info.ModTime(),
			Extension:    strings.ToLower(filepath.Ext(name)),
			IsHidden:     strings.HasPrefix(name, "."),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FilterByExtension keeps only entries whose extension is in types
// (case-insensitive, leading dot optional). An empty types list means
// "no filter".
func FilterByExtension(entries []gandalf.FileEntry, types []string) []gandalf.FileEntry {
	if len(types) == 0 {
		return entries
	}
	want := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		want[t] = true
	}
	out := make([]gandalf.FileEntry, 0, len(entries))
	for _, e := range entries {
		if want[e.Extension] {
			out = append(out, e)
		}
	}
	return out
}
