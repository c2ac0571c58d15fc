package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeNameReportsChange(t *testing.T) {
	sanitized, changed := SanitizeName("my project!")
	if !changed {
		t.Fatal("expected a change for a name containing a space and '!'")
	}
	if sanitized != "my_project_" {
		t.Fatalf("got %q", sanitized)
	}

	sanitized, changed = SanitizeName("clean-name_1.0")
	if changed {
		t.Fatal("expected no change for an already-clean name")
	}
	if sanitized != "clean-name_1.0" {
		t.Fatalf("got %q", sanitized)
	}
}

func TestResolveRootPrefersExplicitFlag(t *testing.T) {
	dir := t.TempDir()
	root, err := ResolveRoot(dir, "/nonexistent-cwd-for-test")
	if err != nil {
		t.Fatal(err)
	}
	if root != realpath(t, dir) {
		t.Fatalf("got %q, want %q", root, dir)
	}
}

func TestResolveRootFallsBackToCwd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORKSPACE_FOLDER_PATHS", "")
	t.Setenv("PWD", "")
	root, err := ResolveRoot("", dir)
	if err != nil {
		t.Fatal(err)
	}
	if root != realpath(t, dir) {
		t.Fatalf("got %q, want %q", root, dir)
	}
}

func realpath(t *testing.T, p string) string {
	t.Helper()
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs(real)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}

func TestLoadNonGitRepoReportsIsGitRepoFalse(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := Load(dir)
	if ctx.IsGitRepo {
		t.Fatal("expected is_git_repo=false for a non-git directory")
	}
	if ctx.ProjectName != filepath.Base(dir) {
		t.Fatalf("got project name %q", ctx.ProjectName)
	}
}

func TestEnumerateFilesHonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	must(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("ignored.txt\n"), 0644))
	must(t, os.WriteFile(filepath.Join(dir, "kept.txt"), []byte("a"), 0644))
	must(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("b"), 0644))

	policy := NewIgnorePolicy(dir, false)
	entries, err := EnumerateFiles(dir, policy)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.RelativePath)
	}
	if !containsPath(names, "kept.txt") {
		t.Fatalf("expected kept.txt in %v", names)
	}
	if containsPath(names, "ignored.txt") {
		t.Fatalf("expected ignored.txt to be excluded, got %v", names)
	}
}

func TestEnumerateFilesExcludesHiddenByDefault(t *testing.T) {
	dir := t.TempDir()
	must(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("a"), 0644))
	must(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("b"), 0644))

	policy := NewIgnorePolicy(dir, false)
	entries, err := EnumerateFiles(dir, policy)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.RelativePath)
	}
	if containsPath(names, ".secret") {
		t.Fatalf("expected .secret excluded, got %v", names)
	}
	if !containsPath(names, "visible.txt") {
		t.Fatalf("expected visible.txt included, got %v", names)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func containsPath(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
