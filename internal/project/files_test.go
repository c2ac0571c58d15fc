package project

import (
	"testing"

	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

func TestFilterByExtensionCaseInsensitiveLeadingDotOptional(t *testing.T) {
	entries := []gandalf.FileEntry{
		{RelativePath: "a.py", Extension: ".py"},
		{RelativePath: "b.js", Extension: ".js"},
		{RelativePath: "c.md", Extension: ".md"},
	}

	filtered := FilterByExtension(entries, []string{"PY", ".md"})
	if len(filtered) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(filtered))
	}
	for _, e := range filtered {
		if e.RelativePath == "b.js" {
			t.Fatal("b.js should have been filtered out")
		}
	}
}

func TestFilterByExtensionEmptyListIsNoOp(t *testing.T) {
	entries := []gandalf.FileEntry{{RelativePath: "a.py", Extension: ".py"}}
	filtered := FilterByExtension(entries, nil)
	if len(filtered) != 1 {
		t.Fatalf("expected no filtering, got %d entries", len(filtered))
	}
}
