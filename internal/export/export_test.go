package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

func sampleConversation() gandalf.Conversation {
	return gandalf.Conversation{
		ID:          "abc123",
		Source:      gandalf.SourceCursor,
		WorkspaceID: "ws1",
		Title:       "Fix the bridge of Khazad-dum",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		PromptCount: 1, GenerationCount: 1, TotalExchanges: 2,
		Messages: []gandalf.Message{
			{Role: gandalf.RoleUser, Content: "you shall not pass"},
			{Role: gandalf.RoleAssistant, Content: "fly, you fools"},
		},
	}
}

func TestExportJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	conv := sampleConversation()

	paths, err := Export([]gandalf.Conversation{conv}, FormatJSON, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected 1 file, got %d", len(paths))
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	var got gandalf.Conversation
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != conv.ID || got.Title != conv.Title || got.Source != conv.Source {
		t.Fatalf("round-tripped scalar fields differ: got %+v, want %+v", got, conv)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "you shall not pass" {
		t.Fatalf("message order not preserved: %+v", got.Messages)
	}
}

func TestExportCollisionGetsNumericSuffix(t *testing.T) {
	dir := t.TempDir()
	conv := sampleConversation()

	first, err := Export([]gandalf.Conversation{conv}, FormatJSON, dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Export([]gandalf.Conversation{conv}, FormatJSON, dir)
	if err != nil {
		t.Fatal(err)
	}
	if first[0] == second[0] {
		t.Fatalf("expected collision suffix, both wrote to %s", first[0])
	}
	if filepath.Dir(first[0]) != filepath.Dir(second[0]) {
		t.Fatal("expected both files in the same directory")
	}
}

func TestMarkdownAndTextFormats(t *testing.T) {
	dir := t.TempDir()
	conv := sampleConversation()

	for _, f := range []Format{FormatMD, FormatTXT} {
		paths, err := Export([]gandalf.Conversation{conv}, f, dir)
		if err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(paths[0])
		if err != nil {
			t.Fatal(err)
		}
		if len(data) == 0 {
			t.Fatalf("expected non-empty content for format %s", f)
		}
	}
}
