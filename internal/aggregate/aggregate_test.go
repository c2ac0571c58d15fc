package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/gandalf-mcp/gandalf/internal/source"
	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

type fakeAdapter struct {
	name  gandalf.Source
	convs []gandalf.Conversation
	err   error
}

func (f *fakeAdapter) Name() gandalf.Source                  { return f.name }
func (f *fakeAdapter) Detect(ctx context.Context) bool        { return true }
func (f *fakeAdapter) ListWorkspaces(ctx context.Context) ([]gandalf.Workspace, error) {
	return nil, nil
}
func (f *fakeAdapter) Extract(ctx context.Context, filter source.Filter) ([]gandalf.Conversation, []source.StoreStat, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.convs, nil, nil
}
func (f *fakeAdapter) StatStores(ctx context.Context) ([]source.StoreStat, error) { return nil, nil }

func TestFastRecallFiltersByDaysLookback(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	convs := []gandalf.Conversation{
		{ID: "1", Source: gandalf.SourceCursor, UpdatedAt: now},
		{ID: "2", Source: gandalf.SourceCursor, UpdatedAt: now.AddDate(0, 0, -3)},
		{ID: "3", Source: gandalf.SourceCursor, UpdatedAt: now.AddDate(0, 0, -10)},
	}
	adapter := &fakeAdapter{name: gandalf.SourceCursor, convs: convs}

	result, err := Run(context.Background(), Request{
		Sources: []source.Adapter{adapter},
		Filter:  source.Filter{FastMode: true, DaysLookback: 7},
		Limit:   10,
		Now:     now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Conversations) != 2 {
		t.Fatalf("expected 2 conversations within lookback, got %d", len(result.Conversations))
	}
	if result.Conversations[0].ID != "1" {
		t.Fatalf("expected newest first, got %s", result.Conversations[0].ID)
	}
}

func TestPartialFailureContinuesWithRemainingSources(t *testing.T) {
	good := &fakeAdapter{name: gandalf.SourceCursor, convs: []gandalf.Conversation{{ID: "1", Source: gandalf.SourceCursor, UpdatedAt: time.Now()}}}
	bad := &fakeAdapter{name: gandalf.SourceClaudeCode, err: gandalf.ErrSourceUnavailable}

	result, err := Run(context.Background(), Request{
		Sources: []source.Adapter{good, bad},
		Filter:  source.Filter{FastMode: true},
		Limit:   10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Conversations) != 1 {
		t.Fatalf("expected 1 conversation from the surviving source, got %d", len(result.Conversations))
	}
	if result.SourceErrors[string(gandalf.SourceClaudeCode)] == "" {
		t.Fatal("expected claude_code source error to be recorded")
	}
}

func TestAllSourcesFailingFailsTheCall(t *testing.T) {
	bad := &fakeAdapter{name: gandalf.SourceCursor, err: gandalf.ErrSourceUnavailable}

	_, err := Run(context.Background(), Request{
		Sources: []source.Adapter{bad},
		Filter:  source.Filter{FastMode: true},
		Limit:   10,
	})
	if err == nil {
		t.Fatal("expected an error when every source fails")
	}
}

func TestLimitZeroReturnsEmptyWithStats(t *testing.T) {
	adapter := &fakeAdapter{name: gandalf.SourceCursor, convs: []gandalf.Conversation{{ID: "1", Source: gandalf.SourceCursor, UpdatedAt: time.Now()}}}

	result, err := Run(context.Background(), Request{
		Sources: []source.Adapter{adapter},
		Filter:  source.Filter{FastMode: true},
		Limit:   0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Conversations) != 0 {
		t.Fatalf("expected empty result for limit=0, got %d", len(result.Conversations))
	}
	if result.Stats.TotalProcessed != 1 {
		t.Fatalf("expected stats to still report total_processed=1, got %d", result.Stats.TotalProcessed)
	}
}

func TestKeywordSearchMatchesContentAndSetsSnippet(t *testing.T) {
	convs := []gandalf.Conversation{
		{ID: "1", Source: gandalf.SourceCursor, UpdatedAt: time.Now(), Messages: []gandalf.Message{{Role: gandalf.RoleUser, Content: "the fellowship of the ring"}}},
		{ID: "2", Source: gandalf.SourceCursor, UpdatedAt: time.Now(), Messages: []gandalf.Message{{Role: gandalf.RoleUser, Content: "something unrelated"}}},
	}
	adapter := &fakeAdapter{name: gandalf.SourceCursor, convs: convs}

	result, err := Run(context.Background(), Request{
		Sources: []source.Adapter{adapter},
		Filter:  source.Filter{FastMode: false},
		Query:   "fellowship",
		Limit:   5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Conversations) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Conversations))
	}
	if result.Conversations[0].RelevanceScore <= 0 {
		t.Fatal("expected positive relevance_score")
	}
	if !contains(result.Conversations[0].Snippet, "fellowship") {
		t.Fatalf("expected snippet to contain query, got %q", result.Conversations[0].Snippet)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestDedupeKeepsConversationWithMoreMessages(t *testing.T) {
	convs := []gandalf.Conversation{
		{ID: "1", Source: gandalf.SourceCursor, UpdatedAt: time.Now(), Messages: []gandalf.Message{{Role: gandalf.RoleUser, Content: "a"}}},
		{ID: "1", Source: gandalf.SourceCursor, UpdatedAt: time.Now(), Messages: []gandalf.Message{{Role: gandalf.RoleUser, Content: "a"}, {Role: gandalf.RoleAssistant, Content: "b"}}},
	}
	deduped := dedupe(convs)
	if len(deduped) != 1 {
		t.Fatalf("expected 1 conversation after dedupe, got %d", len(deduped))
	}
	if len(deduped[0].Messages) != 2 {
		t.Fatalf("expected the conversation with more messages to survive, got %d messages", len(deduped[0].Messages))
	}
}
