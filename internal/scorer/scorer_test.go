package scorer

import (
	"testing"
	"time"

	"github.com/gandalf-mcp/gandalf/internal/config"
	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

func TestRecentPythonBeatsOldJS(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	weights := config.DefaultConfig().Weights

	recent := gandalf.FileEntry{RelativePath: "recent.py", Extension: ".py", SizeBytes: 1000, ModifiedAt: now}
	old := gandalf.FileEntry{RelativePath: "old.js", Extension: ".js", SizeBytes: 1000, ModifiedAt: now.AddDate(0, 0, -40)}

	opts := Options{Now: now}
	sorted := ScoreAndSort([]gandalf.FileEntry{old, recent}, weights, config.DefaultConfig().Tiers, opts)

	if sorted[0].RelativePath != "recent.py" {
		t.Fatalf("expected recent.py first, got order: %s, %s", sorted[0].RelativePath, sorted[1].RelativePath)
	}
}

func TestTierThresholds(t *testing.T) {
	tiers := config.TierThresholds{High: 0.8, Medium: 0.5}
	if Tier(0.9, tiers) != gandalf.TierHigh {
		t.Fatal("0.9 should be high")
	}
	if Tier(0.6, tiers) != gandalf.TierMedium {
		t.Fatal("0.6 should be medium")
	}
	if Tier(0.1, tiers) != gandalf.TierLow {
		t.Fatal("0.1 should be low")
	}
}

func TestUnknownExtensionScoresZeroForFileType(t *testing.T) {
	if w := extensionWeights[".zzz-unknown"]; w != 0 {
		t.Fatalf("unknown extension should default to 0, got %v", w)
	}
}

func TestTieBreakLexicographicPath(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := gandalf.FileEntry{RelativePath: "b.txt", Extension: ".txt", SizeBytes: 500, ModifiedAt: now}
	b := gandalf.FileEntry{RelativePath: "a.txt", Extension: ".txt", SizeBytes: 500, ModifiedAt: now}

	sorted := ScoreAndSort([]gandalf.FileEntry{a, b}, config.DefaultConfig().Weights, config.DefaultConfig().Tiers, Options{Now: now})
	if sorted[0].RelativePath != "a.txt" {
		t.Fatalf("expected a.txt first on tie, got %s", sorted[0].RelativePath)
	}
}
