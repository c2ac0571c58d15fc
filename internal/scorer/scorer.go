// Package scorer computes the weighted multi-factor relevance score
// for project files.
package scorer

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gandalf-mcp/gandalf/internal/config"
	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// extensionWeights is the file-type-priority lookup table. Unknown
// extensions score 0 for this factor.
var extensionWeights = map[string]float64{
	".go": 1.0, ".py": 0.95, ".ts": 0.95, ".tsx": 0.95, ".js": 0.9, ".jsx": 0.9,
	".rs": 0.95, ".java": 0.85, ".c": 0.85, ".cpp": 0.85, ".h": 0.8, ".hpp": 0.8,
	".rb": 0.85, ".php": 0.75, ".cs": 0.85, ".swift": 0.85, ".kt": 0.85,
	".md": 0.5, ".yaml": 0.6, ".yml": 0.6, ".json": 0.55, ".toml": 0.6,
	".sh": 0.7, ".sql": 0.7, ".html": 0.5, ".css": 0.45, ".proto": 0.7,
	".txt": 0.2, ".log": 0.05,
}

// directoryWeights is applied along each path segment; the maximum
// over matched segments is used.
var directoryWeights = map[string]float64{
	"src": 0.8, "internal": 0.8, "pkg": 0.75, "lib": 0.7, "cmd": 0.75,
	"core": 0.8, "api": 0.75,
	"test": 0.3, "tests": 0.3, "testdata": 0.1, "fixtures": 0.15,
	"docs": 0.25, "examples": 0.2, "vendor": 0.05, "node_modules": 0.0,
}

const (
	optimalMin = 200
	optimalMax = 20_000
	acceptableMin = 10
	acceptableMax = 200_000
	hardCeiling   = 2_000_000
)

// Options bounds the scorer's view of git activity and the
// caller-supplied "now" for deterministic tests.
type Options struct {
	Now                 time.Time
	RecentCommitFileSet map[string]int // path -> commit count within the lookback window
}

// Score computes the weighted sum for one file. It never normalizes
// the result further.
func Score(entry gandalf.FileEntry, weights config.ScoreWeights, opts Options) float64 {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	recency := recencyFactor(entry.ModifiedAt, now)
	size := sizeFactor(entry.SizeBytes)
	fileType := extensionWeights[entry.Extension]
	dir := directoryFactor(entry.RelativePath)
	git := gitActivityFactor(entry.RelativePath, opts.RecentCommitFileSet)

	return weights.RecentModification*recency +
		weights.FileSizeOptimality*size +
		weights.FileTypePriority*fileType +
		weights.DirectoryImportance*dir +
		weights.GitActivity*git
}

// recencyFactor: full weight <= 1h, linear decay to 10% at 24h, to 1%
// at 1 week, 0 beyond a month horizon.
func recencyFactor(modified, now time.Time) float64 {
	age := now.Sub(modified)
	switch {
	case age <= time.Hour:
		return 1.0
	case age <= 24*time.Hour:
		return lerp(age, time.Hour, 24*time.Hour, 1.0, 0.10)
	case age <= 7*24*time.Hour:
		return lerp(age, 24*time.Hour, 7*24*time.Hour, 0.10, 0.01)
	case age <= 30*24*time.Hour:
		return lerp(age, 7*24*time.Hour, 30*24*time.Hour, 0.01, 0.0)
	default:
		return 0
	}
}

func lerp(x, xLo, xHi time.Duration, yLo, yHi float64) float64 {
	if xHi <= xLo {
		return yLo
	}
	frac := float64(x-xLo) / float64(xHi-xLo)
	return yLo + frac*(yHi-yLo)
}

// sizeFactor is 1.0 in [optimalMin, optimalMax] and falls linearly to
// 0.1 at acceptableMin and acceptableMax. Outside [acceptableMin,
// acceptableMax] it stays at 0.1 and does not decay further toward 0;
// files past hardCeiling receive a fixed 0.05.
func sizeFactor(size int64) float64 {
	switch {
	case size > hardCeiling:
		return 0.05
	case size >= optimalMin && size <= optimalMax:
		return 1.0
	case size < optimalMin:
		if size <= acceptableMin {
			return 0.1
		}
		return lerp(time.Duration(size), time.Duration(acceptableMin), time.Duration(optimalMin), 0.1, 1.0)
	default: // size > optimalMax
		if size >= acceptableMax {
			return 0.1
		}
		return lerp(time.Duration(size), time.Duration(optimalMax), time.Duration(acceptableMax), 1.0, 0.1)
	}
}

func directoryFactor(relPath string) float64 {
	best := 0.0
	for _, seg := range strings.Split(path.Dir(relPath), "/") {
		if w, ok := directoryWeights[strings.ToLower(seg)]; ok && w > best {
			best = w
		}
	}
	for pattern, w := range directoryGlobWeights {
		if w <= best {
			continue
		}
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			best = w
		}
	}
	return best
}

// directoryGlobWeights extends directoryWeights with full-path glob
// patterns for directory shapes a single segment name can't express
// (e.g. generated-code trees nested at any depth).
var directoryGlobWeights = map[string]float64{
	"**/generated/**": 0.0,
	"**/.generated/**": 0.0,
	"**/testdata/**": 0.1,
}

func gitActivityFactor(relPath string, recent map[string]int) float64 {
	if len(recent) == 0 {
		return 0
	}
	count, ok := recent[relPath]
	if !ok {
		return 0
	}
	// Scaled by commit count, capped at 1.0 (5+ commits in the window
	// is already "very active" for a single file).
	v := float64(count) / 5.0
	if v > 1.0 {
		v = 1.0
	}
	return v
}

// Tier buckets score into high/medium/low using the configured
// thresholds.
func Tier(score float64, t config.TierThresholds) gandalf.PriorityTier {
	switch {
	case score >= t.High:
		return gandalf.TierHigh
	case score >= t.Medium:
		return gandalf.TierMedium
	default:
		return gandalf.TierLow
	}
}

// ScoreAndSort scores every entry in place, assigns tiers, and returns
// them sorted by tie-break rule: score desc, then
// modified time desc, then lexicographic path.
func ScoreAndSort(entries []gandalf.FileEntry, weights config.ScoreWeights, tiers config.TierThresholds, opts Options) []gandalf.FileEntry {
	scored := make([]gandalf.FileEntry, len(entries))
	copy(scored, entries)

	for i := range scored {
		scored[i].Score = Score(scored[i], weights, opts)
		scored[i].PriorityTier = Tier(scored[i].Score, tiers)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].ModifiedAt.Equal(scored[j].ModifiedAt) {
			return scored[i].ModifiedAt.After(scored[j].ModifiedAt)
		}
		return scored[i].RelativePath < scored[j].RelativePath
	})
	return scored
}
