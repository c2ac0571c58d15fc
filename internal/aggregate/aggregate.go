// Package aggregate fans out extraction across enabled conversation
// sources, merges, deduplicates, filters, and ranks the result.
package aggregate

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gandalf-mcp/gandalf/internal/source"
	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// Request carries everything the aggregator needs for one call.
type Request struct {
	Sources           []source.Adapter
	Filter            source.Filter
	Query             string // non-empty for search_conversations
	Limit             int
	Now               time.Time
}

// Stats summarizes one aggregation run's processing volume and cost.
type Stats struct {
	TotalProcessed    int                `json:"total_processed"`
	Skipped           int                `json:"skipped"`
	EfficiencyPercent float64            `json:"efficiency_percent"`
	ElapsedSeconds    map[string]float64 `json:"elapsed_seconds"`
}

// Result is the aggregator's full output.
type Result struct {
	Conversations []gandalf.Conversation `json:"conversations"`
	SourceErrors  map[string]string      `json:"source_errors,omitempty"`
	StoreStats    []source.StoreStat     `json:"-"`
	Stats         Stats                  `json:"processing_stats"`
	Partial       bool                   `json:"partial,omitempty"`
}

// Run executes the full fan-out/merge/filter/rank pipeline for one
// recall or search request.
func Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	type sourceResult struct {
		name  gandalf.Source
		convs []gandalf.Conversation
		stats []source.StoreStat
		err   error
	}

	results := make([]sourceResult, len(req.Sources))
	extractStart := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(runtime.NumCPU(), len(req.Sources)+2))
	for i, adapter := range req.Sources {
		i, adapter := i, adapter
		g.Go(func() error {
			convs, stats, err := adapter.Extract(gctx, req.Filter)
			results[i] = sourceResult{name: adapter.Name(), convs: convs, stats: stats, err: err}
			return nil // a single source failing must not cancel the others
		})
	}
	_ = g.Wait() // errors are per-source; aggregate below decides overall failure
	extractElapsed := time.Since(extractStart).Seconds()

	var all []gandalf.Conversation
	var storeStats []source.StoreStat
	sourceErrors := map[string]string{}
	successfulSources := 0
	cancelledSources := 0

	for _, r := range results {
		if r.err != nil {
			sourceErrors[string(r.name)] = r.err.Error()
			if errors.Is(r.err, context.DeadlineExceeded) || errors.Is(r.err, context.Canceled) {
				// The source was cut off mid-extraction but still handed
				// back whatever it had collected; keep that data rather
				// than discarding it.
				cancelledSources++
				all = append(all, r.convs...)
				storeStats = append(storeStats, r.stats...)
			}
			continue
		}
		successfulSources++
		all = append(all, r.convs...)
		storeStats = append(storeStats, r.stats...)
	}

	partial := cancelledSources > 0

	if len(req.Sources) > 0 && successfulSources == 0 && cancelledSources == 0 {
		return nil, gandalf.NewError(gandalf.KindSourceUnavailable, "", "every conversation source failed", nil)
	}

	totalProcessed := len(all)

	dedupStart := time.Now()
	deduped := dedupe(all)
	dedupElapsed := time.Since(dedupStart).Seconds()

	filterStart := time.Now()
	filtered := applyDaysLookback(deduped, req.Filter.DaysLookback, now)
	if len(req.Filter.ConversationTypes) > 0 {
		filtered = applyTypeFilter(filtered, req.Filter.ConversationTypes)
	}

	if req.Query != "" {
		filtered = scoreAndFilterByQuery(filtered, req.Query, now)
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].RelevanceScore > filtered[j].RelevanceScore })
	} else {
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].ActivityScore > filtered[j].ActivityScore })
	}
	filterElapsed := time.Since(filterStart).Seconds()

	skipped := totalProcessed - len(filtered)

	if req.Limit >= 0 && len(filtered) > req.Limit {
		filtered = filtered[:req.Limit]
	}

	efficiency := 100.0
	if totalProcessed > 0 {
		efficiency = 100.0 * float64(totalProcessed-skipped) / float64(max(1, totalProcessed))
	}

	result := &Result{
		Conversations: filtered,
		StoreStats:    storeStats,
		Partial:       partial,
		Stats: Stats{
			TotalProcessed:    totalProcessed,
			Skipped:           skipped,
			EfficiencyPercent: efficiency,
			ElapsedSeconds: map[string]float64{
				"extract": extractElapsed,
				"dedupe":  dedupElapsed,
				"filter":  filterElapsed,
				"total":   time.Since(start).Seconds(),
			},
		},
	}
	if len(sourceErrors) > 0 {
		result.SourceErrors = sourceErrors
	}
	return result, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// dedupe enforces uniqueness by (source, id); on collision it keeps
// the conversation with more messages, breaking further ties by
// source name for determinism.
func dedupe(convos []gandalf.Conversation) []gandalf.Conversation {
	type key struct {
		source gandalf.Source
		id     string
	}
	best := make(map[key]gandalf.Conversation, len(convos))
	order := make([]key, 0, len(convos))

	for _, c := range convos {
		k := key{c.Source, c.ID}
		existing, ok := best[k]
		if !ok {
			best[k] = c
			order = append(order, k)
			continue
		}
		if len(c.Messages) > len(existing.Messages) {
			best[k] = c
		} else if len(c.Messages) == len(existing.Messages) && c.Source < existing.Source {
			best[k] = c
		}
	}

	out := make([]gandalf.Conversation, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func applyDaysLookback(convos []gandalf.Conversation, days int, now time.Time) []gandalf.Conversation {
	if days <= 0 {
		return convos
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	out := make([]gandalf.Conversation, 0, len(convos))
	for _, c := range convos {
		if c.UpdatedAt.After(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

func applyTypeFilter(convos []gandalf.Conversation, types []gandalf.ConversationType) []gandalf.Conversation {
	want := make(map[gandalf.ConversationType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	out := make([]gandalf.Conversation, 0, len(convos))
	for _, c := range convos {
		if want[c.ConversationType] {
			out = append(out, c)
		}
	}
	return out
}

// scoreAndFilterByQuery implements the keyword filter for
// search_conversations: a weighted sum of
// title-match, bounded content-scan match, recency, and volume.
// Conversations scoring 0 are dropped.
func scoreAndFilterByQuery(convos []gandalf.Conversation, query string, now time.Time) []gandalf.Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]gandalf.Conversation, 0, len(convos))

	for _, c := range convos {
		titleMatch := 0.0
		if strings.Contains(strings.ToLower(c.Title), q) {
			titleMatch = 1.0
		}

		contentMatch, snippet := scanMessages(c.Messages, q)

		if titleMatch == 0 && contentMatch == 0 {
			continue
		}

		ageHours := now.Sub(c.UpdatedAt).Hours()
		recency := 1.0 / (1.0 + ageHours/24.0)
		volume := float64(c.TotalExchanges) / 50.0
		if volume > 1.0 {
			volume = 1.0
		}

		c.RelevanceScore = 0.4*titleMatch + 0.4*contentMatch + 0.1*recency + 0.1*volume
		if snippet != "" {
			c.Snippet = snippet
		}
		out = append(out, c)
	}
	return out
}

// maxScanMessages bounds the content scan window per conversation so a
// single enormous session can't dominate search latency.
const maxScanMessages = 200

func scanMessages(messages []gandalf.Message, q string) (match float64, snippet string) {
	limit := len(messages)
	if limit > maxScanMessages {
		limit = maxScanMessages
	}
	for i := 0; i < limit; i++ {
		content := messages[i].Content
		lower := strings.ToLower(content)
		idx := strings.Index(lower, q)
		if idx < 0 {
			continue
		}
		match = 1.0
		snippet = extractSnippet(content, idx, len(q))
		return
	}
	return 0, ""
}

func extractSnippet(content string, idx, qlen int) string {
	const pad = 80
	start := idx - pad
	if start < 0 {
		start = 0
	}
	end := idx + qlen + pad
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}
