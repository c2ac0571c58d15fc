// Package mcp implements the tool dispatcher: it registers Gandalf's
// six tools, validates arguments, and shapes results back into the MCP
// content envelope using req.GetString/GetInt/GetBool and
// mcp.NewToolResultText/Error.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gandalf-mcp/gandalf/internal/aggregate"
	"github.com/gandalf-mcp/gandalf/internal/cache"
	"github.com/gandalf-mcp/gandalf/internal/config"
	"github.com/gandalf-mcp/gandalf/internal/export"
	"github.com/gandalf-mcp/gandalf/internal/gandalflog"
	"github.com/gandalf-mcp/gandalf/internal/project"
	"github.com/gandalf-mcp/gandalf/internal/scorer"
	"github.com/gandalf-mcp/gandalf/internal/source"
	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

const (
	protocolVersion = "2024-11-05"
	serverVersion   = "0.1.0"
)

// Server wires the dispatcher to the core components.
type Server struct {
	mcpServer   *server.MCPServer
	projectRoot string
	cfg         *config.Config
	sources     []source.Adapter
	cache       *cache.Cache
	log         *gandalflog.SessionLogger
}

// Config bundles Server's dependencies.
type Config struct {
	ProjectRoot string
	Cfg         *config.Config
	Sources     []source.Adapter
	Cache       *cache.Cache
	Log         *gandalflog.SessionLogger
}

// New builds a Server and registers all tools.
func New(cfg Config) (*Server, error) {
	s := &Server{
		projectRoot: cfg.ProjectRoot,
		cfg:         cfg.Cfg,
		sources:     cfg.Sources,
		cache:       cfg.Cache,
		log:         cfg.Log,
	}

	s.mcpServer = server.NewMCPServer("gandalf", serverVersion)
	if s.log != nil {
		s.log.SetSink(s)
	}
	s.registerTools()
	return s, nil
}

// Notify implements gandalflog.NotificationSink by emitting an MCP
// "notifications/message" JSON-RPC notification.
func (s *Server) Notify(level, message string, data map[string]any) {
	s.mcpServer.SendNotificationToAllClients("notifications/message", map[string]any{
		"level":   level,
		"message": message,
		"data":    data,
	})
}

// Serve runs the stdio JSON-RPC loop via server.ServeStdio, which
// returns on end of input or on SIGINT/SIGTERM; ctx is not consulted.
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_project_info",
		mcp.WithDescription("Returns the resolved project context: root, git metadata, file stats."),
		mcp.WithBoolean("include_stats", mcp.Description("Include file_stats in the result")),
	), s.handleGetProjectInfo)

	s.mcpServer.AddTool(mcp.NewTool("list_project_files",
		mcp.WithDescription("Lists project files, optionally ranked by relevance score."),
		mcp.WithNumber("max_files", mcp.Description("Maximum number of files to return")),
		mcp.WithArray("file_types", mcp.Description("Extension filter, e.g. [\".go\", \".md\"]")),
		mcp.WithBoolean("use_relevance_scoring", mcp.Description("Rank and bucket by relevance score")),
		mcp.WithBoolean("include_hidden", mcp.Description("Include dotfiles and dotdirs")),
	), s.handleListProjectFiles)

	s.mcpServer.AddTool(mcp.NewTool("recall_conversations",
		mcp.WithDescription("Aggregates recent conversations across all enabled sources."),
		mcp.WithBoolean("fast_mode", mcp.Description("Skip message bodies for speed")),
		mcp.WithNumber("days_lookback", mcp.Description("How many days back to include (1-365)")),
		mcp.WithNumber("limit", mcp.Description("Maximum conversations to return (0-1000)")),
		mcp.WithArray("conversation_types", mcp.Description("Type filter, comprehensive mode only")),
	), s.handleRecallConversations)

	s.mcpServer.AddTool(mcp.NewTool("search_conversations",
		mcp.WithDescription("Searches conversation titles and content for a query string."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text, 1-10000 characters")),
		mcp.WithNumber("limit", mcp.Description("Maximum results")),
		mcp.WithNumber("days_lookback", mcp.Description("How many days back to search")),
		mcp.WithBoolean("include_content", mcp.Description("Load message content for matching")),
	), s.handleSearchConversations)

	s.mcpServer.AddTool(mcp.NewTool("export_individual_conversations",
		mcp.WithDescription("Writes selected conversations to disk, one file each."),
		mcp.WithNumber("limit", mcp.Description("Maximum conversations to export")),
		mcp.WithString("format", mcp.Description("json, md, or txt")),
		mcp.WithString("output_dir", mcp.Description("Destination directory")),
		mcp.WithArray("conversation_types", mcp.Description("Type filter, comprehensive mode only")),
	), s.handleExportConversations)

	s.mcpServer.AddTool(mcp.NewTool("get_server_version",
		mcp.WithDescription("Returns Gandalf's version and the MCP protocol version."),
	), s.handleGetServerVersion)
}

// ---- get_project_info ----

func (s *Server) handleGetProjectInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeStats := req.GetBool("include_stats", true)

	pc := project.Load(s.projectRoot)

	result := map[string]any{
		"root_absolute_path": pc.RootAbsolutePath,
		"project_name":       pc.ProjectName,
		"is_git_repo":        pc.IsGitRepo,
		"current_branch":     pc.CurrentBranch,
		"git_head":           pc.GitHead,
	}
	if pc.SanitizedName != "" {
		result["sanitized_name"] = pc.SanitizedName
	}

	if includeStats {
		policy := project.NewIgnorePolicy(s.projectRoot, false)
		entries, err := project.EnumerateFiles(s.projectRoot, policy)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("enumerating files: %v", err)), nil
		}
		result["file_stats"] = map[string]any{"total_files": len(entries)}
	}

	return jsonResult(result)
}

// ---- list_project_files ----

func (s *Server) handleListProjectFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	maxFiles := req.GetInt("max_files", s.cfg.Limits.MaxFiles)
	if maxFiles < 0 {
		return mcp.NewToolResultError("max_files must be >= 0"), nil
	}
	fileTypes := req.GetStringSlice("file_types", nil)
	useScoring := req.GetBool("use_relevance_scoring", true)
	includeHidden := req.GetBool("include_hidden", false)

	policy := project.NewIgnorePolicy(s.projectRoot, includeHidden)
	entries, err := project.EnumerateFiles(s.projectRoot, policy)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("enumerating files: %v", err)), nil
	}
	entries = project.FilterByExtension(entries, fileTypes)

	if useScoring {
		pc := project.Load(s.projectRoot)
		recent := commitCounts(pc.RecentCommitFileSet)
		entries = scorer.ScoreAndSort(entries, s.cfg.Weights, s.cfg.Tiers, scorer.Options{RecentCommitFileSet: recent})
	}

	if len(entries) > maxFiles {
		entries = entries[:maxFiles]
	}

	return jsonResult(map[string]any{
		"files":       entries,
		"total_files": len(entries),
	})
}

func commitCounts(paths []string) map[string]int {
	if len(paths) == 0 {
		return nil
	}
	counts := make(map[string]int, len(paths))
	for _, p := range paths {
		counts[p]++
	}
	return counts
}

// ---- recall_conversations ----

func (s *Server) handleRecallConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fastMode := req.GetBool("fast_mode", true)
	daysLookback := req.GetInt("days_lookback", 7)
	if daysLookback < 1 || daysLookback > 365 {
		return mcp.NewToolResultError("days_lookback must be between 1 and 365"), nil
	}
	limit := req.GetInt("limit", 20)
	if limit < 0 || limit > 1000 {
		return mcp.NewToolResultError("limit must be between 0 and 1000"), nil
	}
	var types []gandalf.ConversationType
	if !fastMode {
		for _, t := range req.GetStringSlice("conversation_types", nil) {
			types = append(types, gandalf.ConversationType(t))
		}
	}

	deadline := 30 * time.Second
	if !fastMode {
		deadline = 120 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	filter := source.Filter{FastMode: fastMode, DaysLookback: daysLookback, ConversationTypes: types}
	result, err := s.runAggregation(cctx, filter, "", limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

// ---- search_conversations ----

func (s *Server) handleSearchConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if len(query) < 1 || len(query) > 10000 {
		return mcp.NewToolResultError("query must be between 1 and 10000 characters"), nil
	}
	limit := req.GetInt("limit", 10)
	daysLookback := req.GetInt("days_lookback", 30)
	includeContent := req.GetBool("include_content", false)

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	filter := source.Filter{FastMode: !includeContent, DaysLookback: daysLookback}
	result, err := s.runAggregation(cctx, filter, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

// ---- export_individual_conversations ----

func (s *Server) handleExportConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	format := req.GetString("format", "json")
	if !export.ValidFormat(format) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q, want json|md|txt", format)), nil
	}
	outputDir := req.GetString("output_dir", filepath.Join(config.GandalfHome(), "exports"))

	var types []gandalf.ConversationType
	for _, t := range req.GetStringSlice("conversation_types", nil) {
		types = append(types, gandalf.ConversationType(t))
	}

	cctx, cancel := context.WithTimeout(ctx, 600*time.Second)
	defer cancel()

	filter := source.Filter{FastMode: false, DaysLookback: s.cfg.Limits.DefaultDaysLookback, ConversationTypes: types}
	result, err := s.runAggregation(cctx, filter, "", limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	paths, err := export.Export(result.Conversations, export.Format(format), outputDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}

	return jsonResult(map[string]any{"written_paths": paths})
}

// ---- get_server_version ----

func (s *Server) handleGetServerVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"version":          serverVersion,
		"protocol_version": protocolVersion,
	})
}

// runAggregation stats every source's store files, fingerprints the
// request against those stats, checks the cache, and builds on miss
// via the Aggregator.
func (s *Server) runAggregation(ctx context.Context, filter source.Filter, query string, limit int) (*aggregate.Result, error) {
	storeStats := s.statSources(ctx)
	key := s.fingerprintFor(filter, query, limit, storeStats)

	v, err := s.cache.GetOrBuild(key, func() (any, error) {
		return aggregate.Run(ctx, aggregate.Request{
			Sources: s.sources,
			Filter:  filter,
			Query:   query,
			Limit:   limit,
		})
	})
	if err != nil {
		return nil, err
	}

	switch r := v.(type) {
	case *aggregate.Result:
		return r, nil
	default:
		// Cache hits come back JSON-decoded into a generic shape;
		// round-trip through JSON into the typed struct.
		data, _ := json.Marshal(r)
		var result aggregate.Result
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, err
		}
		return &result, nil
	}
}

// statSources collects (path, size, mtime_ns) for every store file
// every configured source would touch, cheaply and without parsing
// any of them, so the cache key can invalidate when a store changes
// on disk even within the cache TTL.
func (s *Server) statSources(ctx context.Context) []source.StoreStat {
	var stats []source.StoreStat
	for _, a := range s.sources {
		st, err := a.StatStores(ctx)
		if err != nil {
			continue
		}
		stats = append(stats, st...)
	}
	return stats
}

func (s *Server) fingerprintFor(filter source.Filter, query string, limit int, storeStats []source.StoreStat) string {
	sourceNames := make([]string, 0, len(s.sources))
	for _, a := range s.sources {
		sourceNames = append(sourceNames, string(a.Name()))
	}
	filterDesc := fmt.Sprintf("fast=%v types=%v q=%s", filter.FastMode, filter.ConversationTypes, query)

	keyStats := make([]cache.StoreStatLike, 0, len(storeStats))
	for _, st := range storeStats {
		keyStats = append(keyStats, cache.StoreStatLike{Path: st.Path, Size: st.Size, ModTime: st.ModTime})
	}

	return cache.Fingerprint(cache.KeyInputs{
		Sources:      sourceNames,
		Filter:       filterDesc,
		DaysLookback: filter.DaysLookback,
		Limit:        limit,
		FastMode:     filter.FastMode,
		ProjectRoot:  s.projectRoot,
		StoreStats:   keyStats,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshaling result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
