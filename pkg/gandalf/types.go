// Package gandalf holds the normalized data model shared by every core
// component: conversations, messages, workspaces, file entries, project
// context, and cache envelopes.
package gandalf

import "time"

// Source identifies which agentic tool a conversation or workspace came
// from.
type Source string

const (
	SourceCursor     Source = "cursor"
	SourceClaudeCode Source = "claude_code"
	SourceWindsurf   Source = "windsurf"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// PriorityTier buckets a FileEntry's score into a coarse band.
type PriorityTier string

const (
	TierHigh   PriorityTier = "high"
	TierMedium PriorityTier = "medium"
	TierLow    PriorityTier = "low"
)

// ConversationType is a classification label a conversation can carry.
// No adapter or other component in this module assigns it, so it is
// empty on every extracted conversation and a conversation_types filter
// matches none of them.
type ConversationType string

const (
	TypeArchitecture   ConversationType = "architecture"
	TypeDebugging      ConversationType = "debugging"
	TypeProblemSolving ConversationType = "problem_solving"
	TypeCodeDiscussion ConversationType = "code_discussion"
	TypeTechnical      ConversationType = "technical"
	TypeGeneral        ConversationType = "general"
)

// Message is one turn in a conversation.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is the normalized, immutable value every adapter
// produces. Fields not populated in fast mode are left at their zero
// value (Messages is nil). A comprehensive-mode conversation with no
// messages also has a nil Messages, so the two cases look the same.
type Conversation struct {
	ID               string           `json:"id"`
	Source           Source           `json:"source"`
	WorkspaceID      string           `json:"workspace_id"`
	Title            string           `json:"title"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	PromptCount      int              `json:"prompt_count"`
	GenerationCount  int              `json:"generation_count"`
	TotalExchanges   int              `json:"total_exchanges"`
	Messages         []Message        `json:"messages,omitempty"`
	ActivityScore    float64          `json:"activity_score"`
	RelevanceScore   float64          `json:"relevance_score,omitempty"`
	Snippet          string           `json:"snippet,omitempty"`
	ConversationType ConversationType `json:"conversation_type,omitempty"`
}

// Workspace is a discoverable per-source container.
type Workspace struct {
	WorkspaceID string `json:"workspace_id"`
	Path        string `json:"path"`
	Source      Source `json:"source"`
	Totals      Totals `json:"totals"`
}

// Totals summarizes a workspace's or aggregation's volume.
type Totals struct {
	Conversations int `json:"conversations"`
	Prompts       int `json:"prompts"`
	Generations   int `json:"generations"`
}

// FileEntry is one scored project file.
type FileEntry struct {
	RelativePath string       `json:"relative_path"`
	SizeBytes    int64        `json:"size_bytes"`
	ModifiedAt   time.Time    `json:"modified_at"`
	Extension    string       `json:"extension"`
	IsHidden     bool         `json:"is_hidden"`
	Score        float64      `json:"score"`
	PriorityTier PriorityTier `json:"priority_tier,omitempty"`
}

// ProjectContext describes the resolved workspace root and its git
// state.
type ProjectContext struct {
	RootAbsolutePath      string    `json:"root_absolute_path"`
	ProjectName           string    `json:"project_name"`
	SanitizedName         string    `json:"sanitized_name,omitempty"`
	IsGitRepo             bool      `json:"is_git_repo"`
	CurrentBranch         string    `json:"current_branch,omitempty"`
	GitHead               string    `json:"git_head,omitempty"`
	RecentlyModifiedPaths []string  `json:"recently_modified_paths,omitempty"`
	RecentCommitFileSet   []string  `json:"recent_commit_file_set,omitempty"`
}

// CacheEntry is the on-disk envelope written by the Cache component.
type CacheEntry struct {
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	TTLSeconds     int       `json:"ttl_seconds"`
	KeyFingerprint string    `json:"key_fingerprint"`
	Payload        any       `json:"payload"`
}

// CacheEntryVersion is the only version this build accepts on read.
const CacheEntryVersion = 1
