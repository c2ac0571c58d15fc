// Package cursor implements the Cursor conversation source: one or
// more read-only SQLite workspace databases, opened with an immutable,
// single-connection pragma set and scanned for composer, prompt, and
// generation history rows.
package cursor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/google/uuid"

	"github.com/gandalf-mcp/gandalf/internal/source"
	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// queryTimeout bounds every SQLite query against a Cursor store, since
// the database may be locked by a live Cursor process.
const queryTimeout = 10 * time.Second

// Well-known ItemTable key prefixes Cursor stores composer, prompt,
// and generation history under.
const (
	composerKeyPrefix   = "composer.composerData"
	promptHistoryKey    = "aiService.prompts"
	generationHistoryKey = "aiService.generations"
)

// Adapter discovers workspaceStorage/*/state.vscdb files under a
// per-OS Cursor user-data directory.
type Adapter struct {
	storageDir string
}

// New resolves the default Cursor workspaceStorage directory.
func New() *Adapter {
	home, _ := os.UserHomeDir()
	var dir string
	switch {
	case os.Getenv("APPDATA") != "":
		dir = filepath.Join(os.Getenv("APPDATA"), "Cursor", "User", "workspaceStorage")
	case fileExists(filepath.Join(home, "Library", "Application Support")):
		dir = filepath.Join(home, "Library", "Application Support", "Cursor", "User", "workspaceStorage")
	default:
		dir = filepath.Join(home, ".config", "Cursor", "User", "workspaceStorage")
	}
	return &Adapter{storageDir: dir}
}

// NewWithStorageDir overrides the storage directory; used by tests.
func NewWithStorageDir(dir string) *Adapter {
	return &Adapter{storageDir: dir}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (a *Adapter) Name() gandalf.Source { return gandalf.SourceCursor }

func (a *Adapter) Detect(ctx context.Context) bool {
	info, err := os.Stat(a.storageDir)
	return err == nil && info.IsDir()
}

func (a *Adapter) dbPaths() []string {
	entries, err := os.ReadDir(a.storageDir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, name := range []string{"state.vscdb", "store.db"} {
			p := filepath.Join(a.storageDir, e.Name(), name)
			if fileExists(p) {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

func (a *Adapter) ListWorkspaces(ctx context.Context) ([]gandalf.Workspace, error) {
	var workspaces []gandalf.Workspace
	for _, dbPath := range a.dbPaths() {
		workspaceID := filepath.Base(filepath.Dir(dbPath))
		totals, err := countTotals(ctx, dbPath)
		if err != nil {
			continue // corrupt database: skip with no hard failure
		}
		workspaces = append(workspaces, gandalf.Workspace{
			WorkspaceID: workspaceID,
			Path:        dbPath,
			Source:      gandalf.SourceCursor,
			Totals:      totals,
		})
	}
	return workspaces, nil
}

// openReadOnly opens dbPath with Cursor's store treated as foreign and
// read-only: immutable mode plus a single connection, mirroring the
// teacher's read-only vector-store connection settings.
func openReadOnly(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Minute)
	return db, nil
}

func countTotals(ctx context.Context, dbPath string) (gandalf.Totals, error) {
	db, err := openReadOnly(dbPath)
	if err != nil {
		return gandalf.Totals{}, err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := composerRows(ctx, db)
	if err != nil {
		return gandalf.Totals{}, err
	}
	return gandalf.Totals{Conversations: len(rows)}, nil
}

// itemTableRow is one row of Cursor's generic key/value ItemTable.
type itemTableRow struct {
	Key   string
	Value []byte
}

func queryItemTable(ctx context.Context, db *sql.DB, keyLike string) ([]itemTableRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM ItemTable WHERE key LIKE ?`, keyLike+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []itemTableRow
	for rows.Next() {
		var r itemTableRow
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func composerRows(ctx context.Context, db *sql.DB) ([]itemTableRow, error) {
	return queryItemTable(ctx, db, composerKeyPrefix)
}

// composerData is the shape of one composer.composerData* value.
type composerData struct {
	ComposerID string `json:"composerId"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"createdAt"`
	LastUpdatedAt int64 `json:"lastUpdatedAt"`
	Conversation []composerTurn `json:"conversation"`
}

type composerTurn struct {
	Type      int    `json:"type"` // 1 = user prompt, 2 = assistant generation, per Cursor's schema
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// promptEntry and generationEntry mirror Cursor's flat prompt/generation
// history arrays, used when no composer record exists for a workspace.
type promptEntry struct {
	Text          string `json:"text"`
	CommandType   int    `json:"commandType"`
}

type generationEntry struct {
	TextDescription string `json:"textDescription"`
	Type            string `json:"type"`
	UnixMs          int64  `json:"unixMs"`
}

func (a *Adapter) Extract(ctx context.Context, filter source.Filter) ([]gandalf.Conversation, []source.StoreStat, error) {
	var convos []gandalf.Conversation
	var stats []source.StoreStat

	for _, dbPath := range a.dbPaths() {
		select {
		case <-ctx.Done():
			return convos, stats, ctx.Err()
		default:
		}

		stats = append(stats, statDB(dbPath)...)

		workspaceID := filepath.Base(filepath.Dir(dbPath))
		extracted, err := extractFromDB(ctx, dbPath, workspaceID, filter)
		if err != nil {
			continue // corrupt db: skipped silently (no warning is logged), not a hard failure
		}
		convos = append(convos, extracted...)
	}

	return convos, stats, nil
}

// statDB stats a workspace database and its WAL file, if present,
// without opening either.
func statDB(dbPath string) []source.StoreStat {
	var stats []source.StoreStat
	info, err := os.Stat(dbPath)
	if err != nil {
		return nil
	}
	stats = append(stats, source.StoreStat{Path: dbPath, Size: info.Size(), ModTime: info.ModTime().UnixNano()})
	if wal, err := os.Stat(dbPath + "-wal"); err == nil {
		stats = append(stats, source.StoreStat{Path: dbPath + "-wal", Size: wal.Size(), ModTime: wal.ModTime().UnixNano()})
	}
	return stats
}

// StatStores stats every workspace database this adapter would open
// during Extract, without opening any of them.
func (a *Adapter) StatStores(ctx context.Context) ([]source.StoreStat, error) {
	var stats []source.StoreStat
	for _, dbPath := range a.dbPaths() {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
		stats = append(stats, statDB(dbPath)...)
	}
	return stats, nil
}

func extractFromDB(ctx context.Context, dbPath, workspaceID string, filter source.Filter) ([]gandalf.Conversation, error) {
	db, err := openReadOnly(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	composers, err := composerRows(qctx, db)
	if err != nil {
		return nil, err
	}

	var convos []gandalf.Conversation
	seenComposer := map[string]bool{}

	for _, row := range composers {
		var cd composerData
		if err := json.Unmarshal(row.Value, &cd); err != nil {
			continue // malformed record: skip, source_corrupt at the record level
		}
		id := cd.ComposerID
		if id == "" {
			id = strings.TrimPrefix(row.Key, composerKeyPrefix+":")
		}
		seenComposer[id] = true
		convos = append(convos, composerToConversation(cd, id, workspaceID, filter.FastMode))
	}

	// Only synthesize from the flat prompt/generation streams when no
	// composer record exists at all.
	if len(seenComposer) == 0 {
		synthesized, err := synthesizeFromFlatStreams(qctx, db, workspaceID, filter.FastMode)
		if err == nil {
			convos = append(convos, synthesized...)
		}
	}

	return convos, nil
}

func composerToConversation(cd composerData, id, workspaceID string, fastMode bool) gandalf.Conversation {
	created := msToTime(cd.CreatedAt)
	updated := msToTime(cd.LastUpdatedAt)
	if updated.IsZero() {
		updated = created
	}

	var messages []gandalf.Message
	prompts, generations := 0, 0
	for _, turn := range cd.Conversation {
		role := gandalf.RoleAssistant
		if turn.Type == 1 {
			role = gandalf.RoleUser
			prompts++
		} else {
			generations++
		}
		if !fastMode {
			ts := msToTime(turn.Timestamp)
			var tsPtr *time.Time
			if !ts.IsZero() {
				tsPtr = &ts
			}
			messages = append(messages, gandalf.Message{Role: role, Content: turn.Text, Timestamp: tsPtr})
		}
	}

	title := cd.Name
	if title == "" && len(cd.Conversation) > 0 {
		title = truncate(cd.Conversation[0].Text, 80)
	}

	return gandalf.Conversation{
		ID:              id,
		Source:          gandalf.SourceCursor,
		WorkspaceID:     workspaceID,
		Title:           title,
		CreatedAt:       created,
		UpdatedAt:       updated,
		PromptCount:     prompts,
		GenerationCount: generations,
		TotalExchanges:  prompts + generations,
		Messages:        messages,
		ActivityScore:   activityScore(updated, prompts+generations),
	}
}

// synthesizeFromFlatStreams builds one conversation from the flat
// prompt/generation streams when a workspace has no composer record,
// using a deterministic workspace-hash-plus-ordinal id.
func synthesizeFromFlatStreams(ctx context.Context, db *sql.DB, workspaceID string, fastMode bool) ([]gandalf.Conversation, error) {
	promptRows, err := queryItemTable(ctx, db, promptHistoryKey)
	if err != nil {
		return nil, err
	}
	genRows, err := queryItemTable(ctx, db, generationHistoryKey)
	if err != nil {
		return nil, err
	}
	if len(promptRows) == 0 && len(genRows) == 0 {
		return nil, nil
	}

	var prompts []promptEntry
	for _, r := range promptRows {
		var batch []promptEntry
		if err := json.Unmarshal(r.Value, &batch); err == nil {
			prompts = append(prompts, batch...)
		}
	}
	var generations []generationEntry
	for _, r := range genRows {
		var batch []generationEntry
		if err := json.Unmarshal(r.Value, &batch); err == nil {
			generations = append(generations, batch...)
		}
	}

	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(workspaceID+":synthesized:0")).String()

	var messages []gandalf.Message
	var latest time.Time
	if !fastMode {
		for _, p := range prompts {
			messages = append(messages, gandalf.Message{Role: gandalf.RoleUser, Content: p.Text})
		}
		for _, g := range generations {
			ts := msToTime(g.UnixMs)
			var tsPtr *time.Time
			if !ts.IsZero() {
				tsPtr = &ts
				if ts.After(latest) {
					latest = ts
				}
			}
			messages = append(messages, gandalf.Message{Role: gandalf.RoleAssistant, Content: g.TextDescription, Timestamp: tsPtr})
		}
	} else {
		for _, g := range generations {
			ts := msToTime(g.UnixMs)
			if ts.After(latest) {
				latest = ts
			}
		}
	}
	if latest.IsZero() {
		latest = time.Now()
	}

	convo := gandalf.Conversation{
		ID:              id,
		Source:          gandalf.SourceCursor,
		WorkspaceID:     workspaceID,
		Title:           "Untitled session",
		CreatedAt:       latest,
		UpdatedAt:       latest,
		PromptCount:     len(prompts),
		GenerationCount: len(generations),
		TotalExchanges:  len(prompts) + len(generations),
		Messages:        messages,
		ActivityScore:   activityScore(latest, len(prompts)+len(generations)),
	}
	return []gandalf.Conversation{convo}, nil
}

func msToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func activityScore(updatedAt time.Time, exchanges int) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	ageHours := time.Since(updatedAt).Hours()
	recency := 1.0 / (1.0 + ageHours/24.0)
	volume := float64(exchanges) / 50.0
	if volume > 1.0 {
		volume = 1.0
	}
	return recency*0.7 + volume*0.3
}
