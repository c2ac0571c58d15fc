// Package source defines the capability set every conversation source
// adapter implements: Detect, ListWorkspaces and Extract, plus Name and
// StatStores.
package source

import (
	"context"

	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// Filter narrows extraction. FastMode skips message bodies; empty
// ConversationTypes means "no type filter" (comprehensive mode only).
type Filter struct {
	FastMode         bool
	DaysLookback     int
	ConversationTypes []gandalf.ConversationType
}

// StoreStat identifies one on-disk store an adapter touched, used as
// cache-fingerprint input.
type StoreStat struct {
	Path    string
	Size    int64
	ModTime int64 // UnixNano
}

// Adapter is the capability set every conversation source implements.
type Adapter interface {
	// Name identifies the source in error/stat reporting.
	Name() gandalf.Source

	// Detect reports whether this source has any data on this host.
	Detect(ctx context.Context) bool

	// ListWorkspaces returns an ordered sequence of workspaces with totals.
	ListWorkspaces(ctx context.Context) ([]gandalf.Workspace, error)

	// Extract returns normalized conversations matching filter, plus
	// the store files it touched (for cache fingerprinting).
	Extract(ctx context.Context, filter Filter) ([]gandalf.Conversation, []StoreStat, error)

	// StatStores reports the (path, size, mtime_ns) of every store file
	// this source would touch during Extract, without parsing any of
	// them. Callers use this to build a cache fingerprint cheaply,
	// before deciding whether the expensive Extract is even needed.
	StatStores(ctx context.Context) ([]StoreStat, error)
}
