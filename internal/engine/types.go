// Package engine implements the embedded knowledge-graph store for agent
// memories: schema and migrations, CRUD with normalization, filtering and
// full-text search, a directed typed link graph with auto-inference and
// multi-hop traversal, versioned history with restore, aggregates, graph
// export, maintenance, and project namespaces.
package engine

import "time"

// Memory is a single stored note: opaque content plus the attributes the
// store indexes and filters on.
type Memory struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Category  string         `json:"category"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata"`
	Project   string         `json:"project"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	ExpiresAt *string        `json:"expires_at,omitempty"`
}

// Link is a directed typed edge between two memories, keyed by (FromID, ToID).
type Link struct {
	FromID        string  `json:"from_id"`
	ToID          string  `json:"to_id"`
	Relation      string  `json:"relation"`
	Weight        float64 `json:"weight"`
	AutoGenerated bool    `json:"auto_generated"`
	CreatedAt     string  `json:"created_at"`
}

// RelatedLink is one edge from GetRelated, carrying the peer memory alongside
// the edge attributes.
type RelatedLink struct {
	Peer          Memory `json:"peer"`
	Relation      string `json:"relation"`
	Direction     string `json:"direction"`
	Weight        float64
	AutoGenerated bool
	CreatedAt     string
}

// DeepNode is one result row from GetRelatedDeep: a reachable memory and the
// minimum hop count at which it was reached.
type DeepNode struct {
	Memory Memory `json:"memory"`
	Depth  int    `json:"depth"`
}

// HistoryEntry is an immutable snapshot of a memory taken at mutation time.
type HistoryEntry struct {
	HistoryID int64          `json:"history_id"`
	MemoryID  string         `json:"memory_id"`
	Operation string         `json:"operation"`
	Content   string         `json:"content"`
	Category  string         `json:"category"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata"`
	Project   string         `json:"project"`
	ExpiresAt *string        `json:"expires_at,omitempty"`
	ChangedAt string         `json:"changed_at"`
}

// Relation is the set of directed edge types a Link may carry.
const (
	RelationCaused     = "caused"
	RelationReferences = "references"
	RelationSupersedes = "supersedes"
	RelationRelated    = "related"
)

// Operation tags used on history rows.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Sort orders accepted by List and Search.
const (
	SortCreatedAtDesc = "created_at_desc"
	SortCreatedAtAsc  = "created_at_asc"
	SortUpdatedAtDesc = "updated_at_desc"
)

// Search modes accepted by the full-text query compiler.
const (
	SearchModeAny  = "any"
	SearchModeAll  = "all"
	SearchModeNear = "near"
)

// MaintenanceMode selects the PRAGMA wal_checkpoint mode used by Maintenance.
type MaintenanceMode string

const (
	MaintenancePassive  MaintenanceMode = "PASSIVE"
	MaintenanceFull     MaintenanceMode = "FULL"
	MaintenanceRestart  MaintenanceMode = "RESTART"
	MaintenanceTruncate MaintenanceMode = "TRUNCATE"
)

// CreateParams holds the input for Create and CreateBatch.
type CreateParams struct {
	Content   string
	Category  string
	Tags      []string
	Metadata  map[string]any
	Project   string
	ExpiresAt *string
	AutoLink  *bool
	Dedup     bool
}

// UpdateParams holds partial update fields. A nil pointer means "omit, keep
// existing value"; ExpiresAt additionally distinguishes explicit null
// (clear) from omitted (keep) via ExpiresSet/ExpiresAt.
type UpdateParams struct {
	Content    *string
	Category   *string
	Tags       []string
	Metadata   map[string]any
	Project    *string
	ExpiresSet bool
	ExpiresAt  *string
}

// BatchUpdateItem is one entry of an UpdateBatch call.
type BatchUpdateItem struct {
	ID string
	UpdateParams
}

// BatchResult is the structured, never-throwing-per-item result shape shared
// by CreateBatch/UpdateBatch/DeleteBatch/ImportBatch.
type BatchResult struct {
	Updated  []string `json:"updated,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
	Created  []string `json:"created,omitempty"`
	NotFound []string `json:"not_found,omitempty"`
	Skipped  int      `json:"skipped,omitempty"`
	Imported int      `json:"imported,omitempty"`
}

// ListFilter composes the predicates accepted by List and Search.
type ListFilter struct {
	Category      string
	Tag           string
	Project       string
	MetadataKey   string
	MetadataValue string
	CreatedAfter  string
	CreatedBefore string
	UpdatedAfter  string
	UpdatedBefore string
	Sort          string
	Limit         int
	Offset        int
}

// ListResult is the {memories, total} shape returned by a single windowed
// count query.
type ListResult struct {
	Memories []Memory
	Total    int
}

// SearchParams extends ListFilter with full-text query controls.
type SearchParams struct {
	Query        string
	Mode         string // any, all, near
	NearDistance int
	Filter       ListFilter
}

// GetRelatedParams holds the input for GetRelated.
type GetRelatedParams struct {
	ID        string
	Relation  string
	Direction string // from, to, both
}

// GetRelatedDeepParams holds the input for GetRelatedDeep.
type GetRelatedDeepParams struct {
	ID       string
	Relation string
	MaxDepth int
	Limit    int
}

// ListLinksParams holds the input for ListLinks.
type ListLinksParams struct {
	From     string
	To       string
	Relation string
	Limit    int
	Offset   int
}

// Suggestion is one non-mutating link candidate from SuggestLinks.
type Suggestion struct {
	FromID            string   `json:"from_id"`
	ToID              string   `json:"to_id"`
	Preview           string   `json:"preview"`
	ToCategory        string   `json:"to_category"`
	ToTags            []string `json:"to_tags"`
	SuggestedRelation string   `json:"suggested_relation"`
	Weight            float64  `json:"weight"`
	Reason            string   `json:"reason"`
}

// Suggestion reasons.
const (
	ReasonSharedTags        = "shared_tags"
	ReasonContentSimilarity = "content_similarity"
	ReasonTemporalProximity = "temporal_proximity"
)

// SuggestLinksParams holds the input for SuggestLinks.
type SuggestLinksParams struct {
	ID      string
	Project string
	Limit   int
}

// GetHistoryParams holds the input for GetHistory.
type GetHistoryParams struct {
	MemoryID string
	Limit    int
	Offset   int
}

// HistoryResult is the {entries, total} shape returned by GetHistory.
type HistoryResult struct {
	Entries []HistoryEntry
	Total   int
}

// RestoreParams holds the input for Restore.
type RestoreParams struct {
	MemoryID  string
	HistoryID int64
}

// Stats is the aggregate summary returned by a Stats call.
type Stats struct {
	TotalLive        int             `json:"total_live"`
	ByCategory       []CategoryCount `json:"by_category"`
	TopTags          []TagCount      `json:"top_tags"`
	Oldest           *Memory         `json:"oldest,omitempty"`
	Newest           *Memory         `json:"newest,omitempty"`
	AvgContentLength int             `json:"avg_content_length"`
	WithoutTags      int             `json:"without_tags"`
	WithoutMetadata  int             `json:"without_metadata"`
}

// CategoryCount is one row of Stats' by-category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// TagCount is one row of Stats' top-tags breakdown.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// ContextSnapshotParams holds the input for ContextSnapshot.
type ContextSnapshotParams struct {
	RecentPerCategory int
	PreviewLen        int
	IncludeTagsIndex  bool
	Project           string
}

// ContextSnapshot is the compact per-session summary returned by a
// ContextSnapshot call.
type ContextSnapshot struct {
	Categories []CategorySnapshot `json:"categories"`
	TagsIndex  map[string]int     `json:"tags_index,omitempty"`
}

// CategorySnapshot is one category's recent-memory slice within a snapshot.
type CategorySnapshot struct {
	Category string          `json:"category"`
	Total    int             `json:"total"`
	Recent   []SnapshotEntry `json:"recent"`
}

// SnapshotEntry is the slim memory projection used inside a snapshot.
type SnapshotEntry struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Project  string   `json:"project"`
}

// GraphParams holds the input for Graph.
type GraphParams struct {
	IncludeOrphans bool
	Relation       string
	Project        string
}

// GraphNode is one node in a graph export.
type GraphNode struct {
	ID       string   `json:"id"`
	Preview  string   `json:"preview"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// GraphEdge is one edge in a graph export.
type GraphEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// Graph is the node/edge listing plus the rendered textual diagram.
type Graph struct {
	Nodes   []GraphNode `json:"nodes"`
	Edges   []GraphEdge `json:"edges"`
	Diagram string      `json:"diagram"`
}

// MaintenanceResult is the structured outcome of a Maintenance call.
type MaintenanceResult struct {
	IntegrityOK     bool          `json:"integrity_ok"`
	IntegrityErrors []string      `json:"integrity_errors,omitempty"`
	WALCheckpoint   WALCheckpoint `json:"wal_checkpoint"`
}

// WALCheckpoint mirrors SQLite's wal_checkpoint pragma output.
type WALCheckpoint struct {
	Busy         bool `json:"busy"`
	Log          int  `json:"log"`
	Checkpointed int  `json:"checkpointed"`
}

// PurgeResult is the outcome of PurgeExpired.
type PurgeResult struct {
	Purged int      `json:"purged"`
	IDs    []string `json:"ids"`
}

// ExportData is the full serializable dump produced by ExportAll.
type ExportData struct {
	Version    string   `json:"version"`
	ExportedAt string   `json:"exported_at"`
	Memories   []Memory `json:"memories"`
	Links      []Link   `json:"links"`
}

// ImportMode selects insert-always vs. upsert-by-id semantics for ImportBatch.
type ImportMode string

const (
	ImportInsert ImportMode = "insert"
	ImportUpsert ImportMode = "upsert"
)

// ProjectCount is one row of ListProjects.
type ProjectCount struct {
	Project string `json:"project"`
	Count   int    `json:"count"`
}

// RenameTagResult is the structured outcome of RenameTag.
type RenameTagResult struct {
	Updated int    `json:"updated"`
	OldTag  string `json:"old_tag"`
	NewTag  string `json:"new_tag"`
}

// nowUTC is the single clock read used when a timestamp must be computed in
// Go rather than via the database's datetime('now'): the backup file name
// stamp and the export timestamp.
func nowUTC() time.Time {
	return time.Now().UTC()
}
