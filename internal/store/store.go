// Package store defines the persistence contract every backend
// (in-memory, SQLite) implements: durable, transactional access to
// WorkItems, Notes, Dependencies, and TransitionRecords. Locks are
// deliberately not part of this contract; per spec §6.3 a restart does
// not preserve them, so internal/lockmanager keeps its table in-process
// memory rather than routing it through a Store backend.
package store

import (
	"context"
	"time"

	"github.com/taskgraph/orchestrator/internal/types"
)

// NullParent is the sentinel ItemPatch.ParentID value meaning "move this
// item to root", distinguishing "field omitted" (nil pointer) from
// "field explicitly cleared" (pointer to NullParent).
const NullParent = ""

// ItemPatch is a partial update: omitted fields (nil pointers) retain
// their existing value. ParentID uses NullParent to mean "move to root".
type ItemPatch struct {
	ID                   string
	Title                *string
	Summary              *string
	Description          *string
	ParentID             *string
	Role                 *types.Role
	PreviousRole         **types.Role
	StatusLabel          *string
	Priority             *types.Priority
	Complexity           **int
	Tags                 *[]string
	RequiresVerification *bool
	RoleChangedAt        *time.Time
}

// ChildCounts tallies an item's direct children by role.
type ChildCounts struct {
	Queue    int `json:"queue"`
	Work     int `json:"work"`
	Review   int `json:"review"`
	Blocked  int `json:"blocked"`
	Terminal int `json:"terminal"`
}

// OverviewRow pairs an item with its child counts for the root-listing
// shape of Overview.
type OverviewRow struct {
	Item        *types.WorkItem `json:"item"`
	ChildCounts ChildCounts     `json:"childCounts"`
}

// OverviewResult is either a root listing (ItemID == nil) or a single
// item's direct-children view.
type OverviewResult struct {
	Roots    []OverviewRow     `json:"roots,omitempty"`
	Item     *types.WorkItem   `json:"item,omitempty"`
	Children []*types.WorkItem `json:"children,omitempty"`
	Counts   ChildCounts       `json:"childCounts,omitempty"`
}

// NoteDeleteSpec selects notes to delete by id, by (itemId,key), or every
// note on an item.
type NoteDeleteSpec struct {
	ID     string
	ItemID string
	Key    string
}

// DependencyDeleteSpec selects dependencies to delete by id, by
// (from,to[,type]), or every dependency touching an item.
type DependencyDeleteSpec struct {
	ID         string
	FromItemID string
	ToItemID   string
	Type       *types.DependencyType
	ItemID     string // deleteAll: any edge where ItemID is from or to
}

// DependencyDirection scopes a dependency query relative to a start item.
type DependencyDirection string

const (
	DirectionIncoming DependencyDirection = "incoming"
	DirectionOutgoing DependencyDirection = "outgoing"
	DirectionAll      DependencyDirection = "all"
)

// Store is the persistence contract. All write operations either fully
// succeed or leave the store unchanged; concurrent reads never observe a
// partial write.
type Store interface {
	CreateItems(ctx context.Context, items []*types.WorkItem) ([]*types.WorkItem, error)
	UpdateItems(ctx context.Context, patches []ItemPatch) ([]*types.WorkItem, error)
	DeleteItems(ctx context.Context, ids []string, recursive bool) ([]string, error)
	GetItem(ctx context.Context, id string) (*types.WorkItem, error)
	GetItems(ctx context.Context, ids []string) ([]*types.WorkItem, error)
	SearchItems(ctx context.Context, filter types.SearchFilter, sort types.SortSpec, limit, offset int) ([]*types.WorkItem, error)
	ChildrenOf(ctx context.Context, parentID string) ([]*types.WorkItem, error)
	Overview(ctx context.Context, itemID *string) (*OverviewResult, error)

	UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error)
	DeleteNotes(ctx context.Context, spec NoteDeleteSpec) (int, error)
	GetNote(ctx context.Context, id string) (*types.Note, error)
	GetNoteByKey(ctx context.Context, itemID, key string) (*types.Note, error)
	ListNotes(ctx context.Context, itemID string, role *types.Role) ([]*types.Note, error)

	// ListAllDependencyEdges returns the full edge set so DependencyEngine
	// can run its incremental cycle check against store state plus a
	// proposed batch before calling InsertDependencies.
	ListAllDependencyEdges(ctx context.Context) ([]*types.Dependency, error)
	ListDependencies(ctx context.Context, itemID string, direction DependencyDirection, typeFilter *types.DependencyType) ([]*types.Dependency, error)
	InsertDependencies(ctx context.Context, deps []*types.Dependency) ([]*types.Dependency, error)
	DeleteDependencies(ctx context.Context, spec DependencyDeleteSpec) ([]*types.Dependency, error)

	AppendTransition(ctx context.Context, record *types.TransitionRecord) error
	ListTransitions(ctx context.Context, itemID string, since *time.Time) ([]*types.TransitionRecord, error)
	RecentTransitions(ctx context.Context, since time.Time) ([]*types.TransitionRecord, error)

	Close() error
}
